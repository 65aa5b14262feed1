package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scribepay/internal/types"
)

// SubscriptionRepository manages subscription lifecycle state.
//
// Key invariants:
//   - UpsertActiveByToken is keyed on the unique (user_id, token) pair, so a
//     redelivered or concurrently delivered COMPLETE event converges on one
//     row instead of inserting duplicates.
//   - Rows are never deleted; every lifecycle change is a status transition.
type SubscriptionRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepository creates a SubscriptionRepository backed by the
// given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX, logger *slog.Logger) *SubscriptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepository{db: db, logger: logger}
}

// UpsertActiveByToken records a completed payment for an identified user.
// It works identically for a first purchase and a renewal: insert on first
// sight of (user, token), otherwise refresh the existing row. The operation
// is idempotent under identical event content, which is what makes
// at-least-once webhook delivery safe without application-level locking.
func (r *SubscriptionRepository) UpsertActiveByToken(
	ctx context.Context,
	userID, token, amountGross, paymentID, rawPayload string,
) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions
		     (id, user_id, token, status, last_amount_gross, last_payment_id, last_event_payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (user_id, token) DO UPDATE
		 SET status             = EXCLUDED.status,
		     last_amount_gross  = EXCLUDED.last_amount_gross,
		     last_payment_id    = EXCLUDED.last_payment_id,
		     last_event_payload = EXCLUDED.last_event_payload,
		     cancelled_at       = NULL,
		     cancel_reason      = '',
		     updated_at         = NOW()`,
		uuid.NewString(),
		userID,
		token,
		types.SubStatusActive,
		amountGross,
		paymentID,
		rawPayload,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

// MarkCancelledByToken transitions the subscription holding the given token
// to cancelled. Returns false when no subscription carries the token; that is
// the caller's signal for a no-op (already handled, or a foreign token), not
// an error.
func (r *SubscriptionRepository) MarkCancelledByToken(
	ctx context.Context,
	token, reason, rawPayload string,
	cancelledAt time.Time,
) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status             = $1,
		     cancelled_at       = $2,
		     cancel_reason      = $3,
		     last_event_payload = $4,
		     updated_at         = NOW()
		 WHERE token = $5`,
		types.SubStatusCancelled,
		cancelledAt,
		reason,
		rawPayload,
		token,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPastDueByToken records a failed recurring payment. Access is not
// revoked here; grace-period policy lives with the caller's collaborators.
// Returns false when no subscription carries the token.
func (r *SubscriptionRepository) MarkPastDueByToken(
	ctx context.Context,
	token, paymentID, rawPayload string,
) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status             = $1,
		     last_payment_id    = $2,
		     last_event_payload = $3,
		     updated_at         = NOW()
		 WHERE token = $4`,
		types.SubStatusPastDue,
		paymentID,
		rawPayload,
		token,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark subscription past due", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByOwnerAndToken fetches the subscription identified by (owner, token).
// Returns a not-found AppError when the pair does not exist; ownership
// filtering happens in SQL so a caller can never read another user's row.
func (r *SubscriptionRepository) GetByOwnerAndToken(ctx context.Context, userID, token string) (*types.Subscription, error) {
	var sub types.Subscription
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, token, status, last_amount_gross, last_payment_id,
		        last_event_payload, cancelled_at, cancel_reason, created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = $1 AND token = $2`,
		userID, token,
	).Scan(
		&sub.ID, &sub.UserID, &sub.Token, &sub.Status, &sub.LastAmountGross,
		&sub.LastPaymentID, &sub.LastEventPayload, &sub.CancelledAt,
		&sub.CancelReason, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription", err)
	}
	return &sub, nil
}

// MarkCancelledByID commits a user-initiated cancellation on a specific row.
// Unlike MarkCancelledByToken, a missing row here is an error: the caller
// just loaded it, so zero rows affected means something is genuinely wrong.
func (r *SubscriptionRepository) MarkCancelledByID(
	ctx context.Context,
	id, reason string,
	cancelledAt time.Time,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status        = $1,
		     cancelled_at  = $2,
		     cancel_reason = $3,
		     updated_at    = NOW()
		 WHERE id = $4`,
		types.SubStatusCancelled,
		cancelledAt,
		reason,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit local cancellation", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription disappeared during cancellation", nil)
	}
	return nil
}
