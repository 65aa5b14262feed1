// Package billing applies verified gateway notifications to persisted
// subscription state. It is the single place where payment lifecycle events
// become status transitions.
package billing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"scribepay/internal/payfast"
	"scribepay/internal/types"
)

// cancelReasonGateway is recorded when the gateway, rather than the user,
// reports a cancellation.
const cancelReasonGateway = "gateway_notification"

// SubscriptionStore is the subset of the subscription repository the
// reconciler needs.
type SubscriptionStore interface {
	UpsertActiveByToken(ctx context.Context, userID, token, amountGross, paymentID, rawPayload string) error
	MarkCancelledByToken(ctx context.Context, token, reason, rawPayload string, cancelledAt time.Time) (bool, error)
	MarkPastDueByToken(ctx context.Context, token, paymentID, rawPayload string) (bool, error)
}

// PurchaseStore records completed payments that have no account to attach to.
type PurchaseStore interface {
	InsertAnonymous(ctx context.Context, p *types.AnonymousPurchase) error
}

// Reconciler drives the subscription lifecycle state machine from gateway
// notifications. Every transition is safe to apply more than once with
// identical event content: the gateway delivers at-least-once, so a
// redelivered event must land on the same final state.
//
// The reconciler does NOT reorder out-of-order deliveries of different
// events for the same token; the last delivery wins. That is a documented
// simplification, not an oversight.
type Reconciler struct {
	subs      SubscriptionStore
	purchases PurchaseStore
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewReconciler creates a Reconciler with the provided stores.
func NewReconciler(subs SubscriptionStore, purchases PurchaseStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		subs:      subs,
		purchases: purchases,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Apply routes one verified notification to the matching transition.
// rawPayload is the verbatim request body, stored on the affected row for
// audit. Only persistence failures return an error; recognized no-ops
// (unknown token, unmodeled payment status) succeed so the gateway is not
// asked to redeliver an event that will never change anything.
func (r *Reconciler) Apply(ctx context.Context, n *payfast.Notification, rawPayload string) error {
	switch n.PaymentStatus {
	case payfast.PaymentStatusComplete:
		return r.applyComplete(ctx, n, rawPayload)

	case payfast.PaymentStatusCancelled:
		found, err := r.subs.MarkCancelledByToken(ctx, n.Token, cancelReasonGateway, rawPayload, r.nowFn().UTC())
		if err != nil {
			return err
		}
		if !found {
			// Already handled, or a token this service never issued.
			r.logger.InfoContext(ctx, "cancellation for unknown subscription token ignored",
				slog.String("token", n.Token),
			)
		}
		return nil

	case payfast.PaymentStatusFailed:
		found, err := r.subs.MarkPastDueByToken(ctx, n.Token, n.PaymentID, rawPayload)
		if err != nil {
			return err
		}
		if !found {
			r.logger.InfoContext(ctx, "payment failure for unknown subscription token ignored",
				slog.String("token", n.Token),
			)
		}
		return nil

	default:
		// Forward-compatible with gateway states not yet modeled.
		r.logger.InfoContext(ctx, "unmodeled payment status acknowledged without mutation",
			slog.String("payment_status", n.PaymentStatus),
			slog.String("token", n.Token),
		)
		return nil
	}
}

// applyComplete handles a successful payment: an idempotent activate-or-renew
// for identified users, or an anonymous purchase record keyed by email for
// buyers without an account. An anonymous purchase is never promoted to a
// subscription here; account linking is a collaborator's job.
func (r *Reconciler) applyComplete(ctx context.Context, n *payfast.Notification, rawPayload string) error {
	if n.Identified() {
		if err := r.subs.UpsertActiveByToken(ctx, strings.TrimSpace(n.UserID), n.Token, n.AmountGross, n.PaymentID, rawPayload); err != nil {
			return err
		}
		r.logger.InfoContext(ctx, "subscription activated",
			slog.String("user_id", strings.TrimSpace(n.UserID)),
			slog.String("token", n.Token),
			slog.String("amount_gross", n.AmountGross),
		)
		return nil
	}

	purchase := &types.AnonymousPurchase{
		Email:        strings.TrimSpace(n.Email),
		PaymentID:    n.PaymentID,
		AmountGross:  n.AmountGross,
		PurchaseKind: n.PurchaseKind,
		PaidAt:       r.nowFn().UTC(),
		RawPayload:   rawPayload,
	}
	if err := r.purchases.InsertAnonymous(ctx, purchase); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "anonymous purchase recorded",
		slog.String("email", purchase.Email),
		slog.String("payment_id", purchase.PaymentID),
	)
	return nil
}
