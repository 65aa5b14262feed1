package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"scribepay/internal/types"
)

// PurchaseRepository stores completed payments that could not be attributed
// to an application account. Rows are immutable once created; the
// account-linking flow (outside this service) consumes them later.
type PurchaseRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewPurchaseRepository creates a PurchaseRepository backed by the given
// database connection (pool or transaction).
func NewPurchaseRepository(db DBTX, logger *slog.Logger) *PurchaseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseRepository{db: db, logger: logger}
}

// InsertAnonymous records an anonymous purchase. The (email, payment_id)
// uniqueness constraint absorbs redelivered notifications: a duplicate insert
// is a silent no-op, keeping the operation idempotent without read-then-write
// races.
func (r *PurchaseRepository) InsertAnonymous(ctx context.Context, p *types.AnonymousPurchase) error {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO anonymous_purchases
		     (id, email, payment_id, amount_gross, purchase_kind, paid_at, raw_payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (email, payment_id) DO NOTHING`,
		id,
		p.Email,
		p.PaymentID,
		p.AmountGross,
		p.PurchaseKind,
		p.PaidAt,
		p.RawPayload,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert anonymous purchase", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("duplicate anonymous purchase ignored",
			slog.String("email", p.Email),
			slog.String("payment_id", p.PaymentID),
		)
	}
	return nil
}
