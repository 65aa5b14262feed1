package types

import "time"

// SubscriptionStatus is the lifecycle state of a recurring-billing agreement.
type SubscriptionStatus string

const (
	SubStatusTrial     SubscriptionStatus = "trial"
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusPastDue   SubscriptionStatus = "past_due"
	SubStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is the core domain entity: one recurring-billing agreement
// between an application user and the payment gateway, correlated by the
// gateway-issued subscription token.
//
// Rows are never deleted, only transitioned. Mutation happens exclusively
// through the billing reconciler (gateway notifications) and the cancellation
// handler (user-initiated).
type Subscription struct {
	ID     string             `json:"id" db:"id"`
	UserID string             `json:"user_id" db:"user_id"`
	Token  string             `json:"token" db:"token"`
	Status SubscriptionStatus `json:"status" db:"status"`

	// Last observed payment details. Amounts are kept as the gateway's
	// decimal strings; this service never does arithmetic on them.
	LastAmountGross  string `json:"last_amount_gross" db:"last_amount_gross"`
	LastPaymentID    string `json:"last_payment_id" db:"last_payment_id"`
	LastEventPayload string `json:"-" db:"last_event_payload"`

	CancelledAt  *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason string     `json:"cancel_reason,omitempty" db:"cancel_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AnonymousPurchase is a completed payment that could not be attributed to an
// application account at notification time. It is keyed by the purchaser's
// email and consumed later by the account-linking flow, which is outside this
// service. Immutable once created.
type AnonymousPurchase struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PaymentID    string    `json:"payment_id" db:"payment_id"`
	AmountGross  string    `json:"amount_gross" db:"amount_gross"`
	PurchaseKind string    `json:"purchase_kind" db:"purchase_kind"`
	PaidAt       time.Time `json:"paid_at" db:"paid_at"`
	RawPayload   string    `json:"-" db:"raw_payload"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
