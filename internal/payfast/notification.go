package payfast

import (
	"net/url"
	"strings"
)

// Field names of the ITN form payload that this service interprets.
// Every other posted field is carried through untouched, both into the
// canonical string and into the stored raw payload.
const (
	FieldMerchantID    = "merchant_id"
	FieldSignature     = "signature"
	FieldPaymentStatus = "payment_status"
	FieldToken         = "token"
	FieldPaymentID     = "pf_payment_id"
	FieldAmountGross   = "amount_gross"
	FieldEmail         = "email_address"

	// custom_str1 carries the application user ID, set by the checkout flow
	// when the buyer already has an account. custom_str2 classifies the
	// purchase (e.g. "subscription_purchase").
	FieldUserID       = "custom_str1"
	FieldPurchaseKind = "custom_str2"
)

// Payment status values the gateway reports. Statuses outside this set are
// acknowledged and ignored so new gateway states don't bounce deliveries.
const (
	PaymentStatusComplete  = "COMPLETE"
	PaymentStatusCancelled = "CANCELLED"
	PaymentStatusFailed    = "FAILED"
)

// Notification is one parsed ITN delivery. It is ephemeral: the interpreted
// fields drive the state machine, Params feeds signature verification, and
// only the raw body is persisted (as audit payload on the affected row).
type Notification struct {
	MerchantID    string
	Signature     string
	PaymentStatus string
	Token         string
	PaymentID     string
	AmountGross   string
	UserID        string
	Email         string
	PurchaseKind  string

	// Params holds every posted field (first value per key), including ones
	// this service does not interpret.
	Params map[string]string
}

// ParseNotification extracts a Notification from a decoded form body.
func ParseNotification(form url.Values) *Notification {
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return &Notification{
		MerchantID:    params[FieldMerchantID],
		Signature:     params[FieldSignature],
		PaymentStatus: params[FieldPaymentStatus],
		Token:         params[FieldToken],
		PaymentID:     params[FieldPaymentID],
		AmountGross:   params[FieldAmountGross],
		UserID:        params[FieldUserID],
		Email:         params[FieldEmail],
		PurchaseKind:  params[FieldPurchaseKind],
		Params:        params,
	}
}

// Identified reports whether the notification is attributable to an existing
// application account.
func (n *Notification) Identified() bool {
	return strings.TrimSpace(n.UserID) != ""
}

// HasIdentity reports whether the notification can be attributed to anyone at
// all: an account (user ID) or a pending-purchase email. Events with neither
// are rejected before any state is touched.
func (n *Notification) HasIdentity() bool {
	return n.Identified() || strings.TrimSpace(n.Email) != ""
}
