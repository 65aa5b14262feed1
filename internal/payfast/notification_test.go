package payfast

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNotification_MapsRecognizedFields(t *testing.T) {
	form := url.Values{}
	form.Set("merchant_id", "10000100")
	form.Set("signature", "deadbeefdeadbeefdeadbeefdeadbeef")
	form.Set("payment_status", "COMPLETE")
	form.Set("token", "T1")
	form.Set("pf_payment_id", "pf-555")
	form.Set("amount_gross", "99.00")
	form.Set("custom_str1", "user-123")
	form.Set("custom_str2", "subscription_purchase")
	form.Set("email_address", "kid@example.com")
	form.Set("item_name", "Scribe Monthly")

	n := ParseNotification(form)

	assert.Equal(t, "10000100", n.MerchantID)
	assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeef", n.Signature)
	assert.Equal(t, "COMPLETE", n.PaymentStatus)
	assert.Equal(t, "T1", n.Token)
	assert.Equal(t, "pf-555", n.PaymentID)
	assert.Equal(t, "99.00", n.AmountGross)
	assert.Equal(t, "user-123", n.UserID)
	assert.Equal(t, "subscription_purchase", n.PurchaseKind)
	assert.Equal(t, "kid@example.com", n.Email)

	// Unrecognized fields survive untouched in Params for canonicalization.
	assert.Equal(t, "Scribe Monthly", n.Params["item_name"])
}

func TestNotification_Identity(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		email      string
		identified bool
		hasAnyone  bool
	}{
		{"identified user", "user-123", "kid@example.com", true, true},
		{"identified user without email", "user-123", "", true, true},
		{"anonymous purchaser", "", "kid@example.com", false, true},
		{"whitespace user id is anonymous", "   ", "kid@example.com", false, true},
		{"nobody", "", "", false, false},
		{"whitespace everywhere", " ", "\t", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Notification{UserID: tt.userID, Email: tt.email}
			assert.Equal(t, tt.identified, n.Identified())
			assert.Equal(t, tt.hasAnyone, n.HasIdentity())
		})
	}
}
