// Package handlers contains the HTTP handler implementations for the
// ScribePay API.
//
// The webhook handler is NOT behind auth middleware. The gateway calls it
// directly; authenticity comes from the MD5 parameter signature each
// notification carries.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"scribepay/internal/core"
	"scribepay/internal/payfast"
	"scribepay/internal/types"
)

// maxNotificationBodySize caps the gateway notification payload (64 KB).
// Real notifications are a few hundred bytes of form data.
const maxNotificationBodySize = 64 * 1024

// NotificationApplier applies a verified notification to persisted state.
// This is the subset of billing.Reconciler the webhook handler needs.
type NotificationApplier interface {
	Apply(ctx context.Context, n *payfast.Notification, rawPayload string) error
}

// PayfastWebhookHandler receives asynchronous payment notifications from the
// gateway. It is unauthenticated but verifies the embedded signature before
// touching any state.
type PayfastWebhookHandler struct {
	applier    NotificationApplier
	merchantID string
	passphrase types.SecretString
	logger     *slog.Logger
}

// NewPayfastWebhookHandler creates a PayfastWebhookHandler with the provided
// dependencies.
func NewPayfastWebhookHandler(
	applier NotificationApplier,
	merchantID string,
	passphrase types.SecretString,
	logger *slog.Logger,
) *PayfastWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayfastWebhookHandler{
		applier:    applier,
		merchantID: merchantID,
		passphrase: passphrase,
		logger:     logger,
	}
}

// RegisterRoutes mounts the gateway notification endpoint. Kept separate from
// CancellationHandler.RegisterRoutes because webhook routes are public.
func (h *PayfastWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/payfast", h.Handle)
}

// Handle processes an incoming gateway notification:
//
//  1. Reads the form-encoded body with a size limit.
//  2. Rejects payloads declaring a foreign merchant_id.
//  3. Recomputes the parameter signature and compares it in constant time.
//  4. Rejects events carrying no purchaser identity at all (no user ID and
//     no email to attribute a pending purchase to).
//  5. Applies the notification through the reconciler.
//
// Rejections answer with a plain-text 400. Only a persistence failure
// answers 5xx, which is the signal for the gateway to redeliver.
func (h *PayfastWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotificationBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read notification body",
			"error", err,
		)
		core.Text(w, http.StatusBadRequest, "unreadable body")
		return
	}

	values, err := url.ParseQuery(string(payload))
	if err != nil {
		h.logger.WarnContext(r.Context(), "malformed notification body",
			"error", err,
		)
		core.Text(w, http.StatusBadRequest, "malformed body")
		return
	}

	n := payfast.ParseNotification(values)

	if n.MerchantID != h.merchantID {
		h.logger.WarnContext(r.Context(), "notification merchant mismatch",
			"code", string(types.ErrCodeWebhookMerchantMismatch),
			"merchant_id", n.MerchantID,
		)
		core.Text(w, http.StatusBadRequest, "merchant mismatch")
		return
	}

	if !payfast.VerifySignature(n.Params, h.passphrase.Unmask()) {
		h.logger.WarnContext(r.Context(), "notification signature verification failed",
			"code", string(types.ErrCodeWebhookBadSignature),
			"token", n.Token,
			"payment_status", n.PaymentStatus,
		)
		core.Text(w, http.StatusBadRequest, "bad signature")
		return
	}

	if !n.HasIdentity() {
		h.logger.WarnContext(r.Context(), "notification carries no purchaser identity",
			"code", string(types.ErrCodeWebhookMissingIdentity),
			"payment_status", n.PaymentStatus,
			"payment_id", n.PaymentID,
		)
		core.Text(w, http.StatusBadRequest, "missing purchaser identity")
		return
	}

	h.logger.InfoContext(r.Context(), "processing gateway notification",
		"payment_status", n.PaymentStatus,
		"token", n.Token,
		"payment_id", n.PaymentID,
	)

	if err := h.applier.Apply(r.Context(), n, string(payload)); err != nil {
		h.logger.ErrorContext(r.Context(), "notification persistence failed",
			"payment_status", n.PaymentStatus,
			"token", n.Token,
			"error", err,
		)
		// 5xx tells the gateway to redeliver; every transition is
		// idempotent so the retry is safe.
		core.Text(w, http.StatusInternalServerError, "persistence failure")
		return
	}

	core.Text(w, http.StatusOK, "OK")
}
