package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"scribepay/internal/core"
	"scribepay/internal/external"
	"scribepay/internal/types"
)

// userCancelReason is recorded when the account owner, rather than the
// gateway, initiates the cancellation.
const userCancelReason = "user_requested"

// SubscriptionFinder looks up and locally cancels subscriptions. This is the
// subset of the subscription repository the cancellation handler needs.
type SubscriptionFinder interface {
	GetByOwnerAndToken(ctx context.Context, userID, token string) (*types.Subscription, error)
	MarkCancelledByID(ctx context.Context, id, reason string, cancelledAt time.Time) error
}

// GatewayCanceller asks the payment gateway to stop future charges.
type GatewayCanceller interface {
	CancelSubscription(ctx context.Context, token string) (*external.CancelResult, error)
}

// CancellationHandler lets an authenticated user cancel their own
// subscription. The local record is cancelled even when the gateway call
// fails or is ambiguous: a user who asked to stop paying must never keep
// being billed because an upstream was flaky. The outcome is surfaced as a
// warning instead.
type CancellationHandler struct {
	subs      SubscriptionFinder
	gateway   GatewayCanceller
	validator *core.Validator
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewCancellationHandler creates a CancellationHandler with the provided
// dependencies.
func NewCancellationHandler(
	subs SubscriptionFinder,
	gateway GatewayCanceller,
	validator *core.Validator,
	logger *slog.Logger,
) *CancellationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancellationHandler{
		subs:      subs,
		gateway:   gateway,
		validator: validator,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// RegisterRoutes mounts the cancellation endpoint. The caller is expected to
// mount this behind RequireAuth.
func (h *CancellationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/subscriptions/cancel", h.Cancel)
}

// cancelRequest is the JSON body of POST /v1/subscriptions/cancel.
type cancelRequest struct {
	SubscriptionToken string `json:"subscription_token" validate:"required,min=1,max=128"`
	Reason            string `json:"reason" validate:"omitempty,max=512"`
}

// cancelResponse reports the outcome of a cancellation. Warning is set when
// the local record was cancelled but the gateway did not cleanly confirm.
type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Cancel handles POST /v1/subscriptions/cancel.
//
// The subscription must belong to the authenticated user and still be active;
// anything else is a 404 so the endpoint does not confirm token existence to
// the wrong account. The gateway call happens first, then the local cancel is
// committed regardless of the gateway outcome. Only a local persistence
// failure is an error response.
func (h *CancellationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}

	var req cancelRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.SubscriptionToken) != req.SubscriptionToken ||
		strings.ContainsAny(req.SubscriptionToken, " \t\n") {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidToken,
			"subscription token is malformed",
			nil,
		))
		return
	}

	sub, err := h.subs.GetByOwnerAndToken(r.Context(), actor.ID, req.SubscriptionToken)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if sub.Status != types.SubStatusActive {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			"no active subscription for this token",
			nil,
		))
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = userCancelReason
	}

	var warning string
	var detail string
	result, gwErr := h.gateway.CancelSubscription(r.Context(), sub.Token)
	switch {
	case gwErr != nil:
		h.logger.WarnContext(r.Context(), "gateway cancellation call failed, cancelling locally anyway",
			"subscription_id", sub.ID,
			"error", gwErr,
		)
		warning = "the payment gateway could not be reached; local cancellation recorded, gateway state should be confirmed manually"
	case !result.Confirmed:
		h.logger.WarnContext(r.Context(), "gateway did not confirm cancellation, cancelling locally anyway",
			"subscription_id", sub.ID,
			"gateway_detail", result.Detail,
		)
		warning = "the payment gateway did not confirm the cancellation; local cancellation recorded, gateway state should be confirmed manually"
		detail = result.Detail
	default:
		detail = result.Detail
	}

	if err := h.subs.MarkCancelledByID(r.Context(), sub.ID, reason, h.nowFn().UTC()); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "subscription cancelled by owner",
		"subscription_id", sub.ID,
		"gateway_confirmed", warning == "",
	)

	core.JSON(w, r, http.StatusOK, cancelResponse{
		Success: true,
		Message: "subscription cancelled",
		Detail:  detail,
		Warning: warning,
	})
}
