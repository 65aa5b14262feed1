package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scribepay/internal/payfast"
	"scribepay/internal/types"
)

// payfastAPIBase is the default base URL of the gateway's merchant API.
// Overridable in tests and via configuration.
const payfastAPIBase = "https://api.payfast.co.za"

// payfastAPIVersion is the gateway API version sent with every request.
const payfastAPIVersion = "v1"

// CancelResult reports the gateway's reaction to a cancellation request.
//
// Confirmed means the gateway cleanly acknowledged the cancellation. An
// unconfirmed result is NOT a failure: the caller is expected to proceed with
// the local cancellation either way and surface the ambiguity as a warning.
type CancelResult struct {
	Confirmed bool
	Detail    string
}

// PayfastClientConfig holds the configuration for creating a PayfastClient.
type PayfastClientConfig struct {
	MerchantID string
	Passphrase types.SecretString
	Sandbox    bool
	BaseURL    string // Override for testing; defaults to payfastAPIBase
	Logger     *slog.Logger
}

// PayfastClient calls the gateway's merchant API through BaseClient, routing
// all requests through the platform's resilience infrastructure (circuit
// breaker, retries, error mapping). API requests are authenticated with the
// same MD5-over-sorted-parameters signing scheme as inbound notifications,
// computed over the request headers plus the shared passphrase.
type PayfastClient struct {
	base       *BaseClient
	merchantID string
	passphrase types.SecretString
	sandbox    bool
	baseURL    string
	logger     *slog.Logger
	nowFn      func() time.Time // injected for deterministic signatures in tests
}

// NewPayfastClient creates a new PayfastClient. The httpClient timeout bounds
// each attempt; the cancellation flow sets it from GatewayConfig.CancelTimeout.
func NewPayfastClient(httpClient *http.Client, cfg PayfastClientConfig, opts ...BaseClientOption) *PayfastClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = payfastAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"payfast",
		DefaultRetryPolicy(),
		"ScribePay/1.0",
		opts...,
	)

	return &PayfastClient{
		base:       base,
		merchantID: cfg.MerchantID,
		passphrase: cfg.Passphrase,
		sandbox:    cfg.Sandbox,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
		nowFn:      time.Now,
	}
}

// payfastAPIResponse is the gateway's JSON response envelope.
type payfastAPIResponse struct {
	Code   json.Number `json:"code"`
	Status string      `json:"status"`
	Data   struct {
		Response json.RawMessage `json:"response"`
		Message  string          `json:"message"`
	} `json:"data"`
}

// CancelSubscription asks the gateway to stop the recurring-billing agreement
// behind token.
//
// Returns an error only when no usable response was obtained (transport
// failure, exhausted retries, open breaker). A decoded response that does not
// clearly report success yields (Confirmed=false, nil): the gateway answered,
// just not in a shape that can be trusted as confirmation. Callers must treat
// both cases as "proceed locally, warn the user".
func (c *PayfastClient) CancelSubscription(ctx context.Context, token string) (*CancelResult, error) {
	endpoint := fmt.Sprintf("%s/subscriptions/%s/cancel", c.baseURL, token)
	if c.sandbox {
		endpoint += "?testing=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build gateway cancellation request",
			err,
		)
	}

	timestamp := c.nowFn().UTC().Format("2006-01-02T15:04:05")
	headers := map[string]string{
		"merchant-id": c.merchantID,
		"version":     payfastAPIVersion,
		"timestamp":   timestamp,
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("signature", payfast.Sign(headers, c.passphrase.Unmask()))

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded payfastAPIResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&decoded); decodeErr != nil {
		// The gateway answered with something unparseable. Ambiguous, not fatal.
		c.logger.WarnContext(ctx, "gateway cancellation response could not be decoded",
			slog.Int("status_code", resp.StatusCode),
			slog.String("error", decodeErr.Error()),
		)
		return &CancelResult{
			Confirmed: false,
			Detail:    fmt.Sprintf("gateway returned HTTP %d with an unreadable body", resp.StatusCode),
		}, nil
	}

	if resp.StatusCode == http.StatusOK && strings.EqualFold(decoded.Status, "success") {
		return &CancelResult{Confirmed: true, Detail: decoded.Data.Message}, nil
	}

	detail := decoded.Data.Message
	if detail == "" {
		detail = fmt.Sprintf("gateway returned HTTP %d status %q", resp.StatusCode, decoded.Status)
	}
	c.logger.WarnContext(ctx, "gateway did not confirm cancellation",
		slog.Int("status_code", resp.StatusCode),
		slog.String("gateway_status", decoded.Status),
		slog.String("detail", detail),
	)
	return &CancelResult{Confirmed: false, Detail: detail}, nil
}
