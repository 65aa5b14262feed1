package external

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scribepay/internal/types"
)

// IdentityClientConfig holds the configuration for creating an IdentityClient.
type IdentityClientConfig struct {
	BaseURL string
	Logger  *slog.Logger
}

// IdentityClient resolves bearer credentials against the identity service's
// token introspection endpoint. It satisfies the core.Authenticator interface
// consumed by the auth middleware.
type IdentityClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewIdentityClient creates a new IdentityClient. The httpClient timeout
// should come from IdentityConfig.Timeout; introspection sits on the hot path
// of every authenticated request and must fail fast.
func NewIdentityClient(httpClient *http.Client, cfg IdentityClientConfig, opts ...BaseClientOption) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"identity",
		RetryPolicy{MaxRetries: 1, MinWait: 100 * time.Millisecond, MaxWait: 1 * time.Second},
		"ScribePay/1.0",
		opts...,
	)

	return &IdentityClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// introspectRequest is the request body for the token introspection endpoint.
type introspectRequest struct {
	Token string `json:"token"`
}

// introspectResponse is the identity service's introspection result.
type introspectResponse struct {
	Active  bool   `json:"active"`
	Expired bool   `json:"expired"`
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
}

// ResolveToken resolves a bearer token to the Actor it belongs to.
//
// Inactive tokens map to auth_token_invalid (or auth_token_expired when the
// service says so); transport-level failures map to upstream errors so the
// middleware can log the real cause without granting access.
func (c *IdentityClient) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	body, err := json.Marshal(introspectRequest{Token: token})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode introspection request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/tokens/introspect", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build introspection request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity service unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "credential could not be introspected", nil)
	}

	var decoded introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "unreadable introspection response", err)
	}

	if !decoded.Active {
		if decoded.Expired {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "credential has expired", nil)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "credential is not active", nil)
	}
	if decoded.UserID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "introspection returned no subject", nil)
	}

	return &types.Actor{ID: decoded.UserID, Email: decoded.Email}, nil
}
