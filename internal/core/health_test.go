package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeProbe struct {
	name string
	err  error
}

func (p *fakeProbe) Name() string                    { return p.name }
func (p *fakeProbe) Check(ctx context.Context) error { return p.err }

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{&fakeProbe{name: "database"}}

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy status, got %q", resp.Status)
	}
	if resp.Components["database"].Status != "healthy" {
		t.Errorf("expected healthy database component, got %+v", resp.Components)
	}
}

func TestHandleHealth_UnhealthyProbeReturns503(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		&fakeProbe{name: "database", err: errors.New("connection refused")},
	}

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %q", resp.Status)
	}
}
