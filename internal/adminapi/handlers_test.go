package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mcio.dev/core/controller"
)

type stubProvider struct {
	snapshot controller.Snapshot
}

func (s *stubProvider) Snapshot() controller.Snapshot { return s.snapshot }

func TestHealthHandlerReportsAlive(t *testing.T) {
	h := NewHandlerSet(Options{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	h.HealthHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "alive" {
		t.Fatalf("status = %q, want alive", body.Status)
	}
}

func TestStatsHandlerReturnsControllerSnapshot(t *testing.T) {
	provider := &stubProvider{snapshot: controller.Snapshot{
		State:                "RUNNING",
		ActionSeqNext:        42,
		ObsSeqLastReceived:   41,
		ObsSeqLastProcessed:  40,
		ObservationDropped:   2,
		ObservationDisplaced: 1,
		MatchSkipTotal:       3,
		MatchTimeoutTotal:    0,
	}}
	h := NewHandlerSet(Options{Controller: provider})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/statz", nil)

	h.StatsHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got controller.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != provider.snapshot {
		t.Fatalf("snapshot = %+v, want %+v", got, provider.snapshot)
	}
}

func TestStatsHandlerWithoutControllerReturns503(t *testing.T) {
	h := NewHandlerSet(Options{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/statz", nil)

	h.StatsHandler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRegisterAttachesBothRoutes(t *testing.T) {
	h := NewHandlerSet(Options{Controller: &stubProvider{}})
	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/statz"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
