// Package adminapi exposes a minimal read-only HTTP surface over a
// Controller for operational visibility (supplemented, not in spec.md;
// spec §1 Non-goals excludes remote/multi-peer routing, and this surface
// injects no actions, so it does not constitute one — it only reads back
// the Controller's already-computed state). Grounded on the teacher's
// internal/http handler set, trimmed to the two read-only routes this
// domain needs.
package adminapi

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"mcio.dev/core/controller"
	"mcio.dev/core/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatsProvider is the minimal surface the admin handlers depend on,
// satisfied by *controller.Controller; tests substitute a fake.
type StatsProvider interface {
	Snapshot() controller.Snapshot
}

// Options configures a HandlerSet.
type Options struct {
	Logger     *logging.Logger
	Controller StatsProvider
	TimeSource func() time.Time
}

// HandlerSet bundles the admin operational handlers.
type HandlerSet struct {
	logger *logging.Logger
	ctrl   StatsProvider
	now    func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{logger: logger, ctrl: opts.Controller, now: now}
}

// Register attaches both routes to mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.HealthHandler())
	mux.HandleFunc("/statz", h.StatsHandler())
}

// HealthHandler reports whether the admin surface is reachable at all; it
// does not imply the Controller is RUNNING, only that the process is up.
func (h *HandlerSet) HealthHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// StatsHandler reports the Controller's state machine phase and sequence /
// drop / displacement counters as JSON.
func (h *HandlerSet) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.ctrl == nil {
			http.Error(w, "no controller attached", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
