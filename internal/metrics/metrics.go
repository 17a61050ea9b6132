// Package metrics exposes Prometheus collectors for a Controller's
// sequence counters and drop/displacement/skip activity. Collectors are
// registered against a caller-supplied registry rather than the global
// default so multiple Controllers in one process (or in tests) never
// collide on metric names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the subset of prometheus.Registerer the Controller needs.
type Registry = prometheus.Registerer

// Controller bundles every collector a single Controller instance reports.
// Construct with New, which registers every collector with the supplied
// registry (when it is non-nil).
type Controller struct {
	ActionSequence       prometheus.Gauge
	ObservationSequence  prometheus.Gauge
	ObservationDropped   prometheus.Counter
	ObservationDisplaced prometheus.Counter
	MatchSkipTotal       prometheus.Counter
	MatchTimeoutTotal    prometheus.Counter
}

// New constructs a Controller's metric set labeled by instance ID so
// several Controllers can share one registry without name collisions.
func New(reg Registry, instanceID string) *Controller {
	labels := prometheus.Labels{"instance": instanceID}

	c := &Controller{
		ActionSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mcio_action_sequence",
			Help:        "Sequence number of the most recently sent ActionPacket.",
			ConstLabels: labels,
		}),
		ObservationSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mcio_observation_sequence",
			Help:        "Sequence number of the most recently received ObservationPacket.",
			ConstLabels: labels,
		}),
		ObservationDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcio_observation_dropped_total",
			Help:        "Observations inferred missing from a gap in the sequence stream.",
			ConstLabels: labels,
		}),
		ObservationDisplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcio_observation_displaced_total",
			Help:        "Observations overwritten in the latest-value slot before being read.",
			ConstLabels: labels,
		}),
		MatchSkipTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcio_match_skip_total",
			Help:        "Stale observations skipped while waiting for a sequence-matched reply.",
			ConstLabels: labels,
		}),
		MatchTimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "mcio_match_timeout_total",
			Help:        "send_and_recv_match calls that exhausted the skip budget.",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.ActionSequence,
			c.ObservationSequence,
			c.ObservationDropped,
			c.ObservationDisplaced,
			c.MatchSkipTotal,
			c.MatchTimeoutTotal,
		)
	}
	return c
}
