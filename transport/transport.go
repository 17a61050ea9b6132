// Package transport implements the two loopback WebSocket sockets that
// carry the wire protocol (spec §4.B, Component B): the action channel,
// which this process binds and publishes on, and the observation channel,
// which this process dials and subscribes to. Both run over
// github.com/gorilla/websocket so the link benefits from standard framing,
// ping/pong keepalive, and close-handshake semantics instead of a raw TCP
// byte stream.
package transport

import (
	"context"
	"time"

	"mcio.dev/core/internal/logging"
)

// Transport bundles the action and observation channels behind the single
// Bind/Send/Recv/Close surface the Controller depends on.
type Transport struct {
	Action      *ActionChannel
	Observation *ObservationChannel

	settleInterval time.Duration
	log            *logging.Logger
}

// Config carries everything Transport needs to bind and connect.
type Config struct {
	ActionAddr      string
	ObservationAddr string
	SettleInterval  time.Duration
	Logger          *logging.Logger
}

// New constructs an unbound Transport from cfg.
func New(cfg Config) *Transport {
	log := cfg.Logger
	if log == nil {
		log = logging.L()
	}
	return &Transport{
		Action:         NewActionChannel(cfg.ActionAddr, log),
		Observation:    NewObservationChannel(cfg.ObservationAddr, log),
		settleInterval: cfg.SettleInterval,
		log:            log.With(logging.String("component", "transport")),
	}
}

// Bind starts the action channel listener, waits out the slow-joiner
// settle interval, and then connects the observation channel. The settle
// wait happens here rather than inside ActionChannel.Bind because it is a
// property of the pairing (give the simulator time to discover and
// subscribe to the action channel before we start depending on its
// observation stream), not of the action channel in isolation.
func (t *Transport) Bind(ctx context.Context) error {
	if err := t.Action.Bind(ctx); err != nil {
		return err
	}

	if t.settleInterval > 0 {
		select {
		case <-time.After(t.settleInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return t.Observation.Bind(ctx)
}

// ActionAddr returns the bound action listener's address.
func (t *Transport) ActionAddr() string {
	return t.Action.Addr()
}

// Send publishes an action frame. See ActionChannel.Publish for the
// no-blocking, lossy semantics.
func (t *Transport) Send(data []byte) error {
	return t.Action.Publish(data)
}

// Recv blocks for the next observation frame.
func (t *Transport) Recv(ctx context.Context) ([]byte, error) {
	return t.Observation.Recv(ctx)
}

// Close tears down both channels, observation first, and returns the first
// non-nil error.
func (t *Transport) Close() error {
	obsErr := t.Observation.Close()
	actErr := t.Action.Close()
	if obsErr != nil {
		return obsErr
	}
	return actErr
}
