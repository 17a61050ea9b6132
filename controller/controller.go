// Package controller implements the concurrency and ordering brain of the
// core: it owns a Transport, an action queue, and an observation
// LatestSlot, runs the ActionPump/ObservationPump workers, assigns
// sequence numbers, and exposes the synchronous step primitive
// (spec §4.D, Component D).
package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goerrors "github.com/pkg/errors"

	"mcio.dev/core/codec"
	"mcio.dev/core/internal/config"
	"mcio.dev/core/internal/logging"
	"mcio.dev/core/internal/metrics"
	"mcio.dev/core/internal/replay"
	"mcio.dev/core/latestslot"
	"mcio.dev/core/transport"
)

// Conn is the transport surface the Controller depends on. transport.Transport
// satisfies it; tests substitute an in-memory fake to exercise the pumps and
// state machine without opening real sockets.
type Conn interface {
	Bind(ctx context.Context) error
	Send(data []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Controller owns every moving part described in spec §4.D.
type Controller struct {
	id  string
	cfg *config.Config
	log *logging.Logger
	met *metrics.Controller

	conn Conn

	actions *actionQueue
	obs     *latestslot.Slot[*codec.ObservationPacket]

	// recorder is nil unless the caller opts into observation-stream
	// capture via SetRecorder; *replay.Recorder is nil-safe so every
	// call site below can invoke it unconditionally.
	recorder *replay.Recorder

	mu    sync.Mutex
	state State

	actionSeqNext       uint64
	actionSeqLastQueued uint64

	obsSeqLastReceived  uint64
	obsReceivedSeen     bool
	obsSeqLastProcessed uint64
	obsProcessedSeen    bool

	pumpCtx    context.Context
	pumpCancel context.CancelFunc
	workersWG  sync.WaitGroup

	shutdownOnce sync.Once

	// Plain atomic tallies mirroring the Prometheus counters in met, kept
	// so Snapshot (used by internal/adminapi) doesn't need to reach into
	// the Prometheus client's internal representation to read a counter.
	dropCount      uint64
	displacedCount uint64
	skipCount      uint64
	timeoutCount   uint64
}

// Snapshot is a point-in-time read of Controller state and counters, for
// the read-only admin HTTP surface (spec.md AMBIENT STACK, internal/adminapi).
type Snapshot struct {
	State                string `json:"state"`
	ActionSeqNext        uint64 `json:"action_seq_next"`
	ObsSeqLastReceived   uint64 `json:"obs_seq_last_received"`
	ObsSeqLastProcessed  uint64 `json:"obs_seq_last_processed"`
	ObservationDropped   uint64 `json:"observation_dropped_total"`
	ObservationDisplaced uint64 `json:"observation_displaced_total"`
	MatchSkipTotal       uint64 `json:"match_skip_total"`
	MatchTimeoutTotal    uint64 `json:"match_timeout_total"`
}

// Snapshot reports the Controller's current lifecycle state and counters.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		State:               c.state.String(),
		ActionSeqNext:       c.actionSeqNext,
		ObsSeqLastReceived:  c.obsSeqLastReceived,
		ObsSeqLastProcessed: c.obsSeqLastProcessed,
	}
	c.mu.Unlock()
	s.ObservationDropped = atomic.LoadUint64(&c.dropCount)
	s.ObservationDisplaced = atomic.LoadUint64(&c.displacedCount)
	s.MatchSkipTotal = atomic.LoadUint64(&c.skipCount)
	s.MatchTimeoutTotal = atomic.LoadUint64(&c.timeoutCount)
	return s
}

// New constructs a Controller bound to real loopback sockets per cfg. If
// cfg.ReplayDir is set, observation-stream recording is attached
// automatically; a recorder that fails to open only logs a warning, since
// diagnostics capture must never block the core from starting.
func New(cfg *config.Config, log *logging.Logger, reg metrics.Registry) *Controller {
	if log == nil {
		log = logging.L()
	}
	id := uuid.New().String()
	t := transport.New(transport.Config{
		ActionAddr:      cfg.ActionAddr(),
		ObservationAddr: cfg.ObservationAddr(),
		SettleInterval:  cfg.SettleInterval,
		Logger:          log,
	})
	c := newWithConn(t, cfg, log, reg, id)

	if cfg.ReplayDir != "" {
		path := filepath.Join(cfg.ReplayDir, fmt.Sprintf("observations-%s.bin.sz", id))
		rec, err := replay.NewRecorder(path, nil)
		if err != nil {
			log.Warn("replay recorder disabled: failed to open", logging.Error(err))
		} else {
			c.SetRecorder(rec)
		}
	}
	return c
}

// NewWithConn builds a Controller around a caller-supplied Conn instead of a
// real loopback Transport. Exported so other packages in this module (and
// tests outside this package) can exercise the Controller against an
// in-memory fake without opening sockets.
func NewWithConn(conn Conn, cfg *config.Config, log *logging.Logger, reg metrics.Registry) *Controller {
	if log == nil {
		log = logging.L()
	}
	return newWithConn(conn, cfg, log, reg, uuid.New().String())
}

// newWithConn is the shared constructor used by New, NewWithConn, and
// in-package tests that substitute a fake Conn.
func newWithConn(conn Conn, cfg *config.Config, log *logging.Logger, reg metrics.Registry, id string) *Controller {
	c := &Controller{
		id:            id,
		cfg:           cfg,
		log:           log.With(logging.String("component", "controller"), logging.String("instance", id)),
		met:           metrics.New(reg, id),
		conn:          conn,
		actions:       newActionQueue(),
		obs:           latestslot.New[*codec.ObservationPacket](),
		state:         StateInit,
		actionSeqNext: 1,
	}
	return c
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	c.log.Info("controller state transition", logging.String("from", prev.String()), logging.String("to", s.String()))
}

// State returns the Controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) running() bool {
	return c.State() == StateRunning
}

// Start binds the transport, waits out the settle window, then launches
// ActionPump and ObservationPump and returns. Calling Start more than once
// is a programming error and returns ErrInvalidState.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInit {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.mu.Unlock()

	if err := c.conn.Bind(ctx); err != nil {
		return err
	}
	c.setState(StateBound)

	c.pumpCtx, c.pumpCancel = context.WithCancel(context.Background())

	c.workersWG.Add(2)
	go c.actionPump()
	go c.observationPump()

	c.setState(StateRunning)
	c.throughputLoop()
	return nil
}

// throughputLoop starts the periodic log-line goroutine if configured.
func (c *Controller) throughputLoop() {
	if c.cfg.ThroughputWindow <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.cfg.ThroughputWindow)
		defer ticker.Stop()
		for {
			select {
			case <-c.pumpCtx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				actionSeq := c.actionSeqNext
				obsSeq := c.obsSeqLastReceived
				c.mu.Unlock()
				c.log.Info("throughput",
					logging.Int64("action_seq_next", int64(actionSeq)),
					logging.Int64("obs_seq_last_received", int64(obsSeq)),
				)
			}
		}
	}()
}

// SendAction stamps action.sequence and enqueues it for ActionPump. It
// never blocks and never suspends the caller (spec §5).
func (c *Controller) SendAction(pkt *codec.ActionPacket) (uint64, error) {
	if !c.running() {
		return 0, ErrInvalidState
	}

	c.mu.Lock()
	seq := c.actionSeqNext
	c.actionSeqNext++
	c.actionSeqLastQueued = seq
	c.mu.Unlock()

	pkt.Sequence = seq
	pkt.ProtocolVersion = c.cfg.ProtocolVersion
	c.actions.Enqueue(pkt)
	return seq, nil
}

// RecvObservation blocks for the next observation, updating drop
// statistics against obs_seq_last_processed. It returns ErrControllerClosed
// once the Controller is shutting down or closed, including when called
// concurrently with Shutdown.
func (c *Controller) RecvObservation() (*codec.ObservationPacket, error) {
	switch c.State() {
	case StateInit, StateBound:
		return nil, ErrInvalidState
	case StateShuttingDown, StateClosed:
		return nil, ErrControllerClosed
	}
	obs, ok := c.obs.Get()
	if !ok {
		return nil, ErrControllerClosed
	}
	c.recordProcessed(obs)
	return obs, nil
}

// TryRecvObservation is the non-blocking form of RecvObservation.
func (c *Controller) TryRecvObservation() (*codec.ObservationPacket, bool) {
	if s := c.State(); s == StateInit || s == StateBound {
		return nil, false
	}
	obs, ok := c.obs.TryGet()
	if !ok {
		return nil, false
	}
	c.recordProcessed(obs)
	return obs, true
}

func (c *Controller) recordProcessed(obs *codec.ObservationPacket) {
	c.mu.Lock()
	if c.obsProcessedSeen && obs.Sequence > c.obsSeqLastProcessed+1 {
		gap := obs.Sequence - c.obsSeqLastProcessed - 1
		c.met.ObservationDropped.Add(float64(gap))
		atomic.AddUint64(&c.dropCount, gap)
	}
	c.obsSeqLastProcessed = obs.Sequence
	c.obsProcessedSeen = true
	c.mu.Unlock()
}

// SendAndRecvMatch is the synchronous step primitive (spec §1 point 4,
// §4.D): it dispatches action, then skips stale observations until one
// whose last_action_sequence has caught up, bounded by cfg.MaxSkipIters to
// guard against a simulator-restart pathology that would otherwise spin
// forever (spec §7, SimulatorRestart). With cfg.MatchSequences false it
// returns the next observation without comparing sequences.
func (c *Controller) SendAndRecvMatch(pkt *codec.ActionPacket) (*codec.ObservationPacket, error) {
	seq, err := c.SendAction(pkt)
	if err != nil {
		return nil, err
	}
	if !c.cfg.MatchSequences {
		return c.RecvObservation()
	}

	maxIters := c.cfg.MaxSkipIters
	if maxIters <= 0 {
		maxIters = config.DefaultMaxSkipIterations
	}

	for i := 0; i < maxIters; i++ {
		obs, err := c.RecvObservation()
		if err != nil {
			return nil, err
		}
		if obs.LastActionSequence >= seq {
			return obs, nil
		}
		c.met.MatchSkipTotal.Inc()
		atomic.AddUint64(&c.skipCount, 1)
		c.log.Debug("Skip-State",
			logging.Int64("action_sequence", int64(seq)),
			logging.Int64("observation_last_action_sequence", int64(obs.LastActionSequence)),
		)
	}

	c.met.MatchTimeoutTotal.Inc()
	atomic.AddUint64(&c.timeoutCount, 1)
	return nil, ErrMatchTimeout
}

// Shutdown stops both workers, closes the transport and observation slot,
// and joins. It is idempotent; callers may invoke it any number of times
// and from any goroutine, including one racing a blocked RecvObservation.
func (c *Controller) Shutdown() error {
	var closeErr error
	c.shutdownOnce.Do(func() {
		c.setState(StateShuttingDown)
		c.actions.Close()
		c.obs.Close()
		closeErr = c.conn.Close()
		if err := c.recorder.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		if c.pumpCancel != nil {
			c.pumpCancel()
		}
		c.workersWG.Wait()
		c.setState(StateClosed)
	})
	return closeErr
}

// ID returns the Controller's generated instance identifier.
func (c *Controller) ID() string { return c.id }

// SetRecorder attaches an optional observation-stream recorder. Disabled
// (nil) by default; call before Start. Not safe to call concurrently with
// ObservationPump once running.
func (c *Controller) SetRecorder(r *replay.Recorder) {
	c.recorder = r
}

func (c *Controller) actionPump() {
	defer c.workersWG.Done()
	for {
		pkt, ok := c.actions.Dequeue()
		if !ok {
			c.log.Debug("action pump exiting: queue closed")
			return
		}

		wire, err := codec.EncodeAction(pkt)
		if err != nil {
			c.log.Error("action pump encode failed", logging.Error(err))
			continue
		}

		if err := c.conn.Send(wire); err != nil {
			if goerrors.Is(err, transport.ErrNoSubscriber) {
				c.log.Debug("action dropped: no subscriber connected", logging.Int64("sequence", int64(pkt.Sequence)))
				continue
			}
			if goerrors.Is(err, transport.ErrTransportClosed) {
				c.log.Debug("action pump exiting: transport closed")
				return
			}
			c.log.Error("action pump send failed", logging.Error(err))
			return
		}

		c.met.ActionSequence.Set(float64(pkt.Sequence))
	}
}

func (c *Controller) observationPump() {
	defer c.workersWG.Done()
	for {
		wire, err := c.conn.Recv(c.pumpCtx)
		if err != nil {
			if goerrors.Is(err, transport.ErrTransportClosed) || goerrors.Is(err, context.Canceled) {
				c.log.Debug("observation pump exiting: transport closed")
				return
			}
			c.log.Warn("observation pump recv error", logging.Error(err))
			continue
		}

		obs, err := codec.DecodeObservation(wire, c.cfg.ProtocolVersion)
		if err != nil {
			if goerrors.Is(err, codec.ErrVersionMismatch) {
				c.log.Error("fatal protocol version mismatch, shutting down", logging.Error(err))
				go func() { _ = c.Shutdown() }()
				return
			}
			c.log.Warn("dropping undecodable observation", logging.Error(err))
			continue
		}

		if err := c.recorder.RecordObservation(obs.Sequence, wire); err != nil {
			c.log.Warn("replay recorder write failed", logging.Error(err))
		}

		c.mu.Lock()
		if c.obsReceivedSeen && obs.Sequence > c.obsSeqLastReceived+1 {
			gap := obs.Sequence - c.obsSeqLastReceived - 1
			c.log.Info("DropDetected", logging.Int64("gap", int64(gap)), logging.Int64("sequence", int64(obs.Sequence)))
		}
		c.obsSeqLastReceived = obs.Sequence
		c.obsReceivedSeen = true
		c.mu.Unlock()

		if displaced := c.obs.Put(obs); displaced {
			c.met.ObservationDisplaced.Inc()
			atomic.AddUint64(&c.displacedCount, 1)
		}
		c.met.ObservationSequence.Set(float64(obs.Sequence))
	}
}
