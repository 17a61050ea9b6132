package environment

import (
	"context"
	"sync"
	"testing"
	"time"

	"mcio.dev/core/codec"
	"mcio.dev/core/controller"
	"mcio.dev/core/internal/config"
	"mcio.dev/core/internal/logging"
)

// fakeConn is a minimal in-memory controller.Conn, mirroring the one in the
// controller package's own tests but kept local here since that one is
// unexported.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	recvCh chan []byte
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{recvCh: make(chan []byte, 256)} }

func (f *fakeConn) Bind(ctx context.Context) error { return nil }

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-f.recvCh:
		if !ok {
			return nil, errClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.recvCh)
	return nil
}

func (f *fakeConn) push(data []byte) { f.recvCh <- data }

var errClosed = controller.ErrControllerClosed

func testConfig() *config.Config {
	return &config.Config{
		Host:            "localhost",
		ActionPort:      4001,
		ObservationPort: 8001,
		ProtocolVersion: 0,
		SettleInterval:  0,
		MatchSequences:  true,
		MaxSkipIters:    256,
	}
}

func encodeObs(t *testing.T, seq, lastAction uint64) []byte {
	t.Helper()
	wire, err := codec.EncodeObservation(&codec.ObservationPacket{
		Sequence:           seq,
		LastActionSequence: lastAction,
		Mode:               codec.ModeSync,
	}, false)
	if err != nil {
		t.Fatalf("EncodeObservation: %v", err)
	}
	return wire
}

func TestResetSendsClearInputAndReturnsMatchedObservation(t *testing.T) {
	conn := newFakeConn()
	ctrl := controller.NewWithConn(conn, testConfig(), logging.NewTestLogger(), nil)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var seen *codec.ObservationPacket
	env := New(ctrl, func(obs *codec.ObservationPacket) { seen = obs })
	t.Cleanup(func() { _ = env.Close() })

	done := make(chan struct{})
	go func() {
		for {
			conn.mu.Lock()
			n := len(conn.sent)
			conn.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		wire := conn.sent[0]
		action, err := codec.DecodeAction(wire, 0)
		if err != nil {
			t.Errorf("DecodeAction: %v", err)
			close(done)
			return
		}
		if !action.ClearInput {
			t.Errorf("Reset action ClearInput = false, want true")
		}
		conn.push(encodeObs(t, action.Sequence, action.Sequence))
		close(done)
	}()

	obs, err := env.Reset([]string{"/gamemode creative"})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	<-done
	if obs.LastActionSequence != 1 {
		t.Fatalf("last_action_sequence = %d, want 1", obs.LastActionSequence)
	}
	if seen != obs {
		t.Fatal("display sink was not invoked with the returned observation")
	}
}

func TestStepForwardsActionAndReturnsMatchedObservation(t *testing.T) {
	conn := newFakeConn()
	ctrl := controller.NewWithConn(conn, testConfig(), logging.NewTestLogger(), nil)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env := New(ctrl, nil)
	t.Cleanup(func() { _ = env.Close() })

	done := make(chan struct{})
	go func() {
		for {
			conn.mu.Lock()
			n := len(conn.sent)
			conn.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		action, err := codec.DecodeAction(conn.sent[0], 0)
		if err != nil {
			t.Errorf("DecodeAction: %v", err)
			close(done)
			return
		}
		conn.push(encodeObs(t, action.Sequence, action.Sequence))
		close(done)
	}()

	obs, err := env.Step(&codec.ActionPacket{Commands: []string{"/time set day"}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	<-done
	if obs.LastActionSequence != 1 {
		t.Fatalf("last_action_sequence = %d, want 1", obs.LastActionSequence)
	}
}

func TestCloseForwardsToControllerShutdown(t *testing.T) {
	conn := newFakeConn()
	ctrl := controller.NewWithConn(conn, testConfig(), logging.NewTestLogger(), nil)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env := New(ctrl, nil)

	if err := env.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ctrl.State() != controller.StateClosed {
		t.Fatalf("state = %v, want CLOSED", ctrl.State())
	}
	if err := env.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
