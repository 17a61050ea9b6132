package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mcio.dev/core/internal/logging"
	"mcio.dev/core/internal/websockettest"
)

func TestActionChannelPublishRequiresSubscriber(t *testing.T) {
	ch := NewActionChannel("127.0.0.1:0", logging.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Bind(ctx); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ch.Close()

	if err := ch.Publish([]byte("hello")); err != ErrNoSubscriber {
		t.Fatalf("Publish with no subscriber = %v, want ErrNoSubscriber", err)
	}
}

func TestActionChannelPublishDeliversToSubscriber(t *testing.T) {
	ch := NewActionChannel("127.0.0.1:0", logging.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Bind(ctx); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ch.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ch.Addr()+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForSubscriber(t, ch)

	if err := ch.Publish([]byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want BinaryMessage", msgType)
	}
	if string(msg) != "hello" {
		t.Fatalf("message = %q, want %q", msg, "hello")
	}
}

func TestActionChannelCloseDisconnectsSubscribers(t *testing.T) {
	ch := NewActionChannel("127.0.0.1:0", logging.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Bind(ctx); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ch.Addr()+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSubscriber(t, ch)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := ch.Publish([]byte("x")); err != ErrTransportClosed {
		t.Fatalf("Publish after Close = %v, want ErrTransportClosed", err)
	}
}

func TestObservationChannelRecvDeliversFrames(t *testing.T) {
	upgrade := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrade.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		serverConnCh <- conn
	}))
	defer server.Close()

	addr := strings.TrimPrefix(server.URL, "http://")
	oc := NewObservationChannel(addr, logging.NewTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := oc.Bind(ctx); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer oc.Close()

	serverConn := <-serverConnCh
	defer serverConn.Close()

	if err := serverConn.WriteMessage(websocket.BinaryMessage, []byte("obs-frame")); err != nil {
		t.Fatalf("server write: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	msg, err := oc.Recv(recvCtx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(msg) != "obs-frame" {
		t.Fatalf("Recv = %q, want %q", msg, "obs-frame")
	}
}

// TestActionChannelDropsUnresponsiveSubscriber simulates a simulator that
// stops answering pings (e.g. wedged or network-partitioned) and asserts the
// action channel's read-deadline watchdog eventually removes it, rather than
// leaking a subscriber slot forever.
func TestActionChannelDropsUnresponsiveSubscriber(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the real ping/pong watchdog timeout")
	}

	ch := NewActionChannel("127.0.0.1:0", logging.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Bind(ctx); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ch.Close()

	conn, _, err := websockettest.DialIgnoringPongs("ws://"+ch.Addr()+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForSubscriber(t, ch)

	deadline := time.Now().Add(time.Duration(pongWaitMult)*pingInterval + 5*time.Second)
	for time.Now().Before(deadline) {
		if ch.SubscriberCount() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("unresponsive subscriber was never dropped")
}

func waitForSubscriber(t *testing.T, ch *ActionChannel) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ch.SubscriberCount() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for subscriber to register")
}
