package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mcio.dev/core/internal/logging"
)

// ObservationChannel dials out to the simulator's observation server as a
// subscriber (spec §4.B: the observation channel connects and subscribes).
// Received frames are delivered through Recv, which blocks until a frame
// arrives, the connection closes, or the ctx passed to Recv is canceled.
type ObservationChannel struct {
	addr string
	log  *logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	frames chan []byte
	errs   chan error
}

// NewObservationChannel constructs an unconnected ObservationChannel that
// will dial addr once Bind is called.
func NewObservationChannel(addr string, log *logging.Logger) *ObservationChannel {
	if log == nil {
		log = logging.L()
	}
	return &ObservationChannel{
		addr:   addr,
		log:    log.With(logging.String("component", "observation_channel")),
		frames: make(chan []byte, sendBufferSize),
		errs:   make(chan error, 1),
	}
}

// Bind dials the simulator's observation server, retrying with backoff
// until ctx is done or the connection succeeds. A successful Bind starts the
// background reader pump that feeds Recv.
func (c *ObservationChannel) Bind(ctx context.Context) error {
	backoff := 50 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+c.addr+"/", nil)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.log.Info("observation channel connected", logging.String("addr", c.addr))
			go c.readPump(conn)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (c *ObservationChannel) readPump(conn *websocket.Conn) {
	waitDuration := time.Duration(pongWaitMult) * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	for {
		messageType, msg, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("observation channel disconnected", logging.Error(err))
			select {
			case c.errs <- err:
			default:
			}
			close(c.frames)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
		if messageType != websocket.BinaryMessage {
			continue
		}
		c.frames <- msg
	}
}

// Recv blocks until the next observation frame, the connection closes, or
// ctx is canceled.
func (c *ObservationChannel) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.frames:
		if !ok {
			return nil, ErrTransportClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close disconnects from the simulator's observation server.
func (c *ObservationChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
