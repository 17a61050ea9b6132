package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mcio.dev/core/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWaitMult   = 2
	pingInterval   = 5 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// actionSubscriber is one simulator connection to the action channel.
type actionSubscriber struct {
	conn *websocket.Conn
	send chan []byte
	log  *logging.Logger
}

// ActionChannel binds a loopback listener that the simulator connects to as
// a WebSocket client in order to receive ActionPackets (spec §4.B: the
// action channel binds and publishes). Publish is fire-and-forget: a
// subscriber whose send buffer is full has its oldest-pending frame
// replaced rather than blocking the publisher, and a Publish with no
// subscriber connected is simply dropped (slow-joiner tolerance).
type ActionChannel struct {
	addr     string
	log      *logging.Logger
	server   *http.Server
	listener net.Listener

	mu          sync.Mutex
	subscribers map[*actionSubscriber]struct{}
	closed      bool

	boundAt time.Time
}

// NewActionChannel constructs an unbound ActionChannel listening at addr
// once Bind is called.
func NewActionChannel(addr string, log *logging.Logger) *ActionChannel {
	if log == nil {
		log = logging.L()
	}
	return &ActionChannel{
		addr:        addr,
		log:         log.With(logging.String("component", "action_channel")),
		subscribers: make(map[*actionSubscriber]struct{}),
	}
}

// Bind starts listening and returns once the listener is accepting
// connections. It does not wait out the settle interval; callers that need
// the slow-joiner grace period should sleep on config.DefaultSettleInterval
// themselves before the first Publish (spec §4.B).
func (c *ActionChannel) Bind(ctx context.Context) error {
	listener, err := net.Listen("tcp", c.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleSubscribe)
	c.server = &http.Server{Handler: mux}
	c.listener = listener
	c.boundAt = time.Now()

	go func() {
		if err := c.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("action channel listener stopped", logging.Error(err))
		}
	}()

	c.log.Info("action channel bound", logging.String("addr", c.addr))
	return nil
}

func (c *ActionChannel) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Error("action channel upgrade failed", logging.Error(err))
		return
	}

	sub := &actionSubscriber{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  c.log.With(logging.String("remote_addr", r.RemoteAddr)),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.subscribers[sub] = struct{}{}
	c.mu.Unlock()
	sub.log.Info("action channel subscriber connected")

	waitDuration := time.Duration(pongWaitMult) * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	// reader: the action channel is one-directional (publish-only), so
	// inbound frames are discarded; the loop exists solely to keep the
	// read deadline honest and to notice when the subscriber goes away.
	go func() {
		defer c.removeSubscriber(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.log.Debug("action channel subscriber disconnected", logging.Error(err))
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
		}
	}()

	go c.writePump(sub)
}

func (c *ActionChannel) writePump(sub *actionSubscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
		c.removeSubscriber(sub)
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				sub.log.Error("action channel write deadline failed", logging.Error(err))
				return
			}
			if err := sub.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				sub.log.Error("action channel write error", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				sub.log.Warn("action channel ping failure", logging.Error(err))
				return
			}
		}
	}
}

func (c *ActionChannel) removeSubscriber(sub *actionSubscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[sub]; ok {
		delete(c.subscribers, sub)
	}
}

// Publish sends data to every connected subscriber without blocking. It
// returns ErrNoSubscriber if nothing is connected yet, and ErrTransportClosed
// after Close. A subscriber whose outbound buffer is already full has its
// queued frame dropped in favor of the new one, since only the latest
// action matters to a simulator that paces itself.
func (c *ActionChannel) Publish(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrTransportClosed
	}
	if len(c.subscribers) == 0 {
		return ErrNoSubscriber
	}

	for sub := range c.subscribers {
		select {
		case sub.send <- data:
		default:
			select {
			case <-sub.send:
			default:
			}
			select {
			case sub.send <- data:
			default:
			}
		}
	}
	return nil
}

// Addr returns the bound listener's address, useful when addr was ":0".
func (c *ActionChannel) Addr() string {
	if c.listener == nil {
		return c.addr
	}
	return c.listener.Addr().String()
}

// SubscriberCount reports how many simulators are currently connected.
func (c *ActionChannel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

// Close stops accepting connections and disconnects every subscriber.
func (c *ActionChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*actionSubscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		close(sub.send)
	}

	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		return c.server.Shutdown(ctx)
	}
	return nil
}
