package callclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Signaler is the signaling transport the session runs on. Channel is
// the production implementation; tests substitute an in-memory one.
type Signaler interface {
	// Connect starts the transport. It returns immediately; use
	// WaitConnected to block until the socket is up.
	Connect(ctx context.Context) error
	WaitConnected(ctx context.Context) error
	Connected() bool
	// Emit sends a named event. The payload must marshal to a JSON
	// object; the event name is injected as its "type" field.
	Emit(event string, payload any) error
	On(event string, fn func(json.RawMessage))
	OnConnect(fn func())
	OnDisconnect(fn func())
	Close() error
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Channel is a websocket Signaler that redials with exponential backoff
// until Close or context cancellation. Handlers run on the read
// goroutine, one event at a time.
type Channel struct {
	url     string
	dialer  *websocket.Dialer
	backoff Backoff

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	closed       bool
	ready        chan struct{}
	handlers     map[string][]func(json.RawMessage)
	onConnect    []func()
	onDisconnect []func()
	cancel       context.CancelFunc
	send         chan []byte
}

type ChannelOption func(*Channel)

func WithBackoff(b Backoff) ChannelOption {
	return func(c *Channel) { c.backoff = b }
}

func WithDialer(d *websocket.Dialer) ChannelOption {
	return func(c *Channel) { c.dialer = d }
}

// NewChannel prepares a transport for the given ws:// or wss:// URL.
// The access token travels in the URL query, matching the server's
// websocket auth fallback.
func NewChannel(url string, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:      url,
		dialer:   websocket.DefaultDialer,
		backoff:  DefaultBackoff(),
		ready:    make(chan struct{}),
		handlers: make(map[string][]func(json.RawMessage)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("channel closed")
	}
	if c.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

// run dials, pumps until the socket drops, then redials with backoff.
func (c *Channel) run(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if c.backoff.Exhausted(attempt) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff.Delay(attempt)):
			}
			continue
		}
		attempt = -1 // successful dial resets the budget
		c.attach(conn)
		c.pump(ctx, conn)
		c.detach()
	}
}

func (c *Channel) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.send = make(chan []byte, sendBuffer)
	close(c.ready)
	fns := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Channel) detach() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.ready = make(chan struct{})
	fns := append([]func(){}, c.onDisconnect...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// pump runs the read loop inline and the write loop in a goroutine,
// returning when either side fails.
func (c *Channel) pump(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg := <-send:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case <-quit:
				return
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
	conn.Close()
	close(quit)
	<-done
}

func (c *Channel) dispatch(data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		return
	}
	c.mu.Lock()
	fns := append([]func(json.RawMessage){}, c.handlers[env.Type]...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(data))
	}
}

func (c *Channel) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.connected {
			c.mu.Unlock()
			return nil
		}
		ready := c.ready
		c.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return ErrTimeout
		}
	}
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) Emit(event string, payload any) error {
	body := map[string]any{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
	}
	body["type"] = event
	msg, err := json.Marshal(body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return errors.New("not connected")
	}
	send := c.send
	c.mu.Unlock()

	select {
	case send <- msg:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (c *Channel) On(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

func (c *Channel) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Channel) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
