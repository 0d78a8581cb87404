package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var (
	ErrNotConnected   = errors.New("signaling: channel is not connected")
	ErrChannelClosed  = errors.New("signaling: channel is closed")
	ErrRequestTimeout = errors.New("signaling: request timed out")
	ErrRemote         = errors.New("signaling: remote error")
)

// envelope is the wire frame. Requests carry id+method+params, acks carry
// id+result or id+error, pushes and notifications carry method+params only.
type envelope struct {
	ID     string          `json:"id,omitempty"`
	Method Method          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *remoteError    `json:"error,omitempty"`
}

type remoteError struct {
	Message string `json:"message"`
}

// Handler consumes one server push. Handlers for one connection are invoked
// sequentially on the read pump goroutine, preserving server emission order.
type Handler func(params json.RawMessage)

// TokenProvider yields the bearer token attached to the websocket dial.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Options tunes the channel. Zero values fall back to defaults.
type Options struct {
	URL            string
	Token          TokenProvider
	RequestTimeout time.Duration
	DialTimeout    time.Duration

	// Bounded reconnection. Zero ReconnectAttempts disables reconnection.
	ReconnectAttempts int
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
}

func (o *Options) withDefaults() {
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.ReconnectBase == 0 {
		o.ReconnectBase = 500 * time.Millisecond
	}
	if o.ReconnectMax == 0 {
		o.ReconnectMax = 8 * time.Second
	}
}

// Channel is the single bidirectional signaling connection of a session.
// It multiplexes request/ack pairs, fire-and-forget notifications and
// server pushes over one websocket.
type Channel struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	handlersMu sync.RWMutex
	handlers   map[Method]Handler

	onReconnect func()
	onDown      func(error)

	writeMu sync.Mutex
	done    chan struct{}
}

func NewChannel(opts Options) *Channel {
	opts.withDefaults()
	return &Channel{
		opts:     opts,
		pending:  make(map[string]chan envelope),
		handlers: make(map[Method]Handler),
		done:     make(chan struct{}),
	}
}

// Handle registers the push handler for a method. Registration must happen
// before the push can arrive; re-registration replaces the handler.
func (c *Channel) Handle(method Method, h Handler) {
	c.handlersMu.Lock()
	c.handlers[method] = h
	c.handlersMu.Unlock()
}

// OnReconnect registers a callback fired after a dropped connection was
// re-established, so the session can refresh server-held state.
func (c *Channel) OnReconnect(f func()) {
	c.mu.Lock()
	c.onReconnect = f
	c.mu.Unlock()
}

// OnDown registers a callback fired once the reconnect budget is spent.
func (c *Channel) OnDown(f func(error)) {
	c.mu.Lock()
	c.onDown = f
	c.mu.Unlock()
}

// Connect dials the signaling server and starts the read pump.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump(conn)
	go c.keepalive(conn)

	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	if c.opts.Token != nil {
		token, err := c.opts.Token.Token(dialCtx)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.opts.URL, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return conn, nil
}

// Connected reports whether the socket is currently established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Request emits method+params and waits for the matching ack.
func (c *Channel) Request(ctx context.Context, method Method, params interface{}) (json.RawMessage, error) {
	if !c.Connected() {
		telemetry.SignalingRequest(string(method), "not_connected")
		return nil, ErrNotConnected
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ack := make(chan envelope, 1)

	c.pendingMu.Lock()
	c.pending[id] = ack
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(envelope{ID: id, Method: method, Params: raw}); err != nil {
		telemetry.SignalingRequest(string(method), "write_error")
		return nil, err
	}

	timeout := time.NewTimer(c.opts.RequestTimeout)
	defer timeout.Stop()

	select {
	case env := <-ack:
		if env.Error != nil {
			telemetry.SignalingRequest(string(method), "remote_error")
			return nil, &RequestError{Method: method, Message: env.Error.Message}
		}
		telemetry.SignalingRequest(string(method), "ok")
		return env.Result, nil
	case <-timeout.C:
		telemetry.SignalingRequest(string(method), "timeout")
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		telemetry.SignalingRequest(string(method), "cancelled")
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrChannelClosed
	}
}

// Notify emits method+params without waiting for any ack.
func (c *Channel) Notify(method Method, params interface{}) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return c.write(envelope{Method: method, Params: raw})
}

// Close tears the channel down. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	c.failPending(ErrChannelClosed)

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

func (c *Channel) write(env envelope) error {
	c.mu.Lock()
	conn := c.conn
	ok := c.connected
	c.mu.Unlock()
	if !ok || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		env := envelope{}
		if err := conn.ReadJSON(&env); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		if env.ID != "" && env.Method == "" {
			c.resolve(env)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) resolve(env envelope) {
	c.pendingMu.Lock()
	ack, ok := c.pending[env.ID]
	c.pendingMu.Unlock()
	if !ok {
		log.Debug().Str("service", "signaling").Str("id", env.ID).Msg("ack for unknown request")
		return
	}
	ack <- env
}

func (c *Channel) dispatch(env envelope) {
	c.handlersMu.RLock()
	h, ok := c.handlers[env.Method]
	c.handlersMu.RUnlock()
	if !ok {
		log.Debug().Str("service", "signaling").Str("method", string(env.Method)).Msg("no handler for push")
		return
	}
	// Invoked inline on the read pump: pushes are applied in wire order.
	h(env.Params)
}

func (c *Channel) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Channel) handleDisconnect(conn *websocket.Conn, cause error) {
	conn.Close()

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()

	c.failPending(ErrNotConnected)

	log.Warn().Err(cause).Str("service", "signaling").Msg("signaling connection lost")

	if c.opts.ReconnectAttempts <= 0 {
		c.down(cause)
		return
	}
	go c.reconnect(cause)
}

// reconnect retries the dial with exponential backoff up to the configured
// attempt budget, then gives up and reports the channel down.
func (c *Channel) reconnect(cause error) {
	delay := c.opts.ReconnectBase

	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		telemetry.ReconnectAttempt()
		log.Info().Str("service", "signaling").Int("attempt", attempt).Msg("reconnecting")

		conn, err := c.dial(context.Background())
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				conn.Close()
				return
			}
			c.conn = conn
			c.connected = true
			onReconnect := c.onReconnect
			c.mu.Unlock()

			go c.readPump(conn)
			go c.keepalive(conn)

			if onReconnect != nil {
				onReconnect()
			}
			return
		}

		log.Warn().Err(err).Str("service", "signaling").Int("attempt", attempt).Msg("reconnect failed")
		delay *= 2
		if delay > c.opts.ReconnectMax {
			delay = c.opts.ReconnectMax
		}
	}

	c.down(cause)
}

func (c *Channel) down(cause error) {
	c.mu.Lock()
	onDown := c.onDown
	c.mu.Unlock()
	if onDown != nil {
		onDown(cause)
	}
}

func (c *Channel) failPending(err error) {
	c.pendingMu.Lock()
	for id, ack := range c.pending {
		select {
		case ack <- envelope{ID: id, Error: &remoteError{Message: err.Error()}}:
		default:
		}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// RequestError is a server-side rejection of one request. It fails only that
// operation, never the session.
type RequestError struct {
	Method  Method
	Message string
}

func (e *RequestError) Error() string {
	return "signaling: " + string(e.Method) + ": " + e.Message
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRemote
}
