// Package client implements the customer-side protocol for the table
// order channel: a persistent websocket with ping liveness, bounded
// reconnect, and acknowledgment-tracked order submission tied to a
// local cart.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeremiapane/table-order/models"
	"github.com/yeremiapane/table-order/realtime"
	"github.com/yeremiapane/table-order/utils"
)

// State of the connection manager.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

var (
	// ErrReconnectExhausted is terminal: no further attempts are
	// scheduled and the caller must start over with a fresh client.
	ErrReconnectExhausted = errors.New("connection failed, please reload")
)

type Config struct {
	// URL is the full websocket URL including the session id, e.g.
	// ws://host/ws/user?session_id=...
	URL string

	TableNumber string

	PingInterval time.Duration
	AckTimeout   time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

func (c *Config) setDefaults() {
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 10 * time.Second
	}
}

// Handlers surface protocol events to the embedding UI. Nil handlers
// are skipped. OnKitchenOrder only fires for connections opened with
// the kitchen role.
type Handlers struct {
	OnNotice       func(message string)
	OnOrderStatus  func(orderID, status string)
	OnTableClosed  func()
	OnStateChange  func(State)
	OnKitchenOrder func(order realtime.KitchenOrder)
}

type ackResult struct {
	err error
}

// Client owns one logical customer connection. Run drives the
// transport; SubmitOrder and the cart methods are safe to call from
// other goroutines.
type Client struct {
	cfg      Config
	handlers Handlers
	dialer   *websocket.Dialer

	// Online reports whether the network is usable; submissions are
	// rejected locally while it returns false. Defaults to always
	// online.
	Online func() bool

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   State
	cart    []models.OrderItem
	pending map[string]chan ackResult
	sending bool
	closed  bool

	done chan struct{}
}

func New(cfg Config, handlers Handlers) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:      cfg,
		handlers: handlers,
		dialer:   websocket.DefaultDialer,
		Online:   func() bool { return true },
		state:    StateDisconnected,
		pending:  make(map[string]chan ackResult),
		done:     make(chan struct{}),
	}
}

// Run connects and keeps the channel alive until the context is
// cancelled, Close is called, or the reconnect budget is exhausted.
// Reconnects use exponential backoff capped at BackoffCap; the attempt
// counter resets only after a completed handshake. After MaxAttempts
// consecutive failures the client parks in StateError and Run returns
// ErrReconnectExhausted.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		c.setState(StateConnecting)
		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			attempts++
			if stop, werr := c.waitBackoff(ctx, attempts); stop {
				return werr
			}
			continue
		}

		attempts = 0
		c.setConn(conn)
		c.setState(StateConnected)

		c.readLoop(ctx, conn)

		c.setConn(nil)
		c.failPending(errors.New("connection lost"))

		select {
		case <-c.done:
			c.setState(StateDisconnected)
			return nil
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		default:
		}

		attempts++
		if stop, werr := c.waitBackoff(ctx, attempts); stop {
			return werr
		}
	}
}

// waitBackoff sleeps out the reconnect delay for the given attempt
// number. It reports stop=true when no further attempt may be made.
func (c *Client) waitBackoff(ctx context.Context, attempts int) (stop bool, err error) {
	if attempts >= c.cfg.MaxAttempts {
		c.setState(StateError)
		c.notify("connection failed, please reload")
		return true, ErrReconnectExhausted
	}

	delay := c.cfg.BackoffBase << (attempts - 1)
	if delay > c.cfg.BackoffCap || delay <= 0 {
		delay = c.cfg.BackoffCap
	}
	c.setState(StateReconnecting)
	utils.InfoLogger.Printf("Reconnect attempt %d/%d in %v", attempts, c.cfg.MaxAttempts, delay)

	select {
	case <-time.After(delay):
		return false, nil
	case <-c.done:
		c.setState(StateDisconnected)
		return true, nil
	case <-ctx.Done():
		c.setState(StateDisconnected)
		return true, ctx.Err()
	}
}

// readLoop consumes frames until the transport dies. A ping ticker
// runs alongside it; pong receipt is logged but no liveness deadline
// is derived from it, so a half-open connection surfaces only through
// the transport's own close or error.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	pingStop := make(chan struct{})
	defer close(pingStop)

	// Cancellation and Close must unblock the read below; the only way
	// to do that is to close the transport itself.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.done:
			conn.Close()
		case <-pingStop:
		}
	}()

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.send(map[string]string{"type": realtime.TypePing}); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		utils.ErrorLogger.Printf("Unreadable frame from server: %v", err)
		return
	}

	switch frame.Type {
	case realtime.TypeOrder:
		if c.handlers.OnKitchenOrder != nil {
			var order realtime.KitchenOrder
			if err := json.Unmarshal(data, &order); err == nil {
				c.handlers.OnKitchenOrder(order)
			}
		}
	case realtime.TypePong:
		utils.InfoLogger.Println("pong")
	case realtime.TypeSystem:
		if frame.OrderID != "" {
			c.resolveAck(frame.OrderID, nil)
		} else {
			c.notify(frame.Message)
		}
	case realtime.TypeError:
		if frame.OrderID != "" {
			c.resolveAck(frame.OrderID, &ServerError{Message: frame.Message})
		} else {
			c.notify(frame.Message)
		}
	case realtime.TypeOrderStatus:
		if c.handlers.OnOrderStatus != nil {
			c.handlers.OnOrderStatus(frame.OrderID, frame.Status)
		}
	case realtime.TypeTableClosed:
		if c.handlers.OnTableClosed != nil {
			c.handlers.OnTableClosed()
		}
	}
}

// Close tears the client down: all pending timers unblock, the socket
// closes, and Run returns. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		conn.Close()
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(s)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	// One writer at a time; ping ticker and order submission share the
	// socket.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Client) notify(message string) {
	if message != "" && c.handlers.OnNotice != nil {
		c.handlers.OnNotice(message)
	}
}
