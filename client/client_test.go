package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/table-order/models"
	"github.com/yeremiapane/table-order/realtime"
	"github.com/yeremiapane/table-order/utils"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer runs handler for each incoming websocket connection and
// returns the ws:// URL to dial.
func wsServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) Config {
	return Config{
		URL:          url,
		TableNumber:  "05",
		PingInterval: time.Minute,
		AckTimeout:   200 * time.Millisecond,
		MaxAttempts:  3,
		BackoffBase:  5 * time.Millisecond,
		BackoffCap:   20 * time.Millisecond,
	}
}

// startClient runs the client and blocks until it reports connected.
func startClient(t *testing.T, cfg Config, handlers Handlers) *Client {
	t.Helper()
	utils.InitLogger()

	connected := make(chan struct{}, 1)
	prev := handlers.OnStateChange
	handlers.OnStateChange = func(s State) {
		if s == StateConnected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
		if prev != nil {
			prev(s)
		}
	}

	c := New(cfg, handlers)
	go c.Run(context.Background())
	t.Cleanup(c.Close)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	return c
}

// echoAck acknowledges every order frame with a matching order id.
func echoAck(conn *websocket.Conn) {
	for {
		var msg realtime.Inbound
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == realtime.TypeOrder {
			conn.WriteJSON(realtime.SystemMessage{
				Type:    realtime.TypeSystem,
				Message: "order forwarded to kitchen",
				OrderID: msg.OrderID,
				Items:   msg.Items,
			})
		}
	}
}

func TestSubmitOrderAckClearsCart(t *testing.T) {
	url := wsServer(t, echoAck)
	c := startClient(t, testConfig(url), Handlers{})

	c.AddItem(models.OrderItem{ID: 1, Qty: 2, Name: "nasi goreng", Price: 25000})
	require.Len(t, c.Cart(), 1)

	err := c.SubmitOrder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, c.Cart())
}

func TestSubmitOrderServerErrorKeepsCart(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		for {
			var msg realtime.Inbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == realtime.TypeOrder {
				conn.WriteJSON(realtime.ErrorMessage{
					Type:    realtime.TypeError,
					Message: "no kitchen connected",
					OrderID: msg.OrderID,
				})
			}
		}
	})
	c := startClient(t, testConfig(url), Handlers{})

	c.AddItem(models.OrderItem{ID: 1, Qty: 1})
	err := c.SubmitOrder(context.Background())

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "no kitchen connected", serverErr.Message)
	assert.Len(t, c.Cart(), 1)
}

func TestSubmitOrderTimeoutKeepsCart(t *testing.T) {
	// Server swallows the order and never answers; the client cannot
	// tell a lost order from a lost ack and must not resend.
	url := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := startClient(t, testConfig(url), Handlers{})

	c.AddItem(models.OrderItem{ID: 3, Qty: 1})
	start := time.Now()
	err := c.SubmitOrder(context.Background())

	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Len(t, c.Cart(), 1)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestSubmitOrderLocalGuards(t *testing.T) {
	utils.InitLogger()

	// Never connected.
	c := New(testConfig("ws://127.0.0.1:0"), Handlers{})
	c.AddItem(models.OrderItem{ID: 1, Qty: 1})
	assert.ErrorIs(t, c.SubmitOrder(context.Background()), ErrNotConnected)

	// Empty cart is rejected before any transport check.
	c = New(testConfig("ws://127.0.0.1:0"), Handlers{})
	assert.ErrorIs(t, c.SubmitOrder(context.Background()), ErrEmptyCart)

	// Offline network state.
	url := wsServer(t, echoAck)
	c = startClient(t, testConfig(url), Handlers{})
	c.Online = func() bool { return false }
	c.AddItem(models.OrderItem{ID: 1, Qty: 1})
	assert.ErrorIs(t, c.SubmitOrder(context.Background()), ErrOffline)
	assert.Len(t, c.Cart(), 1)
}

func TestPingIsSentWhileConnected(t *testing.T) {
	pings := make(chan struct{}, 4)
	url := wsServer(t, func(conn *websocket.Conn) {
		for {
			var msg realtime.Inbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == realtime.TypePing {
				pings <- struct{}{}
				conn.WriteJSON(realtime.PongMessage{Type: realtime.TypePong})
			}
		}
	})

	cfg := testConfig(url)
	cfg.PingInterval = 20 * time.Millisecond
	startClient(t, cfg, Handlers{})

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestReconnectStopsAfterMaxAttempts(t *testing.T) {
	utils.InitLogger()

	// A server that is already gone: every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	var states []State
	done := make(chan error, 1)
	c := New(testConfig(url), Handlers{
		OnStateChange: func(s State) { states = append(states, s) },
	})
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate")
	}

	assert.Equal(t, StateError, c.State())

	attempts := 0
	for _, s := range states {
		if s == StateConnecting {
			attempts++
		}
	}
	assert.LessOrEqual(t, attempts, 3)
}

func TestContextCancelClosesConnection(t *testing.T) {
	url := wsServer(t, echoAck)

	utils.InitLogger()
	connected := make(chan struct{}, 1)
	c := New(testConfig(url), Handlers{
		OnStateChange: func(s State) {
			if s == StateConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(c.Close)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	// Cancelling the context must close the transport and unblock the
	// read loop, not just stop the ping ticker.
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after context cancellation")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestReconnectAfterDropResetsBudget(t *testing.T) {
	// The first three connections die right after the handshake; only
	// the fourth stays up. With MaxAttempts 3 the client survives this
	// only if a completed handshake resets the attempt counter.
	var conns atomic.Int32
	url := wsServer(t, func(conn *websocket.Conn) {
		if conns.Add(1) <= 3 {
			return
		}
		echoAck(conn)
	})

	utils.InitLogger()
	connected := make(chan struct{}, 8)
	c := New(testConfig(url), Handlers{
		OnStateChange: func(s State) {
			if s == StateConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
	})
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	t.Cleanup(c.Close)

	deadline := time.After(5 * time.Second)
	for conns.Load() < 4 {
		select {
		case <-connected:
		case err := <-done:
			t.Fatalf("run terminated early: %v", err)
		case <-deadline:
			t.Fatal("client never reached the stable connection")
		}
	}

	// The surviving connection is fully usable.
	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	c.AddItem(models.OrderItem{ID: 2, Qty: 1})
	require.NoError(t, c.SubmitOrder(context.Background()))
	assert.Empty(t, c.Cart())
}

func TestCloseCancelsEverything(t *testing.T) {
	url := wsServer(t, echoAck)

	utils.InitLogger()
	connected := make(chan struct{}, 1)
	c := New(testConfig(url), Handlers{
		OnStateChange: func(s State) {
			if s == StateConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
	})
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	c.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after Close")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestTableClosedNotPartOfAckFlow(t *testing.T) {
	closed := make(chan struct{}, 1)
	url := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(realtime.TableClosedMessage{Type: realtime.TypeTableClosed})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	startClient(t, testConfig(url), Handlers{
		OnTableClosed: func() {
			select {
			case closed <- struct{}{}:
			default:
			}
		},
	})

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("table_closed handler never fired")
	}
}
