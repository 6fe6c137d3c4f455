package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/table-order/models"
	"github.com/yeremiapane/table-order/realtime"
)

var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrOffline       = errors.New("network is offline")
	ErrNotConnected  = errors.New("not connected")
	ErrOrderInFlight = errors.New("an order is already being sent")

	// ErrNoResponse means the ack wait timer fired. The order may or
	// may not have reached a kitchen; the client cannot tell, so it
	// keeps the cart and escalates to staff instead of resending.
	ErrNoResponse = errors.New("no response — contact staff")
)

// ServerError carries a reason the server sent back on the channel,
// e.g. "no kitchen connected" or "invalid message".
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// AddItem appends an item to the local cart.
func (c *Client) AddItem(item models.OrderItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cart = append(c.cart, item)
}

// Cart returns a copy of the current cart contents.
func (c *Client) Cart() []models.OrderItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.OrderItem, len(c.cart))
	copy(out, c.cart)
	return out
}

// SubmitOrder sends the cart as one order and waits at most AckTimeout
// for the server's acknowledgment, matched by the order id attached at
// send time. The cart is cleared only when a matching ack arrives
// before the deadline; on a server error, a timeout, or a dropped
// connection the cart is left untouched so the customer can retry or
// call staff.
func (c *Client) SubmitOrder(ctx context.Context) error {
	c.mu.Lock()
	if len(c.cart) == 0 {
		c.mu.Unlock()
		return ErrEmptyCart
	}
	if c.sending {
		c.mu.Unlock()
		return ErrOrderInFlight
	}
	if !c.Online() {
		c.mu.Unlock()
		return ErrOffline
	}
	if c.conn == nil || c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}

	orderID := uuid.NewString()
	items := make(models.OrderItems, len(c.cart))
	copy(items, c.cart)

	ack := make(chan ackResult, 1)
	c.pending[orderID] = ack
	c.sending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, orderID)
		c.sending = false
		c.mu.Unlock()
	}()

	err := c.send(realtime.Inbound{
		Type:        realtime.TypeOrder,
		OrderID:     orderID,
		Items:       items,
		TableNumber: c.cfg.TableNumber,
	})
	if err != nil {
		return err
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case res := <-ack:
		if res.err != nil {
			c.notify(res.err.Error())
			return res.err
		}
		c.mu.Lock()
		c.cart = nil
		c.mu.Unlock()
		c.notify("order forwarded to kitchen")
		return nil
	case <-timer.C:
		c.notify(ErrNoResponse.Error())
		return ErrNoResponse
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateOrderStatus reports cooking progress for an order. Kitchen
// role only; the server relays it to the customer as an order_status
// frame.
func (c *Client) UpdateOrderStatus(orderID, status string) error {
	return c.send(realtime.Inbound{
		Type:    realtime.TypeStatus,
		OrderID: orderID,
		Status:  status,
	})
}

// resolveAck completes the pending wait for orderID, if any. A late or
// unrelated ack has nowhere to land and is dropped.
func (c *Client) resolveAck(orderID string, err error) {
	c.mu.Lock()
	ack, ok := c.pending[orderID]
	if ok {
		delete(c.pending, orderID)
	}
	c.mu.Unlock()
	if ok {
		ack <- ackResult{err: err}
	}
}

// failPending kills every outstanding ack wait when the transport
// drops; their carts stay intact.
func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan ackResult)
	c.mu.Unlock()
	for _, ack := range pending {
		ack <- ackResult{err: err}
	}
}
