package realtime

import "github.com/yeremiapane/table-order/models"

// Roles a connection can register under.
const (
	RoleUser    = "user"
	RoleKitchen = "kitchen"
)

// Frame types on the wire.
const (
	TypeOrder       = "order"
	TypeSystem      = "system"
	TypeError       = "error"
	TypeOrderStatus = "order_status"
	TypeStatus      = "status"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeTableClosed = "table_closed"
)

// Inbound is the decoded form of any client frame. Only the fields
// relevant to the frame's Type are set.
type Inbound struct {
	Type        string            `json:"type"`
	OrderID     string            `json:"order_id,omitempty"`
	Items       models.OrderItems `json:"items,omitempty"`
	TableNumber string            `json:"table_number,omitempty"`
	Status      string            `json:"status,omitempty"`
}

// SystemMessage confirms a connection or acknowledges an order. The
// acknowledgment echoes the order id so the customer client can match
// it against the order it sent.
type SystemMessage struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	OrderID string            `json:"order_id,omitempty"`
	Items   models.OrderItems `json:"items,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// KitchenOrder is the fan-out frame delivered to every kitchen display.
type KitchenOrder struct {
	Type        string            `json:"type"`
	From        string            `json:"from"`
	OrderID     string            `json:"order_id"`
	Items       models.OrderItems `json:"items"`
	TableNumber string            `json:"table_number"`
	Timestamp   int64             `json:"timestamp"`
}

// OrderStatusMessage relays a kitchen status update to the customer.
type OrderStatusMessage struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type PongMessage struct {
	Type string `json:"type"`
}

// TableClosedMessage tells a still-connected customer that the table
// was closed and the session is no longer valid.
type TableClosedMessage struct {
	Type string `json:"type"`
}
