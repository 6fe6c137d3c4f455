package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Order status values. "placed" is set when the dispatcher hands an
// order to the kitchen fan-out; kitchen status frames move it through
// the cooking states; closing a table forces "completed".
const (
	OrderPlaced    = "placed"
	OrderAccepted  = "accepted"
	OrderPreparing = "preparing"
	OrderDone      = "done"
	OrderRejected  = "rejected"
	OrderCompleted = "completed"
)

// OrderItem is one line of a customer order as sent over the socket.
type OrderItem struct {
	ID    uint    `json:"id"`
	Qty   int     `json:"qty"`
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price,omitempty"`
}

// OrderItems stores the items payload as a JSON column.
type OrderItems []OrderItem

func (items OrderItems) Value() (driver.Value, error) {
	return json.Marshal(items)
}

func (items *OrderItems) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, items)
	case string:
		return json.Unmarshal([]byte(v), items)
	default:
		return fmt.Errorf("unsupported type %T for OrderItems", value)
	}
}

// Order is the persisted record of a dispatched order. The dispatch
// itself stays fire-and-forget; this row exists so kitchen status
// updates and table close have something to mark.
type Order struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	OrderID     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_id"`
	SessionID   string     `gorm:"type:varchar(64);index" json:"session_id"`
	TableNumber string     `gorm:"type:varchar(2);index;not null" json:"table_number"`
	Items       OrderItems `gorm:"type:text" json:"items"`
	Status      string     `gorm:"type:varchar(20);not null;default:'placed'" json:"status"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}
