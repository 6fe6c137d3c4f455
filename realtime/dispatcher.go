package realtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/table-order/models"
	"github.com/yeremiapane/table-order/utils"
	"gorm.io/gorm"
)

// Dispatcher routes inbound frames from registered connections. Order
// delivery is at-most-once, fire-and-forget: the acknowledgment means
// "handed to every currently-open kitchen socket", not "a kitchen has
// accepted the order". Nothing is queued and nothing is retried.
type Dispatcher struct {
	Registry *Registry
	DB       *gorm.DB
}

func NewDispatcher(registry *Registry, db *gorm.DB) *Dispatcher {
	return &Dispatcher{Registry: registry, DB: db}
}

// HandleFrame processes one decoded frame from the connection
// registered as (identity, role). Replies go back through sender.
func (d *Dispatcher) HandleFrame(identity, role string, msg Inbound, sender Sender) {
	switch msg.Type {
	case TypePing:
		if err := sender.Send(PongMessage{Type: TypePong}); err != nil {
			utils.ErrorLogger.Printf("Pong to %s failed: %v", identity, err)
		}
	case TypeOrder:
		d.handleOrder(identity, role, msg, sender)
	case TypeStatus:
		d.handleStatus(identity, role, msg, sender)
	default:
		d.reject(identity, sender, msg.OrderID)
	}
}

func (d *Dispatcher) handleOrder(identity, role string, msg Inbound, sender Sender) {
	if role != RoleUser || len(msg.Items) == 0 {
		d.reject(identity, sender, msg.OrderID)
		return
	}

	orderID := msg.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}

	if d.Registry.CountByRole(RoleKitchen) == 0 {
		utils.InfoLogger.Printf("Order %s from %s dropped: no kitchen connected", orderID, identity)
		if err := sender.Send(ErrorMessage{
			Type:    TypeError,
			Message: "no kitchen connected",
			OrderID: orderID,
		}); err != nil {
			utils.ErrorLogger.Printf("Error reply to %s failed: %v", identity, err)
		}
		return
	}

	d.Registry.Broadcast(RoleKitchen, KitchenOrder{
		Type:        TypeOrder,
		From:        identity,
		OrderID:     orderID,
		Items:       msg.Items,
		TableNumber: msg.TableNumber,
		Timestamp:   time.Now().Unix(),
	})

	// The order record is collaborator state, written after the
	// fan-out so a storage failure cannot block dispatch.
	order := models.Order{
		OrderID:     orderID,
		SessionID:   identity,
		TableNumber: msg.TableNumber,
		Items:       msg.Items,
		Status:      models.OrderPlaced,
	}
	if err := d.DB.Create(&order).Error; err != nil {
		utils.ErrorLogger.Printf("Failed to record order %s: %v", orderID, err)
	}

	if err := sender.Send(SystemMessage{
		Type:    TypeSystem,
		Message: "order forwarded to kitchen",
		OrderID: orderID,
		Items:   msg.Items,
	}); err != nil {
		utils.ErrorLogger.Printf("Ack to %s failed: %v", identity, err)
	}

	utils.InfoLogger.Printf("Order %s from %s forwarded to %d kitchen(s)", orderID, identity, d.Registry.CountByRole(RoleKitchen))
}

func (d *Dispatcher) handleStatus(identity, role string, msg Inbound, sender Sender) {
	if role != RoleKitchen || msg.OrderID == "" || !validOrderStatus(msg.Status) {
		d.reject(identity, sender, msg.OrderID)
		return
	}

	var order models.Order
	if err := d.DB.Where("order_id = ?", msg.OrderID).First(&order).Error; err != nil {
		if err := sender.Send(ErrorMessage{
			Type:    TypeError,
			Message: "unknown order",
			OrderID: msg.OrderID,
		}); err != nil {
			utils.ErrorLogger.Printf("Error reply to %s failed: %v", identity, err)
		}
		return
	}

	order.Status = msg.Status
	if err := d.DB.Save(&order).Error; err != nil {
		utils.ErrorLogger.Printf("Failed to update order %s: %v", msg.OrderID, err)
	}

	// Relay to the customer that placed the order, if still connected.
	if customer, ok := d.Registry.Get(order.SessionID); ok {
		if err := customer.Send(OrderStatusMessage{
			Type:    TypeOrderStatus,
			OrderID: order.OrderID,
			Status:  order.Status,
		}); err != nil {
			utils.ErrorLogger.Printf("Status relay for order %s failed: %v", order.OrderID, err)
		}
	}

	utils.InfoLogger.Printf("Order %s marked %s by %s", order.OrderID, order.Status, identity)
}

// NotifyTableClosed tells the customer connection still bound to
// sessionID to redirect away. No-op if the customer already left.
func (d *Dispatcher) NotifyTableClosed(sessionID string) {
	sender, ok := d.Registry.Get(sessionID)
	if !ok {
		return
	}
	if err := sender.Send(TableClosedMessage{Type: TypeTableClosed}); err != nil {
		utils.ErrorLogger.Printf("table_closed to session %s failed: %v", sessionID, err)
	}
}

func (d *Dispatcher) reject(identity string, sender Sender, orderID string) {
	if err := sender.Send(ErrorMessage{
		Type:    TypeError,
		Message: "invalid message",
		OrderID: orderID,
	}); err != nil {
		utils.ErrorLogger.Printf("Error reply to %s failed: %v", identity, err)
	}
}

func validOrderStatus(status string) bool {
	switch status {
	case models.OrderAccepted, models.OrderPreparing, models.OrderDone, models.OrderRejected:
		return true
	}
	return false
}
