package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/table-order/realtime"
	"github.com/yeremiapane/table-order/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSController struct {
	Dispatcher *realtime.Dispatcher
}

func NewWSController(dispatcher *realtime.Dispatcher) *WSController {
	return &WSController{Dispatcher: dispatcher}
}

// Handle -> websocket endpoint. Identity and role are resolved by the
// auth middleware; one goroutine per connection reads frames until the
// transport closes, then the registration is torn down.
func (wc *WSController) Handle(c *gin.Context) {
	identityVal, ok := c.Get("identity")
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	roleVal, ok := c.Get("role")
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	identity := identityVal.(string)
	role := roleVal.(string)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("Websocket upgrade failed for %s: %v", identity, err)
		return
	}

	conn := realtime.NewConn(ws)
	wc.Dispatcher.Registry.Register(identity, role, conn)
	defer func() {
		wc.Dispatcher.Registry.Deregister(identity, conn)
		conn.Close()
	}()

	if err := conn.Send(realtime.SystemMessage{
		Type:    realtime.TypeSystem,
		Message: "connected",
	}); err != nil {
		utils.ErrorLogger.Printf("Connection confirmation to %s failed: %v", identity, err)
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.ErrorLogger.Printf("Websocket read error for %s: %v", identity, err)
			}
			return
		}

		// A frame that is not even JSON is rejected without dropping
		// the connection.
		var msg realtime.Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := conn.Send(realtime.ErrorMessage{
				Type:    realtime.TypeError,
				Message: "invalid message",
			}); err != nil {
				utils.ErrorLogger.Printf("Error reply to %s failed: %v", identity, err)
			}
			continue
		}
		wc.Dispatcher.HandleFrame(identity, role, msg, conn)
	}
}
