package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-order/models"
	"github.com/yeremiapane/table-order/realtime"
	"github.com/yeremiapane/table-order/utils"
	"gorm.io/gorm"
)

// WebSocketAuthMiddleware resolves the connection's identity and role
// from its open parameters. Customers identify by their session id,
// which must belong to a still-open session; kitchen displays present
// a staff token issued by the auth service.
func WebSocketAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.Param("role")

		switch role {
		case realtime.RoleUser:
			sessionID := c.Query("session_id")
			if sessionID == "" {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			var session models.Session
			if err := db.Where("session_id = ? AND closed_at IS NULL", sessionID).
				First(&session).Error; err != nil {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Set("identity", sessionID)
			c.Set("role", realtime.RoleUser)

		case realtime.RoleKitchen:
			token := c.Query("token")
			if token == "" {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			claims, err := utils.ParseStaffToken(token)
			if err != nil {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			c.Set("identity", fmt.Sprintf("kitchen-%d", claims.UserID))
			c.Set("role", realtime.RoleKitchen)

		default:
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Next()
	}
}
