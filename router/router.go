package router

import (
	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-order/controllers"
	"github.com/yeremiapane/table-order/middlewares"
	"github.com/yeremiapane/table-order/realtime"
	"gorm.io/gorm"
)

func SetupRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.NewRateLimiter(50, 1).RateLimit())

	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, db)

	tableCtrl := controllers.NewTableController(db, dispatcher)
	wsCtrl := controllers.NewWSController(dispatcher)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Session lookup used by the customer page after a QR scan.
	r.GET("/sessions/:session_id", tableCtrl.CheckTable)
	r.GET("/tables", tableCtrl.GetAllTables)

	// Table lifecycle is a staff surface.
	staff := r.Group("/tables")
	staff.Use(middlewares.NewStrictRateLimiter())
	{
		staff.POST("", tableCtrl.CreateTable)
		staff.POST("/:table_number/open", tableCtrl.OpenTable)
		staff.POST("/:table_number/close", tableCtrl.CloseTable)
	}

	// Persistent channel for customers and kitchen displays.
	wsGroup := r.Group("/ws")
	wsGroup.Use(middlewares.WebSocketAuthMiddleware(db))
	{
		wsGroup.GET("/:role", wsCtrl.Handle)
	}

	return r
}
