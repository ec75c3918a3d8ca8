package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin router with middleware and all routes
func NewRouter(h *Handlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "expense-workflow",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
	}

	api := router.Group("/api")
	api.Use(h.RequireIdentity())
	{
		api.GET("/me", h.Me)

		api.GET("/requests", h.ListRequests)
		api.POST("/requests", h.CreateRequest)
		api.GET("/requests/export", h.ExportRequests)
		api.GET("/requests/:id", h.GetRequest)
		api.PUT("/requests/:id", h.UpdateRequest)
		api.GET("/requests/:id/history", h.History)

		api.POST("/requests/:id/submit", h.SubmitRequest)
		api.POST("/requests/:id/approve", h.ApproveRequest)
		api.POST("/requests/:id/return", h.ReturnRequest)
		api.POST("/requests/:id/reject", h.RejectRequest)
		api.POST("/requests/:id/withdraw", h.WithdrawRequest)

		api.GET("/inbox", h.Inbox)
		api.GET("/inbox/:id", h.InboxDetail)
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// corsMiddleware adds CORS headers for the browser frontend
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
