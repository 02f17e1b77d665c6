package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/commercetrack/attribution/internal/handlers"
	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/telemetry"
)

const (
	corsMaxAgeHours = 12
)

// Deps carries everything the router wires into routes.
type Deps struct {
	Sessions    *handlers.SessionHandler
	Funnel      *handlers.FunnelHandler
	Logger      logger.Logger
	CORSOrigins []string
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// CORS middleware - must be first
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"accept", "origin", "Cache-Control", "X-Requested-With",
		},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        corsMaxAgeHours * time.Hour,
	}))

	// Middleware
	router.Use(ginLogger(deps.Logger))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	// API v1
	v1 := router.Group("/api/v1")

	sessions := v1.Group("/sessions")
	sessions.POST("", deps.Sessions.Create)
	sessions.GET("/:token", deps.Sessions.Resume)
	sessions.POST("/:token/cart", deps.Sessions.LinkCart)
	sessions.POST("/:token/convert", deps.Sessions.Convert)

	v1.GET("/funnel", deps.Funnel.Compute)

	return router
}

func ginLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", statusCode),
			logger.String("client_ip", c.ClientIP()),
			logger.Duration("duration", duration),
		)
	}
}
