package api

import (
	"net/http"
	"time"

	"github.com/OriD-19/vendly-backend/internal/api/middleware"
	"github.com/OriD-19/vendly-backend/internal/auth"
	"github.com/OriD-19/vendly-backend/internal/command"
	"github.com/OriD-19/vendly-backend/internal/query"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the order engine over HTTP.
type Server struct {
	engine   *gin.Engine
	commands *command.Handler
	queries  *query.Handler
	jwt      *auth.JWTService
	logger   *zap.Logger
	now      func() time.Time
}

func NewServer(commands *command.Handler, queries *query.Handler, jwtService *auth.JWTService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	s := &Server{
		engine:   r,
		commands: commands,
		queries:  queries,
		jwt:      jwtService,
		logger:   logger.Named("api"),
		now:      time.Now,
	}
	r.Use(requestLogger(s.logger), gin.Recovery())
	s.registerRoutes()
	return s
}

// Engine returns the underlying gin engine, used as the http.Handler.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/api/v1", middleware.Auth(s.jwt))
	{
		v1.POST("/orders", s.createOrder)
		v1.GET("/orders", s.listMyOrders)
		v1.GET("/orders/number/:number", s.getOrderByNumber)
		v1.GET("/orders/:id", s.getOrder)
		v1.POST("/orders/:id/:event", s.transitionOrder)

		v1.GET("/inventory/:productID", s.getStock)
		v1.GET("/stores/:storeID/analytics", s.storeAnalytics)
	}

	admin := v1.Group("/admin", middleware.RequireRole(auth.RoleAdmin, auth.RoleStore))
	{
		admin.GET("/orders", middleware.RequireRole(auth.RoleAdmin), s.listAllOrders)
		admin.GET("/inventory", middleware.RequireRole(auth.RoleAdmin), s.listInventory)
		admin.PUT("/inventory/:productID", s.restock)
	}
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
