// Package api provides the HTTP surface for Remediarr: the Jellyseerr
// webhook receiver, health and metrics endpoints, the audit event API and
// the WebSocket event stream.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/db"
	"github.com/remediarr/remediarr/internal/eventbus"
	"github.com/remediarr/remediarr/internal/logger"
	"github.com/remediarr/remediarr/internal/metrics"
	"github.com/remediarr/remediarr/internal/services"
)

// HealthNotifier is the notification slice the health endpoint needs.
type HealthNotifier interface {
	SendHealthDegraded(data map[string]interface{})
}

type RESTServer struct {
	router         *gin.Engine
	httpServer     *http.Server
	repo           *db.Repository
	eventBus       *eventbus.EventBus
	metrics        *metrics.MetricsService
	health         *services.HealthMonitor
	healthNotifier HealthNotifier
	hub            *WebSocketHub
	startTime      time.Time
}

// ServerDeps contains all dependencies required for the REST server
type ServerDeps struct {
	Repo           *db.Repository
	EventBus       *eventbus.EventBus
	Metrics        *metrics.MetricsService
	Health         *services.HealthMonitor
	HealthNotifier HealthNotifier
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"request_id": reqID,
		})
	}))

	r.Use(corsMiddleware(config.Get().CORSOrigin))

	s := &RESTServer{
		router:         r,
		repo:           deps.Repo,
		eventBus:       deps.EventBus,
		metrics:        deps.Metrics,
		health:         deps.Health,
		healthNotifier: deps.HealthNotifier,
		hub:            NewWebSocketHub(deps.EventBus),
		startTime:      time.Now(),
	}

	s.setupRoutes()

	return s
}

// corsMiddleware applies the configured origin policy. An empty origin list
// means same-origin only (no CORS headers at all).
func corsMiddleware(corsOrigins string) gin.HandlerFunc {
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if corsOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}

		if corsOrigins != "" {
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *RESTServer) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.router.POST("/webhook/jellyseerr", WebhookLimiter.Middleware(), s.handleJellyseerrWebhook)

	api := s.router.Group("/api/v1", APILimiter.Middleware())
	{
		api.GET("/events", s.handleListEvents)
		api.GET("/issues/:issue_id/events", s.handleIssueEvents)
	}

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleConnection(c)
	})
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
