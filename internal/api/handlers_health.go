package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remediarr/remediarr/internal/config"
)

// handleRoot is a minimal identity endpoint for reverse proxies and humans.
func (s *RESTServer) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": "remediarr",
		"version": config.Version,
	})
}

// formatUptime returns a human-readable uptime string
func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// checkDatabaseHealth checks database connectivity and returns status
func (s *RESTServer) checkDatabaseHealth(ctx context.Context) (gin.H, bool) {
	dbHealth := gin.H{"status": "connected"}
	healthy := true

	if err := s.repo.DB.PingContext(ctx); err != nil {
		healthy = false
		dbHealth["status"] = "error"
		dbHealth["error"] = err.Error()
	} else {
		dbPath := config.Get().DatabasePath
		if info, err := os.Stat(dbPath); err == nil {
			dbHealth["size_bytes"] = info.Size()
		}
	}

	return dbHealth, healthy
}

// handleHealthz returns aggregate health for container orchestration.
// This endpoint must return quickly for Docker healthchecks: it reports the
// health monitor's last observations instead of pinging downstreams inline.
func (s *RESTServer) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, dbHealthy := s.checkDatabaseHealth(ctx)

	downstreams := gin.H{}
	online, total := 0, 0
	if s.health != nil {
		for name, ok := range s.health.Healthy() {
			downstreams[name] = ok
			total++
			if ok {
				online++
			}
		}
	}

	status := "healthy"
	if !dbHealthy || online < total {
		status = "degraded"
	}

	health := gin.H{
		"status":            status,
		"version":           config.Version,
		"uptime":            formatUptime(time.Since(s.startTime)),
		"database":          dbHealth,
		"downstreams":       downstreams,
		"websocket_clients": s.hub.ClientCount(),
	}

	if status == "degraded" && s.healthNotifier != nil {
		s.healthNotifier.SendHealthDegraded(map[string]interface{}{
			"status":          status,
			"uptime":          health["uptime"],
			"database_status": dbHealth["status"],
			"online":          online,
			"total":           total,
		})
	}

	c.JSON(http.StatusOK, health)
}
