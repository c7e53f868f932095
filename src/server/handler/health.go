package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/apimgr/weatherdash/src/database"
	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/gin-gonic/gin"
)

// HealthHandler reports process and dependency health
type HealthHandler struct {
	DB      *database.DB
	Cache   *service.CacheManager
	Hub     *service.Hub
	Version string
	Started time.Time
}

// HandleHealthz handles GET /healthz. The database is the only hard
// dependency; a failing Redis tier is reported but not fatal.
func (h *HealthHandler) HandleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), database.TimeoutPing)
	defer cancel()

	status := "OK"
	code := http.StatusOK
	checks := gin.H{}

	if h.DB == nil {
		checks["database"] = "not configured"
	} else if err := h.DB.PingContext(ctx); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "Unavailable"
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.Cache == nil:
		checks["cache"] = "disabled"
	case !h.Cache.RedisEnabled():
		checks["cache"] = "memory"
	default:
		if err := h.Cache.Ping(ctx); err != nil {
			checks["cache"] = "redis error: " + err.Error()
			if status == "OK" {
				status = "Degraded"
			}
		} else {
			checks["cache"] = "redis"
		}
	}

	clients := 0
	if h.Hub != nil {
		clients = h.Hub.ClientCount()
	}

	c.JSON(code, gin.H{
		"status":            status,
		"service":           "weatherdash",
		"version":           h.Version,
		"timestamp":         time.Now().UTC(),
		"uptime":            time.Since(h.Started).Round(time.Second).String(),
		"checks":            checks,
		"websocket_clients": clients,
	})
}
