package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/propsnap/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// SessionStatser reports browser connection state.
type SessionStatser interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" when the browser connection is down.
func Health(sc SessionStatser, targetCount int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sc.Stats()

		status := "healthy"
		if !stats.Connected {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			SessionStats: stats,
			Targets:      targetCount,
			Version:      Version,
		})
	}
}
