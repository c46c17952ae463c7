package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/propsnap/models"
	"github.com/use-agent/propsnap/snapshot"
	"github.com/use-agent/propsnap/targets"
)

const (
	// TargetsHeader carries the per-target status summary of a snapshot.
	TargetsHeader = "X-Propsnap-Targets"

	// CacheHeader is "hit" when the composite was served from the cache.
	CacheHeader = "X-Propsnap-Cache"
)

// Snapshotter is the pipeline behind the snapshot endpoints.
type Snapshotter interface {
	Snapshot(ctx context.Context, req snapshot.Request) (*snapshot.Result, error)
	Targets() []targets.TargetSpec
}

// Snapshot returns a handler for GET /api/v1/snapshot and the legacy
// GET /scrape.
//
// The response body is the composite image itself; per-target statuses go
// in the X-Propsnap-Targets header as "name=status" pairs. When no target
// produced an image the body is {"error": ...} with status 502.
func Snapshot(svc Snapshotter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SnapshotRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err), nil)
			return
		}
		req.Defaults()

		res, err := svc.Snapshot(c.Request.Context(), snapshot.Request{
			Property: req.Property,
			City:     req.City,
			Format:   req.Format,
			Targets:  req.TargetNames(),
			MaxAge:   time.Duration(req.MaxAge) * time.Millisecond,
		})
		var outcomes []models.ScrapeOutcome
		if res != nil {
			outcomes = res.Outcomes
			c.Header(TargetsHeader, statusHeader(outcomes))
		}
		if err != nil {
			respondError(c, err, outcomes)
			return
		}

		if res.Cached {
			c.Header(CacheHeader, "hit")
		} else {
			c.Header(CacheHeader, "miss")
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, res.Image.ContentType(), res.Image.Data)
	}
}

func statusHeader(outcomes []models.ScrapeOutcome) string {
	parts := make([]string, len(outcomes))
	for i, o := range outcomes {
		parts[i] = o.TargetName + "=" + o.Status()
	}
	return strings.Join(parts, ",")
}
