package api

import (
	"context"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/propsnap/api/handler"
	"github.com/use-agent/propsnap/api/middleware"
	"github.com/use-agent/propsnap/config"
)

// Deps are the collaborators the routes call into.
type Deps struct {
	Snapshots handler.Snapshotter
	Sessions  handler.SessionStatser
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work. ctx bounds the
// rate limiter's background eviction.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(deps.Sessions, len(deps.Snapshots.Targets()), deps.StartTime))

	guard := []gin.HandlerFunc{}
	if cfg.Auth.Enabled {
		guard = append(guard, middleware.Auth(cfg.Auth.APIKeys))
	}
	guard = append(guard, middleware.RateLimit(ctx, cfg.RateLimit))

	protected := v1.Group("", guard...)
	protected.GET("/snapshot", handler.Snapshot(deps.Snapshots))
	protected.GET("/targets", handler.Targets(deps.Snapshots))

	// Original endpoint: GET /scrape?prop=...&city=...
	r.GET("/scrape", append(slices.Clone(guard), handler.Snapshot(deps.Snapshots))...)

	return r
}
