// Package snapshot is the request pipeline: validate the query, fan it out
// over the selected targets and composite whatever came back.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/propsnap/cache"
	"github.com/use-agent/propsnap/compose"
	"github.com/use-agent/propsnap/models"
	"github.com/use-agent/propsnap/targets"
)

// Fanout runs a query over specs and returns one outcome per spec, in order.
type Fanout interface {
	RunAll(ctx context.Context, specs []targets.TargetSpec, q targets.Query) []models.ScrapeOutcome
}

// Request is one snapshot call.
type Request struct {
	Property string
	City     string

	// Format is "png" or "jpeg"; empty uses the compositor default.
	Format string

	// Targets restricts the run to the named targets; empty means all.
	Targets []string

	// MaxAge accepts a cached composite up to this old. Zero always runs
	// the browser.
	MaxAge time.Duration
}

// Result carries the composite and every per-target outcome. Outcomes are
// set even when Snapshot returns an error after the fan-out.
type Result struct {
	Image    *compose.CompositeImage
	Outcomes []models.ScrapeOutcome
	Duration time.Duration

	// Cached is set when the composite came from the cache; Outcomes then
	// carry no per-target image bytes.
	Cached bool
}

// Service wires the registry, coordinator and compositor. It holds no
// per-request state.
type Service struct {
	registry   *targets.Registry
	fanout     Fanout
	compositor *compose.Compositor
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(registry *targets.Registry, fanout Fanout, compositor *compose.Compositor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, fanout: fanout, compositor: compositor, logger: logger}
}

// WithCache stores successful composites in c and serves requests with a
// MaxAge from it.
func (s *Service) WithCache(c *cache.Cache) *Service {
	s.cache = c
	return s
}

// Targets lists the registry in composite order.
func (s *Service) Targets() []targets.TargetSpec {
	return s.registry.List()
}

// Snapshot runs the full pipeline. Input problems return INVALID_INPUT
// before any browser work starts; zero successful captures return NO_IMAGE
// together with the outcomes explaining why.
func (s *Service) Snapshot(ctx context.Context, req Request) (*Result, error) {
	q, err := targets.NewQuery(req.Property, req.City)
	if err != nil {
		return nil, err
	}
	switch req.Format {
	case "", compose.FormatPNG, compose.FormatJPEG:
	default:
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("format must be png or jpeg, got %q", req.Format), nil)
	}
	specs, err := s.registry.Select(req.Targets)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	format := req.Format
	if format == "" {
		format = s.compositor.Format
	}
	key := ""
	if s.cache != nil {
		names := make([]string, len(specs))
		for i, spec := range specs {
			names[i] = spec.Name
		}
		key = cache.Key(q.Property, q.City, format, names)
		if e, ok := s.cache.Get(key, req.MaxAge); ok {
			s.logger.Info("snapshot served from cache", "query", q.Text(), "age_ms", time.Since(e.CreatedAt).Milliseconds())
			return &Result{Image: e.Image, Outcomes: e.Outcomes, Duration: time.Since(start), Cached: true}, nil
		}
	}

	s.logger.Info("snapshot started", "query", q.Text(), "targets", len(specs))

	res := &Result{Outcomes: s.fanout.RunAll(ctx, specs, q)}
	res.Image, err = s.compositor.ComposeAs(res.Outcomes, format)
	res.Duration = time.Since(start)
	if err != nil {
		s.logger.Warn("snapshot produced no image",
			"query", q.Text(),
			"duration_ms", res.Duration.Milliseconds(),
			"error", err,
		)
		return res, err
	}

	s.logger.Info("snapshot complete",
		"query", q.Text(),
		"included", res.Image.Targets,
		"width", res.Image.Width,
		"height", res.Image.Height,
		"bytes", len(res.Image.Data),
		"duration_ms", res.Duration.Milliseconds(),
	)
	if s.cache != nil {
		s.cache.Set(key, res.Image, res.Outcomes)
	}
	return res, nil
}
