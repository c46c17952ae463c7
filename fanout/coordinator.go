// Package fanout runs one page session controller per target concurrently
// and collects exactly one outcome per target, in target order.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/propsnap/models"
	"github.com/use-agent/propsnap/scraper"
	"github.com/use-agent/propsnap/targets"
	"golang.org/x/sync/semaphore"
)

// Runner drives a single target to an outcome. *scraper.Controller
// implements it.
type Runner interface {
	Run(ctx context.Context, opener scraper.SessionOpener, spec targets.TargetSpec, q targets.Query) models.ScrapeOutcome
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, opener scraper.SessionOpener, spec targets.TargetSpec, q targets.Query) models.ScrapeOutcome

func (fn RunnerFunc) Run(ctx context.Context, opener scraper.SessionOpener, spec targets.TargetSpec, q targets.Query) models.ScrapeOutcome {
	return fn(ctx, opener, spec, q)
}

// DefaultBatchDeadline applies when Config.BatchDeadline is unset.
const DefaultBatchDeadline = 45 * time.Second

// Config bounds one batch.
type Config struct {
	// BatchDeadline is the wall-clock budget for the whole batch.
	BatchDeadline time.Duration

	// MaxConcurrency caps simultaneous runs; 0 runs every target at once.
	MaxConcurrency int

	// MemThreshold switches the batch to serial execution when
	// MemPressure exceeds it. 0 disables the check.
	MemThreshold float64
}

// Coordinator fans a query out over targets.
type Coordinator struct {
	cfg      Config
	runner   Runner
	opener   scraper.SessionOpener
	logger   *slog.Logger
	pressure func() float64
}

// New creates a Coordinator. A nil logger uses slog.Default().
func New(cfg Config, runner Runner, opener scraper.SessionOpener, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchDeadline <= 0 {
		cfg.BatchDeadline = DefaultBatchDeadline
	}
	return &Coordinator{
		cfg:      cfg,
		runner:   runner,
		opener:   opener,
		logger:   logger,
		pressure: MemPressure,
	}
}

// limit picks the concurrency for a batch of n targets.
func (c *Coordinator) limit(n int) int {
	if c.cfg.MemThreshold > 0 {
		if p := c.pressure(); p > c.cfg.MemThreshold {
			c.logger.Warn("memory pressure high, running targets serially",
				"pressure", p, "threshold", c.cfg.MemThreshold)
			return 1
		}
	}
	if c.cfg.MaxConcurrency > 0 && c.cfg.MaxConcurrency < n {
		return c.cfg.MaxConcurrency
	}
	return n
}

// RunAll runs every spec and returns one outcome per spec, index-aligned
// with specs. It returns by the batch deadline even if some runs are still
// in flight: those are abandoned (their context is cancelled so they still
// release their sessions) and recorded as READINESS_TIMEOUT. A panicking
// run becomes that target's CAPTURE_FAILURE.
func (c *Coordinator) RunAll(ctx context.Context, specs []targets.TargetSpec, q targets.Query) []models.ScrapeOutcome {
	outcomes := make([]models.ScrapeOutcome, len(specs))
	if len(specs) == 0 {
		return outcomes
	}

	start := time.Now()
	batchCtx, cancel := context.WithTimeout(ctx, c.cfg.BatchDeadline)
	defer cancel()

	limit := c.limit(len(specs))
	sem := semaphore.NewWeighted(int64(limit))

	// One buffered slot per target; a late run never blocks on send.
	slots := make([]chan models.ScrapeOutcome, len(specs))
	for i, spec := range specs {
		slot := make(chan models.ScrapeOutcome, 1)
		slots[i] = slot

		go func(spec targets.TargetSpec) {
			defer func() {
				if p := recover(); p != nil {
					c.logger.Error("target run panicked", "target", spec.Name, "panic", p)
					slot <- models.Failure(spec.Name, models.ErrCodeCaptureFailure, fmt.Sprintf("panic: %v", p))
				}
			}()

			if err := sem.Acquire(batchCtx, 1); err != nil {
				slot <- models.Failure(spec.Name, models.ErrCodeReadinessTimeout,
					"batch deadline reached before the target started")
				return
			}
			defer sem.Release(1)

			slot <- c.runner.Run(batchCtx, c.opener, spec, q)
		}(spec)
	}

	for i, slot := range slots {
		select {
		case out := <-slot:
			outcomes[i] = out
		case <-batchCtx.Done():
			select {
			case out := <-slot:
				outcomes[i] = out
			default:
				out := models.Failure(specs[i].Name, models.ErrCodeReadinessTimeout,
					fmt.Sprintf("abandoned at batch deadline (%s)", c.cfg.BatchDeadline))
				out.Duration = time.Since(start)
				outcomes[i] = out
				c.logger.Warn("target abandoned", "target", specs[i].Name, "deadline", c.cfg.BatchDeadline)
			}
		}
	}

	succeeded := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		}
	}
	c.logger.Info("batch finished",
		"targets", len(specs),
		"succeeded", succeeded,
		"concurrency", limit,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcomes
}
