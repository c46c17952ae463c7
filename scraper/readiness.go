package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/propsnap/models"
	"github.com/use-agent/propsnap/targets"
)

// Detector decides when a target page has left its skeleton state.
//
// Phase one waits up to spec.ReadinessTimeout for the readiness marker to be
// visible. If that fails, phase two sleeps a fixed grace period and the page
// is captured anyway. A missed marker degrades the capture; it never aborts
// the session.
type Detector struct {
	Grace  time.Duration
	Logger *slog.Logger
}

// NewDetector creates a Detector with the given fallback grace period.
func NewDetector(grace time.Duration, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{Grace: grace, Logger: logger}
}

// AwaitReady returns ReadinessReady if the marker became visible within the
// budget, ReadinessDegraded otherwise.
func (d *Detector) AwaitReady(ctx context.Context, sess Session, spec targets.TargetSpec) models.Readiness {
	marker := targets.ParseLocator(spec.ReadinessMarker)

	waitCtx, cancel := context.WithTimeout(ctx, spec.ReadinessTimeout)
	err := sess.WaitVisible(waitCtx, marker)
	cancel()
	if err == nil {
		return models.ReadinessReady
	}

	d.Logger.Debug("readiness marker not visible, using grace period",
		"target", spec.Name,
		"marker", marker.String(),
		"grace", d.Grace,
		"error", err,
	)
	_ = sleepCtx(ctx, d.Grace)
	return models.ReadinessDegraded
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
