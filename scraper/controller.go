package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/propsnap/models"
	"github.com/use-agent/propsnap/targets"
)

// State is a Page Session Controller state.
type State string

const (
	StateInit      = State("init")
	StateNavigated = State("navigated")
	StateSearched  = State("searched")
	StateReady     = State("ready")
	StateDegraded  = State("degraded")
	StateCaptured  = State("captured")
	StateClosed    = State("closed")
)

// ControllerConfig holds the step budgets shared by every target.
type ControllerConfig struct {
	SearchTimeout     time.Duration
	SuggestionTimeout time.Duration
	StabilizeDelay    time.Duration
	LazyScrollPx      int
	WatchOverlays     bool
}

// Controller drives one target through
//
//	init → navigated → searched → ready|degraded → captured → closed
//
// Every run opens its own session and releases it on every path. Errors
// never escape Run: they become Failure outcomes.
type Controller struct {
	cfg        ControllerConfig
	suppressor *Suppressor
	detector   *Detector
	logger     *slog.Logger
}

// NewController wires a controller. A nil logger uses slog.Default().
func NewController(cfg ControllerConfig, suppressor *Suppressor, detector *Detector, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if suppressor == nil {
		suppressor = NewSuppressor()
	}
	if detector == nil {
		detector = NewDetector(2*time.Second, logger)
	}
	return &Controller{cfg: cfg, suppressor: suppressor, detector: detector, logger: logger}
}

// stepError tags a step failure with the outcome kind it maps to.
type stepError struct {
	kind models.ErrorKind
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func fail(kind models.ErrorKind, format string, args ...any) error {
	return &stepError{kind: kind, err: fmt.Errorf(format, args...)}
}

// run holds the per-run mutable state. It is never shared.
type run struct {
	*Controller
	spec  targets.TargetSpec
	query targets.Query
	sess  Session
	state State
	log   *slog.Logger
}

// Run executes the state machine for one target and returns its outcome.
func (c *Controller) Run(ctx context.Context, opener SessionOpener, spec targets.TargetSpec, q targets.Query) (out models.ScrapeOutcome) {
	start := time.Now()
	r := &run{
		Controller: c,
		spec:       spec,
		query:      q,
		state:      StateInit,
		log:        c.logger.With("target", spec.Name),
	}

	defer func() {
		if p := recover(); p != nil {
			out = models.Failure(spec.Name, models.ErrCodeCaptureFailure, fmt.Sprintf("panic: %v", p))
		}
		r.close()
		out.Duration = time.Since(start)
		r.log.Info("target finished",
			"status", out.Status(),
			"detail", out.Detail,
			"duration_ms", out.Duration.Milliseconds(),
		)
	}()

	sess, err := opener.OpenSession(ctx)
	if err != nil {
		return models.Failure(spec.Name, models.ErrCodeCaptureFailure, "open session: "+err.Error())
	}
	r.sess = sess

	image, readiness, diagnosis, err := r.drive(ctx)
	if err != nil {
		kind := models.ErrCodeCaptureFailure
		var se *stepError
		if errors.As(err, &se) {
			kind = se.kind
		}
		return models.Failure(spec.Name, kind, err.Error())
	}
	return models.Success(spec.Name, image, readiness, diagnosis)
}

func (r *run) transition(to State) {
	r.log.Debug("state transition", "from", r.state, "to", to)
	r.state = to
}

// close releases the session exactly once, whatever state the run is in.
func (r *run) close() {
	if r.sess != nil {
		if err := r.sess.Close(); err != nil {
			r.log.Warn("session close failed", "error", err)
		}
		r.sess = nil
	}
	r.transition(StateClosed)
}

func (r *run) drive(ctx context.Context) ([]byte, models.Readiness, models.Diagnosis, error) {
	// ── init → navigated ────────────────────────────────────────────
	if r.cfg.WatchOverlays {
		if err := r.suppressor.Watch(ctx, r.sess); err != nil {
			r.log.Warn("overlay watcher not installed", "error", err)
		}
	}

	entry := r.spec.EntryURL(r.query)
	navCtx, cancel := context.WithTimeout(ctx, r.spec.NavigateTimeout)
	err := r.sess.Navigate(navCtx, entry)
	cancel()
	if err != nil {
		return nil, "", "", fail(models.ErrCodeNavigationTimeout, "navigate %s: %v", entry, err)
	}
	r.transition(StateNavigated)

	// ── navigated → searched ────────────────────────────────────────
	r.suppress(ctx)
	if !r.spec.SkipsSearch() {
		if err := r.search(ctx); err != nil {
			return nil, "", "", err
		}
	}
	r.transition(StateSearched)

	// ── searched → ready | degraded ─────────────────────────────────
	readiness := r.detector.AwaitReady(ctx, r.sess, r.spec)
	diagnosis := models.DiagnosisReady
	if readiness == models.ReadinessReady {
		r.transition(StateReady)
	} else {
		r.transition(StateDegraded)
		diagnosis = models.DiagnosisUnknown
		if html, err := r.sess.HTML(ctx); err == nil {
			diagnosis = Diagnose(html)
		}
		r.log.Info("capturing degraded page", "diagnosis", diagnosis)
	}

	// ── ready | degraded → captured ─────────────────────────────────
	image, err := r.capture(ctx)
	if err != nil {
		return nil, "", "", err
	}
	r.transition(StateCaptured)
	return image, readiness, diagnosis, nil
}

func (r *run) suppress(ctx context.Context) {
	if err := r.suppressor.Suppress(ctx, r.sess); err != nil {
		r.log.Debug("overlay suppression failed", "error", err)
	}
}

func (r *run) search(ctx context.Context) error {
	for _, raw := range r.spec.PreSearch {
		loc := targets.ParseLocator(raw)
		stepCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
		err := r.sess.Click(stepCtx, loc)
		cancel()
		if err != nil {
			r.log.Info("pre-search step skipped", "locator", loc.String(), "error", err)
		}
	}

	input := targets.ParseLocator(r.spec.SearchInput)
	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	err := r.sess.Fill(stepCtx, input, r.query.Text())
	cancel()
	if err != nil {
		return r.locatorFailure("fill search input", input, err)
	}

	picked := false
	if r.spec.Suggestions != "" {
		picked = r.pickSuggestion(ctx)
	}

	if r.spec.Confirm != "" {
		confirm := targets.ParseLocator(r.spec.Confirm)
		stepCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
		err := r.sess.Click(stepCtx, confirm)
		cancel()
		if err != nil {
			return r.locatorFailure("click confirm", confirm, err)
		}
		return nil
	}
	if picked {
		return nil
	}

	stepCtx, cancel = context.WithTimeout(ctx, r.cfg.SearchTimeout)
	err = r.sess.PressEnter(stepCtx, input)
	cancel()
	if err != nil {
		return r.locatorFailure("submit search", input, err)
	}
	return nil
}

// pickSuggestion waits briefly for the autocomplete list and clicks the best
// match. It reports whether a suggestion was clicked.
func (r *run) pickSuggestion(ctx context.Context) bool {
	loc := targets.ParseLocator(r.spec.Suggestions)

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.SuggestionTimeout)
	texts, err := r.sess.Texts(waitCtx, loc)
	cancel()
	if err != nil || len(texts) == 0 {
		r.log.Debug("no suggestions appeared", "locator", loc.String(), "error", err)
		return false
	}

	idx := BestSuggestion(texts, r.query.Property)
	clickCtx, cancel := context.WithTimeout(ctx, r.cfg.SuggestionTimeout)
	err = r.sess.ClickNth(clickCtx, loc, idx)
	cancel()
	if err != nil {
		r.log.Debug("suggestion click failed", "index", idx, "error", err)
		return false
	}
	r.log.Debug("suggestion selected", "index", idx, "text", texts[idx])
	return true
}

// BestSuggestion returns the index of the first suggestion containing the
// property name (case-insensitive), or 0 when none does.
func BestSuggestion(texts []string, property string) int {
	needle := strings.ToLower(strings.TrimSpace(property))
	if needle == "" {
		return 0
	}
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), needle) {
			return i
		}
	}
	return 0
}

func (r *run) locatorFailure(step string, loc targets.Locator, err error) error {
	if errors.Is(err, ErrElementNotFound) || errors.Is(err, context.DeadlineExceeded) {
		return fail(models.ErrCodeElementNotFound, "%s %q: %v", step, loc.String(), err)
	}
	return fail(models.ErrCodeCaptureFailure, "%s %q: %v", step, loc.String(), err)
}

func (r *run) capture(ctx context.Context) ([]byte, error) {
	r.suppress(ctx)

	if r.cfg.LazyScrollPx > 0 {
		if err := r.sess.Eval(ctx, `(y) => window.scrollTo(0, y)`, r.cfg.LazyScrollPx); err != nil {
			r.log.Debug("lazy-load scroll failed", "error", err)
		}
		if err := sleepCtx(ctx, r.cfg.StabilizeDelay/2); err != nil {
			return nil, err
		}
	}
	if err := r.sess.Eval(ctx, `() => window.scrollTo(0, 0)`); err != nil {
		return nil, fmt.Errorf("reset scroll: %w", err)
	}
	if err := sleepCtx(ctx, r.cfg.StabilizeDelay); err != nil {
		return nil, err
	}

	image, err := r.sess.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("screenshot: empty image")
	}
	return image, nil
}
