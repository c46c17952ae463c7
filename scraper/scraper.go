package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/propsnap/config"
	"github.com/use-agent/propsnap/models"
	"github.com/ysmood/gson"
)

// Scraper owns the shared browser connection and hands out isolated
// sessions over it. It is safe for concurrent use.
type Scraper struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher // nil when connected to a remote browser

	active    atomic.Int32
	opened    atomic.Int64
	startTime time.Time
}

var _ SessionOpener = (*Scraper)(nil)

// NewScraper connects to cfg.RemoteURL, or launches a local Chromium when
// no remote endpoint is configured.
func NewScraper(cfg config.BrowserConfig, logger *slog.Logger) (*Scraper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scraper{cfg: cfg, logger: logger, startTime: time.Now()}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scraper) connect() error {
	controlURL := s.cfg.BrowserURL()
	if controlURL == "" {
		l := s.newLauncher()
		u, err := l.Launch()
		if err != nil {
			return models.NewScrapeError(models.ErrCodeBrowserUnavailable, "failed to launch browser", err)
		}
		s.launcher = l
		controlURL = u
		s.logger.Info("browser launched", "controlURL", controlURL)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserUnavailable, "failed to connect to browser", err)
	}
	s.browser = browser
	s.logger.Info("browser connected", "remote", s.launcher == nil, "endpoint", redactURL(controlURL))
	return nil
}

func (s *Scraper) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(s.cfg.Headless).
		NoSandbox(s.cfg.NoSandbox)

	if s.cfg.BrowserBin != "" {
		l = l.Bin(s.cfg.BrowserBin)
	}
	if s.cfg.Proxy != "" {
		l = l.Proxy(s.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

// incognito creates a fresh browser context, reconnecting once if the
// shared connection has dropped.
func (s *Scraper) incognito() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "scraper is closed", nil)
	}
	ctx, err := s.browser.Incognito()
	if err == nil {
		return ctx, nil
	}
	s.logger.Warn("browser context creation failed, reconnecting", "error", err)
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	} else {
		_ = s.browser.Close()
	}
	if cerr := s.connect(); cerr != nil {
		return nil, cerr
	}
	ctx, err = s.browser.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "failed to create browser context", err)
	}
	return ctx, nil
}

// OpenSession returns a new isolated session: its own incognito context and
// one page, configured before any navigation happens.
//
// Setup order matters: stealth JS and request hijacking only apply to
// navigations started after they are installed.
func (s *Scraper) OpenSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Browser handles stay unbound from ctx; Close must work after it expires.
	incognito, err := s.incognito()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if s.cfg.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "failed to create page", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		s.logger.Warn("viewport override failed", "error", err)
	}

	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      s.cfg.UserAgent,
			AcceptLanguage: "en-IN,en;q=0.9",
		}); err != nil {
			s.logger.Warn("user agent override failed", "error", err)
		}
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-IN,en;q=0.9",
		}),
	}.Call(page)

	sess := &rodSession{
		incognito: incognito,
		page:      page,
		router:    setupHijack(page, s.cfg.BlockedResourceTypes, s.cfg.BlockAds),
		onClose:   func() { s.active.Add(-1) },
	}
	s.active.Add(1)
	s.opened.Add(1)
	return sess, nil
}

// Stats returns a snapshot of the connection's current state.
func (s *Scraper) Stats() models.SessionStats {
	s.mu.Lock()
	connected := s.browser != nil
	s.mu.Unlock()
	remote := s.cfg.RemoteURL != ""
	return models.SessionStats{
		Connected:      connected,
		Remote:         remote,
		ActiveSessions: int(s.active.Load()),
		OpenedTotal:    s.opened.Load(),
	}
}

// Uptime is the time since the scraper was created.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Close shuts the browser down. A locally launched browser is also killed so
// no Chrome process outlives the service.
func (s *Scraper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("scraper shutting down", "active_sessions", s.active.Load())
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
	s.logger.Info("scraper shutdown complete")
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// redactURL drops query strings, which commonly carry browser service tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
