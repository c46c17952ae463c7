package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/propsnap/api"
	"github.com/use-agent/propsnap/cache"
	"github.com/use-agent/propsnap/compose"
	"github.com/use-agent/propsnap/config"
	"github.com/use-agent/propsnap/fanout"
	"github.com/use-agent/propsnap/scraper"
	"github.com/use-agent/propsnap/snapshot"
	"github.com/use-agent/propsnap/targets"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("propsnap starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"remoteBrowser", cfg.Browser.RemoteURL != "",
	)

	// ── 3. Load the target registry (fails fast on a bad catalog) ───
	registry, err := loadRegistry(cfg)
	if err != nil {
		slog.Error("failed to load target registry", "error", err)
		os.Exit(1)
	}
	slog.Info("target registry loaded", "targets", registry.Len(), "file", cfg.Targets.File)

	// ── 4. Connect to the browser ───────────────────────────────────
	sc, err := scraper.NewScraper(cfg.Browser, slog.Default())
	if err != nil {
		slog.Error("failed to initialise scraper", "error", err)
		os.Exit(1)
	}
	defer sc.Close()

	// ── 5. Wire the pipeline ────────────────────────────────────────
	controller := scraper.NewController(
		scraper.ControllerConfig{
			SearchTimeout:     cfg.Scraper.SearchTimeout,
			SuggestionTimeout: cfg.Scraper.SuggestionTimeout,
			StabilizeDelay:    cfg.Scraper.StabilizeDelay,
			LazyScrollPx:      cfg.Scraper.LazyScrollPx,
			WatchOverlays:     cfg.Scraper.WatchOverlays,
		},
		scraper.NewSuppressor(cfg.Scraper.ExtraOverlaySelectors...),
		scraper.NewDetector(cfg.Scraper.ReadinessGrace, slog.Default()),
		slog.Default(),
	)
	coordinator := fanout.New(fanout.Config{
		BatchDeadline:  cfg.Fanout.BatchDeadline,
		MaxConcurrency: cfg.Fanout.MaxConcurrency,
		MemThreshold:   cfg.Fanout.MemThreshold,
	}, controller, sc, slog.Default())
	compositor := compose.New(cfg.Output.Format, cfg.Output.JPEGQuality, slog.Default())
	svc := snapshot.NewService(registry, coordinator, compositor, slog.Default())

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	if cfg.Cache.Enabled {
		svc.WithCache(cache.New(rootCtx, cfg.Cache.MaxEntries, cfg.Cache.TTL))
	}

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(rootCtx, cfg, api.Deps{
		Snapshots: svc,
		Sessions:  sc,
		StartTime: time.Now(),
	})

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Fanout.BatchDeadline + 15*time.Second,
	}

	// ── 8. Serve until a signal, then shut down gracefully ──────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// In-flight snapshots get one batch deadline to finish.
	if err := serve(srv, quit, cfg.Fanout.BatchDeadline); err != nil {
		slog.Error("HTTP server error", "error", err)
		// os.Exit skips defers; release the browser first.
		stop()
		sc.Close()
		os.Exit(1)
	}

	// sc.Close() runs via defer and releases the browser.
	slog.Info("propsnap stopped")
}

// serve runs srv until a signal arrives on quit, then drains it for up to
// drain. A listener failure is returned instead.
func serve(srv *http.Server, quit <-chan os.Signal, drain time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	return nil
}

func loadRegistry(cfg *config.Config) (*targets.Registry, error) {
	defaults := targets.Defaults{
		NavigateTimeout:  cfg.Scraper.NavigationTimeout,
		ReadinessTimeout: cfg.Scraper.ReadinessTimeout,
	}
	if cfg.Targets.File != "" {
		return targets.LoadFile(cfg.Targets.File, defaults)
	}
	return targets.Default(defaults)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
