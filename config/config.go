package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Fanout    FanoutConfig
	Output    OutputConfig
	Targets   TargetsConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the browser connection and per-session setup.
type BrowserConfig struct {
	// RemoteURL is the CDP WebSocket URL of a remote browser.
	// Read from PROPSNAP_BROWSER_URL, then BROWSER_URL. Empty = launch locally.
	RemoteURL string

	// StealthPath rewrites a "/chromium" endpoint path to "/chromium/stealth"
	// (browserless convention). default: false
	StealthPath bool

	// Stealth injects the go-rod/stealth evasions into every session. default: true
	Stealth bool

	// Headless controls whether a locally launched browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is passed to a locally launched browser.
	Proxy string

	// ViewportWidth and ViewportHeight size every session's viewport.
	ViewportWidth  int // default: 1280
	ViewportHeight int // default: 800

	// UserAgent overrides the session user agent when non-empty.
	UserAgent string

	// BlockedResourceTypes lists resource types to block.
	// default: ["Media"]
	BlockedResourceTypes []string

	// BlockAds blocks requests to well-known ad and tracking domains.
	BlockAds bool // default: true
}

// ScraperConfig holds the per-target step budgets.
type ScraperConfig struct {
	// NavigationTimeout is the default bound for the initial navigation.
	NavigationTimeout time.Duration // default: 10s

	// SearchTimeout bounds the wait for the search input and confirm button.
	SearchTimeout time.Duration // default: 5s

	// SuggestionTimeout bounds the wait for an autocomplete list.
	SuggestionTimeout time.Duration // default: 3s

	// ReadinessTimeout is the default bound for the readiness marker.
	ReadinessTimeout time.Duration // default: 6s

	// ReadinessGrace is the fixed fallback wait after a missed marker.
	ReadinessGrace time.Duration // default: 2s

	// StabilizeDelay lets lazy images settle before the screenshot.
	StabilizeDelay time.Duration // default: 1s

	// LazyScrollPx is how far the page is nudged down to wake lazy loaders
	// before scrolling back to the top. 0 disables the nudge.
	LazyScrollPx int // default: 500

	// WatchOverlays installs the overlay suppressor as a MutationObserver.
	WatchOverlays bool // default: true

	// ExtraOverlaySelectors are appended to the built-in suppression list.
	ExtraOverlaySelectors []string
}

// FanoutConfig controls the per-request batch.
type FanoutConfig struct {
	// BatchDeadline is the wall-clock budget for all targets together.
	BatchDeadline time.Duration // default: 45s

	// MaxConcurrency caps simultaneous sessions. 0 = one per target.
	MaxConcurrency int // default: 0

	// MemThreshold is the heap in-use fraction (0.0-1.0) above which the
	// batch runs serially.
	MemThreshold float64 // default: 0.9
}

// OutputConfig controls composite encoding.
type OutputConfig struct {
	Format      string // "png" or "jpeg"; default: "png"
	JPEGQuality int    // default: 85
}

// TargetsConfig locates the target catalog.
type TargetsConfig struct {
	// File is a YAML catalog path. Empty = built-in catalog.
	File string
}

// CacheConfig controls the in-memory snapshot cache.
type CacheConfig struct {
	// Enabled toggles the cache. Requests still opt in with max_age.
	Enabled bool // default: true

	// MaxEntries caps the number of cached composites.
	MaxEntries int // default: 64

	// TTL is how long an entry is kept regardless of max_age.
	TTL time.Duration // default: 15m
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory, if present, is loaded first; real
// environment variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load(".env")

	return &Config{
		Server: ServerConfig{
			Host: envOr("PROPSNAP_HOST", "0.0.0.0"),
			Port: envIntOr("PROPSNAP_PORT", 8080),
			Mode: envOr("PROPSNAP_MODE", "release"),
		},
		Browser: BrowserConfig{
			RemoteURL:      envOr("PROPSNAP_BROWSER_URL", os.Getenv("BROWSER_URL")),
			StealthPath:    envBoolOr("PROPSNAP_BROWSER_STEALTH_PATH", false),
			Stealth:        envBoolOr("PROPSNAP_STEALTH", true),
			Headless:       envBoolOr("PROPSNAP_HEADLESS", true),
			NoSandbox:      envBoolOr("PROPSNAP_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("PROPSNAP_BROWSER_BIN"),
			Proxy:          os.Getenv("PROPSNAP_PROXY"),
			ViewportWidth:  envIntOr("PROPSNAP_VIEWPORT_WIDTH", 1280),
			ViewportHeight: envIntOr("PROPSNAP_VIEWPORT_HEIGHT", 800),
			UserAgent:      os.Getenv("PROPSNAP_USER_AGENT"),
			BlockedResourceTypes: envSliceOr("PROPSNAP_BLOCKED_RESOURCES", []string{
				"Media",
			}),
			BlockAds: envBoolOr("PROPSNAP_BLOCK_ADS", true),
		},
		Scraper: ScraperConfig{
			NavigationTimeout:     envDurationOr("PROPSNAP_NAV_TIMEOUT", 10*time.Second),
			SearchTimeout:         envDurationOr("PROPSNAP_SEARCH_TIMEOUT", 5*time.Second),
			SuggestionTimeout:     envDurationOr("PROPSNAP_SUGGESTION_TIMEOUT", 3*time.Second),
			ReadinessTimeout:      envDurationOr("PROPSNAP_READY_TIMEOUT", 6*time.Second),
			ReadinessGrace:        envDurationOr("PROPSNAP_READY_GRACE", 2*time.Second),
			StabilizeDelay:        envDurationOr("PROPSNAP_STABILIZE_DELAY", 1*time.Second),
			LazyScrollPx:          envIntOr("PROPSNAP_LAZY_SCROLL_PX", 500),
			WatchOverlays:         envBoolOr("PROPSNAP_WATCH_OVERLAYS", true),
			ExtraOverlaySelectors: envSliceOr("PROPSNAP_OVERLAY_SELECTORS", nil),
		},
		Fanout: FanoutConfig{
			BatchDeadline:  envDurationOr("PROPSNAP_BATCH_DEADLINE", 45*time.Second),
			MaxConcurrency: envIntOr("PROPSNAP_MAX_CONCURRENCY", 0),
			MemThreshold:   envFloatOr("PROPSNAP_MEM_THRESHOLD", 0.9),
		},
		Output: OutputConfig{
			Format:      envOr("PROPSNAP_OUTPUT_FORMAT", "png"),
			JPEGQuality: envIntOr("PROPSNAP_JPEG_QUALITY", 85),
		},
		Targets: TargetsConfig{
			File: os.Getenv("PROPSNAP_TARGETS_FILE"),
		},
		Cache: CacheConfig{
			Enabled:    envBoolOr("PROPSNAP_CACHE_ENABLED", true),
			MaxEntries: envIntOr("PROPSNAP_CACHE_MAX_ENTRIES", 64),
			TTL:        envDurationOr("PROPSNAP_CACHE_TTL", 15*time.Minute),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PROPSNAP_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PROPSNAP_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PROPSNAP_RATE_RPS", 1.0),
			Burst:             envIntOr("PROPSNAP_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("PROPSNAP_LOG_LEVEL", "info"),
			Format: envOr("PROPSNAP_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		problems = append(problems, "viewport dimensions must be positive")
	}
	switch c.Output.Format {
	case "png", "jpeg":
	default:
		problems = append(problems, fmt.Sprintf("unsupported output format %q", c.Output.Format))
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		problems = append(problems, "jpeg quality must be within 1-100")
	}
	if c.Fanout.BatchDeadline <= 0 {
		problems = append(problems, "batch deadline must be positive")
	}
	if c.Fanout.MaxConcurrency < 0 {
		problems = append(problems, "max concurrency must not be negative")
	}
	if c.Scraper.NavigationTimeout <= 0 || c.Scraper.ReadinessTimeout <= 0 || c.Scraper.SearchTimeout <= 0 {
		problems = append(problems, "step timeouts must be positive")
	}
	if c.Cache.Enabled && (c.Cache.MaxEntries <= 0 || c.Cache.TTL <= 0) {
		problems = append(problems, "cache needs positive max entries and ttl")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		problems = append(problems, "auth enabled without PROPSNAP_API_KEYS")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BrowserURL returns the remote endpoint with the stealth path rewrite applied.
func (b BrowserConfig) BrowserURL() string {
	if b.RemoteURL == "" || !b.StealthPath {
		return b.RemoteURL
	}
	if strings.Contains(b.RemoteURL, "/chromium") && !strings.Contains(b.RemoteURL, "/chromium/stealth") {
		return strings.Replace(b.RemoteURL, "/chromium", "/chromium/stealth", 1)
	}
	return b.RemoteURL
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
