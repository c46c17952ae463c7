package scraper

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed js/suppress.js
var suppressJS string

//go:embed js/watch.js
var watchJS string

// DefaultOverlaySelectors is the interference list applied to every target:
// modal dialogs and backdrops, chat widgets, tooltips, onboarding steps,
// login prompts, and cookie/consent banners.
var DefaultOverlaySelectors = []string{
	".modal",
	".modal-backdrop",
	".chat-widget-container",
	".tooltip",
	".nb-tp-container",
	".nb-search-along-metro-popover",
	".nearby-locality-container",
	".joyride-step__container",
	".p-4.text-center",
	"#common-login",
	"#onetrust-banner-sdk",
	"#CybotCookiebotDialog",
	"[class*=\"cookie-banner\"]",
	"[class*=\"consent-banner\"]",
	"[id*=\"gdpr\"]",
}

// Suppressor removes DOM nodes that would obscure a capture.
type Suppressor struct {
	selectors []string
	watchSrc  string
}

// NewSuppressor builds a suppressor from the default list plus extra
// selectors. Duplicates and blanks are dropped.
func NewSuppressor(extra ...string) *Suppressor {
	seen := make(map[string]bool)
	var sels []string
	for _, s := range append(append([]string(nil), DefaultOverlaySelectors...), extra...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		sels = append(sels, s)
	}

	encoded, _ := json.Marshal(sels)
	return &Suppressor{
		selectors: sels,
		watchSrc:  strings.Replace(watchJS, "__SELECTORS__", string(encoded), 1),
	}
}

// Selectors returns a copy of the active suppression list.
func (s *Suppressor) Selectors() []string {
	return append([]string(nil), s.selectors...)
}

// Suppress removes every current match and clears scroll lock. Repeated
// calls only remove newly appeared matches.
func (s *Suppressor) Suppress(ctx context.Context, sess Session) error {
	if err := sess.Eval(ctx, suppressJS, s.selectors); err != nil {
		return fmt.Errorf("suppress overlays: %w", err)
	}
	return nil
}

// Watch installs the sweep as a document-start MutationObserver so overlays
// injected later are removed without an explicit call. Install before the
// first navigation.
func (s *Suppressor) Watch(ctx context.Context, sess Session) error {
	if err := sess.InstallScript(ctx, s.watchSrc); err != nil {
		return fmt.Errorf("install overlay watcher: %w", err)
	}
	return nil
}
