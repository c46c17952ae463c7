package targets

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
)

// LocatorKind selects how a Locator is resolved in the page.
type LocatorKind int

const (
	// LocatorCSS resolves to the first visible element matching the selector.
	LocatorCSS LocatorKind = iota
	// LocatorText resolves to the first visible innermost element whose own
	// text contains Value, case-insensitively. Script, style, noscript and
	// template text is ignored.
	LocatorText
)

const textPrefix = "text="

// Locator addresses an element in a target page.
type Locator struct {
	Kind  LocatorKind
	Value string
}

// ParseLocator reads the catalog locator grammar: "text=<substring>" is a
// text locator, anything else is a CSS selector.
func ParseLocator(s string) Locator {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, textPrefix) {
		return Locator{Kind: LocatorText, Value: strings.TrimSpace(strings.TrimPrefix(s, textPrefix))}
	}
	return Locator{Kind: LocatorCSS, Value: s}
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool { return l.Value == "" }

// KindName is the name passed to the in-page resolver script.
func (l Locator) KindName() string {
	if l.Kind == LocatorText {
		return "text"
	}
	return "css"
}

func (l Locator) String() string {
	if l.Kind == LocatorText {
		return textPrefix + l.Value
	}
	return l.Value
}

// Validate checks that the locator is non-empty and, for CSS, parses.
func (l Locator) Validate() error {
	if l.Value == "" {
		return fmt.Errorf("empty locator")
	}
	if l.Kind == LocatorCSS {
		if _, err := cascadia.Compile(l.Value); err != nil {
			return fmt.Errorf("invalid css selector %q: %w", l.Value, err)
		}
	}
	return nil
}
