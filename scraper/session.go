package scraper

import (
	"context"
	"errors"

	"github.com/use-agent/propsnap/targets"
)

// ErrElementNotFound is wrapped by Session methods when a locator does not
// resolve before the context deadline.
var ErrElementNotFound = errors.New("element not found")

// Session is one isolated browsing surface (own cookies and storage) driven
// by a single controller run. Implementations need not be safe for
// concurrent use; Close must be safe to call more than once.
type Session interface {
	// InstallScript registers js to run at the start of every document.
	InstallScript(ctx context.Context, js string) error

	// Navigate loads url; it returns once the navigation has committed.
	Navigate(ctx context.Context, url string) error

	// Eval runs a JS function in the current document.
	Eval(ctx context.Context, js string, args ...any) error

	Fill(ctx context.Context, loc targets.Locator, text string) error
	Click(ctx context.Context, loc targets.Locator) error

	// PressEnter focuses loc and presses Enter.
	PressEnter(ctx context.Context, loc targets.Locator) error

	// WaitVisible blocks until some element matching loc is visible. Every
	// poll re-queries the page; hidden matches are skipped.
	WaitVisible(ctx context.Context, loc targets.Locator) error

	// Texts returns the text of every visible element matching loc, waiting
	// until at least one exists.
	Texts(ctx context.Context, loc targets.Locator) ([]string, error)

	// ClickNth clicks the n-th visible element matching loc.
	ClickNth(ctx context.Context, loc targets.Locator, n int) error

	HTML(ctx context.Context) (string, error)

	// Screenshot captures the current viewport only.
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}

// SessionOpener creates isolated sessions over one shared browser
// connection. OpenSession must be safe for concurrent callers.
type SessionOpener interface {
	OpenSession(ctx context.Context) (Session, error)
}
