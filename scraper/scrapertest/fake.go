// Package scrapertest provides scripted in-memory sessions for exercising
// the controller and coordinator without a browser.
package scrapertest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/use-agent/propsnap/scraper"
	"github.com/use-agent/propsnap/targets"
)

// Call records one Session method invocation.
type Call struct {
	Method  string
	Locator string
	Arg     string
}

// FakeSession is a scripted scraper.Session. Locators are keyed by their
// String() form. The zero value resolves every locator and returns an empty
// screenshot, so most tests set at least Image.
type FakeSession struct {
	// Image is returned by Screenshot.
	Image []byte

	NavigateErr   error
	NavigateDelay time.Duration

	// Missing locators fail immediately with scraper.ErrElementNotFound.
	Missing map[string]bool

	// Hidden locators block WaitVisible until the context is done.
	Hidden map[string]bool

	// VisibleAfter makes WaitVisible succeed once the duration has passed
	// since the call, or fail if the context ends first.
	VisibleAfter map[string]time.Duration

	// Suggestions is the text list returned by Texts.
	Suggestions []string

	HTMLBody      string
	ScreenshotErr error
	EvalErr       error

	// PanicIn makes the named method panic.
	PanicIn string

	// Block makes Navigate wait for the context regardless of NavigateDelay.
	Block bool

	// Stall makes Navigate sleep without watching the context, like a
	// browser call that ignores cancellation.
	Stall time.Duration

	mu      sync.Mutex
	calls   []Call
	scripts []string
	closes  int
}

var _ scraper.Session = (*FakeSession)(nil)

func (f *FakeSession) record(method string, loc targets.Locator, arg string) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Locator: loc.String(), Arg: arg})
	f.mu.Unlock()
	if f.PanicIn == method {
		panic("scrapertest: scripted panic in " + method)
	}
}

func (f *FakeSession) resolve(ctx context.Context, loc targets.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Missing[loc.String()] {
		return fmt.Errorf("%w: %s", scraper.ErrElementNotFound, loc)
	}
	return nil
}

func (f *FakeSession) InstallScript(ctx context.Context, js string) error {
	f.record("InstallScript", targets.Locator{}, "")
	f.mu.Lock()
	f.scripts = append(f.scripts, js)
	f.mu.Unlock()
	return nil
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.record("Navigate", targets.Locator{}, url)
	if f.Stall > 0 {
		time.Sleep(f.Stall)
	}
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.NavigateDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.NavigateDelay):
		}
	}
	return f.NavigateErr
}

func (f *FakeSession) Eval(ctx context.Context, js string, args ...any) error {
	f.record("Eval", targets.Locator{}, js)
	return f.EvalErr
}

func (f *FakeSession) Fill(ctx context.Context, loc targets.Locator, text string) error {
	f.record("Fill", loc, text)
	return f.resolve(ctx, loc)
}

func (f *FakeSession) Click(ctx context.Context, loc targets.Locator) error {
	f.record("Click", loc, "")
	return f.resolve(ctx, loc)
}

func (f *FakeSession) PressEnter(ctx context.Context, loc targets.Locator) error {
	f.record("PressEnter", loc, "")
	return f.resolve(ctx, loc)
}

func (f *FakeSession) WaitVisible(ctx context.Context, loc targets.Locator) error {
	f.record("WaitVisible", loc, "")
	if f.Hidden[loc.String()] {
		<-ctx.Done()
		return fmt.Errorf("%w: %s: %v", scraper.ErrElementNotFound, loc, ctx.Err())
	}
	if d, ok := f.VisibleAfter[loc.String()]; ok {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", scraper.ErrElementNotFound, loc, ctx.Err())
		case <-timer.C:
		}
	}
	return f.resolve(ctx, loc)
}

func (f *FakeSession) Texts(ctx context.Context, loc targets.Locator) ([]string, error) {
	f.record("Texts", loc, "")
	if err := f.resolve(ctx, loc); err != nil {
		return nil, err
	}
	if len(f.Suggestions) == 0 {
		return nil, fmt.Errorf("%w: %s", scraper.ErrElementNotFound, loc)
	}
	return append([]string(nil), f.Suggestions...), nil
}

func (f *FakeSession) ClickNth(ctx context.Context, loc targets.Locator, n int) error {
	f.record("ClickNth", loc, fmt.Sprint(n))
	return f.resolve(ctx, loc)
}

func (f *FakeSession) HTML(ctx context.Context) (string, error) {
	f.record("HTML", targets.Locator{}, "")
	return f.HTMLBody, nil
}

func (f *FakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	f.record("Screenshot", targets.Locator{}, "")
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	return f.Image, nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

// Calls returns a copy of the recorded invocations.
func (f *FakeSession) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Methods returns the recorded method names in order.
func (f *FakeSession) Methods() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// Called reports whether method was invoked on loc.
func (f *FakeSession) Called(method, loc string) bool {
	for _, c := range f.Calls() {
		if c.Method == method && c.Locator == loc {
			return true
		}
	}
	return false
}

// Scripts returns the document-start scripts installed so far.
func (f *FakeSession) Scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

// Closes is the number of Close calls.
func (f *FakeSession) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// FakeOpener hands out FakeSessions. Safe for concurrent use.
type FakeOpener struct {
	// New builds the session for each OpenSession call. A nil New yields
	// sessions returning a 1x1 PNG.
	New func() *FakeSession

	// Err, when set, fails every OpenSession call.
	Err error

	mu       sync.Mutex
	sessions []*FakeSession
}

var _ scraper.SessionOpener = (*FakeOpener)(nil)

func (o *FakeOpener) OpenSession(ctx context.Context) (scraper.Session, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	var s *FakeSession
	if o.New != nil {
		s = o.New()
	} else {
		s = &FakeSession{Image: PNG(1, 1, color.White)}
	}
	o.mu.Lock()
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
	return s, nil
}

// Sessions returns every session opened so far.
func (o *FakeOpener) Sessions() []*FakeSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*FakeSession(nil), o.sessions...)
}

// Opened is the number of sessions handed out.
func (o *FakeOpener) Opened() int {
	return len(o.Sessions())
}

// Released is the number of sessions closed at least once.
func (o *FakeOpener) Released() int {
	n := 0
	for _, s := range o.Sessions() {
		if s.Closes() > 0 {
			n++
		}
	}
	return n
}

// OpenerFunc adapts a function to scraper.SessionOpener.
type OpenerFunc func(ctx context.Context) (scraper.Session, error)

func (fn OpenerFunc) OpenSession(ctx context.Context) (scraper.Session, error) {
	return fn(ctx)
}

// PNG encodes a w×h image filled with c.
func PNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
