package scraper

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/propsnap/targets"
)

//go:embed js/locate.js
var locateJS string

//go:embed js/locate_all.js
var locateAllJS string

// rodSession is a Session backed by one page inside its own incognito
// browser context.
type rodSession struct {
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	onClose   func()
	once      sync.Once
	closeErr  error
}

var _ Session = (*rodSession)(nil)

func (s *rodSession) InstallScript(ctx context.Context, js string) error {
	_, err := s.page.Context(ctx).EvalOnNewDocument(js)
	return err
}

// Navigate returns once the navigation has committed. It does not wait for
// the load event; readiness is decided separately.
func (s *rodSession) Navigate(ctx context.Context, url string) error {
	return s.page.Context(ctx).Navigate(url)
}

func (s *rodSession) Eval(ctx context.Context, js string, args ...any) error {
	_, err := s.page.Context(ctx).Eval(js, args...)
	return err
}

// find resolves loc to the first visible match. The page is re-queried on
// every poll until ctx is done, so hidden, replaced or stale nodes are never
// waited on.
func (s *rodSession) find(ctx context.Context, loc targets.Locator) (*rod.Element, error) {
	el, err := s.page.Context(ctx).ElementByJS(rod.Eval(locateJS, loc.KindName(), loc.Value))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrElementNotFound, loc, err)
	}
	return el, nil
}

func (s *rodSession) Fill(ctx context.Context, loc targets.Locator, text string) error {
	el, err := s.find(ctx, loc)
	if err != nil {
		return err
	}
	// Clear any prefilled value; ignored for elements without selectable text.
	_ = el.SelectAllText()
	return el.Input(text)
}

func (s *rodSession) Click(ctx context.Context, loc targets.Locator) error {
	el, err := s.find(ctx, loc)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *rodSession) PressEnter(ctx context.Context, loc targets.Locator) error {
	el, err := s.find(ctx, loc)
	if err != nil {
		return err
	}
	return el.Type(input.Enter)
}

func (s *rodSession) WaitVisible(ctx context.Context, loc targets.Locator) error {
	_, err := s.find(ctx, loc)
	return err
}

func (s *rodSession) all(ctx context.Context, loc targets.Locator) (rod.Elements, error) {
	// Wait for the first visible match, then take every visible match in
	// one evaluation.
	if _, err := s.find(ctx, loc); err != nil {
		return nil, err
	}
	els, err := s.page.Context(ctx).ElementsByJS(rod.Eval(locateAllJS, loc.KindName(), loc.Value))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", loc, err)
	}
	return els, nil
}

func (s *rodSession) Texts(ctx context.Context, loc targets.Locator) ([]string, error) {
	els, err := s.all(ctx, loc)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			t = ""
		}
		texts = append(texts, t)
	}
	return texts, nil
}

func (s *rodSession) ClickNth(ctx context.Context, loc targets.Locator, n int) error {
	els, err := s.all(ctx, loc)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("%w: %s has %d matches, want index %d", ErrElementNotFound, loc, len(els), n)
	}
	return els[n].Click(proto.InputMouseButtonLeft, 1)
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close stops request interception, closes the page and disposes of the
// incognito context. Only the first call has any effect.
func (s *rodSession) Close() error {
	s.once.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if err := s.page.Close(); err != nil {
			s.closeErr = fmt.Errorf("close page: %w", err)
		}
		if err := s.incognito.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("close browser context: %w", err)
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}
