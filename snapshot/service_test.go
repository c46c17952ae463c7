package snapshot

import (
	"context"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/propsnap/cache"
	"github.com/use-agent/propsnap/compose"
	"github.com/use-agent/propsnap/fanout"
	"github.com/use-agent/propsnap/models"
	"github.com/use-agent/propsnap/scraper"
	"github.com/use-agent/propsnap/scraper/scrapertest"
	"github.com/use-agent/propsnap/targets"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testRegistry(t *testing.T) *targets.Registry {
	t.Helper()
	reg, err := targets.New([]targets.TargetSpec{
		{
			Name:            "NoBroker",
			BaseURL:         "https://www.nobroker.in/",
			SearchInput:     "input#listPageSearchLocality",
			Suggestions:     ".suggestion-item",
			Confirm:         "button.prop-search-button",
			ReadinessMarker: "text=₹",
		},
		{
			Name:            "MagicBricks",
			BaseURL:         "https://www.magicbricks.com/",
			SearchInput:     "input#keyword",
			ReadinessMarker: ".mb-srp__card",
		},
	}, targets.Defaults{NavigateTimeout: 100 * time.Millisecond, ReadinessTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	return reg
}

// pipeline wires the real controller, coordinator and compositor over
// per-target scripted sessions.
func pipeline(t *testing.T, sessions map[string]func() *scrapertest.FakeSession) (*Service, map[string]*scrapertest.FakeOpener) {
	t.Helper()
	ctrl := scraper.NewController(scraper.ControllerConfig{
		SearchTimeout:     100 * time.Millisecond,
		SuggestionTimeout: 50 * time.Millisecond,
	}, scraper.NewSuppressor(), scraper.NewDetector(0, testLogger), testLogger)

	openers := make(map[string]*scrapertest.FakeOpener, len(sessions))
	for name, fn := range sessions {
		openers[name] = &scrapertest.FakeOpener{New: fn}
	}
	runner := fanout.RunnerFunc(func(ctx context.Context, _ scraper.SessionOpener, spec targets.TargetSpec, q targets.Query) models.ScrapeOutcome {
		return ctrl.Run(ctx, openers[spec.Name], spec, q)
	})

	coord := fanout.New(fanout.Config{BatchDeadline: 5 * time.Second}, runner, nil, testLogger)
	svc := NewService(testRegistry(t), coord, compose.New(compose.FormatPNG, 85, testLogger), testLogger)
	return svc, openers
}

func TestSnapshot_CompositesReadyAndDegraded(t *testing.T) {
	svc, openers := pipeline(t, map[string]func() *scrapertest.FakeSession{
		"NoBroker": func() *scrapertest.FakeSession {
			return &scrapertest.FakeSession{Image: scrapertest.PNG(1280, 800, color.Black)}
		},
		"MagicBricks": func() *scrapertest.FakeSession {
			return &scrapertest.FakeSession{
				Image:  scrapertest.PNG(1280, 800, color.White),
				Hidden: map[string]bool{".mb-srp__card": true},
			}
		},
	})

	res, err := svc.Snapshot(context.Background(), Request{Property: "Prestige Lakeside", City: "Bangalore"})
	require.NoError(t, err)

	assert.Equal(t, 1280, res.Image.Width)
	assert.Equal(t, 1600, res.Image.Height)
	assert.Equal(t, "image/png", res.Image.ContentType())
	assert.Equal(t, []string{"NoBroker", "MagicBricks"}, res.Image.Targets)

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, models.ReadinessReady, res.Outcomes[0].Readiness)
	assert.Equal(t, models.ReadinessDegraded, res.Outcomes[1].Readiness)

	for name, o := range openers {
		assert.Equal(t, o.Opened(), o.Released(), "%s sessions leaked", name)
	}
}

func TestSnapshot_AllNavigationFails(t *testing.T) {
	failing := func() *scrapertest.FakeSession {
		return &scrapertest.FakeSession{NavigateErr: errors.New("net::ERR_CONNECTION_RESET")}
	}
	svc, _ := pipeline(t, map[string]func() *scrapertest.FakeSession{
		"NoBroker":    failing,
		"MagicBricks": failing,
	})

	res, err := svc.Snapshot(context.Background(), Request{Property: "DLF Camellias", City: "Gurgaon"})

	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeNoImage))
	require.NotNil(t, res)
	assert.Nil(t, res.Image)
	for _, o := range res.Outcomes {
		assert.Equal(t, models.ErrCodeNavigationTimeout, o.Kind)
	}
}

func TestSnapshot_PartialFailure(t *testing.T) {
	svc, _ := pipeline(t, map[string]func() *scrapertest.FakeSession{
		"NoBroker": func() *scrapertest.FakeSession {
			return &scrapertest.FakeSession{Missing: map[string]bool{"input#listPageSearchLocality": true}}
		},
		"MagicBricks": func() *scrapertest.FakeSession {
			return &scrapertest.FakeSession{Image: scrapertest.PNG(64, 48, color.White)}
		},
	})

	res, err := svc.Snapshot(context.Background(), Request{Property: "Lodha", City: "Mumbai", Format: "jpeg"})
	require.NoError(t, err)

	assert.Equal(t, models.ErrCodeElementNotFound, res.Outcomes[0].Kind)
	assert.Equal(t, []string{"MagicBricks"}, res.Image.Targets)
	assert.Equal(t, "image/jpeg", res.Image.ContentType())
	assert.Equal(t, 48, res.Image.Height)
}

func TestSnapshot_TargetFilter(t *testing.T) {
	svc, openers := pipeline(t, map[string]func() *scrapertest.FakeSession{
		"NoBroker":    nil,
		"MagicBricks": nil,
	})

	res, err := svc.Snapshot(context.Background(), Request{Property: "Lodha", City: "Mumbai", Targets: []string{"MagicBricks"}})
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "MagicBricks", res.Outcomes[0].TargetName)
	assert.Zero(t, openers["NoBroker"].Opened())
}

func TestSnapshot_CacheHit(t *testing.T) {
	svc, openers := pipeline(t, map[string]func() *scrapertest.FakeSession{
		"NoBroker":    nil,
		"MagicBricks": nil,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.WithCache(cache.New(ctx, 8, time.Hour))

	req := Request{Property: "Godrej Woods", City: "Noida", MaxAge: time.Minute}
	first, err := svc.Snapshot(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	req.Property = "godrej   woods"
	second, err := svc.Snapshot(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Image.Data, second.Image.Data)
	require.Len(t, second.Outcomes, 2)
	assert.Nil(t, second.Outcomes[0].Image)
	assert.Equal(t, 1, openers["NoBroker"].Opened())

	req.MaxAge = 0
	third, err := svc.Snapshot(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, openers["NoBroker"].Opened())
}

func TestSnapshot_NoImageNotCached(t *testing.T) {
	failing := func() *scrapertest.FakeSession {
		return &scrapertest.FakeSession{NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	}
	svc, openers := pipeline(t, map[string]func() *scrapertest.FakeSession{
		"NoBroker":    failing,
		"MagicBricks": failing,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := cache.New(ctx, 8, time.Hour)
	svc.WithCache(c)

	req := Request{Property: "Hiranandani", City: "Thane", MaxAge: time.Hour}
	for i := 0; i < 2; i++ {
		_, err := svc.Snapshot(context.Background(), req)
		require.Error(t, err)
	}
	assert.Zero(t, c.Len())
	assert.Equal(t, 2, openers["NoBroker"].Opened())
}

type countingFanout struct{ calls int }

func (c *countingFanout) RunAll(context.Context, []targets.TargetSpec, targets.Query) []models.ScrapeOutcome {
	c.calls++
	return nil
}

func TestSnapshot_InvalidInputSkipsBrowser(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing property", req: Request{City: "Pune"}},
		{name: "blank city", req: Request{Property: "Amanora", City: "   "}},
		{name: "bad format", req: Request{Property: "Amanora", City: "Pune", Format: "gif"}},
		{name: "unknown target", req: Request{Property: "Amanora", City: "Pune", Targets: []string{"Housing"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fo := &countingFanout{}
			svc := NewService(testRegistry(t), fo, compose.New("", 0, testLogger), testLogger)

			res, err := svc.Snapshot(context.Background(), tt.req)

			assert.Nil(t, res)
			assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput), "got %v", err)
			assert.Zero(t, fo.calls)
		})
	}
}

func TestService_Targets(t *testing.T) {
	svc := NewService(testRegistry(t), &countingFanout{}, compose.New("", 0, testLogger), testLogger)
	list := svc.Targets()
	require.Len(t, list, 2)
	assert.Equal(t, "NoBroker", list[0].Name)
}
