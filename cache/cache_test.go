package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/propsnap/compose"
	"github.com/use-agent/propsnap/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T, maxEntries int) (*Cache, *clock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := New(ctx, maxEntries, 0)
	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func img(h int) *compose.CompositeImage {
	return &compose.CompositeImage{Width: 10, Height: h, Data: []byte("x"), Format: compose.FormatPNG}
}

func TestKey_Normalises(t *testing.T) {
	a := Key("Prestige  Lakeside", "Bangalore", "png", []string{"NoBroker", "Housing"})
	b := Key(" prestige lakeside ", "BANGALORE", "png", []string{"housing", "nobroker"})
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("Prestige Lakeside", "Bangalore", "jpeg", []string{"NoBroker", "Housing"}))
	assert.NotEqual(t, a, Key("Prestige Lakeside", "Bangalore", "png", nil))
}

func TestGetSet_MaxAge(t *testing.T) {
	c, clk := newTestCache(t, 4)
	outcomes := []models.ScrapeOutcome{
		models.Success("NoBroker", []byte("raw png"), models.ReadinessReady, models.DiagnosisReady),
	}
	c.Set("k", img(5), outcomes)

	_, ok := c.Get("k", 0)
	assert.False(t, ok, "zero max age never hits")

	clk.t = clk.t.Add(30 * time.Second)
	e, ok := c.Get("k", time.Minute)
	require.True(t, ok)
	assert.Equal(t, 5, e.Image.Height)
	require.Len(t, e.Outcomes, 1)
	assert.Nil(t, e.Outcomes[0].Image)
	assert.Equal(t, []byte("raw png"), outcomes[0].Image, "caller's outcomes untouched")

	_, ok = c.Get("k", 10*time.Second)
	assert.False(t, ok)

	_, ok = c.Get("missing", time.Hour)
	assert.False(t, ok)
}

func TestSet_EvictsOldest(t *testing.T) {
	c, clk := newTestCache(t, 2)
	c.Set("a", img(1), nil)
	clk.t = clk.t.Add(time.Second)
	c.Set("b", img(2), nil)
	clk.t = clk.t.Add(time.Second)
	c.Set("c", img(3), nil)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a", time.Hour)
	assert.False(t, ok)
	_, ok = c.Get("c", time.Hour)
	assert.True(t, ok)

	c.Set("c", img(4), nil)
	assert.Equal(t, 2, c.Len(), "overwrite does not evict")
}

func TestSweep(t *testing.T) {
	c, clk := newTestCache(t, 4)
	c.ttl = time.Minute
	c.Set("old", img(1), nil)
	clk.t = clk.t.Add(50 * time.Second)
	c.Set("new", img(2), nil)
	clk.t = clk.t.Add(20 * time.Second)

	c.sweep()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("new", time.Hour)
	assert.True(t, ok)
}
