package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/use-agent/propsnap/compose"
	"github.com/use-agent/propsnap/config"
	"github.com/use-agent/propsnap/models"
	"github.com/use-agent/propsnap/snapshot"
	"github.com/use-agent/propsnap/targets"
)

type stubSnapshots struct{ calls int }

func (s *stubSnapshots) Snapshot(context.Context, snapshot.Request) (*snapshot.Result, error) {
	s.calls++
	return &snapshot.Result{Image: &compose.CompositeImage{Data: []byte("P"), Format: compose.FormatPNG}}, nil
}

func (s *stubSnapshots) Targets() []targets.TargetSpec {
	return []targets.TargetSpec{{Name: "NoBroker", BaseURL: "https://www.nobroker.in/"}}
}

type stubSessions struct{}

func (stubSessions) Stats() models.SessionStats { return models.SessionStats{Connected: true} }

func TestNewRouter_GuardsEverySnapshotRoute(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	snaps := &stubSnapshots{}
	r := NewRouter(ctx, cfg, Deps{Snapshots: snaps, Sessions: stubSessions{}, StartTime: time.Now()})

	get := func(path, key string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/api/v1/health", ""))

	for _, path := range []string{
		"/api/v1/snapshot?property=Lodha&city=Mumbai",
		"/scrape?prop=Lodha&city=Mumbai",
	} {
		assert.Equal(t, http.StatusUnauthorized, get(path, ""), path)
		assert.Equal(t, http.StatusOK, get(path, "k1"), path)
	}
	assert.Equal(t, http.StatusOK, get("/api/v1/targets", "k1"))
	assert.Equal(t, 2, snaps.calls)
}
