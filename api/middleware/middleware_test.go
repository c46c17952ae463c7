package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/use-agent/propsnap/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.GET("/x", Auth([]string{"k1", ""}), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("api_key"))
	})

	assert.Equal(t, http.StatusUnauthorized, do(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "X-API-Key", "nope").Code)

	w := do(r, "X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "k1", w.Body.String())

	assert.Equal(t, http.StatusOK, do(r, "Authorization", "Bearer k1").Code)
	assert.Contains(t, do(r, "", "").Body.String(), `"error"`)
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := gin.New()
	r.GET("/x", Auth(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusNoContent, do(r, "", "").Code)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.GET("/x", RateLimit(ctx, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, do(r, "", "").Code)
	assert.Equal(t, http.StatusNoContent, do(r, "", "").Code)

	w := do(r, "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}
