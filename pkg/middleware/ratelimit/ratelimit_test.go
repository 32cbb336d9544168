package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerIPAllowsBurstThenThrottles(t *testing.T) {
	limiter := NewPerIP(1, 2)
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }

	ok, _ := limiter.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = limiter.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := limiter.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = limiter.Allow("10.0.0.2")
	assert.True(t, ok, "buckets are per client")

	limiter.now = func() time.Time { return base.Add(time.Second) }
	ok, _ = limiter.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestPerIPDisabled(t *testing.T) {
	limiter := NewPerIP(0, 0)
	for i := 0; i < 100; i++ {
		ok, _ := limiter.Allow("10.0.0.1")
		require.True(t, ok)
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", NewPerIP(0.5, 1).Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "TOO_MANY_REQUESTS")
}
