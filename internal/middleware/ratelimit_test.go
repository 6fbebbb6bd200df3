package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterCheck(t *testing.T) {
	t.Run("allows requests under the limit", func(t *testing.T) {
		limiter := NewRateLimiter(time.Minute)

		for i := 0; i < 5; i++ {
			allowed, _ := limiter.Check("key", 5)
			assert.True(t, allowed, "request %d should be allowed", i)
		}
	})

	t.Run("blocks requests over the limit", func(t *testing.T) {
		limiter := NewRateLimiter(time.Minute)

		for i := 0; i < 3; i++ {
			limiter.Check("key", 3)
		}
		allowed, resetAt := limiter.Check("key", 3)
		assert.False(t, allowed)
		assert.True(t, resetAt.After(time.Now()))
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		limiter := NewRateLimiter(time.Minute)

		limiter.Check("a", 1)
		allowed, _ := limiter.Check("a", 1)
		assert.False(t, allowed)

		allowed, _ = limiter.Check("b", 1)
		assert.True(t, allowed)
	})

	t.Run("allows again once the window slides", func(t *testing.T) {
		limiter := NewRateLimiter(30 * time.Millisecond)

		limiter.Check("key", 1)
		allowed, _ := limiter.Check("key", 1)
		assert.False(t, allowed)

		time.Sleep(50 * time.Millisecond)
		allowed, _ = limiter.Check("key", 1)
		assert.True(t, allowed)
	})
}

func TestIPRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(time.Minute)
	mw := NewIPRateLimitMiddleware(limiter, 2, "desk-create")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := mw.Handler(next)

	doRequest := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/desk/create", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, doRequest("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, doRequest("10.0.0.1:1234").Code)

	rec := doRequest("10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"success":false`)

	// A different client is not affected.
	assert.Equal(t, http.StatusOK, doRequest("10.0.0.2:1234").Code)
}
