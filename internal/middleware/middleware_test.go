package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neuromail-go/internal/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = c.GetString("request_id")
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/x", nil)
	require.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	w = serve(r, http.MethodGet, "/x", http.Header{RequestIDHeader: {"abc-123"}})
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	var recovered any
	r.Use(RecoveryWithWriter(func(_ *gin.Context, err any) { recovered = err }))
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := serve(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "panic_recovered")
	assert.Equal(t, "boom", recovered)

	w = serve(r, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSafeGoWithContextRecovers(t *testing.T) {
	done := make(chan struct{})
	SafeGoWithContext("test", func() {
		defer close(done)
		panic("background")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger())
	r.GET("/inboxes/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusBadGateway)
	})

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/inboxes/abc", nil).Code)
	assert.Equal(t, http.StatusBadGateway, serve(r, http.MethodGet, "/fail", nil).Code)
}

func TestMetricsCountsByRoute(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/emails/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(monitoring.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/emails/:id", "2xx"))
	serve(r, http.MethodGet, "/emails/1", nil)
	serve(r, http.MethodGet, "/emails/2", nil)
	after := testutil.ToFloat64(monitoring.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/emails/:id", "2xx"))
	assert.Equal(t, 2.0, after-before)
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "error", statusClass(0))
}

func TestRateLimiterPerClient(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(1, 1))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(monitoring.RateLimitRejectedTotal)
	first := httptest.NewRequest(http.MethodGet, "/x", nil)
	first.RemoteAddr = "10.0.0.1:1000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, first)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, first)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_error")

	other := httptest.NewRequest(http.MethodGet, "/x", nil)
	other.RemoteAddr = "10.0.0.2:1000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(monitoring.RateLimitRejectedTotal)-before)
}

func TestLimiterCacheSweepsIdleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := newTTLLimiterCache(time.Minute)
	cache.now = func() time.Time { return now }
	mk := func() *rate.Limiter { return rate.NewLimiter(1, 1) }

	a := cache.get("a", mk)
	assert.Same(t, a, cache.get("a", mk))
	cache.get("b", mk)
	assert.Equal(t, 2, cache.size())

	now = now.Add(5 * time.Minute)
	cache.get("c", mk)
	assert.Equal(t, 1, cache.size())
}

func TestCORS(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS(nil, "/admin"))
		r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.GET("/admin/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, "*", serve(r, http.MethodGet, "/api/x", nil).Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, serve(r, http.MethodGet, "/admin/x", nil).Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allow list", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"https://app.example.com/"}, ""))
		r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := serve(r, http.MethodGet, "/api/x", http.Header{"Origin": {"https://app.example.com"}})
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

		w = serve(r, http.MethodGet, "/api/x", http.Header{"Origin": {"https://other.example.com"}})
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS(nil, ""))
		r.OPTIONS("/api/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })
		assert.Equal(t, http.StatusNoContent, serve(r, http.MethodOptions, "/api/x", nil).Code)
	})
}
