package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"todolist/internal/core/telemetry"
	"todolist/pkg/config"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(handlers...)

	return router
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	RegisterTestingT(t)

	var seen string

	router := newTestRouter(RequestID())
	router.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	Expect(seen).ToNot(BeEmpty())
	Expect(w.Header().Get(RequestIDHeader)).To(Equal(seen))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	router.ServeHTTP(w, req)

	Expect(seen).To(Equal("abc-123"))
	Expect(w.Header().Get(RequestIDHeader)).To(Equal("abc-123"))
}

func TestCORS_Preflight(t *testing.T) {
	RegisterTestingT(t)

	called := false

	router := newTestRouter(CORS())
	router.PATCH("/todos/:id/toggle", func(c *gin.Context) {
		called = true
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/todos/1/toggle", nil))

	Expect(w.Code).To(Equal(http.StatusNoContent))
	Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
	Expect(w.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
	Expect(called).To(BeFalse())
}

func TestMetrics_RecordsStatusAsNumber(t *testing.T) {
	RegisterTestingT(t)

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewAppMetrics(registry)

	router := newTestRouter(Metrics(metrics))
	router.POST("/todos", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/todos", nil))

	expected := `
# HELP http_requests_total Total number of HTTP requests
# TYPE http_requests_total counter
http_requests_total{method="POST",path="/todos",status="201"} 1
`

	Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected), "http_requests_total")).To(Succeed())
}

func TestHTTPSEnforcer(t *testing.T) {
	RegisterTestingT(t)

	enforcer := NewHTTPSEnforcer(true, nil)

	router := newTestRouter(enforcer.HTTPSMiddleware())
	router.GET("/todos", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/todos", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://todos.example.com/todos?x=1", nil)
	router.ServeHTTP(w, req)

	Expect(w.Code).To(Equal(http.StatusMovedPermanently))
	Expect(w.Header().Get("Location")).To(Equal("https://todos.example.com/todos?x=1"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "http://todos.example.com/todos", nil)
	router.ServeHTTP(w, req)

	Expect(w.Code).To(Equal(http.StatusPermanentRedirect))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "http://todos.example.com/todos", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	router.ServeHTTP(w, req)

	Expect(w.Code).To(Equal(http.StatusOK))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "http://todos.example.com/todos", nil)
	req.TLS = &tls.ConnectionState{}
	router.ServeHTTP(w, req)

	Expect(w.Code).To(Equal(http.StatusOK))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost:3001/todos", nil))

	Expect(w.Code).To(Equal(http.StatusOK))
}

func TestHTTPSEnforcer_ExemptPaths(t *testing.T) {
	RegisterTestingT(t)

	enforcer := NewHTTPSEnforcer(true, nil, "/api/health", "/api/ready")

	router := newTestRouter(enforcer.HTTPSMiddleware())
	router.GET("/api/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/api/ready", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/api/todos", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/api/health", "/api/ready"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://10.0.0.5:3001"+path, nil))

		Expect(w.Code).To(Equal(http.StatusOK), path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://10.0.0.5:3001/api/todos", nil))

	Expect(w.Code).To(Equal(http.StatusMovedPermanently))
	Expect(w.Header().Get("Location")).To(Equal("https://10.0.0.5:3001/api/todos"))
}

func TestHTTPSEnforcer_Disabled(t *testing.T) {
	RegisterTestingT(t)

	enforcer := NewHTTPSEnforcer(false, nil)

	router := newTestRouter(enforcer.HTTPSMiddleware())
	router.GET("/todos", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://todos.example.com/todos", nil))

	Expect(w.Code).To(Equal(http.StatusOK))
}

func newRateLimitedRouter(routes map[string]config.RateLimitRule) (*gin.Engine, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, Routes: routes}, "/api", nil, telemetry.NewAppMetrics(registry))

	router := newTestRouter(rl.RateLimitMiddleware())
	router.GET("/api/todos", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/api/todos", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	return router, registry
}

func TestRateLimiter_PerRouteLimit(t *testing.T) {
	RegisterTestingT(t)

	router, registry := newRateLimitedRouter(map[string]config.RateLimitRule{
		"POST /todos": {Requests: 2, Window: config.Duration{Duration: time.Minute}},
	})

	expectedRemaining := []string{"1", "0"}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/todos", nil))

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Header().Get("X-RateLimit-Limit")).To(Equal("2"))
		Expect(w.Header().Get("X-RateLimit-Remaining")).To(Equal(expectedRemaining[i]))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/todos", nil))

	Expect(w.Code).To(Equal(http.StatusTooManyRequests))
	Expect(w.Header().Get("Retry-After")).ToNot(BeEmpty())
	Expect(w.Body.String()).To(ContainSubstring(`"code":"TOO_MANY_REQUESTS"`))

	// GET falls back to the default rule and is counted separately
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(w.Header().Get("X-RateLimit-Limit")).To(Equal("60"))

	Expect(testutil.GatherAndCount(registry, "rate_limit_hits_total")).To(Equal(1))
}

func TestRateLimiter_KeysByClientIP(t *testing.T) {
	RegisterTestingT(t)

	router, _ := newRateLimitedRouter(map[string]config.RateLimitRule{
		"POST /todos": {Requests: 1, Window: config.Duration{Duration: time.Minute}},
	})
	Expect(router.SetTrustedProxies(nil)).To(Succeed())

	for _, addr := range []string{"10.0.0.1:5000", "10.0.0.2:5000"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/todos", nil)
		req.RemoteAddr = addr
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
	}
}

func TestRateLimiter_IgnoresForwardedHeadersFromUntrustedPeers(t *testing.T) {
	RegisterTestingT(t)

	router, _ := newRateLimitedRouter(map[string]config.RateLimitRule{
		"POST /todos": {Requests: 1, Window: config.Duration{Duration: time.Minute}},
	})
	Expect(router.SetTrustedProxies(nil)).To(Succeed())

	codes := []int{}

	for _, forwarded := range []string{"1.1.1.1", "2.2.2.2"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/todos", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		router.ServeHTTP(w, req)

		codes = append(codes, w.Code)
	}

	Expect(codes).To(Equal([]int{http.StatusCreated, http.StatusTooManyRequests}))
}

func TestRateLimiter_HonorsForwardedHeadersFromTrustedProxy(t *testing.T) {
	RegisterTestingT(t)

	router, _ := newRateLimitedRouter(map[string]config.RateLimitRule{
		"POST /todos": {Requests: 1, Window: config.Duration{Duration: time.Minute}},
	})
	Expect(router.SetTrustedProxies([]string{"172.16.0.0/12"})).To(Succeed())

	for _, forwarded := range []string{"10.0.0.1", "10.0.0.2"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/todos", nil)
		req.RemoteAddr = "172.16.0.1:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
	}
}

func TestSPA_ServesFilesAndFallsBackToIndex(t *testing.T) {
	RegisterTestingT(t)

	dir := t.TempDir()
	Expect(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600)).To(Succeed())
	Expect(os.MkdirAll(filepath.Join(dir, "assets"), 0o755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600)).To(Succeed())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.NoRoute(SPA(dir, "/api"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))

	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(w.Body.String()).To(Equal("console.log(1)"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/some/client/route", nil))

	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(w.Body.String()).To(Equal("<html>app</html>"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	Expect(w.Code).To(Equal(http.StatusNotFound))
	Expect(w.Body.String()).To(ContainSubstring(`"code":"NOT_FOUND"`))
}
