package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todolist/pkg/logger"
)

type HTTPSEnforcer struct {
	enabled bool
	exempt  map[string]bool
	logger  *logger.Logger
}

// NewHTTPSEnforcer redirects plain http requests to https. Paths in exempt
// are always answered, so probes hitting the pod ip keep working.
func NewHTTPSEnforcer(enabled bool, log *logger.Logger, exempt ...string) *HTTPSEnforcer {
	if log == nil {
		log = logger.NewNop()
	}

	paths := make(map[string]bool, len(exempt))

	for _, path := range exempt {
		paths[path] = true
	}

	return &HTTPSEnforcer{
		enabled: enabled,
		exempt:  paths,
		logger:  log,
	}
}

func (he *HTTPSEnforcer) HTTPSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !he.enabled || he.exempt[c.Request.URL.Path] {
			c.Next()
			return
		}

		if c.Request.TLS != nil {
			c.Next()
			return
		}

		if c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Next()
			return
		}

		host := c.Request.Host

		if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
			c.Next()
			return
		}

		httpsURL := "https://" + host + c.Request.URL.RequestURI()

		he.logger.Ctx(c.Request.Context()).Info("Redirecting to HTTPS",
			zap.String("original_url", c.Request.URL.String()),
			zap.String("https_url", httpsURL),
			zap.String("user_agent", c.GetHeader("User-Agent")))

		// 308 keeps the method and body of non-GET requests
		status := http.StatusMovedPermanently

		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			status = http.StatusPermanentRedirect
		}

		c.Redirect(status, httpsURL)
		c.Abort()
	}
}
