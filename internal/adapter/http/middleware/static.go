package middleware

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	. "todolist/internal/adapter/http/helper"
)

// SPA serves files from dir for unmatched GET requests and falls back to
// index.html, so client-side routes resolve. Paths under apiPrefix still
// get a JSON 404.
func SPA(dir string, apiPrefix string) gin.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			SendNotFoundError(c, "Route not found")
			return
		}

		requestPath := path.Clean("/" + c.Request.URL.Path)

		if apiPrefix != "" && (requestPath == apiPrefix || strings.HasPrefix(requestPath, apiPrefix+"/")) {
			SendNotFoundError(c, "Route not found")
			return
		}

		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(requestPath))); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}

		c.File(index)
		c.Abort()
	}
}
