package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meravakil/meravakil-backend/internal/observability"
)

// unmatchedRoute labels requests no route handled, so clients probing
// arbitrary paths and methods cannot grow the series count.
const unmatchedRoute = "unmatched"

// Probes from the platform and the scraper are left out of API metrics.
var unmeteredPaths = map[string]bool{
	"/healthcheck": true,
	"/metrics":     true,
}

// Metrics records count, latency and in-flight gauges per registered route.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if unmeteredPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		method, route := c.Request.Method, c.FullPath()
		if route == "" {
			route = unmatchedRoute
			method = methodLabel(method)
		}
		m.ObserveAPI(method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodHead:
		return method
	default:
		return "OTHER"
	}
}
