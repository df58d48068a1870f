package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/pkg/metrics"
)

// unmatchedRoute labels requests that hit no registered route so scanners
// cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics records request latency per surface and matched route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		metrics.HTTPRequestDuration.
			WithLabelValues(routeSurface(route), c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// routeSurface maps a route onto the caller population that uses it.
func routeSurface(route string) string {
	switch {
	case strings.HasPrefix(route, "/internal"):
		return "internal"
	case strings.HasPrefix(route, "/unsubscribe"):
		return "unsubscribe"
	case strings.HasPrefix(route, "/api"):
		return "api"
	case route == unmatchedRoute:
		return unmatchedRoute
	default:
		return "ops"
	}
}
