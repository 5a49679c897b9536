package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Health checks log at debug, metric scrapes not at all.
var (
	healthRoutes = map[string]bool{"/health": true, "/ready": true}
	silentRoutes = map[string]bool{"/metrics": true}
)

// RouteGroup maps a request to a bounded metric label: the first segment of
// the matched route, "root" for "/", or "unmatched" when no route matched.
func RouteGroup(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unmatched"
	}
	seg, _, _ := strings.Cut(strings.TrimPrefix(route, "/"), "/")
	if seg == "" {
		return "root"
	}
	return seg
}

// RequestLogger logs one admin request per line, tagged with the peer name.
func RequestLogger(logger zerolog.Logger, node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if silentRoutes[route] {
			return
		}
		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case healthRoutes[route]:
			event = logger.Debug()
		default:
			event = logger.Info()
		}
		if route == "" {
			route = c.Request.URL.Path
		}

		event.
			Str("peer", node).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("admin_request")
	}
}

// RequestMetricsMiddleware counts requests by peer, method, route group and
// status.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, RouteGroup(c), c.Writer.Status(), time.Since(start))
	}
}
