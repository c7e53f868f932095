package middleware

import (
	"strconv"
	"time"

	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request count, latency and in-flight requests.
// Paths are labelled by route template so unknown URLs cannot blow up
// label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.HTTPActiveRequests.Inc()
		defer metrics.HTTPActiveRequests.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
