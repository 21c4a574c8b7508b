package middleware

import (
	"time"

	"dcgm-keeper/services"

	"github.com/gin-gonic/gin"
)

/**
 * HTTP request accounting middleware
 * @description
 * - Counts requests received by the management server per route
 * - Records request handling duration
 * - Counts error responses (status >= 400) separately
 * - Feeds the request statistics shown by the readiness probe
 */
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := c.Writer.Status()

		// Route template, not the raw URL, so cardinality stays bounded.
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}

		services.IncrementRequestCount(route)
		services.RecordRequestDuration(route, duration)
		if statusCode >= 400 {
			services.IncrementErrorCount(route)
		}
	}
}

/**
 * Total requests served by the management server
 * @returns {int64} Request count since process start
 */
func GetTotalRequests() int64 {
	return services.GetTotalRequestCount()
}

/**
 * Total error responses served by the management server
 * @returns {int64} Error response count since process start
 */
func GetErrorRequests() int64 {
	return services.GetTotalErrorCount()
}
