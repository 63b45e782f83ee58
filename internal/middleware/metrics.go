package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lara-bellatin/awd-final/internal/service"
)

// Metrics records per-request counts and latency. Scrape and probe endpoints
// are skipped so Prometheus traffic does not skew the lifecycle histograms.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if p := c.Request.URL.Path; p == "/metrics" || p == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
