package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bizmail/backend/internal/monitoring"
)

// HTTPMetrics HTTP 指标中间件
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		statusCode := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, endpoint, statusCode).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration.Seconds())

		if c.Writer.Status() >= 400 {
			metrics.ErrorsTotal.WithLabelValues("http").Inc()
		}
	}
}
