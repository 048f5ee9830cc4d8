package slogging

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger returns gin middleware that assigns a request id and logs
// method, path, status and latency for every request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := EnsureRequestID(c)
		c.Header("X-Request-ID", requestID)

		c.Next()

		logger := Get().WithContext(c)
		latency := time.Since(start)
		status := c.Writer.Status()

		msg := "%s %s status=%d latency=%s client_ip=%s"
		args := []any{c.Request.Method, c.Request.URL.Path, status, latency, c.ClientIP()}

		switch {
		case status >= 500:
			logger.Error(msg, args...)
		case status >= 400:
			logger.Warn(msg, args...)
		default:
			logger.Info(msg, args...)
		}
	}
}
