package slogging

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the per-request correlation id.
const RequestIDKey = "request_id"

// ContextLogger prefixes log lines with request correlation data.
type ContextLogger struct {
	logger    *Logger
	requestID string
	clientIP  string
}

// WithContext returns a logger bound to the request in the gin context.
func (l *Logger) WithContext(c *gin.Context) *ContextLogger {
	cl := &ContextLogger{logger: l}
	if c != nil {
		if id, ok := c.Get(RequestIDKey); ok {
			if s, ok := id.(string); ok {
				cl.requestID = s
			}
		}
		cl.clientIP = c.ClientIP()
	}
	return cl
}

func (cl *ContextLogger) format(msg string) string {
	if cl.requestID == "" {
		return msg
	}
	return fmt.Sprintf("[%s] %s", cl.requestID, msg)
}

// Debug logs a debug-level message with request context
func (cl *ContextLogger) Debug(format string, args ...any) {
	cl.logger.Debug(cl.format(format), args...)
}

// Info logs an info-level message with request context
func (cl *ContextLogger) Info(format string, args ...any) {
	cl.logger.Info(cl.format(format), args...)
}

// Warn logs a warning-level message with request context
func (cl *ContextLogger) Warn(format string, args ...any) {
	cl.logger.Warn(cl.format(format), args...)
}

// Error logs an error-level message with request context
func (cl *ContextLogger) Error(format string, args ...any) {
	cl.logger.Error(cl.format(format), args...)
}

// EnsureRequestID returns the request id from the context, assigning one if absent.
func EnsureRequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	id := uuid.New().String()
	c.Set(RequestIDKey, id)
	return id
}
