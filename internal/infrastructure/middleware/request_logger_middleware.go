package middleware

import (
	"time"

	"ndilive/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLoggerMiddleware assigns a request id, records the trace id and
// logs each completed request.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(logger.RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		if name := c.Param("name"); name != "" {
			c.Set(logger.SourceKey, name)
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			c.Set(logger.TraceIDKey, sc.TraceID().String())
		}

		start := time.Now()
		c.Next()

		cl.LogRequest(c, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
