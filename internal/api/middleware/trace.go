package middleware

import (
	"Huddle/internal/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceHeader = "X-Trace-ID"
	maxTraceLen = 64
)

// TraceMiddleware tags every request with a trace id. Browser sockets cannot
// set headers, so the id may also come from the trace_id query parameter.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = c.Query("trace_id")
		}
		if traceID == "" || len(traceID) > maxTraceLen {
			traceID = uuid.NewString()
		}

		c.Set(logger.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logger.WithTrace(c.Request.Context(), traceID))

		c.Header(TraceHeader, traceID)
		c.Next()
	}
}
