package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskilo/storno-service/pkg/correlation"
)

// CorrelationMiddleware extracts X-Correlation-ID from the request header or
// generates a new one. The ID is stored in the request context and echoed in
// the response header.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		corrID := c.GetHeader(correlation.HeaderName)
		if corrID == "" {
			corrID = correlation.NewID()
		}

		ctx := correlation.WithID(c.Request.Context(), corrID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(correlation.HeaderName, corrID)

		c.Next()
	}
}

// GinRequestLogger logs one line per request with method, path, status and
// latency. The correlation handler adds correlation_id from the context.
func (l *Logger) GinRequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		l.slog.LogAttrs(c.Request.Context(), slog.LevelInfo, "HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("query", c.Request.URL.RawQuery),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
