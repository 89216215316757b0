package daemon

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sceneforge/internal/logging"
	"sceneforge/internal/services"
)

const requestIDHeader = "X-Request-ID"

// requestLogger tags each request with a correlation id and logs its outcome.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), rid))

		c.Next()

		status := c.Writer.Status()
		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("route", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("duration", time.Since(start)),
			logging.String(logging.FieldCorrelationID, rid),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, logging.String(logging.FieldProductionID, id))
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("api request", logging.Args(attrs...)...)
			return
		}
		logger.Debug("api request", logging.Args(attrs...)...)
	}
}
