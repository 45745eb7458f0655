package middleware

import (
	"time"

	"neuromail-go/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs HTTP requests
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		extras := log.Fields{
			"status":     status,
			"latency_ms": logging.DurationMS(time.Since(start)),
			"user_agent": c.Request.UserAgent(),
		}
		if inbox := c.Param("id"); inbox != "" {
			extras["resource_id"] = inbox
		}
		entry := logging.WithReq(c, extras)
		switch {
		case len(c.Errors) > 0:
			entry.WithField("error_kind", logging.ErrorKind(status, true)).
				WithError(c.Errors.Last()).Warn("http_request")
		case status >= 500:
			entry.WithField("error_kind", logging.ErrorKind(status, false)).Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
