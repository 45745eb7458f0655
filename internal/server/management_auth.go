package server

import (
	"net"
	"net/http"
	"strings"

	"neuromail-go/internal/config"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ManagementKeyHeader carries the management key as an alternative to Bearer auth.
const ManagementKeyHeader = "X-Management-Key"

// ExtractToken extracts the management token from the request.
func ExtractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.GetHeader(ManagementKeyHeader))
}

// ManagementAuthMiddleware rejects requests without a valid management key.
// The management API is closed entirely while no key is configured.
func ManagementAuthMiddleware(getConfig func() *config.Config) gin.HandlerFunc {
	validate := config.ManagementKeyValidator(getConfig)
	return func(c *gin.Context) {
		src := classifySource(net.ParseIP(c.ClientIP()))
		if !getConfig().Security.ManagementEnabled() {
			recordManagementAccess("disabled", src)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "management API is disabled"})
			return
		}

		if !validate(ExtractToken(c)) {
			recordManagementAccess("unauthorized", src)
			log.WithFields(log.Fields{
				"path":        c.Request.URL.Path,
				"method":      c.Request.Method,
				"remote_addr": c.ClientIP(),
			}).Warn("Management authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid management key"})
			return
		}

		recordManagementAccess("allow", src)
		c.Next()
	}
}
