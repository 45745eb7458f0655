package management

import (
	"net/http"
	"runtime"
	"time"

	"neuromail-go/internal/config"
	"neuromail-go/internal/constants"
	"neuromail-go/internal/credential"

	"github.com/gin-gonic/gin"
)

// GetSystemInfo reports build and runtime details.
func (h *AdminAPIHandler) GetSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":    constants.ServiceName,
		"version":    constants.Version,
		"commit":     constants.GitCommit,
		"build_time": constants.BuildTime,
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"uptime_sec": int64(time.Since(h.startTime).Seconds()),
		"pool_size":  h.pool.Size(),
		"api_mode":   h.settings.Get().Mode,
	})
}

// GetConfig returns the live configuration with secrets masked.
func (h *AdminAPIHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, maskConfig(h.getConfig()))
}

func maskConfig(cfg *config.Config) *config.Config {
	out := cfg.Clone()
	if out == nil {
		return nil
	}
	for i, k := range out.Upstream.PublicKeys {
		out.Upstream.PublicKeys[i] = credential.MaskSecret(k)
	}
	if out.Upstream.PersonalKey != "" {
		out.Upstream.PersonalKey = credential.MaskSecret(out.Upstream.PersonalKey)
	}
	if out.Security.ManagementKey != "" {
		out.Security.ManagementKey = "***"
	}
	if out.Security.ManagementKeyHash != "" {
		out.Security.ManagementKeyHash = "***"
	}
	if out.Storage.RedisPassword != "" {
		out.Storage.RedisPassword = "***"
	}
	return out
}
