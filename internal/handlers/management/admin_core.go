package management

import (
	"time"

	"neuromail-go/internal/config"
	"neuromail-go/internal/credential"
	"neuromail-go/internal/settings"

	"github.com/gin-gonic/gin"
)

// AdminAPIHandler provides the management endpoints for the key pool,
// runtime settings and configuration.
type AdminAPIHandler struct {
	pool      *credential.Pool
	settings  *settings.Manager
	getConfig func() *config.Config
	startTime time.Time
}

// NewAdminAPIHandler wires the handler. getConfig returns the live configuration.
func NewAdminAPIHandler(pool *credential.Pool, mgr *settings.Manager, getConfig func() *config.Config) *AdminAPIHandler {
	return &AdminAPIHandler{
		pool:      pool,
		settings:  mgr,
		getConfig: getConfig,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers all management routes
func (h *AdminAPIHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/system", h.GetSystemInfo)
	group.GET("/config", h.GetConfig)

	group.GET("/pool", h.GetPoolStatus)
	group.GET("/pool/usage", h.GetPoolUsage)
	group.GET("/pool/current", h.GetCurrentKey)
	group.POST("/pool/reset", h.ResetPool)
	group.POST("/pool/advance", h.AdvancePool)

	group.GET("/settings", h.GetSettings)
	group.PUT("/settings", h.UpdateSettings)
	group.DELETE("/settings", h.ClearSettings)
	group.GET("/settings/stats", h.GetKeyStats)
	group.PUT("/settings/mode", h.SetMode)
	group.PUT("/settings/personal-key", h.SetPersonalKey)
	group.GET("/settings/export", h.ExportSettings)
	group.POST("/settings/import", h.ImportSettings)
	group.POST("/settings/reset", h.ResetSettings)
	group.POST("/settings/validate", h.ValidateKey)
	group.GET("/settings/recommended/:mode", h.GetRecommended)
	group.POST("/settings/recommended/:mode", h.ApplyRecommended)
}
