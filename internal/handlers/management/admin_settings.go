package management

import (
	"io"
	"net/http"
	"strings"

	"neuromail-go/internal/handlers/common"
	"neuromail-go/internal/settings"

	"github.com/gin-gonic/gin"
)

const maxImportBytes = 64 << 10

// GetSettings returns the current settings with the personal key masked.
func (h *AdminAPIHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Get().Masked())
}

// UpdateSettings applies a partial update.
func (h *AdminAPIHandler) UpdateSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		common.BadRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	s, err := h.settings.Update(c.Request.Context(), patch)
	h.respondSettings(c, s, err)
}

// ClearSettings deletes the stored blob and restores defaults.
func (h *AdminAPIHandler) ClearSettings(c *gin.Context) {
	if err := h.settings.ClearAll(c.Request.Context()); err != nil {
		common.AbortWithError(c, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, h.settings.Get().Masked())
}

// GetKeyStats summarizes the key configuration.
func (h *AdminAPIHandler) GetKeyStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.KeyStats())
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetMode switches the API mode.
func (h *AdminAPIHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "mode is required")
		return
	}
	s, err := h.settings.SetMode(c.Request.Context(), req.Mode)
	h.respondSettings(c, s, err)
}

type keyRequest struct {
	Key string `json:"key"`
}

// SetPersonalKey stores the personal key; an empty key clears it.
func (h *AdminAPIHandler) SetPersonalKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	s, err := h.settings.SetPersonalKey(c.Request.Context(), req.Key)
	h.respondSettings(c, s, err)
}

// ExportSettings downloads the settings document, including the personal key.
func (h *AdminAPIHandler) ExportSettings(c *gin.Context) {
	raw, err := h.settings.Export()
	if err != nil {
		common.AbortWithError(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="neuromail-settings.json"`)
	c.Data(http.StatusOK, "application/json", raw)
}

// ImportSettings replaces the settings with an exported document.
func (h *AdminAPIHandler) ImportSettings(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		common.BadRequest(c, "read body: "+err.Error())
		return
	}
	s, err := h.settings.Import(c.Request.Context(), raw)
	h.respondSettings(c, s, err)
}

// ResetSettings restores the defaults.
func (h *AdminAPIHandler) ResetSettings(c *gin.Context) {
	s, err := h.settings.Reset(c.Request.Context())
	h.respondSettings(c, s, err)
}

// ValidateKey probes a candidate personal key without storing it.
func (h *AdminAPIHandler) ValidateKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Key) == "" {
		common.BadRequest(c, "key is required")
		return
	}
	valid, err := h.settings.ValidateKey(c.Request.Context(), req.Key)
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// GetRecommended returns the preset for a mode.
func (h *AdminAPIHandler) GetRecommended(c *gin.Context) {
	c.JSON(http.StatusOK, settings.Recommended(c.Param("mode")))
}

// ApplyRecommended applies the preset for a mode.
func (h *AdminAPIHandler) ApplyRecommended(c *gin.Context) {
	s, err := h.settings.ApplyRecommended(c.Request.Context(), c.Param("mode"))
	h.respondSettings(c, s, err)
}

func (h *AdminAPIHandler) respondSettings(c *gin.Context, s settings.Settings, err error) {
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.Masked())
}
