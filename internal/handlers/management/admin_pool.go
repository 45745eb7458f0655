package management

import (
	"net/http"

	"neuromail-go/internal/handlers/common"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GetPoolStatus returns every slot with masked keys.
func (h *AdminAPIHandler) GetPoolStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Status())
}

// GetPoolUsage returns aggregate counters.
func (h *AdminAPIHandler) GetPoolUsage(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.UsageStats())
}

// GetCurrentKey describes the slot under the cursor.
func (h *AdminAPIHandler) GetCurrentKey(c *gin.Context) {
	info, ok := h.pool.CurrentInfo()
	if !ok {
		common.AbortWithError(c, http.StatusNotFound, "not_found", "credential pool is empty")
		return
	}
	c.JSON(http.StatusOK, info)
}

// ResetPool clears every counter and the exhausted flags.
func (h *AdminAPIHandler) ResetPool(c *gin.Context) {
	h.pool.Reset()
	log.Info("credential pool reset by management request")
	c.JSON(http.StatusOK, h.pool.Status())
}

// AdvancePool moves the cursor to the next slot.
func (h *AdminAPIHandler) AdvancePool(c *gin.Context) {
	if h.pool.Size() == 0 {
		common.AbortWithError(c, http.StatusConflict, "invalid_request_error", "credential pool is empty")
		return
	}
	h.pool.Advance()
	info, _ := h.pool.CurrentInfo()
	c.JSON(http.StatusOK, info)
}
