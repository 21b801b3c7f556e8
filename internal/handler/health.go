package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health godoc
// @Summary      Health check
// @Description  Returns the health status of the service and the installed ensemble version
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "healthy", "ensemble_loaded": false}
	if h.snapshots != nil {
		if snap := h.snapshots.Current(); snap != nil {
			body["ensemble_loaded"] = true
			body["ensemble_version"] = snap.Version
		}
	}
	c.JSON(http.StatusOK, body)
}
