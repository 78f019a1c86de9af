package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"edgevision-worker-go/internal/engine"
)

type StatusHandler struct {
	eng *engine.Engine
}

func NewStatusHandler(eng *engine.Engine) *StatusHandler {
	return &StatusHandler{eng: eng}
}

// GetStatus returns the engine snapshot
// @Summary Engine status snapshot for all cameras
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /status [get]
func (h *StatusHandler) GetStatus(c *gin.Context) {
	status := h.eng.Status()
	c.JSON(http.StatusOK, gin.H{
		"running":            status.Running,
		"started_at":         status.StartedAt,
		"cameras":            status.Cameras,
		"storage_used_bytes": h.eng.StorageUsage(),
	})
}
