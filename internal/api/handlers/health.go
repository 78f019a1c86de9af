package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"edgevision-worker-go/internal/config"
)

type HealthHandler struct {
	cfg     *config.Config
	started time.Time
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{cfg: cfg, started: time.Now()}
}

// WorkerInfo returns worker identity
// @Summary Worker identity and version
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"worker_id":   h.cfg.WorkerID,
		"version":     h.cfg.Version,
		"environment": h.cfg.Environment,
		"cameras":     len(h.cfg.CameraSources),
	})
}

// HealthCheck reports liveness
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}
