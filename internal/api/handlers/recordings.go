package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"edgevision-worker-go/internal/config"
	"edgevision-worker-go/internal/engine"
)

type RecordingHandler struct {
	cfg *config.Config
	eng *engine.Engine
}

func NewRecordingHandler(cfg *config.Config, eng *engine.Engine) *RecordingHandler {
	return &RecordingHandler{cfg: cfg, eng: eng}
}

// ListPublic lists public segments
// @Summary List public (blurred) segments
// @Tags recordings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /recordings [get]
func (h *RecordingHandler) ListPublic(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"recordings": h.eng.ListPublic()})
}

// ListEvidence lists encrypted evidence containers
// @Summary List encrypted evidence containers
// @Tags evidence
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /evidence [get]
func (h *RecordingHandler) ListEvidence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"evidence": h.eng.ListEvidence()})
}

// ServePublic serves one public segment for replay
// @Summary Serve a public segment for replay
// @Tags recordings
// @Produce octet-stream
// @Param filename path string true "Segment filename"
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /recordings/{filename} [get]
func (h *RecordingHandler) ServePublic(c *gin.Context) {
	filename := c.Param("filename")
	// Bare basenames only; no way to climb out of the recordings root.
	if filename != filepath.Base(filename) || !strings.HasPrefix(filename, "public_") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	switch filepath.Ext(filename) {
	case ".mp4", ".avi":
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(filepath.Join(h.cfg.PublicPath, filename))
}
