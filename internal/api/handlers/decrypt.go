package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"edgevision-worker-go/internal/engine"
	"edgevision-worker-go/internal/vault"
)

type DecryptHandler struct {
	eng *engine.Engine

	cacheMu sync.Mutex
	cache   map[string]string // preview id -> temp clip path
	tempDir string
}

type decryptRequest struct {
	Filename  string `json:"filename" binding:"required"`
	ShowBoxes *bool  `json:"show_boxes,omitempty"`
}

func NewDecryptHandler(eng *engine.Engine) *DecryptHandler {
	return &DecryptHandler{
		eng:     eng,
		cache:   make(map[string]string),
		tempDir: filepath.Join(os.TempDir(), "edgevision-decrypt"),
	}
}

// Decrypt opens an evidence container and builds a preview clip
// @Summary Decrypt an evidence container
// @Description Verifies both the AEAD tag and the embedded SHA-256 before any frame is exposed. A tampered file yields a single integrity failure, never partial frames.
// @Tags evidence
// @Accept json
// @Produce json
// @Param request body decryptRequest true "Evidence filename"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /decrypt [post]
func (h *DecryptHandler) Decrypt(c *gin.Context) {
	var req decryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.eng.Decrypt(req.Filename)
	if err != nil {
		h.decryptError(c, req.Filename, err)
		return
	}

	showBoxes := true
	if req.ShowBoxes != nil {
		showBoxes = *req.ShowBoxes
	}

	videoURL := ""
	if err := os.MkdirAll(h.tempDir, 0o700); err == nil {
		id := randomHex(8)
		clipPath := filepath.Join(h.tempDir, id+".mp4")
		if err := h.eng.ExportPreview(result.Package, clipPath, showBoxes); err != nil {
			log.Error().Err(err).Str("file", req.Filename).Msg("Preview export failed")
		} else {
			h.cacheMu.Lock()
			h.cache[id] = clipPath
			h.cacheMu.Unlock()
			videoURL = "/decrypt-video/" + id
		}
	}

	log.Info().
		Str("file", req.Filename).
		Str("format", result.Format).
		Int("frames", result.FrameCount).
		Msg("AUDIT: evidence decrypted")

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"filename":    result.Filename,
		"frame_count": result.FrameCount,
		"duration":    result.Duration,
		"hash":        result.Hash,
		"format":      result.Format,
		"video_url":   videoURL,
	})
}

// decryptError maps vault failures onto HTTP statuses. Integrity failures
// deliberately return one generic message and no detail about which layer
// tripped.
func (h *DecryptHandler) decryptError(c *gin.Context, filename string, err error) {
	switch {
	case errors.Is(err, engine.ErrEvidenceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "evidence file not found"})
	case errors.Is(err, vault.ErrKeyMissing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "decryption key not available"})
	case errors.Is(err, vault.ErrTamperedCiphertext),
		errors.Is(err, vault.ErrIntegrityMismatch),
		errors.Is(err, vault.ErrMalformedPayload):
		log.Warn().Err(err).Str("file", filename).Msg("AUDIT: decrypt integrity failure")
		c.JSON(http.StatusBadRequest, gin.H{"error": "integrity verification failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ServePreview serves a previously exported preview clip
// @Summary Serve a decrypted preview clip
// @Tags evidence
// @Produce octet-stream
// @Param id path string true "Preview id"
// @Param download query int false "Force download"
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /decrypt-video/{id} [get]
func (h *DecryptHandler) ServePreview(c *gin.Context) {
	id := c.Param("id")

	h.cacheMu.Lock()
	path, ok := h.cache[id]
	h.cacheMu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown preview id"})
		return
	}

	if c.Query("download") == "1" {
		c.FileAttachment(path, filepath.Base(path))
		return
	}
	c.File(path)
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
