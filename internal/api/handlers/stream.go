package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"edgevision-worker-go/internal/engine"
)

// pollInterval paces the MJPEG writer; the slot is newest-wins so polling
// faster than the capture rate only sees an unchanged sequence number, and
// such ticks are skipped without writing a part.
const pollInterval = 33 * time.Millisecond

type StreamHandler struct {
	eng *engine.Engine
}

func NewStreamHandler(eng *engine.Engine) *StreamHandler {
	return &StreamHandler{eng: eng}
}

// StreamMJPEG streams the blurred preview
// @Summary Live MJPEG preview of the blurred feed
// @Tags streaming
// @Produce multipart/x-mixed-replace
// @Param idx path int true "Camera index"
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /stream/{idx} [get]
func (h *StreamHandler) StreamMJPEG(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 || idx >= h.eng.CameraCount() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown camera"})
		return
	}

	boundary := "frame"
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(c.Writer, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(c.Writer, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(c.Writer, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := c.Writer.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(c.Writer, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	keepalive := time.NewTicker(2 * time.Second)
	defer keepalive.Stop()

	ctx := c.Request.Context()
	var lastSeq uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jpeg, seq, ok := h.eng.LatestJPEG(idx)
			if !ok || seq == lastSeq {
				continue
			}
			lastSeq = seq
			if !writePart(jpeg) {
				return
			}
		case <-keepalive.C:
			// Resend the current frame so idle proxies keep the
			// connection open while a camera reconnects.
			if jpeg, _, ok := h.eng.LatestJPEG(idx); ok {
				if !writePart(jpeg) {
					return
				}
			}
		}
	}
}

// LatestFrame serves a single preview JPEG
// @Summary Latest preview frame
// @Tags streaming
// @Produce jpeg
// @Param idx path int true "Camera index"
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /frame/{idx} [get]
func (h *StreamHandler) LatestFrame(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown camera"})
		return
	}
	jpeg, _, ok := h.eng.LatestJPEG(idx)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame available"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}
