package processor

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"edgevision-worker-go/internal/models"
)

// OverlayInfo is what the preview overlay renders. Overlays are applied to
// the preview copy only; recorded segments and evidence stay clean.
type OverlayInfo struct {
	CameraIndex    int
	FPS            float64
	DetectionCount int
	State          models.CameraState
	ShowTimestamp  bool
	ShowDebug      bool
}

// DrawOverlays stamps the timestamp (top right) and optional debug block
// (top left) onto frame in place.
func DrawOverlays(frame *models.Frame, info OverlayInfo) error {
	if !info.ShowTimestamp && !info.ShowDebug {
		return nil
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return fmt.Errorf("processor: mat from frame: %w", err)
	}
	defer mat.Close()

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black := color.RGBA{A: 255}

	if info.ShowTimestamp {
		text := time.Now().Format("02-01-2006 15:04:05")
		size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.7, 2)
		tx := frame.Width - size.X - 20
		gocv.Rectangle(&mat, image.Rect(tx-5, 5, tx+size.X+5, 40), black, -1)
		gocv.PutText(&mat, text, image.Pt(tx, 30), gocv.FontHersheySimplex, 0.7, white, 2)
	}

	if info.ShowDebug {
		lines := []string{
			fmt.Sprintf("CAM %d", info.CameraIndex),
			fmt.Sprintf("FPS: %.1f", info.FPS),
			fmt.Sprintf("DET: %d", info.DetectionCount),
			fmt.Sprintf("STAT: %s", info.State),
		}
		gocv.Rectangle(&mat, image.Rect(10, 10, 170, 15+len(lines)*20), black, -1)
		for i, line := range lines {
			c := white
			if i == len(lines)-1 {
				if info.State == models.CameraStateOnline {
					c = color.RGBA{G: 255, A: 255}
				} else {
					c = color.RGBA{R: 255, A: 255}
				}
			}
			gocv.PutText(&mat, line, image.Pt(20, 30+i*20), gocv.FontHersheySimplex, 0.5, c, 1)
		}
	}

	frame.Data = mat.ToBytes()
	return nil
}

// DrawDetectionBoxes outlines detections on frame in place. Used by the
// decrypt preview exporter, never on the public path.
func DrawDetectionBoxes(frame *models.Frame, detections []models.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return fmt.Errorf("processor: mat from frame: %w", err)
	}
	defer mat.Close()

	green := color.RGBA{G: 255, A: 255}
	for _, d := range detections {
		gocv.Rectangle(&mat, image.Rect(int(d.X1), int(d.Y1), int(d.X2), int(d.Y2)), green, 2)
	}
	frame.Data = mat.ToBytes()
	return nil
}
