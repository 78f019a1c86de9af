package detector

import (
	"fmt"
	"image"
	"os"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"edgevision-worker-go/internal/models"
)

// Network input side length for the YOLO face model.
const inputSize = 640

// DNNDetector runs a YOLO face model through the OpenCV DNN module.
// Forward passes share network state, so this type is NOT safe for
// concurrent Detect calls; the engine wraps it with Serialize.
type DNNDetector struct {
	net        gocv.Net
	confidence float32
	iou        float32
	device     string
}

// NewDNN loads the ONNX model and selects the compute target. A cuda
// request falls back to cpu when the CUDA backend is unavailable.
func NewDNN(modelPath, device string, confidence, iou float64) (*DNNDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("detector: model file: %w", err)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("detector: failed to load network from %s", modelPath)
	}

	selected := device
	if device == "cuda" {
		errBackend := net.SetPreferableBackend(gocv.NetBackendCUDA)
		errTarget := net.SetPreferableTarget(gocv.NetTargetCUDA)
		if errBackend != nil || errTarget != nil {
			log.Warn().Msg("CUDA backend unavailable, falling back to CPU")
			selected = "cpu"
		}
	}
	if selected == "cpu" {
		if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
			net.Close()
			return nil, fmt.Errorf("detector: set backend: %w", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
			net.Close()
			return nil, fmt.Errorf("detector: set target: %w", err)
		}
	}

	log.Info().
		Str("model", modelPath).
		Str("device", selected).
		Float64("confidence", confidence).
		Float64("iou", iou).
		Msg("Face detection network initialized")

	return &DNNDetector{
		net:        net,
		confidence: float32(confidence),
		iou:        float32(iou),
		device:     selected,
	}, nil
}

// Device returns the compute target actually in use.
func (d *DNNDetector) Device() string { return d.device }

// Detect runs one forward pass and returns NMS-filtered face boxes in frame
// pixel space.
func (d *DNNDetector) Detect(frame *models.Frame) ([]models.Detection, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("detector: mat from frame: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	boxes, scores := d.parseOutput(output, frame.Width, frame.Height)
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.confidence, d.iou)

	detections := make([]models.Detection, 0, len(keep))
	for _, idx := range keep {
		box := boxes[idx]
		det := models.Detection{
			X1:         int32(box.Min.X),
			Y1:         int32(box.Min.Y),
			X2:         int32(box.Max.X),
			Y2:         int32(box.Max.Y),
			Confidence: scores[idx],
			Class:      models.ClassFace,
			Timestamp:  frame.Timestamp,
		}
		if det.Valid(frame.Width, frame.Height) {
			detections = append(detections, det)
		}
	}
	return detections, nil
}

// parseOutput decodes the YOLO head: shape [1, 4+classes, anchors] with
// center-format boxes in network coordinates.
func (d *DNNDetector) parseOutput(output gocv.Mat, frameW, frameH int) ([]image.Rectangle, []float32) {
	dims := output.Size()
	if len(dims) != 3 {
		return nil, nil
	}
	rows := dims[1]
	anchors := dims[2]
	if rows < 5 {
		return nil, nil
	}

	flat := output.Reshape(1, rows)
	defer flat.Close()

	scaleX := float32(frameW) / float32(inputSize)
	scaleY := float32(frameH) / float32(inputSize)

	var boxes []image.Rectangle
	var scores []float32
	for a := 0; a < anchors; a++ {
		// Best class score for this anchor; face models have one class.
		best := float32(0)
		for c := 4; c < rows; c++ {
			if s := flat.GetFloatAt(c, a); s > best {
				best = s
			}
		}
		if best < d.confidence {
			continue
		}

		cx := flat.GetFloatAt(0, a) * scaleX
		cy := flat.GetFloatAt(1, a) * scaleY
		w := flat.GetFloatAt(2, a) * scaleX
		h := flat.GetFloatAt(3, a) * scaleY

		x1 := int(cx - w/2)
		y1 := int(cy - h/2)
		x2 := int(cx + w/2)
		y2 := int(cy + h/2)
		if x1 < 0 {
			x1 = 0
		}
		if y1 < 0 {
			y1 = 0
		}
		if x2 > frameW {
			x2 = frameW
		}
		if y2 > frameH {
			y2 = frameH
		}
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		scores = append(scores, best)
	}
	return boxes, scores
}

func (d *DNNDetector) Close() error {
	return d.net.Close()
}
