package processor

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"edgevision-worker-go/internal/detector"
	"edgevision-worker-go/internal/models"
)

// padFraction grows each detection box by 15% per side before blurring so
// the anonymized region covers hairlines and partial profiles.
const padFraction = 0.15

// Processor runs detection and produces the anonymized copy of each frame.
// One Processor serves all workers; it holds no per-frame state beyond the
// shared detector.
type Processor struct {
	det        detector.Detector
	blurKernel int
}

// New creates a processor. Even kernel sizes are bumped to the next odd
// value, which Gaussian blur requires.
func New(det detector.Detector, blurKernel int) *Processor {
	if blurKernel%2 == 0 {
		blurKernel++
	}
	if blurKernel < 3 {
		blurKernel = 3
	}
	return &Processor{det: det, blurKernel: blurKernel}
}

// Process detects faces in frame and returns the blurred copy, the
// untouched raw frame, and the detections. The blur writes over the copy's
// pixels, so no original pixels survive inside a blurred region; blurring
// an already blurred region is harmless.
func (p *Processor) Process(frame *models.Frame) (blurred *models.Frame, raw *models.Frame, detections []models.Detection, err error) {
	detections, err = p.det.Detect(frame)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("processor: detect: %w", err)
	}

	blurred = frame.Clone()
	if len(detections) > 0 {
		if err := p.blurRegions(blurred, detections); err != nil {
			return nil, nil, nil, err
		}
	}
	return blurred, frame, detections, nil
}

func (p *Processor) blurRegions(frame *models.Frame, detections []models.Detection) error {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return fmt.Errorf("processor: mat from frame: %w", err)
	}
	defer mat.Close()

	for _, det := range detections {
		x1, y1, x2, y2 := det.Padded(padFraction, frame.Width, frame.Height)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		roi := mat.Region(image.Rect(x1, y1, x2, y2))
		gocv.GaussianBlur(roi, &roi, image.Pt(p.blurKernel, p.blurKernel), 0, 0, gocv.BorderDefault)
		roi.Close()
	}

	frame.Data = mat.ToBytes()
	return nil
}

// EncodeJPEG compresses a frame at the given quality. Used for both the
// preview slot and evidence frame records.
func EncodeJPEG(frame *models.Frame, quality int) ([]byte, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("processor: mat from frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("processor: jpeg encode: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// DecodeJPEG decompresses a JPEG into a BGR24 frame. Used by the decrypt
// preview exporter.
func DecodeJPEG(data []byte) (*models.Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("processor: jpeg decode: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("processor: jpeg decode: empty image")
	}
	return &models.Frame{
		Data:   mat.ToBytes(),
		Width:  mat.Cols(),
		Height: mat.Rows(),
	}, nil
}
