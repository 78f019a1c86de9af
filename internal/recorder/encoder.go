package recorder

import (
	"fmt"

	"gocv.io/x/gocv"

	"edgevision-worker-go/internal/models"
)

// Encoder writes frames into one container file. A segment owns exactly one
// encoder; the codec choice is fixed for the encoder's lifetime.
type Encoder interface {
	WriteFrame(frame *models.Frame) error
	Close() error
}

// EncoderFactory opens an encoder for a container path and codec, or fails
// if the codec is unavailable on this host.
type EncoderFactory func(path, codec string, fps float64, width, height int) (Encoder, error)

// gocvEncoder wraps an OpenCV VideoWriter.
type gocvEncoder struct {
	writer *gocv.VideoWriter
	width  int
	height int
}

// NewGocvEncoder is the production EncoderFactory.
func NewGocvEncoder(path, codec string, fps float64, width, height int) (Encoder, error) {
	writer, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("recorder: open writer %s (%s): %w", path, codec, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("recorder: codec %s unavailable for %s", codec, path)
	}
	return &gocvEncoder{writer: writer, width: width, height: height}, nil
}

func (e *gocvEncoder) WriteFrame(frame *models.Frame) error {
	if frame.Width != e.width || frame.Height != e.height {
		return fmt.Errorf("recorder: frame %dx%d does not match encoder %dx%d",
			frame.Width, frame.Height, e.width, e.height)
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return fmt.Errorf("recorder: mat from frame: %w", err)
	}
	defer mat.Close()
	if err := e.writer.Write(mat); err != nil {
		return fmt.Errorf("recorder: write frame: %w", err)
	}
	return nil
}

func (e *gocvEncoder) Close() error {
	return e.writer.Close()
}
