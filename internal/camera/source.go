package camera

import (
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"edgevision-worker-go/internal/models"
)

// FrameSource produces decoded frames at the worker's canonical resolution.
// Implementations are used by exactly one worker and are not thread-safe.
type FrameSource interface {
	Open() error
	Read() (*models.Frame, error)
	Close() error
}

// SourceFactory builds the FrameSource for one configured camera entry.
type SourceFactory func(index int, source string, width, height, targetFPS int) FrameSource

// gocvSource reads from an OpenCV VideoCapture: a device index or any URL
// OpenCV's FFmpeg backend accepts (RTSP, HTTP, file).
type gocvSource struct {
	index       int
	source      string
	width       int
	height      int
	targetFPS   int
	readTimeout time.Duration

	cap     *gocv.VideoCapture
	img     gocv.Mat
	frameID int64
	origin  time.Time
}

// NewGocvSource is the production SourceFactory with the default 2s read
// timeout; NewGocvSourceTimeout lets the engine pass the configured one.
func NewGocvSource(index int, source string, width, height, targetFPS int) FrameSource {
	return NewGocvSourceTimeout(index, source, width, height, targetFPS, 2*time.Second)
}

func NewGocvSourceTimeout(index int, source string, width, height, targetFPS int, readTimeout time.Duration) FrameSource {
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	return &gocvSource{
		index:       index,
		source:      source,
		width:       width,
		height:      height,
		targetFPS:   targetFPS,
		readTimeout: readTimeout,
		origin:      time.Now(),
	}
}

func (s *gocvSource) Open() error {
	if s.cap != nil {
		s.Close()
	}

	var cap *gocv.VideoCapture
	var err error

	if idx, convErr := strconv.Atoi(s.source); convErr == nil {
		cap, err = gocv.OpenVideoCapture(idx)
	} else {
		if strings.HasPrefix(s.source, "rtsp") {
			// Force TCP and bound the socket read so a dead stream
			// surfaces as a read failure instead of a hang.
			os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS",
				fmt.Sprintf("rtsp_transport;tcp|stimeout;%d", s.readTimeout.Microseconds()))
		}
		cap, err = gocv.OpenVideoCapture(s.source)
	}
	if err != nil {
		return fmt.Errorf("camera: open %s: %w", s.source, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("camera: source %s not opened", s.source)
	}

	cap.Set(gocv.VideoCaptureBufferSize, 1)
	cap.Set(gocv.VideoCaptureFPS, float64(s.targetFPS))

	s.cap = cap
	s.img = gocv.NewMat()
	return nil
}

func (s *gocvSource) Read() (*models.Frame, error) {
	if s.cap == nil {
		return nil, fmt.Errorf("camera: source %s not open", s.source)
	}
	if ok := s.cap.Read(&s.img); !ok || s.img.Empty() {
		return nil, fmt.Errorf("camera: read failed on %s", s.source)
	}

	canonical, err := normalizeMat(&s.img, s.width, s.height)
	if err != nil {
		return nil, err
	}
	defer canonical.Close()

	now := time.Now()
	s.frameID++
	return &models.Frame{
		CameraIndex: s.index,
		Data:        canonical.ToBytes(),
		Width:       s.width,
		Height:      s.height,
		FrameID:     s.frameID,
		Timestamp:   now,
		Monotonic:   now.Sub(s.origin),
	}, nil
}

func (s *gocvSource) Close() error {
	if s.cap == nil {
		return nil
	}
	s.img.Close()
	err := s.cap.Close()
	s.cap = nil
	return err
}

// normalizeMat center-crops the longer axis to the target aspect ratio and
// resamples to exactly width x height. Downstream components assume a fixed
// resolution for the worker lifetime, so every frame passes through here.
func normalizeMat(src *gocv.Mat, width, height int) (gocv.Mat, error) {
	h := src.Rows()
	w := src.Cols()
	if h <= 0 || w <= 0 {
		return gocv.Mat{}, fmt.Errorf("camera: degenerate frame %dx%d", w, h)
	}

	targetAspect := float64(width) / float64(height)
	currentAspect := float64(w) / float64(h)

	work := src.Clone()
	if diff := currentAspect - targetAspect; diff > 0.01 || diff < -0.01 {
		var rect image.Rectangle
		if currentAspect > targetAspect {
			newW := int(float64(h) * targetAspect)
			x := (w - newW) / 2
			rect = image.Rect(x, 0, x+newW, h)
		} else {
			newH := int(float64(w) / targetAspect)
			y := (h - newH) / 2
			rect = image.Rect(0, y, w, y+newH)
		}
		region := work.Region(rect)
		cropped := region.Clone()
		region.Close()
		work.Close()
		work = cropped
	}

	if work.Cols() != width || work.Rows() != height {
		resized := gocv.NewMat()
		gocv.Resize(work, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
		work.Close()
		work = resized
	}
	return work, nil
}
