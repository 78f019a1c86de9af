package camera

import (
	"sync"
	"time"

	"edgevision-worker-go/internal/models"
)

// fpsAlpha is the EWMA smoothing factor for the FPS estimate.
const fpsAlpha = 0.1

// Stats is the mutable per-camera status. The worker writes, the status
// surface reads snapshots; the mutex is held only for field copies.
type Stats struct {
	mu sync.Mutex

	index  int
	source string
	tag    string

	state         models.CameraState
	fps           float64
	lastFrameTime time.Time
	lastDetCount  int
	frameCount    int64
}

// NewStats initializes status for one camera in the connecting state.
func NewStats(index int, source, tag string) *Stats {
	return &Stats{
		index:  index,
		source: source,
		tag:    tag,
		state:  models.CameraStateConnecting,
	}
}

// SetState records a state machine transition.
func (s *Stats) SetState(state models.CameraState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the current state.
func (s *Stats) State() models.CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ObserveFrame folds one processed frame into the EWMA FPS estimate.
func (s *Stats) ObserveFrame(ts time.Time, detections int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastFrameTime.IsZero() {
		if dt := ts.Sub(s.lastFrameTime).Seconds(); dt > 0 {
			sample := 1.0 / dt
			if s.fps == 0 {
				s.fps = sample
			} else {
				s.fps = fpsAlpha*sample + (1-fpsAlpha)*s.fps
			}
		}
	}
	s.lastFrameTime = ts
	s.lastDetCount = detections
	s.frameCount++
}

// FPS returns the smoothed frame rate.
func (s *Stats) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// LastDetectionCount returns the detection count of the newest frame.
func (s *Stats) LastDetectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDetCount
}

// Snapshot copies the worker-owned fields into a CameraStatus. Counters
// owned by the recorder and evidence manager are filled in by the engine.
func (s *Stats) Snapshot() models.CameraStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CameraStatus{
		Index:              s.index,
		Source:             s.source,
		Tag:                s.tag,
		State:              s.state,
		FPS:                s.fps,
		LastDetectionCount: s.lastDetCount,
		LastFrameTime:      s.lastFrameTime,
		FrameCount:         s.frameCount,
	}
}
