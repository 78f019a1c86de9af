package detector

import (
	"sync"

	"edgevision-worker-go/internal/models"
)

// Detector finds faces in a frame. The engine shares one Detector across
// all camera workers, so implementations must either be safe for concurrent
// Detect calls or be wrapped with Serialized.
type Detector interface {
	Detect(frame *models.Frame) ([]models.Detection, error)
	Close() error
}

// Serialized makes a non-thread-safe detector usable from N workers by
// turning detection into a short critical section.
type Serialized struct {
	mu    sync.Mutex
	inner Detector
}

// Serialize wraps inner with a mutex.
func Serialize(inner Detector) *Serialized {
	return &Serialized{inner: inner}
}

func (s *Serialized) Detect(frame *models.Frame) ([]models.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Detect(frame)
}

func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}
