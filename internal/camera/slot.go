package camera

import "sync"

// LatestFrameSlot is the newest-wins handoff between a worker and the
// streaming surface. There is no queue: the worker overwrites, readers get
// whatever whole frame is current. A slow HTTP consumer therefore never
// back-pressures the capture loop, and staleness is bounded by one capture
// interval.
type LatestFrameSlot struct {
	mu   sync.Mutex
	jpeg []byte
	seq  uint64
}

// Set stores jpeg and bumps the sequence number. The slot takes ownership
// of the slice.
func (s *LatestFrameSlot) Set(jpeg []byte) {
	s.mu.Lock()
	s.jpeg = jpeg
	s.seq++
	s.mu.Unlock()
}

// Get returns a copy of the current frame and its sequence number, or
// ok=false if the slot was never populated.
func (s *LatestFrameSlot) Get() (jpeg []byte, seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jpeg == nil {
		return nil, 0, false
	}
	out := make([]byte, len(s.jpeg))
	copy(out, s.jpeg)
	return out, s.seq, true
}

// Seq returns the current sequence number without copying the frame.
func (s *LatestFrameSlot) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
