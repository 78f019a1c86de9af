package evidence

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"edgevision-worker-go/internal/models"
)

// stubEncode tags each record with the frame's ID so tests can identify
// which frames ended up in a segment.
func stubEncode(frame *models.Frame, quality int) ([]byte, error) {
	return []byte(fmt.Sprintf("frame-%d", frame.FrameID)), nil
}

// captureSealer records sealed payloads instead of encrypting. When block
// is non-nil every call waits on it after signalling started, simulating a
// disk that cannot keep up.
type captureSealer struct {
	mu      sync.Mutex
	files   map[string][]byte
	block   chan struct{}
	started chan string
}

func newCaptureSealer() *captureSealer {
	return &captureSealer{files: make(map[string][]byte)}
}

func (s *captureSealer) EncryptToFile(payload []byte, meta map[string]interface{}, path string) error {
	if s.started != nil {
		s.started <- filepath.Base(path)
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.files[filepath.Base(path)] = cp
	return nil
}

func (s *captureSealer) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name := range s.files {
		out = append(out, name)
	}
	return out
}

func newTestManager(t *testing.T, opts Options, sealer Sealer) *Manager {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	if opts.Prefix == "" {
		opts.Prefix = "cam0"
	}
	if opts.SegmentSecs == 0 {
		opts.SegmentSecs = 300
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = 75
	}
	if opts.QueueCapacity == 0 {
		opts.QueueCapacity = 10
	}
	m, err := NewManager(opts, sealer, stubEncode, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func feedFrames(t *testing.T, m *Manager, base time.Time, pattern []bool) {
	t.Helper()
	det := []models.Detection{{X1: 10, Y1: 10, X2: 20, Y2: 20, Confidence: 0.9}}
	for i, hasDet := range pattern {
		frame := &models.Frame{FrameID: int64(i), Width: 4, Height: 4}
		ts := base.Add(time.Duration(i) * 33 * time.Millisecond)
		var ds []models.Detection
		if hasDet {
			ds = det
		}
		if err := m.AddFrame(frame, ds, ts, ""); err != nil {
			t.Fatalf("AddFrame %d: %v", i, err)
		}
	}
}

func decodeFrameIDs(t *testing.T, payload []byte) []string {
	t.Helper()
	pkg, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	var ids []string
	for i := range pkg.Frames {
		ids = append(ids, string(pkg.Frames[i].JPEG))
	}
	return ids
}

func TestSelectiveRecordingWithPreRoll(t *testing.T) {
	sealer := newCaptureSealer()
	m := newTestManager(t, Options{
		DetectionOnly: true,
		PreRollSize:   3,
	}, sealer)

	// no,no,no,no,yes,yes,no,yes,no,no
	pattern := []bool{false, false, false, false, true, true, false, true, false, false}
	feedFrames(t, m, time.Unix(1700000000, 0), pattern)
	m.Close()

	files := sealer.names()
	if len(files) != 1 {
		t.Fatalf("evidence files = %d, want 1", len(files))
	}

	// The ring held the three most recent idle frames (1,2,3) when frame 4
	// opened the segment; every later frame rides along regardless of its
	// own detections.
	ids := decodeFrameIDs(t, sealer.files[files[0]])
	want := []string{"frame-1", "frame-2", "frame-3", "frame-4", "frame-5", "frame-6", "frame-7", "frame-8", "frame-9"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestPreRollDisabled(t *testing.T) {
	sealer := newCaptureSealer()
	m := newTestManager(t, Options{
		DetectionOnly: true,
		PreRollSize:   0,
	}, sealer)

	feedFrames(t, m, time.Unix(1700000000, 0), []bool{false, false, true, true})
	m.Close()

	files := sealer.names()
	if len(files) != 1 {
		t.Fatalf("evidence files = %d, want 1", len(files))
	}
	ids := decodeFrameIDs(t, sealer.files[files[0]])
	if len(ids) != 2 || ids[0] != "frame-2" {
		t.Errorf("ids = %v, want first recorded frame to be the detection frame", ids)
	}
}

func TestContinuousRecording(t *testing.T) {
	sealer := newCaptureSealer()
	m := newTestManager(t, Options{
		DetectionOnly: false,
		PreRollSize:   3,
	}, sealer)

	feedFrames(t, m, time.Unix(1700000000, 0), []bool{false, false, false, false})
	m.Close()

	files := sealer.names()
	if len(files) != 1 {
		t.Fatalf("evidence files = %d, want 1", len(files))
	}
	ids := decodeFrameIDs(t, sealer.files[files[0]])
	if len(ids) != 4 {
		t.Errorf("recorded %d frames, want all 4", len(ids))
	}
}

func TestIdleFramesDiscarded(t *testing.T) {
	sealer := newCaptureSealer()
	m := newTestManager(t, Options{
		DetectionOnly: true,
		PreRollSize:   2,
	}, sealer)

	feedFrames(t, m, time.Unix(1700000000, 0), []bool{false, false, false})
	m.Close()

	if files := sealer.names(); len(files) != 0 {
		t.Errorf("idle-only feed produced %v, want no evidence", files)
	}
}

func TestSegmentExpiryFlush(t *testing.T) {
	sealer := newCaptureSealer()
	m := newTestManager(t, Options{
		DetectionOnly: false,
		SegmentSecs:   1,
	}, sealer)

	base := time.Unix(1700000000, 0)
	det := []models.Detection{}
	for i := 0; i < 6; i++ {
		frame := &models.Frame{FrameID: int64(i), Width: 4, Height: 4}
		// 0.3s apart: the frame at t=1.2s crosses the 1s window and
		// flushes; the frame after it opens a second segment.
		ts := base.Add(time.Duration(i) * 300 * time.Millisecond)
		if err := m.AddFrame(frame, det, ts, ""); err != nil {
			t.Fatal(err)
		}
	}
	m.Close()

	if files := sealer.names(); len(files) != 2 {
		t.Errorf("segments = %v, want 2 (expiry flush plus close flush)", files)
	}
}

func TestSyncStampNamesFile(t *testing.T) {
	sealer := newCaptureSealer()
	m := newTestManager(t, Options{DetectionOnly: false, Prefix: "cam2"}, sealer)

	frame := &models.Frame{FrameID: 1, Width: 4, Height: 4}
	if err := m.AddFrame(frame, nil, time.Unix(1700000000, 0), "20240115120000"); err != nil {
		t.Fatal(err)
	}
	m.Close()

	files := sealer.names()
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}
	want := "evidence_cam2_20240115120000_0000.enc"
	if files[0] != want {
		t.Errorf("filename = %s, want %s", files[0], want)
	}
}

func TestFlushBackpressureDropsOldest(t *testing.T) {
	sealer := newCaptureSealer()
	sealer.block = make(chan struct{})
	sealer.started = make(chan string, 16)

	m := newTestManager(t, Options{
		DetectionOnly: false,
		QueueCapacity: 2,
		DrainTimeout:  5 * time.Second,
	}, sealer)

	push := func(id int64) {
		frame := &models.Frame{FrameID: id, Width: 4, Height: 4}
		if err := m.AddFrame(frame, nil, time.Unix(1700000000+id, 0), fmt.Sprintf("2024011512%04d", id)); err != nil {
			t.Fatal(err)
		}
		m.Flush()
	}

	// Segment 0 is picked up by the worker and stalls on the blocked disk.
	push(0)
	<-sealer.started

	// Four more segments hit a full-at-2 queue: 1 and 2 queue, 3 evicts 1,
	// 4 evicts 2.
	for id := int64(1); id <= 4; id++ {
		push(id)
	}

	if got := m.Drops(); got != 2 {
		t.Errorf("drops = %d, want 2", got)
	}

	close(sealer.block)
	m.Close()

	files := sealer.names()
	if len(files) != 3 {
		t.Fatalf("persisted = %v, want the in-flight segment plus the 2 newest", files)
	}
	for _, name := range files {
		if strings.Contains(name, "120001") || strings.Contains(name, "120002") {
			t.Errorf("dropped segment %s was persisted", name)
		}
	}
}

func TestBufferStatus(t *testing.T) {
	sealer := newCaptureSealer()
	m := newTestManager(t, Options{DetectionOnly: true, PreRollSize: 5}, sealer)

	feedFrames(t, m, time.Unix(1700000000, 0), []bool{false, false})
	bufFrames, preRoll, _ := m.BufferStatus()
	if bufFrames != 0 || preRoll != 2 {
		t.Errorf("buffer=%d preroll=%d, want 0/2", bufFrames, preRoll)
	}

	feedFrames(t, m, time.Unix(1700000001, 0), []bool{true})
	bufFrames, preRoll, dur := m.BufferStatus()
	if bufFrames != 3 || preRoll != 0 {
		t.Errorf("buffer=%d preroll=%d, want 3/0", bufFrames, preRoll)
	}
	if dur <= 0 {
		t.Errorf("duration = %v, want > 0", dur)
	}
	m.Close()
}

func TestFlushErrorRetained(t *testing.T) {
	m := newTestManager(t, Options{DetectionOnly: false}, failingSealer{})

	frame := &models.Frame{FrameID: 1, Width: 4, Height: 4}
	if err := m.AddFrame(frame, nil, time.Unix(1700000000, 0), ""); err != nil {
		t.Fatal(err)
	}
	m.Close()

	errs := m.FlushErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "disk full") {
		t.Errorf("flush errors = %v", errs)
	}
}

type failingSealer struct{}

func (failingSealer) EncryptToFile(payload []byte, meta map[string]interface{}, path string) error {
	return fmt.Errorf("disk full")
}
