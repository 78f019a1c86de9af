package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"edgevision-worker-go/internal/models"
)

type fakeEncoder struct {
	mu       sync.Mutex
	path     string
	frames   int
	closed   bool
	failNext bool
}

func (e *fakeEncoder) WriteFrame(frame *models.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext {
		e.failNext = false
		return fmt.Errorf("encoder backend error")
	}
	e.frames++
	return nil
}

func (e *fakeEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEncoder) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// fakeFactory opens fakeEncoders, failing the codecs listed in reject. It
// creates the container file so directory listings behave like production.
type fakeFactory struct {
	mu       sync.Mutex
	reject   map[string]bool
	attempts []string
	encoders []*fakeEncoder
	failNext bool
}

func (f *fakeFactory) open(path, codec string, fps float64, width, height int) (Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, codec)
	if f.reject[codec] {
		return nil, fmt.Errorf("codec %s unavailable", codec)
	}
	if err := os.WriteFile(path, []byte("container"), 0o644); err != nil {
		return nil, err
	}
	enc := &fakeEncoder{path: path, failNext: f.failNext}
	f.failNext = false
	f.encoders = append(f.encoders, enc)
	return enc, nil
}

func newTestRecorder(t *testing.T, factory *fakeFactory, segmentSecs int) *PublicRecorder {
	t.Helper()
	r, err := New(Options{
		OutputDir:   t.TempDir(),
		Prefix:      "cam0",
		FPS:         30,
		SegmentSecs: segmentSecs,
		Width:       1280,
		Height:      720,
	}, factory.open, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func testFrame() *models.Frame {
	return &models.Frame{Width: 1280, Height: 720, Timestamp: time.Now()}
}

func TestCodecFallbackToMJPEG(t *testing.T) {
	factory := &fakeFactory{reject: map[string]bool{"avc1": true, "X264": true, "mp4v": true}}
	r := newTestRecorder(t, factory, 300)

	if err := r.Write(testFrame(), nil, time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if want := []string{"avc1", "X264", "mp4v", "MJPG"}; strings.Join(factory.attempts, ",") != strings.Join(want, ",") {
		t.Errorf("codec attempts = %v, want %v", factory.attempts, want)
	}
	if len(factory.encoders) != 1 || !strings.HasSuffix(factory.encoders[0].path, ".avi") {
		t.Errorf("MJPEG fallback must switch the container to .avi, got %v", factory.encoders)
	}
	if r.WriteErrors() != 0 {
		t.Errorf("write_errors = %d, want 0", r.WriteErrors())
	}

	r.Close()

	// The fallback file still shows up in listings.
	list := r.List()
	if len(list) != 1 || !strings.HasSuffix(list[0].Filename, ".avi") {
		t.Errorf("list = %v", list)
	}
}

func TestPreferredCodecWins(t *testing.T) {
	factory := &fakeFactory{}
	r := newTestRecorder(t, factory, 300)

	if err := r.Write(testFrame(), nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	r.Close()

	if len(factory.attempts) != 1 || factory.attempts[0] != "avc1" {
		t.Errorf("attempts = %v, want just avc1", factory.attempts)
	}
	if !strings.HasSuffix(factory.encoders[0].path, ".mp4") {
		t.Errorf("path = %s, want .mp4", factory.encoders[0].path)
	}
}

func TestRotationByDuration(t *testing.T) {
	factory := &fakeFactory{}
	r := newTestRecorder(t, factory, 1)

	clock := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	r.now = func() time.Time { return clock }

	if err := r.Write(testFrame(), nil, clock); err != nil {
		t.Fatal(err)
	}
	firstStamp := r.CurrentStamp()
	if firstStamp != "20240115120000" {
		t.Errorf("stamp = %s", firstStamp)
	}

	// Just under the window: same segment.
	clock = clock.Add(900 * time.Millisecond)
	if err := r.Write(testFrame(), nil, clock); err != nil {
		t.Fatal(err)
	}
	if len(factory.encoders) != 1 {
		t.Fatalf("rotated too early")
	}

	// Over the window: new segment with a new stamp, old encoder closes in
	// the background.
	clock = clock.Add(200 * time.Millisecond)
	if err := r.Write(testFrame(), nil, clock); err != nil {
		t.Fatal(err)
	}
	if len(factory.encoders) != 2 {
		t.Fatalf("expected rotation, have %d encoders", len(factory.encoders))
	}
	if r.CurrentStamp() == firstStamp {
		t.Error("stamp did not change across rotation")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !factory.encoders[0].isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("old encoder never finalized")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.Close()
	for i, enc := range factory.encoders {
		if !enc.isClosed() {
			t.Errorf("encoder %d not closed after Close", i)
		}
	}
}

func TestWriteErrorReopensSegment(t *testing.T) {
	factory := &fakeFactory{failNext: true}
	r := newTestRecorder(t, factory, 300)

	// First write fails inside the encoder; the recorder reopens and
	// retries rather than dropping the frame silently.
	if err := r.Write(testFrame(), nil, time.Now()); err != nil {
		t.Fatalf("Write after reopen: %v", err)
	}
	if r.WriteErrors() != 1 {
		t.Errorf("write_errors = %d, want 1", r.WriteErrors())
	}
	if len(factory.encoders) != 2 {
		t.Errorf("encoders = %d, want reopened second encoder", len(factory.encoders))
	}
	if factory.encoders[1].frames != 1 {
		t.Errorf("retried frame not written, frames = %d", factory.encoders[1].frames)
	}
	r.Close()
}

func TestSidecarMetadata(t *testing.T) {
	factory := &fakeFactory{}
	r := newTestRecorder(t, factory, 300)

	det := []models.Detection{{X1: 1, Y1: 1, X2: 5, Y2: 5, Confidence: 0.8, Class: models.ClassFace}}
	if err := r.Write(testFrame(), nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := r.Write(testFrame(), det, time.Now()); err != nil {
		t.Fatal(err)
	}
	r.Close()

	sidecar := strings.TrimSuffix(factory.encoders[0].path, ".mp4") + ".json"
	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}

	var meta struct {
		Filename    string `json:"filename"`
		FPS         int    `json:"fps"`
		TotalFrames int    `json:"total_frames"`
		Detections  []struct {
			Frame   int      `json:"f"`
			Classes []string `json:"c"`
		} `json:"detections"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("sidecar json: %v", err)
	}
	if meta.TotalFrames != 2 || meta.FPS != 30 {
		t.Errorf("meta = %+v", meta)
	}
	if len(meta.Detections) != 1 || meta.Detections[0].Frame != 1 || meta.Detections[0].Classes[0] != "face" {
		t.Errorf("detections = %+v", meta.Detections)
	}
	if meta.Filename != filepath.Base(factory.encoders[0].path) {
		t.Errorf("filename = %s", meta.Filename)
	}
}

func TestFilenameLayout(t *testing.T) {
	factory := &fakeFactory{}
	r := newTestRecorder(t, factory, 300)
	r.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local) }

	if err := r.Write(testFrame(), nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	r.Close()

	name := filepath.Base(factory.encoders[0].path)
	if name != "public_cam0_20240115120000.mp4" {
		t.Errorf("filename = %s", name)
	}
	if ts, ok := models.ParseStamp(name); !ok || ts.Format("20060102150405") != "20240115120000" {
		t.Errorf("stamp did not parse back from %s", name)
	}
}
