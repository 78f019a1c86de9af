package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"edgevision-worker-go/internal/models"
)

// CompactTimestamp names public segments; the evidence manager uses the
// same stamp so forensic files pair with their public counterpart.
const CompactTimestamp = "20060102150405"

const finalizeTimeout = 10 * time.Second

// codecCandidates in preference order. MJPEG cannot live in an MP4
// container, so its fallback switches the extension.
var codecCandidates = []struct {
	fourcc string
	ext    string
}{
	{"avc1", ".mp4"},
	{"X264", ".mp4"},
	{"mp4v", ".mp4"},
	{"MJPG", ".avi"},
}

// detectionEvent marks which classes were seen at a frame index; the list
// goes into the sidecar JSON next to the finished segment.
type detectionEvent struct {
	Frame   int      `json:"f"`
	Classes []string `json:"c"`
}

type finalizeItem struct {
	enc        Encoder
	path       string
	fps        int
	frameCount int
	events     []detectionEvent
}

// EventPublisher receives segment lifecycle events; nil disables publishing.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// Options configures a PublicRecorder.
type Options struct {
	OutputDir   string
	Prefix      string
	FPS         int
	SegmentSecs int
	Width       int
	Height      int

	Events EventPublisher
}

// PublicRecorder writes the blurred stream into time-sliced container files.
// Rotation closes the outgoing encoder on a background worker and opens the
// replacement synchronously, so Write never blocks on finalization.
//
// Write is single-producer (the camera worker); listings and counters may be
// read from any thread.
type PublicRecorder struct {
	opts    Options
	factory EncoderFactory
	log     zerolog.Logger
	now     func() time.Time

	mu          sync.Mutex
	enc         Encoder
	currentPath string
	segStamp    string
	segStart    time.Time
	frameCount  int
	events      []detectionEvent

	finalizeCh chan finalizeItem
	stopCh     chan struct{}
	done       chan struct{}

	writeErrors atomic.Int64
}

// New creates the recorder and starts its finalize worker. The first
// segment opens lazily on the first Write.
func New(opts Options, factory EncoderFactory, logger zerolog.Logger) (*PublicRecorder, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create output dir: %w", err)
	}
	r := &PublicRecorder{
		opts:       opts,
		factory:    factory,
		log:        logger,
		now:        time.Now,
		finalizeCh: make(chan finalizeItem, 4),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go r.finalizeWorker()
	return r, nil
}

// Write appends a blurred frame to the open segment, rotating first when the
// wall-clock window expired. An encoder failure mid-segment closes it and
// opens a replacement with a fresh timestamp; the frame that hit the error
// is counted in write_errors, not silently lost.
func (r *PublicRecorder) Write(frame *models.Frame, detections []models.Detection, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil || r.now().Sub(r.segStart) >= time.Duration(r.opts.SegmentSecs)*time.Second {
		r.rotateLocked()
		if r.enc == nil {
			if err := r.openSegmentLocked(); err != nil {
				r.writeErrors.Add(1)
				return err
			}
		}
	}

	if err := r.enc.WriteFrame(frame); err != nil {
		r.writeErrors.Add(1)
		r.log.Error().Err(err).Str("file", filepath.Base(r.currentPath)).Msg("Encoder write failed, reopening segment")
		r.rotateLocked()
		if openErr := r.openSegmentLocked(); openErr != nil {
			return openErr
		}
		if retryErr := r.enc.WriteFrame(frame); retryErr != nil {
			r.writeErrors.Add(1)
			return retryErr
		}
	}

	if len(detections) > 0 {
		seen := map[string]struct{}{}
		var classes []string
		for _, d := range detections {
			name := d.Class.String()
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				classes = append(classes, name)
			}
		}
		r.events = append(r.events, detectionEvent{Frame: r.frameCount, Classes: classes})
	}
	r.frameCount++
	return nil
}

// rotateLocked hands the current encoder to the finalize worker.
func (r *PublicRecorder) rotateLocked() {
	if r.enc == nil {
		return
	}
	item := finalizeItem{
		enc:        r.enc,
		path:       r.currentPath,
		fps:        r.opts.FPS,
		frameCount: r.frameCount,
		events:     r.events,
	}
	r.enc = nil
	r.currentPath = ""
	r.segStamp = ""
	r.events = nil
	r.frameCount = 0

	select {
	case r.finalizeCh <- item:
	default:
		// Worker is badly behind; finalize inline rather than leak the
		// encoder handle.
		r.log.Warn().Str("file", filepath.Base(item.path)).Msg("Finalize queue full, closing segment inline")
		r.finalize(item)
	}
}

// openSegmentLocked tries the codec ladder and fixes the winner for the
// segment lifetime.
func (r *PublicRecorder) openSegmentLocked() error {
	stamp := r.now().Format(CompactTimestamp)
	base := filepath.Join(r.opts.OutputDir, fmt.Sprintf("public_%s_%s", r.opts.Prefix, stamp))

	for _, cand := range codecCandidates {
		path := base + cand.ext
		enc, err := r.factory(path, cand.fourcc, float64(r.opts.FPS), r.opts.Width, r.opts.Height)
		if err != nil {
			r.log.Debug().Str("codec", cand.fourcc).Err(err).Msg("Codec unavailable")
			// A failed open can leave a zero-byte file behind.
			os.Remove(path)
			continue
		}
		r.enc = enc
		r.currentPath = path
		r.segStamp = stamp
		r.segStart = r.now()
		r.frameCount = 0
		r.events = nil
		r.log.Info().
			Str("file", filepath.Base(path)).
			Str("codec", cand.fourcc).
			Msg("Recording public segment")
		return nil
	}
	return fmt.Errorf("recorder: no usable codec for %dx%d@%d", r.opts.Width, r.opts.Height, r.opts.FPS)
}

func (r *PublicRecorder) finalizeWorker() {
	defer close(r.done)
	for {
		select {
		case item := <-r.finalizeCh:
			r.finalize(item)
		case <-r.stopCh:
			for {
				select {
				case item := <-r.finalizeCh:
					r.finalize(item)
				default:
					return
				}
			}
		}
	}
}

func (r *PublicRecorder) finalize(item finalizeItem) {
	if err := item.enc.Close(); err != nil {
		r.log.Error().Err(err).Str("file", filepath.Base(item.path)).Msg("Encoder close failed")
	} else {
		r.log.Info().
			Str("file", filepath.Base(item.path)).
			Int("frames", item.frameCount).
			Msg("Finished public segment")
	}
	r.writeSidecar(item)

	if r.opts.Events != nil {
		evt := map[string]interface{}{
			"filename":    filepath.Base(item.path),
			"camera":      r.opts.Prefix,
			"frame_count": item.frameCount,
			"fps":         item.fps,
			"detections":  len(item.events),
		}
		if err := r.opts.Events.Publish("video.segments."+r.opts.Prefix, evt); err != nil {
			r.log.Debug().Err(err).Msg("Segment event publish failed")
		}
	}
}

// writeSidecar stores {frame count, detection events} next to the segment so
// analytics can be recomputed without reopening the video.
func (r *PublicRecorder) writeSidecar(item finalizeItem) {
	if item.path == "" {
		return
	}
	events := item.events
	if events == nil {
		events = []detectionEvent{}
	}
	meta := struct {
		Filename    string           `json:"filename"`
		FPS         int              `json:"fps"`
		TotalFrames int              `json:"total_frames"`
		Detections  []detectionEvent `json:"detections"`
	}{
		Filename:    filepath.Base(item.path),
		FPS:         item.fps,
		TotalFrames: item.frameCount,
		Detections:  events,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		r.log.Error().Err(err).Msg("Encode sidecar metadata")
		return
	}
	sidecar := strings.TrimSuffix(item.path, filepath.Ext(item.path)) + ".json"
	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		r.log.Error().Err(err).Str("file", sidecar).Msg("Write sidecar metadata")
	}
}

// Rotate closes the open segment now instead of waiting for the window to
// expire. Used when a feed drops so the captured portion becomes playable
// immediately; the next Write opens a fresh segment.
func (r *PublicRecorder) Rotate() {
	r.mu.Lock()
	r.rotateLocked()
	r.mu.Unlock()
}

// CurrentStamp returns the compact timestamp of the open segment, or "" when
// no segment is open. The camera worker forwards it to the evidence manager
// as the pairing stamp.
func (r *PublicRecorder) CurrentStamp() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segStamp
}

// WriteErrors returns the monotonic encoder failure count.
func (r *PublicRecorder) WriteErrors() int64 { return r.writeErrors.Load() }

// List returns this recorder's segments on disk, newest first.
func (r *PublicRecorder) List() []models.RecordingInfo {
	entries, err := os.ReadDir(r.opts.OutputDir)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	active := r.currentPath
	r.mu.Unlock()

	prefix := "public_" + r.opts.Prefix + "_"
	var out []models.RecordingInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".mp4" && ext != ".avi" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(r.opts.OutputDir, e.Name())
		created := info.ModTime()
		if t, ok := models.ParseStamp(e.Name()); ok {
			created = t
		}
		out = append(out, models.RecordingInfo{
			Filename: e.Name(),
			Path:     path,
			SizeMB:   float64(info.Size()) / (1024 * 1024),
			Created:  created,
			IsActive: path == active,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out
}

// Close finalizes the open segment synchronously and stops the worker.
func (r *PublicRecorder) Close() {
	r.mu.Lock()
	r.rotateLocked()
	r.mu.Unlock()

	close(r.stopCh)
	select {
	case <-r.done:
	case <-time.After(finalizeTimeout):
		r.log.Warn().Msg("Finalize worker still running after timeout")
	}
}
