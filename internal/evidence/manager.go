package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"edgevision-worker-go/internal/models"
)

// CompactTimestamp is the filename timestamp layout shared with the public
// recorder so evidence and public segments pair up by prefix.
const CompactTimestamp = "20060102150405"

// errRingSize bounds the retained flush error descriptions.
const errRingSize = 8

// Sealer is the slice of the vault the flush worker needs.
type Sealer interface {
	EncryptToFile(payload []byte, meta map[string]interface{}, path string) error
}

// JPEGEncoder compresses a raw frame at the given quality.
type JPEGEncoder func(frame *models.Frame, quality int) ([]byte, error)

// EventPublisher receives evidence lifecycle events; nil disables publishing.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// Options configures a Manager.
type Options struct {
	OutputDir     string
	Prefix        string
	SegmentSecs   int
	DetectionOnly bool
	JPEGQuality   int
	PreRollSize   int
	QueueCapacity int
	DrainTimeout  time.Duration

	Events EventPublisher
}

type flushJob struct {
	pkg      *models.EvidencePackage
	filename string
}

// Manager buffers raw frames under selective-recording rules and hands
// closed segments to a background flush worker that serializes, encrypts
// and atomically writes them.
//
// AddFrame is called by exactly one camera goroutine; the flush worker is
// the only queue consumer. Status accessors may be called from any thread.
type Manager struct {
	opts   Options
	sealer Sealer
	encode JPEGEncoder
	log    zerolog.Logger

	mu          sync.Mutex
	buffer      []models.FrameRecord
	preRoll     []models.FrameRecord
	bufferStart time.Time
	syncStamp   string
	fileCount   int

	queue  chan flushJob
	stopCh chan struct{}
	done   chan struct{}

	drops       atomic.Int64
	flushErrMu  sync.Mutex
	flushErrors []string
}

// NewManager creates the manager and starts its flush worker.
func NewManager(opts Options, sealer Sealer, encode JPEGEncoder, logger zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence: create output dir: %w", err)
	}
	if opts.QueueCapacity < 1 {
		opts.QueueCapacity = 1
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}

	m := &Manager{
		opts:   opts,
		sealer: sealer,
		encode: encode,
		log:    logger,
		queue:  make(chan flushJob, opts.QueueCapacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.flushWorker()
	return m, nil
}

// AddFrame enqueues the raw frame under the selective-recording rules.
// syncStamp is the compact timestamp of the public segment currently open
// for this camera; it names the evidence file so both sides pair up.
func (m *Manager) AddFrame(frame *models.Frame, detections []models.Detection, ts time.Time, syncStamp string) error {
	jpeg, err := m.encode(frame, m.opts.JPEGQuality)
	if err != nil {
		return fmt.Errorf("evidence: jpeg encode: %w", err)
	}
	rec := models.FrameRecord{JPEG: jpeg, Detections: detections, Timestamp: ts}

	m.mu.Lock()

	if m.opts.DetectionOnly {
		if len(detections) == 0 {
			if len(m.buffer) == 0 {
				// Idle: keep the frame only as pre-roll context.
				m.pushPreRoll(rec)
				m.mu.Unlock()
				return nil
			}
			// Active segment keeps running through detection gaps.
		} else if len(m.buffer) == 0 {
			// Segment opens: drain pre-roll for context, oldest first.
			m.buffer = append(m.buffer, m.preRoll...)
			m.preRoll = nil
		}
	}

	if m.bufferStart.IsZero() {
		if len(m.buffer) > 0 {
			// Segment opened via pre-roll drain: it starts at the
			// oldest context frame, not at the detection frame.
			m.bufferStart = m.buffer[0].Timestamp
		} else {
			m.bufferStart = ts
		}
		m.syncStamp = syncStamp
	}
	m.buffer = append(m.buffer, rec)

	var job *flushJob
	if ts.Sub(m.bufferStart) >= time.Duration(m.opts.SegmentSecs)*time.Second {
		job = m.closeSegmentLocked()
	}
	m.mu.Unlock()

	if job != nil {
		m.enqueue(*job)
	}
	return nil
}

func (m *Manager) pushPreRoll(rec models.FrameRecord) {
	if m.opts.PreRollSize <= 0 {
		return
	}
	m.preRoll = append(m.preRoll, rec)
	if len(m.preRoll) > m.opts.PreRollSize {
		m.preRoll = m.preRoll[1:]
	}
}

// closeSegmentLocked packages the buffer and resets state. Caller holds mu.
func (m *Manager) closeSegmentLocked() *flushJob {
	if len(m.buffer) == 0 {
		return nil
	}

	stamp := m.syncStamp
	if stamp == "" {
		stamp = m.bufferStart.Format(CompactTimestamp)
	}
	filename := fmt.Sprintf("evidence_%s_%s_%04d.enc", m.opts.Prefix, stamp, m.fileCount)

	total := 0
	for i := range m.buffer {
		total += len(m.buffer[i].Detections)
	}
	pkg := &models.EvidencePackage{
		Frames: m.buffer,
		Meta: models.SegmentMeta{
			FrameCount:      len(m.buffer),
			StartTime:       float64(m.bufferStart.UnixNano()) / float64(time.Second),
			EndTime:         float64(m.buffer[len(m.buffer)-1].Timestamp.UnixNano()) / float64(time.Second),
			TotalDetections: total,
			CameraID:        m.opts.Prefix,
			JPEGQuality:     m.opts.JPEGQuality,
		},
	}

	m.buffer = nil
	m.bufferStart = time.Time{}
	m.syncStamp = ""
	m.fileCount++

	return &flushJob{pkg: pkg, filename: filename}
}

// enqueue applies the oldest-drop policy: when disk cannot keep up, the
// most recent window is worth more than a stale one.
func (m *Manager) enqueue(job flushJob) {
	select {
	case m.queue <- job:
		return
	default:
	}

	select {
	case old := <-m.queue:
		m.drops.Add(1)
		m.log.Warn().
			Str("dropped", old.filename).
			Int("frames", len(old.pkg.Frames)).
			Msg("Flush queue full, dropped oldest evidence segment")
	default:
	}

	select {
	case m.queue <- job:
	default:
		m.drops.Add(1)
		m.log.Warn().Str("dropped", job.filename).Msg("Flush queue still full, dropped segment")
	}
}

func (m *Manager) flushWorker() {
	defer close(m.done)
	for {
		select {
		case job := <-m.queue:
			m.runFlush(job)
		case <-m.stopCh:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case job := <-m.queue:
					m.runFlush(job)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) runFlush(job flushJob) {
	payload, err := EncodePayload(job.pkg)
	if err != nil {
		m.recordFlushError(job.filename, err)
		return
	}

	meta := map[string]interface{}{
		"frame_count":      job.pkg.Meta.FrameCount,
		"start_time":       job.pkg.Meta.StartTime,
		"end_time":         job.pkg.Meta.EndTime,
		"total_detections": job.pkg.Meta.TotalDetections,
		"camera":           job.pkg.Meta.CameraID,
		"jpeg_quality":     job.pkg.Meta.JPEGQuality,
	}
	path := filepath.Join(m.opts.OutputDir, job.filename)
	if err := m.sealer.EncryptToFile(payload, meta, path); err != nil {
		m.recordFlushError(job.filename, err)
		return
	}

	m.log.Info().
		Str("file", job.filename).
		Int("frames", job.pkg.Meta.FrameCount).
		Int("size_kb", len(payload)/1024).
		Msg("Saved encrypted evidence")

	if m.opts.Events != nil {
		evt := map[string]interface{}{
			"filename":         job.filename,
			"camera":           job.pkg.Meta.CameraID,
			"frame_count":      job.pkg.Meta.FrameCount,
			"total_detections": job.pkg.Meta.TotalDetections,
			"drops":            m.drops.Load(),
		}
		if err := m.opts.Events.Publish("evidence.segments."+m.opts.Prefix, evt); err != nil {
			m.log.Debug().Err(err).Msg("Evidence event publish failed")
		}
	}
}

func (m *Manager) recordFlushError(filename string, err error) {
	m.log.Error().Err(err).Str("file", filename).Msg("Evidence flush failed")
	m.flushErrMu.Lock()
	m.flushErrors = append(m.flushErrors, fmt.Sprintf("%s: %v", filename, err))
	if len(m.flushErrors) > errRingSize {
		m.flushErrors = m.flushErrors[len(m.flushErrors)-errRingSize:]
	}
	m.flushErrMu.Unlock()
}

// Flush closes the active segment, if any, and enqueues it.
func (m *Manager) Flush() {
	m.mu.Lock()
	job := m.closeSegmentLocked()
	m.mu.Unlock()
	if job != nil {
		m.enqueue(*job)
	}
}

// Close flushes the remaining buffer and stops the worker. Jobs still
// queued past the drain deadline are abandoned and logged with their
// metadata so they can be accounted for.
func (m *Manager) Close() {
	m.Flush()
	close(m.stopCh)

	select {
	case <-m.done:
	case <-time.After(m.opts.DrainTimeout):
		remaining := len(m.queue)
		m.log.Warn().
			Int("pending_jobs", remaining).
			Dur("deadline", m.opts.DrainTimeout).
			Msg("Flush drain deadline exceeded, abandoning queued evidence")
		for {
			select {
			case job := <-m.queue:
				m.drops.Add(1)
				m.log.Warn().
					Str("file", job.filename).
					Int("frames", job.pkg.Meta.FrameCount).
					Float64("start_time", job.pkg.Meta.StartTime).
					Msg("Dropped unflushed evidence segment at shutdown")
			default:
				return
			}
		}
	}
}

// Drops returns the number of evidence segments dropped by back-pressure.
func (m *Manager) Drops() int64 { return m.drops.Load() }

// FlushErrors returns the most recent flush error descriptions.
func (m *Manager) FlushErrors() []string {
	m.flushErrMu.Lock()
	defer m.flushErrMu.Unlock()
	out := make([]string, len(m.flushErrors))
	copy(out, m.flushErrors)
	return out
}

// BufferStatus reports buffer depth for the status surface.
func (m *Manager) BufferStatus() (bufferFrames, preRollFrames int, duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bufferFrames = len(m.buffer)
	preRollFrames = len(m.preRoll)
	if bufferFrames > 0 {
		duration = m.buffer[bufferFrames-1].Timestamp.Sub(m.bufferStart).Seconds()
	}
	return bufferFrames, preRollFrames, duration
}

// List returns the evidence files in the output directory, newest first.
func (m *Manager) List() []models.RecordingInfo {
	entries, err := os.ReadDir(m.opts.OutputDir)
	if err != nil {
		return nil
	}
	var out []models.RecordingInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".enc" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		// Filenames carry the segment stamp; legacy underscore stamps
		// from older deployments still parse. Fall back to mtime.
		created := info.ModTime()
		if t, ok := models.ParseStamp(e.Name()); ok {
			created = t
		}
		out = append(out, models.RecordingInfo{
			Filename: e.Name(),
			Path:     filepath.Join(m.opts.OutputDir, e.Name()),
			SizeMB:   float64(info.Size()) / (1024 * 1024),
			Created:  created,
		})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
