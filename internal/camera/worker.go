package camera

import (
	"time"

	"github.com/rs/zerolog"

	"edgevision-worker-go/internal/evidence"
	"edgevision-worker-go/internal/models"
	"edgevision-worker-go/internal/processor"
	"edgevision-worker-go/internal/recorder"
)

// EventPublisher receives camera lifecycle events. A nil publisher is
// silently ignored so the pipeline runs without a message broker.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// stateEvent is the payload published on camera state transitions.
type stateEvent struct {
	CameraIndex int    `json:"camera_index"`
	Tag         string `json:"tag"`
	Source      string `json:"source"`
	State       string `json:"state"`
	Timestamp   int64  `json:"timestamp"`
}

// PreviewEncoder compresses the preview frame for the latest-frame slot.
type PreviewEncoder func(frame *models.Frame, quality int) ([]byte, error)

// WorkerOptions wires one camera worker.
type WorkerOptions struct {
	Index  int
	Source string
	Tag    string

	BackoffMin       time.Duration
	BackoffMax       time.Duration
	MaxReadFailures  int
	PreviewQuality   int
	ShowTimestamp    bool
	ShowDebugOverlay bool

	// PreviewEncode defaults to processor.EncodeJPEG.
	PreviewEncode PreviewEncoder
}

// Worker runs one camera's capture loop: connect with backoff, read,
// process, fan out to the public recorder and evidence manager, refresh the
// preview slot, and keep the status current. Frames flow strictly in
// capture order through both output paths.
type Worker struct {
	opts   WorkerOptions
	source FrameSource
	proc   *processor.Processor
	rec    *recorder.PublicRecorder
	ev     *evidence.Manager
	slot   *LatestFrameSlot
	stats  *Stats
	events EventPublisher
	log    zerolog.Logger

	stopCh chan struct{}
	done   chan struct{}
}

// NewWorker wires a worker; Run must be called exactly once, on its own
// goroutine.
func NewWorker(
	opts WorkerOptions,
	source FrameSource,
	proc *processor.Processor,
	rec *recorder.PublicRecorder,
	ev *evidence.Manager,
	slot *LatestFrameSlot,
	stats *Stats,
	events EventPublisher,
	logger zerolog.Logger,
) *Worker {
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.MaxReadFailures <= 0 {
		opts.MaxReadFailures = 5
	}
	if opts.PreviewEncode == nil {
		opts.PreviewEncode = processor.EncodeJPEG
	}
	return &Worker{
		opts:   opts,
		source: source,
		proc:   proc,
		rec:    rec,
		ev:     ev,
		slot:   slot,
		stats:  stats,
		events: events,
		log:    logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run drives the connection state machine until Stop.
func (w *Worker) Run() {
	defer close(w.done)
	defer w.source.Close()

	backoff := w.opts.BackoffMin

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.transition(models.CameraStateConnecting)
		if err := w.source.Open(); err != nil {
			w.log.Warn().Err(err).Dur("retry_in", backoff).Msg("Camera connect failed")
			if !w.sleep(backoff) {
				return
			}
			backoff = w.nextBackoff(backoff)
			continue
		}

		w.transition(models.CameraStateOnline)
		w.log.Info().Str("source", w.opts.Source).Msg("Camera connected")

		backoff = w.runOnline(backoff)
		select {
		case <-w.stopCh:
			return
		default:
		}

		// Feed lost: close out the current segments so what was captured
		// is immediately playable, then reconnect.
		w.transition(models.CameraStateOffline)
		w.rec.Rotate()
		w.ev.Flush()
		w.source.Close()

		if !w.sleep(backoff) {
			return
		}
		backoff = w.nextBackoff(backoff)
	}
}

// runOnline reads frames until shutdown or too many consecutive failures.
// It returns the backoff to use for the next reconnect; a single good frame
// resets it to the minimum.
func (w *Worker) runOnline(backoff time.Duration) time.Duration {
	consecutiveFailures := 0

	for {
		select {
		case <-w.stopCh:
			return backoff
		default:
		}

		frame, err := w.source.Read()
		if err != nil {
			consecutiveFailures++
			w.log.Warn().Err(err).Int("consecutive", consecutiveFailures).Msg("Frame read failed")
			if consecutiveFailures >= w.opts.MaxReadFailures {
				w.log.Error().Str("source", w.opts.Source).Msg("Feed lost")
				return backoff
			}
			continue
		}
		consecutiveFailures = 0
		backoff = w.opts.BackoffMin

		w.processFrame(frame)
	}
}

func (w *Worker) processFrame(frame *models.Frame) {
	blurred, raw, detections, err := w.proc.Process(frame)
	if err != nil {
		w.log.Error().Err(err).Msg("Frame processing failed")
		return
	}

	if err := w.rec.Write(blurred, detections, frame.Timestamp); err != nil {
		w.log.Error().Err(err).Msg("Public recorder write failed")
	}

	// The evidence file carries the stamp of the public segment the frame
	// landed in, read after Write so a rotation is reflected.
	syncStamp := w.rec.CurrentStamp()
	if err := w.ev.AddFrame(raw, detections, frame.Timestamp, syncStamp); err != nil {
		w.log.Error().Err(err).Msg("Evidence add failed")
	}

	// Overlays go on after the recorder write: previews show them, the
	// archived segment stays clean.
	info := processor.OverlayInfo{
		CameraIndex:    w.opts.Index,
		FPS:            w.stats.FPS(),
		DetectionCount: len(detections),
		State:          models.CameraStateOnline,
		ShowTimestamp:  w.opts.ShowTimestamp,
		ShowDebug:      w.opts.ShowDebugOverlay,
	}
	if err := processor.DrawOverlays(blurred, info); err != nil {
		w.log.Debug().Err(err).Msg("Overlay render failed")
	}
	if jpeg, err := w.opts.PreviewEncode(blurred, w.opts.PreviewQuality); err == nil {
		w.slot.Set(jpeg)
	} else {
		w.log.Debug().Err(err).Msg("Preview encode failed")
	}

	w.stats.ObserveFrame(frame.Timestamp, len(detections))
}

func (w *Worker) transition(state models.CameraState) {
	if w.stats.State() == state {
		return
	}
	w.stats.SetState(state)
	if w.events != nil {
		evt := stateEvent{
			CameraIndex: w.opts.Index,
			Tag:         w.opts.Tag,
			Source:      w.opts.Source,
			State:       string(state),
			Timestamp:   time.Now().Unix(),
		}
		if err := w.events.Publish("cameras.state."+w.opts.Tag, evt); err != nil {
			w.log.Debug().Err(err).Msg("State event publish failed")
		}
	}
}

func (w *Worker) nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > w.opts.BackoffMax {
		next = w.opts.BackoffMax
	}
	return next
}

// sleep waits d or returns false if shutdown was signalled.
func (w *Worker) sleep(d time.Duration) bool {
	select {
	case <-w.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// Stop signals the loop; Wait blocks until it drained.
func (w *Worker) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// Wait blocks until the worker goroutine exited.
func (w *Worker) Wait() {
	<-w.done
}
