package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"edgevision-worker-go/internal/camera"
	"edgevision-worker-go/internal/config"
	"edgevision-worker-go/internal/detector"
	"edgevision-worker-go/internal/evidence"
	"edgevision-worker-go/internal/logging"
	"edgevision-worker-go/internal/models"
	"edgevision-worker-go/internal/processor"
	"edgevision-worker-go/internal/recorder"
	"edgevision-worker-go/internal/storage"
	"edgevision-worker-go/internal/vault"
)

// Options allows the capture, encoding and detection backends to be swapped
// out; production wiring uses the gocv implementations.
type Options struct {
	SourceFactory  camera.SourceFactory
	EncoderFactory recorder.EncoderFactory
	Detector       detector.Detector
	Events         camera.EventPublisher
}

// cameraUnit bundles the per-camera components the engine owns.
type cameraUnit struct {
	worker *camera.Worker
	rec    *recorder.PublicRecorder
	ev     *evidence.Manager
	slot   *camera.LatestFrameSlot
	stats  *camera.Stats
}

// Engine owns the shared vault and detector plus one worker pipeline per
// configured camera. It is constructed in main and passed by reference to
// the HTTP layer; nothing here is a package-level singleton.
type Engine struct {
	cfg  *config.Config
	opts Options
	log  zerolog.Logger

	vlt    *vault.SecureVault
	hybrid *vault.HybridVault
	det    detector.Detector

	cameras   []*cameraUnit
	janitor   *storage.Janitor
	running   bool
	startedAt time.Time
}

// New builds an engine; Start brings it up.
func New(cfg *config.Config, opts Options) *Engine {
	if opts.SourceFactory == nil {
		opts.SourceFactory = func(index int, source string, width, height, targetFPS int) camera.FrameSource {
			return camera.NewGocvSourceTimeout(index, source, width, height, targetFPS, cfg.SourceReadTimeout)
		}
	}
	if opts.EncoderFactory == nil {
		opts.EncoderFactory = recorder.NewGocvEncoder
	}
	return &Engine{
		cfg:  cfg,
		opts: opts,
		log:  logging.NewServiceLogger(cfg, "engine"),
	}
}

// Start loads the key, brings up the shared detector, and spawns one worker
// goroutine per camera source. Vault and detector failures are fatal;
// individual cameras connect (and reconnect) on their own schedule.
func (e *Engine) Start() error {
	if e.running {
		return fmt.Errorf("engine: already started")
	}
	if len(e.cfg.CameraSources) == 0 {
		return ErrNoCameras
	}

	vlt, err := vault.Open(e.cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetup, err)
	}
	e.vlt = vlt

	if e.cfg.RSAPublicKeyPath != "" || e.cfg.RSAPrivateKeyPath != "" {
		hybrid, err := vault.NewHybrid(e.cfg.RSAPublicKeyPath, e.cfg.RSAPrivateKeyPath)
		if err != nil {
			e.vlt.Close()
			return fmt.Errorf("%w: %v", ErrKeySetup, err)
		}
		e.hybrid = hybrid
	}

	e.det = e.opts.Detector
	if e.det == nil {
		dnn, err := detector.NewDNN(e.cfg.ModelPath, e.cfg.Device,
			e.cfg.ConfidenceThreshold, e.cfg.IOUThreshold)
		if err != nil {
			e.vlt.Close()
			return fmt.Errorf("engine: detector: %w", err)
		}
		// OpenCV DNN forward passes share network buffers, so calls from
		// N workers are serialized.
		e.det = detector.Serialize(dnn)
	}

	proc := processor.New(e.det, e.cfg.BlurKernel)

	for i, src := range e.cfg.CameraSources {
		unit, err := e.buildCamera(i, src, proc)
		if err != nil {
			e.teardown()
			return err
		}
		e.cameras = append(e.cameras, unit)
	}

	e.janitor = storage.NewJanitor(
		[]string{e.cfg.PublicPath, e.cfg.EvidencePath},
		e.cfg.MaxStorageGB,
		logging.NewServiceLogger(e.cfg, "janitor"),
	)

	for _, unit := range e.cameras {
		go unit.worker.Run()
	}

	e.running = true
	e.startedAt = time.Now()
	e.log.Info().Int("cameras", len(e.cameras)).Msg("Engine started")
	return nil
}

func (e *Engine) buildCamera(index int, source string, proc *processor.Processor) (*cameraUnit, error) {
	tag := config.CameraTag(index, source)
	camLog := logging.WithCamera(e.log, tag)

	rec, err := recorder.New(recorder.Options{
		OutputDir:   e.cfg.PublicPath,
		Prefix:      tag,
		FPS:         e.cfg.TargetFPS,
		SegmentSecs: e.cfg.SegmentSeconds,
		Width:       e.cfg.OutputWidth,
		Height:      e.cfg.OutputHeight,
		Events:      e.opts.Events,
	}, e.opts.EncoderFactory, camLog)
	if err != nil {
		return nil, fmt.Errorf("engine: recorder for %s: %w", tag, err)
	}

	ev, err := evidence.NewManager(evidence.Options{
		OutputDir:     filepath.Join(e.cfg.EvidencePath, tag),
		Prefix:        tag,
		SegmentSecs:   e.cfg.SegmentSeconds,
		DetectionOnly: e.cfg.EvidenceDetectionOnly,
		JPEGQuality:   e.cfg.EvidenceJPEGQuality,
		PreRollSize:   e.cfg.PreRollSize,
		QueueCapacity: e.cfg.FlushQueueCapacity,
		DrainTimeout:  e.cfg.FlushDrainTimeout,
		Events:        e.opts.Events,
	}, e.evidenceSealer(), processor.EncodeJPEG, camLog)
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("engine: evidence manager for %s: %w", tag, err)
	}

	slot := &camera.LatestFrameSlot{}
	stats := camera.NewStats(index, source, tag)
	src := e.opts.SourceFactory(index, source, e.cfg.OutputWidth, e.cfg.OutputHeight, e.cfg.TargetFPS)

	worker := camera.NewWorker(camera.WorkerOptions{
		Index:            index,
		Source:           source,
		Tag:              tag,
		BackoffMin:       e.cfg.ReconnectBackoffMin,
		BackoffMax:       e.cfg.ReconnectBackoffMax,
		MaxReadFailures:  e.cfg.MaxConsecutiveReads,
		PreviewQuality:   e.cfg.PreviewQuality,
		ShowTimestamp:    e.cfg.ShowTimestamp,
		ShowDebugOverlay: e.cfg.ShowDebugOverlay,
	}, src, proc, rec, ev, slot, stats, e.opts.Events, camLog)

	return &cameraUnit{worker: worker, rec: rec, ev: ev, slot: slot, stats: stats}, nil
}

// evidenceSealer picks the hybrid vault when an RSA public key is
// configured, otherwise the symmetric vault.
func (e *Engine) evidenceSealer() evidence.Sealer {
	if e.hybrid != nil && e.cfg.RSAPublicKeyPath != "" {
		return &hybridSealer{vault: e.hybrid}
	}
	return e.vlt
}

// hybridSealer adapts HybridVault to the evidence Sealer interface.
type hybridSealer struct {
	vault *vault.HybridVault
}

func (h *hybridSealer) EncryptToFile(payload []byte, meta map[string]interface{}, path string) error {
	data, err := h.vault.Encrypt(payload, meta)
	if err != nil {
		return err
	}
	return vault.WriteAtomic(path, data)
}

// Stop signals every worker, waits for them to drain, then closes the
// recorders and evidence managers synchronously and zeroes the key.
// Teardown is best-effort: component failures are logged, not propagated.
func (e *Engine) Stop() {
	if !e.running {
		return
	}
	e.running = false
	e.log.Info().Msg("Stopping engine")

	for _, unit := range e.cameras {
		unit.worker.Stop()
	}
	for _, unit := range e.cameras {
		unit.worker.Wait()
	}
	for _, unit := range e.cameras {
		unit.rec.Close()
		unit.ev.Close()
	}
	if e.janitor != nil {
		e.janitor.Stop()
	}
	e.teardown()
	e.log.Info().Msg("Engine stopped")
}

func (e *Engine) teardown() {
	if e.det != nil {
		if err := e.det.Close(); err != nil {
			e.log.Warn().Err(err).Msg("Detector close failed")
		}
		e.det = nil
	}
	if e.vlt != nil {
		e.vlt.Close()
		e.vlt = nil
	}
}

// Status returns a snapshot of every camera. Counters owned by the
// recorder and evidence manager are merged in here.
func (e *Engine) Status() models.EngineStatus {
	out := models.EngineStatus{
		Running:   e.running,
		StartedAt: e.startedAt,
		Cameras:   make([]models.CameraStatus, 0, len(e.cameras)),
	}
	for _, unit := range e.cameras {
		st := unit.stats.Snapshot()
		st.WriteErrors = unit.rec.WriteErrors()
		st.EvidenceDrops = unit.ev.Drops()
		st.FlushErrors = unit.ev.FlushErrors()
		st.BufferFrames, st.PreRollFrames, st.BufferDuration = unit.ev.BufferStatus()
		out.Cameras = append(out.Cameras, st)
	}
	return out
}

// LatestJPEG returns the newest preview frame for a camera, or ok=false if
// the camera never produced one (or the index is unknown).
func (e *Engine) LatestJPEG(index int) (jpeg []byte, seq uint64, ok bool) {
	if index < 0 || index >= len(e.cameras) {
		return nil, 0, false
	}
	return e.cameras[index].slot.Get()
}

// CameraCount returns the number of configured cameras.
func (e *Engine) CameraCount() int { return len(e.cameras) }

// ListPublic returns all public segments across cameras, newest first per
// camera.
func (e *Engine) ListPublic() []models.RecordingInfo {
	var out []models.RecordingInfo
	for _, unit := range e.cameras {
		out = append(out, unit.rec.List()...)
	}
	return out
}

// ListEvidence returns all evidence containers across cameras.
func (e *Engine) ListEvidence() []models.RecordingInfo {
	var out []models.RecordingInfo
	for _, unit := range e.cameras {
		out = append(out, unit.ev.List()...)
	}
	return out
}

// StorageUsage reports bytes used under the recording roots.
func (e *Engine) StorageUsage() int64 {
	if e.janitor == nil {
		return 0
	}
	return e.janitor.Usage()
}
