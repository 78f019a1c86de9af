package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Cameras. Each source is either a decimal device index or a URL.
	CameraSources []string

	// Detection
	Device              string // "cuda" or "cpu"
	ModelPath           string
	ConfidenceThreshold float64
	IOUThreshold        float64
	BlurKernel          int // odd, >= 3

	// Recording
	SegmentSeconds int
	TargetFPS      int
	OutputWidth    int
	OutputHeight   int

	// Evidence
	EvidenceDetectionOnly bool
	EvidenceJPEGQuality   int
	PreRollSize           int
	FlushQueueCapacity    int

	// Storage
	MaxStorageGB int
	PublicPath   string
	EvidencePath string
	KeyPath      string

	// Hybrid vault (optional; empty paths disable it)
	RSAPublicKeyPath  string
	RSAPrivateKeyPath string

	// Decrypt auth
	DecryptPIN string
	JWTSecret  string
	JWTTTL     time.Duration

	// Preview overlays
	ShowTimestamp    bool
	ShowDebugOverlay bool
	PreviewQuality   int

	// NATS (event publishing; empty URL disables it)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int

	// Timeouts
	SourceReadTimeout time.Duration
	FlushDrainTimeout time.Duration
	ShutdownTimeout   time.Duration

	// Reconnect backoff
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
	MaxConsecutiveReads int
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "edgevision-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Cameras
		CameraSources: getEnvList("CAMERA_SOURCES", []string{"0"}),

		// Detection
		Device:              getEnv("DEVICE", "cuda"),
		ModelPath:           getEnv("MODEL_PATH", "models/face.onnx"),
		ConfidenceThreshold: getEnvFloat("DETECTION_CONFIDENCE", 0.35),
		IOUThreshold:        getEnvFloat("DETECTION_IOU", 0.45),
		BlurKernel:          getEnvInt("BLUR_KERNEL", 51),

		// Recording
		SegmentSeconds: getEnvInt("RECORDING_DURATION_SECONDS", 300),
		TargetFPS:      getEnvInt("TARGET_FPS", 30),
		OutputWidth:    getEnvInt("OUTPUT_WIDTH", 1280),
		OutputHeight:   getEnvInt("OUTPUT_HEIGHT", 720),

		// Evidence
		EvidenceDetectionOnly: getEnvBool("EVIDENCE_DETECTION_ONLY", true),
		EvidenceJPEGQuality:   getEnvInt("EVIDENCE_JPEG_QUALITY", 75),
		PreRollSize:           getEnvInt("PRE_ROLL_SIZE", 30),
		FlushQueueCapacity:    getEnvInt("FLUSH_QUEUE_CAPACITY", 10),

		// Storage
		MaxStorageGB: getEnvInt("MAX_STORAGE_GB", 50),
		PublicPath:   getEnv("PUBLIC_RECORDINGS_PATH", "recordings/public"),
		EvidencePath: getEnv("EVIDENCE_RECORDINGS_PATH", "recordings/evidence"),
		KeyPath:      getEnv("ENCRYPTION_KEY_PATH", defaultKeyPath()),

		// Hybrid vault
		RSAPublicKeyPath:  getEnv("RSA_PUBLIC_KEY_PATH", ""),
		RSAPrivateKeyPath: getEnv("RSA_PRIVATE_KEY_PATH", ""),

		// Decrypt auth
		DecryptPIN: getEnv("DECRYPT_PIN", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		JWTTTL:     getEnvDuration("JWT_TTL", 15*time.Minute),

		// Preview overlays
		ShowTimestamp:    getEnvBool("SHOW_TIMESTAMP", true),
		ShowDebugOverlay: getEnvBool("SHOW_DEBUG_OVERLAY", false),
		PreviewQuality:   getEnvInt("PREVIEW_JPEG_QUALITY", 80),

		// NATS
		NatsURL:            getEnv("NATS_URL", ""),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited

		// Timeouts
		SourceReadTimeout: getEnvDuration("SOURCE_READ_TIMEOUT", 2*time.Second),
		FlushDrainTimeout: getEnvDuration("FLUSH_DRAIN_TIMEOUT", 30*time.Second),
		ShutdownTimeout:   getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Reconnect backoff
		ReconnectBackoffMin: getEnvDuration("RECONNECT_BACKOFF_MIN", 1*time.Second),
		ReconnectBackoffMax: getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),
		MaxConsecutiveReads: getEnvInt("MAX_CONSECUTIVE_READ_ERRORS", 5),
	}
}

// Validate returns the configuration errors that must stop startup.
func (c *Config) Validate() error {
	if len(c.CameraSources) == 0 {
		return fmt.Errorf("no camera sources configured")
	}
	if c.Device != "cuda" && c.Device != "cpu" {
		return fmt.Errorf("invalid device %q (must be cuda or cpu)", c.Device)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.ConfidenceThreshold)
	}
	if c.IOUThreshold < 0 || c.IOUThreshold > 1 {
		return fmt.Errorf("iou threshold %v outside [0,1]", c.IOUThreshold)
	}
	if c.BlurKernel < 3 || c.BlurKernel%2 == 0 {
		return fmt.Errorf("blur kernel %d must be an odd integer >= 3", c.BlurKernel)
	}
	if c.SegmentSeconds <= 0 {
		return fmt.Errorf("segment duration must be positive, got %d", c.SegmentSeconds)
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("target fps must be positive, got %d", c.TargetFPS)
	}
	if c.EvidenceJPEGQuality < 1 || c.EvidenceJPEGQuality > 100 {
		return fmt.Errorf("evidence jpeg quality %d outside [1,100]", c.EvidenceJPEGQuality)
	}
	if c.PreRollSize < 0 {
		return fmt.Errorf("pre-roll size must be >= 0, got %d", c.PreRollSize)
	}
	if c.FlushQueueCapacity < 1 {
		return fmt.Errorf("flush queue capacity must be >= 1, got %d", c.FlushQueueCapacity)
	}
	if c.MaxStorageGB <= 0 {
		return fmt.Errorf("max storage must be positive, got %d", c.MaxStorageGB)
	}
	if c.KeyPath == "" {
		return fmt.Errorf("encryption key path not configured")
	}
	return nil
}

// CameraTag returns the stable per-worker filename tag for a source:
// "cam{index}" for device indices, the URL scheme for stream URLs.
func CameraTag(index int, source string) string {
	if _, err := strconv.Atoi(source); err == nil {
		return fmt.Sprintf("cam%d", index)
	}
	if i := strings.Index(source, "://"); i > 0 {
		return strings.ToLower(source[:i])
	}
	return fmt.Sprintf("cam%d", index)
}

// defaultKeyPath places the master key under the XDG data directory so a
// bare deployment still gets a persistent key location.
func defaultKeyPath() string {
	if p, err := xdg.DataFile(filepath.Join("edgevision", "keys", "master.key")); err == nil {
		return p
	}
	return "keys/master.key"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
