package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"edgevision-worker-go/internal/config"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

func WithCamera(base zerolog.Logger, tag string) zerolog.Logger {
	return base.With().Str("camera", tag).Logger()
}
