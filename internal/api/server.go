package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"edgevision-worker-go/internal/api/handlers"
	"edgevision-worker-go/internal/config"
	"edgevision-worker-go/internal/engine"
)

// Server is the HTTP surface over the engine. It only ever touches the
// engine through snapshot accessors, the latest-frame slots, and the
// decrypt entry point; the worker loops never see it.
type Server struct {
	cfg    *config.Config
	router *gin.Engine
	server *http.Server
	auth   *Auth

	healthHandler    *handlers.HealthHandler
	streamHandler    *handlers.StreamHandler
	statusHandler    *handlers.StatusHandler
	recordingHandler *handlers.RecordingHandler
	decryptHandler   *handlers.DecryptHandler
}

// NewServer wires routes and middleware around eng.
func NewServer(cfg *config.Config, eng *engine.Engine) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	auth, err := NewAuth(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		router: gin.New(),
		auth:   auth,

		healthHandler:    handlers.NewHealthHandler(cfg),
		streamHandler:    handlers.NewStreamHandler(eng),
		statusHandler:    handlers.NewStatusHandler(eng),
		recordingHandler: handlers.NewRecordingHandler(cfg, eng),
		decryptHandler:   handlers.NewDecryptHandler(eng),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s, nil
}

func (s *Server) Start() error {
	log.Info().Int("port", s.cfg.Port).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
