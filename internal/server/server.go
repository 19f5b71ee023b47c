package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
)

// Server serves the session API until its context is canceled.
type Server struct {
	http     *http.Server
	sessions *Manager
}

func New(cfg config.ServerConfig, sessions *Manager, formats DocumentFormats) *Server {
	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(NewHandler(sessions, formats, cfg.UploadLimitMB)),
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions: sessions,
	}
}

// Run listens until ctx is done, then drains in-flight requests and closes
// every session.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	log.Info().Msg("http server stopped")
	return err
}
