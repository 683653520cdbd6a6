// Package httpapi exposes the pipeline over HTTP. It is boundary plumbing:
// routing, JSON encoding and status mapping live here, nothing else.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/usecase"
	"VoiceScribe/pkg/metrics"
)

// Server wraps the stdlib HTTP server with the service routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the server with all routes registered.
func New(cfg config.ServerConfig, pipeline *usecase.Pipeline, metricsEnabled bool, logger *slog.Logger) *Server {
	h := &handlers{pipeline: pipeline, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /process", h.ingest)
	mux.HandleFunc("GET /articles", h.listArticles)
	mux.HandleFunc("GET /articles/{id}", h.getArticle)
	mux.HandleFunc("PUT /articles/{id}", h.updateArticle)
	mux.HandleFunc("DELETE /articles/{id}", h.deleteArticle)
	mux.HandleFunc("POST /articles/{id}/tts", h.requestSynthesis)
	mux.HandleFunc("GET /articles/{id}/audio", h.streamAudio)
	mux.HandleFunc("DELETE /articles/{id}/audio", h.deleteAudio)
	mux.HandleFunc("GET /health", h.health)
	if metricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start blocks serving requests until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
