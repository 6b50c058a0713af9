// Package server exposes the decklist pipeline over HTTP: single image,
// buffered batch, SSE stream and WebSocket stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/decklens/decklens/internal/batch"
	"github.com/decklens/decklens/internal/pipeline"
	"github.com/decklens/decklens/internal/version"
)

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	CORSOrigin   string
	MaxUploadMB  int64
	MaxBatchSize int
	TimeoutSec   int
	MaxWorkers   int
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		CORSOrigin:   "*",
		MaxUploadMB:  10,
		MaxBatchSize: 10,
		TimeoutSec:   300,
		MaxWorkers:   2,
	}
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipe   *pipeline.Pipeline
	cfg    Config
	logger *slog.Logger
}

// NewServer wires a server around an already-built pipeline.
func NewServer(pipe *pipeline.Pipeline, cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultConfig().MaxUploadMB
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pipe: pipe, cfg: cfg, logger: logger}
}

// RegisterRoutes attaches all handlers to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/stats", s.corsMiddleware(s.statsHandler))
	mux.HandleFunc("/process", s.corsMiddleware(s.processHandler))
	mux.HandleFunc("/process-batch", s.corsMiddleware(s.processBatchHandler))
	mux.HandleFunc("/process-batch-stream", s.corsMiddleware(s.processBatchStreamHandler))
	mux.HandleFunc("/ws", s.websocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Streaming endpoints hold connections open; the per-request
		// timeout budget covers the whole batch.
		WriteTimeout: time.Duration(s.cfg.TimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "version", version.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) orchestrator(parallel bool, workers int) *batch.Orchestrator {
	if workers <= 0 || workers > s.cfg.MaxWorkers {
		workers = s.cfg.MaxWorkers
	}
	return batch.New(s.pipe, batch.Config{
		Parallel:   parallel,
		MaxWorkers: workers,
	}, s.logger)
}

// Response types for API endpoints.

type HealthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	Version        string `json:"version"`
	CatalogLoaded  bool   `json:"catalog_loaded"`
	TotalCardsInDB int    `json:"total_cards_in_db"`
	Warning        string `json:"warning,omitempty"`
}

type StatsResponse struct {
	Catalog CatalogStats `json:"catalog"`
	Parser  ParserStats  `json:"parser"`
}

type CatalogStats struct {
	TotalCards         int      `json:"total_cards"`
	BaseNames          int      `json:"base_names"`
	SupportedLanguages []string `json:"supported_languages"`
}

type ParserStats struct {
	Engine           string   `json:"engine"`
	SupportedFormats []string `json:"supported_formats"`
	MaxFileSizeMB    int64    `json:"max_file_size_mb"`
	MaxBatchSize     int      `json:"max_batch_size"`
	NumberMismatches int64    `json:"card_number_mismatches"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
