// Package server is the HTTP boundary: health, file processing, and the
// NDJSON chat stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/noesis-labs/noesis/internal/anthropic"
	"github.com/noesis-labs/noesis/internal/config"
	"github.com/noesis-labs/noesis/internal/logging"
	"github.com/noesis-labs/noesis/internal/prompt"
	"github.com/noesis-labs/noesis/internal/tabular"
	"github.com/noesis-labs/noesis/internal/usage"
	"github.com/noesis-labs/noesis/pkg/schema"
)

// Analyzer runs the one-shot file analysis. Satisfied by analysis.Analyzer.
type Analyzer interface {
	AnalyzeDataset(ctx context.Context, fileName string, ds *tabular.Dataset) (schema.FileProcessingResult, schema.Usage)
}

// Streamer opens a streaming model turn. Satisfied by anthropic.Client.
type Streamer interface {
	StreamMessages(ctx context.Context, req anthropic.MessageRequest) (<-chan anthropic.Event, error)
}

// Server holds the wired components behind the HTTP handlers.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	analyzer Analyzer
	streamer Streamer
	prompts  *prompt.Builder
	reporter *usage.Reporter
}

// New wires the handlers to their components.
func New(cfg *config.Config, logger *slog.Logger, analyzer Analyzer, streamer Streamer, prompts *prompt.Builder, reporter *usage.Reporter) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		analyzer: analyzer,
		streamer: streamer,
		prompts:  prompts,
		reporter: reporter,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		s.correlate,
		s.cors,
	)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/process-file", s.handleProcessFile)
		r.Post("/chat/stream", s.handleChatStream)
	})
	return r
}

// Serve runs the HTTP server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting server", slog.String("addr", s.cfg.ListenAddr))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.reporter.Flush()
		return nil
	})

	return eg.Wait()
}

// correlate assigns each request an ID that the correlation log handler
// picks up from context.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logging.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors allows the configured browser origins. Non-matching origins get no
// CORS headers and fail in the browser; the API itself never blocks them.
func (s *Server) cors(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(s.cfg.CORS.AllowedOrigins))
	for _, o := range s.cfg.CORS.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := allowed[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
