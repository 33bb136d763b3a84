// Package collector is a minimal HTTP receiver for the batches a Webhook
// sink posts (spec.md §6 upload_url). It exists for local testing and
// demos: point an agent's webhook sink at a running collector and watch
// decompressed batches land in a log, without standing up a real
// ingestion service.
package collector

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/zstd"
)

// Handler receives one decompressed, JSON-decoded batch payload.
type Handler func(payload map[string]any)

// Server is a chi-routed HTTP server exposing the collection endpoint a
// Webhook sink posts zstd-compressed batches to.
type Server struct {
	router  *chi.Mux
	decoder *zstd.Decoder
	logger  *slog.Logger
	onBatch Handler
}

// New builds a collector server. path is the route batches are posted to
// (spec.md's upload_url, e.g. "/collect"). onBatch may be nil, in which
// case received batches are only logged.
func New(path string, onBatch Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	s := &Server{decoder: dec, logger: logger, onBatch: onBatch}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post(path, s.handleCollect)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	s.router = r

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	compressed, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		s.logger.Warn("collector: bad compressed payload", "error", err)
		http.Error(w, "decompress payload", http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("collector: bad payload json", "error", err)
		http.Error(w, "decode payload", http.StatusBadRequest)
		return
	}

	events, _ := payload["events"].([]any)
	s.logger.Info("collector: received batch", "events", len(events))
	if s.onBatch != nil {
		s.onBatch(payload)
	}

	w.WriteHeader(http.StatusAccepted)
}
