package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RefCreationHandler reacts to a validated ref creation event and returns
// the info message to acknowledge the delivery with. Implementations must
// not block on follow-up API calls; the acknowledgment path stays fast.
type RefCreationHandler interface {
	HandleRefCreation(deliveryID string, payload []byte, event RefCreationEvent) string
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Secret verifies inbound payload signatures. Empty accepts all
	// payloads unauthenticated (logged, intended for non-production use).
	Secret string
}

// Server is the webhook HTTP server.
type Server struct {
	config  Config
	handler RefCreationHandler
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new webhook server instance.
func New(config Config, handler RefCreationHandler, logger *slog.Logger) *Server {
	return &Server{
		config:  config,
		handler: handler,
		logger:  logger,
	}
}

// Start starts the webhook HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/", s.handleEvent)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// loggingMiddleware logs HTTP requests (excludes payload contents).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleEvent handles incoming webhook POST requests.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get(EventHeader)
	if event == "" {
		s.respondError(w, http.StatusBadRequest, "missing webhook event header")
		return
	}

	// Events the service does not act on are acknowledged, not rejected.
	if event != "create" {
		s.respondInfo(w, "not listening to this webhook event")
		return
	}

	limitedReader := io.LimitReader(r.Body, MaxPayloadBytes+1)
	payload, err := io.ReadAll(limitedReader)
	if err != nil {
		s.logger.Error("failed to read webhook body", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(payload) > MaxPayloadBytes {
		s.respondError(w, http.StatusBadRequest, "payload too large")
		return
	}

	// The signature covers the exact raw bytes; verify before any JSON
	// decoding touches them.
	if err := s.verifySignature(r.Header.Get(SignatureHeader), payload); err != nil {
		s.logger.Warn("rejected webhook payload", "error", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var refEvent RefCreationEvent
	if err := json.Unmarshal(payload, &refEvent); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed payload body")
		return
	}

	info := s.handler.HandleRefCreation(r.Header.Get(DeliveryHeader), payload, refEvent)
	s.respondInfo(w, info)
}

// verifySignature applies the configured secret, treating its absence as a
// deliberate relaxation.
func (s *Server) verifySignature(provided string, payload []byte) error {
	if s.config.Secret == "" {
		s.logger.Warn("no webhook secret configured, ignoring payload signature (this should be configured for production use)")
		return nil
	}
	return verifySignature(provided, payload, s.config.Secret)
}

// respondInfo sends a 200 acknowledgment with an info message.
func (s *Server) respondInfo(w http.ResponseWriter, info string) {
	s.respondJSON(w, http.StatusOK, InfoResponse{Info: info})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
