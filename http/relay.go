package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fwojciec/autofetch"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxEnvelopeBytes caps the size of one relayed envelope.
const DefaultMaxEnvelopeBytes = 4 << 20

// RelayServer receives envelopes posted by subordinate frames and hands
// their messages to the top frame's worker channel.
type RelayServer struct {
	router   chi.Router
	channel  autofetch.WorkerChannel
	origins  map[string]bool
	maxBytes int64
	metrics  http.Handler
	logger   *slog.Logger
}

// RelayOption configures a RelayServer.
type RelayOption func(*RelayServer)

// WithAllowedOrigins restricts relaying to requests whose Origin header is
// one of origins. With no origins configured every origin is accepted.
func WithAllowedOrigins(origins ...string) RelayOption {
	return func(s *RelayServer) {
		for _, o := range origins {
			s.origins[o] = true
		}
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) RelayOption {
	return func(s *RelayServer) {
		s.metrics = h
	}
}

// WithRelayLogger sets the logger.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(s *RelayServer) {
		s.logger = logger
	}
}

// NewRelayServer creates a RelayServer delivering into channel.
func NewRelayServer(channel autofetch.WorkerChannel, opts ...RelayOption) *RelayServer {
	s := &RelayServer{
		channel:  channel,
		origins:  make(map[string]bool),
		maxBytes: DefaultMaxEnvelopeBytes,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.healthz)
	r.Post("/relay", s.relay)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *RelayServer) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// relay accepts one envelope. Only aaworker envelopes reach the worker;
// other tags are acknowledged and ignored.
func (s *RelayServer) relay(w http.ResponseWriter, r *http.Request) {
	if len(s.origins) > 0 && !s.origins[r.Header.Get("Origin")] {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}

	var env autofetch.Envelope
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBytes))
	if err := dec.Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if env.WBType != autofetch.EnvelopeTag {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if env.Msg == nil {
		writeError(w, http.StatusBadRequest, "missing msg")
		return
	}

	s.logger.Debug("relaying message", "type", env.Msg.Type)
	s.channel.PostMessage(env.Msg)
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("write JSON failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
