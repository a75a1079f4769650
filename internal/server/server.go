// Package server exposes the ensemble engine over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"icu-risk/internal/ensemble"
	"icu-risk/internal/features"
	"icu-risk/internal/feed"
	"icu-risk/internal/narrative"
)

const (
	serviceName  = "ICU Admission Risk Service"
	maxBodyBytes = 1 << 20
)

// Engine is the decision engine the server fronts.
type Engine interface {
	Predict(features.Vitals) ensemble.Decision
	Info() ensemble.Info
}

// Metrics records request outcomes.
type Metrics interface {
	HTTPRequestObserve(route string, code int, seconds float64)
	ErrorsInc()
}

// Config holds the listener settings.
type Config struct {
	Port             int
	RequestTimeout   time.Duration
	NarrativeTimeout time.Duration
	Gatherer         prometheus.Gatherer
}

// PredictionResponse is the decision plus request bookkeeping.
type PredictionResponse struct {
	ensemble.Decision
	GeneratedSummary string    `json:"generated_summary,omitempty"`
	Latency          float64   `json:"latency_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// HealthResponse reports liveness and model state.
type HealthResponse struct {
	Status         string `json:"status"`
	ModelLoaded    bool   `json:"model_loaded"`
	SequenceLoaded bool   `json:"sequence_loaded"`
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	FeedClients    int    `json:"feed_clients"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Server serves predictions, health, model info, metrics and the decision feed.
type Server struct {
	engine    Engine
	narrative *narrative.Client
	feed      *feed.Hub
	metrics   Metrics
	router    *mux.Router
	server    *http.Server
	timeout   time.Duration
	narrTO    time.Duration
	started   time.Time
}

type Option func(*Server)

func WithNarrative(c *narrative.Client) Option {
	return func(s *Server) { s.narrative = c }
}

func WithFeed(h *feed.Hub) Option {
	return func(s *Server) { s.feed = h }
}

func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates the HTTP server for engine.
func New(engine Engine, cfg Config, opts ...Option) *Server {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	narrTO := cfg.NarrativeTimeout
	if narrTO <= 0 {
		narrTO = timeout
	}

	s := &Server{
		engine:  engine,
		timeout: timeout,
		narrTO:  narrTO,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	metricsHandler := promhttp.Handler()
	if cfg.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/model/info", s.handleModelInfo).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	if s.feed != nil {
		r.HandleFunc("/ws", s.feed.HandleWebSocket).Methods(http.MethodGet)
	}
	s.router = r

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  timeout,
		WriteTimeout: timeout + narrTO,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting risk server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": s.engine.Info().Version,
		"status":  "running",
		"endpoints": map[string]string{
			"predict":    "/predict",
			"health":     "/health",
			"model_info": "/model/info",
			"metrics":    "/metrics",
			"feed":       "/ws",
		},
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var fields map[string]any
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request: %v", err))
		return
	}

	v, err := features.ParseVitals(fields)
	if err != nil {
		code := "invalid_value"
		if errors.Is(err, features.ErrInputIncomplete) {
			code = "input_incomplete"
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	resp := PredictionResponse{Decision: s.engine.Predict(v)}

	if s.narrative.Enabled() {
		ctx, cancel := context.WithTimeout(r.Context(), s.narrTO)
		if text, err := s.narrative.Summarize(ctx, v); err == nil {
			resp.GeneratedSummary = text
		}
		cancel()
	}

	if s.feed != nil {
		s.feed.Publish(resp.Decision)
	}

	resp.Latency = float64(time.Since(start).Microseconds()) / 1000
	resp.Timestamp = time.Now().UTC()

	log.Info().
		Float64("risk_score", resp.RiskScore).
		Str("risk_level", string(resp.RiskLevel)).
		Bool("needs_icu", resp.NeedsICU).
		Float64("latency_ms", resp.Latency).
		Msg("Prediction served")

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.engine.Info()

	health := HealthResponse{
		Status:  "healthy",
		Version: info.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if info.Models != nil {
		health.ModelLoaded = info.Models.TabularLoaded
		health.SequenceLoaded = info.Models.SequenceLoaded
	}
	// fallback rules keep the service answering without artifacts
	if !health.ModelLoaded || !health.SequenceLoaded {
		health.Status = "degraded"
	}
	if s.feed != nil {
		health.FeedClients = s.feed.ClientCount()
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Info())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// instrument records the status and latency of every routed request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics == nil {
			return
		}
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.HTTPRequestObserve(route, rec.status, time.Since(start).Seconds())
		if rec.status >= http.StatusInternalServerError {
			s.metrics.ErrorsInc()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the feed upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
