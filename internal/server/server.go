package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecommate/internal/config"
	"ecommate/internal/logger"
	"ecommate/internal/pipeline"
	"ecommate/internal/session"
)

const module = "server"

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.State, error)
}

type Options struct {
	TempDir            string
	MaxUploadBytes     int64
	RejectUnrecognized bool
	Styles             []config.StylePreset
}

// Server is the HTTP front end. Every handler works on an explicit session
// looked up by ID; there is no process-wide UI state.
type Server struct {
	opts     Options
	runner   Runner
	sessions *session.Store
	log      logger.Logger
	router   *mux.Router

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New wires the routes. reg receives the HTTP collectors and is served on /metrics.
func New(runner Runner, sessions *session.Store, opts Options, log logger.Logger, reg *prometheus.Registry) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	s := &Server{
		opts:     opts,
		runner:   runner,
		sessions: sessions,
		log:      log,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecommate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ecommate_http_request_duration_seconds",
				Help: "Duration of HTTP requests",
			},
			[]string{"method", "route"},
		),
	}
	reg.MustRegister(s.requestsTotal, s.requestDuration)

	router := mux.NewRouter()
	router.Use(s.instrument)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleClearSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/image", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/styles", s.handleStyles).Methods(http.MethodGet)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(module, "listening", map[string]any{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info(module, "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		s.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Styles)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
