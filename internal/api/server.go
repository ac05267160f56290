// Package api serves the daemon's read-only projection and operator
// command bindings over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/fand/internal/daemon"
	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/logger"
	"codeberg.org/mutker/fand/internal/metrics"
	"codeberg.org/mutker/fand/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	DefaultAddr     = "127.0.0.1:7645"
	requestTimeout  = 10 * time.Second
	maxBodyBytes    = 64 << 10
	defaultHistory  = 20
	shutdownTimeout = 5 * time.Second
)

// Backend is what the daemon offers the API.
type Backend interface {
	Fans(ctx context.Context) ([]fan.Record, error)
	Subsystems(ctx context.Context) ([]store.Subsystem, error)
	Dump() daemon.Report
	Ready(ctx context.Context) (bool, error)
	InsertFan(ctx context.Context, rec fan.Record) error
	CurrentOverride(ctx context.Context) (fan.Override, error)
	SetOverride(ctx context.Context, tier string) (fan.Speed, error)
	ClearOverride(ctx context.Context) error
}

// History serves stored fan samples.
type History interface {
	History(ctx context.Context, name string, limit int) ([]metrics.Sample, error)
}

type Options struct {
	Addr    string
	Metrics http.Handler
	History History
	Logger  logger.Logger
}

type Server struct {
	Addr    string
	router  *chi.Mux
	server  *http.Server
	backend Backend
	opts    Options
	logger  logger.Logger
}

func NewServer(backend Backend, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	s := &Server{
		Addr:    opts.Addr,
		router:  chi.NewRouter(),
		backend: backend,
		opts:    opts,
		logger:  opts.Logger.With("api"),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/fans", func(r chi.Router) {
		r.Get("/", s.handleListFans)
		r.Post("/", s.handleInsertFan)
		r.Get("/{name}/history", s.handleFanHistory)
	})

	s.router.Get("/override", s.handleGetOverride)
	s.router.Put("/override", s.handleSetOverride)
	s.router.Delete("/override", s.handleClearOverride)

	s.router.Get("/subsystems", s.handleSubsystems)
	s.router.Get("/dump", s.handleDump)

	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info().Str("addr", l.Addr().String()).Msg("API listening")
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.New().Wrap(errors.ErrInitFailed, err)
	}
	return s.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorWithCode(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request failed")
	}

	writeJSON(w, status, Response{
		Success: false,
		Error:   err.Error(),
		Code:    string(errors.CodeOf(err)),
	})
}

func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Response{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func statusFor(err error) int {
	switch {
	case errors.HasCode(err, errors.ErrValidation), errors.HasCode(err, errors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.HasCode(err, daemon.ErrSimulationDisabled):
		return http.StatusForbidden
	case errors.HasCode(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.HasCode(err, errors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request served")
	})
}
