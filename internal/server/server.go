// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the upload page and the Markdown extraction
// endpoint over HTTP.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/extract-server/internal/audit"
	"github.com/pdiddy/extract-server/internal/convert"
	"github.com/pdiddy/extract-server/internal/staging"
	"github.com/pdiddy/extract-server/pkg/types"
)

//go:embed index.html
var indexHTML []byte

const defaultShutdownTimeout = 15 * time.Second

// Server wires the converter, stager and audit log behind a chi router.
type Server struct {
	cfg      types.ServerConfig
	timeout  time.Duration
	sweepAge time.Duration
	conv     convert.Converter
	stager   *staging.Stager
	audit    audit.Recorder
	log      *zap.Logger
}

// Deps groups the collaborators a Server needs. A nil Audit disables
// auditing.
type Deps struct {
	Converter convert.Converter
	Stager    *staging.Stager
	Audit     audit.Recorder
	Logger    *zap.Logger
}

// New returns a Server for cfg.
func New(cfg types.Config, deps Deps) *Server {
	rec := deps.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg.Server,
		timeout:  cfg.Conversion.Timeout,
		sweepAge: cfg.Staging.SweepAge,
		conv:     deps.Converter,
		stager:   deps.Stager,
		audit:    rec,
		log:      log,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{requestIDHeader},
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)

	extract := r.With()
	if s.cfg.RateLimit > 0 {
		extract = r.With(httprate.Limit(
			s.cfg.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Too many requests, try again later")
			}),
		))
	}
	extract.Post("/extract_markdown", s.handleExtract)

	return r
}

// Run sweeps stale staged files, listens on the configured address and
// serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.sweepAge > 0 {
		n, err := s.stager.Sweep(s.sweepAge)
		if err != nil {
			s.log.Warn("sweeping staging directory", zap.String("dir", s.stager.Dir()), zap.Error(err))
		} else if n > 0 {
			s.log.Info("removed stale staged files", zap.Int("count", n), zap.String("dir", s.stager.Dir()))
		}
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("backend", s.conv.Name()),
			zap.String("staging_dir", s.stager.Dir()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.conv.Name(),
	})
}
