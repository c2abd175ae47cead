package http

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-radar-service/internal/cache"
	"github.com/couchcryptid/storm-radar-service/internal/colormap"
	"github.com/couchcryptid/storm-radar-service/internal/pipeline"
)

// FrameSource provides the most recently processed scan.
type FrameSource interface {
	sharedobs.ReadinessChecker
	Latest() *pipeline.Frame
}

// CacheStats reports cache occupancy.
type CacheStats interface {
	Stats() cache.Stats
}

// Server exposes health, readiness, metrics, and latest-scan HTTP endpoints.
type Server struct {
	httpServer *http.Server
	frames     FrameSource
	cache      CacheStats
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /scans/latest, /scans/latest/reflectivity.png, and /cache routes.
func NewServer(addr string, frames FrameSource, stats CacheStats, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		frames: frames,
		cache:  stats,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(frames))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /scans/latest", s.handleLatest)
	mux.HandleFunc("GET /scans/latest/reflectivity.png", s.handleReflectivity)
	mux.HandleFunc("GET /cache", s.handleCache)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	f := s.frames.Latest()
	if f == nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no scan processed yet"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, f.Summary)
}

// handleReflectivity renders the colorized lowest reflectivity sweep as a
// polar image: one row per radial, one column per gate.
func (s *Server) handleReflectivity(w http.ResponseWriter, _ *http.Request) {
	f := s.frames.Latest()
	if f == nil || f.Reflectivity == nil || f.Reflectivity.Radials == 0 {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no reflectivity available"})
		return
	}
	img := &image.RGBA{
		Pix:    colormap.Pixels(f.Colors),
		Stride: 4 * f.Reflectivity.Gates,
		Rect:   image.Rect(0, 0, f.Reflectivity.Gates, f.Reflectivity.Radials),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.logger.Error("encode reflectivity image", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failed"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.cache.Stats())
}
