// Package http serves the profile storage API, the remote-control API with
// its websocket state stream, and the health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ytmdremote/internal/core"
	"ytmdremote/internal/flood"
)

const (
	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
	maxBodyBytes     = 1 << 20
)

// Pinger reports whether the remote player answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Targeter is a player client whose address can change at runtime.
type Targeter interface {
	BaseURL() string
	Retarget(baseURL string) bool
}

// Options selects which APIs the server mounts. A nil Profiles disables the
// storage API and a nil Session disables the remote-control API.
type Options struct {
	Profiles            ProfileBackend
	Session             *core.Session
	Player              Pinger
	Target              Targeter
	PlayerConfig        core.PlayerConfig
	WriteLimitPerMinute int
}

type Server struct {
	config  *core.ServerConfig
	options Options
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
	hub     *Hub
	gate    *flood.Floodgate
	session *core.Session
}

func NewServer(config *core.ServerConfig, options Options, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		options: options,
		logger:  logger,
		metrics: NewMetrics(),
		session: options.Session,
	}
	s.hub = NewHub(s.metrics, logger.Named("stream"))
	if options.Profiles != nil && options.WriteLimitPerMinute > 0 {
		s.gate = flood.New(options.WriteLimitPerMinute)
	}
	if s.session != nil {
		s.session.SetMetrics(s.metrics)
	}

	s.server = createHTTPServer(config, s.setupRoutes())
	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/", handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Use(bodySizeLimit(maxBodyBytes))

		if s.options.Profiles != nil {
			storage := &storageAPI{
				profiles: s.options.Profiles,
				gate:     s.gate,
				metrics:  s.metrics,
				logger:   s.logger.Named("storage"),
			}
			storage.routes(r)
		}

		if s.session != nil {
			remote := &remoteAPI{
				session:      s.session,
				target:       s.options.Target,
				playerConfig: s.options.PlayerConfig,
				logger:       s.logger.Named("remote"),
			}
			r.Route("/remote", func(r chi.Router) {
				remote.routes(r)
				r.Get("/ws", s.handleStream)
			})
		}
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down within shutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.serveStreams(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.Close()
	s.logger.Info("HTTP server stopped")
	return err
}

// serveStreams runs the websocket hub and, with a session, the state feed.
func (s *Server) serveStreams(ctx context.Context) {
	if s.session == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.hub.Run(ctx)
	}()
	s.streamSession(ctx)
	<-done
}

// Close releases background resources not tied to Start.
func (s *Server) Close() {
	if s.gate != nil {
		s.gate.Stop()
	}
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ytmdremote"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.options.Player != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := s.options.Player.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "not ready",
				"service": "ytmdremote",
				"error":   err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "ytmdremote"})
}

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>ytmdremote</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
    </style>
</head>
<body>
    <h1>ytmdremote</h1>
    <p>Remote control for the YouTube Music desktop player.</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/api/remote/state">Playback state</a></div>
    <div class="endpoint"><a href="/api/remote/queue">Queue</a></div>
    <div class="endpoint"><a href="/api/health">Storage health</a></div>
    <div class="endpoint"><a href="/metrics">Metrics</a></div>
    <div class="endpoint"><a href="/healthz">Health</a> / <a href="/readyz">Ready</a></div>
</body>
</html>`))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if strings.HasSuffix(r.URL.Path, "/ws") {
			return
		}
		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bodySizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
