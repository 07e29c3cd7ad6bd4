package daemon

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/api"
	"github.com/amora-chat/amora/internal/metrics"
	"github.com/amora-chat/amora/internal/profile"
)

// Server manages the local HTTP API lifecycle for a profile daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the profile's Unix domain socket.
func NewServer(
	p Params,
	logger *zap.Logger,
	statusHandler *api.StatusHandler,
	convHandler *api.ConversationHandler,
	msgHandler *api.MessageHandler,
	eventsHandler *api.EventsHandler,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.Limit(300, time.Minute, httprate.WithKeyFuncs(
		func(*http.Request) (string, error) { return "local", nil },
	)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.Get)
		r.Get("/events", eventsHandler.Stream)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", convHandler.List)
			r.Post("/", convHandler.Resolve)
			r.Post("/refresh", convHandler.Refresh)
			r.Route("/{display_id}", func(r chi.Router) {
				r.Post("/select", convHandler.Select)
				r.Delete("/", convHandler.Delete)
			})
		})
		r.Post("/deselect", convHandler.Deselect)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", msgHandler.Timeline)
			r.Post("/", msgHandler.Send)
			r.Delete("/", msgHandler.Clear)
			r.Delete("/{id}", msgHandler.Delete)
		})
		r.Post("/typing", msgHandler.Typing)
		r.Get("/search", msgHandler.Search)
	})

	return &Server{
		httpServer: &http.Server{
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // the event stream stays open
			IdleTimeout:  120 * time.Second,
		},
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("local API starting", zap.String("socket", s.socketPath))
	if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("local API stopping")
	_ = s.httpServer.Shutdown(ctx)
	_ = os.Remove(s.socketPath)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade on /v1/events reach the raw connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", duration),
			)
			metrics.RequestDuration.WithLabelValues(
				r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode),
			).Observe(duration.Seconds())
		})
	}
}
