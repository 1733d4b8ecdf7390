// Package server provides the HTTP server for mudra: the JSON API, the
// gesture event websocket, the camera preview stream and the static UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Application is the running pipeline the server exposes. *app.App
// implements it.
type Application interface {
	api.Controller
	Snapshot() ([]byte, error)
	Subscribe() (<-chan gesture.Event, func())
}

// Config holds the server configuration.
type Config struct {
	App       Application
	Store     *store.Store
	Plugins   *plugin.Manager
	StaticDir string
	// StreamFPS caps the preview frame rate. Defaults to DefaultStreamFPS.
	StreamFPS int
	Logger    *slog.Logger
}

// Server represents the HTTP server for mudra.
type Server struct {
	config Config
	logger *slog.Logger
	mux    *http.ServeMux
	start  time.Time
	hub    *Hub
}

// New creates a new Server with the given configuration. Routes are
// registered only for the parts that are configured.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.StreamFPS <= 0 {
		config.StreamFPS = DefaultStreamFPS
	}

	s := &Server{
		config: config,
		logger: config.Logger,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		hub:    NewHub(config.Logger, HubConfig{}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.App != nil {
		control := api.NewControlHandler(s.config.App)
		s.mux.HandleFunc("/api/status", control.Status)
		s.mux.HandleFunc("/api/calibration", control.Calibration)
		s.mux.HandleFunc("/api/settings", control.Settings)

		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App, s.config.StreamFPS))
		s.mux.Handle("/api/ws", NewEventsHandler(s.hub, s.config.App, s.logger))
	}

	if s.config.Store != nil {
		actions := api.NewActionHandler(s.config.Store, s.config.Plugins)
		s.mux.Handle("/api/actions", actions)
		s.mux.Handle("/api/actions/", actions)

		events := api.NewEventHandler(s.config.Store)
		s.mux.Handle("/api/events", events)
		s.mux.Handle("/api/events/", events)
	}

	if s.config.Plugins != nil {
		plugins := api.NewPluginHandler(s.config.Plugins)
		s.mux.Handle("/api/plugins", plugins)
		s.mux.Handle("/api/plugins/", plugins)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

// startBackground runs the websocket hub and the gesture broadcaster until
// ctx is canceled.
func (s *Server) startBackground(ctx context.Context) {
	go s.hub.Run(ctx)

	if s.config.App != nil {
		events, cancel := s.config.App.Subscribe()
		go func() {
			defer cancel()
			RunBroadcaster(ctx, s.hub, events, s.logger)
		}()
	}
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled. Request contexts
// derive from ctx, so long-lived responses such as the preview stream end
// when shutdown starts.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return bgCtx },
	}

	s.startBackground(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
