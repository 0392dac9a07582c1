// Package server serves the interactive viewer: a websocket endpoint that
// mounts one render session per connection, plus scene, schema, inspection
// and metrics endpoints.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/df07/go-progressive-bridge/internal/metrics"
	"github.com/df07/go-progressive-bridge/pkg/scene"
	"github.com/df07/go-progressive-bridge/pkg/session"
)

const (
	defaultScene = "default"
	maxViewport  = 4096
)

// Config holds server configuration
type Config struct {
	Addr        string
	FPS         int
	Width       int // Initial viewport width when the client sends none
	Height      int
	MaxSessions int              // 0 means unlimited
	Metrics     *metrics.Metrics // Optional; nil disables /metrics and session observation
	Options     session.Options  // Base options for every new session
	Logger      zerolog.Logger
	LogOutput   io.Writer // Sink for per-connection session logs besides the viewer console
}

// Server handles web requests for the bridge
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu          sync.RWMutex
	conns       map[string]*connection
	baseOptions session.Options

	server *http.Server
}

// NewServer creates a new web server
func NewServer(cfg Config) (*Server, error) {
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps: %d", cfg.FPS)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport: %dx%d", cfg.Width, cfg.Height)
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogOutput == nil {
		cfg.LogOutput = io.Discard
	}

	return &Server{
		cfg:         cfg,
		logger:      cfg.Logger.With().Str("component", "server").Logger(),
		conns:       make(map[string]*connection),
		baseOptions: cfg.Options,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/scenes", s.handleScenes)
	mux.HandleFunc("/api/options/schema", s.handleOptionsSchema)
	mux.HandleFunc("/api/inspect", s.handleInspect)
	mux.HandleFunc("/api/session", s.handleSession)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics.Handler())
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then closes every connection
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Starting web server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down web server")
	s.closeConnections()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// SetBaseOptions replaces the options new sessions start from and applies
// them to every live session
func (s *Server) SetBaseOptions(opts session.Options) {
	s.mu.Lock()
	s.baseOptions = opts
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.applyOptions(opts)
	}
	s.logger.Info().Int("sessions", len(conns)).Msg("Base options updated")
}

// Connections returns the number of open viewer connections
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) register(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxSessions > 0 && len(s.conns) >= s.cfg.MaxSessions {
		return false
	}
	s.conns[c.id] = c
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) closeConnections() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns {
		c.close()
	}
}

func (s *Server) base() session.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseOptions
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.Connections(),
	})
}

// handleScenes lists the built-in scenes
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scene.ListScenes())
}

// handleOptionsSchema returns the JSON Schema option patches are checked against
func (s *Server) handleOptionsSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, OptionsSchema)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseIntParam parses an optional integer parameter with bounds
func parseIntParam(value, key string, defaultValue, min, max int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, value)
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
	}
	return parsed, nil
}

// imageToBase64PNG converts an image to base64-encoded PNG
func imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
