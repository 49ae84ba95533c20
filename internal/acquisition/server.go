package acquisition

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zombor/barcode-scanner/internal/capture"
)

// FrameSource provides the latest camera frame for previews
type FrameSource interface {
	LatestFrame() capture.FrameSnapshot
}

// Server exposes the controller over HTTP for presentation clients
type Server struct {
	controller *Controller
	preview    FrameSource
	basicAuth  BasicAuth
	mux        *http.ServeMux
	httpServer *http.Server

	// closed on Shutdown so long-lived streams let go of their connections
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux. preview may be nil.
func NewServer(controller *Controller, preview FrameSource, basicAuth BasicAuth) *Server {
	return NewServerWithMux(controller, preview, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(controller *Controller, preview FrameSource, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		controller: controller,
		preview:    preview,
		basicAuth:  basicAuth,
		mux:        mux,
		shutdown:   make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.endStreams)
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Barcode Scanner"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/state/events", s.requireAuth(s.handleStateEvents))
	s.mux.HandleFunc("GET /api/state", s.requireAuth(s.handleGetState))

	s.mux.HandleFunc("POST /api/scan/live", s.requireAuth(s.handleBeginLiveScan))
	s.mux.HandleFunc("DELETE /api/scan/live", s.requireAuth(s.handleEndLiveScan))
	s.mux.HandleFunc("POST /api/scan/image", s.requireAuth(s.handleSubmitImage))
	s.mux.HandleFunc("POST /api/scan/retry", s.requireAuth(s.handleRetryLookup))
	s.mux.HandleFunc("POST /api/scan/reset", s.requireAuth(s.handleReset))

	s.mux.HandleFunc("GET /api/preview.jpg", s.requireAuth(s.handlePreview))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	s.httpServer.Addr = addr
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) endStreams() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
