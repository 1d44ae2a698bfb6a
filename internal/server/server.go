// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP proxy that fronts the LLM providers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jeranaias/forgechat/internal/provider"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the proxy server.
	DefaultPort = 8787

	// MaxRequestBodySize caps the request body. Message lists carry inline
	// base64 image parts, so the cap is generous.
	MaxRequestBodySize = 32 * 1024 * 1024

	// Version is the server version.
	Version = "0.1.0"
)

// Required-field messages the proxy returns on precondition failures.
const (
	msgAPIKeyRequired  = "API key is required"
	msgBaseURLRequired = "Base URL is required"
	msgModelRequired   = "Model ID is required"
	msgFileIDRequired  = "File ID is required"
	msgInvalidAction   = "Invalid action"
)

// defaultUpstreamClient is shared by all proxy handlers.
// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// No client timeout: SSE relays are open-ended and bounded by the request
// context instead.
var defaultUpstreamClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP proxy that attaches provider credentials, forwards the
// unified request, and relays JSON or SSE responses back to the client. It
// holds no per-request state and never stores an API key.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	client        *http.Client
	anthropicBase string
	googleBase    string
	cors          *CORSConfig
}

// NewServer creates a new Server with the specified port.
// If port is 0, the default port (8787) is used.
func NewServer(port int) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:          port,
		router:        http.NewServeMux(),
		client:        defaultUpstreamClient,
		anthropicBase: provider.DefaultAnthropicBaseURL,
		googleBase:    provider.DefaultGoogleBaseURL,
		cors:          DefaultCORSConfig(),
	}

	s.setupRoutes()
	return s
}

// WithHTTPClient sets a custom upstream HTTP client.
func (s *Server) WithHTTPClient(client *http.Client) *Server {
	s.client = client
	return s
}

// WithAnthropicBase overrides the Anthropic API origin.
func (s *Server) WithAnthropicBase(base string) *Server {
	s.anthropicBase = base
	return s
}

// WithGoogleBase overrides the Gemini API origin.
func (s *Server) WithGoogleBase(base string) *Server {
	s.googleBase = base
	return s
}

// WithCORS sets the CORS configuration.
func (s *Server) WithCORS(config *CORSConfig) *Server {
	s.cors = config
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the fully wrapped handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		LoggingMiddleware(log.Default()),
	)(s.router)
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Provider proxy endpoints
	s.router.HandleFunc("POST /api/anthropic", s.handleAnthropic)
	s.router.HandleFunc("POST /api/google", s.handleGoogle)
	s.router.HandleFunc("POST /api/local", s.handleLocal)
	s.router.HandleFunc("POST /api/anthropic/files", s.handleFiles)

	// Health endpoint
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server on loopback. The proxy carries API keys, so
// it never binds a routable interface.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// WriteTimeout stays zero: SSE relays are open-ended and end with
		// the upstream stream or the client connection.
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// StartEphemeral binds a kernel-assigned loopback port and serves in the
// background. It returns the proxy origin, e.g. "http://127.0.0.1:49301".
// Chat surfaces call this when no external proxy origin is configured.
func (s *Server) StartEphemeral() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to bind ephemeral port: %w", err)
	}
	s.port = ln.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// WriteTimeout stays zero: SSE relays are open-ended and end with
		// the upstream stream or the client connection.
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("SERVER_ERROR | ephemeral proxy stopped: %v", err)
		}
	}()

	log.Printf("SERVER_START | addr=%s version=%s ephemeral=true", ln.Addr(), Version)
	return fmt.Sprintf("http://127.0.0.1:%d", s.port), nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the flat error body the client contract expects.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
