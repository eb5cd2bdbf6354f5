// Package chassis provides the HTTP server that carries the networked MCP
// transport: JSON health endpoints for orchestrators, and the messaging
// endpoints (GET /messages opens the SSE stream, POST /messages submits one
// protocol message) backed by the MCP server's SSE session manager.
//
// TLS is optional. In development mode a self-signed ECDSA P-256 cert is
// generated automatically; in production, supply cert/key files via config.
package chassis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// Authorizer guards the messaging endpoints. Health endpoints are always
// public.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// Config holds configuration for the chassis server.
type Config struct {
	Addr        string            // TCP listen address (e.g. ":8080")
	ServiceName string            // reported by the health endpoints
	MCPServer   *server.MCPServer // required
	Authorizer  Authorizer        // nil = messaging endpoints are public
	TLS         bool              // serve HTTPS
	CertFile    string            // production cert path
	KeyFile     string            // production key path
	Logger      *slog.Logger
}

// Server serves health checks and the MCP SSE transport on one listener.
type Server struct {
	addr    string
	service string
	logger  *slog.Logger
	tlsCfg  *tls.Config
	handler http.Handler
	sse     *server.SSEServer

	mu         sync.Mutex // guards httpServer and stopped
	httpServer *http.Server
	stopped    bool
}

func New(cfg Config) (*Server, error) {
	if cfg.MCPServer == nil {
		return nil, fmt.Errorf("MCPServer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bqgate"
	}

	var tlsCfg *tls.Config
	if cfg.TLS {
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			var err error
			tlsCfg, err = ProductionTLSConfig(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load TLS cert: %w", err)
			}
			cfg.Logger.Info("TLS: production certs loaded")
		} else {
			var err error
			tlsCfg, err = DevelopmentTLSConfig()
			if err != nil {
				return nil, fmt.Errorf("generate dev TLS: %w", err)
			}
			cfg.Logger.Info("TLS: self-signed dev cert generated")
		}
	}

	sse := server.NewSSEServer(cfg.MCPServer,
		server.WithSSEEndpoint("/messages"),
		server.WithMessageEndpoint("/messages"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)

	s := &Server{
		addr:    cfg.Addr,
		service: cfg.ServiceName,
		logger:  cfg.Logger,
		tlsCfg:  tlsCfg,
		sse:     sse,
	}

	streamHandler := http.Handler(sse.SSEHandler())
	messageHandler := http.Handler(sse.MessageHandler())
	if cfg.Authorizer != nil {
		streamHandler = requireAuth(cfg.Authorizer, streamHandler, cfg.Logger)
		messageHandler = requireAuth(cfg.Authorizer, messageHandler, cfg.Logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /messages", streamHandler)
	mux.Handle("POST /messages", messageHandler)
	s.handler = mux

	return s, nil
}

// Start launches the listener and blocks until the server is closed. If
// Stop has already been called the listener never comes up and Start
// returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		TLSConfig:         s.tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("chassis started",
		"addr", s.addr,
		"tls", s.tlsCfg != nil,
	)

	var err error
	if s.tlsCfg != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the SSE sessions and the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true

	s.logger.Info("chassis stopping")

	var firstErr error
	if err := s.sse.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.logger.Info("chassis stopped")
	return firstErr
}

// handleHealth reports liveness. It never touches the warehouse.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": s.service,
	})
}

func requireAuth(authorizer Authorizer, next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := authorizer.Authorize(r); err != nil {
			logger.Warn("rejected messaging request", "remote", r.RemoteAddr, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
