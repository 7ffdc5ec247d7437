// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package server exposes the flash orchestrator to the operator's browser.
package server

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Thermoquad/provisioner/pkg/flasher"
	"github.com/Thermoquad/provisioner/pkg/identity"
	"github.com/Thermoquad/provisioner/pkg/ports"
)

//go:embed index.html
var assets embed.FS

// Config wires the server to its collaborators.
type Config struct {
	Orchestrator *flasher.Orchestrator
	Resolver     flasher.Resolver
	Formatter    *identity.Formatter
	Ports        ports.Provider
	Logger       *zap.Logger

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// ShutdownTimeout bounds the wait for a running flash after the
	// listener closes. Zero waits 10 minutes.
	ShutdownTimeout time.Duration
}

// Server is the HTTP surface.
type Server struct {
	orch      *flasher.Orchestrator
	resolver  flasher.Resolver
	formatter *identity.Formatter
	ports     ports.Provider
	logger    *zap.Logger
	metrics   http.Handler
	timeout   time.Duration

	upgrader websocket.Upgrader
	closing  chan struct{}
	handler  http.Handler
}

// New creates a server. Orchestrator, Resolver and Formatter are required.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := cfg.Ports
	if provider == nil {
		provider = ports.Static(nil)
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	s := &Server{
		orch:      cfg.Orchestrator,
		resolver:  cfg.Resolver,
		formatter: cfg.Formatter,
		ports:     provider,
		logger:    logger,
		metrics:   cfg.Metrics,
		timeout:   timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		closing: make(chan struct{}),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.logRequests(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /lookup", s.handleLookup)
	mux.HandleFunc("GET /ports", s.handlePorts)
	mux.HandleFunc("POST /flash", s.handleFlash)
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
}

// Serve accepts connections on ln until ctx is cancelled, then stops
// accepting requests and waits for a running flash to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	s.logger.Info("shutting down server")
	close(s.closing)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if st := s.orch.State(); st.Busy {
		s.logger.Warn("waiting for running flash to finish",
			zap.String("serial", st.Serial),
			zap.Duration("timeout", s.timeout))
	}
	done := make(chan struct{})
	go func() {
		s.orch.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("server shut down gracefully")
		return nil
	case <-time.After(s.timeout):
		s.logger.Error("flash still running at shutdown timeout", zap.Duration("timeout", s.timeout))
		return fmt.Errorf("flash still running after %s", s.timeout)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
