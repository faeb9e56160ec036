// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package observability serves the metrics and health probe endpoints.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// readHeaderTimeout bounds how long a probe client may dawdle over its
// request headers.
const readHeaderTimeout = 10 * time.Second

// ReadinessChecker reports whether the service is ready to do work. A
// nil checker counts as always ready.
type ReadinessChecker func() bool

// Server serves Prometheus metrics and Kubernetes-style health probes
// on a dedicated listener.
type Server struct {
	addr     string
	registry *prometheus.Registry
	ready    ReadinessChecker

	started  atomic.Bool
	listener net.Listener
	srv      *http.Server
}

// NewServer creates an observability server that will listen on addr
// ("host:port"; ":9100" binds all interfaces). The server owns a private
// metrics registry pre-loaded with the standard Go and process
// collectors.
func NewServer(addr string, ready ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		addr:     addr,
		registry: registry,
		ready:    ready,
	}
}

// Registry returns the server's metrics registry. Application packages
// register their collectors here before Start.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start opens the listener and begins serving. The returned channel
// reports errors from the HTTP server after startup and closes on
// graceful shutdown; callers watch it to notice a dying server.
func (s *Server) Start() (<-chan error, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.started.Store(false)
		return nil, oops.With("operation", "bind observability listener").
			With("addr", s.addr).
			Wrap(err)
	}
	s.listener = ln

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.srv = srv

	errCh := make(chan error, 1)
	go serve(srv, ln, errCh)

	slog.Info("observability server started", "addr", ln.Addr().String())
	return errCh, nil
}

// serve runs the HTTP server until shutdown, forwarding any abnormal
// exit to errCh. It takes the server and listener as arguments rather
// than reading struct fields so a later Start cannot race it.
func serve(srv *http.Server, ln net.Listener, errCh chan<- error) {
	defer close(errCh)
	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("observability server error", "error", err)
		errCh <- err
	}
}

// routes builds the handler mux: Prometheus metrics plus liveness and
// readiness probes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, "ok\n")
	})
	mux.HandleFunc("/healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready == nil || s.ready() {
			writeProbe(w, http.StatusOK, "ok\n")
			return
		}
		writeProbe(w, http.StatusServiceUnavailable, "not ready\n")
	})
	return mux
}

// writeProbe answers a health probe in plain text.
func writeProbe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // probe clients may disconnect mid-write
	w.Write([]byte(body))
}

// Stop shuts the server down gracefully. Stopping a server that is not
// running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}

	if s.srv != nil {
		if err := s.srv.Shutdown(ctx); err != nil {
			// Shutdown failed, so the server is still serving; leave it
			// stoppable.
			s.started.Store(true)
			return oops.With("operation", "stop observability server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
