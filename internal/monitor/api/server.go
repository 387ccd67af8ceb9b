/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package api serves the monitor's ingest and query endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/chiefworks/chief/internal/monitor/engine"
	"github.com/chiefworks/chief/internal/monitor/store"
)

// Version is the monitor version (set at build time)
var Version = "dev"

// Server is the monitor HTTP server
type Server struct {
	store     store.Store
	engine    *engine.Engine
	log       logr.Logger
	apiKey    string
	host      string
	port      int
	limiter   *rate.Limiter
	startTime time.Time
	server    *http.Server
}

// ServerOptions contains options for creating the server
type ServerOptions struct {
	Store  store.Store
	Engine *engine.Engine
	Log    logr.Logger
	APIKey string
	Host   string
	Port   int
	// IngestRatePerSecond caps accepted ingest requests; 0 disables limiting
	IngestRatePerSecond float64
	IngestBurst         int
}

// NewServer creates a new monitor API server
func NewServer(opts ServerOptions) *Server {
	if opts.Port == 0 {
		opts.Port = 7410
	}
	var limiter *rate.Limiter
	if opts.IngestRatePerSecond > 0 {
		burst := opts.IngestBurst
		if burst <= 0 {
			burst = int(opts.IngestRatePerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(opts.IngestRatePerSecond), burst)
	}
	return &Server{
		store:     opts.Store,
		engine:    opts.Engine,
		log:       opts.Log,
		apiKey:    opts.APIKey,
		host:      opts.Host,
		port:      opts.Port,
		limiter:   limiter,
		startTime: time.Now(),
	}
}

// Start starts the server and blocks until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting monitor API server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down monitor API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Handler returns the configured router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	handlers := NewHandlers(s.store, s.engine, s.log, s.startTime)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Use(s.rateLimit)
			r.Post("/events", handlers.PostEvent)
			r.Post("/events/batch", handlers.PostEventBatch)
		})
		r.Get("/checks", handlers.GetChecks)
		r.Get("/alerts", handlers.GetAlerts)
		r.Get("/events", handlers.GetEvents)
		r.Get("/health", handlers.GetHealth)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requireAPIKey rejects ingest requests without the configured key.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit sheds ingest load beyond the configured rate.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "ingest rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
