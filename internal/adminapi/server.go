// Package adminapi is the operator-facing HTTP surface every TARS
// worker process exposes alongside its MQTT connection: a health
// check, a Prometheus scrape endpoint, and a websocket tap on the
// envelopes the Hub receives from its broker subscriptions, whichever
// worker published them. It never drives worker
// behavior — nothing here is on the wake/LLM/memory request path.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/metrics"
)

// MQTTStatus is the narrow slice of *mqttclient.Client the health
// endpoint needs, duck-typed locally the way wake/llm/memory duck-type
// Publisher to avoid every consumer importing mqttclient just for a
// struct literal in tests.
type MQTTStatus interface {
	IsConnected() bool
	LastHeartbeat() time.Time
}

// DBHealthChecker is the narrow slice of the memory package's Postgres
// store the health endpoint needs. nil on workers that never touch
// Postgres (wake, e-ink, movement).
type DBHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServerOptions configures one admin HTTP server. MQTT, DB, Collector,
// and Hub are all individually optional — a worker only wires what it
// has.
type ServerOptions struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MQTT      MQTTStatus           // nil disables the mqtt health check
	DB        DBHealthChecker      // nil disables the db health check
	Collector prometheus.Collector // nil disables /metrics
	Hub       *Hub                 // nil disables /api/v1/events

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

// Server wraps the chi router and its http.Server lifecycle.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewServer builds the router but does not start listening.
func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	health := &HealthHandler{
		mqtt:      opts.MQTT,
		db:        opts.DB,
		version:   opts.Version,
		startTime: opts.StartTime,
	}
	r.Get("/api/v1/health", health.ServeHTTP)

	if opts.Collector != nil {
		prometheus.MustRegister(opts.Collector)
		r.Group(func(r chi.Router) {
			r.Use(metrics.InstrumentHandler)
			r.Get("/metrics", promhttp.Handler().ServeHTTP)
		})
	}

	if opts.Hub != nil {
		r.Get("/api/v1/events", opts.Hub.ServeWS)
	}

	srv := &http.Server{
		Addr:        opts.Addr,
		Handler:     r,
		ReadTimeout: opts.ReadTimeout,
		// WriteTimeout left at 0: /api/v1/events is a long-lived
		// websocket connection, same reasoning as the teacher's SSE
		// endpoint in internal/api/server.go.
		WriteTimeout: 0,
	}

	return &Server{http: srv, log: opts.Log}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("admin http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("admin http server shutting down")
	return s.http.Shutdown(ctx)
}

// FleetStats adapts a FleetTracker and a Hub into metrics.FleetStats
// for metrics.NewCollector.
type FleetStats struct {
	Tracker *FleetTracker
	Hub     *Hub
}

func (f FleetStats) ConnectedWorkers() int {
	if f.Tracker == nil {
		return 0
	}
	return f.Tracker.ConnectedWorkers()
}

func (f FleetStats) StreamSubscriberCount() int {
	if f.Hub == nil {
		return 0
	}
	return f.Hub.SubscriberCount()
}
