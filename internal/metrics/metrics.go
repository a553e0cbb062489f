// Package metrics exposes Prometheus collectors for the MQTT core
// client, the wake arbitration state machine, the LLM pipeline, and
// the memory corpus, plus the admin HTTP surface's request
// instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tars"

// HTTP metrics for the admin API (counter/histogram — incremented by
// InstrumentHandler).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total admin HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Admin HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// MQTT core client counters (C2).
var (
	MQTTMessagesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_messages_received_total",
		Help:      "Total MQTT messages received across all subscriptions.",
	})

	MQTTMessagesDedupedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_messages_deduped_total",
		Help:      "Total MQTT messages dropped as duplicates.",
	})

	MQTTReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_reconnects_total",
		Help:      "Total broker reconnections, forced or automatic.",
	})

	MQTTHeartbeatFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_heartbeat_failures_total",
		Help:      "Total heartbeat publishes that timed out and triggered a reconnect.",
	})
)

// Wake arbitration counters (C4).
var (
	WakeTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wake_transitions_total",
		Help:      "Total wake state machine transitions by cause.",
	}, []string{"cause"})

	WakeInterruptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wake_interrupts_total",
		Help:      "Total times wake word detection interrupted active TTS playback.",
	})
)

// LLM pipeline counters (C5).
var (
	LLMRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Total llm/request envelopes handled, by outcome.",
	}, []string{"outcome"})

	LLMStreamDeltasTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_stream_deltas_total",
		Help:      "Total llm/stream delta envelopes published.",
	})

	LLMToolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tool_calls_total",
		Help:      "Total tool calls dispatched, by outcome.",
	}, []string{"outcome"})

	LLMRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "End-to-end llm/request handling duration.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Memory corpus counters (C6).
var (
	MemoryQueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_queries_total",
		Help:      "Total memory/query envelopes answered.",
	})

	MemoryQueryTruncatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_query_truncated_total",
		Help:      "Total memory/query responses truncated by max_tokens.",
	})

	MemoryDocumentsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_documents_ingested_total",
		Help:      "Total documents ingested into the corpus, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MQTTMessagesReceivedTotal,
		MQTTMessagesDedupedTotal,
		MQTTReconnectsTotal,
		MQTTHeartbeatFailuresTotal,
		WakeTransitionsTotal,
		WakeInterruptsTotal,
		LLMRequestsTotal,
		LLMStreamDeltasTotal,
		LLMToolCallsTotal,
		LLMRequestDuration,
		MemoryQueriesTotal,
		MemoryQueryTruncatedTotal,
		MemoryDocumentsIngestedTotal,
	)
}

// InstrumentHandler returns middleware that records admin HTTP
// request metrics, using chi's route pattern as the path label to
// avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		method := r.Method
		status := strconv.Itoa(sw.status)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap supports http.ResponseController and middleware that check
// for wrapped writers.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
