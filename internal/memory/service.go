package memory

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/envelope"
	"github.com/tars-project/tars/internal/metrics"
)

// Publisher is the narrow slice of *mqttclient.Client the memory
// service needs, duck-typed locally to avoid an import cycle (the
// same pattern the llm and wake packages use).
type Publisher interface {
	PublishEvent(topic, eventType string, data any, correlate string, qos byte, retain bool) error
}

// textPayload is the bare shape shared by stt/final and tts/say
// events: {"text": "..."}.
type textPayload struct {
	Text string `json:"text"`
}

// Service wires a Corpus to the MQTT surface: memory/query requests in,
// memory/results answers out; stt/final and tts/say events ingested
// asynchronously.
type Service struct {
	publish Publisher
	corpus  *Corpus
	log     zerolog.Logger
	batch   *BatchIngestor
}

func NewService(publish Publisher, corpus *Corpus, log zerolog.Logger) *Service {
	return &Service{publish: publish, corpus: corpus, log: log}
}

// WithBatching routes future HandleIngest calls through a BatchIngestor
// instead of embedding each document as it arrives, coalescing bursts
// of conversation turns (e.g. a fast back-and-forth) into fewer rounds
// of embedding calls. Call before serving traffic; nil-safe to skip.
func (s *Service) WithBatching(batch *BatchIngestor) *Service {
	s.batch = batch
	return s
}

// HandleQuery answers one memory/query envelope with a memory/results
// envelope correlated on the request's id.
func (s *Service) HandleQuery(payload []byte) {
	env, err := envelope.Decode(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to decode memory/query envelope")
		return
	}

	var q Query
	if err := json.Unmarshal(env.Data, &q); err != nil {
		s.log.Error().Err(err).Msg("failed to decode memory/query data")
		return
	}
	if q.Text == "" {
		s.log.Debug().Msg("dropping memory/query with empty text")
		return
	}

	results := s.corpus.Query(q)
	metrics.MemoryQueriesTotal.Inc()
	if results.Truncated {
		metrics.MemoryQueryTruncatedTotal.Inc()
	}
	if err := s.publish.PublishEvent("memory/results", "memory.results", results, env.ID, 1, false); err != nil {
		s.log.Error().Err(err).Msg("failed to publish memory/results")
	}
}

// HandleIngest embeds and persists one stt/final or tts/say event.
// Called from a spawned goroutine by the caller so a slow embedding
// call never blocks the MQTT dispatch loop (spec.md §5).
func (s *Service) HandleIngest(ctx context.Context, kind string, payload []byte) {
	env, err := envelope.Decode(payload)
	if err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("failed to decode ingest envelope")
		return
	}

	var p textPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("failed to decode ingest payload")
		return
	}
	if p.Text == "" {
		return
	}

	if s.batch != nil {
		s.batch.Add(kind, p.Text)
	} else {
		s.corpus.Ingest(ctx, kind, p.Text)
	}
	metrics.MemoryDocumentsIngestedTotal.WithLabelValues(kind).Inc()
}
