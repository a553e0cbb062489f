package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/envelope"
)

type recordedPublish struct {
	topic     string
	eventType string
	correlate string
	data      any
}

type fakeServicePublisher struct {
	calls chan recordedPublish
}

func newFakeServicePublisher() *fakeServicePublisher {
	return &fakeServicePublisher{calls: make(chan recordedPublish, 8)}
}

func (f *fakeServicePublisher) PublishEvent(topic, eventType string, data any, correlate string, _ byte, _ bool) error {
	f.calls <- recordedPublish{topic: topic, eventType: eventType, correlate: correlate, data: data}
	return nil
}

func TestServiceHandleQueryPublishesCorrelatedResults(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	corpus := NewCorpus(store, embedder, zerolog.Nop())
	_ = corpus.LoadAndReconcile(context.Background())
	corpus.Ingest(context.Background(), "stt.final", "the kitchen light is off")

	pub := newFakeServicePublisher()
	svc := NewService(pub, corpus, zerolog.Nop())

	env, err := envelope.NewWithID("query-1", "memory.query", "test", Query{Text: "kitchen light", TopK: 1}, "")
	if err != nil {
		t.Fatalf("build query envelope: %v", err)
	}
	payload, err := envelope.Encode(env)
	if err != nil {
		t.Fatalf("encode query envelope: %v", err)
	}

	svc.HandleQuery(payload)

	select {
	case call := <-pub.calls:
		if call.topic != "memory/results" {
			t.Fatalf("published to %q, want memory/results", call.topic)
		}
		if call.correlate != "query-1" {
			t.Fatalf("correlate = %q, want query-1", call.correlate)
		}
		results, ok := call.data.(Results)
		if !ok || len(results.Entries) != 1 {
			t.Fatalf("got %+v, want 1 result entry", call.data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for memory/results publish")
	}
}

func TestServiceHandleIngestAddsDocumentToCorpus(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	corpus := NewCorpus(store, embedder, zerolog.Nop())
	_ = corpus.LoadAndReconcile(context.Background())

	pub := newFakeServicePublisher()
	svc := NewService(pub, corpus, zerolog.Nop())

	env, err := envelope.New("stt.final", "test", textPayload{Text: "turn on the porch light"}, "")
	if err != nil {
		t.Fatalf("build stt.final envelope: %v", err)
	}
	payload, err := envelope.Encode(env)
	if err != nil {
		t.Fatalf("encode stt.final envelope: %v", err)
	}

	svc.HandleIngest(context.Background(), "stt.final", payload)

	docs, _ := corpus.snapshot()
	if len(docs) != 1 || docs[0].Text != "turn on the porch light" {
		t.Fatalf("expected ingested document in corpus, got %+v", docs)
	}
}

func TestServiceHandleQueryEmptyTextDropped(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	corpus := NewCorpus(store, embedder, zerolog.Nop())
	_ = corpus.LoadAndReconcile(context.Background())

	pub := newFakeServicePublisher()
	svc := NewService(pub, corpus, zerolog.Nop())

	env, _ := envelope.New("memory.query", "test", Query{Text: ""}, "")
	payload, _ := envelope.Encode(env)
	svc.HandleQuery(payload)

	select {
	case call := <-pub.calls:
		t.Fatalf("unexpected publish for empty query text: %+v", call)
	case <-time.After(100 * time.Millisecond):
	}
}
