package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBatchIngestorSizeThresholdTriggersFlush(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	corpus := NewCorpus(store, embedder, zerolog.Nop())
	if err := corpus.LoadAndReconcile(context.Background()); err != nil {
		t.Fatalf("LoadAndReconcile: %v", err)
	}

	bi := NewBatchIngestor(context.Background(), corpus, 3, time.Hour)
	defer bi.Stop()

	bi.Add("stt", "turn on the porch light")
	bi.Add("stt", "what's the weather")
	bi.Add("stt", "set a timer for five minutes") // triggers flush

	time.Sleep(50 * time.Millisecond)

	docs, _ := corpus.snapshot()
	if len(docs) != 3 {
		t.Fatalf("expected 3 ingested documents, got %d", len(docs))
	}
}

func TestBatchIngestorUnderThresholdWaitsForInterval(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	corpus := NewCorpus(store, embedder, zerolog.Nop())
	if err := corpus.LoadAndReconcile(context.Background()); err != nil {
		t.Fatalf("LoadAndReconcile: %v", err)
	}

	bi := NewBatchIngestor(context.Background(), corpus, 10, time.Hour)
	defer bi.Stop()

	bi.Add("stt", "hello")

	time.Sleep(50 * time.Millisecond)

	docs, _ := corpus.snapshot()
	if len(docs) != 0 {
		t.Fatalf("expected no flush under threshold, got %d documents", len(docs))
	}
}

func TestBatchIngestorStopFlushesRemaining(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	corpus := NewCorpus(store, embedder, zerolog.Nop())
	if err := corpus.LoadAndReconcile(context.Background()); err != nil {
		t.Fatalf("LoadAndReconcile: %v", err)
	}

	bi := NewBatchIngestor(context.Background(), corpus, 100, time.Hour)
	bi.Add("stt", "first")
	bi.Add("tts", "second")
	bi.Stop()

	docs, _ := corpus.snapshot()
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents flushed on stop, got %d", len(docs))
	}
}

func TestBatchIngestorTimeBasedFlush(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	corpus := NewCorpus(store, embedder, zerolog.Nop())
	if err := corpus.LoadAndReconcile(context.Background()); err != nil {
		t.Fatalf("LoadAndReconcile: %v", err)
	}

	bi := NewBatchIngestor(context.Background(), corpus, 100, 50*time.Millisecond)
	defer bi.Stop()

	bi.Add("stt", "hello there")

	time.Sleep(150 * time.Millisecond)

	docs, _ := corpus.snapshot()
	if len(docs) != 1 {
		t.Fatalf("expected 1 document after time-based flush, got %d", len(docs))
	}
}
