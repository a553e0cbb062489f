package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store persists the corpus and its embedding-dimension marker.
// Implemented by pgStore (Postgres via pgx/v5) in production and by a
// fake in tests.
type Store interface {
	LoadAll(ctx context.Context) ([]Document, error)
	Insert(ctx context.Context, doc Document) (int64, error)
	EmbeddingDim(ctx context.Context) (dim int, ok bool, err error)
	SetEmbeddingDim(ctx context.Context, dim int) error
	ReplaceAllEmbeddings(ctx context.Context, docs []Document) error
}

// Corpus holds the in-memory view of every ingested document: the
// ordered document list (for recency and context-expansion adjacency),
// the BM25 lexical index, and the persisted embeddings used for
// vector similarity.
type Corpus struct {
	mu       sync.RWMutex
	docs     []Document
	byID     map[int64]int
	lex      *lexicalIndex
	embedder Embedder
	store    Store
	log      zerolog.Logger
}

// NewCorpus builds an empty Corpus. Call LoadAndReconcile before
// serving queries.
func NewCorpus(store Store, embedder Embedder, log zerolog.Logger) *Corpus {
	return &Corpus{
		byID:     make(map[int64]int),
		lex:      newLexicalIndex(),
		embedder: embedder,
		store:    store,
		log:      log,
	}
}

// LoadAndReconcile loads the persisted corpus and compares the
// embedder's current dimension against the persisted marker. A
// mismatch re-embeds and re-persists every document (spec §4.4
// failure semantics: embedder dimension drift).
func (c *Corpus) LoadAndReconcile(ctx context.Context) error {
	docs, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	dim := c.embedder.Dimension()
	persistedDim, ok, err := c.store.EmbeddingDim(ctx)
	if err != nil {
		return err
	}

	if !ok || persistedDim != dim {
		c.log.Warn().
			Int("persisted_dim", persistedDim).
			Int("embedder_dim", dim).
			Msg("embedder dimension drift detected, re-embedding corpus")

		for i := range docs {
			emb, err := c.embedder.Embed(docs[i].Text)
			if err != nil {
				return err
			}
			docs[i].Embedding = emb
		}
		if err := c.store.ReplaceAllEmbeddings(ctx, docs); err != nil {
			return err
		}
		if err := c.store.SetEmbeddingDim(ctx, dim); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = docs
	c.byID = make(map[int64]int, len(docs))
	c.lex = newLexicalIndex()
	for i, d := range docs {
		c.byID[d.ID] = i
		c.lex.add(d.ID, d.Text)
	}
	return nil
}

// Ingest embeds and persists one document, then updates the in-memory
// index. Callers run this off the MQTT dispatch loop (spec §5's
// run-in-thread primitive): ingests never block queries.
func (c *Corpus) Ingest(ctx context.Context, kind, text string) {
	emb, err := c.embedder.Embed(text)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to embed document, dropping ingest")
		return
	}

	doc := Document{Kind: kind, Text: text, Embedding: emb, CreatedAt: time.Now().UTC()}
	id, err := c.store.Insert(ctx, doc)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to persist ingested document")
		return
	}
	doc.ID = id

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
	c.byID[id] = len(c.docs) - 1
	c.lex.add(id, text)
}

// snapshot returns a defensive copy of the current document list and
// the shared lexical index pointer. The index is not copied: Ingest
// keeps adding to it, and lexicalIndex guards itself with its own
// RWMutex.
func (c *Corpus) snapshot() ([]Document, *lexicalIndex) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]Document, len(c.docs))
	copy(docs, c.docs)
	return docs, c.lex
}
