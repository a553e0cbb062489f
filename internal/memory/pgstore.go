package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// pgStore is the Postgres-backed Store, adapted from the teacher's
// pgxpool connection-handling pattern (internal/database/database.go):
// a pool wrapping a logger and a Connect/HealthCheck/Close lifecycle.
// The DSN itself is never logged.
type pgStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPgStore connects a pool and returns it as a Store. Schema
// management is handled separately by RunMigrations.
func NewPgStore(ctx context.Context, databaseURL string, log zerolog.Logger) (*pgStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory: ping: %w", err)
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Msg("memory corpus database connected")

	return &pgStore{pool: pool, log: log}, nil
}

func (s *pgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying connection pool for metrics.NewCollector,
// which reads live pool stats at scrape time.
func (s *pgStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *pgStore) Close() {
	s.log.Info().Msg("closing memory corpus database pool")
	s.pool.Close()
}

func (s *pgStore) LoadAll(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, kind, text, embedding, created_at FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("memory: load documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var raw []byte
		if err := rows.Scan(&d.ID, &d.Kind, &d.Text, &raw, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan document: %w", err)
		}
		d.Embedding = decodeEmbedding(raw)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *pgStore) Insert(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (kind, text, embedding, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		doc.Kind, doc.Text, encodeEmbedding(doc.Embedding), doc.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("memory: insert document: %w", err)
	}
	return id, nil
}

func (s *pgStore) EmbeddingDim(ctx context.Context) (int, bool, error) {
	var dim int
	err := s.pool.QueryRow(ctx, `SELECT embedding_dim FROM corpus_meta WHERE id = 1`).Scan(&dim)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("memory: read embedding dim: %w", err)
	}
	return dim, true, nil
}

func (s *pgStore) SetEmbeddingDim(ctx context.Context, dim int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO corpus_meta (id, embedding_dim) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET embedding_dim = EXCLUDED.embedding_dim`,
		dim,
	)
	if err != nil {
		return fmt.Errorf("memory: set embedding dim: %w", err)
	}
	return nil
}

func (s *pgStore) ReplaceAllEmbeddings(ctx context.Context, docs []Document) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("memory: begin re-embed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range docs {
		if _, err := tx.Exec(ctx, `UPDATE documents SET embedding = $1 WHERE id = $2`, encodeEmbedding(d.Embedding), d.ID); err != nil {
			return fmt.Errorf("memory: update embedding for document %d: %w", d.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(raw []byte) []float32 {
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))
	}
	return vec
}
