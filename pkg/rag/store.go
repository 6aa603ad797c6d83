// Package rag retrieves indexed knowledge (schema docs, query patterns, data
// samples) by embedding similarity and feeds it into prompt augmentation.
// Documents and their vectors live in a Postgres table alongside the spatial
// data; ranking happens in process since the corpus is small.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// Collection names partition the document table by purpose.
const (
	CollectionSchema   = "database_schema"
	CollectionPatterns = "query_patterns"
	CollectionSamples  = "data_samples"
)

// Collections lists all known collections in retrieval order.
var Collections = []string{CollectionSchema, CollectionPatterns, CollectionSamples}

// Document is one indexed knowledge chunk.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"-"`
}

// Match is a retrieved document with its cosine similarity to the query.
type Match struct {
	Document
	Score float64 `json:"relevance_score"`
}

// DB is the slice of the database client the store needs.
type DB interface {
	ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, sql string, args ...any) error
}

type StoreConfig struct {
	Logger *slog.Logger
	DB     DB
}

// Store persists documents and serves similarity lookups.
type Store struct {
	log *slog.Logger
	db  DB
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("db is required")
	}
	return &Store{log: cfg.Logger, db: cfg.DB}, nil
}

// EnsureSchema creates the document table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS rag_documents (
			id         TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  DOUBLE PRECISION[] NOT NULL
		)`
	if err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create rag_documents: %w", err)
	}
	const idx = `CREATE INDEX IF NOT EXISTS rag_documents_collection_idx ON rag_documents (collection)`
	if err := s.db.Exec(ctx, idx); err != nil {
		return fmt.Errorf("failed to index rag_documents: %w", err)
	}
	return nil
}

// Add upserts documents into a collection.
func (s *Store) Add(ctx context.Context, collection string, docs []Document) error {
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document in %s has no id", collection)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
		}
		err = s.db.Exec(ctx, `
			INSERT INTO rag_documents (id, collection, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET collection = EXCLUDED.collection,
			    content = EXCLUDED.content,
			    metadata = EXCLUDED.metadata,
			    embedding = EXCLUDED.embedding`,
			doc.ID, collection, doc.Content, meta, doc.Embedding)
		if err != nil {
			return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
	}
	s.log.Info("indexed documents", "collection", collection, "count", len(docs))
	return nil
}

// Search returns the topK documents of a collection ranked by cosine
// similarity to the query embedding.
func (s *Store) Search(ctx context.Context, collection string, embedding []float64, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.ExecuteQuery(ctx, `
		SELECT id, content, metadata, embedding
		FROM rag_documents
		WHERE collection = $1`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collection, err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		doc := Document{}
		doc.ID, _ = row["id"].(string)
		doc.Content, _ = row["content"].(string)
		doc.Metadata = decodeMetadata(row["metadata"])
		doc.Embedding = decodeVector(row["embedding"])
		matches = append(matches, Match{
			Document: doc,
			Score:    cosineSimilarity(embedding, doc.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Stats reports the document count per collection.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.ExecuteQuery(ctx,
		`SELECT collection, COUNT(*) AS count FROM rag_documents GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	stats := make(map[string]int, len(Collections))
	for _, name := range Collections {
		stats[name] = 0
	}
	for _, row := range rows {
		name, _ := row["collection"].(string)
		switch n := row["count"].(type) {
		case int64:
			stats[name] = int(n)
		case int:
			stats[name] = n
		}
	}
	return stats, nil
}

// Reset drops all indexed documents.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.db.Exec(ctx, `DELETE FROM rag_documents`); err != nil {
		return fmt.Errorf("failed to reset document store: %w", err)
	}
	s.log.Info("document store reset")
	return nil
}

func decodeMetadata(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(m, &out); err == nil {
			return out
		}
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out
		}
	}
	return nil
}

func decodeVector(v any) []float64 {
	switch vec := v.(type) {
	case []float64:
		return vec
	case []any:
		out := make([]float64, 0, len(vec))
		for _, x := range vec {
			if f, ok := x.(float64); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// cosineSimilarity returns 0 for mismatched or zero vectors, which ranks
// unusable documents last without failing the search.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
