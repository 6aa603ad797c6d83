package rag

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	rows    []map[string]any
	rowsErr error
	execErr error

	queries []string
	execs   []string
	args    [][]any
}

func (f *fakeDB) ExecuteQuery(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	return f.rows, nil
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) error {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return f.execErr
}

func TestNewStoreValidatesConfig(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewStore(StoreConfig{DB: &fakeDB{}})
	require.ErrorContains(t, err, "logger is required")

	_, err = NewStore(StoreConfig{Logger: log})
	require.ErrorContains(t, err, "db is required")

	store, err := NewStore(StoreConfig{Logger: log, DB: &fakeDB{}})
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestStoreSearchRanksByCosineSimilarity(t *testing.T) {
	t.Parallel()

	db := &fakeDB{rows: []map[string]any{
		{"id": "orthogonal", "content": "unrelated", "embedding": []float64{0, 1, 0}},
		{"id": "aligned", "content": "best match", "embedding": []float64{1, 0, 0}},
		{"id": "diagonal", "content": "partial match", "embedding": []float64{1, 1, 0}},
	}}
	store, err := NewStore(StoreConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), DB: db})
	require.NoError(t, err)

	matches, err := store.Search(context.Background(), CollectionSchema, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "aligned", matches[0].ID)
	require.InDelta(t, 1.0, matches[0].Score, 1e-9)
	require.Equal(t, "diagonal", matches[1].ID)
	require.Contains(t, db.queries[0], "WHERE collection = $1")
	require.Equal(t, []any{CollectionSchema}, db.args[0])
}

func TestStoreSearchHandlesUndecodableVectors(t *testing.T) {
	t.Parallel()

	db := &fakeDB{rows: []map[string]any{
		{"id": "broken", "content": "bad vector", "embedding": "nonsense"},
		{"id": "good", "content": "fine", "embedding": []any{1.0, 0.0}},
	}}
	store, err := NewStore(StoreConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), DB: db})
	require.NoError(t, err)

	matches, err := store.Search(context.Background(), CollectionSamples, []float64{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "good", matches[0].ID)
	require.Zero(t, matches[1].Score)
}

func TestStoreAddRejectsIncompleteDocuments(t *testing.T) {
	t.Parallel()

	store, err := NewStore(StoreConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), DB: &fakeDB{}})
	require.NoError(t, err)

	err = store.Add(context.Background(), CollectionSchema, []Document{{Content: "no id", Embedding: []float64{1}}})
	require.ErrorContains(t, err, "has no id")

	err = store.Add(context.Background(), CollectionSchema, []Document{{ID: "d1", Content: "no vector"}})
	require.ErrorContains(t, err, "has no embedding")
}

func TestStoreAddUpserts(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	store, err := NewStore(StoreConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), DB: db})
	require.NoError(t, err)

	err = store.Add(context.Background(), CollectionPatterns, []Document{
		{ID: "p1", Content: "pattern one", Metadata: map[string]any{"intent": "x"}, Embedding: []float64{0.5}},
	})
	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	require.Contains(t, db.execs[0], "ON CONFLICT (id) DO UPDATE")
}

func TestStoreStats(t *testing.T) {
	t.Parallel()

	db := &fakeDB{rows: []map[string]any{
		{"collection": CollectionSchema, "count": int64(7)},
		{"collection": CollectionSamples, "count": int64(3)},
	}}
	store, err := NewStore(StoreConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), DB: db})
	require.NoError(t, err)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]int{
		CollectionSchema:   7,
		CollectionPatterns: 0,
		CollectionSamples:  3,
	}, stats)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, cosineSimilarity([]float64{2, 0}, []float64{4, 0}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	require.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	require.Zero(t, cosineSimilarity([]float64{1, 0}, []float64{1}))
	require.Zero(t, cosineSimilarity(nil, nil))
	require.Zero(t, cosineSimilarity([]float64{0, 0}, []float64{0, 0}))
}
