package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orelake/orelake/pkg/postgis"
)

type fakeStore struct {
	tables    []string
	columns   map[string][]postgis.ColumnInfo
	counts    map[string]int64
	geoms     map[string]*postgis.GeometryInfo
	listErr   error
	countErr  error
	listCalls int
}

func (f *fakeStore) ListTables(context.Context) ([]string, error) {
	f.listCalls++
	return f.tables, f.listErr
}

func (f *fakeStore) TableColumns(_ context.Context, table string) ([]postgis.ColumnInfo, error) {
	cols, ok := f.columns[table]
	if !ok {
		return nil, errors.New("no such table")
	}
	return cols, nil
}

func (f *fakeStore) TableRowCount(_ context.Context, table string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[table], nil
}

func (f *fakeStore) GeometryColumn(_ context.Context, table string) (*postgis.GeometryInfo, error) {
	return f.geoms[table], nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables: []string{"geology_master", "mods"},
		columns: map[string][]postgis.ColumnInfo{
			"mods": {
				{Name: "gid", DataType: "integer"},
				{Name: "eng_name", DataType: "character varying", Nullable: true},
				{Name: "major_comm", DataType: "character varying", Nullable: true},
				{Name: "geom", DataType: "USER-DEFINED", Nullable: true},
			},
			"geology_master": {
				{Name: "gid", DataType: "integer"},
				{Name: "unit_name", DataType: "character varying", Nullable: true},
				{Name: "litho_fmly", DataType: "character varying", Nullable: true},
				{Name: "geom", DataType: "USER-DEFINED", Nullable: true},
			},
		},
		counts: map[string]int64{"mods": 5372, "geology_master": 1204},
		geoms: map[string]*postgis.GeometryInfo{
			"mods":           {Column: "geom", Type: "POINT", SRID: 3857},
			"geology_master": {Column: "geom", Type: "MULTIPOLYGON", SRID: 3857},
		},
	}
}

func newTestLearner(t *testing.T, store Store, ttl time.Duration) *Learner {
	t.Helper()
	l, err := New(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		TTL:    ttl,
	})
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestSnapshotLearnsTables(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	l := newTestLearner(t, store, time.Minute)

	snap, err := l.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tables, 2)

	mods := snap.Tables["mods"]
	require.True(t, mods.Spatial())
	require.Equal(t, "geom", mods.GeometryColumn)
	require.Equal(t, "POINT", mods.GeometryType)
	require.Equal(t, 3857, mods.SRID)
	require.Equal(t, int64(5372), mods.RowCount)
	require.Len(t, mods.Columns, 4)
}

func TestSnapshotIsCached(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	l := newTestLearner(t, store, time.Minute)

	_, err := l.Snapshot(context.Background())
	require.NoError(t, err)
	_, err = l.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	l.Invalidate()
	_, err = l.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, store.listCalls)
}

func TestSnapshotToleratesCountFailures(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.countErr = errors.New("permission denied")
	l := newTestLearner(t, store, time.Minute)

	snap, err := l.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), snap.Tables["mods"].RowCount)
}

func TestSnapshotPropagatesListFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.listErr = errors.New("connection refused")
	l := newTestLearner(t, store, time.Minute)

	_, err := l.Snapshot(context.Background())
	require.ErrorContains(t, err, "failed to list tables")
}

func TestColumnForTerm(t *testing.T) {
	t.Parallel()

	l := newTestLearner(t, newFakeStore(), time.Minute)
	snap, err := l.Snapshot(context.Background())
	require.NoError(t, err)

	tests := []struct {
		term  string
		table string
		want  string
	}{
		{"major_comm", "", "major_comm"},
		{"commodity", "", "major_comm"},
		{"ore", "", "major_comm"},
		{"volcanic", "", "litho_fmly"},
		{"terrain", "", "terrane"},
		{"formation", "", "unit_name"},
		{"unit name", "", "unit_name"},
		{"ENG_NAME", "", "eng_name"},
		{"litho", "geology_master", "litho_fmly"},
		{"nonsense term xyz", "", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, snap.ColumnForTerm(tt.term, tt.table), "term: %s", tt.term)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	l := newTestLearner(t, newFakeStore(), time.Minute)
	snap, err := l.Snapshot(context.Background())
	require.NoError(t, err)

	desc := snap.Describe()
	require.Contains(t, desc, "TABLE: mods")
	require.Contains(t, desc, "Geometry: geom (POINT, SRID 3857)")
	require.Contains(t, desc, "Rows: 5372")
	require.Contains(t, desc, "unit_name: character varying")
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Store: newFakeStore()})
	require.ErrorContains(t, err, "logger is required")

	_, err = New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.ErrorContains(t, err, "store is required")
}
