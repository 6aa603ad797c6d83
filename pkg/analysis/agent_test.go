package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/orelake/orelake/pkg/sqlgen"
)

type fakeStore struct {
	rows []map[string]any
	err  error

	sql  string
	args []any
}

func (f *fakeStore) ExecuteQuery(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	f.sql = sql
	f.args = args
	return f.rows, f.err
}

func newTestAgent(t *testing.T, store Store) *Agent {
	t.Helper()
	a, err := NewAgent(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
	})
	require.NoError(t, err)
	return a
}

func pointInput(n int) Input {
	data := make([]map[string]any, n)
	for i := range data {
		data[i] = map[string]any{"gid": int64(i + 1)}
	}
	return Input{Data: data, QueryType: sqlgen.GeometryPoint, Tables: []string{"mods"}}
}

func TestRunRejectsUnknownAnalysis(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &fakeStore{})
	_, err := a.Run(context.Background(), "prospectivity", pointInput(5), Params{})
	require.ErrorContains(t, err, "unknown analysis type")
}

func TestRunClusteringGroupsResults(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []map[string]any{
		{"cluster_id": int64(0), "gid": int64(1), "region": "Asir Region", "commodity": "Gold"},
		{"cluster_id": int64(0), "gid": int64(2), "region": "Asir Region", "commodity": "Copper"},
		{"cluster_id": int64(1), "gid": int64(3), "region": "Tabuk Region", "commodity": "Gold"},
		{"cluster_id": nil, "gid": int64(4), "region": "", "commodity": ""},
	}}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "clustering", pointInput(4), Params{DistanceKM: 10})
	require.NoError(t, err)

	require.Equal(t, "clustering", res.Kind)
	require.Equal(t, 10.0, res.Parameters["distance_km"])
	require.Equal(t, 2, res.Stats["cluster_count"])
	require.Equal(t, 3, res.Stats["clustered_points"])
	require.Equal(t, 1, res.Stats["isolated_points"])
	require.Contains(t, res.Summary, "2 clusters")
	require.Contains(t, res.Summary, "1 isolated")

	// Query shape: gid subset, eps in meters, DBSCAN window.
	require.Contains(t, store.sql, "ST_ClusterDBSCAN")
	require.Contains(t, store.sql, "gid = ANY($1)")
	require.Equal(t, []int64{1, 2, 3, 4}, store.args[0])
	require.Equal(t, 10_000.0, store.args[1])
}

func TestRunClusteringFollowsResultTable(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	a := newTestAgent(t, store)

	input := pointInput(5)
	input.Tables = []string{sqlgen.TableBorholes}
	_, err := a.Run(context.Background(), "clustering", input, Params{})
	require.NoError(t, err)
	require.Contains(t, store.sql, "FROM borholes")
	require.Contains(t, store.sql, "COALESCE(borehole_i, '') AS name")
	require.NotContains(t, store.sql, "eng_name")

	input.Tables = []string{sqlgen.TableSamples}
	_, err = a.Run(context.Background(), "clustering", input, Params{})
	require.NoError(t, err)
	require.Contains(t, store.sql, "FROM surface_samples")
	require.Contains(t, store.sql, "COALESCE(sampleid, '') AS name")

	// Unknown tables fall back to the deposits table.
	input.Tables = []string{"elevation_grid"}
	_, err = a.Run(context.Background(), "clustering", input, Params{})
	require.NoError(t, err)
	require.Contains(t, store.sql, "FROM mods")
	require.Contains(t, store.sql, "COALESCE(eng_name, '') AS name")
}

func TestRunClusteringDefaultsParameters(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "clustering", pointInput(3), Params{})
	require.NoError(t, err)
	require.Equal(t, 5.0, res.Parameters["distance_km"])
	require.Equal(t, 2, res.Parameters["min_points"])
	require.Equal(t, 5_000.0, store.args[1])
}

func TestRunRegionalBuildsDistribution(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []map[string]any{
		{"region": "Asir Region", "count": int64(12), "percentage": 60.0},
		{"region": "Tabuk Region", "count": int64(8), "percentage": 40.0},
	}}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "regional", pointInput(20), Params{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Stats["region_count"])
	require.Contains(t, res.Summary, "Asir Region: 12 (60%)")
	require.Contains(t, store.sql, "GROUP BY region")
	require.Contains(t, store.sql, "FROM mods")
}

func TestRunRequiresGIDs(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &fakeStore{})
	for _, key := range []string{"clustering", "regional", "commodity", "geology_correlation", "distance_to_faults"} {
		_, err := a.Run(context.Background(), key, Input{Data: []map[string]any{{"name": "x"}}}, Params{})
		require.ErrorIs(t, err, ErrNoData, "analysis: %s", key)
	}
}

func TestRunBoundingAreaNeedsThreePoints(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &fakeStore{})
	_, err := a.Run(context.Background(), "bounding_area", pointInput(2), Params{})
	require.ErrorContains(t, err, "at least 3 points")
}

func TestRunDistanceToFaultsSummarizes(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []map[string]any{
		{"gid": int64(1), "name": "Mahd adh Dhahab", "distance_to_fault_km": 1.2},
		{"gid": int64(2), "name": "", "distance_to_fault_km": 8.6},
	}}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "distance_to_faults", pointInput(2), Params{})
	require.NoError(t, err)
	require.Equal(t, 1.2, res.Stats["min_distance_km"])
	require.Equal(t, 8.6, res.Stats["max_distance_km"])
	require.Contains(t, res.Summary, "Mahd adh Dhahab: 1.2 km")
	require.Contains(t, res.Summary, "Point 2: 8.6 km")
	require.Contains(t, store.sql, "newtype ILIKE '%fault%'")
}

// numeric builds the value pgx returns for ROUND(...)::numeric columns.
func numeric(digits int64, exp int32) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(digits), Exp: exp, Valid: true}
}

func TestRunDistanceToFaultsNumericDistances(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []map[string]any{
		{"gid": int64(1), "name": "Mahd adh Dhahab", "distance_to_fault_km": numeric(125, -2)},
		{"gid": int64(2), "name": "", "distance_to_fault_km": numeric(875, -2)},
	}}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "distance_to_faults", pointInput(2), Params{})
	require.NoError(t, err)
	require.Equal(t, 1.25, res.Stats["min_distance_km"])
	require.Equal(t, 8.75, res.Stats["max_distance_km"])
	require.Equal(t, 5.0, res.Stats["avg_distance_km"])
	require.Contains(t, res.Summary, "avg 5.0 km")
	require.Contains(t, res.Summary, "Mahd adh Dhahab: 1.25 km")
	require.NotContains(t, res.Summary, "{")
}

func TestRunRegionalNumericPercentages(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []map[string]any{
		{"region": "Asir Region", "count": int64(12), "percentage": numeric(605, -1)},
	}}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "regional", pointInput(20), Params{})
	require.NoError(t, err)
	require.Contains(t, res.Summary, "Asir Region: 12 (60.5%)")
	require.NotContains(t, res.Summary, "{")
}

func TestRunTotalLength(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []map[string]any{
		{"total_length_km": 15234.5, "line_count": int64(820)},
	}}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "total_length", Input{}, Params{})
	require.NoError(t, err)
	require.Contains(t, res.Summary, "820 lines totaling 15234.5 km")
	require.Contains(t, store.sql, "FROM geology_faults_contacts_master")
}

func TestRunBufferZonesUsesMeters(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []map[string]any{
		{"buffer_area_km2": 412.7, "line_count": int64(93)},
	}}
	a := newTestAgent(t, store)

	res, err := a.Run(context.Background(), "buffer_zones", Input{}, Params{BufferKM: 2})
	require.NoError(t, err)
	require.Equal(t, 2_000.0, store.args[0])
	require.Contains(t, res.Summary, "412.7 km2")
}

func TestRunPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &fakeStore{err: errors.New("relation does not exist")})
	_, err := a.Run(context.Background(), "litho_distribution", Input{}, Params{})
	require.ErrorContains(t, err, "lithology distribution failed")
	require.ErrorContains(t, err, "relation does not exist")
}
