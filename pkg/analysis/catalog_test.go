package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orelake/orelake/pkg/sqlgen"
)

func TestDetectDataType(t *testing.T) {
	t.Parallel()

	// Explicit kind wins.
	require.Equal(t, sqlgen.GeometryLine,
		DetectDataType([]map[string]any{{"latitude": 24.7}}, sqlgen.GeometryLine))

	// Coordinate columns mean points.
	require.Equal(t, sqlgen.GeometryPoint,
		DetectDataType([]map[string]any{{"latitude": 24.7, "longitude": 46.7}}, ""))

	// GeoJSON column is parsed for its type.
	require.Equal(t, sqlgen.GeometryPolygon,
		DetectDataType([]map[string]any{{"geojson_geom": `{"type":"MultiPolygon","coordinates":[]}`}}, ""))
	require.Equal(t, sqlgen.GeometryLine,
		DetectDataType([]map[string]any{{"geojson_geom": `{"type":"LineString","coordinates":[]}`}}, ""))
	require.Equal(t, sqlgen.GeometryLine,
		DetectDataType([]map[string]any{{"geojson_geom": map[string]any{"type": "MultiLineString"}}}, ""))

	// Unparsable geometry and empty data fall back to point.
	require.Equal(t, sqlgen.GeometryPoint,
		DetectDataType([]map[string]any{{"geojson_geom": "not json"}}, ""))
	require.Equal(t, sqlgen.GeometryPoint, DetectDataType(nil, ""))
}

func TestSuggestOnlyOffersForPoints(t *testing.T) {
	t.Parallel()

	polyRows := []map[string]any{
		{"geojson_geom": `{"type":"Polygon"}`},
		{"geojson_geom": `{"type":"Polygon"}`},
		{"geojson_geom": `{"type":"Polygon"}`},
	}
	s := Suggest(polyRows, sqlgen.GeometryPolygon, []string{"geology_master"})
	require.False(t, s.CanAnalyze)
	require.Empty(t, s.Analyses)
	require.Empty(t, s.Text)
	require.Equal(t, sqlgen.GeometryPolygon, s.DataType)
}

func TestSuggestRequiresEnoughRows(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"gid": 1, "latitude": 1.0},
		{"gid": 2, "latitude": 2.0},
	}
	s := Suggest(rows, sqlgen.GeometryPoint, []string{"mods"})
	require.False(t, s.CanAnalyze)
	require.Equal(t, 2, s.RowCount)
}

func TestSuggestFiltersByContext(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"gid": 1, "latitude": 1.0, "region": "Riyadh Region", "major_comm": "Gold"},
		{"gid": 2, "latitude": 2.0, "region": "Asir Region", "major_comm": "Copper"},
		{"gid": 3, "latitude": 3.0, "region": "Asir Region", "major_comm": "Gold"},
	}
	s := Suggest(rows, sqlgen.GeometryPoint, []string{"mods"})
	require.True(t, s.CanAnalyze)

	keys := make([]string, 0, len(s.Analyses))
	for _, a := range s.Analyses {
		keys = append(keys, a.Key)
	}
	// Three rows: no clustering yet, but regional, commodity and geology
	// correlation all apply.
	require.Equal(t, []string{"regional", "commodity", "geology_correlation"}, keys)
	require.Contains(t, s.Text, "1. Regional Distribution")
	require.Contains(t, s.Text, "Type a number (1-3)")
}

func TestSuggestAddsClusteringAtFiveRows(t *testing.T) {
	t.Parallel()

	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"gid": i + 1, "latitude": float64(i)}
	}
	s := Suggest(rows, sqlgen.GeometryPoint, nil)
	require.True(t, s.CanAnalyze)
	require.Equal(t, "clustering", s.Analyses[0].Key)
	// No region or commodity columns and no deposits table: only clustering
	// and the always-on geology correlation.
	require.Len(t, s.Analyses, 2)
	require.Equal(t, "geology_correlation", s.Analyses[1].Key)
}

func TestCatalogAndLookup(t *testing.T) {
	t.Parallel()

	require.Len(t, Catalog(sqlgen.GeometryPoint), 6)
	require.Len(t, Catalog(sqlgen.GeometryLine), 4)
	require.Len(t, Catalog(sqlgen.GeometryPolygon), 3)
	require.Nil(t, Catalog(sqlgen.GeometryKind("unknown")))

	d, ok := Lookup("total_length")
	require.True(t, ok)
	require.Equal(t, "Total Length", d.Name)

	_, ok = Lookup("nope")
	require.False(t, ok)
}
