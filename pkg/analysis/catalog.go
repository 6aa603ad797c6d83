// Package analysis suggests and runs follow-up spatial analyses over the
// rows a query returned. Suggestions are keyed by the geometry kind of the
// result; execution re-queries PostGIS over the gid subset so the analysis
// always reflects live data.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orelake/orelake/pkg/sqlgen"
)

// Descriptor describes one available analysis.
type Descriptor struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	WhenUseful  string `json:"when_useful"`
}

var pointAnalyses = []Descriptor{
	{"clustering", "Cluster Analysis", "Find groups of nearby points using DBSCAN", "10+ points with possible natural groupings"},
	{"regional", "Regional Distribution", "Count and rank points by administrative region", "geographic distribution questions"},
	{"commodity", "Commodity Breakdown", "Distribution of commodities across the points", "mineral deposit result sets"},
	{"geology_correlation", "Geology Correlation", "Which geology units contain the points", "geological context"},
	{"distance_to_faults", "Distance to Faults", "Distance from each point to the nearest fault", "structural control questions"},
	{"bounding_area", "Bounding Area", "Convex hull area spanned by the points", "extent questions"},
}

var lineAnalyses = []Descriptor{
	{"total_length", "Total Length", "Sum of line lengths in kilometers", "total extent of linear features"},
	{"orientation", "Orientation Analysis", "Dominant line directions (N-S, NE-SW, E-W, NW-SE)", "structural trends"},
	{"intersections", "Intersection Points", "Count of line crossings", "fault intersection mapping"},
	{"buffer_zones", "Buffer Zones", "Aggregate area within a buffer of the lines", "proximity analysis"},
}

var polygonAnalyses = []Descriptor{
	{"area_stats", "Area Statistics", "Total, average, min and max polygon area", "size distribution"},
	{"coverage", "Coverage Analysis", "Share of the total mapped area", "spatial coverage"},
	{"litho_distribution", "Lithology Distribution", "Breakdown by rock family with areas", "geology polygon sets"},
}

// Catalog returns the analyses defined for a geometry kind.
func Catalog(kind sqlgen.GeometryKind) []Descriptor {
	switch kind {
	case sqlgen.GeometryPoint:
		return pointAnalyses
	case sqlgen.GeometryLine:
		return lineAnalyses
	case sqlgen.GeometryPolygon:
		return polygonAnalyses
	}
	return nil
}

// Lookup finds a descriptor by key across all catalogs.
func Lookup(key string) (Descriptor, bool) {
	for _, set := range [][]Descriptor{pointAnalyses, lineAnalyses, polygonAnalyses} {
		for _, d := range set {
			if d.Key == key {
				return d, true
			}
		}
	}
	return Descriptor{}, false
}

// DetectDataType infers the geometry kind of result rows. An explicit kind
// from the generator wins; otherwise the row shape decides. Rows with
// coordinate columns are points; a GeoJSON geometry column is parsed for its
// type. Point is the fallback.
func DetectDataType(data []map[string]any, kind sqlgen.GeometryKind) sqlgen.GeometryKind {
	if kind != "" {
		return kind
	}
	if len(data) == 0 {
		return sqlgen.GeometryPoint
	}
	sample := data[0]

	if _, ok := sample["latitude"]; ok {
		return sqlgen.GeometryPoint
	}
	if _, ok := sample["lat"]; ok {
		return sqlgen.GeometryPoint
	}

	if raw, ok := sample["geojson_geom"]; ok {
		var geomType string
		switch v := raw.(type) {
		case string:
			var g struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal([]byte(v), &g); err == nil {
				geomType = g.Type
			}
		case map[string]any:
			geomType, _ = v["type"].(string)
		}
		switch strings.ToLower(geomType) {
		case "point", "multipoint":
			return sqlgen.GeometryPoint
		case "linestring", "multilinestring":
			return sqlgen.GeometryLine
		case "polygon", "multipolygon":
			return sqlgen.GeometryPolygon
		}
	}

	return sqlgen.GeometryPoint
}

// Suggestions describes the follow-up analyses offered for a result set.
type Suggestions struct {
	DataType   sqlgen.GeometryKind `json:"data_type"`
	RowCount   int                 `json:"row_count"`
	Analyses   []Descriptor        `json:"analyses_available"`
	Text       string              `json:"suggestion_text"`
	CanAnalyze bool                `json:"can_analyze"`
}

const minPointsForSuggestions = 3

// Suggest builds the analysis offer for a result set. Only point results
// with enough rows get an offer; line and polygon results are returned
// without one, since those render fine as-is.
func Suggest(data []map[string]any, kind sqlgen.GeometryKind, tables []string) Suggestions {
	dataType := DetectDataType(data, kind)
	s := Suggestions{DataType: dataType, RowCount: len(data)}

	if dataType != sqlgen.GeometryPoint || len(data) < minPointsForSuggestions {
		return s
	}

	s.Analyses = filterPointAnalyses(data, tables, len(data))
	s.CanAnalyze = len(s.Analyses) > 0
	s.Text = suggestionText(len(data), s.Analyses)
	return s
}

func filterPointAnalyses(data []map[string]any, tables []string, rowCount int) []Descriptor {
	var out []Descriptor
	byKey := func(key string) Descriptor {
		d, _ := Lookup(key)
		return d
	}

	if rowCount >= 5 {
		out = append(out, byKey("clustering"))
	}

	var sample map[string]any
	if len(data) > 0 {
		sample = data[0]
	}
	if _, ok := sample["region"]; ok {
		out = append(out, byKey("regional"))
	} else if _, ok := sample["admin_region"]; ok {
		out = append(out, byKey("regional"))
	}

	fromDeposits := false
	for _, t := range tables {
		if t == sqlgen.TableDeposits {
			fromDeposits = true
			break
		}
	}
	if _, ok := sample["major_comm"]; ok || fromDeposits {
		out = append(out, byKey("commodity"))
	}

	out = append(out, byKey("geology_correlation"))
	return out
}

func suggestionText(rowCount int, analyses []Descriptor) string {
	if len(analyses) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Spatial analysis available (%d points):\n", rowCount)
	for i, a := range analyses {
		fmt.Fprintf(&b, "  %d. %s: %s\n", i+1, a.Name, a.Description)
	}
	fmt.Fprintf(&b, "Type a number (1-%d) or ask a new question.", len(analyses))
	return b.String()
}
