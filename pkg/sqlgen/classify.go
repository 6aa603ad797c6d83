package sqlgen

import (
	"regexp"
	"strings"
)

var (
	faultsGeoJSONRe  = regexp.MustCompile(`st_asgeojson\s*\([^)]*f\.geom`)
	geologyGeoJSONRe = regexp.MustCompile(`st_asgeojson\s*\([^)]*g\.geom`)
)

// ClassifyGeometry derives the geometry type the query's result rows carry.
// The repaired SQL is the primary evidence; the model's own suggestion is
// only trusted when the SQL is ambiguous. Rules apply in order, first match
// wins.
func ClassifyGeometry(sql string, suggested GeometryKind) GeometryKind {
	lower := strings.ToLower(sql)

	// Lat/lon projections are only ever emitted for point results.
	if strings.Contains(lower, "as latitude") && strings.Contains(lower, "as longitude") {
		return GeometryPoint
	}

	faults := strings.Contains(lower, "from "+TableFaults) ||
		strings.Contains(lower, "join "+TableFaults)
	geology := strings.Contains(lower, "from "+TableGeology) ||
		strings.Contains(lower, "join "+TableGeology)

	if faults && !geology {
		return GeometryLine
	}
	if geology && !faults {
		return GeometryPolygon
	}

	// Both non-point tables present (or neither but a geojson projection
	// exists): disambiguate by which table's alias feeds the projection.
	if strings.Contains(lower, "geojson_geom") {
		if faultsGeoJSONRe.MatchString(lower) {
			return GeometryLine
		}
		if geologyGeoJSONRe.MatchString(lower) {
			return GeometryPolygon
		}
		if suggested == GeometryLine || suggested == GeometryPolygon {
			return suggested
		}
		return GeometryPolygon
	}

	for _, t := range pointTables {
		if strings.Contains(lower, "from "+t) {
			return GeometryPoint
		}
	}

	return suggested
}
