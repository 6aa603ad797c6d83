// Package sqlgen turns natural-language questions about the mining/geology
// database into validated PostGIS SQL. The pipeline is: compose prompt,
// generate a candidate through the LLM, deterministically repair it, classify
// its output geometry from the SQL text, dry-validate against the live
// database, and retry with accumulated error feedback until the statement
// validates or the attempt budget runs out.
package sqlgen

// GeometryKind is the output-row shape of a query: lat/lon point rows or
// GeoJSON line/polygon rows.
type GeometryKind string

const (
	GeometryPoint   GeometryKind = "point"
	GeometryLine    GeometryKind = "line"
	GeometryPolygon GeometryKind = "polygon"
)

// Canonical table names. "borholes" is the legacy misspelling that actually
// exists in the database.
const (
	TableDeposits = "mods"
	TableGeology  = "geology_master"
	TableFaults   = "geology_faults_contacts_master"
	TableBorholes = "borholes"
	TableSamples  = "surface_samples"
)

// databaseSRID is the projected coordinate system the geometry columns are
// stored in. Spatial predicates require both operands tagged with it.
const databaseSRID = 3857

// pointTables lists the tables whose output rows are lat/lon points.
var pointTables = []string{TableDeposits, TableBorholes, TableSamples}

const (
	latLonOutput   = "ST_Y(ST_Transform(ST_SetSRID(geom, 3857), 4326)) AS latitude, ST_X(ST_Transform(ST_SetSRID(geom, 3857), 4326)) AS longitude"
	geoJSONOutput  = "ST_AsGeoJSON(ST_Transform(ST_SetSRID(geom, 3857), 4326)) AS geojson_geom"
	geoJSONPattern = "ST_AsGeoJSON(ST_Transform(ST_SetSRID(%s, 3857), 4326)) AS geojson_geom"
)

// selectStarColumns is the canonical column list substituted for SELECT * per
// table. Ordered so the faults table is checked before the geology table.
var selectStarColumns = []struct {
	table   string
	columns string
}{
	{TableFaults, "gid, newtype, shape_leng, " + geoJSONOutput},
	{TableGeology, "gid, unit_name, main_litho, litho_fmly, terrane, " + geoJSONOutput},
	{TableDeposits, "gid, eng_name, major_comm, minor_comm, region, occ_imp, " + latLonOutput},
	{TableBorholes, "gid, project_na, borehole_i, elements, " + latLonOutput},
	{TableSamples, "gid, sampleid, sampletype, elements, " + latLonOutput},
}

// spatialPredicates are the two-geometry PostGIS functions whose arguments
// must both carry an SRID assignment.
var spatialPredicates = []string{
	"ST_Intersects",
	"ST_DWithin",
	"ST_Within",
	"ST_Contains",
	"ST_Crosses",
}

// saudiRegions maps city/locality mentions to the administrative region name
// used by the region column.
var saudiRegions = map[string]string{
	"riyadh":  "Riyadh Region",
	"makkah":  "Makkah Region",
	"mecca":   "Makkah Region",
	"madinah": "Madinah Region",
	"medina":  "Madinah Region",
	"eastern": "Eastern Region",
	"asir":    "Asir Region",
	"tabuk":   "Tabuk Region",
	"hail":    "Hail Region",
	"jazan":   "Jazan Region",
	"najran":  "Najran Region",
	"qassim":  "Qassim Region",
}

// commodityWords are the named commodities that turn a generic occurrence
// word into a filtered query.
var commodityWords = []string{"gold", "copper", "silver", "zinc", "iron", "lead", "nickel"}

// occurrenceWords denote the deposits table itself, not a filter predicate.
var occurrenceWords = []string{"mines", "deposits", "sites", "occurrences"}
