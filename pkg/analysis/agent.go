package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/orelake/orelake/pkg/sqlgen"
)

// Store is the slice of the database client the agent needs.
type Store interface {
	ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// Params tunes an analysis run. Zero values select the defaults.
type Params struct {
	DistanceKM float64 `json:"distance_km"`
	MinPoints  int     `json:"min_points"`
	BufferKM   float64 `json:"buffer_km"`
}

// Input is the result set an analysis operates on.
type Input struct {
	Data      []map[string]any
	QueryType sqlgen.GeometryKind
	Tables    []string
}

// Result is a completed analysis: aggregate stats, chart-ready rows and a
// text summary.
type Result struct {
	Kind       string           `json:"analysis_type"`
	Parameters map[string]any   `json:"parameters,omitempty"`
	Stats      map[string]any   `json:"results,omitempty"`
	Data       []map[string]any `json:"data,omitempty"`
	Summary    string           `json:"summary"`
}

type Config struct {
	Logger *slog.Logger
	Store  Store
}

func (c Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	return nil
}

// Agent executes analyses as PostGIS SQL.
type Agent struct {
	log   *slog.Logger
	store Store
}

func NewAgent(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Agent{log: cfg.Logger, store: cfg.Store}, nil
}

// ErrNoData marks an analysis invoked without a usable result set.
var ErrNoData = errors.New("no data available for analysis")

const (
	defaultClusterDistanceKM = 5
	defaultClusterMinPoints  = 2
	defaultBufferKM          = 1
)

// Run executes the named analysis over the input rows.
func (a *Agent) Run(ctx context.Context, key string, input Input, params Params) (*Result, error) {
	if _, ok := Lookup(key); !ok {
		return nil, fmt.Errorf("unknown analysis type: %s", key)
	}

	a.log.Info("running spatial analysis", "analysis", key, "rows", len(input.Data))

	switch key {
	case "clustering":
		return a.runClustering(ctx, input, params)
	case "regional":
		return a.runRegional(ctx, input)
	case "commodity":
		return a.runCommodity(ctx, input)
	case "geology_correlation":
		return a.runGeologyCorrelation(ctx, input)
	case "distance_to_faults":
		return a.runDistanceToFaults(ctx, input)
	case "bounding_area":
		return a.runBoundingArea(ctx, input)
	case "total_length":
		return a.runTotalLength(ctx)
	case "orientation":
		return a.runOrientation(ctx)
	case "intersections":
		return a.runIntersections(ctx)
	case "buffer_zones":
		return a.runBufferZones(ctx, params)
	case "area_stats":
		return a.runAreaStats(ctx)
	case "coverage":
		return a.runCoverage(ctx, input)
	case "litho_distribution":
		return a.runLithoDistribution(ctx)
	}
	return nil, fmt.Errorf("unknown analysis type: %s", key)
}

// collectGIDs pulls the gid column out of result rows. Drivers hand back
// several integer widths depending on the column type.
func collectGIDs(data []map[string]any) []int64 {
	var gids []int64
	for _, row := range data {
		switch v := row["gid"].(type) {
		case int64:
			gids = append(gids, v)
		case int32:
			gids = append(gids, int64(v))
		case int:
			gids = append(gids, int64(v))
		case float64:
			gids = append(gids, int64(v))
		}
	}
	return gids
}

// pointTable picks the table the gid subset lives in. Only known point
// tables are accepted; everything else falls back to the deposits table so a
// model-invented name can never reach the SQL text.
func pointTable(tables []string) string {
	for _, t := range tables {
		switch t {
		case sqlgen.TableDeposits, sqlgen.TableBorholes, sqlgen.TableSamples:
			return t
		}
	}
	return sqlgen.TableDeposits
}

// clusterColumns names the label, category and grouping columns the cluster
// report pulls from each point table.
var clusterColumns = map[string]struct {
	name, commodity, region string
}{
	sqlgen.TableDeposits: {"eng_name", "major_comm", "region"},
	sqlgen.TableBorholes: {"borehole_i", "elements", "project_na"},
	sqlgen.TableSamples:  {"sampleid", "elements", "sampletype"},
}

func (a *Agent) runClustering(ctx context.Context, input Input, params Params) (*Result, error) {
	gids := collectGIDs(input.Data)
	if len(gids) == 0 {
		return nil, ErrNoData
	}
	distanceKM := params.DistanceKM
	if distanceKM <= 0 {
		distanceKM = defaultClusterDistanceKM
	}
	minPoints := params.MinPoints
	if minPoints <= 0 {
		minPoints = defaultClusterMinPoints
	}

	table := pointTable(input.Tables)
	cols := clusterColumns[table]
	sql := fmt.Sprintf(`
		WITH subset AS (
			SELECT gid, geom,
				COALESCE(%s, '') AS name,
				COALESCE(%s, '') AS commodity,
				COALESCE(%s, '') AS region,
				ST_Y(ST_Transform(ST_SetSRID(geom, 3857), 4326)) AS latitude,
				ST_X(ST_Transform(ST_SetSRID(geom, 3857), 4326)) AS longitude
			FROM %s
			WHERE gid = ANY($1)
		)
		SELECT
			ST_ClusterDBSCAN(geom, eps := $2, minpoints := $3) OVER () AS cluster_id,
			gid, name, commodity, region, latitude, longitude
		FROM subset
		ORDER BY cluster_id NULLS LAST`, cols.name, cols.commodity, cols.region, table)

	rows, err := a.store.ExecuteQuery(ctx, sql, gids, distanceKM*1000, minPoints)
	if err != nil {
		return nil, fmt.Errorf("clustering analysis failed: %w", err)
	}

	clusters := map[int64][]map[string]any{}
	noise := 0
	for _, r := range rows {
		cid, ok := asInt64(r["cluster_id"])
		if !ok {
			noise++
			continue
		}
		clusters[cid] = append(clusters[cid], r)
	}

	ids := make([]int64, 0, len(clusters))
	for cid := range clusters {
		ids = append(ids, cid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	details := make([]map[string]any, 0, len(ids))
	for _, cid := range ids {
		points := clusters[cid]
		details = append(details, map[string]any{
			"cluster_id":  cid,
			"point_count": len(points),
			"regions":     distinctStrings(points, "region"),
			"commodities": distinctStrings(points, "commodity"),
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cluster analysis (%.0fkm distance): %d clusters, %d clustered points, %d isolated points.",
		distanceKM, len(ids), len(rows)-noise, noise)
	for i, d := range details {
		if i == 5 {
			break
		}
		regions, _ := d["regions"].([]string)
		fmt.Fprintf(&b, "\n  Cluster %d: %d points", d["cluster_id"], d["point_count"])
		if len(regions) > 0 {
			fmt.Fprintf(&b, " in %s", strings.Join(regions[:min(2, len(regions))], ", "))
		}
	}

	return &Result{
		Kind:       "clustering",
		Parameters: map[string]any{"distance_km": distanceKM, "min_points": minPoints},
		Stats: map[string]any{
			"cluster_count":    len(ids),
			"total_points":     len(rows),
			"clustered_points": len(rows) - noise,
			"isolated_points":  noise,
			"cluster_details":  details,
		},
		Data:    rows,
		Summary: b.String(),
	}, nil
}

func (a *Agent) runRegional(ctx context.Context, input Input) (*Result, error) {
	gids := collectGIDs(input.Data)
	if len(gids) == 0 {
		return nil, ErrNoData
	}

	sql := fmt.Sprintf(`
		SELECT
			COALESCE(region, 'Unknown') AS region,
			COUNT(*) AS count,
			ROUND(100.0 * COUNT(*) / SUM(COUNT(*)) OVER (), 1) AS percentage
		FROM %s
		WHERE gid = ANY($1)
		GROUP BY region
		ORDER BY count DESC`, pointTable(input.Tables))

	rows, err := a.store.ExecuteQuery(ctx, sql, gids)
	if err != nil {
		return nil, fmt.Errorf("regional analysis failed: %w", err)
	}

	var b strings.Builder
	b.WriteString("Regional distribution:")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n  %v: %v (%v%%)", r["region"], r["count"], display(r["percentage"]))
	}

	return &Result{
		Kind:    "regional",
		Stats:   map[string]any{"region_count": len(rows), "distribution": rows},
		Data:    rows,
		Summary: b.String(),
	}, nil
}

func (a *Agent) runCommodity(ctx context.Context, input Input) (*Result, error) {
	gids := collectGIDs(input.Data)
	if len(gids) == 0 {
		return nil, ErrNoData
	}

	sql := fmt.Sprintf(`
		SELECT
			COALESCE(major_comm, 'Unknown') AS commodity,
			COUNT(*) AS count,
			ROUND(100.0 * COUNT(*) / SUM(COUNT(*)) OVER (), 1) AS percentage
		FROM %s
		WHERE gid = ANY($1)
		GROUP BY major_comm
		ORDER BY count DESC`, sqlgen.TableDeposits)

	rows, err := a.store.ExecuteQuery(ctx, sql, gids)
	if err != nil {
		return nil, fmt.Errorf("commodity analysis failed: %w", err)
	}

	var b strings.Builder
	b.WriteString("Commodity breakdown:")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n  %v: %v (%v%%)", r["commodity"], r["count"], display(r["percentage"]))
	}

	return &Result{
		Kind:    "commodity",
		Stats:   map[string]any{"commodity_count": len(rows), "distribution": rows},
		Data:    rows,
		Summary: b.String(),
	}, nil
}

func (a *Agent) runGeologyCorrelation(ctx context.Context, input Input) (*Result, error) {
	gids := collectGIDs(input.Data)
	if len(gids) == 0 {
		return nil, ErrNoData
	}

	sql := fmt.Sprintf(`
		WITH points AS (
			SELECT gid, geom FROM %s WHERE gid = ANY($1)
		)
		SELECT
			COALESCE(g.unit_name, 'Unknown') AS geology_unit,
			COALESCE(g.main_litho, 'Unknown') AS lithology,
			COALESCE(g.litho_fmly, 'Unknown') AS rock_family,
			COUNT(*) AS point_count,
			ROUND(100.0 * COUNT(*) / SUM(COUNT(*)) OVER (), 1) AS percentage
		FROM points p
		JOIN %s g ON ST_Intersects(
			ST_SetSRID(p.geom, 3857),
			ST_SetSRID(g.geom, 3857)
		)
		GROUP BY g.unit_name, g.main_litho, g.litho_fmly
		ORDER BY point_count DESC
		LIMIT 20`, pointTable(input.Tables), sqlgen.TableGeology)

	rows, err := a.store.ExecuteQuery(ctx, sql, gids)
	if err != nil {
		return nil, fmt.Errorf("geology correlation failed: %w", err)
	}

	var b strings.Builder
	b.WriteString("Geology correlation, host rock types:")
	for i, r := range rows {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "\n  %v (%v): %v points (%v%%)", r["lithology"], r["rock_family"], r["point_count"], display(r["percentage"]))
	}

	return &Result{
		Kind:    "geology_correlation",
		Stats:   map[string]any{"geology_units": len(rows), "distribution": rows},
		Data:    rows,
		Summary: b.String(),
	}, nil
}

func (a *Agent) runDistanceToFaults(ctx context.Context, input Input) (*Result, error) {
	gids := collectGIDs(input.Data)
	if len(gids) == 0 {
		return nil, ErrNoData
	}

	sql := fmt.Sprintf(`
		WITH points AS (
			SELECT gid,
				COALESCE(eng_name, '') AS name,
				geom,
				ST_Y(ST_Transform(ST_SetSRID(geom, 3857), 4326)) AS latitude,
				ST_X(ST_Transform(ST_SetSRID(geom, 3857), 4326)) AS longitude
			FROM %s
			WHERE gid = ANY($1)
		),
		faults AS (
			SELECT geom FROM %s WHERE newtype ILIKE '%%fault%%'
		)
		SELECT
			p.gid, p.name, p.latitude, p.longitude,
			ROUND((MIN(ST_Distance(
				ST_Transform(ST_SetSRID(p.geom, 3857), 4326)::geography,
				ST_Transform(ST_SetSRID(f.geom, 3857), 4326)::geography
			)) / 1000)::numeric, 2) AS distance_to_fault_km
		FROM points p
		CROSS JOIN faults f
		GROUP BY p.gid, p.name, p.latitude, p.longitude
		ORDER BY distance_to_fault_km`, sqlgen.TableDeposits, sqlgen.TableFaults)

	rows, err := a.store.ExecuteQuery(ctx, sql, gids)
	if err != nil {
		return nil, fmt.Errorf("distance-to-faults analysis failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("no fault data found")
	}

	var minD, maxD, sum float64
	for i, r := range rows {
		d := asFloat(r["distance_to_fault_km"])
		if i == 0 || d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
		sum += d
	}
	avg := sum / float64(len(rows))

	var b strings.Builder
	fmt.Fprintf(&b, "Distance to faults: min %.1f km, max %.1f km, avg %.1f km.\nClosest to faults:", minD, maxD, avg)
	for i, r := range rows {
		if i == 5 {
			break
		}
		name, _ := r["name"].(string)
		if name == "" {
			name = fmt.Sprintf("Point %v", r["gid"])
		}
		fmt.Fprintf(&b, "\n  %s: %v km", name, display(r["distance_to_fault_km"]))
	}

	return &Result{
		Kind: "distance_to_faults",
		Stats: map[string]any{
			"min_distance_km": minD,
			"max_distance_km": maxD,
			"avg_distance_km": avg,
			"point_distances": rows,
		},
		Data:    rows,
		Summary: b.String(),
	}, nil
}

func (a *Agent) runBoundingArea(ctx context.Context, input Input) (*Result, error) {
	gids := collectGIDs(input.Data)
	if len(gids) < 3 {
		return nil, errors.New("bounding area needs at least 3 points")
	}

	sql := fmt.Sprintf(`
		SELECT
			ROUND((ST_Area(ST_ConvexHull(ST_Collect(
				ST_Transform(ST_SetSRID(geom, 3857), 4326)
			))::geography) / 1000000)::numeric, 2) AS area_km2,
			ST_AsGeoJSON(ST_ConvexHull(ST_Collect(
				ST_Transform(ST_SetSRID(geom, 3857), 4326)
			))) AS hull_geojson
		FROM %s
		WHERE gid = ANY($1)`, pointTable(input.Tables))

	rows, err := a.store.ExecuteQuery(ctx, sql, gids)
	if err != nil {
		return nil, fmt.Errorf("bounding area analysis failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	return &Result{
		Kind: "bounding_area",
		Stats: map[string]any{
			"area_km2":    rows[0]["area_km2"],
			"convex_hull": rows[0]["hull_geojson"],
		},
		Summary: fmt.Sprintf("The %d points span an area of %v km2.", len(gids), display(rows[0]["area_km2"])),
	}, nil
}

func (a *Agent) runTotalLength(ctx context.Context) (*Result, error) {
	sql := fmt.Sprintf(`
		SELECT
			ROUND((SUM(ST_Length(
				ST_Transform(ST_SetSRID(geom, 3857), 4326)::geography
			)) / 1000)::numeric, 2) AS total_length_km,
			COUNT(*) AS line_count
		FROM %s`, sqlgen.TableFaults)

	rows, err := a.store.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("total length analysis failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	return &Result{
		Kind:  "total_length",
		Stats: rows[0],
		Summary: fmt.Sprintf("%v lines totaling %v km.",
			rows[0]["line_count"], display(rows[0]["total_length_km"])),
	}, nil
}

func (a *Agent) runOrientation(ctx context.Context) (*Result, error) {
	sql := fmt.Sprintf(`
		WITH segs AS (
			SELECT degrees(ST_Azimuth(
				ST_StartPoint(ST_GeometryN(ST_Multi(geom), 1)),
				ST_EndPoint(ST_GeometryN(ST_Multi(geom), ST_NumGeometries(ST_Multi(geom))))
			)) AS az
			FROM %s
			WHERE geom IS NOT NULL
		),
		buckets AS (
			SELECT CASE
				WHEN az IS NULL THEN 'Unknown'
				WHEN az >= 337.5 OR az < 22.5 OR (az >= 157.5 AND az < 202.5) THEN 'N-S'
				WHEN (az >= 22.5 AND az < 67.5) OR (az >= 202.5 AND az < 247.5) THEN 'NE-SW'
				WHEN (az >= 67.5 AND az < 112.5) OR (az >= 247.5 AND az < 292.5) THEN 'E-W'
				ELSE 'NW-SE'
			END AS direction
			FROM segs
		)
		SELECT direction, COUNT(*) AS count,
			ROUND(100.0 * COUNT(*) / SUM(COUNT(*)) OVER (), 1) AS percentage
		FROM buckets
		GROUP BY direction
		ORDER BY count DESC`, sqlgen.TableFaults)

	rows, err := a.store.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("orientation analysis failed: %w", err)
	}

	var b strings.Builder
	b.WriteString("Dominant line orientations:")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n  %v: %v (%v%%)", r["direction"], r["count"], display(r["percentage"]))
	}

	return &Result{
		Kind:    "orientation",
		Stats:   map[string]any{"directions": rows},
		Data:    rows,
		Summary: b.String(),
	}, nil
}

func (a *Agent) runIntersections(ctx context.Context) (*Result, error) {
	sql := fmt.Sprintf(`
		SELECT COUNT(*) AS intersection_count
		FROM %s a
		JOIN %s b ON a.gid < b.gid AND ST_Crosses(
			ST_SetSRID(a.geom, 3857), ST_SetSRID(b.geom, 3857)
		)`, sqlgen.TableFaults, sqlgen.TableFaults)

	rows, err := a.store.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("intersection analysis failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	return &Result{
		Kind:    "intersections",
		Stats:   rows[0],
		Summary: fmt.Sprintf("%v line crossings found.", rows[0]["intersection_count"]),
	}, nil
}

func (a *Agent) runBufferZones(ctx context.Context, params Params) (*Result, error) {
	bufferKM := params.BufferKM
	if bufferKM <= 0 {
		bufferKM = defaultBufferKM
	}

	sql := fmt.Sprintf(`
		SELECT
			ROUND((ST_Area(ST_Union(ST_Buffer(
				ST_SetSRID(geom, 3857), $1
			))) / 1000000)::numeric, 2) AS buffer_area_km2,
			COUNT(*) AS line_count
		FROM %s`, sqlgen.TableFaults)

	rows, err := a.store.ExecuteQuery(ctx, sql, bufferKM*1000)
	if err != nil {
		return nil, fmt.Errorf("buffer zone analysis failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	return &Result{
		Kind:       "buffer_zones",
		Parameters: map[string]any{"buffer_km": bufferKM},
		Stats:      rows[0],
		Summary: fmt.Sprintf("A %vkm buffer around %v lines covers %v km2.",
			bufferKM, rows[0]["line_count"], display(rows[0]["buffer_area_km2"])),
	}, nil
}

func (a *Agent) runAreaStats(ctx context.Context) (*Result, error) {
	sql := fmt.Sprintf(`
		SELECT
			COUNT(*) AS polygon_count,
			ROUND((SUM(ST_Area(ST_Transform(ST_SetSRID(geom, 3857), 4326)::geography)) / 1000000)::numeric, 0) AS total_area_km2,
			ROUND((AVG(ST_Area(ST_Transform(ST_SetSRID(geom, 3857), 4326)::geography)) / 1000000)::numeric, 2) AS avg_area_km2,
			ROUND((MIN(ST_Area(ST_Transform(ST_SetSRID(geom, 3857), 4326)::geography)) / 1000000)::numeric, 2) AS min_area_km2,
			ROUND((MAX(ST_Area(ST_Transform(ST_SetSRID(geom, 3857), 4326)::geography)) / 1000000)::numeric, 2) AS max_area_km2
		FROM %s`, sqlgen.TableGeology)

	rows, err := a.store.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("area statistics failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	return &Result{
		Kind:  "area_stats",
		Stats: rows[0],
		Summary: fmt.Sprintf("%v polygons, %v km2 total, %v km2 average.",
			rows[0]["polygon_count"], display(rows[0]["total_area_km2"]), display(rows[0]["avg_area_km2"])),
	}, nil
}

func (a *Agent) runCoverage(ctx context.Context, input Input) (*Result, error) {
	gids := collectGIDs(input.Data)
	if len(gids) == 0 {
		return nil, ErrNoData
	}

	sql := fmt.Sprintf(`
		SELECT ROUND((
			100.0 * SUM(ST_Area(ST_SetSRID(geom, 3857))) /
			(SELECT SUM(ST_Area(ST_SetSRID(geom, 3857))) FROM %s)
		)::numeric, 1) AS coverage_pct,
		COUNT(*) AS polygon_count
		FROM %s
		WHERE gid = ANY($1)`, sqlgen.TableGeology, sqlgen.TableGeology)

	rows, err := a.store.ExecuteQuery(ctx, sql, gids)
	if err != nil {
		return nil, fmt.Errorf("coverage analysis failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	return &Result{
		Kind:  "coverage",
		Stats: rows[0],
		Summary: fmt.Sprintf("The %v selected polygons cover %v%% of the mapped area.",
			rows[0]["polygon_count"], display(rows[0]["coverage_pct"])),
	}, nil
}

func (a *Agent) runLithoDistribution(ctx context.Context) (*Result, error) {
	sql := fmt.Sprintf(`
		SELECT
			COALESCE(litho_fmly, 'Unknown') AS rock_family,
			COUNT(*) AS unit_count,
			ROUND((SUM(ST_Area(
				ST_Transform(ST_SetSRID(geom, 3857), 4326)::geography
			)) / 1000000)::numeric, 0) AS total_area_km2
		FROM %s
		GROUP BY litho_fmly
		ORDER BY total_area_km2 DESC
		LIMIT 15`, sqlgen.TableGeology)

	rows, err := a.store.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("lithology distribution failed: %w", err)
	}

	var b strings.Builder
	b.WriteString("Lithology distribution:")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n  %v: %v units, %v km2", r["rock_family"], r["unit_count"], display(r["total_area_km2"]))
	}

	return &Result{
		Kind:    "litho_distribution",
		Stats:   map[string]any{"distribution": rows},
		Data:    rows,
		Summary: b.String(),
	}, nil
}

func distinctStrings(rows []map[string]any, key string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		if s, ok := r[key].(string); ok && s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case pgtype.Numeric:
		if f, err := n.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
	case string:
		var f float64
		fmt.Sscanf(n, "%f", &f)
		return f
	}
	return 0
}

// display unboxes driver numeric values so summaries print plain numbers.
// ROUND(...)::numeric columns come back from pgx as pgtype.Numeric, which
// has no String method.
func display(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		if f, err := n.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
	}
	return v
}
