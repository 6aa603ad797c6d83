package sqlgen

import (
	"fmt"
	"regexp"
	"strings"
)

// Repair applies the ordered rule pipeline that normalizes a model-produced
// SQL statement against the fixed schema. It is a pure, total function: a
// fragment no rule recognizes passes through unchanged for the validator to
// reject. Applying Repair twice yields no further change; the rule order is
// part of the contract (geometry-output enforcement must run after SELECT *
// expansion, since expansion can introduce the lat/lon expressions it
// inspects).
func Repair(sql string) string {
	sql = fixSelectStar(sql)
	sql = fixTableNames(sql)
	sql = fixColumnNames(sql)
	sql = fixSpatialPredicates(sql)
	sql = ensureGeoJSONOutputs(sql)
	sql = fixTableSpelling(sql)
	sql = fixCommodityLogic(sql)
	sql = ensureDistinctForJoins(sql)
	return sql
}

// --- rule 1: expand SELECT * ---

var selectStarRe = regexp.MustCompile(`(?i)SELECT\s+\*\s+FROM`)

var selectStarTableRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(selectStarColumns))
	for i, entry := range selectStarColumns {
		res[i] = regexp.MustCompile(`(?i)SELECT\s+\*\s+FROM\s+` + entry.table)
	}
	return res
}()

func fixSelectStar(sql string) string {
	if !selectStarRe.MatchString(sql) {
		return sql
	}
	// Invented and misspelled table names resolve in later rules; the star
	// must be expanded against the canonical name or it survives the pass.
	sql = fixTableSpelling(fixTableNames(sql))
	sqlLower := strings.ToLower(sql)
	for i, entry := range selectStarColumns {
		if strings.Contains(sqlLower, entry.table) {
			sql = selectStarTableRes[i].ReplaceAllString(sql,
				"SELECT "+entry.columns+" FROM "+entry.table)
			break
		}
	}
	return sql
}

// --- rule 2: correct invented table names ---

var compoundTableRe = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+\w+_(?:deposits|mines|sites)\b`)

var simpleTableFixes = []struct {
	re      *regexp.Regexp
	correct string
}{
	{regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+deposits\b`), TableDeposits},
	{regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+mines\b`), TableDeposits},
	{regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+sites\b`), TableDeposits},
	{regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+faults\b`), TableFaults},
	{regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+areas\b`), TableGeology},
	{regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+zones\b`), TableGeology},
}

func fixTableNames(sql string) string {
	sql = compoundTableRe.ReplaceAllString(sql, "${1} "+TableDeposits)
	for _, fix := range simpleTableFixes {
		sql = fix.re.ReplaceAllString(sql, "${1} "+fix.correct)
	}
	return sql
}

// --- rule 3: correct invented column names ---

var columnFixes = []struct {
	re      *regexp.Regexp
	correct string
}{
	{regexp.MustCompile(`(?i)\b(?:deposit|mine|site|area|fault)_id\b`), "gid"},
	{regexp.MustCompile(`(?i)\b(?:deposit|mine|site)_name\b`), "eng_name"},
	{regexp.MustCompile(`(?i)\barea_name\b`), "unit_name"},
	{regexp.MustCompile(`(?i)\bfault_(?:name|type)\b`), "newtype"},
	{regexp.MustCompile(`(?i)\bcommodity\b`), "major_comm"},
	{regexp.MustCompile(`(?i)\bimportance\b`), "occ_imp"},
	{regexp.MustCompile(`(?i)\b(?:rock_type|lithology)\b`), "main_litho"},
}

var (
	qualifiedIDRe  = regexp.MustCompile(`(?i)\b(\w+)\.id\b`)
	selectIDRe     = regexp.MustCompile(`(?i)\bSELECT\s+id\s*,`)
	trailingIDRe   = regexp.MustCompile(`(?i),\s*id\s+FROM\b`)
)

func fixColumnNames(sql string) string {
	for _, fix := range columnFixes {
		sql = fix.re.ReplaceAllString(sql, fix.correct)
	}
	sql = qualifiedIDRe.ReplaceAllString(sql, "${1}.gid")
	sql = selectIDRe.ReplaceAllString(sql, "SELECT gid,")
	sql = trailingIDRe.ReplaceAllString(sql, ", gid FROM")
	return sql
}

// --- rule 4: SRID-wrap spatial predicate arguments ---

type predicateFixes struct {
	op         string
	bothBare   *regexp.Regexp
	secondBare *regexp.Regexp
	firstBare  *regexp.Regexp
}

var spatialFixes = func() []predicateFixes {
	fixes := make([]predicateFixes, len(spatialPredicates))
	for i, op := range spatialPredicates {
		fixes[i] = predicateFixes{
			op:         op,
			bothBare:   regexp.MustCompile(`(?i)` + op + `\s*\(\s*(\w+\.)?geom\s*,\s*(\w+\.)?geom`),
			secondBare: regexp.MustCompile(`(?i)` + op + `\s*\(\s*(ST_SetSRID\s*\([^)]+\))\s*,\s*(\w+\.)?geom\b`),
			firstBare:  regexp.MustCompile(`(?i)` + op + `\s*\(\s*(\w+\.)?geom\s*,\s*(ST_SetSRID\s*\()`),
		}
	}
	return fixes
}()

func fixSpatialPredicates(sql string) string {
	srid := fmt.Sprintf("%d", databaseSRID)
	for _, fix := range spatialFixes {
		sql = fix.bothBare.ReplaceAllString(sql,
			fix.op+`(ST_SetSRID(${1}geom, `+srid+`), ST_SetSRID(${2}geom, `+srid+`)`)
		sql = fix.secondBare.ReplaceAllString(sql,
			fix.op+`(${1}, ST_SetSRID(${2}geom, `+srid+`)`)
		sql = fix.firstBare.ReplaceAllString(sql,
			fix.op+`(ST_SetSRID(${1}geom, `+srid+`), ${2}`)
	}
	return sql
}

// --- rule 5: enforce geometry output columns ---

var (
	doubleCommaRe = regexp.MustCompile(`,\s*,`)
	selectCommaRe = regexp.MustCompile(`(?i)SELECT\s*,`)
)

func ensureGeoJSONOutputs(sql string) string {
	sqlLower := strings.ToLower(sql)

	pointPresent := false
	for _, t := range pointTables {
		if strings.Contains(sqlLower, "from "+t) || strings.Contains(sqlLower, "join "+t) {
			pointPresent = true
			break
		}
	}

	for _, table := range []string{TableGeology, TableFaults} {
		inFrom := strings.Contains(sqlLower, "from "+table)
		inJoin := strings.Contains(sqlLower, "join "+table)
		if !inFrom && !inJoin {
			continue
		}

		// Lat/lon extraction is invalid on non-point geometries; strip it
		// unless a point table is part of the query.
		if !pointPresent {
			sql = stripLatLonOutputs(sql)
			sqlLower = strings.ToLower(sql)
		}

		if !strings.Contains(sqlLower, "geojson_geom") {
			sql = insertGeoJSONOutput(sql, table)
			sqlLower = strings.ToLower(sql)
		}
	}
	return sql
}

func stripLatLonOutputs(sql string) string {
	sql = stripGeomOutput(sql, "st_y", "latitude")
	sql = stripGeomOutput(sql, "st_x", "longitude")
	sql = doubleCommaRe.ReplaceAllString(sql, ",")
	sql = selectCommaRe.ReplaceAllString(sql, "SELECT ")
	return sql
}

// stripGeomOutput removes every `<fn>(...) AS <alias>` projection, matching
// the parentheses by depth so nested transform expressions are consumed
// whole. A preceding list comma is removed with the projection.
func stripGeomOutput(sql, fn, alias string) string {
	fnRe := regexp.MustCompile(`(?i)\b` + fn + `\s*\(`)
	aliasRe := regexp.MustCompile(`(?i)^\s+AS\s+` + alias + `\b`)

	offset := 0
	for {
		loc := fnRe.FindStringIndex(sql[offset:])
		if loc == nil {
			return sql
		}
		fnStart := offset + loc[0]
		open := offset + loc[1] - 1

		close := matchingParen(sql, open)
		if close == -1 {
			return sql
		}

		aliasLoc := aliasRe.FindStringIndex(sql[close+1:])
		if aliasLoc == nil {
			offset = close + 1
			continue
		}
		end := close + 1 + aliasLoc[1]

		start := fnStart
		for start > 0 && (sql[start-1] == ' ' || sql[start-1] == '\t' || sql[start-1] == '\n') {
			start--
		}
		if start > 0 && sql[start-1] == ',' {
			start--
		}

		sql = sql[:start] + sql[end:]
		offset = start
	}
}

// matchingParen returns the index of the parenthesis closing the one at open,
// or -1 if unbalanced.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var sqlKeywords = map[string]bool{
	"where": true, "join": true, "on": true, "group": true, "order": true,
	"limit": true, "inner": true, "left": true, "right": true, "full": true,
	"cross": true, "union": true, "having": true, "offset": true, "as": true,
}

// insertGeoJSONOutput synthesizes a geojson_geom projection immediately
// before the table's FROM clause, using the table alias when one is present.
func insertGeoJSONOutput(sql, table string) string {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT") {
		return sql
	}

	fromRe := regexp.MustCompile(`(?i)\bFROM\s+` + table + `\b`)
	loc := fromRe.FindStringIndex(sql)
	if loc == nil {
		return sql
	}

	geomRef := "geom"
	aliasRe := regexp.MustCompile(`(?i)\bFROM\s+` + table + `\s+(?:AS\s+)?(\w+)`)
	if m := aliasRe.FindStringSubmatch(sql); m != nil && !sqlKeywords[strings.ToLower(m[1])] {
		geomRef = m[1] + ".geom"
	}

	before := strings.TrimRight(sql[:loc[0]], " \t\n")
	before = strings.TrimRight(before, ",")
	return before + ", " + fmt.Sprintf(geoJSONPattern, geomRef) + " " + sql[loc[0]:]
}

// --- rule 6: canonicalize the legacy table spelling ---

var boreholesRe = regexp.MustCompile(`(?i)\bboreholes\b`)

func fixTableSpelling(sql string) string {
	return boreholesRe.ReplaceAllString(sql, TableBorholes)
}

// --- rule 7: commodity AND -> OR ---

var commodityAndRe = regexp.MustCompile(`(?i)major_comm\s+ILIKE\s+('[^']+')\s+AND\s+minor_comm\s+ILIKE\s+('[^']+')`)

// fixCommodityLogic rewrites AND to OR when both commodity columns are
// filtered on the same literal. A single row never matches both columns with
// the same value, so the AND is always a model error. Differing literals are
// left alone.
func fixCommodityLogic(sql string) string {
	return commodityAndRe.ReplaceAllStringFunc(sql, func(match string) string {
		sub := commodityAndRe.FindStringSubmatch(match)
		if !strings.EqualFold(sub[1], sub[2]) {
			return match
		}
		return fmt.Sprintf("(major_comm ILIKE %s OR minor_comm ILIKE %s)", sub[1], sub[1])
	})
}

// --- rule 8: deduplicate join fan-out ---

var firstSelectRe = regexp.MustCompile(`(?i)\bSELECT\b`)

func ensureDistinctForJoins(sql string) string {
	upper := strings.ToUpper(sql)
	if !strings.Contains(upper, " JOIN ") || strings.Contains(upper, "DISTINCT") {
		return sql
	}
	loc := firstSelectRe.FindStringIndex(sql)
	if loc == nil {
		return sql
	}
	return sql[:loc[0]] + "SELECT DISTINCT" + sql[loc[1]:]
}
