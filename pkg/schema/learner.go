// Package schema learns the live database layout and the vocabulary users
// reach for when naming its columns. The learned snapshot backs prompt
// composition and term-to-column resolution, and is cached with a TTL so a
// migrated database is picked up without a restart.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/orelake/orelake/pkg/postgis"
)

const (
	defaultTTL  = time.Hour
	snapshotKey = "schema"
)

// Store is the slice of the database client the learner needs.
type Store interface {
	ListTables(ctx context.Context) ([]string, error)
	TableColumns(ctx context.Context, table string) ([]postgis.ColumnInfo, error)
	TableRowCount(ctx context.Context, table string) (int64, error)
	GeometryColumn(ctx context.Context, table string) (*postgis.GeometryInfo, error)
}

// Column is one learned column.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// Table is one learned table, spatial or not.
type Table struct {
	Name           string
	Columns        []Column
	RowCount       int64
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// Spatial reports whether the table carries a geometry column.
func (t Table) Spatial() bool { return t.GeometryColumn != "" }

// Snapshot is one learned view of the whole database.
type Snapshot struct {
	Tables   map[string]Table
	synonyms map[string]string
}

type Config struct {
	Logger *slog.Logger
	Store  Store
	TTL    time.Duration
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

// Learner builds and caches schema snapshots.
type Learner struct {
	log   *slog.Logger
	store Store
	ttl   time.Duration

	mu    sync.Mutex
	cache *ttlcache.Cache[string, *Snapshot]
}

func New(cfg Config) (*Learner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	l := &Learner{
		log:   cfg.Logger,
		store: cfg.Store,
		ttl:   cfg.TTL,
		cache: ttlcache.New[string, *Snapshot](
			ttlcache.WithTTL[string, *Snapshot](cfg.TTL),
			ttlcache.WithDisableTouchOnHit[string, *Snapshot](),
		),
	}
	go l.cache.Start()
	return l, nil
}

func (l *Learner) Close() {
	l.cache.Stop()
}

// Snapshot returns the cached schema, learning it from the database when the
// cache is cold or expired. Concurrent cold reads learn once.
func (l *Learner) Snapshot(ctx context.Context) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if item := l.cache.Get(snapshotKey); item != nil {
		return item.Value(), nil
	}

	snap, err := l.learn(ctx)
	if err != nil {
		return nil, err
	}
	l.cache.Set(snapshotKey, snap, l.ttl)
	return snap, nil
}

// Describe returns the current snapshot rendered as a prompt-ready block.
func (l *Learner) Describe(ctx context.Context) (string, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.Describe(), nil
}

// Invalidate drops the cached snapshot so the next read re-learns.
func (l *Learner) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Delete(snapshotKey)
	l.log.Info("schema cache invalidated")
}

func (l *Learner) learn(ctx context.Context) (*Snapshot, error) {
	started := time.Now()

	tables, err := l.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	snap := &Snapshot{Tables: make(map[string]Table, len(tables))}
	for _, name := range tables {
		cols, err := l.store.TableColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", name, err)
		}

		t := Table{Name: name, Columns: make([]Column, 0, len(cols))}
		for _, c := range cols {
			t.Columns = append(t.Columns, Column{Name: c.Name, DataType: c.DataType, Nullable: c.Nullable})
		}

		// Row count and geometry info are best effort; a permission error
		// on one table must not lose the rest of the schema.
		if count, err := l.store.TableRowCount(ctx, name); err == nil {
			t.RowCount = count
		} else {
			l.log.Warn("failed to count table rows", "table", name, "error", err)
		}
		if geom, err := l.store.GeometryColumn(ctx, name); err == nil && geom != nil {
			t.GeometryColumn = geom.Column
			t.GeometryType = geom.Type
			t.SRID = geom.SRID
		} else if err != nil {
			l.log.Warn("failed to read geometry info", "table", name, "error", err)
		}

		snap.Tables[name] = t
	}

	snap.synonyms = buildSynonyms(snap)
	l.log.Info("learned database schema",
		"tables", len(snap.Tables), "duration", time.Since(started))
	return snap, nil
}

// staticSynonyms maps the vocabulary users actually type to real column
// names. Misspellings that show up in practice are included.
var staticSynonyms = map[string]string{
	"area":     "terrane",
	"areas":    "terrane",
	"terrain":  "terrane",
	"terrains": "terrane",
	"zone":     "terrane",
	"zones":    "terrane",

	"formation":        "unit_name",
	"formations":       "unit_name",
	"rock type":        "main_litho",
	"lithology":        "main_litho",
	"lithology family": "litho_fmly",
	"rock family":      "litho_fmly",
	"volcanic":         "litho_fmly",
	"volcano":          "litho_fmly",
	"volcanos":         "litho_fmly",
	"volcanoes":        "litho_fmly",

	"mineral":     "major_comm",
	"minerals":    "major_comm",
	"commodity":   "major_comm",
	"commodities": "major_comm",
	"ore":         "major_comm",

	"name":         "eng_name",
	"english name": "eng_name",
	"arabic name":  "arb_name",

	"project":      "project_na",
	"project name": "project_na",

	"sample":      "sampleid",
	"sample id":   "sampleid",
	"sample type": "sampletype",
}

func buildSynonyms(snap *Snapshot) map[string]string {
	m := make(map[string]string)

	for _, t := range snap.Tables {
		for _, col := range t.Columns {
			lower := strings.ToLower(col.Name)
			m[lower] = col.Name
			if strings.Contains(lower, "_") {
				parts := strings.Split(lower, "_")
				m[strings.Join(parts, " ")] = col.Name
				m[parts[len(parts)-1]] = col.Name
			}
		}
	}

	// Curated synonyms win over derived ones.
	for term, col := range staticSynonyms {
		m[term] = col
	}
	return m
}

// ColumnForTerm resolves a user term to an actual column name. Exact synonym
// matches are tried first, then substring matches, then the named table's own
// columns. Empty string means no resolution.
func (s *Snapshot) ColumnForTerm(term, table string) string {
	termLower := strings.ToLower(strings.TrimSpace(term))
	if termLower == "" {
		return ""
	}

	if col, ok := s.synonyms[termLower]; ok {
		return col
	}

	// Deterministic iteration for the partial scan.
	keys := make([]string, 0, len(s.synonyms))
	for k := range s.synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(k, termLower) || strings.Contains(termLower, k) {
			return s.synonyms[k]
		}
	}

	if t, ok := s.Tables[table]; ok {
		for _, col := range t.Columns {
			colLower := strings.ToLower(col.Name)
			if strings.Contains(colLower, termLower) || strings.Contains(termLower, colLower) {
				return col.Name
			}
		}
	}
	return ""
}

// Describe renders the snapshot as a prompt-ready schema block.
func (s *Snapshot) Describe() string {
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("DATABASE SCHEMA (learned from live database):\n\n")
	for _, name := range names {
		t := s.Tables[name]
		fmt.Fprintf(&b, "TABLE: %s\n", t.Name)
		if t.Spatial() {
			fmt.Fprintf(&b, "- Geometry: %s (%s, SRID %d)\n", t.GeometryColumn, t.GeometryType, t.SRID)
		} else {
			b.WriteString("- Geometry: none\n")
		}
		fmt.Fprintf(&b, "- Rows: %d\n", t.RowCount)
		b.WriteString("- Columns:\n")
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "  - %s: %s\n", col.Name, col.DataType)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
