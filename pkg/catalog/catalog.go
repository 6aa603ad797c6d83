// Package catalog maintains the per-column distinct-value catalog sampled
// from the live database, and the priority-ranked reverse index from observed
// value to its (table, column) attributions. Both are built once at startup
// and swapped atomically on refresh so concurrent readers never observe a
// half-populated catalog.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// valueLimit caps the distinct values sampled per column.
const valueLimit = 100

// registeredColumns lists the (table, column) pairs worth sampling. These are
// the filterable text columns of the five spatial tables.
var registeredColumns = map[string][]string{
	"mods": {
		"major_comm", "minor_comm", "region", "occ_imp", "occ_type",
		"occ_status", "structural", "host_rocks", "alteration",
		"min_morpho", "trace_comm",
	},
	"geology_master": {
		"litho_fmly", "main_litho", "family_dv", "terrane",
		"era", "eon", "period", "epoch", "unit_name",
	},
	"geology_faults_contacts_master": {"newtype"},
	"borholes":                       {"borehole_t", "elements", "project_na"},
	"surface_samples":                {"sampletype", "elements"},
}

// columnPriority ranks how strongly a column's values identify user intent.
// Unlisted columns get the generic priority 20.
var columnPriority = map[string]int{
	"region":     100,
	"occ_imp":    90,
	"occ_type":   90,
	"era":        80,
	"terrane":    75,
	"litho_fmly": 70,
	"major_comm": 60,
	"minor_comm": 55,
	"main_litho": 50,
	"family_dv":  50,
	"newtype":    50,
}

const genericPriority = 20

// Store is the database surface the catalog needs.
type Store interface {
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
}

// Attribution is one candidate source for an observed value.
type Attribution struct {
	Table         string
	Column        string
	OriginalValue string
	Priority      int
}

// snapshot is an immutable build of the catalog plus its reverse index.
type snapshot struct {
	values  map[string]map[string][]string
	reverse map[string][]Attribution
}

// Config holds the configuration for the catalog.
type Config struct {
	Logger *slog.Logger
	Store  Store
}

// Catalog holds column values sampled from the live database.
type Catalog struct {
	log   *slog.Logger
	store Store
	snap  atomic.Pointer[snapshot]
}

// New creates a new, empty Catalog. Call Load before serving requests.
func New(cfg Config) (*Catalog, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	c := &Catalog{log: cfg.Logger, store: cfg.Store}
	c.snap.Store(&snapshot{
		values:  map[string]map[string][]string{},
		reverse: map[string][]Attribution{},
	})
	return c, nil
}

// Load samples distinct values for every registered column and swaps in the
// fresh snapshot. Transient database errors during startup are retried with
// exponential backoff; a column that keeps failing is recorded empty rather
// than failing the whole build.
func (c *Catalog) Load(ctx context.Context) error {
	start := time.Now()
	fresh := &snapshot{
		values:  make(map[string]map[string][]string, len(registeredColumns)),
		reverse: make(map[string][]Attribution),
	}

	for table, columns := range registeredColumns {
		fresh.values[table] = make(map[string][]string, len(columns))
		for _, column := range columns {
			values, err := c.loadColumn(ctx, table, column)
			if err != nil {
				if c.log != nil {
					c.log.Warn("catalog: failed to load column values",
						"table", table, "column", column, "error", err)
				}
				fresh.values[table][column] = nil
				continue
			}
			fresh.values[table][column] = values
		}
	}

	buildReverse(fresh)
	c.snap.Store(fresh)

	if c.log != nil {
		c.log.Info("catalog: loaded column values",
			"tables", len(fresh.values),
			"uniqueValues", len(fresh.reverse),
			"duration", time.Since(start))
	}
	return nil
}

func (c *Catalog) loadColumn(ctx context.Context, table, column string) ([]string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() ([]string, error) {
		raw, err := c.store.DistinctValues(ctx, table, column, valueLimit)
		if err != nil {
			return nil, err
		}
		values := make([]string, 0, len(raw))
		for _, v := range raw {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		return values, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(4))
}

// buildReverse derives the reverse index from the sampled values.
func buildReverse(s *snapshot) {
	for table, columns := range s.values {
		for column, values := range columns {
			priority, ok := columnPriority[column]
			if !ok {
				priority = genericPriority
			}
			for _, value := range values {
				key := strings.ToLower(value)
				s.reverse[key] = append(s.reverse[key], Attribution{
					Table:         table,
					Column:        column,
					OriginalValue: value,
					Priority:      priority,
				})
			}
		}
	}
	for key := range s.reverse {
		attrs := s.reverse[key]
		sort.SliceStable(attrs, func(i, j int) bool {
			return attrs[i].Priority > attrs[j].Priority
		})
	}
}

// Refresh rebuilds the catalog from the live database.
func (c *Catalog) Refresh(ctx context.Context) error {
	return c.Load(ctx)
}

// Values returns the sampled distinct values for a column, in database return
// order. The returned slice must not be modified.
func (c *Catalog) Values(table, column string) []string {
	return c.snap.Load().values[table][column]
}

// Lookup returns the candidate attributions for an observed value, sorted by
// descending priority. Matching is case-insensitive.
func (c *Catalog) Lookup(value string) []Attribution {
	return c.snap.Load().reverse[strings.ToLower(strings.TrimSpace(value))]
}

// Tables returns the registered table names.
func Tables() []string {
	tables := make([]string, 0, len(registeredColumns))
	for t := range registeredColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
