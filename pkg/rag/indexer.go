package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/orelake/orelake/pkg/sqlgen"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SchemaSource provides the prompt-ready schema description.
type SchemaSource interface {
	Describe(ctx context.Context) (string, error)
}

// SampleDB reads rows for data-sample indexing.
type SampleDB interface {
	ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

const defaultSampleSize = 50

type IndexerConfig struct {
	Logger     *slog.Logger
	Store      *Store
	Embedder   Embedder
	Schema     SchemaSource
	DB         SampleDB
	SampleSize int
}

func (cfg *IndexerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Schema == nil {
		return errors.New("schema source is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	return nil
}

// Indexer populates the document store with schema chunks, query patterns
// and data samples.
type Indexer struct {
	log        *slog.Logger
	store      *Store
	embedder   Embedder
	schema     SchemaSource
	db         SampleDB
	sampleSize int
}

func NewIndexer(cfg IndexerConfig) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	size := cfg.SampleSize
	if size <= 0 {
		size = defaultSampleSize
	}
	return &Indexer{
		log:        cfg.Logger,
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		schema:     cfg.Schema,
		db:         cfg.DB,
		sampleSize: size,
	}, nil
}

// IndexAll rebuilds every collection.
func (ix *Indexer) IndexAll(ctx context.Context) error {
	if err := ix.store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := ix.IndexSchema(ctx); err != nil {
		return fmt.Errorf("failed to index schema: %w", err)
	}
	if err := ix.IndexQueryPatterns(ctx); err != nil {
		return fmt.Errorf("failed to index query patterns: %w", err)
	}
	if err := ix.IndexDataSamples(ctx); err != nil {
		return fmt.Errorf("failed to index data samples: %w", err)
	}
	stats, err := ix.store.Stats(ctx)
	if err != nil {
		return err
	}
	ix.log.Info("knowledge base indexing complete", "stats", stats)
	return nil
}

// IndexSchema chunks the live schema description per table, plus one chunk
// holding the full text for broad questions.
func (ix *Indexer) IndexSchema(ctx context.Context) error {
	text, err := ix.schema.Describe(ctx)
	if err != nil {
		return fmt.Errorf("failed to describe schema: %w", err)
	}

	chunks := chunkSchema(text)
	docs := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		emb, err := ix.embedder.Embed(ctx, chunk.text)
		if err != nil {
			return fmt.Errorf("failed to embed schema chunk %d: %w", i, err)
		}
		docs = append(docs, Document{
			ID:      fmt.Sprintf("schema_%d", i),
			Content: chunk.text,
			Metadata: map[string]any{
				"type":     "schema",
				"chunk_id": i,
				"table":    chunk.table,
			},
			Embedding: emb,
		})
	}
	return ix.store.Add(ctx, CollectionSchema, docs)
}

type patternDoc struct {
	text string
	meta map[string]any
}

// queryPatterns are curated example intents the generator benefits from
// seeing verbatim, including the borholes spelling trap.
var queryPatterns = []patternDoc{
	{
		text: "Find all gold deposits in the database. Use the mods table and filter by major_comm containing 'gold'.",
		meta: map[string]any{"type": "pattern", "intent": "filter_by_commodity", "table": sqlgen.TableDeposits},
	},
	{
		text: "Show all boreholes. Use the borholes table (note: spelled 'borholes' not 'boreholes').",
		meta: map[string]any{"type": "pattern", "intent": "list_all", "table": sqlgen.TableBorholes},
	},
	{
		text: "Find mineral deposits in a specific region. Use mods table with region column filter.",
		meta: map[string]any{"type": "pattern", "intent": "filter_by_region", "table": sqlgen.TableDeposits},
	},
	{
		text: "Show gold deposits near faults. Join mods with geology_faults_contacts_master using ST_DWithin for proximity.",
		meta: map[string]any{"type": "pattern", "intent": "spatial_join", "tables": sqlgen.TableDeposits + "," + sqlgen.TableFaults},
	},
	{
		text: "Find deposits within volcanic areas. Join mods with geology_master using ST_Intersects.",
		meta: map[string]any{"type": "pattern", "intent": "spatial_intersection", "tables": sqlgen.TableDeposits + "," + sqlgen.TableGeology},
	},
	{
		text: "Get surface samples with specific elements. Use surface_samples table and filter by elements column.",
		meta: map[string]any{"type": "pattern", "intent": "filter_by_element", "table": sqlgen.TableSamples},
	},
	{
		text: "For point geometries, always output latitude and longitude using ST_Y and ST_X with proper SRID transformation.",
		meta: map[string]any{"type": "pattern", "intent": "geometry_output", "geometry_type": "point"},
	},
	{
		text: "For polygon geometries, output GeoJSON using ST_AsGeoJSON with proper SRID transformation.",
		meta: map[string]any{"type": "pattern", "intent": "geometry_output", "geometry_type": "polygon"},
	},
}

// IndexQueryPatterns stores the curated pattern corpus.
func (ix *Indexer) IndexQueryPatterns(ctx context.Context) error {
	docs := make([]Document, 0, len(queryPatterns))
	for i, p := range queryPatterns {
		emb, err := ix.embedder.Embed(ctx, p.text)
		if err != nil {
			return fmt.Errorf("failed to embed query pattern %d: %w", i, err)
		}
		docs = append(docs, Document{
			ID:        fmt.Sprintf("pattern_%d", i),
			Content:   p.text,
			Metadata:  p.meta,
			Embedding: emb,
		})
	}
	return ix.store.Add(ctx, CollectionPatterns, docs)
}

// IndexDataSamples pulls representative rows and stores them as prose.
func (ix *Indexer) IndexDataSamples(ctx context.Context) error {
	perTable := ix.sampleSize / 3
	if perTable < 1 {
		perTable = 1
	}

	docs := make([]Document, 0, ix.sampleSize)

	depositRows, err := ix.db.ExecuteQuery(ctx,
		"SELECT eng_name, arb_name, major_comm, minor_comm, region, occ_imp FROM "+sqlgen.TableDeposits+
			" WHERE major_comm IS NOT NULL LIMIT $1", perTable)
	if err != nil {
		return fmt.Errorf("failed to sample deposits: %w", err)
	}
	for _, row := range depositRows {
		text := fmt.Sprintf("Mineral deposit: %s (%s). Major commodity: %s. Region: %s. Importance: %s.",
			fieldOr(row, "eng_name", "Unknown"), fieldOr(row, "arb_name", ""),
			fieldOr(row, "major_comm", "N/A"), fieldOr(row, "region", "N/A"),
			fieldOr(row, "occ_imp", "N/A"))
		docs = append(docs, Document{
			Content: text,
			Metadata: map[string]any{
				"type":      "data_sample",
				"table":     sqlgen.TableDeposits,
				"commodity": fieldOr(row, "major_comm", ""),
				"region":    fieldOr(row, "region", ""),
			},
		})
	}

	boreholeRows, err := ix.db.ExecuteQuery(ctx,
		"SELECT project_na, borehole_i, elements FROM "+sqlgen.TableBorholes+
			" WHERE elements IS NOT NULL LIMIT $1", perTable)
	if err != nil {
		return fmt.Errorf("failed to sample boreholes: %w", err)
	}
	for _, row := range boreholeRows {
		text := fmt.Sprintf("Borehole: %s in project %s. Elements detected: %s.",
			fieldOr(row, "borehole_i", "Unknown"), fieldOr(row, "project_na", "Unknown"),
			fieldOr(row, "elements", "N/A"))
		docs = append(docs, Document{
			Content: text,
			Metadata: map[string]any{
				"type":    "data_sample",
				"table":   sqlgen.TableBorholes,
				"project": fieldOr(row, "project_na", ""),
			},
		})
	}

	sampleRows, err := ix.db.ExecuteQuery(ctx,
		"SELECT sampleid, sampletype, elements FROM "+sqlgen.TableSamples+
			" WHERE elements IS NOT NULL LIMIT $1", perTable)
	if err != nil {
		return fmt.Errorf("failed to sample surface samples: %w", err)
	}
	for _, row := range sampleRows {
		text := fmt.Sprintf("Surface sample: %s of type %s. Elements: %s.",
			fieldOr(row, "sampleid", "Unknown"), fieldOr(row, "sampletype", "Unknown"),
			fieldOr(row, "elements", "N/A"))
		docs = append(docs, Document{
			Content: text,
			Metadata: map[string]any{
				"type":        "data_sample",
				"table":       sqlgen.TableSamples,
				"sample_type": fieldOr(row, "sampletype", ""),
			},
		})
	}

	if len(docs) == 0 {
		ix.log.Warn("no data samples found to index")
		return nil
	}

	for i := range docs {
		docs[i].ID = fmt.Sprintf("sample_%d", i)
		emb, err := ix.embedder.Embed(ctx, docs[i].Content)
		if err != nil {
			return fmt.Errorf("failed to embed data sample %d: %w", i, err)
		}
		docs[i].Embedding = emb
	}
	return ix.store.Add(ctx, CollectionSamples, docs)
}

type schemaChunk struct {
	table string
	text  string
}

// chunkSchema splits a schema description into one chunk per TABLE block
// plus a trailing chunk holding the whole text.
func chunkSchema(text string) []schemaChunk {
	var chunks []schemaChunk
	var table string
	var lines []string

	flush := func() {
		if table != "" && len(lines) > 0 {
			chunks = append(chunks, schemaChunk{table: table, text: strings.Join(lines, "\n")})
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "TABLE:") {
			flush()
			fields := strings.Fields(strings.TrimSpace(strings.TrimPrefix(line, "TABLE:")))
			table = ""
			if len(fields) > 0 {
				table = fields[0]
			}
			lines = []string{line}
		} else if line != "" && table != "" {
			lines = append(lines, line)
		}
	}
	flush()

	chunks = append(chunks, schemaChunk{table: "general", text: text})
	return chunks
}

func fieldOr(row map[string]any, key, fallback string) string {
	if v, ok := row[key]; ok && v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
		return fmt.Sprint(v)
	}
	return fallback
}
