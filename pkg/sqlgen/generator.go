package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/orelake/orelake/pkg/llm"
)

// LLMClient is the slice of the model client the generator needs.
type LLMClient interface {
	GenerateJSON(ctx context.Context, prompt, system string, temperature float64) (map[string]any, error)
}

// Store is the slice of the database client the generator needs.
type Store interface {
	Explain(ctx context.Context, sql string) error
	ExecuteSafeQuery(ctx context.Context, sql string, maxRows int) ([]map[string]any, bool, error)
}

// ValueProvider supplies known attribute values for prompt grounding.
type ValueProvider interface {
	Values(table, column string) []string
}

// QuerySpec is a generated, repaired and classified SQL statement along with
// the model's account of it.
type QuerySpec struct {
	Reasoning      string       `json:"reasoning"`
	SQL            string       `json:"sql_query"`
	QueryType      GeometryKind `json:"query_type"`
	Description    string       `json:"description"`
	TablesUsed     []string     `json:"tables_used"`
	Attempts       int          `json:"attempts"`
	FailedAttempts []Attempt    `json:"failed_attempts,omitempty"`
}

// Attempt records one failed generation round for the retry transcript.
type Attempt struct {
	SQL   string `json:"sql"`
	Error string `json:"error"`
}

// Result is the outcome of executing a natural-language query end to end.
type Result struct {
	Success      bool             `json:"success"`
	Data         []map[string]any `json:"data,omitempty"`
	RowCount     int              `json:"row_count"`
	WasTruncated bool             `json:"was_truncated"`
	SQL          string           `json:"sql_query,omitempty"`
	QueryType    GeometryKind     `json:"query_type,omitempty"`
	Description  string           `json:"description,omitempty"`
	TablesUsed   []string         `json:"tables_used,omitempty"`
	NaturalQuery string           `json:"natural_query"`
	Attempts     int              `json:"attempts,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// ErrRetriesExhausted marks generation giving up after the attempt budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetriesExhaustedError carries the full failure transcript when every
// generation attempt produced SQL the database rejected.
type RetriesExhaustedError struct {
	Attempts int
	History  []Attempt
}

func (e *RetriesExhaustedError) Error() string {
	last := "no attempt produced SQL"
	if len(e.History) > 0 {
		last = e.History[len(e.History)-1].Error
	}
	return fmt.Sprintf("failed to generate valid SQL after %d attempts: %s", e.Attempts, last)
}

func (e *RetriesExhaustedError) Unwrap() error { return ErrRetriesExhausted }

const (
	defaultMaxAttempts = 4
	defaultTemperature = 0.1

	// Effectively unbounded cap for queries that carry no explicit limit.
	// The row cap then exists only to bound memory, and truncation at this
	// size is not reported to the caller.
	unboundedRowCap = 10_000_000
)

type Config struct {
	Logger      *slog.Logger
	LLM         LLMClient
	Store       Store
	Values      ValueProvider
	MaxAttempts int
	Temperature float64
}

func (c Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.LLM == nil {
		return errors.New("llm client is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Values == nil {
		return errors.New("value provider is required")
	}
	return nil
}

// Generator turns natural-language questions into validated spatial SQL.
type Generator struct {
	log         *slog.Logger
	llm         LLMClient
	store       Store
	values      ValueProvider
	template    string
	maxAttempts int
	temperature float64
}

func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	template, err := loadGeneratePrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt template: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	return &Generator{
		log:         cfg.Logger,
		llm:         cfg.LLM,
		store:       cfg.Store,
		values:      cfg.Values,
		template:    template,
		maxAttempts: cfg.MaxAttempts,
		temperature: cfg.Temperature,
	}, nil
}

// Generate runs a single generation round: prompt the model, parse its JSON,
// repair the SQL and classify the result geometry. The returned spec always
// carries non-empty SQL.
func (g *Generator) Generate(ctx context.Context, query string) (*QuerySpec, error) {
	processed := preprocessQuery(query)
	prompt := fmt.Sprintf("Generate SQL for: %q", processed)
	return g.generate(ctx, prompt)
}

func (g *Generator) generate(ctx context.Context, prompt string) (*QuerySpec, error) {
	system := buildSystemPrompt(g.template, g.values)

	obj, err := g.llm.GenerateJSON(ctx, prompt, system, g.temperature)
	if err != nil {
		return nil, err
	}

	spec, err := specFromResponse(obj)
	if err != nil {
		return nil, err
	}

	raw := spec.SQL
	spec.SQL = Repair(raw)
	if spec.SQL != raw {
		g.log.Debug("repaired generated SQL", "before", raw, "after", spec.SQL)
	}
	spec.QueryType = ClassifyGeometry(spec.SQL, spec.QueryType)
	return spec, nil
}

func specFromResponse(obj map[string]any) (*QuerySpec, error) {
	sql, _ := obj["sql_query"].(string)
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, fmt.Errorf("%w: missing or empty sql_query field", llm.ErrMalformedResponse)
	}

	spec := &QuerySpec{SQL: sql, QueryType: GeometryPoint}
	if s, ok := obj["reasoning"].(string); ok {
		spec.Reasoning = s
	}
	if s, ok := obj["query_type"].(string); ok && s != "" {
		spec.QueryType = GeometryKind(strings.ToLower(strings.TrimSpace(s)))
	}
	if s, ok := obj["description"].(string); ok {
		spec.Description = s
	}
	if tables, ok := obj["tables_used"].([]any); ok {
		for _, t := range tables {
			if s, ok := t.(string); ok {
				spec.TablesUsed = append(spec.TablesUsed, s)
			}
		}
	}
	return spec, nil
}

// GenerateWithRetry runs generation rounds until the database accepts the SQL
// in an EXPLAIN dry run, feeding each failure back into the next round's
// prompt. Transport-level model failures abort immediately; malformed model
// output and rejected SQL both consume an attempt.
func (g *Generator) GenerateWithRetry(ctx context.Context, query string) (*QuerySpec, error) {
	processed := preprocessQuery(query)

	var history []Attempt
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		var prompt string
		if len(history) == 0 {
			prompt = fmt.Sprintf("Generate SQL for: %q", processed)
		} else {
			prompt = regenerationPrompt(processed, history)
		}

		spec, err := g.generate(ctx, prompt)
		if err != nil {
			if errors.Is(err, llm.ErrServiceUnavailable) || errors.Is(err, llm.ErrService) {
				return nil, err
			}
			g.log.Warn("generation attempt failed", "attempt", attempt, "error", err)
			history = append(history, Attempt{SQL: "N/A", Error: err.Error()})
			continue
		}

		if err := g.store.Explain(ctx, spec.SQL); err != nil {
			g.log.Warn("generated SQL rejected by database",
				"attempt", attempt, "sql", spec.SQL, "error", err)
			history = append(history, Attempt{SQL: spec.SQL, Error: err.Error()})
			continue
		}

		spec.Attempts = attempt
		spec.FailedAttempts = history
		if attempt > 1 {
			g.log.Info("generation succeeded after retries", "attempts", attempt)
		}
		return spec, nil
	}

	return nil, &RetriesExhaustedError{Attempts: g.maxAttempts, History: history}
}

func regenerationPrompt(query string, history []Attempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate SQL for: %q\n\nPREVIOUS FAILED ATTEMPTS:\n", query)
	for i, a := range history {
		fmt.Fprintf(&b, "\nAttempt %d:\nSQL: %s\nError: %s\n", i+1, a.SQL, a.Error)
	}
	b.WriteString(`
Fix ALL of the errors above. Check for these common problems:
- Wrong table names (only mods, geology_master, geology_faults_contacts_master, borholes, surface_samples exist)
- Wrong column names (use gid, eng_name, major_comm, occ_imp, unit_name, newtype, main_litho)
- Spatial functions on raw geom without ST_SetSRID(geom, 3857)
- SELECT * instead of an explicit column list
- Missing geojson_geom output for polygon or line results
- AND instead of OR when searching major_comm and minor_comm for the same commodity

Generate a corrected query.`)
	return b.String()
}

// Execute is the end-to-end gateway: generate with retries, then run the SQL
// through the read-only executor. rowLimit overrides any limit phrased in the
// query; zero means infer it from the text.
func (g *Generator) Execute(ctx context.Context, query string, rowLimit int) *Result {
	res := &Result{NaturalQuery: query}

	spec, err := g.GenerateWithRetry(ctx, query)
	if err != nil {
		res.Error = err.Error()
		var exhausted *RetriesExhaustedError
		if errors.As(err, &exhausted) {
			res.Attempts = exhausted.Attempts
		}
		return res
	}

	res.SQL = spec.SQL
	res.QueryType = spec.QueryType
	res.Description = spec.Description
	res.TablesUsed = spec.TablesUsed
	res.Attempts = spec.Attempts

	requested := rowLimit
	if requested <= 0 {
		requested = extractRowLimit(query)
	}
	effective := requested
	if effective <= 0 {
		effective = unboundedRowCap
	}

	data, truncated, err := g.store.ExecuteSafeQuery(ctx, spec.SQL, effective)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.Data = data
	res.RowCount = len(data)
	res.WasTruncated = requested > 0 && truncated
	return res
}

var rowLimitRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btop\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\bfirst\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\bgive\s+me\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\bshow\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\bget\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\bnearest\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\b(\d+)\s+(?:nearest|closest|top|first)\b`),
	regexp.MustCompile(`(?i)\blimit\s+(?:to\s+)?(\d+)\b`),
}

// extractRowLimit reads a row count the user phrased in the question, or 0
// when none is present.
func extractRowLimit(query string) int {
	for _, re := range rowLimitRes {
		if m := re.FindStringSubmatch(query); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}
