// Package orchestrator routes user input between SQL generation and spatial
// analysis, holding the last result per session so short follow-ups like "1"
// or "run clustering" can operate on it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/orelake/orelake/pkg/analysis"
	"github.com/orelake/orelake/pkg/sqlgen"
)

const (
	defaultSessionTTL = 30 * time.Minute

	// DefaultSession is used when the caller does not track sessions.
	DefaultSession = "default"
)

// SQLRunner is the end-to-end query gateway.
type SQLRunner interface {
	Execute(ctx context.Context, query string, rowLimit int) *sqlgen.Result
}

// Analyzer runs spatial analyses.
type Analyzer interface {
	Run(ctx context.Context, key string, input analysis.Input, params analysis.Params) (*analysis.Result, error)
}

// Response is what a conversational turn returns: either query results with
// optional analysis suggestions, or an analysis result.
type Response struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`

	Data      []map[string]any    `json:"data,omitempty"`
	RowCount  int                 `json:"row_count,omitempty"`
	QueryType sqlgen.GeometryKind `json:"query_type,omitempty"`
	SQL       string              `json:"sql_query,omitempty"`

	AnalysisAvailable bool                  `json:"analysis_available"`
	AnalysisOptions   []analysis.Descriptor `json:"analysis_options,omitempty"`

	AnalysisType  string         `json:"analysis_type,omitempty"`
	AnalysisStats map[string]any `json:"results,omitempty"`
	IsAnalysis    bool           `json:"is_analysis_result,omitempty"`
}

// session is the per-conversation state: the last query result and the
// suggestion list its numbers refer to.
type session struct {
	last        *sqlgen.Result
	suggestions []analysis.Descriptor
}

type Config struct {
	Logger     *slog.Logger
	Runner     SQLRunner
	Analyzer   Analyzer
	SessionTTL time.Duration
}

func (c Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Runner == nil {
		return errors.New("sql runner is required")
	}
	if c.Analyzer == nil {
		return errors.New("analyzer is required")
	}
	return nil
}

type Orchestrator struct {
	log      *slog.Logger
	runner   SQLRunner
	analyzer Analyzer
	sessions *ttlcache.Cache[string, *session]
}

func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	o := &Orchestrator{
		log:      cfg.Logger,
		runner:   cfg.Runner,
		analyzer: cfg.Analyzer,
		sessions: ttlcache.New[string, *session](
			ttlcache.WithTTL[string, *session](cfg.SessionTTL),
		),
	}
	go o.sessions.Start()
	return o, nil
}

func (o *Orchestrator) Close() {
	o.sessions.Stop()
}

func (o *Orchestrator) session(id string) *session {
	if id == "" {
		id = DefaultSession
	}
	if item := o.sessions.Get(id); item != nil {
		return item.Value()
	}
	s := &session{}
	o.sessions.Set(id, s, ttlcache.DefaultTTL)
	return s
}

// Reset drops a session's state.
func (o *Orchestrator) Reset(sessionID string) {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	o.sessions.Delete(sessionID)
}

// Process handles one conversational turn.
func (o *Orchestrator) Process(ctx context.Context, sessionID, input string) *Response {
	input = strings.TrimSpace(input)
	if input == "" {
		return &Response{Success: false, Error: "empty input", Response: "Please enter a query."}
	}

	sess := o.session(sessionID)

	if key, ok := detectAnalysisRequest(input, sess.suggestions); ok {
		return o.handleAnalysis(ctx, sess, key)
	}

	// New question: any open suggestion list is stale now.
	sess.suggestions = nil
	return o.handleQuery(ctx, sess, input)
}

func (o *Orchestrator) handleQuery(ctx context.Context, sess *session, query string) *Response {
	o.log.Info("processing data query", "query", truncate(query, 100))

	res := o.runner.Execute(ctx, query, 0)
	if !res.Success {
		return &Response{
			Success:  false,
			Error:    res.Error,
			Response: fmt.Sprintf("Sorry, I couldn't process that query: %s", res.Error),
			SQL:      res.SQL,
		}
	}

	sess.last = res

	suggestions := analysis.Suggest(res.Data, res.QueryType, res.TablesUsed)
	sess.suggestions = suggestions.Analyses

	var b strings.Builder
	if res.Description != "" {
		b.WriteString(res.Description)
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "Found %d results.", res.RowCount)
	if res.WasTruncated {
		b.WriteString(" (truncated)")
	}
	if suggestions.CanAnalyze {
		b.WriteString("\n\n")
		b.WriteString(suggestions.Text)
	}

	return &Response{
		Success:           true,
		Response:          b.String(),
		Data:              res.Data,
		RowCount:          res.RowCount,
		QueryType:         res.QueryType,
		SQL:               res.SQL,
		AnalysisAvailable: suggestions.CanAnalyze,
		AnalysisOptions:   suggestions.Analyses,
	}
}

func (o *Orchestrator) handleAnalysis(ctx context.Context, sess *session, key string) *Response {
	if sess.last == nil || len(sess.last.Data) == 0 {
		return &Response{
			Success:  false,
			Error:    "no data available for analysis",
			Response: "Please run a query first to get data for analysis.",
		}
	}

	o.log.Info("processing analysis request", "analysis", key)

	input := analysis.Input{
		Data:      sess.last.Data,
		QueryType: sess.last.QueryType,
		Tables:    sess.last.TablesUsed,
	}
	result, err := o.analyzer.Run(ctx, key, input, analysis.Params{})
	if err != nil {
		return &Response{
			Success:  false,
			Error:    err.Error(),
			Response: fmt.Sprintf("Analysis failed: %s", err),
		}
	}

	return &Response{
		Success:       true,
		Response:      result.Summary,
		Data:          result.Data,
		AnalysisType:  result.Kind,
		AnalysisStats: result.Stats,
		IsAnalysis:    true,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
