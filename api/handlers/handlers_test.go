package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/orelake/orelake/pkg/analysis"
	"github.com/orelake/orelake/pkg/orchestrator"
	"github.com/orelake/orelake/pkg/rag"
	"github.com/orelake/orelake/pkg/schema"
	"github.com/orelake/orelake/pkg/sqlgen"
)

type fakeRunner struct {
	result *sqlgen.Result
	query  string
	limit  int
}

func (f *fakeRunner) Execute(_ context.Context, query string, rowLimit int) *sqlgen.Result {
	f.query = query
	f.limit = rowLimit
	return f.result
}

type fakeAgent struct {
	response *orchestrator.Response
	session  string
	input    string
	resets   []string
}

func (f *fakeAgent) Process(_ context.Context, sessionID, input string) *orchestrator.Response {
	f.session = sessionID
	f.input = input
	return f.response
}

func (f *fakeAgent) Reset(sessionID string) { f.resets = append(f.resets, sessionID) }

type fakeAnalyzer struct {
	result *analysis.Result
	err    error
	key    string
	params analysis.Params
}

func (f *fakeAnalyzer) Run(_ context.Context, key string, _ analysis.Input, params analysis.Params) (*analysis.Result, error) {
	f.key = key
	f.params = params
	return f.result, f.err
}

type fakeRAG struct {
	result  *rag.QueryResult
	agentic *rag.AgenticResult
	err     error
}

func (f *fakeRAG) Query(_ context.Context, query string, _ int, _ bool) (*rag.QueryResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRAG) AgenticQuery(_ context.Context, query string, _ int) (*rag.AgenticResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.agentic, nil
}

type fakeIndexer struct {
	err   error
	calls int
}

func (f *fakeIndexer) IndexAll(context.Context) error {
	f.calls++
	return f.err
}

type fakeSchema struct {
	snap *schema.Snapshot
	err  error
}

func (f *fakeSchema) Snapshot(context.Context) (*schema.Snapshot, error) { return f.snap, f.err }

type fakeChecker struct{ err error }

func (f *fakeChecker) Ping(context.Context) error        { return f.err }
func (f *fakeChecker) HealthCheck(context.Context) error { return f.err }

type fixture struct {
	h        *Handlers
	runner   *fakeRunner
	agent    *fakeAgent
	analyzer *fakeAnalyzer
	rag      *fakeRAG
	indexer  *fakeIndexer
	schema   *fakeSchema
	db       *fakeChecker
	llm      *fakeChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runner:   &fakeRunner{result: &sqlgen.Result{Success: true, RowCount: 2, Attempts: 1}},
		agent:    &fakeAgent{response: &orchestrator.Response{Success: true, Response: "Found 2 results."}},
		analyzer: &fakeAnalyzer{result: &analysis.Result{Kind: "clustering", Summary: "2 clusters"}},
		rag: &fakeRAG{
			result:  &rag.QueryResult{Query: "q", Response: "answer", ChunksUsed: 3},
			agentic: &rag.AgenticResult{OriginalQuery: "q", FinalResponse: "refined answer"},
		},
		indexer: &fakeIndexer{},
		schema:  &fakeSchema{snap: &schema.Snapshot{Tables: map[string]schema.Table{}}},
		db:      &fakeChecker{},
		llm:     &fakeChecker{},
	}
	h, err := New(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Runner:   f.runner,
		Agent:    f.agent,
		Analyzer: f.analyzer,
		RAG:      f.rag,
		Indexer:  f.indexer,
		Schema:   f.schema,
		DB:       f.db,
		LLM:      f.llm,
	})
	require.NoError(t, err)
	f.h = h
	return f
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestExecuteQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.ExecuteQuery, QueryRequest{Query: "show gold deposits", RowLimit: 10})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "show gold deposits", f.runner.query)
	require.Equal(t, 10, f.runner.limit)

	var result sqlgen.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Equal(t, 2, result.RowCount)
}

func TestExecuteQueryRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.ExecuteQuery, QueryRequest{Query: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("not json")))
	rec = httptest.NewRecorder()
	f.h.ExecuteQuery(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessAgentDefaultsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.ProcessAgent, AgentRequest{Input: "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, orchestrator.DefaultSession, f.agent.session)
	require.Equal(t, "1", f.agent.input)
}

func TestProcessAgentUsesSessionID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.ProcessAgent, AgentRequest{Input: "show mines", SessionID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", f.agent.session)
}

func TestResetAgent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.ResetAgent, AgentRequest{SessionID: "bob"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"bob"}, f.agent.resets)
}

func TestRunAnalysis(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.RunAnalysis, AnalysisRequest{
		Analysis:   "clustering",
		Data:       []map[string]any{{"gid": 1}},
		DistanceKM: 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "clustering", f.analyzer.key)
	require.Equal(t, 10.0, f.analyzer.params.DistanceKM)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
}

func TestRunAnalysisReportsFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.analyzer.err = errors.New("no rows carry a gid")
	rec := postJSON(t, f.h.RunAnalysis, AnalysisRequest{
		Analysis: "clustering",
		Data:     []map[string]any{{"name": "x"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, false, resp["success"])
	require.Contains(t, resp["error"], "no rows carry a gid")
}

func TestRunAnalysisValidatesInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.RunAnalysis, AnalysisRequest{Data: []map[string]any{{"gid": 1}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, f.h.RunAnalysis, AnalysisRequest{Analysis: "clustering"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAnalyses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.h.ListAnalyses(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]analysis.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["point"], 6)
	require.Len(t, resp["line"], 4)
	require.Len(t, resp["polygon"], 3)
}

func TestRAGQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.RAGQuery, RAGQueryRequest{Query: "what tables exist?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rag.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "answer", resp.Response)
}

func TestRAGQueryAgenticMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := postJSON(t, f.h.RAGQuery, RAGQueryRequest{Query: "vague", Agentic: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rag.AgenticResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "refined answer", resp.FinalResponse)
}

func TestRAGQueryFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.rag.err = errors.New("embedding service offline")
	rec := postJSON(t, f.h.RAGQuery, RAGQueryRequest{Query: "anything"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "embedding service offline")
}

func TestRAGIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	f.h.RAGIndex(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.indexer.calls)
}

func TestListTables(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.schema.snap = &schema.Snapshot{Tables: map[string]schema.Table{
		"mods": {Name: "mods", RowCount: 5000, GeometryColumn: "geom", GeometryType: "POINT", SRID: 3857},
		"geology_master": {Name: "geology_master", RowCount: 1200, GeometryColumn: "geom",
			GeometryType: "MULTIPOLYGON", SRID: 3857},
	}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.h.ListTables(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tables []TableSummary `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tables, 2)
	require.Equal(t, "geology_master", resp.Tables[0].Name)
	require.Equal(t, "mods", resp.Tables[1].Name)
	require.Equal(t, int64(5000), resp.Tables[1].RowCount)
}

func TestGetTableSchema(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.schema.snap = &schema.Snapshot{Tables: map[string]schema.Table{
		"mods": {
			Name:     "mods",
			RowCount: 5000,
			Columns: []schema.Column{
				{Name: "gid", DataType: "integer"},
				{Name: "eng_name", DataType: "character varying", Nullable: true},
			},
		},
	}}

	r := chi.NewRouter()
	r.Get("/api/database/schema/{table}", f.h.GetTableSchema)

	req := httptest.NewRequest(http.MethodGet, "/api/database/schema/mods", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Table   string          `json:"table"`
		Columns []ColumnSummary `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "mods", resp.Table)
	require.Len(t, resp.Columns, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/database/schema/nope", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.h.Health(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
}

func TestHealthDegradedOnDatabaseFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.db.err = errors.New("connection refused")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.h.Health(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "degraded", resp["status"])
	require.Contains(t, resp["database"], "connection refused")
}

func TestHealthDegradedOnLLMFailureStays200(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.llm.err = errors.New("model not loaded")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.h.Health(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "degraded", resp["status"])
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestID(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	RequestID(next).ServeHTTP(rec, req)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	RequestID(next).ServeHTTP(rec, req)
	require.Equal(t, "fixed-id", seen)
	require.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorContains(t, err, "logger is required")
}
