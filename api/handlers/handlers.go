// Package handlers implements the HTTP endpoints of the API server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/orelake/orelake/pkg/analysis"
	"github.com/orelake/orelake/pkg/orchestrator"
	"github.com/orelake/orelake/pkg/rag"
	"github.com/orelake/orelake/pkg/schema"
	"github.com/orelake/orelake/pkg/sqlgen"
)

// SQLRunner executes one natural-language query end to end.
type SQLRunner interface {
	Execute(ctx context.Context, query string, rowLimit int) *sqlgen.Result
}

// Agent routes conversational input per session.
type Agent interface {
	Process(ctx context.Context, sessionID, input string) *orchestrator.Response
	Reset(sessionID string)
}

// Analyzer runs a named spatial analysis over a result subset.
type Analyzer interface {
	Run(ctx context.Context, key string, input analysis.Input, params analysis.Params) (*analysis.Result, error)
}

// RAG serves retrieval-augmented generation.
type RAG interface {
	Query(ctx context.Context, query string, topK int, hybrid bool) (*rag.QueryResult, error)
	AgenticQuery(ctx context.Context, query string, maxIterations int) (*rag.AgenticResult, error)
}

// KnowledgeIndexer rebuilds the RAG knowledge base.
type KnowledgeIndexer interface {
	IndexAll(ctx context.Context) error
}

// SchemaProvider serves the learned database schema.
type SchemaProvider interface {
	Snapshot(ctx context.Context) (*schema.Snapshot, error)
}

// DBPinger checks database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// LLMChecker checks language-model availability.
type LLMChecker interface {
	HealthCheck(ctx context.Context) error
}

type Config struct {
	Logger   *slog.Logger
	Runner   SQLRunner
	Agent    Agent
	Analyzer Analyzer
	RAG      RAG
	Indexer  KnowledgeIndexer
	Schema   SchemaProvider
	DB       DBPinger
	LLM      LLMChecker
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Runner == nil {
		return errors.New("runner is required")
	}
	if cfg.Agent == nil {
		return errors.New("agent is required")
	}
	if cfg.Analyzer == nil {
		return errors.New("analyzer is required")
	}
	if cfg.RAG == nil {
		return errors.New("rag is required")
	}
	if cfg.Indexer == nil {
		return errors.New("indexer is required")
	}
	if cfg.Schema == nil {
		return errors.New("schema is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.LLM == nil {
		return errors.New("llm is required")
	}
	return nil
}

// Handlers holds the endpoint dependencies.
type Handlers struct {
	log      *slog.Logger
	runner   SQLRunner
	agent    Agent
	analyzer Analyzer
	rag      RAG
	indexer  KnowledgeIndexer
	schema   SchemaProvider
	db       DBPinger
	llm      LLMChecker
}

func New(cfg Config) (*Handlers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Handlers{
		log:      cfg.Logger,
		runner:   cfg.Runner,
		agent:    cfg.Agent,
		analyzer: cfg.Analyzer,
		rag:      cfg.RAG,
		indexer:  cfg.Indexer,
		schema:   cfg.Schema,
		db:       cfg.DB,
		llm:      cfg.LLM,
	}, nil
}

const requestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID assigns each request a UUID, echoed in the response header and
// available to handlers via the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func internalError(msg string, err error) string {
	return fmt.Sprintf("%s: %v", msg, err)
}
