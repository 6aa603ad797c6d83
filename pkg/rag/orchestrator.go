package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const ragSystemPrompt = `You are an expert geospatial mining database assistant with access to retrieved context.

You will receive:
1. User's natural language query
2. Retrieved relevant context from the knowledge base
3. Database schema information

Your job is to:
1. Understand the user's intent using the retrieved context
2. Generate appropriate SQL queries or provide answers based on context
3. If context is insufficient, indicate what additional information is needed

Use the retrieved context to:
- Understand domain-specific terminology
- Learn from similar past queries
- Get examples of correct SQL patterns
- Understand data relationships

Always prioritize accuracy over creativity. If you're uncertain, ask for clarification.`

const (
	defaultTopK          = 5
	defaultMaxIterations = 3
	answerTemperature    = 0.1
	refineTemperature    = 0.3
	promptPreviewLen     = 500
)

// Generator produces text completions.
type Generator interface {
	Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (string, error)
}

// Retriever serves similarity lookups over the indexed collections.
type Retriever interface {
	Search(ctx context.Context, collection string, embedding []float64, topK int) ([]Match, error)
}

type OrchestratorConfig struct {
	Logger   *slog.Logger
	LLM      Generator
	Embedder Embedder
	Store    Retriever
}

func (cfg *OrchestratorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LLM == nil {
		return errors.New("llm is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	return nil
}

// Orchestrator runs the retrieve, augment, generate pipeline.
type Orchestrator struct {
	log      *slog.Logger
	llm      Generator
	embedder Embedder
	store    Retriever
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Orchestrator{log: cfg.Logger, llm: cfg.LLM, embedder: cfg.Embedder, store: cfg.Store}, nil
}

// ContextSummary counts the retrieved chunks per collection.
type ContextSummary struct {
	SchemaChunks  int `json:"schema_chunks"`
	PatternChunks int `json:"pattern_chunks"`
	SampleChunks  int `json:"sample_chunks"`
	TotalChunks   int `json:"total_chunks"`
}

// QueryResult is one pass through the pipeline.
type QueryResult struct {
	Query           string             `json:"query"`
	Retrieved       map[string][]Match `json:"retrieved_context"`
	ContextSummary  ContextSummary     `json:"context_summary"`
	AugmentedPrompt string             `json:"augmented_prompt"`
	Response        string             `json:"response"`
	ChunksUsed      int                `json:"context_chunks_used"`
}

// Query retrieves context, augments the prompt and generates a response.
// With hybrid set, all three collections contribute; otherwise only the
// schema collection is searched.
func (o *Orchestrator) Query(ctx context.Context, query string, topK int, hybrid bool) (*QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	o.log.Info("embedding query", "query", truncateText(query, 50))
	embedding, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	collections := []string{CollectionSchema}
	if hybrid {
		collections = Collections
	}

	retrieved := make(map[string][]Match, len(collections))
	for _, name := range collections {
		matches, err := o.store.Search(ctx, name, embedding, topK)
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", name, err)
		}
		retrieved[name] = matches
	}

	contextText := formatContext(retrieved)
	prompt := augmentPrompt(query, contextText)

	o.log.Info("generating response with augmented context")
	response, err := o.llm.Generate(ctx, prompt, ragSystemPrompt, answerTemperature, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	summary := summarizeContext(retrieved)
	return &QueryResult{
		Query:           query,
		Retrieved:       retrieved,
		ContextSummary:  summary,
		AugmentedPrompt: truncateText(prompt, promptPreviewLen),
		Response:        response,
		ChunksUsed:      summary.TotalChunks,
	}, nil
}

// Iteration records one refinement round of the agentic loop.
type Iteration struct {
	Iteration   int    `json:"iteration"`
	Query       string `json:"query"`
	Response    string `json:"response"`
	ContextUsed int    `json:"context_used"`
}

// AgenticResult is the outcome of the iterative pipeline.
type AgenticResult struct {
	OriginalQuery string      `json:"original_query"`
	FinalQuery    string      `json:"final_query"`
	Iterations    []Iteration `json:"iterations"`
	FinalResponse string      `json:"final_response"`
}

// AgenticQuery runs the pipeline with iterative refinement. When a response
// signals uncertainty the model proposes a refined query and the loop runs
// again, up to maxIterations rounds.
func (o *Orchestrator) AgenticQuery(ctx context.Context, query string, maxIterations int) (*AgenticResult, error) {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	result := &AgenticResult{OriginalQuery: query, FinalQuery: query}
	current := query

	for i := 0; i < maxIterations; i++ {
		o.log.Info("agentic iteration", "round", i+1, "max", maxIterations)

		res, err := o.Query(ctx, current, defaultTopK, true)
		if err != nil {
			return nil, err
		}
		result.Iterations = append(result.Iterations, Iteration{
			Iteration:   i + 1,
			Query:       current,
			Response:    res.Response,
			ContextUsed: res.ChunksUsed,
		})
		result.FinalQuery = current
		result.FinalResponse = res.Response

		if !responseUncertain(res.Response) {
			break
		}

		refinement := fmt.Sprintf(`Original query: %s
Current response: %s

The response indicates uncertainty. Suggest a refined query that would help get a better answer.
Respond with ONLY the refined query, nothing else.`, query, res.Response)

		refined, err := o.llm.Generate(ctx, refinement, "", refineTemperature, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to refine query: %w", err)
		}
		current = strings.TrimSpace(refined)
		o.log.Info("refined query", "query", truncateText(current, 80))
	}

	return result, nil
}

func responseUncertain(response string) bool {
	lower := strings.ToLower(response)
	return strings.Contains(lower, "uncertain") || strings.Contains(lower, "not sure")
}

func formatContext(retrieved map[string][]Match) string {
	var sections []string

	if chunks := retrieved[CollectionSchema]; len(chunks) > 0 {
		sections = append(sections, "=== DATABASE SCHEMA CONTEXT ===")
		for _, chunk := range chunks {
			sections = append(sections, "- "+chunk.Content)
		}
	}

	if chunks := retrieved[CollectionPatterns]; len(chunks) > 0 {
		sections = append(sections, "\n=== RELEVANT QUERY PATTERNS ===")
		for _, chunk := range chunks {
			sections = append(sections, "- "+chunk.Content)
		}
	}

	if chunks := retrieved[CollectionSamples]; len(chunks) > 0 {
		sections = append(sections, "\n=== RELEVANT DATA EXAMPLES ===")
		if len(chunks) > 3 {
			chunks = chunks[:3]
		}
		for _, chunk := range chunks {
			sections = append(sections, "- "+chunk.Content)
		}
	}

	return strings.Join(sections, "\n")
}

func augmentPrompt(query, context string) string {
	return fmt.Sprintf(`User Query: %s

Retrieved Context from Knowledge Base:
%s

Based on the retrieved context above, please:
1. Understand the user's intent
2. Use the context to inform your response
3. Generate appropriate SQL or provide an answer

User Query: %s`, query, context, query)
}

func summarizeContext(retrieved map[string][]Match) ContextSummary {
	s := ContextSummary{
		SchemaChunks:  len(retrieved[CollectionSchema]),
		PatternChunks: len(retrieved[CollectionPatterns]),
		SampleChunks:  len(retrieved[CollectionSamples]),
	}
	s.TotalChunks = s.SchemaChunks + s.PatternChunks + s.SampleChunks
	return s
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
