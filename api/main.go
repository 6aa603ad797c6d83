package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/orelake/orelake/api/handlers"
	"github.com/orelake/orelake/api/metrics"
	"github.com/orelake/orelake/pkg/analysis"
	"github.com/orelake/orelake/pkg/catalog"
	"github.com/orelake/orelake/pkg/llm"
	"github.com/orelake/orelake/pkg/logger"
	"github.com/orelake/orelake/pkg/orchestrator"
	"github.com/orelake/orelake/pkg/postgis"
	"github.com/orelake/orelake/pkg/rag"
	"github.com/orelake/orelake/pkg/schema"
	"github.com/orelake/orelake/pkg/sqlgen"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	listenAddr := pflag.String("listen", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	corsOrigins := pflag.String("cors-origins", envOr("CORS_ORIGINS", "http://localhost:5173"), "comma-separated allowed CORS origins")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	log := logger.New(*verbose)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := postgis.New(ctx, postgis.ConfigFromEnv(log))
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ollama, err := llm.NewOllamaClient(llm.OllamaConfig{
		Logger:  log,
		BaseURL: envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		Model:   envOr("OLLAMA_MODEL", "llama3.1"),
	})
	if err != nil {
		log.Error("failed to build ollama client", "error", err)
		os.Exit(1)
	}

	// Generation can run against Anthropic instead of the local Ollama
	// server; embeddings always come from Ollama.
	var generation llm.Client = ollama
	if strings.EqualFold(os.Getenv("LLM_PROVIDER"), "anthropic") {
		model := anthropic.Model(envOr("ANTHROPIC_MODEL", string(anthropic.ModelClaude3_5Haiku20241022)))
		generation = llm.NewAnthropicClient(log, model)
		log.Info("using anthropic for generation", "model", model)
	}

	values, err := catalog.New(catalog.Config{Logger: log, Store: db})
	if err != nil {
		log.Error("failed to build value catalog", "error", err)
		os.Exit(1)
	}
	if err := values.Load(ctx); err != nil {
		log.Error("failed to load value catalog", "error", err)
		os.Exit(1)
	}

	learner, err := schema.New(schema.Config{Logger: log, Store: db})
	if err != nil {
		log.Error("failed to build schema learner", "error", err)
		os.Exit(1)
	}
	defer learner.Close()

	generator, err := sqlgen.New(sqlgen.Config{
		Logger: log,
		LLM:    generation,
		Store:  db,
		Values: values,
	})
	if err != nil {
		log.Error("failed to build sql generator", "error", err)
		os.Exit(1)
	}

	agent, err := analysis.NewAgent(analysis.Config{Logger: log, Store: db})
	if err != nil {
		log.Error("failed to build analysis agent", "error", err)
		os.Exit(1)
	}

	router, err := orchestrator.New(orchestrator.Config{
		Logger:   log,
		Runner:   generator,
		Analyzer: agent,
	})
	if err != nil {
		log.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	ragStore, err := rag.NewStore(rag.StoreConfig{Logger: log, DB: db})
	if err != nil {
		log.Error("failed to build rag store", "error", err)
		os.Exit(1)
	}
	indexer, err := rag.NewIndexer(rag.IndexerConfig{
		Logger:   log,
		Store:    ragStore,
		Embedder: ollama,
		Schema:   learner,
		DB:       db,
	})
	if err != nil {
		log.Error("failed to build rag indexer", "error", err)
		os.Exit(1)
	}
	ragOrch, err := rag.NewOrchestrator(rag.OrchestratorConfig{
		Logger:   log,
		LLM:      generation,
		Embedder: ollama,
		Store:    ragStore,
	})
	if err != nil {
		log.Error("failed to build rag orchestrator", "error", err)
		os.Exit(1)
	}

	h, err := handlers.New(handlers.Config{
		Logger:   log,
		Runner:   generator,
		Agent:    router,
		Analyzer: agent,
		RAG:      ragOrch,
		Indexer:  indexer,
		Schema:   learner,
		DB:       db,
		LLM:      ollama,
	})
	if err != nil {
		log.Error("failed to build handlers", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(handlers.RequestID)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(*corsOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID", "X-Session-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/health", h.Health)
	r.Post("/api/query", h.ExecuteQuery)
	r.Post("/api/agent", h.ProcessAgent)
	r.Post("/api/agent/reset", h.ResetAgent)
	r.Post("/api/analysis/run", h.RunAnalysis)
	r.Get("/api/analysis/catalog", h.ListAnalyses)
	r.Post("/api/rag/query", h.RAGQuery)
	r.Post("/api/rag/index", h.RAGIndex)
	r.Get("/api/database/tables", h.ListTables)
	r.Get("/api/database/schema/{table}", h.GetTableSchema)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    *listenAddr,
		Handler: r,
	}

	go func() {
		log.Info("API server starting", "addr", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gracefully")

	// Give existing connections 30 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown error", "error", err)
	} else {
		log.Info("server stopped gracefully")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
