package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"

	"github.com/orelake/orelake/pkg/catalog"
	"github.com/orelake/orelake/pkg/llm"
	"github.com/orelake/orelake/pkg/logger"
	"github.com/orelake/orelake/pkg/postgis"
	"github.com/orelake/orelake/pkg/sqlgen"
)

const maxCellWidth = 40

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	limit := pflag.Int("limit", 0, "row cap (0 uses the query's own limit, if any)")
	showSQL := pflag.Bool("sql", false, "print the generated SQL")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	if pflag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: orelake [flags] \"natural language query\"")
		pflag.PrintDefaults()
		os.Exit(2)
	}
	query := strings.Join(pflag.Args(), " ")

	log := logger.New(*verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := postgis.New(ctx, postgis.ConfigFromEnv(log))
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var generation llm.Client
	if strings.EqualFold(os.Getenv("LLM_PROVIDER"), "anthropic") {
		model := anthropic.Model(envOr("ANTHROPIC_MODEL", string(anthropic.ModelClaude3_5Haiku20241022)))
		generation = llm.NewAnthropicClient(log, model)
	} else {
		generation, err = llm.NewOllamaClient(llm.OllamaConfig{
			Logger:  log,
			BaseURL: envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:   envOr("OLLAMA_MODEL", "llama3.1"),
		})
		if err != nil {
			log.Error("failed to build ollama client", "error", err)
			os.Exit(1)
		}
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

	result := generator.Execute(ctx, query, *limit)
	if !result.Success {
		fmt.Fprintf(os.Stderr, "query failed after %d attempt(s): %s\n", result.Attempts, result.Error)
		os.Exit(1)
	}

	if *showSQL {
		fmt.Printf("SQL (%d attempt(s)):\n%s\n\n", result.Attempts, result.SQL)
	}
	if result.Description != "" {
		fmt.Println(result.Description)
	}

	renderRows(result.Data)

	suffix := ""
	if result.WasTruncated {
		suffix = " (truncated)"
	}
	fmt.Printf("%d row(s)%s\n", result.RowCount, suffix)
}

func renderRows(rows []map[string]any) {
	if len(rows) == 0 {
		return
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(columns)

	for _, row := range rows {
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, formatCell(row[col]))
		}
		table.Append(cells)
	}
	table.Render()
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	if len(s) > maxCellWidth {
		return s[:maxCellWidth-3] + "..."
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
