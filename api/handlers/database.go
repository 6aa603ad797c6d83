package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

type TableSummary struct {
	Name         string `json:"name"`
	RowCount     int64  `json:"row_count"`
	GeometryType string `json:"geometry_type,omitempty"`
	SRID         int    `json:"srid,omitempty"`
}

// ListTables returns the learned tables with row counts and geometry info.
func (h *Handlers) ListTables(w http.ResponseWriter, r *http.Request) {
	snap, err := h.schema.Snapshot(r.Context())
	if err != nil {
		http.Error(w, internalError("Failed to learn schema", err), http.StatusInternalServerError)
		return
	}

	tables := make([]TableSummary, 0, len(snap.Tables))
	for _, t := range snap.Tables {
		tables = append(tables, TableSummary{
			Name:         t.Name,
			RowCount:     t.RowCount,
			GeometryType: t.GeometryType,
			SRID:         t.SRID,
		})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

type ColumnSummary struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// GetTableSchema returns the columns of one learned table.
func (h *Handlers) GetTableSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")

	snap, err := h.schema.Snapshot(r.Context())
	if err != nil {
		http.Error(w, internalError("Failed to learn schema", err), http.StatusInternalServerError)
		return
	}

	table, ok := snap.Tables[name]
	if !ok {
		http.Error(w, "Table not found", http.StatusNotFound)
		return
	}

	columns := make([]ColumnSummary, 0, len(table.Columns))
	for _, c := range table.Columns {
		columns = append(columns, ColumnSummary{Name: c.Name, DataType: c.DataType, Nullable: c.Nullable})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"table":         table.Name,
		"row_count":     table.RowCount,
		"geometry_type": table.GeometryType,
		"srid":          table.SRID,
		"columns":       columns,
	})
}

// Health reports database and language-model availability. The response is
// 200 with per-dependency status; 503 when the database is unreachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	} else {
		status["database"] = "ok"
	}

	if err := h.llm.HealthCheck(r.Context()); err != nil {
		status["status"] = "degraded"
		status["llm"] = err.Error()
	} else {
		status["llm"] = "ok"
	}

	writeJSON(w, code, status)
}
