package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/orelake/orelake/api/metrics"
	"github.com/orelake/orelake/pkg/analysis"
	"github.com/orelake/orelake/pkg/sqlgen"
)

type AnalysisRequest struct {
	Analysis   string              `json:"analysis"`
	Data       []map[string]any    `json:"data"`
	QueryType  sqlgen.GeometryKind `json:"query_type,omitempty"`
	Tables     []string            `json:"tables,omitempty"`
	DistanceKM float64             `json:"distance_km,omitempty"`
	MinPoints  int                 `json:"min_points,omitempty"`
	BufferKM   float64             `json:"buffer_km,omitempty"`
}

// RunAnalysis executes a named spatial analysis over caller-supplied rows.
func (h *Handlers) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Analysis == "" {
		http.Error(w, "analysis is required", http.StatusBadRequest)
		return
	}
	if len(req.Data) == 0 {
		http.Error(w, "data is required", http.StatusBadRequest)
		return
	}

	input := analysis.Input{
		Data:      req.Data,
		QueryType: req.QueryType,
		Tables:    req.Tables,
	}
	params := analysis.Params{
		DistanceKM: req.DistanceKM,
		MinPoints:  req.MinPoints,
		BufferKM:   req.BufferKM,
	}

	result, err := h.analyzer.Run(r.Context(), req.Analysis, input, params)
	metrics.RecordAnalysis(req.Analysis, err)
	if err != nil {
		h.log.Error("analysis failed", "request_id", requestID(r), "analysis", req.Analysis, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   internalError("Analysis failed", err),
		})
		return
	}

	h.log.Info("analysis executed", "request_id", requestID(r), "analysis", req.Analysis)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}

// ListAnalyses returns the analysis catalog per geometry kind.
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"point":   analysis.Catalog(sqlgen.GeometryPoint),
		"line":    analysis.Catalog(sqlgen.GeometryLine),
		"polygon": analysis.Catalog(sqlgen.GeometryPolygon),
	})
}
