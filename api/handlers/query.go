package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/orelake/orelake/api/metrics"
	"github.com/orelake/orelake/pkg/orchestrator"
)

type QueryRequest struct {
	Query    string `json:"query"`
	RowLimit int    `json:"row_limit,omitempty"`
}

// ExecuteQuery runs one natural-language query through generation, repair,
// validation and row-capped execution.
func (h *Handlers) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := h.runner.Execute(r.Context(), req.Query, req.RowLimit)
	metrics.RecordQuery(result.Success, result.Attempts)

	h.log.Info("query executed",
		"request_id", requestID(r),
		"success", result.Success,
		"rows", result.RowCount,
		"attempts", result.Attempts,
		"elapsed", time.Since(start))

	writeJSON(w, http.StatusOK, result)
}

type AgentRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}

// ProcessAgent routes conversational input: analysis selection against the
// session's last result, or a fresh SQL query.
func (h *Handlers) ProcessAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		http.Error(w, "input is required", http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = orchestrator.DefaultSession
	}

	resp := h.agent.Process(r.Context(), sessionID, req.Input)
	h.log.Info("agent input processed",
		"request_id", requestID(r),
		"session", sessionID,
		"success", resp.Success,
		"is_analysis", resp.IsAnalysis)

	writeJSON(w, http.StatusOK, resp)
}

// ResetAgent clears a session's conversation state.
func (h *Handlers) ResetAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = orchestrator.DefaultSession
	}
	h.agent.Reset(sessionID)
	w.WriteHeader(http.StatusNoContent)
}
