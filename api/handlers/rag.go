package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

type RAGQueryRequest struct {
	Query         string `json:"query"`
	TopK          int    `json:"top_k,omitempty"`
	Hybrid        *bool  `json:"hybrid,omitempty"`
	Agentic       bool   `json:"agentic,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// RAGQuery answers a question using retrieved knowledge-base context.
func (h *Handlers) RAGQuery(w http.ResponseWriter, r *http.Request) {
	var req RAGQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	if req.Agentic {
		result, err := h.rag.AgenticQuery(r.Context(), req.Query, req.MaxIterations)
		if err != nil {
			http.Error(w, internalError("RAG query failed", err), http.StatusInternalServerError)
			return
		}
		h.log.Info("agentic rag query answered", "request_id", requestID(r), "iterations", len(result.Iterations))
		writeJSON(w, http.StatusOK, result)
		return
	}

	hybrid := true
	if req.Hybrid != nil {
		hybrid = *req.Hybrid
	}

	result, err := h.rag.Query(r.Context(), req.Query, req.TopK, hybrid)
	if err != nil {
		http.Error(w, internalError("RAG query failed", err), http.StatusInternalServerError)
		return
	}
	h.log.Info("rag query answered", "request_id", requestID(r), "chunks", result.ChunksUsed)
	writeJSON(w, http.StatusOK, result)
}

// RAGIndex rebuilds the knowledge base from the live database.
func (h *Handlers) RAGIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.indexer.IndexAll(r.Context()); err != nil {
		http.Error(w, internalError("Indexing failed", err), http.StatusInternalServerError)
		return
	}
	h.log.Info("knowledge base reindexed", "request_id", requestID(r))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
