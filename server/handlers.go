package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/c360studio/thinker/agent"
	"github.com/c360studio/thinker/storage"
)

type planRequest struct {
	Query  string `json:"query"`
	Domain string `json:"domain,omitempty"`
}

type planResponse struct {
	SessionID              string                        `json:"session_id"`
	Plan                   *agent.ReasoningPlan          `json:"plan"`
	ClarificationQuestions []agent.ClarificationQuestion `json:"clarification_questions"`
	StepCount              int                           `json:"step_count"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	res, err := s.driver.Plan(r.Context(), req.Query, req.Domain)
	if err != nil {
		s.logger.Error("Planning failed", "error", err)
		writeError(w, http.StatusInternalServerError, "planning failed")
		return
	}

	writeJSON(w, http.StatusOK, planResponse{
		SessionID:              res.Session.ID,
		Plan:                   res.Plan,
		ClarificationQuestions: res.Plan.ClarificationQuestions,
		StepCount:              len(res.Plan.Steps),
	})
}

type refineRequest struct {
	SessionID     string            `json:"session_id"`
	UserResponses map[string]string `json:"user_responses,omitempty"`
	ChatMessage   string            `json:"chat_message,omitempty"`
	ChatHistory   []agent.ChatTurn  `json:"chat_history,omitempty"`
}

type refineResponse struct {
	SessionID       string               `json:"session_id"`
	Plan            *agent.ReasoningPlan `json:"plan"`
	RefinementCount int                  `json:"refinement_count"`
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	res, err := s.driver.Refine(r.Context(), req.SessionID, req.UserResponses, req.ChatMessage, req.ChatHistory)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no pending plan for session")
			return
		}
		s.logger.Error("Refinement failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "refinement failed")
		return
	}

	writeJSON(w, http.StatusOK, refineResponse{
		SessionID:       req.SessionID,
		Plan:            res.Plan,
		RefinementCount: res.RefinementCount,
	})
}

type executeRequest struct {
	SessionID string `json:"session_id"`
	Approved  bool   `json:"approved"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	status, err := s.driver.Execute(r.Context(), req.SessionID, req.Approved)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no pending plan for session")
			return
		}
		s.logger.Error("Execute failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "execute failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.Context(), r.PathValue("session_id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.eventLog.History(r.Context(), r.PathValue("session_id"))
	if err != nil {
		s.logger.Error("Failed to load history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if history == nil {
		history = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": history})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.memories.List(r.Context(), r.PathValue("session_id"))
	if err != nil {
		s.logger.Error("Failed to load memories", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load memories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": entries})
}

type searchRequest struct {
	Query  string `json:"query"`
	Domain string `json:"domain,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	results, err := s.retriever.Search(r.Context(), req.Query, req.Domain, req.Limit)
	if err != nil {
		s.logger.Error("Search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []agent.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDomains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"domains": agent.Domains()})
}

type ingestRequest struct {
	URL    string `json:"url"`
	Domain string `json:"domain,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not enabled")
		return
	}
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	doc, err := s.ingester.IngestURL(r.Context(), req.URL, req.Domain)
	if err != nil {
		s.logger.Error("Ingestion failed", "url", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, "ingestion failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     doc.ID,
		"title":  doc.Title,
		"domain": doc.Domain,
		"bytes":  len(doc.Content),
	})
}

// decode reads a size-limited JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing useful to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
