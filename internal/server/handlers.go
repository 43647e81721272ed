package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/devdebug/devdebug-ai/internal/investigation"
)

// handleInvestigations handles GET (list) and POST (create) requests.
func (s *Server) handleInvestigations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListInvestigations(w, r)
	case http.MethodPost:
		s.handleCreateInvestigation(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListInvestigations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	list, err := s.controller.ListSessions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"investigations": list, "count": len(list)})
}

func (s *Server) handleCreateInvestigation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query          string `json:"query"`
		Namespace      string `json:"namespace"`
		TargetResource string `json:"target_resource"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.controller.Start(r.Context(), req.Query, req.Namespace, req.TargetResource)
	if err != nil {
		if errors.Is(err, investigation.ErrEmptyQuery) {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         id,
		"query":      req.Query,
		"state":      string(investigation.StateGathering),
		"stream_url": fmt.Sprintf("/ws/investigations/%s", id),
	})
}

// handleInvestigationByID routes GET /api/v1/investigations/{id} and
// its /report and /steps subresources.
func (s *Server) handleInvestigationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/investigations/"), "/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		http.Error(w, "investigation ID required", http.StatusBadRequest)
		return
	}

	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}
	switch sub {
	case "":
		s.handleGetInvestigation(w, r, id)
	case "report":
		s.handleGetReport(w, r, id)
	case "steps":
		s.handleGetSteps(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleGetInvestigation(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.controller.Status(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "investigation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, id string) {
	report, ok := s.controller.Report(id)
	if ok {
		writeJSON(w, http.StatusOK, report)
		return
	}

	// Either unknown or still running; distinguish for the client.
	rec, err := s.controller.Status(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "investigation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":    id,
		"state": rec.State,
	})
}

func (s *Server) handleGetSteps(w http.ResponseWriter, r *http.Request, id string) {
	steps, err := s.controller.Steps(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps, "count": len(steps)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
