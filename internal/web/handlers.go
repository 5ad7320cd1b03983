package web

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// DefaultRecentRuns is the page size of GET /runs.
const DefaultRecentRuns = 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleLastRun returns the most recent run record, 404 before the first run.
func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.history.Last()
	if !ok {
		respondNotFound(w, r, "no run has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecentRuns returns up to ?limit= runs, newest first.
func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultRecentRuns)
	writeJSON(w, http.StatusOK, s.history.Recent(limit))
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
