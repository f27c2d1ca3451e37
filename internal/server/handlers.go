package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// handleRun triggers one pipeline run and responds with its summary. Runs
// are serialized; a request arriving while one is in flight gets 409.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.beginRun() {
		s.respondError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	s.logger.Debug("run requested")
	summary, _, err := s.trigger.RunOnce(r.Context())
	s.endRun(summary)
	if err != nil {
		s.logger.Error("run failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	last, running := s.snapshot()

	resp := map[string]interface{}{
		"running": running,
	}
	if last != nil {
		resp["last_run"] = last
	}

	loaded, err := s.states.Load()
	if err != nil {
		s.logger.Error("status: load state failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp["documents"] = len(loaded.State.Documents)
	if !loaded.FirstRun {
		resp["last_run_at"] = loaded.State.LastRunAt
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
