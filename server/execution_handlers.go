package server

import (
	"encoding/json"
	"io"
	"net/http"
)

// HandleHook handles POST /api/hooks/{id}: an inbound webhook that triggers
// the prompt, passing the request body through as the input mapping. The
// delivery webhook receives only the generated text for this trigger kind.
func (s *Server) HandleHook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/hooks/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing prompt ID")
		return
	}
	promptID := parts[0]

	data, err := decodeHookPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "hook payload must be a JSON object")
		return
	}

	s.logger.Infow("Hook trigger",
		"prompt_id", promptID,
		"has_data", data != nil,
		"remote", r.RemoteAddr,
	)

	rec, err := s.runner.ExecuteWebhook(r.Context(), promptID, data)
	if err != nil {
		handleError(w, s.logger, err, "failed to execute prompt")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// decodeHookPayload reads the hook body as an input mapping.
// An empty body means no input; anything that is not a JSON object errors.
func decodeHookPayload(r *http.Request) (map[string]interface{}, error) {
	if r.Body == nil {
		return nil, nil
	}
	var data map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// HandleExecutions handles GET /api/executions with optional prompt_id,
// status, limit, and offset query parameters
func (s *Server) HandleExecutions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	promptID := r.URL.Query().Get("prompt_id")
	status := r.URL.Query().Get("status")
	limit := parseIntParam(r, "limit", 0)
	offset := parseIntParam(r, "offset", 0)

	records, total, err := s.records.ListRecords(promptID, limit, offset, status)
	if err != nil {
		handleError(w, s.logger, err, "failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": records,
		"count":      len(records),
		"total":      total,
	})
}

// HandleExecution handles GET /api/executions/{id}
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/executions/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing execution ID")
		return
	}

	rec, err := s.records.GetRecord(parts[0])
	if err != nil {
		handleError(w, s.logger, err, "failed to get execution")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
