package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/promptpipe/promptpipe/ai/openrouter"
	"github.com/promptpipe/promptpipe/prompt"
)

// CreatePromptRequest represents a request to create a prompt.
// Omitted sampling parameters fall back to their defaults and an omitted
// model falls back to the configured one.
type CreatePromptRequest struct {
	Name             string   `json:"name"`
	Description      *string  `json:"description,omitempty"`
	Template         string   `json:"template"`
	Model            string   `json:"model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	WebhookURL       string   `json:"webhook_url"`
	Schedule         *string  `json:"schedule,omitempty"`
	Active           *bool    `json:"active,omitempty"`
}

// UpdatePromptRequest represents a partial prompt update.
// Absent fields keep their stored values. Empty description/schedule
// strings clear the field, and max_tokens 0 clears the cap.
type UpdatePromptRequest struct {
	Name             *string  `json:"name,omitempty"`
	Description      *string  `json:"description,omitempty"`
	Template         *string  `json:"template,omitempty"`
	Model            *string  `json:"model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	WebhookURL       *string  `json:"webhook_url,omitempty"`
	Schedule         *string  `json:"schedule,omitempty"`
	Active           *bool    `json:"active,omitempty"`
}

// RunPromptRequest carries the optional input mapping for a manual run
type RunPromptRequest struct {
	Data map[string]interface{} `json:"data,omitempty"`
}

// PreviewPromptResponse shows the rendered prompt without executing it
type PreviewPromptResponse struct {
	PromptID       string   `json:"prompt_id"`
	RenderedPrompt string   `json:"rendered_prompt"`
	Placeholders   []string `json:"placeholders,omitempty"`
}

// HandlePrompts handles requests to /api/prompts
// GET: list all prompts
// POST: create a new prompt
func (s *Server) HandlePrompts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListPrompts(w, r)
	case http.MethodPost:
		s.handleCreatePrompt(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandlePrompt routes requests to /api/prompts/{id} and its sub-resources:
// GET/PUT/DELETE {id}, POST {id}/run, GET {id}/executions, POST {id}/preview
func (s *Server) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/prompts/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing prompt ID")
		return
	}
	promptID := parts[0]

	if len(parts) > 1 && parts[1] != "" {
		switch parts[1] {
		case "run":
			s.handleRunPrompt(w, r, promptID)
		case "executions":
			s.handlePromptExecutions(w, r, promptID)
		case "preview":
			s.handlePreviewPrompt(w, r, promptID)
		default:
			writeError(w, http.StatusNotFound, "Unknown prompt endpoint")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetPrompt(w, r, promptID)
	case http.MethodPut:
		s.handleUpdatePrompt(w, r, promptID)
	case http.MethodDelete:
		s.handleDeletePrompt(w, r, promptID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleListPrompts lists all stored prompts
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.prompts.ListPrompts()
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list prompts", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prompts": prompts,
		"count":   len(prompts),
	})
}

// handleCreatePrompt creates a new prompt
func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	p := &prompt.Prompt{
		Name:        req.Name,
		Description: req.Description,
		Template:    req.Template,
		Model:       req.Model,
		Temperature: prompt.DefaultTemperature,
		TopP:        prompt.DefaultTopP,
		WebhookURL:  req.WebhookURL,
		Schedule:    req.Schedule,
		Active:      true,
	}
	if p.Model == "" {
		p.Model = s.defaultModel()
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		p.MaxTokens = req.MaxTokens
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		p.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		p.PresencePenalty = *req.PresencePenalty
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	if err := s.prompts.CreatePrompt(p); err != nil {
		handleError(w, s.logger, err, "failed to create prompt")
		return
	}

	s.logger.Infow("Created prompt",
		"prompt_id", p.ID,
		"name", p.Name,
		"model", p.Model,
	)

	writeJSON(w, http.StatusCreated, p)
}

// handleGetPrompt retrieves a specific prompt
func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request, promptID string) {
	p, err := s.prompts.GetPrompt(promptID)
	if err != nil {
		handleError(w, s.logger, err, "failed to get prompt")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdatePrompt applies a partial update onto the stored prompt
func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request, promptID string) {
	p, err := s.prompts.GetPrompt(promptID)
	if err != nil {
		handleError(w, s.logger, err, "failed to get prompt for update")
		return
	}

	var req UpdatePromptRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		if *req.Description == "" {
			p.Description = nil
		} else {
			p.Description = req.Description
		}
	}
	if req.Template != nil {
		p.Template = *req.Template
	}
	if req.Model != nil {
		p.Model = *req.Model
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		if *req.MaxTokens == 0 {
			p.MaxTokens = nil
		} else {
			p.MaxTokens = req.MaxTokens
		}
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		p.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		p.PresencePenalty = *req.PresencePenalty
	}
	if req.WebhookURL != nil {
		p.WebhookURL = *req.WebhookURL
	}
	if req.Schedule != nil {
		if *req.Schedule == "" {
			p.Schedule = nil
		} else {
			p.Schedule = req.Schedule
		}
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	if err := s.prompts.UpdatePrompt(p); err != nil {
		handleError(w, s.logger, err, "failed to update prompt")
		return
	}

	s.logger.Infow("Updated prompt",
		"prompt_id", p.ID,
		"name", p.Name,
	)

	writeJSON(w, http.StatusOK, p)
}

// handleDeletePrompt removes a prompt and, via cascade, its execution records
func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request, promptID string) {
	if err := s.prompts.DeletePrompt(promptID); err != nil {
		handleError(w, s.logger, err, "failed to delete prompt")
		return
	}

	s.logger.Infow("Deleted prompt", "prompt_id", promptID)

	w.WriteHeader(http.StatusNoContent)
}

// handleRunPrompt executes a prompt on demand. Manual runs behave like
// scheduled ones: the webhook receives the full completion response.
func (s *Server) handleRunPrompt(w http.ResponseWriter, r *http.Request, promptID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req RunPromptRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	s.logger.Infow("Manual prompt run",
		"prompt_id", promptID,
		"has_data", req.Data != nil,
		"remote", r.RemoteAddr,
	)

	rec, err := s.runner.ExecuteScheduled(r.Context(), promptID, req.Data)
	if err != nil {
		handleError(w, s.logger, err, "failed to execute prompt")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handlePromptExecutions lists execution records for one prompt
func (s *Server) handlePromptExecutions(w http.ResponseWriter, r *http.Request, promptID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	limit := parseIntParam(r, "limit", 0)
	offset := parseIntParam(r, "offset", 0)
	status := r.URL.Query().Get("status")

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

// handlePreviewPrompt renders the template with the given data without
// calling the model or writing a record
func (s *Server) handlePreviewPrompt(w http.ResponseWriter, r *http.Request, promptID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req RunPromptRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p, err := s.prompts.GetPrompt(promptID)
	if err != nil {
		handleError(w, s.logger, err, "failed to get prompt for preview")
		return
	}

	tmpl := prompt.ParseTemplate(p.Template)
	writeJSON(w, http.StatusOK, PreviewPromptResponse{
		PromptID:       p.ID,
		RenderedPrompt: tmpl.Render(req.Data),
		Placeholders:   tmpl.Placeholders(),
	})
}

// decodeOptionalBody decodes a JSON body into v, treating an empty body as
// no input
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

// defaultModel resolves the model applied when a create request omits one
func (s *Server) defaultModel() string {
	if s.cfg.OpenRouter.Model != "" {
		return s.cfg.OpenRouter.Model
	}
	return openrouter.DefaultModel
}
