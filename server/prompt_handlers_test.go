package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/promptpipe/promptpipe/internal/util"
	"github.com/promptpipe/promptpipe/prompt"
)

func TestHandlePrompts_Create(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{
		"name": "daily-summary",
		"description": "Summarizes the day",
		"template": "Summarize: {{text}}",
		"model": "openai/gpt-4o-mini",
		"temperature": 0.9,
		"max_tokens": 500,
		"webhook_url": "https://example.com/hook"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/prompts", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandlePrompts(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created prompt.Prompt
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !strings.HasPrefix(created.ID, "pmt_") {
		t.Errorf("ID = %q, want pmt_ prefix", created.ID)
	}
	if created.Temperature != 0.9 {
		t.Errorf("Temperature = %v, want 0.9", created.Temperature)
	}
	if created.MaxTokens == nil || *created.MaxTokens != 500 {
		t.Errorf("MaxTokens = %v, want 500", created.MaxTokens)
	}
	if created.TopP != 1.0 {
		t.Errorf("TopP = %v, want default 1.0", created.TopP)
	}
	if !created.Active {
		t.Error("New prompts should default to active")
	}
	if created.CreatedAt == "" {
		t.Error("CreatedAt should be set")
	}

	// The prompt is persisted, not just echoed
	stored, err := s.prompts.GetPrompt(created.ID)
	if err != nil {
		t.Fatalf("Failed to fetch created prompt: %v", err)
	}
	if stored.Name != "daily-summary" {
		t.Errorf("Stored name = %q, want %q", stored.Name, "daily-summary")
	}
}

func TestHandlePrompts_CreateDefaults(t *testing.T) {
	s := newTestServer(t, nil)

	// Only the required fields; model and sampling parameters fall back
	body := `{"name": "minimal", "template": "Say {{word}}", "webhook_url": "https://example.com/hook"}`
	req := httptest.NewRequest(http.MethodPost, "/api/prompts", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandlePrompts(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created prompt.Prompt
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.Model != "openai/gpt-4o-mini" {
		t.Errorf("Model = %q, want fallback %q", created.Model, "openai/gpt-4o-mini")
	}
	if created.Temperature != prompt.DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", created.Temperature, prompt.DefaultTemperature)
	}
	if created.MaxTokens != nil {
		t.Errorf("MaxTokens = %v, want nil", created.MaxTokens)
	}
}

func TestHandlePrompts_CreateValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"template": "x", "webhook_url": "https://example.com"}`},
		{"missing template", `{"name": "x", "webhook_url": "https://example.com"}`},
		{"missing webhook_url", `{"name": "x", "template": "y"}`},
		{"temperature too high", `{"name": "x", "template": "y", "webhook_url": "https://example.com", "temperature": 2.5}`},
		{"negative max_tokens", `{"name": "x", "template": "y", "webhook_url": "https://example.com", "max_tokens": -1}`},
		{"top_p out of range", `{"name": "x", "template": "y", "webhook_url": "https://example.com", "top_p": 1.5}`},
		{"ftp webhook", `{"name": "x", "template": "y", "webhook_url": "ftp://example.com/hook"}`},
		{"malformed json", `{"name": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/prompts", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			s.HandlePrompts(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestHandlePrompts_List(t *testing.T) {
	s := newTestServer(t, nil)
	createServerPrompt(t, s, nil)
	createServerPrompt(t, s, func(p *prompt.Prompt) { p.Name = "weekly-digest" })

	req := httptest.NewRequest(http.MethodGet, "/api/prompts", nil)
	w := httptest.NewRecorder()

	s.HandlePrompts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Prompts []*prompt.Prompt `json:"prompts"`
		Count   int              `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Count != 2 || len(body.Prompts) != 2 {
		t.Errorf("Count = %d with %d prompts, want 2", body.Count, len(body.Prompts))
	}
}

func TestHandlePrompts_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/prompts", nil)
	w := httptest.NewRecorder()

	s.HandlePrompts(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandlePrompt_Get(t *testing.T) {
	s := newTestServer(t, nil)
	p := createServerPrompt(t, s, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/prompts/"+p.ID, nil)
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var got prompt.Prompt
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.ID != p.ID || got.Name != p.Name {
		t.Errorf("Got prompt %s/%s, want %s/%s", got.ID, got.Name, p.ID, p.Name)
	}
}

func TestHandlePrompt_GetNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/prompts/pmt_missing", nil)
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandlePrompt_MissingID(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/prompts/", nil)
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandlePrompt_Update(t *testing.T) {
	s := newTestServer(t, nil)
	p := createServerPrompt(t, s, func(p *prompt.Prompt) {
		p.Description = util.Ptr("old description")
		p.MaxTokens = util.Ptr(256)
	})

	body := `{"temperature": 1.2, "description": "", "max_tokens": 0}`
	req := httptest.NewRequest(http.MethodPut, "/api/prompts/"+p.ID, strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var updated prompt.Prompt
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if updated.Temperature != 1.2 {
		t.Errorf("Temperature = %v, want 1.2", updated.Temperature)
	}
	if updated.Name != p.Name {
		t.Errorf("Name = %q, should be unchanged from %q", updated.Name, p.Name)
	}
	if updated.Description != nil {
		t.Errorf("Description = %v, empty string should clear it", *updated.Description)
	}
	if updated.MaxTokens != nil {
		t.Errorf("MaxTokens = %v, zero should clear the cap", *updated.MaxTokens)
	}
}

func TestHandlePrompt_UpdateValidation(t *testing.T) {
	s := newTestServer(t, nil)
	p := createServerPrompt(t, s, nil)

	body := `{"temperature": 3.0}`
	req := httptest.NewRequest(http.MethodPut, "/api/prompts/"+p.ID, strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	// The stored prompt is untouched
	stored, err := s.prompts.GetPrompt(p.ID)
	if err != nil {
		t.Fatalf("Failed to fetch prompt: %v", err)
	}
	if stored.Temperature != p.Temperature {
		t.Errorf("Temperature = %v, want unchanged %v", stored.Temperature, p.Temperature)
	}
}

func TestHandlePrompt_UpdateNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/prompts/pmt_missing", strings.NewReader(`{"name": "x"}`))
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandlePrompt_Delete(t *testing.T) {
	s := newTestServer(t, nil)
	p := createServerPrompt(t, s, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/prompts/"+p.ID, nil)
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusNoContent)
	}

	// Second delete reports not found
	w = httptest.NewRecorder()
	s.HandlePrompt(w, httptest.NewRequest(http.MethodDelete, "/api/prompts/"+p.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandlePrompt_Preview(t *testing.T) {
	s := newTestServer(t, nil)
	p := createServerPrompt(t, s, func(p *prompt.Prompt) {
		p.Template = "Say hello to {{name}} from {{sender}}"
	})

	body := `{"data": {"name": "World"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/prompts/"+p.ID+"/preview", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp PreviewPromptResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	// Unknown placeholders stay verbatim
	if resp.RenderedPrompt != "Say hello to World from {{sender}}" {
		t.Errorf("RenderedPrompt = %q", resp.RenderedPrompt)
	}
	if len(resp.Placeholders) != 2 {
		t.Errorf("Placeholders = %v, want [name sender]", resp.Placeholders)
	}

	// No execution record is written for previews
	records, total, err := s.records.ListRecords(p.ID, 0, 0, "")
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Errorf("Preview wrote %d execution records, want 0", total)
	}
}

func TestHandlePrompt_PreviewEmptyBody(t *testing.T) {
	s := newTestServer(t, nil)
	p := createServerPrompt(t, s, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/prompts/"+p.ID+"/preview", nil)
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp PreviewPromptResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.RenderedPrompt != p.Template {
		t.Errorf("RenderedPrompt = %q, want the template verbatim", resp.RenderedPrompt)
	}
}

func TestHandlePrompt_UnknownSubResource(t *testing.T) {
	s := newTestServer(t, nil)
	p := createServerPrompt(t, s, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/prompts/"+p.ID+"/nope", nil)
	w := httptest.NewRecorder()

	s.HandlePrompt(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
