// Package openrouter is a client for the OpenRouter.ai chat completions API.
// Each completion is a single attempt: the outcome of the request, success or
// failure, is captured in a Result so callers can record it instead of
// handling a thrown error.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/promptpipe/promptpipe/internal/httpclient"
)

const (
	// DefaultModel is the fallback model when none is specified
	// Should match the default in config/defaults.go for consistency
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout bounds a single completion attempt
	DefaultTimeout = 120 * time.Second
)

// Client represents an OpenRouter.ai API client
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *httpclient.SafeClient
	logger     *zap.SugaredLogger
}

// Config holds completion client configuration
type Config struct {
	APIKey  string
	BaseURL string             // Empty = DefaultBaseURL
	Model   string             // Fallback model when a request carries none
	Timeout time.Duration      // Zero = DefaultTimeout
	Logger  *zap.SugaredLogger // Structured logger (nil = nop logger)
}

// NewClient creates a new OpenRouter.ai client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		model:   config.Model,
		httpClient: httpclient.New(config.Timeout, httpclient.Options{
			AllowedSchemes: []string{"http", "https"},
		}),
		logger: logger,
	}
}

// Message represents a message in a chat completion
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents a request to the chat completions endpoint
type ChatCompletionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

// ChatCompletionResponse represents the response from chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result captures the outcome of a single completion attempt.
// Raw always holds a JSON document: the provider's response body verbatim
// when it was valid JSON, otherwise a synthesized {"error": ...} document.
type Result struct {
	Status  int                     // HTTP status, 0 when no response was received
	Raw     json.RawMessage         // Provider response, or synthesized error document
	Parsed  *ChatCompletionResponse // Non-nil only when the body decoded cleanly
	OK      bool
	Failure string // Why the attempt failed, empty when OK
}

// GeneratedText extracts the first choice's message content.
// Returns false when the response carries no non-empty text.
func (r *Result) GeneratedText() (string, bool) {
	if r.Parsed == nil || len(r.Parsed.Choices) == 0 {
		return "", false
	}
	text := r.Parsed.Choices[0].Message.Content
	if text == "" {
		return "", false
	}
	return text, true
}

// CreateChatCompletion sends one chat completion request to OpenRouter.
// Exactly one attempt is made; there are no retries. Transport errors,
// non-200 statuses, and undecodable bodies all come back as a failed
// Result rather than an error.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) *Result {
	if req.Model == "" {
		req.Model = c.model
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return c.failure(0, nil, fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return c.failure(0, nil, fmt.Sprintf("failed to create request: %v", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "promptpipe")

	c.logger.Debugw("Completion request", "model", req.Model, "url", c.baseURL+"/chat/completions")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.failure(0, nil, fmt.Sprintf("failed to send request: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failure(resp.StatusCode, nil, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return c.failure(resp.StatusCode, respBody,
			fmt.Sprintf("API request failed with status %d", resp.StatusCode))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return c.failure(resp.StatusCode, respBody, fmt.Sprintf("failed to unmarshal response: %v", err))
	}

	c.logger.Debugw("Completion response",
		"model", chatResp.Model,
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
	)

	return &Result{
		Status: resp.StatusCode,
		Raw:    respBody,
		Parsed: &chatResp,
		OK:     true,
	}
}

// failure builds a failed Result. The body is kept verbatim when it is
// valid JSON; otherwise Raw is a synthesized error document so record
// consumers always see JSON.
func (c *Client) failure(status int, body []byte, message string) *Result {
	c.logger.Warnw("Completion attempt failed", "status", status, "failure", message)

	raw := json.RawMessage(body)
	if len(body) == 0 || !json.Valid(body) {
		raw = synthesizeError(message)
	}

	return &Result{
		Status:  status,
		Raw:     raw,
		Failure: message,
	}
}

func synthesizeError(message string) json.RawMessage {
	doc, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return json.RawMessage(`{"error":"completion failed"}`)
	}
	return doc
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}
