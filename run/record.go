// Package run executes stored prompts: it renders the template, requests a
// completion, delivers the result to the prompt's webhook, and persists an
// execution record for every valid invocation.
package run

import "encoding/json"

// Trigger identifies what kind of invocation started an execution
type Trigger string

const (
	// TriggerScheduled marks executions started by an external scheduler
	TriggerScheduled Trigger = "scheduled"

	// TriggerWebhook marks executions started by an inbound hook call
	TriggerWebhook Trigger = "webhook"
)

// Status is the terminal outcome of an execution
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is the immutable audit trail of one execution. Exactly one record
// exists per valid invocation, regardless of outcome.
type Record struct {
	ID             string          `json:"id"`
	PromptID       string          `json:"prompt_id"`
	Trigger        Trigger         `json:"trigger_kind"`
	InputData      json.RawMessage `json:"input_data,omitempty"`
	RenderedPrompt string          `json:"rendered_prompt"`
	Response       json.RawMessage `json:"completion_response"`
	WebhookStatus  *int            `json:"webhook_response_status,omitempty"`
	WebhookBody    *string         `json:"webhook_response_body,omitempty"`
	Status         Status          `json:"execution_status"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

// Failed reports whether the execution ended in failure.
func (r *Record) Failed() bool {
	return r.Status == StatusFailed
}
