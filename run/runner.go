package run

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/promptpipe/promptpipe/ai/openrouter"
	"github.com/promptpipe/promptpipe/ai/tracker"
	"github.com/promptpipe/promptpipe/errors"
	"github.com/promptpipe/promptpipe/prompt"
	"github.com/promptpipe/promptpipe/webhook"
)

// ErrPromptInactive refuses execution of a disabled prompt.
// No execution record is written when this is returned.
var ErrPromptInactive = errors.NewConflictError("prompt is inactive")

// CompletionClient requests one chat completion per call and reports the
// outcome in the result rather than as an error.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openrouter.ChatCompletionRequest) *openrouter.Result
}

// DeliveryClient posts one payload per call to a webhook URL.
type DeliveryClient interface {
	Deliver(ctx context.Context, url string, payload interface{}) *webhook.Result
}

// RecordBroadcaster pushes newly persisted records to live listeners.
type RecordBroadcaster interface {
	BroadcastRecord(rec *Record)
}

// Runner orchestrates prompt executions end to end.
type Runner struct {
	prompts     *prompt.Store
	records     *RecordStore
	completions CompletionClient
	delivery    DeliveryClient
	tracker     *tracker.UsageTracker
	broadcaster RecordBroadcaster
	logger      *zap.SugaredLogger
}

// Config holds runner dependencies
type Config struct {
	Prompts     *prompt.Store
	Records     *RecordStore
	Completions CompletionClient
	Delivery    DeliveryClient
	Tracker     *tracker.UsageTracker // Optional, nil disables usage tracking
	Broadcaster RecordBroadcaster     // Optional, nil disables live updates
	Logger      *zap.SugaredLogger    // Structured logger (nil = nop logger)
}

// NewRunner creates a prompt execution runner
func NewRunner(config Config) *Runner {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Runner{
		prompts:     config.Prompts,
		records:     config.Records,
		completions: config.Completions,
		delivery:    config.Delivery,
		tracker:     config.Tracker,
		broadcaster: config.Broadcaster,
		logger:      logger,
	}
}

// ExecuteScheduled runs a prompt for a scheduler tick. The webhook payload
// carries the full completion response verbatim.
func (r *Runner) ExecuteScheduled(ctx context.Context, promptID string, data map[string]interface{}) (*Record, error) {
	return r.execute(ctx, promptID, TriggerScheduled, data)
}

// ExecuteWebhook runs a prompt for an inbound hook call. The webhook payload
// carries the generated text extracted from the completion; a completion
// without text is treated as a completion failure.
func (r *Runner) ExecuteWebhook(ctx context.Context, promptID string, data map[string]interface{}) (*Record, error) {
	return r.execute(ctx, promptID, TriggerWebhook, data)
}

func (r *Runner) execute(ctx context.Context, promptID string, trigger Trigger, data map[string]interface{}) (*Record, error) {
	p, err := r.prompts.GetPrompt(promptID)
	if err != nil {
		// Invalid invocation: no record
		return nil, err
	}
	if !p.Active {
		return nil, errors.Wrapf(ErrPromptInactive, "prompt %s", promptID)
	}

	rendered := prompt.Render(p.Template, data)

	rec := &Record{
		PromptID:       p.ID,
		Trigger:        trigger,
		RenderedPrompt: rendered,
		Status:         StatusSuccess,
	}
	if data != nil {
		inputData, err := json.Marshal(data)
		if err != nil {
			r.logger.Warnw("Failed to marshal input data", "prompt_id", p.ID, "error", err)
		} else {
			rec.InputData = inputData
		}
	}

	requestTime := time.Now()
	result := r.completions.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:            p.Model,
		Messages:         []openrouter.Message{{Role: "user", Content: rendered}},
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	})
	durationMs := time.Since(requestTime).Milliseconds()

	rec.Response = result.Raw
	r.trackUsage(p, trigger, result, durationMs)

	if !result.OK {
		return r.finish(rec, result.Failure)
	}

	payload := map[string]interface{}{
		"prompt_id":       p.ID,
		"rendered_prompt": rendered,
	}
	if trigger == TriggerWebhook {
		text, ok := result.GeneratedText()
		if !ok {
			return r.finish(rec, "completion response contains no generated text")
		}
		payload["generated_text"] = text
	} else {
		payload["completion_response"] = result.Raw
	}
	if rec.InputData != nil {
		payload["input_data"] = rec.InputData
	}

	delivery := r.delivery.Deliver(ctx, p.WebhookURL, payload)
	rec.WebhookStatus = delivery.Status
	rec.WebhookBody = delivery.Body

	if !delivery.Delivered() {
		failure := delivery.Failure
		if failure == "" {
			failure = "webhook delivery failed"
			if delivery.Status != nil {
				failure = fmt.Sprintf("webhook delivery failed with status %d", *delivery.Status)
			}
		}
		return r.finish(rec, failure)
	}
	return r.finish(rec, "")
}

// finish persists the record with the given failure (empty = success),
// broadcasts it, and returns it. Persistence errors propagate.
func (r *Runner) finish(rec *Record, failure string) (*Record, error) {
	if failure != "" {
		rec.Status = StatusFailed
		rec.ErrorMessage = &failure
	}

	if err := r.records.CreateRecord(rec); err != nil {
		return nil, err
	}

	r.logger.Infow("Execution finished",
		"record_id", rec.ID,
		"prompt_id", rec.PromptID,
		"trigger_kind", rec.Trigger,
		"execution_status", rec.Status,
	)

	if r.broadcaster != nil {
		r.broadcaster.BroadcastRecord(rec)
	}
	return rec, nil
}

func (r *Runner) trackUsage(p *prompt.Prompt, trigger Trigger, result *openrouter.Result, durationMs int64) {
	if r.tracker == nil {
		return
	}

	usage := &tracker.ModelUsage{
		PromptID:    p.ID,
		TriggerKind: string(trigger),
		Model:       p.Model,
		DurationMs:  &durationMs,
		Success:     result.OK,
	}

	if result.OK && result.Parsed != nil {
		promptTokens := result.Parsed.Usage.PromptTokens
		completionTokens := result.Parsed.Usage.CompletionTokens
		totalTokens := result.Parsed.Usage.TotalTokens
		cost := openrouter.CalculateCost(p.Model, promptTokens, completionTokens)

		usage.PromptTokens = &promptTokens
		usage.CompletionTokens = &completionTokens
		usage.TotalTokens = &totalTokens
		usage.Cost = &cost
	} else if result.Failure != "" {
		failure := result.Failure
		usage.ErrorMessage = &failure
	}

	if err := r.tracker.TrackUsage(usage); err != nil {
		// Cost reporting depends on this data, so the failure is always logged
		r.logger.Warnw("Failed to track usage", "error", err, "prompt_id", p.ID)
	}
}
