package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptpipe/promptpipe/ai/openrouter"
	"github.com/promptpipe/promptpipe/ai/tracker"
	"github.com/promptpipe/promptpipe/errors"
	pptest "github.com/promptpipe/promptpipe/internal/testing"
	"github.com/promptpipe/promptpipe/internal/util"
	"github.com/promptpipe/promptpipe/prompt"
	"github.com/promptpipe/promptpipe/webhook"
)

type fakeCompletions struct {
	result  *openrouter.Result
	lastReq openrouter.ChatCompletionRequest
	calls   int
}

func (f *fakeCompletions) CreateChatCompletion(_ context.Context, req openrouter.ChatCompletionRequest) *openrouter.Result {
	f.calls++
	f.lastReq = req
	return f.result
}

type fakeDelivery struct {
	result      *webhook.Result
	lastURL     string
	lastPayload map[string]interface{}
	calls       int
}

func (f *fakeDelivery) Deliver(_ context.Context, url string, payload interface{}) *webhook.Result {
	f.calls++
	f.lastURL = url
	f.lastPayload, _ = payload.(map[string]interface{})
	return f.result
}

type fakeBroadcaster struct {
	records []*Record
}

func (f *fakeBroadcaster) BroadcastRecord(rec *Record) {
	f.records = append(f.records, rec)
}

func completionOK(text string) *openrouter.Result {
	resp := &openrouter.ChatCompletionResponse{
		ID:    "gen-123",
		Model: "openai/gpt-4o-mini",
		Choices: []openrouter.Choice{
			{Message: openrouter.Message{Role: "assistant", Content: text}, FinishReason: "stop"},
		},
		Usage: openrouter.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	raw, _ := json.Marshal(resp)
	return &openrouter.Result{Status: 200, Raw: raw, Parsed: resp, OK: true}
}

func deliveryOK() *webhook.Result {
	return &webhook.Result{Status: util.Ptr(200), Body: util.Ptr(`{"received":true}`)}
}

type runnerFixture struct {
	db          *sql.DB
	prompts     *prompt.Store
	records     *RecordStore
	completions *fakeCompletions
	delivery    *fakeDelivery
	broadcaster *fakeBroadcaster
	runner      *Runner
}

func newRunnerFixture(t *testing.T, completion *openrouter.Result, delivery *webhook.Result) *runnerFixture {
	t.Helper()

	db := pptest.CreateTestDB(t)
	f := &runnerFixture{
		db:          db,
		prompts:     prompt.NewStore(db, nil),
		records:     NewRecordStore(db, nil),
		completions: &fakeCompletions{result: completion},
		delivery:    &fakeDelivery{result: delivery},
		broadcaster: &fakeBroadcaster{},
	}
	f.runner = NewRunner(Config{
		Prompts:     f.prompts,
		Records:     f.records,
		Completions: f.completions,
		Delivery:    f.delivery,
		Broadcaster: f.broadcaster,
	})
	return f
}

func (f *runnerFixture) createPrompt(t *testing.T, mutate func(*prompt.Prompt)) *prompt.Prompt {
	t.Helper()
	p := &prompt.Prompt{
		Name:        "greeting",
		Template:    "Say hello to {{name}}",
		Model:       "openai/gpt-4o-mini",
		Temperature: 0.8,
		MaxTokens:   util.Ptr(256),
		TopP:        0.9,
		WebhookURL:  "https://example.com/hooks/greeting",
		Active:      true,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, f.prompts.CreatePrompt(p))
	return p
}

func (f *runnerFixture) recordCount(t *testing.T) int {
	t.Helper()
	_, total, err := f.records.ListRecords("", 0, 0, "")
	require.NoError(t, err)
	return total
}

func TestExecuteScheduled_Success(t *testing.T) {
	f := newRunnerFixture(t, completionOK("Hello, World!"), deliveryOK())
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteScheduled(context.Background(), p.ID, map[string]interface{}{"name": "World"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, TriggerScheduled, rec.Trigger)
	assert.Equal(t, "Say hello to World", rec.RenderedPrompt)
	assert.Nil(t, rec.ErrorMessage)
	assert.JSONEq(t, `{"name":"World"}`, string(rec.InputData))
	require.NotNil(t, rec.WebhookStatus)
	assert.Equal(t, 200, *rec.WebhookStatus)
	require.NotNil(t, rec.WebhookBody)

	// Completion request carries the prompt's sampling parameters
	req := f.completions.lastReq
	assert.Equal(t, "openai/gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "Say hello to World", req.Messages[0].Content)
	assert.Equal(t, 0.8, req.Temperature)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 256, *req.MaxTokens)
	assert.Equal(t, 0.9, req.TopP)

	// Scheduled payload forwards the full completion response
	assert.Equal(t, p.WebhookURL, f.delivery.lastURL)
	payload := f.delivery.lastPayload
	require.NotNil(t, payload)
	assert.Equal(t, p.ID, payload["prompt_id"])
	assert.Equal(t, "Say hello to World", payload["rendered_prompt"])
	assert.NotContains(t, payload, "generated_text")
	raw, ok := payload["completion_response"].(json.RawMessage)
	require.True(t, ok, "expected raw completion response in payload")
	assert.JSONEq(t, string(rec.Response), string(raw))

	// Exactly one record, persisted and broadcast
	assert.Equal(t, 1, f.recordCount(t))
	persisted, err := f.records.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Status, persisted.Status)
	require.Len(t, f.broadcaster.records, 1)
	assert.Equal(t, rec.ID, f.broadcaster.records[0].ID)
}

func TestExecuteWebhook_Success(t *testing.T) {
	f := newRunnerFixture(t, completionOK("Hello, Ada!"), deliveryOK())
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteWebhook(context.Background(), p.ID, map[string]interface{}{"name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, TriggerWebhook, rec.Trigger)

	// Hook payload forwards the extracted text, not the raw response
	payload := f.delivery.lastPayload
	require.NotNil(t, payload)
	assert.Equal(t, "Hello, Ada!", payload["generated_text"])
	assert.NotContains(t, payload, "completion_response")
	assert.Contains(t, payload, "input_data")
}

func TestExecute_CompletionFailureSkipsDelivery(t *testing.T) {
	failed := &openrouter.Result{
		Status:  429,
		Raw:     json.RawMessage(`{"error":{"message":"rate limited"}}`),
		Failure: "API request failed with status 429",
	}
	f := newRunnerFixture(t, failed, deliveryOK())
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteScheduled(context.Background(), p.ID, nil)
	require.NoError(t, err, "completion failure is captured in the record, not returned")

	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "API request failed with status 429", *rec.ErrorMessage)
	assert.JSONEq(t, `{"error":{"message":"rate limited"}}`, string(rec.Response))
	assert.Nil(t, rec.WebhookStatus)
	assert.Nil(t, rec.WebhookBody)
	assert.Zero(t, f.delivery.calls, "delivery must be skipped on completion failure")
	assert.Equal(t, 1, f.recordCount(t))
}

func TestExecuteWebhook_MissingTextIsCompletionFailure(t *testing.T) {
	empty := completionOK("ignored")
	empty.Parsed.Choices = nil
	raw, _ := json.Marshal(empty.Parsed)
	empty.Raw = raw

	f := newRunnerFixture(t, empty, deliveryOK())
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteWebhook(context.Background(), p.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "completion response contains no generated text", *rec.ErrorMessage)
	assert.Zero(t, f.delivery.calls)
	assert.Equal(t, 1, f.recordCount(t))
}

func TestExecuteScheduled_MissingTextStillDelivers(t *testing.T) {
	// The scheduled variant forwards the raw response and does not
	// require extractable text
	empty := completionOK("ignored")
	empty.Parsed.Choices = nil
	raw, _ := json.Marshal(empty.Parsed)
	empty.Raw = raw

	f := newRunnerFixture(t, empty, deliveryOK())
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteScheduled(context.Background(), p.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, 1, f.delivery.calls)
}

func TestExecute_DeliveryRejection(t *testing.T) {
	rejected := &webhook.Result{
		Status:  util.Ptr(500),
		Body:    util.Ptr("receiver exploded"),
		Failure: "webhook delivery failed with status 500",
	}
	f := newRunnerFixture(t, completionOK("Hello!"), rejected)
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteScheduled(context.Background(), p.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.WebhookStatus)
	assert.Equal(t, 500, *rec.WebhookStatus)
	require.NotNil(t, rec.WebhookBody)
	assert.Equal(t, "receiver exploded", *rec.WebhookBody)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "status 500")
	assert.Equal(t, 1, f.recordCount(t))
}

func TestExecute_DeliveryTransportFailure(t *testing.T) {
	unreachable := &webhook.Result{Failure: "failed to deliver webhook: connection refused"}
	f := newRunnerFixture(t, completionOK("Hello!"), unreachable)
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteScheduled(context.Background(), p.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Nil(t, rec.WebhookStatus)
	assert.Nil(t, rec.WebhookBody)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "connection refused")
}

func TestExecute_PromptNotFound(t *testing.T) {
	f := newRunnerFixture(t, completionOK("Hello!"), deliveryOK())

	rec, err := f.runner.ExecuteScheduled(context.Background(), "pmt_missing", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err), "expected not found error, got %v", err)
	assert.Nil(t, rec)

	assert.Zero(t, f.completions.calls, "no completion for an invalid invocation")
	assert.Zero(t, f.recordCount(t), "no record for an invalid invocation")
	assert.Empty(t, f.broadcaster.records)
}

func TestExecute_InactivePrompt(t *testing.T) {
	f := newRunnerFixture(t, completionOK("Hello!"), deliveryOK())
	p := f.createPrompt(t, func(p *prompt.Prompt) { p.Active = false })

	rec, err := f.runner.ExecuteWebhook(context.Background(), p.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPromptInactive), "expected ErrPromptInactive, got %v", err)
	assert.True(t, errors.IsConflictError(err))
	assert.Nil(t, rec)

	assert.Zero(t, f.completions.calls)
	assert.Zero(t, f.recordCount(t), "no record for an inactive prompt")
}

func TestExecute_NilInputData(t *testing.T) {
	f := newRunnerFixture(t, completionOK("Hello!"), deliveryOK())
	p := f.createPrompt(t, nil)

	rec, err := f.runner.ExecuteScheduled(context.Background(), p.ID, nil)
	require.NoError(t, err)

	// Placeholder stays verbatim without an input mapping
	assert.Equal(t, "Say hello to {{name}}", rec.RenderedPrompt)
	assert.Nil(t, rec.InputData)
	assert.NotContains(t, f.delivery.lastPayload, "input_data")

	persisted, err := f.records.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Nil(t, persisted.InputData)
}

func TestExecute_TracksUsage(t *testing.T) {
	f := newRunnerFixture(t, completionOK("Hello!"), deliveryOK())
	p := f.createPrompt(t, nil)

	f.runner.tracker = tracker.NewUsageTracker(f.db)

	_, err := f.runner.ExecuteScheduled(context.Background(), p.ID, nil)
	require.NoError(t, err)

	var promptID, triggerKind string
	var totalTokens int
	var cost float64
	var success bool
	err = f.db.QueryRow(`
		SELECT prompt_id, trigger_kind, total_tokens, cost, success
		FROM model_usage`).Scan(&promptID, &triggerKind, &totalTokens, &cost, &success)
	require.NoError(t, err)

	assert.Equal(t, p.ID, promptID)
	assert.Equal(t, "scheduled", triggerKind)
	assert.Equal(t, 30, totalTokens)
	assert.Greater(t, cost, 0.0)
	assert.True(t, success)
}

func TestExecute_TracksFailedCompletion(t *testing.T) {
	failed := &openrouter.Result{
		Raw:     json.RawMessage(`{"error":"connection refused"}`),
		Failure: "failed to send request: connection refused",
	}
	f := newRunnerFixture(t, failed, deliveryOK())
	p := f.createPrompt(t, nil)

	f.runner.tracker = tracker.NewUsageTracker(f.db)

	_, err := f.runner.ExecuteWebhook(context.Background(), p.ID, nil)
	require.NoError(t, err)

	var success bool
	var errorMessage sql.NullString
	var totalTokens sql.NullInt64
	err = f.db.QueryRow("SELECT success, error_message, total_tokens FROM model_usage").
		Scan(&success, &errorMessage, &totalTokens)
	require.NoError(t, err)

	assert.False(t, success)
	assert.True(t, errorMessage.Valid)
	assert.Contains(t, errorMessage.String, "connection refused")
	assert.False(t, totalTokens.Valid)
}
