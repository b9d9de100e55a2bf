// Package webhook delivers execution results to prompt-configured URLs.
// Delivery is a single POST with no retries; the outcome, including any
// transport failure, is captured in a Result for the execution record.
package webhook

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

// DefaultTimeout bounds a single delivery attempt
const DefaultTimeout = 30 * time.Second

// Client posts execution results to webhook URLs
type Client struct {
	httpClient *httpclient.SafeClient
	logger     *zap.SugaredLogger
}

// Config holds webhook delivery configuration
type Config struct {
	Timeout           time.Duration      // Zero = DefaultTimeout
	BlockPrivateHosts bool               // Refuse deliveries to private or loopback addresses
	Logger            *zap.SugaredLogger // Structured logger (nil = nop logger)
}

// NewClient creates a webhook delivery client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		httpClient: httpclient.New(config.Timeout, httpclient.Options{
			BlockPrivateHosts: config.BlockPrivateHosts,
		}),
		logger: logger,
	}
}

// Result captures the outcome of a single delivery attempt.
// Status and Body are nil when no HTTP response was received.
type Result struct {
	Status  *int
	Body    *string
	Failure string // Why delivery failed, empty when Delivered
}

// Delivered reports whether the webhook accepted the payload (2xx response).
func (r *Result) Delivered() bool {
	return r.Status != nil && *r.Status >= 200 && *r.Status < 300
}

// Deliver posts the payload to the webhook URL as JSON. Exactly one POST
// is made; there are no retries. Only the Content-Type header is set.
// Transport errors come back as a Result with nil Status and Body.
func (c *Client) Deliver(ctx context.Context, url string, payload interface{}) *Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return c.failure(fmt.Sprintf("failed to marshal payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return c.failure(fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.failure(fmt.Sprintf("failed to deliver webhook: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// The status arrived even though the body did not
		status := resp.StatusCode
		result := &Result{
			Status:  &status,
			Failure: fmt.Sprintf("failed to read webhook response: %v", err),
		}
		c.logger.Warnw("Webhook delivery failed", "url", url, "failure", result.Failure)
		return result
	}

	status := resp.StatusCode
	bodyStr := string(respBody)
	result := &Result{
		Status: &status,
		Body:   &bodyStr,
	}

	if !result.Delivered() {
		result.Failure = fmt.Sprintf("webhook delivery failed with status %d", status)
		c.logger.Warnw("Webhook delivery rejected", "url", url, "status", status)
		return result
	}

	c.logger.Debugw("Webhook delivered", "url", url, "status", status)
	return result
}

func (c *Client) failure(message string) *Result {
	c.logger.Warnw("Webhook delivery failed", "failure", message)
	return &Result{Failure: message}
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}
