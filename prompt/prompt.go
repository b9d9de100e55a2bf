// Package prompt defines reusable prompt templates and their persistence.
// A prompt carries template text, model sampling parameters, a delivery
// webhook URL, and an opaque schedule string for external schedulers.
package prompt

import (
	"math"
	"net/url"

	"github.com/promptpipe/promptpipe/errors"
)

// Prompt is a stored, reusable prompt definition.
type Prompt struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      *string `json:"description,omitempty"`
	Template         string  `json:"template"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        *int    `json:"max_tokens,omitempty"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
	WebhookURL       string  `json:"webhook_url"`
	Schedule         *string `json:"schedule,omitempty"` // Opaque; cadence is an external concern
	Active           bool    `json:"active"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// Sampling parameter defaults applied when a create request omits them.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
)

// Normalize rounds the sampling parameters to 2 decimal places, matching the
// fixed-precision decimal representation they are stored in upstream systems.
func (p *Prompt) Normalize() {
	p.Temperature = roundParam(p.Temperature)
	p.TopP = roundParam(p.TopP)
	p.FrequencyPenalty = roundParam(p.FrequencyPenalty)
	p.PresencePenalty = roundParam(p.PresencePenalty)
}

// Validate checks required fields and parameter bounds.
func (p *Prompt) Validate() error {
	if p.Name == "" {
		return errors.NewInvalidRequestError("prompt name is required")
	}
	if p.Template == "" {
		return errors.NewInvalidRequestError("prompt template is required")
	}
	if p.Model == "" {
		return errors.NewInvalidRequestError("prompt model is required")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return errors.NewInvalidRequestError("temperature must be between 0 and 2, got %v", p.Temperature)
	}
	if p.MaxTokens != nil && *p.MaxTokens <= 0 {
		return errors.NewInvalidRequestError("max_tokens must be positive, got %d", *p.MaxTokens)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return errors.NewInvalidRequestError("top_p must be between 0 and 1, got %v", p.TopP)
	}
	if p.FrequencyPenalty < -2 || p.FrequencyPenalty > 2 {
		return errors.NewInvalidRequestError("frequency_penalty must be between -2 and 2, got %v", p.FrequencyPenalty)
	}
	if p.PresencePenalty < -2 || p.PresencePenalty > 2 {
		return errors.NewInvalidRequestError("presence_penalty must be between -2 and 2, got %v", p.PresencePenalty)
	}
	if err := validateWebhookURL(p.WebhookURL); err != nil {
		return err
	}
	return nil
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return errors.NewInvalidRequestError("webhook_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.NewInvalidRequestError("webhook_url is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewInvalidRequestError("webhook_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.NewInvalidRequestError("webhook_url is missing a host")
	}
	return nil
}

func roundParam(v float64) float64 {
	return math.Round(v*100) / 100
}
