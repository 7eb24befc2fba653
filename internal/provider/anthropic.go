package provider

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/verdantly/proposal-cli/internal/resilience"
	"github.com/verdantly/proposal-cli/pkg/anthropic"
)

// AnthropicDriver adapts the Anthropic Messages client.
type AnthropicDriver struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicDriver creates a driver issuing single Messages calls.
func NewAnthropicDriver(client anthropic.Client, model string, maxTokens int64, temperature float64) *AnthropicDriver {
	return &AnthropicDriver{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (d *AnthropicDriver) Name() string { return "anthropic" }

func (d *AnthropicDriver) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt},
		},
		Temperature: &d.temperature,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			ce := &CallError{
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Error(),
			}
			if apiErr.Response != nil {
				ce.RetryAfter = resilience.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return nil, ce
		}
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, eris.New("anthropic driver: response contains no text content")
	}

	resp.Usage.LogCost(resp.Model, "proposal")

	return &Completion{
		Text:  text,
		Model: resp.Model,
	}, nil
}
