package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/verdantly/proposal-cli/pkg/openai"
)

// OpenAIDriver adapts an OpenAI-compatible chat-completions client.
type OpenAIDriver struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIDriver creates a driver issuing single chat completions.
func NewOpenAIDriver(client openai.Client, model string, maxTokens int, temperature float64) *OpenAIDriver {
	return &OpenAIDriver{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (d *OpenAIDriver) Name() string { return "openai" }

func (d *OpenAIDriver) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	resp, err := d.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: &d.temperature,
		MaxTokens:   &d.maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &CallError{
				StatusCode: apiErr.StatusCode,
				RetryAfter: apiErr.RetryAfter,
				Message:    apiErr.Body,
			}
		}
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, eris.New("openai driver: response contains no choices")
	}

	model := resp.Model
	if model == "" {
		model = d.model
	}
	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
	}, nil
}
