// Package provider performs one logical "ask the model" operation per call,
// absorbing transient provider failures with a classification-driven retry
// policy and a shared rate-limit cooldown.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Completion is the raw result of one provider round.
type Completion struct {
	Text  string
	Model string // model identifier actually used
}

// Driver issues exactly one physical call to a concrete provider backend.
type Driver interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

// CallError is a normalized non-2xx provider response. Drivers translate
// their backend's error shape into this so the retry policy stays
// backend-agnostic.
type CallError struct {
	StatusCode int
	RetryAfter time.Duration // from a rate-limit header, zero if absent
	Message    string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider: status %d: %s", e.StatusCode, e.Message)
}
