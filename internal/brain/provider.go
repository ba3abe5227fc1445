// Package brain is the client side of the hosted generative AI service.
package brain

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Generate when the provider has no credentials.
var ErrNotConfigured = errors.New("AI provider not configured")

// Provider is the interface for AI providers
type Provider interface {
	// Name returns the provider name (e.g., "gemini")
	Name() string

	// Available returns true if the provider is configured and ready
	Available() bool

	// Generate sends a prompt and returns the completion
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is a prompt request to an AI provider
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Response is the AI provider's response. Content may be empty when the
// model produced no text.
type Response struct {
	Content      string
	Model        string
	FinishReason string
}
