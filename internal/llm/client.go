package llm

import (
	"context"
	"errors"
	"time"
)

// Request is a single completion request. Prompt is required; System is
// prepended as a system message when set.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	// Timeout bounds this one call. Zero means the client default applies.
	Timeout time.Duration
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response carries the model's text plus accounting metadata.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is the language model contract the orchestration core depends on.
// Implementations must honor ctx cancellation and classify failures via
// kerrors so retry policy can tell transient from permanent errors.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// ErrNotConfigured is returned by Preflight when no client is available.
var ErrNotConfigured = errors.New("language model is not configured")

// Preflight verifies a usable client is present without making a call.
func Preflight(client Client) error {
	if client == nil {
		return ErrNotConfigured
	}
	return nil
}
