package agent

import (
	"context"
	"fmt"

	"github.com/raka/paceline/pkg/tools"
)

// Request is one model call: system context, static tool schema, and the full
// message history.
type Request struct {
	Model     string
	System    string
	MaxTokens int
	Tools     []tools.Definition
	Messages  []Message
}

// Response is the model's reply: why it stopped, its content blocks, and the
// token usage for this call.
type Response struct {
	StopReason StopReason
	Content    []ContentBlock
	Usage      Usage
}

// Provider abstracts the language-model backend.
type Provider interface {
	// Name identifies the backend, e.g. "anthropic".
	Name() string
	// Complete performs one model call. Errors propagate uncaught to the
	// session's caller; the session does not retry.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewProvider builds a provider by name.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic", "":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}
