// Package genai provides clients for the content-generation capability.
// The rest of the system is agnostic to which model or provider backs it.
package genai

import (
	"context"
)

// FragmentCallback is called for each produced fragment, in order.
type FragmentCallback func(fragment string, index int) error

// ChatMessage is one prior message of generation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one generation.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
	Temperature  float64
}

// Result is the assembled outcome of a completed generation.
type Result struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for generation providers.
type Client interface {
	// GenerateStream runs one generation, invoking the callback for
	// each fragment, and returns the assembled result.
	GenerateStream(ctx context.Context, req *Request, callback FragmentCallback) (*Result, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of generation provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new generation client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewAnthropicClient(apiKey)
	}
}
