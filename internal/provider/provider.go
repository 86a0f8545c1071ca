// Package provider defines the uniform model provider surface and its
// concrete implementations. The router owns candidate selection and
// fallback; providers only execute single calls.
package provider

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options selects the model and sampling parameters for one invocation.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Usage reports token consumption where the provider surfaces it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completion is a provider response. Provider and Model record who
// actually produced it.
type Completion struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    Usage  `json:"usage"`
}

// Provider is the uniform invocation surface across model vendors.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, messages []Message, opts Options) (*Completion, error)
}

// Embedder produces fixed-dimension embedding vectors. Implemented by
// providers with an embedding capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
