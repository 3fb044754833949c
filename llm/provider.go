package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for LLM interactions.
type Provider interface {
	// Chat sends a chat completion request. When req.Schema is set the
	// provider asks the model for a JSON document conforming to it, using
	// whatever native mechanism the vendor offers.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ModelReporter is implemented by providers that know which model a request
// without an explicit model is sent to.
type ModelReporter interface {
	Model() string
}

// ModelOf returns the default model of p, or "" when p does not report one.
func ModelOf(p Provider) string {
	if m, ok := p.(ModelReporter); ok {
		return m.Model()
	}
	return ""
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// Schema requests structured output. SchemaName labels it for vendors
	// that require a name.
	Schema     *Schema `json:"schema,omitempty"`
	SchemaName string  `json:"schema_name,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // openai, anthropic, ollama, lmstudio, openrouter, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg)
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom llm provider requires a base URL")
		}
		return newCompatProvider(vendor{name: "custom", format: formatJSONSchema}, cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	}
	v, ok := vendors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	return newCompatProvider(v, cfg), nil
}
