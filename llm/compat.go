package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// structuredFormat is how a vendor accepts a schema constraint.
type structuredFormat int

const (
	// formatNone sends no response_format; the schema travels in the prompt.
	formatNone structuredFormat = iota
	formatJSONObject
	formatJSONSchema
)

// vendor describes an OpenAI-compatible endpoint.
type vendor struct {
	name         string
	defaultURL   string
	defaultModel string
	format       structuredFormat
}

// vendors lists the OpenAI-compatible providers by config name.
var vendors = map[string]vendor{
	"openai":     {name: "openai", defaultURL: "https://api.openai.com/v1", defaultModel: "gpt-4o-mini", format: formatJSONSchema},
	"anthropic":  {name: "anthropic", defaultURL: "https://api.anthropic.com/v1/", defaultModel: "claude-sonnet-4-5", format: formatNone},
	"ollama":     {name: "ollama", defaultURL: "http://localhost:11434/v1", format: formatJSONSchema},
	"lmstudio":   {name: "lmstudio", defaultURL: "http://localhost:1234/v1", format: formatJSONSchema},
	"openrouter": {name: "openrouter", defaultURL: "https://openrouter.ai/api/v1", format: formatJSONSchema},
	"groq":       {name: "groq", defaultURL: "https://api.groq.com/openai/v1", defaultModel: "llama-3.3-70b-versatile", format: formatJSONObject},
	"xai":        {name: "xai", defaultURL: "https://api.x.ai/v1", format: formatJSONSchema},
}

// compatClient is the shared go-openai client for every compatible vendor.
type compatClient struct {
	cfg    Config
	format structuredFormat
	client *openai.Client
	http   *http.Client
}

// compatProvider implements Provider for OpenAI-compatible APIs.
type compatProvider struct {
	vendor string
	base   compatClient
}

func newCompatProvider(v vendor, cfg Config) *compatProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = v.defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = v.defaultModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	// No client timeout: calls are bounded by the caller's context only.
	hc := &http.Client{}
	oc.HTTPClient = hc

	return &compatProvider{
		vendor: v.name,
		base: compatClient{
			cfg:    cfg,
			format: v.format,
			client: openai.NewClientWithConfig(oc),
			http:   hc,
		},
	}
}

// Model reports the vendor-qualified default model, e.g. "groq/llama-3.3-70b-versatile".
func (p *compatProvider) Model() string { return p.vendor + "/" + p.base.cfg.Model }

func (p *compatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.base.chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.vendor, err)
	}
	return resp, nil
}

func (c *compatClient) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	temp := float32(req.Temperature)
	if temp == 0 {
		// go-openai drops a zero temperature from the payload.
		temp = math.SmallestNonzeroFloat32
	}

	body := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: temp,
		MaxTokens:   req.MaxTokens,
	}
	if req.Schema != nil {
		rf, err := c.responseFormat(req)
		if err != nil {
			return nil, err
		}
		body.ResponseFormat = rf
	}

	resp, err := c.client.CreateChatCompletion(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func (c *compatClient) responseFormat(req ChatRequest) (*openai.ChatCompletionResponseFormat, error) {
	switch c.format {
	case formatJSONSchema:
		raw, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("encoding response schema: %w", err)
		}
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: json.RawMessage(raw),
				// Property bags are open maps, which strict mode rejects.
				Strict: false,
			},
		}, nil
	case formatJSONObject:
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}, nil
	default:
		return nil, nil
	}
}
