package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiProvider implements Provider using Google's Gemini SDK.
//
// Supported chat models:
//
//	gemini-2.5-flash       fast, cost-effective (default)
//	gemini-2.5-pro         highest capability
//
// Gemini response schemas cannot describe open property maps, so structured
// requests use JSON mode with the schema carried in the system instruction.
type geminiProvider struct {
	cfg    Config
	client *genai.Client
}

// NewGemini creates a provider for Google Gemini.
func NewGemini(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &geminiProvider{cfg: cfg, client: client}, nil
}

func (p *geminiProvider) Model() string { return "gemini/" + p.cfg.Model }

func (p *geminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	name := req.Model
	if name == "" {
		name = p.cfg.Model
	}
	model := p.client.GenerativeModel(name)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	var system []string
	var parts []genai.Part
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		parts = append(parts, genai.Text(m.Content))
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		system = append(system, "Respond with a single JSON document matching this JSON Schema:\n"+req.Schema.JSON())
	}
	if len(system) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: no candidates in response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	out := &ChatResponse{
		Content:      sb.String(),
		Model:        name,
		FinishReason: resp.Candidates[0].FinishReason.String(),
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

// Close releases the underlying client.
func (p *geminiProvider) Close() error {
	return p.client.Close()
}
