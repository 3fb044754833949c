package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantURL  string
	}{
		{"openai", "https://api.openai.com/v1"},
		{"anthropic", "https://api.anthropic.com/v1/"},
		{"ollama", "http://localhost:11434/v1"},
		{"lmstudio", "http://localhost:1234/v1"},
		{"openrouter", "https://openrouter.ai/api/v1"},
		{"groq", "https://api.groq.com/openai/v1"},
		{"xai", "https://api.x.ai/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(context.Background(), Config{Provider: tt.provider, Model: "test-model"})
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			cp, ok := p.(*compatProvider)
			if !ok {
				t.Fatalf("NewProvider(%q) type = %T, want *llm.compatProvider", tt.provider, p)
			}
			if cp.vendor != tt.provider {
				t.Errorf("vendor = %q, want %q", cp.vendor, tt.provider)
			}
			if cp.base.cfg.BaseURL != tt.wantURL {
				t.Errorf("default BaseURL for %q = %q, want %q", tt.provider, cp.base.cfg.BaseURL, tt.wantURL)
			}
			if cp.base.cfg.Model != "test-model" {
				t.Errorf("model = %q, want %q", cp.base.cfg.Model, "test-model")
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown", Config{Provider: "doesnotexist"}, "unknown llm provider: doesnotexist"},
		{"empty", Config{Provider: ""}, "llm provider not specified"},
		{"custom without url", Config{Provider: "custom"}, "custom llm provider requires a base URL"},
		{"gemini without key", Config{Provider: "gemini"}, "gemini: api key required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Error() != tt.want {
				t.Errorf("error = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestExplicitBaseURLPreserved(t *testing.T) {
	customURL := "http://my-server:9999/v1"

	for _, provider := range []string{"openai", "ollama", "lmstudio", "openrouter", "xai", "custom"} {
		t.Run(provider, func(t *testing.T) {
			p, err := NewProvider(context.Background(), Config{Provider: provider, BaseURL: customURL, APIKey: "sk-test"})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", provider, err)
			}
			cp := p.(*compatProvider)
			if cp.base.cfg.BaseURL != customURL {
				t.Errorf("provider %q BaseURL = %q, want %q", provider, cp.base.cfg.BaseURL, customURL)
			}
			if cp.base.cfg.APIKey != "sk-test" {
				t.Errorf("api key = %q, want %q", cp.base.cfg.APIKey, "sk-test")
			}
		})
	}
}

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "{\"nodes\":[],\"edges\":[]}"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

// fakeCompletions serves /chat/completions and captures the decoded request body.
func fakeCompletions(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, captured)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatSendsJSONSchema(t *testing.T) {
	var got map[string]any
	srv := fakeCompletions(t, &got)

	p, err := NewProvider(context.Background(), Config{Provider: "openai", BaseURL: srv.URL + "/v1", APIKey: "k", Model: "test-model"})
	require.NoError(t, err)

	schema := &Schema{
		Type:       "object",
		Properties: map[string]*Schema{"nodes": {Type: "array"}},
		Required:   []string{"nodes"},
	}
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:   []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "text"}},
		Schema:     schema,
		SchemaName: "knowledge_graph",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"nodes":[],"edges":[]}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 15, resp.TotalTokens)

	rf, ok := got["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing from request: %v", got)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, "knowledge_graph", js["name"])
	assert.Equal(t, "object", js["schema"].(map[string]any)["type"])

	msgs := got["messages"].([]any)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestChatWithoutSchemaOmitsResponseFormat(t *testing.T) {
	var got map[string]any
	srv := fakeCompletions(t, &got)

	p, err := NewProvider(context.Background(), Config{Provider: "anthropic", BaseURL: srv.URL + "/v1", APIKey: "k"})
	require.NoError(t, err)

	// anthropic's compatibility layer ignores response_format, so it is never sent.
	_, err = p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "text"}},
		Schema:   &Schema{Type: "object"},
	})
	require.NoError(t, err)
	_, present := got["response_format"]
	assert.False(t, present)
	assert.Equal(t, "claude-sonnet-4-5", got["model"])
}

func TestChatPropagatesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), Config{Provider: "custom", BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom")
}

func TestSchemaJSON(t *testing.T) {
	closed := false
	s := &Schema{Type: "object", AdditionalProperties: &closed}
	assert.JSONEq(t, `{"type":"object","additionalProperties":false}`, s.JSON())
}

func TestChatBoundedOnlyByContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), Config{Provider: "ollama", BaseURL: srv.URL, Model: "slow"})
	require.NoError(t, err)
	cp := p.(*compatProvider)
	assert.Zero(t, cp.base.http.Timeout, "long extractions must not hit a client-level deadline")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Chat(ctx, ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestModelOf(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Provider: "groq"})
	require.NoError(t, err)
	assert.Equal(t, "groq/llama-3.3-70b-versatile", ModelOf(p))

	p, err = NewProvider(context.Background(), Config{Provider: "openai", Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4.1", ModelOf(p))

	assert.Equal(t, "", ModelOf(providerFunc(nil)))
}

type providerFunc func(context.Context, ChatRequest) (*ChatResponse, error)

func (f providerFunc) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}
