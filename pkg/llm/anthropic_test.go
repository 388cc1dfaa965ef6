package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/shopagent/pkg/agent"
	"github.com/harun/shopagent/pkg/tools"
)

const anthropicToolUse = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5",
  "content": [
    {"type": "text", "text": "Searching the catalog."},
    {"type": "tool_use", "id": "toolu_01", "name": "search_products", "input": {"query": "keyboard", "limit": 3}}
  ],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 120, "output_tokens": 18}
}`

type recordedRequest struct {
	Path    string
	Headers http.Header
	Body    map[string]any
}

type recorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (r *recorder) requests() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.reqs...)
}

func recordingServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)

		rec.mu.Lock()
		rec.reqs = append(rec.reqs, recordedRequest{Path: r.URL.Path, Headers: r.Header.Clone(), Body: decoded})
		rec.mu.Unlock()

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func noRetries() *int {
	n := 0
	return &n
}

func history() []agent.Message {
	return []agent.Message{
		{Role: agent.RoleSystem, Content: "You are a shopping assistant."},
		{Role: agent.RoleUser, Content: "Buy a keyboard from shop.test"},
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{
			{ID: "toolu_a", Name: "discover_merchant", Arguments: map[string]any{"domain": "shop.test"}},
			{ID: "toolu_b", Name: "view_cart", Arguments: map[string]any{}},
		}},
		{Role: agent.RoleTool, ToolCallID: "toolu_a", Name: "discover_merchant", Content: `{"protocol":"ucp"}`},
		{Role: agent.RoleTool, ToolCallID: "toolu_b", Name: "view_cart", Content: `{"itemCount":0}`},
	}
}

func TestAnthropicChat(t *testing.T) {
	srv, seen := recordingServer(t, http.StatusOK, "application/json", anthropicToolUse)
	adapter := NewAnthropic(Config{APIKey: "sk-ant-test", BaseURL: srv.URL, MaxTokens: 512, MaxRetries: noRetries()})

	resp, err := adapter.Chat(context.Background(), history(), tools.Builtins())
	require.NoError(t, err)

	t.Run("should map content and tool calls", func(t *testing.T) {
		assert.Equal(t, "Searching the catalog.", resp.Content)
		assert.Equal(t, "tool_use", resp.FinishReason)
		require.Len(t, resp.ToolCalls, 1)
		assert.Equal(t, "toolu_01", resp.ToolCalls[0].ID)
		assert.Equal(t, "search_products", resp.ToolCalls[0].Name)
		assert.Equal(t, "keyboard", resp.ToolCalls[0].Arguments["query"])
		assert.EqualValues(t, 3, resp.ToolCalls[0].Arguments["limit"])
		assert.Equal(t, &agent.TokenUsage{PromptTokens: 120, CompletionTokens: 18}, resp.Usage)
	})

	require.Len(t, seen.requests(), 1)
	req := seen.requests()[0]

	t.Run("should authenticate and target the messages endpoint", func(t *testing.T) {
		assert.True(t, strings.HasSuffix(req.Path, "/messages"))
		assert.Equal(t, "sk-ant-test", req.Headers.Get("X-Api-Key"))
	})

	t.Run("should send the system prompt separately", func(t *testing.T) {
		system := req.Body["system"].([]any)
		require.Len(t, system, 1)
		assert.Equal(t, "You are a shopping assistant.", system[0].(map[string]any)["text"])
		assert.EqualValues(t, 512, req.Body["max_tokens"])
	})

	t.Run("should fold tool results into one user turn keyed by call id", func(t *testing.T) {
		messages := req.Body["messages"].([]any)
		require.Len(t, messages, 3)

		assistant := messages[1].(map[string]any)
		assert.Equal(t, "assistant", assistant["role"])
		uses := assistant["content"].([]any)
		require.Len(t, uses, 2)
		assert.Equal(t, "toolu_a", uses[0].(map[string]any)["id"])

		results := messages[2].(map[string]any)
		assert.Equal(t, "user", results["role"])
		blocks := results["content"].([]any)
		require.Len(t, blocks, 2)
		assert.Equal(t, "tool_result", blocks[0].(map[string]any)["type"])
		assert.Equal(t, "toolu_a", blocks[0].(map[string]any)["tool_use_id"])
		assert.Equal(t, "toolu_b", blocks[1].(map[string]any)["tool_use_id"])
	})

	t.Run("should send every tool with its required fields", func(t *testing.T) {
		sent := req.Body["tools"].([]any)
		require.Len(t, sent, len(tools.Builtins()))

		var discover map[string]any
		for _, s := range sent {
			if s.(map[string]any)["name"] == tools.DiscoverMerchant {
				discover = s.(map[string]any)
			}
		}
		require.NotNil(t, discover)
		schema := discover["input_schema"].(map[string]any)
		assert.Equal(t, []any{"domain"}, schema["required"])
	})
}

func TestAnthropicChatError(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusInternalServerError, "application/json",
		`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`)
	adapter := NewAnthropic(Config{APIKey: "sk-ant-test", BaseURL: srv.URL, MaxRetries: noRetries()})

	_, err := adapter.Chat(context.Background(), history(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic api error")
	assert.False(t, adapter.Capabilities().Streaming)
}

func TestNew(t *testing.T) {
	t.Run("should build each supported provider", func(t *testing.T) {
		a, err := New(Config{Provider: ProviderAnthropic, APIKey: "k"})
		require.NoError(t, err)
		assert.IsType(t, &Anthropic{}, a)

		o, err := New(Config{Provider: ProviderOpenAI, APIKey: "k"})
		require.NoError(t, err)
		assert.IsType(t, &OpenAI{}, o)
		_, streams := o.(agent.StreamingAdapter)
		assert.True(t, streams)
	})

	t.Run("should reject unknown providers", func(t *testing.T) {
		_, err := New(Config{Provider: "gemini"})
		assert.ErrorContains(t, err, "unsupported provider")
	})

	t.Run("should default model and token limits", func(t *testing.T) {
		a := NewAnthropic(Config{})
		assert.Equal(t, defaultAnthropicModel, a.model)
		assert.EqualValues(t, 4096, a.maxTokens)
		assert.Equal(t, defaultOpenAIModel, NewOpenAI(Config{}).model)
	})
}

func TestParseArguments(t *testing.T) {
	args, err := parseArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = parseArguments(`{"productId":"prod_kb","quantity":2}`)
	require.NoError(t, err)
	assert.Equal(t, "prod_kb", args["productId"])

	_, err = parseArguments(`{"productId":`)
	assert.Error(t, err)

	assert.Equal(t, []string{"a", "b"}, requiredFields(map[string]any{"required": []any{"a", "b"}}))
	assert.Nil(t, requiredFields(map[string]any{}))
}
