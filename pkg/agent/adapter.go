package agent

import (
	"context"

	"github.com/harun/shopagent/pkg/tools"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the conversation history.
// Tool messages carry the id of the call they answer in ToolCallID and the
// tool name in Name.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// TokenUsage is the token count reported for one LLM call
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the adapter's answer to one chat request
type Response struct {
	Content      string      `json:"content"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Capabilities describes optional adapter features
type Capabilities struct {
	Streaming bool
}

// Adapter translates the neutral message format to an LLM provider and back
type Adapter interface {
	Chat(ctx context.Context, messages []Message, defs []tools.Definition) (*Response, error)
	Capabilities() Capabilities
}

// StreamingAdapter is an Adapter that can also stream its response.
// It is only used when Capabilities().Streaming is true.
type StreamingAdapter interface {
	Adapter
	ChatStream(ctx context.Context, messages []Message, defs []tools.Definition) (<-chan StreamChunk, error)
}

// ChunkType identifies a streamed chunk
type ChunkType string

const (
	ChunkTextDelta        ChunkType = "text_delta"
	ChunkToolCallStart    ChunkType = "tool_call_start"
	ChunkToolCallDelta    ChunkType = "tool_call_delta"
	ChunkToolCallComplete ChunkType = "tool_call_complete"
	ChunkDone             ChunkType = "done"
	ChunkError            ChunkType = "error"
)

// StreamChunk is one increment of a streamed response. The stream ends with
// exactly one done chunk carrying the finalized Response, or an error chunk.
type StreamChunk struct {
	Type ChunkType

	// Text is set on text_delta chunks.
	Text string

	// ToolCall is set on tool_call_* chunks. Arguments are only complete on
	// tool_call_complete.
	ToolCall *ToolCall

	// ArgumentsDelta is the raw JSON fragment of a tool_call_delta chunk.
	ArgumentsDelta string

	Response *Response
	Err      error
}
