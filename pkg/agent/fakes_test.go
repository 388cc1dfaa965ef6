package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/harun/shopagent/pkg/tools"
)

// scriptedAdapter replays canned responses and records what it was sent.
// Once the script is exhausted it answers with a final "done".
type scriptedAdapter struct {
	mu        sync.Mutex
	responses []*Response
	seen      [][]Message
	defs      []tools.Definition
	err       error
}

func (a *scriptedAdapter) Chat(_ context.Context, messages []Message, defs []tools.Definition) (*Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seen = append(a.seen, append([]Message(nil), messages...))
	a.defs = defs
	if a.err != nil {
		return nil, a.err
	}
	if len(a.responses) == 0 {
		return &Response{Content: "done", FinishReason: "stop"}, nil
	}
	r := a.responses[0]
	a.responses = a.responses[1:]
	return r, nil
}

func (a *scriptedAdapter) Capabilities() Capabilities { return Capabilities{} }

func (a *scriptedAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// loopingAdapter asks for view_cart forever
type loopingAdapter struct {
	scriptedAdapter
}

func (a *loopingAdapter) Chat(ctx context.Context, messages []Message, defs []tools.Definition) (*Response, error) {
	_, _ = a.scriptedAdapter.Chat(ctx, messages, defs)
	return &Response{
		ToolCalls:    []ToolCall{{ID: "call_loop", Name: tools.ViewCart, Arguments: map[string]any{}}},
		FinishReason: "tool_calls",
		Usage:        &TokenUsage{PromptTokens: 10, CompletionTokens: 2},
	}, nil
}

// streamingAdapter streams the scripted responses word by word
type streamingAdapter struct {
	scriptedAdapter
}

func (a *streamingAdapter) Capabilities() Capabilities { return Capabilities{Streaming: true} }

func (a *streamingAdapter) ChatStream(ctx context.Context, messages []Message, defs []tools.Definition) (<-chan StreamChunk, error) {
	resp, err := a.Chat(ctx, messages, defs)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 64)
	for _, word := range strings.SplitAfter(resp.Content, " ") {
		if word != "" {
			ch <- StreamChunk{Type: ChunkTextDelta, Text: word}
		}
	}
	for _, tc := range resp.ToolCalls {
		call := tc
		args, _ := json.Marshal(call.Arguments)
		ch <- StreamChunk{Type: ChunkToolCallStart, ToolCall: &ToolCall{ID: call.ID, Name: call.Name}}
		ch <- StreamChunk{Type: ChunkToolCallDelta, ToolCall: &ToolCall{ID: call.ID, Name: call.Name}, ArgumentsDelta: string(args)}
		ch <- StreamChunk{Type: ChunkToolCallComplete, ToolCall: &call}
	}
	ch <- StreamChunk{Type: ChunkDone, Response: resp}
	close(ch)
	return ch, nil
}

// claimsStreaming reports streaming without implementing ChatStream
type claimsStreaming struct {
	scriptedAdapter
}

func (a *claimsStreaming) Capabilities() Capabilities { return Capabilities{Streaming: true} }

func toolCall(id, name string, args map[string]any) ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return ToolCall{ID: id, Name: name, Arguments: args}
}

func toolTurn(calls ...ToolCall) *Response {
	return &Response{ToolCalls: calls, FinishReason: "tool_calls", Usage: &TokenUsage{PromptTokens: 100, CompletionTokens: 20}}
}
