package agent

import (
	"time"
)

// StepType classifies an entry of the run trace
type StepType string

const (
	StepThinking    StepType = "thinking"
	StepToolCall    StepType = "tool_call"
	StepToolResult  StepType = "tool_result"
	StepFinalAnswer StepType = "final_answer"
)

// Step is one entry of the append-only run trace
type Step struct {
	Iteration  int            `json:"iteration"`
	Type       StepType       `json:"type"`
	Tool       string         `json:"tool,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     any            `json:"output,omitempty"`
	Text       string         `json:"text,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Usage summarizes one run
type Usage struct {
	PromptTokens     int                        `json:"prompt_tokens"`
	CompletionTokens int                        `json:"completion_tokens"`
	TotalTokens      int                        `json:"total_tokens"`
	LLMCalls         int                        `json:"llm_calls"`
	ToolCalls        int                        `json:"tool_calls"`
	ToolLatencies    map[string][]time.Duration `json:"tool_latencies"`
	TotalLatency     time.Duration              `json:"total_latency"`
}

func (u *Usage) addLLM(tu *TokenUsage) {
	u.LLMCalls++
	if tu == nil {
		return
	}
	u.PromptTokens += tu.PromptTokens
	u.CompletionTokens += tu.CompletionTokens
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
}

func (u *Usage) addTool(name string, d time.Duration) {
	u.ToolCalls++
	if u.ToolLatencies == nil {
		u.ToolLatencies = make(map[string][]time.Duration)
	}
	u.ToolLatencies[name] = append(u.ToolLatencies[name], d)
}

// Result is the outcome of a run. Success is false when the iteration cap was
// reached without a final answer.
type Result struct {
	Success    bool     `json:"success"`
	Answer     string   `json:"answer"`
	Steps      []Step   `json:"steps"`
	Iterations int      `json:"iterations"`
	Usage      Usage    `json:"usage"`
	Orders     []Order  `json:"orders,omitempty"`
	Protocol   Protocol `json:"protocol,omitempty"`
	RunID      string   `json:"run_id"`
}

// EventType identifies a RunStream event
type EventType string

const (
	EventTextDelta        EventType = "text_delta"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolCallDelta    EventType = "tool_call_delta"
	EventToolCallComplete EventType = "tool_call_complete"
	EventStep             EventType = "step"
	EventResult           EventType = "result"
	EventError            EventType = "error"
)

// StreamEvent is emitted by RunStream. The last event is always a result or
// an error event, unless the caller cancelled the context.
type StreamEvent struct {
	Type           EventType
	Iteration      int
	Text           string
	ToolCall       *ToolCall
	ArgumentsDelta string
	Step           *Step
	Result         *Result
	Err            error
}
