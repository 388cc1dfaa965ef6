// Package llm adapts hosted model APIs to the agent.Adapter contract.
//
// The Anthropic adapter is buffered only. The OpenAI adapter also implements
// agent.StreamingAdapter: text and tool-call argument deltas are forwarded as
// they arrive and the final response is assembled with the SDK accumulator.
//
// Both adapters carry the provider's tool-call id through ToolCall.ID and
// expect tool results back with that id in Message.ToolCallID.
package llm
