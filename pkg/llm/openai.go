package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/shopagent/pkg/agent"
	"github.com/harun/shopagent/pkg/tools"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI implements agent.StreamingAdapter for the Chat Completions API
type OpenAI struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewOpenAI creates a new OpenAI adapter
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}

	a := &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
	if a.model == "" {
		a.model = defaultOpenAIModel
	}
	return a
}

// Capabilities implements agent.Adapter
func (a *OpenAI) Capabilities() agent.Capabilities {
	return agent.Capabilities{Streaming: true}
}

// Chat implements agent.Adapter
func (a *OpenAI) Chat(ctx context.Context, messages []agent.Message, defs []tools.Definition) (*agent.Response, error) {
	params, err := a.params(messages, defs)
	if err != nil {
		return nil, err
	}

	response, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	return openAIResponse(choice.Message, string(choice.FinishReason), response.Usage)
}

// ChatStream implements agent.StreamingAdapter. Text and argument fragments are
// forwarded as they arrive; tool calls are completed once the stream ends.
func (a *OpenAI) ChatStream(ctx context.Context, messages []agent.Message, defs []tools.Definition) (<-chan agent.StreamChunk, error) {
	params, err := a.params(messages, defs)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan agent.StreamChunk, 32)

	go func() {
		defer close(out)
		defer stream.Close()

		send := func(chunk agent.StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		acc := openai.ChatCompletionAccumulator{}
		calls := map[int64]*agent.ToolCall{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !send(agent.StreamChunk{Type: agent.ChunkTextDelta, Text: choice.Delta.Content}) {
						return
					}
				}
				for _, delta := range choice.Delta.ToolCalls {
					call, ok := calls[delta.Index]
					if !ok {
						call = &agent.ToolCall{ID: delta.ID, Name: delta.Function.Name}
						calls[delta.Index] = call
						if !send(agent.StreamChunk{Type: agent.ChunkToolCallStart, ToolCall: &agent.ToolCall{ID: call.ID, Name: call.Name}}) {
							return
						}
					}
					if delta.Function.Arguments != "" {
						if !send(agent.StreamChunk{
							Type:           agent.ChunkToolCallDelta,
							ToolCall:       &agent.ToolCall{ID: call.ID, Name: call.Name},
							ArgumentsDelta: delta.Function.Arguments,
						}) {
							return
						}
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(agent.StreamChunk{Type: agent.ChunkError, Err: fmt.Errorf("openai streaming error: %w", err)})
			return
		}
		if len(acc.Choices) == 0 {
			send(agent.StreamChunk{Type: agent.ChunkError, Err: fmt.Errorf("no response choices returned")})
			return
		}

		choice := acc.Choices[0]
		resp, err := openAIResponse(choice.Message, string(choice.FinishReason), acc.Usage)
		if err != nil {
			send(agent.StreamChunk{Type: agent.ChunkError, Err: err})
			return
		}
		for i := range resp.ToolCalls {
			if !send(agent.StreamChunk{Type: agent.ChunkToolCallComplete, ToolCall: &resp.ToolCalls[i]}) {
				return
			}
		}
		send(agent.StreamChunk{Type: agent.ChunkDone, Response: resp})
	}()

	return out, nil
}

func (a *OpenAI) params(messages []agent.Message, defs []tools.Definition) (openai.ChatCompletionNewParams, error) {
	converted, err := openAIMessages(messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: converted,
	}
	if a.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(a.maxTokens)
	}
	if a.temperature > 0 {
		params.Temperature = openai.Float(a.temperature)
	}

	if len(defs) > 0 {
		toolParams := make([]openai.ChatCompletionToolParam, 0, len(defs))
		for _, def := range defs {
			toolParams = append(toolParams, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.Parameters),
				},
			})
		}
		params.Tools = toolParams
	}
	return params, nil
}

func openAIMessages(messages []agent.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agent.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case agent.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case agent.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}

			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}

			assistant := openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: calls,
			}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out, nil
}

func openAIResponse(msg openai.ChatCompletionMessage, finishReason string, usage openai.CompletionUsage) (*agent.Response, error) {
	out := &agent.Response{
		Content:      msg.Content,
		FinishReason: finishReason,
		Usage: &agent.TokenUsage{
			PromptTokens:     int(usage.PromptTokens),
			CompletionTokens: int(usage.CompletionTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		args, err := parseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, agent.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}
