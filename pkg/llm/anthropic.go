package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/shopagent/pkg/agent"
	"github.com/harun/shopagent/pkg/tools"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// Anthropic implements agent.Adapter for Anthropic Claude
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropic creates a new Anthropic adapter
func NewAnthropic(cfg Config) *Anthropic {
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

	a := &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
	if a.model == "" {
		a.model = defaultAnthropicModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 4096
	}
	return a
}

// Capabilities implements agent.Adapter
func (a *Anthropic) Capabilities() agent.Capabilities {
	return agent.Capabilities{}
}

// Chat implements agent.Adapter
func (a *Anthropic) Chat(ctx context.Context, messages []agent.Message, defs []tools.Definition) (*agent.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		Messages:  anthropicMessages(messages),
		MaxTokens: a.maxTokens,
	}

	var system []anthropic.TextBlockParam
	for _, msg := range messages {
		if msg.Role == agent.RoleSystem && msg.Content != "" {
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	if len(system) > 0 {
		params.System = system
	}

	if a.temperature > 0 {
		params.Temperature = anthropic.Float(a.temperature)
	}
	if len(defs) > 0 {
		params.Tools = anthropicTools(defs)
	}

	response, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	out := &agent.Response{
		FinishReason: string(response.StopReason),
		Usage: &agent.TokenUsage{
			PromptTokens:     int(response.Usage.InputTokens),
			CompletionTokens: int(response.Usage.OutputTokens),
		},
	}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += b.Text
		case anthropic.ToolUseBlock:
			args, err := parseArguments(b.JSON.Input.Raw())
			if err != nil {
				return nil, err
			}
			out.ToolCalls = append(out.ToolCalls, agent.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	return out, nil
}

// anthropicMessages converts the history. System messages go to params.System,
// and consecutive tool results are folded into one user turn.
func anthropicMessages(messages []agent.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == agent.RoleTool {
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		flush()

		switch msg.Role {
		case agent.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case agent.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any = tc.Arguments
				if tc.Arguments == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flush()
	return out
}

func anthropicTools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		tool := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: def.Parameters["properties"],
				Required:   requiredFields(def.Parameters),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}
