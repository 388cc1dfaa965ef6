package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/acp"
	"github.com/harun/shopagent/pkg/plugin"
	"github.com/harun/shopagent/pkg/tools"
	"github.com/harun/shopagent/pkg/ucp"
)

const (
	tracerName = "github.com/harun/shopagent/pkg/agent"

	// DefaultMaxIterations bounds the LLM calls of one run
	DefaultMaxIterations = 20

	// DefaultSystemPrompt is used when Config.SystemPrompt is empty
	DefaultSystemPrompt = "You are a shopping assistant. Discover the merchant first, then use the catalog, cart and checkout tools to complete the user's task. Submit shipping before payment. Report the order id when done."

	modeBuffered = "buffered"
	modeStream   = "stream"
)

// ErrRunInProgress is returned when Run or RunStream is called while another
// run on the same orchestrator has not finished
var ErrRunInProgress = errors.New("agent: a run is already in progress on this orchestrator")

// Config configures an Orchestrator
type Config struct {
	Adapter Adapter

	// UCP is the discovery-protocol client; a default client is created when nil.
	UCP *ucp.Client

	// ACP is the session-checkout client; nil disables the protocol.
	ACP *acp.Client

	Plugins       []plugin.Plugin
	MaxIterations int
	SystemPrompt  string
	Logger        zerolog.Logger

	// OnStep is called synchronously for every recorded step.
	OnStep func(Step)

	// Clock defaults to time.Now.
	Clock func() time.Time

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Orchestrator drives one shopping task at a time
type Orchestrator struct {
	adapter  Adapter
	streamer StreamingAdapter
	ucp      *ucp.Client
	acp      *acp.Client
	registry *plugin.Registry
	commands map[string]command
	catalog  []tools.Definition
	maxIter  int
	prompt   string
	logger   zerolog.Logger
	onStep   func(Step)
	clock    func() time.Time
	tp       trace.TracerProvider
	state    *ShoppingState
	running  atomic.Bool
}

// New validates cfg, merges plugins into the tool catalog and builds the
// command table
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations cannot be negative")
	}

	registry, err := plugin.NewRegistry(tools.Builtins(), cfg.Plugins...)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		adapter:  cfg.Adapter,
		ucp:      cfg.UCP,
		acp:      cfg.ACP,
		registry: registry,
		catalog:  registry.Catalog(),
		maxIter:  cfg.MaxIterations,
		prompt:   cfg.SystemPrompt,
		logger:   cfg.Logger,
		onStep:   cfg.OnStep,
		clock:    cfg.Clock,
		tp:       cfg.TracerProvider,
		state:    NewShoppingState(),
	}
	if o.maxIter == 0 {
		o.maxIter = DefaultMaxIterations
	}
	if o.prompt == "" {
		o.prompt = DefaultSystemPrompt
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.ucp == nil {
		o.ucp = ucp.NewClient(ucp.WithLogger(cfg.Logger), ucp.WithTracerProvider(cfg.TracerProvider))
	}

	if cfg.Adapter.Capabilities().Streaming {
		sa, ok := cfg.Adapter.(StreamingAdapter)
		if !ok {
			return nil, fmt.Errorf("adapter reports streaming but does not implement ChatStream")
		}
		o.streamer = sa
	}

	o.commands = o.builtinCommands()
	for _, p := range cfg.Plugins {
		o.commands[p.Name] = pluginCommand(p.Handler)
	}
	if err := o.validateCommands(); err != nil {
		return nil, err
	}

	return o, nil
}

// validateCommands checks that the catalog and the command table name the same tools
func (o *Orchestrator) validateCommands() error {
	for _, def := range o.catalog {
		if _, ok := o.commands[def.Name]; !ok {
			return fmt.Errorf("tool %q has no handler", def.Name)
		}
	}
	for name := range o.commands {
		if !o.registry.Has(name) {
			return fmt.Errorf("handler %q is not in the tool catalog", name)
		}
	}
	return nil
}

// Catalog returns the merged tool catalog sent to the adapter
func (o *Orchestrator) Catalog() []tools.Definition {
	return append([]tools.Definition(nil), o.catalog...)
}

// State returns the shopping state of the last or current run
func (o *Orchestrator) State() *ShoppingState {
	return o.state
}

// Run executes task to completion and returns the buffered result.
// Adapter errors abort the run; tool errors do not.
func (o *Orchestrator) Run(ctx context.Context, task string) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	return o.run(ctx, task, modeBuffered, func(StreamEvent) bool { return true })
}

// RunStream executes task and emits events as they happen. The channel is
// closed when the run ends. Cancelling ctx stops the run at the next event.
func (o *Orchestrator) RunStream(ctx context.Context, task string) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)

	if !o.running.CompareAndSwap(false, true) {
		events <- StreamEvent{Type: EventError, Err: ErrRunInProgress}
		close(events)
		return events
	}

	go func() {
		defer close(events)
		defer o.running.Store(false)

		emit := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		result, err := o.run(ctx, task, modeStream, emit)
		if err != nil {
			emit(StreamEvent{Type: EventError, Err: err})
			return
		}
		emit(StreamEvent{Type: EventResult, Result: result})
	}()

	return events
}

// run is the loop shared by Run and RunStream. emit returns false once the
// consumer is gone.
func (o *Orchestrator) run(ctx context.Context, task, mode string, emit func(StreamEvent) bool) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.NewRunContext(ctx)
	runID := tracing.GetRunID(ctx)

	ctx, span := tracing.StartSpan(ctx, o.tp, tracerName, "agent.run",
		attribute.String("agent.run_id", runID),
		attribute.String("agent.mode", mode),
		attribute.Int("agent.max_iterations", o.maxIter),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, o.logger)
	start := o.clock()
	o.state.Reset()

	logger.Info().
		Str("mode", mode).
		Int("task_length", len(task)).
		Int("max_iterations", o.maxIter).
		Int("tools", len(o.catalog)).
		Msg("run started")

	res := &Result{RunID: runID, Steps: []Step{}}
	messages := []Message{
		{Role: RoleSystem, Content: o.prompt},
		{Role: RoleUser, Content: task},
	}

	record := func(step Step) bool {
		step.Timestamp = o.clock()
		res.Steps = append(res.Steps, step)
		if o.onStep != nil {
			o.onStep(step)
		}
		return emit(StreamEvent{Type: EventStep, Iteration: step.Iteration, Step: &step})
	}

	finish := func(err error) (*Result, error) {
		res.Usage.TotalLatency = o.clock().Sub(start)
		res.Orders = o.state.Orders()
		res.Protocol = o.state.Protocol()

		span.SetAttributes(
			attribute.Int("agent.iterations", res.Iterations),
			attribute.Bool("agent.success", res.Success),
			attribute.Int("agent.total_tokens", res.Usage.TotalTokens),
		)
		observability.RecordAgentRun(mode, res.Usage.TotalLatency, res.Iterations, err == nil && res.Success)

		if err != nil {
			tracing.RecordError(span, err)
			logger.Error().Err(err).Int("iterations", res.Iterations).Msg("run failed")
			return nil, err
		}
		logger.Info().
			Bool("success", res.Success).
			Int("iterations", res.Iterations).
			Int("llm_calls", res.Usage.LLMCalls).
			Int("tool_calls", res.Usage.ToolCalls).
			Int("total_tokens", res.Usage.TotalTokens).
			Int("orders", len(res.Orders)).
			Dur("latency", res.Usage.TotalLatency).
			Msg("run finished")
		return res, nil
	}

	for iter := 1; iter <= o.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		res.Iterations = iter

		resp, err := o.callLLM(ctx, logger, iter, mode, messages, emit)
		if err != nil {
			return finish(err)
		}
		res.Usage.addLLM(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			res.Success = true
			res.Answer = resp.Content
			record(Step{Iteration: iter, Type: StepFinalAnswer, Text: resp.Content})
			return finish(nil)
		}

		// text alongside tool calls is the model's reasoning for this turn
		if resp.Content != "" {
			if !record(Step{Iteration: iter, Type: StepThinking, Text: resp.Content}) {
				return finish(ctx.Err())
			}
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if !record(Step{Iteration: iter, Type: StepToolCall, Tool: call.Name, ToolCallID: call.ID, Input: call.Arguments}) {
				return finish(ctx.Err())
			}

			began := o.clock()
			output := o.executeTool(ctx, logger, iter, call)
			res.Usage.addTool(call.Name, o.clock().Sub(began))

			if !record(Step{Iteration: iter, Type: StepToolResult, Tool: call.Name, ToolCallID: call.ID, Output: output}) {
				return finish(ctx.Err())
			}

			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    stringify(output),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	res.Success = false
	res.Answer = fmt.Sprintf("Stopped after %d iterations without completing the task.", o.maxIter)
	logger.Warn().Int("max_iterations", o.maxIter).Msg("iteration limit reached")
	return finish(nil)
}

// callLLM performs one adapter call inside an agent.llm_call span
func (o *Orchestrator) callLLM(ctx context.Context, logger zerolog.Logger, iter int, mode string, messages []Message, emit func(StreamEvent) bool) (*Response, error) {
	streaming := mode == modeStream && o.streamer != nil

	ctx, span := tracing.StartSpan(ctx, o.tp, tracerName, "agent.llm_call",
		attribute.Int("agent.iteration", iter),
		attribute.Int("llm.messages", len(messages)),
		attribute.Bool("llm.streaming", streaming),
	)
	defer span.End()

	start := o.clock()
	var (
		resp *Response
		err  error
	)
	switch {
	case streaming:
		resp, err = o.consumeStream(ctx, iter, messages, emit)
	default:
		resp, err = o.adapter.Chat(ctx, messages, o.Catalog())
		if err == nil && resp == nil {
			err = fmt.Errorf("adapter returned no response")
		}
		if err == nil && mode == modeStream && resp.Content != "" {
			emit(StreamEvent{Type: EventTextDelta, Iteration: iter, Text: resp.Content})
		}
	}
	elapsed := o.clock().Sub(start)

	if err != nil {
		observability.RecordLLMCall(mode, elapsed, 0, 0, false)
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("llm call %d: %w", iter, err)
	}

	prompt, completion := 0, 0
	if resp.Usage != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	observability.RecordLLMCall(mode, elapsed, prompt, completion, true)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", prompt),
		attribute.Int("llm.completion_tokens", completion),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		attribute.String("llm.finish_reason", resp.FinishReason),
	)

	logger.Debug().
		Int("iteration", iter).
		Int("prompt_tokens", prompt).
		Int("completion_tokens", completion).
		Int("tool_calls", len(resp.ToolCalls)).
		Str("finish_reason", resp.FinishReason).
		Dur("latency", elapsed).
		Msg("llm call completed")

	return resp, nil
}

// consumeStream forwards adapter chunks as events until the done chunk
func (o *Orchestrator) consumeStream(ctx context.Context, iter int, messages []Message, emit func(StreamEvent) bool) (*Response, error) {
	chunks, err := o.streamer.ChatStream(ctx, messages, o.Catalog())
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil, fmt.Errorf("stream closed without a final response")
			}

			var ev StreamEvent
			switch chunk.Type {
			case ChunkTextDelta:
				ev = StreamEvent{Type: EventTextDelta, Text: chunk.Text}
			case ChunkToolCallStart:
				ev = StreamEvent{Type: EventToolCallStart, ToolCall: chunk.ToolCall}
			case ChunkToolCallDelta:
				ev = StreamEvent{Type: EventToolCallDelta, ToolCall: chunk.ToolCall, ArgumentsDelta: chunk.ArgumentsDelta}
			case ChunkToolCallComplete:
				ev = StreamEvent{Type: EventToolCallComplete, ToolCall: chunk.ToolCall}
			case ChunkError:
				if chunk.Err == nil {
					chunk.Err = fmt.Errorf("stream failed")
				}
				return nil, chunk.Err
			case ChunkDone:
				if chunk.Response == nil {
					return nil, fmt.Errorf("stream finished without a response")
				}
				return chunk.Response, nil
			default:
				continue
			}

			ev.Iteration = iter
			if !emit(ev) {
				return nil, context.Cause(ctx)
			}
		}
	}
}

// executeTool runs one tool call inside an agent.tool_call span. Every failure,
// including a panicking plugin, is turned into an {"error": ...} payload.
func (o *Orchestrator) executeTool(ctx context.Context, logger zerolog.Logger, iter int, call ToolCall) (output any) {
	ctx, span := tracing.StartSpan(ctx, o.tp, tracerName, "agent.tool_call",
		attribute.Int("agent.iteration", iter),
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)
	defer span.End()

	start := o.clock()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
			output = errorPayload(err)
		}

		elapsed := o.clock().Sub(start)
		observability.RecordToolExecution(call.Name, elapsed, err == nil)
		if err != nil {
			tracing.RecordError(span, err)
			logger.Warn().Err(err).Str("tool", call.Name).Str("call_id", call.ID).Dur("latency", elapsed).Msg("tool failed")
			return
		}
		logger.Debug().Str("tool", call.Name).Str("call_id", call.ID).Dur("latency", elapsed).Msg("tool completed")
	}()

	cmd, ok := o.commands[call.Name]
	if !ok {
		err = fmt.Errorf("unknown tool %q", call.Name)
		return map[string]any{"error": "Unknown tool", "tool": call.Name}
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err = o.registry.Validate(call.Name, args); err != nil {
		return errorPayload(err)
	}

	var result any
	result, err = cmd(ctx, args)
	if err != nil {
		return errorPayload(err)
	}
	return result
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// stringify renders a tool result for the conversation history
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
