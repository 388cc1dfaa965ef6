package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/harun/shopagent/pkg/plugin"
	"github.com/harun/shopagent/pkg/tools"
)

func TestNew(t *testing.T) {
	t.Run("should require an adapter", func(t *testing.T) {
		_, err := New(Config{})
		assert.ErrorContains(t, err, "adapter")
	})

	t.Run("should apply defaults", func(t *testing.T) {
		o, err := New(Config{Adapter: &scriptedAdapter{}})
		require.NoError(t, err)

		assert.Equal(t, DefaultMaxIterations, o.maxIter)
		assert.Equal(t, DefaultSystemPrompt, o.prompt)
		assert.Nil(t, o.streamer)
		assert.Len(t, o.commands, len(tools.Builtins()))
	})

	t.Run("should fail fast on plugin collisions", func(t *testing.T) {
		_, err := New(Config{
			Adapter: &scriptedAdapter{},
			Plugins: []plugin.Plugin{{Name: tools.ViewCart, Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}},
		})
		assert.ErrorIs(t, err, plugin.ErrNameCollision)
	})

	t.Run("should reject a streaming flag without ChatStream", func(t *testing.T) {
		_, err := New(Config{Adapter: &claimsStreaming{}})
		assert.ErrorContains(t, err, "ChatStream")
	})

	t.Run("should resolve streaming once", func(t *testing.T) {
		o, err := New(Config{Adapter: &streamingAdapter{}})
		require.NoError(t, err)
		assert.NotNil(t, o.streamer)
	})
}

func TestRunFinalAnswer(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*Response{
		{Content: "Nothing to buy.", FinishReason: "stop", Usage: &TokenUsage{PromptTokens: 50, CompletionTokens: 5}},
	}}
	var steps []Step
	o, err := New(Config{Adapter: adapter, OnStep: func(s Step) { steps = append(steps, s) }})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), "hello")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Nothing to buy.", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 55, res.Usage.TotalTokens)
	assert.Equal(t, 1, res.Usage.LLMCalls)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.Steps, steps)

	require.Len(t, res.Steps, 1)
	assert.Equal(t, StepFinalAnswer, res.Steps[0].Type)
	assert.Equal(t, "Nothing to buy.", res.Steps[0].Text)

	require.Len(t, adapter.seen, 1)
	assert.Equal(t, RoleSystem, adapter.seen[0][0].Role)
	assert.Equal(t, RoleUser, adapter.seen[0][1].Role)
	assert.Len(t, adapter.defs, len(tools.Builtins()))
}

func TestRunMaxIterations(t *testing.T) {
	for _, limit := range []int{1, 3, 7} {
		adapter := &loopingAdapter{}
		o, err := New(Config{Adapter: adapter, MaxIterations: limit})
		require.NoError(t, err)

		res, err := o.Run(context.Background(), "loop forever")
		require.NoError(t, err)

		assert.False(t, res.Success)
		assert.Contains(t, res.Answer, "iterations")
		assert.Equal(t, limit, res.Iterations)
		assert.Equal(t, limit, adapter.calls())
		assert.Equal(t, limit, res.Usage.ToolCalls)
		assert.Len(t, res.Usage.ToolLatencies[tools.ViewCart], limit)
	}
}

func TestRunSpansAreSymmetric(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	o, err := New(Config{Adapter: &loopingAdapter{}, MaxIterations: 3, TracerProvider: tp})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "loop")
	require.NoError(t, err)

	assert.Equal(t, len(rec.Started()), len(rec.Ended()))

	counts := map[string]int{}
	for _, s := range rec.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 1, counts["agent.run"])
	assert.Equal(t, 3, counts["agent.llm_call"])
	assert.Equal(t, 3, counts["agent.tool_call"])
}

func TestRunToolMessages(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*Response{
		toolTurn(
			toolCall("call_a", tools.ViewCart, nil),
			toolCall("call_b", tools.ViewCart, nil),
			toolCall("call_c", "no_such_tool", nil),
		),
	}}
	o, err := New(Config{Adapter: adapter})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), "check the cart")
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Len(t, adapter.seen, 2)
	history := adapter.seen[1]
	require.Len(t, history, 6)

	assert.Equal(t, RoleAssistant, history[2].Role)
	assert.Len(t, history[2].ToolCalls, 3)

	t.Run("should carry the true call id and the tool name", func(t *testing.T) {
		for i, id := range []string{"call_a", "call_b", "call_c"} {
			msg := history[3+i]
			assert.Equal(t, RoleTool, msg.Role)
			assert.Equal(t, id, msg.ToolCallID)
		}
		assert.Equal(t, tools.ViewCart, history[3].Name)
		assert.Equal(t, "no_such_tool", history[5].Name)
	})

	t.Run("should report unknown tools", func(t *testing.T) {
		assert.Contains(t, history[5].Content, `"error":"Unknown tool"`)
	})

	t.Run("should record call and result steps", func(t *testing.T) {
		var types []StepType
		for _, s := range res.Steps {
			types = append(types, s.Type)
		}
		assert.Equal(t, []StepType{
			StepToolCall, StepToolResult,
			StepToolCall, StepToolResult,
			StepToolCall, StepToolResult,
			StepFinalAnswer,
		}, types)
	})
}

func TestRunRecordsEachTextOnce(t *testing.T) {
	reasoning := toolTurn(toolCall("call_1", tools.ViewCart, nil))
	reasoning.Content = "Let me look at the cart first."
	adapter := &scriptedAdapter{responses: []*Response{
		reasoning,
		{Content: "Your cart is empty.", FinishReason: "stop"},
	}}
	o, err := New(Config{Adapter: adapter})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), "what is in my cart?")
	require.NoError(t, err)

	var types []StepType
	texts := map[string]int{}
	for _, s := range res.Steps {
		types = append(types, s.Type)
		if s.Text != "" {
			texts[s.Text]++
		}
	}
	assert.Equal(t, []StepType{StepThinking, StepToolCall, StepToolResult, StepFinalAnswer}, types)
	assert.Equal(t, map[string]int{"Let me look at the cart first.": 1, "Your cart is empty.": 1}, texts)
}

func TestRunPlugins(t *testing.T) {
	var order []string
	record := func(name string) plugin.Handler {
		return func(ctx context.Context, args map[string]any) (any, error) {
			order = append(order, name)
			return map[string]any{"ok": name}, nil
		}
	}

	adapter := &scriptedAdapter{responses: []*Response{
		toolTurn(
			toolCall("1", "first", nil),
			toolCall("2", "failing", nil),
			toolCall("3", "panicking", nil),
			toolCall("4", "async", nil),
			toolCall("5", "second", nil),
		),
	}}

	o, err := New(Config{
		Adapter: adapter,
		Plugins: []plugin.Plugin{
			{Name: "first", Handler: record("first")},
			{Name: "second", Handler: record("second")},
			{Name: "failing", Handler: func(context.Context, map[string]any) (any, error) {
				order = append(order, "failing")
				return nil, errors.New("inventory offline")
			}},
			{Name: "panicking", Handler: func(context.Context, map[string]any) (any, error) {
				order = append(order, "panicking")
				panic("boom")
			}},
			{Name: "async", Handler: func(ctx context.Context, _ map[string]any) (any, error) {
				done := make(chan string, 1)
				go func() {
					time.Sleep(5 * time.Millisecond)
					done <- "async"
				}()
				v := <-done
				order = append(order, v)
				return v, nil
			}},
		},
	})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), "use plugins")
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, []string{"first", "failing", "panicking", "async", "second"}, order)

	history := adapter.seen[1]
	assert.Contains(t, history[4].Content, "inventory offline")
	assert.Contains(t, history[5].Content, "panicked")
	assert.Equal(t, "async", history[6].Content)
}

func TestRunValidatesArguments(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*Response{
		toolTurn(toolCall("1", tools.AddToCart, map[string]any{"quantity": float64(2)})),
	}}
	o, err := New(Config{Adapter: adapter})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "add")
	require.NoError(t, err)

	assert.Contains(t, adapter.seen[1][3].Content, "productId")
}

func TestRunAdapterError(t *testing.T) {
	adapter := &scriptedAdapter{err: errors.New("rate limited")}
	o, err := New(Config{Adapter: adapter})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), "anything")
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "rate limited")
}

func TestRunCancelledContext(t *testing.T) {
	o, err := New(Config{Adapter: &loopingAdapter{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Run(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func collect(events <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunStream(t *testing.T) {
	t.Run("should forward adapter chunks", func(t *testing.T) {
		adapter := &streamingAdapter{scriptedAdapter{responses: []*Response{
			{Content: "Checking your cart", ToolCalls: []ToolCall{toolCall("call_1", tools.ViewCart, nil)}, FinishReason: "tool_calls"},
			{Content: "Your cart is empty.", FinishReason: "stop"},
		}}}
		o, err := New(Config{Adapter: adapter})
		require.NoError(t, err)

		events := collect(o.RunStream(context.Background(), "what is in my cart"))
		require.NotEmpty(t, events)

		last := events[len(events)-1]
		require.Equal(t, EventResult, last.Type)
		assert.True(t, last.Result.Success)
		assert.Equal(t, "Your cart is empty.", last.Result.Answer)

		var text strings.Builder
		kinds := map[EventType]int{}
		for _, ev := range events {
			kinds[ev.Type]++
			if ev.Type == EventTextDelta && ev.Iteration == 2 {
				text.WriteString(ev.Text)
			}
		}
		assert.Equal(t, "Your cart is empty.", text.String())
		assert.Equal(t, 1, kinds[EventToolCallStart])
		assert.Equal(t, 1, kinds[EventToolCallDelta])
		assert.Equal(t, 1, kinds[EventToolCallComplete])
		assert.Equal(t, len(last.Result.Steps), kinds[EventStep])
	})

	t.Run("should synthesize one text delta for buffered adapters", func(t *testing.T) {
		adapter := &scriptedAdapter{responses: []*Response{{Content: "All done here.", FinishReason: "stop"}}}
		o, err := New(Config{Adapter: adapter})
		require.NoError(t, err)

		var deltas []string
		for ev := range o.RunStream(context.Background(), "hi") {
			if ev.Type == EventTextDelta {
				deltas = append(deltas, ev.Text)
			}
		}
		assert.Equal(t, []string{"All done here."}, deltas)
	})

	t.Run("should end with an error event when the adapter fails", func(t *testing.T) {
		o, err := New(Config{Adapter: &streamingAdapter{scriptedAdapter{err: errors.New("upstream 500")}}})
		require.NoError(t, err)

		events := collect(o.RunStream(context.Background(), "hi"))
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, EventError, last.Type)
		assert.ErrorContains(t, last.Err, "upstream 500")
	})

	t.Run("should stop when the consumer cancels", func(t *testing.T) {
		o, err := New(Config{Adapter: &loopingAdapter{}, MaxIterations: 1000})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		events := o.RunStream(ctx, "loop")
		<-events
		cancel()

		done := make(chan struct{})
		go func() {
			for range events {
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not stop after cancel")
		}
	})
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	block := make(chan struct{})
	o, err := New(Config{
		Adapter: &scriptedAdapter{responses: []*Response{toolTurn(toolCall("1", "wait", nil))}},
		Plugins: []plugin.Plugin{{Name: "wait", Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			<-block
			return "ok", nil
		}}},
	})
	require.NoError(t, err)

	events := o.RunStream(context.Background(), "first")
	<-events

	_, err = o.Run(context.Background(), "second")
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(block)
	for range events {
	}
}
