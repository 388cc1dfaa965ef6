package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/shopagent/internal/config"
	"github.com/harun/shopagent/pkg/agent"
	"github.com/harun/shopagent/pkg/llm"
)

var (
	runStream        bool
	runJSON          bool
	runMaxIterations int
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a shopping task",
	Long: `Run a shopping task end to end. The model discovers the merchant, searches
the catalog, fills the cart and checks out using the built-in tools.
The final answer is printed to stdout; logs go to stderr.`,
	Example: `  shopagent run "buy one mechanical keyboard from shop.example.com"
  shopagent run --stream "what does shop.example.com sell?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runStream, "stream", false, "stream text and tool calls as they are produced")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "override agent.max_iterations")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := config.NewValidator().ValidateAPIKey(a.cfg.LLM.APIKey, a.cfg.LLM.Provider); err != nil {
		return fmt.Errorf("%w (set llm.api_key or %s_LLM_API_KEY)", err, config.EnvPrefix)
	}
	adapter, err := llm.New(a.llmConfig())
	if err != nil {
		return err
	}

	maxIter := a.cfg.Agent.MaxIterations
	if runMaxIterations > 0 {
		maxIter = runMaxIterations
	}

	orch, err := agent.New(agent.Config{
		Adapter:       adapter,
		UCP:           a.ucpClient(),
		ACP:           a.acpClient(),
		MaxIterations: maxIter,
		SystemPrompt:  a.cfg.Agent.SystemPrompt,
		Logger:        a.log.Component("agent"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	task := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	var result *agent.Result
	if runStream || a.cfg.Agent.Stream {
		result, err = streamRun(orch.RunStream(ctx, task), out, !runJSON)
	} else {
		result, err = orch.Run(ctx, task)
	}
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if !runStream && !a.cfg.Agent.Stream {
		fmt.Fprintln(out, result.Answer)
	}
	printSummary(out, result)
	return nil
}

// streamRun prints events as they arrive when echo is set and returns the final result
func streamRun(events <-chan agent.StreamEvent, out io.Writer, echo bool) (*agent.Result, error) {
	var result *agent.Result
	for ev := range events {
		switch ev.Type {
		case agent.EventTextDelta:
			if echo {
				fmt.Fprint(out, ev.Text)
			}
		case agent.EventStep:
			if echo && ev.Step != nil && ev.Step.Type == agent.StepToolCall {
				fmt.Fprintf(out, "\n-> %s\n", ev.Step.Tool)
			}
		case agent.EventResult:
			result = ev.Result
		case agent.EventError:
			return nil, ev.Err
		}
	}
	if echo {
		fmt.Fprintln(out)
	}
	if result == nil {
		return nil, fmt.Errorf("stream ended without a result")
	}
	return result, nil
}

func printSummary(out io.Writer, r *agent.Result) {
	status := "completed"
	if !r.Success {
		status = "incomplete"
	}
	fmt.Fprintf(out, "\n[%s in %d iterations, %d tool calls, %d tokens, %s]\n",
		status, r.Iterations, r.Usage.ToolCalls, r.Usage.TotalTokens, formatDuration(r.Usage.TotalLatency))
	for _, o := range r.Orders {
		fmt.Fprintf(out, "order %s: %s %s %s via %s\n", o.ID, o.Status, o.Total, o.Currency, o.Protocol)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
