// Package agent runs a bounded plan-act-observe loop that drives a shopping
// task through an LLM adapter and the commerce protocol clients.
//
// Invariants:
// - Tool calls requested in one turn execute sequentially, in request order.
// - Tool failures become {"error": ...} payloads and never abort the run.
// - One protocol is bound per run; all catalog and checkout tools branch on it.
// - The orchestrator never issues more than MaxIterations LLM calls per run.
//
// Usage:
//
//	orch, _ := agent.New(agent.Config{
//		Adapter: adapter,
//		UCP:     ucp.NewClient(),
//	})
//	result, _ := orch.Run(ctx, "buy a mechanical keyboard from shop.example.com")
//	_ = result
package agent
