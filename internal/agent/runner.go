package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/actions"
)

// TokenUsage accumulates model token counts reported by the driving agent.
type TokenUsage struct {
	InputTokens  uint64 `json:"input_tokens"`
	OutputTokens uint64 `json:"output_tokens"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(input, output uint64) {
	u.InputTokens += input
	u.OutputTokens += output
}

// Total returns the combined token count.
func (u TokenUsage) Total() uint64 {
	return u.InputTokens + u.OutputTokens
}

// Step is one scripted tool invocation.
type Step struct {
	Tool   string
	Params []byte
	// Usage is the token cost attributed to deciding this step.
	Usage TokenUsage
}

// StepResult pairs a step with its outcome.
type StepResult struct {
	Step    Step
	Outcome actions.Outcome
}

// ScriptRunner executes an ordered task script against a tool registry.
// Each step runs to completion before the next; a failed step does not
// stop the script, outcomes are collected and summarized at the end.
type ScriptRunner struct {
	registry *Registry
	log      *zap.Logger

	usage TokenUsage
}

// NewScriptRunner drives the given registry.
func NewScriptRunner(registry *Registry, log *zap.Logger) *ScriptRunner {
	return &ScriptRunner{registry: registry, log: log.Named("runner")}
}

// Run executes the steps in order. It returns every step's result and an
// error only when the context is cancelled mid-script; action failures are
// carried in the outcomes.
func (r *ScriptRunner) Run(ctx context.Context, steps []Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("script aborted at step %d: %w", i+1, err)
		}

		r.log.Info("Executing step.", zap.Int("step", i+1), zap.Int("total", len(steps)), zap.String("tool", step.Tool))
		outcome := r.registry.Invoke(ctx, step.Tool, step.Params)
		r.usage.Add(step.Usage.InputTokens, step.Usage.OutputTokens)
		results = append(results, StepResult{Step: step, Outcome: outcome})

		if !outcome.OK {
			r.log.Warn("Step failed.", zap.Int("step", i+1), zap.String("message", outcome.Message))
		}
	}
	return results, nil
}

// Usage returns the accumulated token usage across executed steps.
func (r *ScriptRunner) Usage() TokenUsage {
	return r.usage
}

// Summarize reduces step results to an overall verdict string.
func Summarize(results []StepResult) (ok bool, summary string) {
	ok = true
	for _, res := range results {
		if !res.Outcome.OK {
			return false, fmt.Sprintf("step %q failed: %s", res.Step.Tool, res.Outcome.Message)
		}
		summary = res.Outcome.Content
	}
	if summary == "" {
		summary = "no steps executed"
		ok = false
	}
	return ok, summary
}
