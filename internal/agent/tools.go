// Package agent exposes the evaluation actions as schema-described tools
// and drives scripted tasks through them, standing in for the external
// tool-invoking agent framework.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/actions"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler executes one tool invocation with already-validated raw params.
type Handler func(ctx context.Context, params []byte) actions.Outcome

// Tool is a named action with a JSON-schema-described parameter object.
type Tool struct {
	Name        string
	Description string
	InputSchema string
	Handler     Handler

	compiled *jsonschema.Schema
}

// Registry holds the registered tools. Invoke validates parameters before
// dispatch; handler faults surface as Failure outcomes, never as panics.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	log   *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
		log:   log.Named("agent"),
	}
}

// Register compiles the tool's schema and adds it. Re-registering a name
// replaces the previous tool.
func (r *Registry) Register(tool *Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}
	compiled, err := jsonschema.CompileString(tool.Name+".schema.json", tool.InputSchema)
	if err != nil {
		return fmt.Errorf("invalid schema for tool %q: %w", tool.Name, err)
	}
	tool.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	r.log.Debug("Tool registered.", zap.String("tool", tool.Name))
	return nil
}

// Names lists the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke validates params against the tool's schema and dispatches. An
// unknown tool or malformed params produce a Failure outcome rather than
// an error: tool invocation faults are action results, not harness faults.
func (r *Registry) Invoke(ctx context.Context, name string, params []byte) actions.Outcome {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return actions.Failure("unknown tool: %s", name)
	}

	var decoded any
	if err := jsonAPI.Unmarshal(params, &decoded); err != nil {
		return actions.Failure("tool %s: parameters are not valid JSON: %v", name, err)
	}
	if err := tool.compiled.Validate(decoded); err != nil {
		return actions.Failure("tool %s: invalid parameters: %v", name, err)
	}

	r.log.Info("Invoking tool.", zap.String("tool", name))
	outcome := r.dispatch(ctx, tool, params)
	r.log.Info("Tool finished.",
		zap.String("tool", name),
		zap.Bool("ok", outcome.OK),
		zap.Bool("verified", outcome.Verified),
	)
	return outcome
}

// dispatch runs the handler, converting a panic into a Failure outcome.
func (r *Registry) dispatch(ctx context.Context, tool *Tool, params []byte) (outcome actions.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Tool handler panicked.", zap.String("tool", tool.Name), zap.Any("panic", rec))
			outcome = actions.Failure("tool %s: internal error: %v", tool.Name, rec)
		}
	}()
	return tool.Handler(ctx, params)
}
