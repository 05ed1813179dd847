package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/logger"
)

// Executor runs model-requested tool calls under the approval gate. Failures
// of any kind become error-flagged results fed back to the model, never
// panics or run-fatal errors.
type Executor struct {
	registry       *Registry
	controller     *approval.Controller
	delegationPath []string
	log            *logger.Logger
}

// NewExecutor binds a registry to an approval controller. delegationPath is
// the ancestry of the owning worker, included in consent requests.
func NewExecutor(registry *Registry, controller *approval.Controller, delegationPath []string, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Global().WithPrefix("executor")
	}
	return &Executor{
		registry:       registry,
		controller:     controller,
		delegationPath: delegationPath,
		log:            log,
	}
}

// Execute runs one tool call. The returned result always carries the call id.
func (e *Executor) Execute(ctx context.Context, call *ToolCall) *ToolResult {
	tool, refused := e.admit(ctx, call)
	if refused != nil {
		return refused
	}
	return e.invoke(ctx, tool, call)
}

// ExecuteBatch runs the calls and returns one result per call in the exact
// order the calls were given. The model's next turn depends on call-to-result
// order, so this ordering is a hard contract. Consent is resolved one call at
// a time, also in the given order; only the approved calls then execute
// concurrently.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []*ToolCall) []*ToolResult {
	results := make([]*ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}
	if len(calls) == 1 {
		results[0] = e.Execute(ctx, calls[0])
		return results
	}

	admitted := make([]Tool, len(calls))
	for i, call := range calls {
		tool, refused := e.admit(ctx, call)
		if refused != nil {
			results[i] = refused
			continue
		}
		admitted[i] = tool
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		if admitted[i] == nil {
			continue
		}
		wg.Add(1)
		go func(idx int, tool Tool, c *ToolCall) {
			defer wg.Done()
			results[idx] = e.invoke(ctx, tool, c)
		}(i, admitted[i], call)
	}
	wg.Wait()

	return results
}

// admit resolves everything that must happen before a call may run: registry
// lookup, the model-callable check, and consent. A non-nil result is the
// refusal to feed back to the model.
func (e *Executor) admit(ctx context.Context, call *ToolCall) (Tool, *ToolResult) {
	if call == nil {
		return nil, &ToolResult{Error: "tool call is nil"}
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		// Hallucinated tool names are recoverable: the model sees the error
		// and can try something else.
		return nil, &ToolResult{ID: call.ID, Error: fmt.Sprintf("tool not found: %s", call.Name)}
	}
	if executionMode(tool) == ModeHumanOnly {
		return nil, &ToolResult{ID: call.ID, Error: fmt.Sprintf("tool %s is not model-callable", call.Name)}
	}

	if decision, err := e.approve(ctx, tool, call); err != nil {
		return nil, &ToolResult{ID: call.ID, Error: err.Error()}
	} else if !decision.Approved {
		note := decision.Note
		if note == "" {
			note = fmt.Sprintf("tool call %s was denied", call.Name)
		}
		return nil, &ToolResult{ID: call.ID, Error: note}
	}

	return tool, nil
}

func (e *Executor) invoke(ctx context.Context, tool Tool, call *ToolCall) *ToolResult {
	start := time.Now()
	result := tool.Execute(ctx, call.Parameters)
	duration := time.Since(start)

	if result == nil {
		result = &ToolResult{}
	}
	result.ID = call.ID
	result.DurationMs = duration.Milliseconds()
	result.Result = NormalizeOutput(result.Result)

	if result.Error != "" {
		e.log.Debug("tool %s failed after %s: %s", call.Name, duration, result.Error)
	} else {
		e.log.Debug("tool %s completed in %s", call.Name, duration)
	}

	return result
}

func (e *Executor) approve(ctx context.Context, tool Tool, call *ToolCall) (approval.Decision, error) {
	if e.controller == nil {
		return approval.Decision{Approved: true}, nil
	}

	var requirement *bool
	if gated, ok := tool.(Gated); ok {
		requirement = gated.ConsentRequirement().Requirement(call.Parameters)
	}

	description, risk := describeCall(tool, call.Parameters)
	req := approval.Request{
		ToolName:       call.Name,
		ToolArgs:       call.Parameters,
		Description:    description,
		Risk:           risk,
		DelegationPath: e.delegationPath,
	}

	decision, err := e.controller.Decide(ctx, req, requirement)
	if err != nil {
		// Timeouts and aborts stay distinguishable in the surfaced text.
		if errors.Is(err, approval.ErrTimeout) || errors.Is(err, approval.ErrAborted) {
			return approval.Decision{}, err
		}
		return approval.Decision{}, fmt.Errorf("consent for %s failed: %w", call.Name, err)
	}

	return decision, nil
}
