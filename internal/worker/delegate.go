package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/tools"
)

// DelegateTool lets a worker invoke another worker as an ordinary tool call.
// Allow-list, cycle, and depth checks happen before the child is built; a
// failed check is an error result for this call only.
type DelegateTool struct {
	runtime *Runtime
}

func NewDelegateTool(r *Runtime) *DelegateTool {
	return &DelegateTool{runtime: r}
}

func (t *DelegateTool) Name() string { return "delegate" }

func (t *DelegateTool) Description() string {
	allowed := strings.Join(t.runtime.def.Workers, ", ")
	return fmt.Sprintf("Delegate a task to another worker and return its result. Available workers: %s.", allowed)
}

func (t *DelegateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"worker": map[string]interface{}{
				"type":        "string",
				"description": "Name of the worker to delegate to",
			},
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task the worker should perform",
			},
		},
		"required": []string{"worker", "task"},
	}
}

// ConsentRequirement: delegation itself is exempt; every tool call the child
// makes passes its own approval gate.
func (t *DelegateTool) ConsentRequirement() approval.Consent {
	return approval.Static(false)
}

func (t *DelegateTool) Describe(params map[string]interface{}) (string, approval.Risk) {
	worker := tools.GetStringParam(params, "worker", "?")
	return fmt.Sprintf("delegate to %s", worker), approval.RiskMedium
}

func (t *DelegateTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	workerName := tools.GetStringParam(params, "worker", "")
	if workerName == "" {
		return &tools.ToolResult{Error: "worker is required"}
	}
	task := tools.GetStringParam(params, "task", "")
	if task == "" {
		return &tools.ToolResult{Error: "task is required"}
	}

	result, err := t.runtime.Delegate(ctx, workerName, task)
	if err != nil {
		return &tools.ToolResult{Error: err.Error()}
	}
	if result.Interrupted {
		return &tools.ToolResult{Error: fmt.Sprintf("worker %s was interrupted before completing", workerName)}
	}

	return &tools.ToolResult{Result: map[string]interface{}{
		"worker":     workerName,
		"result":     result.Text,
		"iterations": result.Iterations,
		"tool_calls": result.ToolCalls,
	}}
}
