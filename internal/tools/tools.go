// Package tools defines the tool contract, the registry assembled at
// startup, and the approval-gated executor that runs model-requested calls.
package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/llm"
)

// Tool represents one callable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, params map[string]interface{}) *ToolResult
}

// Gated is implemented by tools that declare their own consent requirement,
// either fixed or computed from the call's arguments.
type Gated interface {
	ConsentRequirement() approval.Consent
}

// Describer is implemented by tools that can render a human-readable
// description and risk grade for a specific call, used in consent prompts.
type Describer interface {
	Describe(params map[string]interface{}) (description string, risk approval.Risk)
}

// ExecMode says which surface may invoke a tool.
type ExecMode int

const (
	ModeBoth ExecMode = iota
	ModeModelOnly
	ModeHumanOnly
)

// ModeTagged is implemented by tools restricted to one invocation surface.
// Untagged tools are callable from both.
type ModeTagged interface {
	ExecutionMode() ExecMode
}

func executionMode(tool Tool) ExecMode {
	if m, ok := tool.(ModeTagged); ok {
		return m.ExecutionMode()
	}
	return ModeBoth
}

// ToolCall represents a tool call from the LLM
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	ID         string      `json:"id"`
	Result     interface{} `json:"result"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
}

// IsError reports whether the result carries an error.
func (r *ToolResult) IsError() bool {
	return r != nil && r.Error != ""
}

// Text renders the result for the conversation. Errors are rendered verbatim
// so the model sees the same text the operator does.
func (r *ToolResult) Text() string {
	if r == nil {
		return OutputPlaceholder
	}
	if r.Error != "" {
		return r.Error
	}
	return SafeMarshal(r.Result)
}

// Registry manages available tools. It is an explicit value assembled once at
// startup and passed to the runtime; registration order does not matter
// because listings are sorted by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, replacing any previous tool with the
// same name.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	result := make([]Tool, 0, len(r.tools))
	for _, name := range r.Names() {
		result = append(result, r.tools[name])
	}
	return result
}

// Definitions renders the registry as tool definitions for the model.
// Human-only tools are not advertised.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.List() {
		if executionMode(tool) == ModeHumanOnly {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// describeCall builds the consent description and risk for a call. Tools
// that implement Describer control this; everything else gets the tool name
// plus the JSON arguments.
func describeCall(tool Tool, params map[string]interface{}) (string, approval.Risk) {
	if d, ok := tool.(Describer); ok {
		return d.Describe(params)
	}

	description := tool.Name()
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			description += " " + string(data)
		}
	}
	return description, approval.RiskMedium
}
