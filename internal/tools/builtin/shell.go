package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/sandbox"
	"github.com/schleuse-ai/schleuse/internal/tools"
)

const defaultShellTimeout = 120 * time.Second

// readOnlyCommandPrefixes lists commands exempt from consent. Prefixes with a
// trailing space follow the word-boundary convention: "git " covers
// "git status" but not "gitx".
var readOnlyCommandPrefixes = []string{
	"ls",
	"pwd",
	"cat ",
	"head ",
	"tail ",
	"wc ",
	"grep ",
	"find ",
	"git status",
	"git log",
	"git diff",
	"git show",
	"git branch",
}

// ShellTool executes commands in the sandbox root. Read-only commands run
// without consent; everything else is gated.
type ShellTool struct {
	sandbox *sandbox.Sandbox
}

func NewShellTool(sb *sandbox.Sandbox) *ShellTool {
	return &ShellTool{sandbox: sb}
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Execute a shell command in the sandbox root directory. Output is captured and returned."
}

func (t *ShellTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The command line to execute",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum execution time (default 120)",
			},
		},
		"required": []string{"command"},
	}
}

// ConsentRequirement is computed per call: only non-read-only commands need
// consent.
func (t *ShellTool) ConsentRequirement() approval.Consent {
	return approval.Dynamic(func(args map[string]interface{}) bool {
		command := tools.GetStringParam(args, "command", "")
		return !isReadOnlyCommand(command)
	})
}

func (t *ShellTool) Describe(params map[string]interface{}) (string, approval.Risk) {
	command := tools.GetStringParam(params, "command", "?")
	risk := approval.RiskHigh
	if isReadOnlyCommand(command) {
		risk = approval.RiskLow
	}
	return command, risk
}

func (t *ShellTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	command := strings.TrimSpace(tools.GetStringParam(params, "command", ""))
	if command == "" {
		return &tools.ToolResult{Error: "command is required"}
	}

	timeout := defaultShellTimeout
	if secs := tools.GetIntParam(params, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.sandbox.Root()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() == context.DeadlineExceeded {
			return &tools.ToolResult{Error: fmt.Sprintf("command timed out after %s: %s", timeout, command)}
		} else {
			return &tools.ToolResult{Error: fmt.Sprintf("command failed to start: %v", err)}
		}
	}

	result := map[string]interface{}{
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}
	if exitCode != 0 {
		return &tools.ToolResult{
			Result: result,
			Error:  fmt.Sprintf("command exited with status %d: %s", exitCode, strings.TrimSpace(stderr.String())),
		}
	}

	return &tools.ToolResult{Result: result}
}

// isReadOnlyCommand reports whether the command matches a read-only prefix.
// Matching is raw string prefix; the trailing-space convention in the prefix
// list is deliberate and must not be replaced with tokenization.
func isReadOnlyCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return false
	}
	for _, prefix := range readOnlyCommandPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
