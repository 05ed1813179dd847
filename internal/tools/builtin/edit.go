package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/sandbox"
	"github.com/schleuse-ai/schleuse/internal/session"
	"github.com/schleuse-ai/schleuse/internal/tools"
)

// EditFileTool applies unified diffs to existing files. The file must have
// been read earlier in the session so edits are based on known content.
type EditFileTool struct {
	files   *sandbox.Files
	session *session.Session
}

func NewEditFileTool(files *sandbox.Files, sess *session.Session) *EditFileTool {
	return &EditFileTool{files: files, session: sess}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Update an existing file by applying a unified diff with standard hunk headers. The file must have been read earlier in the session."
}

func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute virtual path of the file to update",
			},
			"diff": map[string]interface{}{
				"type":        "string",
				"description": "Unified diff describing the desired changes; must include hunk markers (@@ -a,b +c,d @@).",
			},
		},
		"required": []string{"path", "diff"},
	}
}

func (t *EditFileTool) ConsentRequirement() approval.Consent {
	return approval.Static(true)
}

func (t *EditFileTool) Describe(params map[string]interface{}) (string, approval.Risk) {
	path := tools.GetStringParam(params, "path", "?")
	return fmt.Sprintf("edit_file %s", path), approval.RiskMedium
}

func (t *EditFileTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	path := tools.GetStringParam(params, "path", "")
	if path == "" {
		return &tools.ToolResult{Error: "path is required"}
	}
	diffText, ok := params["diff"].(string)
	if !ok || diffText == "" {
		return &tools.ToolResult{Error: "diff is required"}
	}

	exists, err := t.files.Exists(ctx, path)
	if err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("check %s: %v", path, err)}
	}
	if !exists {
		return &tools.ToolResult{Error: fmt.Sprintf("cannot apply diff to non-existent file: %s (use write_file instead)", path)}
	}

	if t.session != nil && !t.session.WasFileRead(path) {
		return &tools.ToolResult{Error: fmt.Sprintf("file %s was not read in this session; read it before applying a diff", path)}
	}

	currentData, err := t.files.ReadFile(ctx, path)
	if err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("read %s: %v", path, err)}
	}

	finalContent, err := applyUnifiedDiff(string(currentData), diffText)
	if err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("apply diff to %s: %v", path, err)}
	}

	if err := t.files.WriteFile(ctx, path, []byte(finalContent)); err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("write %s: %v", path, err)}
	}

	if t.session != nil {
		t.session.TrackFileWrite(path, finalContent)
	}

	return &tools.ToolResult{Result: map[string]interface{}{
		"path":          path,
		"bytes_written": len(finalContent),
		"updated":       true,
	}}
}

// applyUnifiedDiff applies a unified diff to content.
func applyUnifiedDiff(original, diffText string) (string, error) {
	// Tolerate diffs without file headers.
	if !strings.HasPrefix(diffText, "---") && !strings.HasPrefix(diffText, "diff ") {
		diffText = "--- a/file\n+++ b/file\n" + diffText
	}

	fileDiff, err := diff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return "", fmt.Errorf("failed to parse unified diff: %w", err)
	}

	originalLines := strings.Split(original, "\n")
	result := make([]string, 0, len(originalLines))
	currentOrigLine := 0

	for _, hunk := range fileDiff.Hunks {
		hunkStartLine := int(hunk.OrigStartLine) - 1
		for currentOrigLine < hunkStartLine && currentOrigLine < len(originalLines) {
			result = append(result, originalLines[currentOrigLine])
			currentOrigLine++
		}

		for _, line := range strings.Split(string(hunk.Body), "\n") {
			if len(line) == 0 {
				continue
			}

			switch line[0] {
			case ' ': // context line, copy from original
				if currentOrigLine < len(originalLines) {
					result = append(result, originalLines[currentOrigLine])
					currentOrigLine++
				}
			case '-': // deleted line, skip in original
				if currentOrigLine < len(originalLines) {
					currentOrigLine++
				}
			case '+': // added line
				result = append(result, line[1:])
			}
		}
	}

	for currentOrigLine < len(originalLines) {
		result = append(result, originalLines[currentOrigLine])
		currentOrigLine++
	}

	return strings.Join(result, "\n"), nil
}
