// Package builtin provides the standard tool set: sandboxed file access, a
// patch-based editor, and shell execution.
package builtin

import (
	"context"
	"fmt"
	"sort"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/sandbox"
	"github.com/schleuse-ai/schleuse/internal/session"
	"github.com/schleuse-ai/schleuse/internal/tools"
)

// ReadFileTool reads a file through the sandbox and records the read in the
// session so later edits can be validated against it.
type ReadFileTool struct {
	files   *sandbox.Files
	session *session.Session
}

func NewReadFileTool(files *sandbox.Files, sess *session.Session) *ReadFileTool {
	return &ReadFileTool{files: files, session: sess}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the sandbox. Paths are absolute virtual paths, e.g. /src/main.go."
}

func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute virtual path of the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) ConsentRequirement() approval.Consent {
	return approval.Static(false)
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	path := tools.GetStringParam(params, "path", "")
	if path == "" {
		return &tools.ToolResult{Error: "path is required"}
	}

	data, err := t.files.ReadFile(ctx, path)
	if err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("read %s: %v", path, err)}
	}

	content := string(data)
	if t.session != nil {
		t.session.TrackFileRead(path, content)
	}

	return &tools.ToolResult{Result: content}
}

// WriteFileTool creates or overwrites a file through the sandbox.
type WriteFileTool struct {
	files   *sandbox.Files
	session *session.Session
}

func NewWriteFileTool(files *sandbox.Files, sess *session.Session) *WriteFileTool {
	return &WriteFileTool{files: files, session: sess}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Create or overwrite a file in the sandbox with the given content."
}

func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute virtual path of the file to write",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full file content",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) ConsentRequirement() approval.Consent {
	return approval.Static(true)
}

func (t *WriteFileTool) Describe(params map[string]interface{}) (string, approval.Risk) {
	path := tools.GetStringParam(params, "path", "?")
	return fmt.Sprintf("write_file %s", path), approval.RiskMedium
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	path := tools.GetStringParam(params, "path", "")
	if path == "" {
		return &tools.ToolResult{Error: "path is required"}
	}
	content, ok := params["content"].(string)
	if !ok {
		return &tools.ToolResult{Error: "content is required"}
	}

	if err := t.files.WriteFile(ctx, path, []byte(content)); err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("write %s: %v", path, err)}
	}

	if t.session != nil {
		t.session.TrackFileWrite(path, content)
	}

	return &tools.ToolResult{Result: map[string]interface{}{
		"path":  path,
		"bytes": len(content),
	}}
}

// DeleteFileTool removes a file through the sandbox.
type DeleteFileTool struct {
	files *sandbox.Files
}

func NewDeleteFileTool(files *sandbox.Files) *DeleteFileTool {
	return &DeleteFileTool{files: files}
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file from the sandbox."
}

func (t *DeleteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute virtual path of the file to delete",
			},
		},
		"required": []string{"path"},
	}
}

func (t *DeleteFileTool) ConsentRequirement() approval.Consent {
	return approval.Static(true)
}

func (t *DeleteFileTool) Describe(params map[string]interface{}) (string, approval.Risk) {
	path := tools.GetStringParam(params, "path", "?")
	return fmt.Sprintf("delete_file %s", path), approval.RiskHigh
}

func (t *DeleteFileTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	path := tools.GetStringParam(params, "path", "")
	if path == "" {
		return &tools.ToolResult{Error: "path is required"}
	}

	if err := t.files.Delete(ctx, path); err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("delete %s: %v", path, err)}
	}

	return &tools.ToolResult{Result: map[string]interface{}{"deleted": path}}
}

// ListDirTool lists a directory through the sandbox.
type ListDirTool struct {
	files *sandbox.Files
}

func NewListDirTool(files *sandbox.Files) *ListDirTool {
	return &ListDirTool{files: files}
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the entries of a sandbox directory."
}

func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute virtual path of the directory, defaults to /",
			},
		},
	}
}

func (t *ListDirTool) ConsentRequirement() approval.Consent {
	return approval.Static(false)
}

func (t *ListDirTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	path := tools.GetStringParam(params, "path", "/")

	entries, err := t.files.ListDir(ctx, path)
	if err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("list %s: %v", path, err)}
	}

	listing := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		listing = append(listing, map[string]interface{}{
			"path":   entry.Path,
			"size":   entry.Size,
			"is_dir": entry.IsDir,
		})
	}
	sort.Slice(listing, func(i, j int) bool {
		return listing[i]["path"].(string) < listing[j]["path"].(string)
	})

	return &tools.ToolResult{Result: listing}
}

// StatTool returns metadata for a sandbox path.
type StatTool struct {
	files *sandbox.Files
}

func NewStatTool(files *sandbox.Files) *StatTool {
	return &StatTool{files: files}
}

func (t *StatTool) Name() string { return "stat" }

func (t *StatTool) Description() string {
	return "Return size, modification time and type of a sandbox path."
}

func (t *StatTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute virtual path to inspect",
			},
		},
		"required": []string{"path"},
	}
}

func (t *StatTool) ConsentRequirement() approval.Consent {
	return approval.Static(false)
}

func (t *StatTool) Execute(ctx context.Context, params map[string]interface{}) *tools.ToolResult {
	path := tools.GetStringParam(params, "path", "")
	if path == "" {
		return &tools.ToolResult{Error: "path is required"}
	}

	info, err := t.files.Stat(ctx, path)
	if err != nil {
		return &tools.ToolResult{Error: fmt.Sprintf("stat %s: %v", path, err)}
	}

	return &tools.ToolResult{Result: map[string]interface{}{
		"path":     path,
		"size":     info.Size,
		"mod_time": info.ModTime,
		"is_dir":   info.IsDir,
		"writable": t.files.Sandbox().CanWrite(path),
	}}
}
