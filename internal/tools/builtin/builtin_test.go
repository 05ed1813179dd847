package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schleuse-ai/schleuse/internal/fs"
	"github.com/schleuse-ai/schleuse/internal/sandbox"
	"github.com/schleuse-ai/schleuse/internal/session"
	"github.com/schleuse-ai/schleuse/internal/tools"
)

func newTestFiles(t *testing.T) (*sandbox.Files, *session.Session) {
	t.Helper()
	sb, err := sandbox.Resolve(sandbox.Config{Root: t.TempDir()})
	require.NoError(t, err)

	backend := fs.NewCachedFS(time.Minute, 16)
	t.Cleanup(func() { backend.Close() })

	return sandbox.NewFiles(sb, backend), session.NewSession("test", sb.Root())
}

func TestReadWriteRoundTrip(t *testing.T) {
	files, sess := newTestFiles(t)
	ctx := context.Background()

	write := NewWriteFileTool(files, sess)
	result := write.Execute(ctx, map[string]interface{}{
		"path":    "/notes/hello.txt",
		"content": "hello world",
	})
	require.False(t, result.IsError(), result.Error)

	read := NewReadFileTool(files, sess)
	result = read.Execute(ctx, map[string]interface{}{"path": "/notes/hello.txt"})
	require.False(t, result.IsError(), result.Error)
	assert.Equal(t, "hello world", result.Result)

	assert.True(t, sess.WasFileRead("/notes/hello.txt"))
}

func TestReadFileMissingPath(t *testing.T) {
	files, sess := newTestFiles(t)

	result := NewReadFileTool(files, sess).Execute(context.Background(), map[string]interface{}{})
	assert.True(t, result.IsError())
}

func TestReadFileEscapeRejected(t *testing.T) {
	files, sess := newTestFiles(t)

	result := NewReadFileTool(files, sess).Execute(context.Background(), map[string]interface{}{
		"path": "/../../etc/passwd",
	})
	assert.True(t, result.IsError())
}

func TestEditFileRequiresPriorRead(t *testing.T) {
	files, sess := newTestFiles(t)
	ctx := context.Background()

	require.NoError(t, files.WriteFile(ctx, "/a.txt", []byte("one\ntwo\nthree")))

	edit := NewEditFileTool(files, sess)
	result := edit.Execute(ctx, map[string]interface{}{
		"path": "/a.txt",
		"diff": "@@ -1,3 +1,3 @@\n one\n-two\n+2\n three",
	})
	assert.True(t, result.IsError())
	assert.Contains(t, result.Error, "was not read")
}

func TestEditFileAppliesDiff(t *testing.T) {
	files, sess := newTestFiles(t)
	ctx := context.Background()

	require.NoError(t, files.WriteFile(ctx, "/a.txt", []byte("one\ntwo\nthree")))
	sess.TrackFileRead("/a.txt", "one\ntwo\nthree")

	edit := NewEditFileTool(files, sess)
	result := edit.Execute(ctx, map[string]interface{}{
		"path": "/a.txt",
		"diff": "--- a/a.txt\n+++ b/a.txt\n@@ -1,3 +1,3 @@\n one\n-two\n+2\n three\n",
	})
	require.False(t, result.IsError(), result.Error)

	data, err := files.ReadFile(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "one\n2\nthree", string(data))
}

func TestEditFileRejectsMissingFile(t *testing.T) {
	files, sess := newTestFiles(t)

	result := NewEditFileTool(files, sess).Execute(context.Background(), map[string]interface{}{
		"path": "/missing.txt",
		"diff": "@@ -1 +1 @@\n-a\n+b\n",
	})
	assert.True(t, result.IsError())
	assert.Contains(t, result.Error, "non-existent")
}

func TestListDirAndStat(t *testing.T) {
	files, sess := newTestFiles(t)
	ctx := context.Background()

	require.NoError(t, files.WriteFile(ctx, "/x/a.txt", []byte("a")))
	require.NoError(t, files.WriteFile(ctx, "/x/b.txt", []byte("bb")))
	_ = sess

	result := NewListDirTool(files).Execute(ctx, map[string]interface{}{"path": "/x"})
	require.False(t, result.IsError(), result.Error)
	listing, ok := result.Result.([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, listing, 2)

	statResult := NewStatTool(files).Execute(ctx, map[string]interface{}{"path": "/x/b.txt"})
	require.False(t, statResult.IsError(), statResult.Error)
	info := statResult.Result.(map[string]interface{})
	assert.Equal(t, int64(2), info["size"])
	assert.Equal(t, true, info["writable"])
}

func TestDeleteFile(t *testing.T) {
	files, _ := newTestFiles(t)
	ctx := context.Background()

	require.NoError(t, files.WriteFile(ctx, "/gone.txt", []byte("x")))

	result := NewDeleteFileTool(files).Execute(ctx, map[string]interface{}{"path": "/gone.txt"})
	require.False(t, result.IsError(), result.Error)

	exists, err := files.Exists(ctx, "/gone.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestShellToolRunsInSandboxRoot(t *testing.T) {
	files, _ := newTestFiles(t)
	ctx := context.Background()

	require.NoError(t, files.WriteFile(ctx, "/marker.txt", []byte("x")))

	shell := NewShellTool(files.Sandbox())
	result := shell.Execute(ctx, map[string]interface{}{"command": "ls"})
	require.False(t, result.IsError(), result.Error)

	out := result.Result.(map[string]interface{})
	assert.Contains(t, out["stdout"], "marker.txt")
	assert.Equal(t, 0, out["exit_code"])
}

func TestShellToolNonZeroExit(t *testing.T) {
	files, _ := newTestFiles(t)

	shell := NewShellTool(files.Sandbox())
	result := shell.Execute(context.Background(), map[string]interface{}{"command": "exit 3"})
	assert.True(t, result.IsError())
	assert.Contains(t, result.Error, "status 3")
}

func TestShellConsentRequirement(t *testing.T) {
	files, _ := newTestFiles(t)
	shell := NewShellTool(files.Sandbox())

	consent := shell.ConsentRequirement()

	required := consent.Requirement(map[string]interface{}{"command": "git status"})
	require.NotNil(t, required)
	assert.False(t, *required, "read-only commands are exempt from consent")

	required = consent.Requirement(map[string]interface{}{"command": "gitx install"})
	require.NotNil(t, required)
	assert.True(t, *required, "the trailing-space convention must not cover gitx")

	required = consent.Requirement(map[string]interface{}{"command": "rm -rf /"})
	require.NotNil(t, required)
	assert.True(t, *required)
}

func TestIsReadOnlyCommand(t *testing.T) {
	assert.True(t, isReadOnlyCommand("ls"))
	assert.True(t, isReadOnlyCommand("ls -la"))
	assert.True(t, isReadOnlyCommand("cat /etc/hostname"))
	assert.True(t, isReadOnlyCommand("git log --oneline"))
	assert.False(t, isReadOnlyCommand("git push"))
	assert.False(t, isReadOnlyCommand("cat"))
	assert.False(t, isReadOnlyCommand(""))
}

func TestRegisterAll(t *testing.T) {
	files, sess := newTestFiles(t)
	registry := tools.NewRegistry()

	RegisterAll(registry, files, sess)

	names := registry.Names()
	assert.Equal(t, []string{"delete_file", "edit_file", "list_dir", "read_file", "shell", "stat", "write_file"}, names)
}
