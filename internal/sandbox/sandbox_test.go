package sandbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schleuse-ai/schleuse/internal/fs"
)

func boolPtr(b bool) *bool { return &b }

func newTestSandbox(t *testing.T, cfg Config) *Sandbox {
	t.Helper()
	sb, err := Resolve(cfg)
	require.NoError(t, err)
	return sb
}

func TestNormalizeVirtual(t *testing.T) {
	cases := map[string]string{
		"/":              "/",
		"/a/b":           "/a/b",
		"/a//b/":         "/a/b",
		"/a/./b":         "/a/b",
		"/a/b/../c":      "/a/c",
		"/a/b/c/../../d": "/a/d",
	}
	for in, want := range cases {
		got, err := NormalizeVirtual(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizeVirtualRejectsEscapes(t *testing.T) {
	for _, in := range []string{"", "relative/path", "../x", "/..", "/a/../..", "/a/../../b"} {
		_, err := NormalizeVirtual(in)
		assert.ErrorIs(t, err, ErrInvalidPath, in)
	}
}

func TestResolvePathRootAndMounts(t *testing.T) {
	root := t.TempDir()
	cache := t.TempDir()
	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: cache, Target: "/cache", ReadOnly: true},
		},
	})

	real, err := sb.ResolvePath("/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "main.go"), real)

	real, err = sb.ResolvePath("/cache/item.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "item.bin"), real)

	// The mount target itself resolves to the mount source.
	real, err = sb.ResolvePath("/cache")
	require.NoError(t, err)
	assert.Equal(t, cache, real)

	// A sibling name sharing the prefix is not inside the mount.
	real, err = sb.ResolvePath("/cache2/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cache2", "x"), real)
}

func TestResolvePathLongestMountWins(t *testing.T) {
	root := t.TempDir()
	outer := t.TempDir()
	inner := t.TempDir()
	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: outer, Target: "/data"},
			{Source: inner, Target: "/data/hot"},
		},
	})

	real, err := sb.ResolvePath("/data/hot/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(inner, "x"), real)

	real, err = sb.ResolvePath("/data/cold/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outer, "cold", "x"), real)
}

func TestResolvePathRejectsClimb(t *testing.T) {
	sb := newTestSandbox(t, Config{Root: t.TempDir()})

	_, err := sb.ResolvePath("/../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = sb.ResolvePath("/a/../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = sb.ResolvePath("etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCanWrite(t *testing.T) {
	root := t.TempDir()
	cache := t.TempDir()
	scratch := t.TempDir()

	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: cache, Target: "/cache", ReadOnly: true},
			{Source: scratch, Target: "/scratch"},
		},
	})

	assert.True(t, sb.CanWrite("/notes.txt"))
	assert.False(t, sb.CanWrite("/cache/item"))
	assert.True(t, sb.CanWrite("/scratch/tmp"))
	assert.False(t, sb.CanWrite("../nope"))

	roSB := newTestSandbox(t, Config{
		Root:     root,
		ReadOnly: true,
		Mounts: []Mount{
			{Source: scratch, Target: "/scratch"},
		},
	})

	// Mount permission wins over the root flag.
	assert.False(t, roSB.CanWrite("/notes.txt"))
	assert.True(t, roSB.CanWrite("/scratch/tmp"))
}

func TestRestrictSubtree(t *testing.T) {
	root := t.TempDir()
	cache := t.TempDir()
	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: cache, Target: "/work/cache", ReadOnly: true},
		},
	})

	child, err := sb.Restrict(RestrictOptions{Subtree: "/work"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "work"), child.Root())

	// The mount under the subtree is rebased onto the new root.
	real, err := child.ResolvePath("/cache/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, "x"), real)
	assert.False(t, child.CanWrite("/cache/x"))

	// The parent's boundary is no longer reachable.
	_, err = child.ResolvePath("/../outside")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestRestrictOntoMountTarget(t *testing.T) {
	root := t.TempDir()
	cache := t.TempDir()
	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: cache, Target: "/cache", ReadOnly: true},
		},
	})

	child, err := sb.Restrict(RestrictOptions{Subtree: "/cache"})
	require.NoError(t, err)
	assert.Equal(t, cache, child.Root())
	assert.True(t, child.ReadOnly())
	assert.Empty(t, child.Mounts())
}

func TestRestrictReadOnlyTightens(t *testing.T) {
	root := t.TempDir()
	scratch := t.TempDir()
	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: scratch, Target: "/scratch"},
		},
	})

	child, err := sb.Restrict(RestrictOptions{ReadOnly: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, child.ReadOnly())
	assert.False(t, child.CanWrite("/scratch/tmp"))

	// The parent keeps its permissions.
	assert.True(t, sb.CanWrite("/scratch/tmp"))
}

func TestRestrictCannotWiden(t *testing.T) {
	sb := newTestSandbox(t, Config{Root: t.TempDir(), ReadOnly: true})

	_, err := sb.Restrict(RestrictOptions{ReadOnly: boolPtr(false)})
	assert.ErrorIs(t, err, ErrPermissionEscalation)
}

func TestRestrictCannotWidenReadOnlyMount(t *testing.T) {
	root := t.TempDir()
	cache := t.TempDir()
	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: cache, Target: "/cache", ReadOnly: true},
		},
	})

	_, err := sb.Restrict(RestrictOptions{Subtree: "/cache", ReadOnly: boolPtr(false)})
	assert.ErrorIs(t, err, ErrPermissionEscalation)
}

func TestResolveRejectsBadConfig(t *testing.T) {
	_, err := Resolve(Config{Root: ""})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = Resolve(Config{Root: t.TempDir(), Mounts: []Mount{{Source: t.TempDir(), Target: "relative"}}})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = Resolve(Config{Root: t.TempDir(), Mounts: []Mount{{Source: t.TempDir(), Target: "/"}}})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestFilesEnforceWritePermission(t *testing.T) {
	root := t.TempDir()
	cache := t.TempDir()
	sb := newTestSandbox(t, Config{
		Root: root,
		Mounts: []Mount{
			{Source: cache, Target: "/cache", ReadOnly: true},
		},
	})

	backend := fs.NewCachedFS(time.Minute, 16)
	defer backend.Close()
	files := NewFiles(sb, backend)
	ctx := context.Background()

	require.NoError(t, files.WriteFile(ctx, "/notes.txt", []byte("ok")))
	data, err := files.ReadFile(ctx, "/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	err = files.WriteFile(ctx, "/cache/item", []byte("no"))
	assert.ErrorIs(t, err, ErrReadOnly)

	err = files.Delete(ctx, "/cache/item")
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = files.ReadFile(ctx, "/../escape")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
