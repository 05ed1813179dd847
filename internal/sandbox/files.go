package sandbox

import (
	"context"
	"fmt"
	"os"

	"github.com/schleuse-ai/schleuse/internal/fs"
)

// Files exposes filesystem operations on virtual paths. Every call resolves
// the path through the sandbox first; writes additionally check the write
// permission of the matched mount or root.
type Files struct {
	sandbox *Sandbox
	backend fs.FileSystem
}

// NewFiles binds a sandbox to a storage backend.
func NewFiles(s *Sandbox, backend fs.FileSystem) *Files {
	return &Files{sandbox: s, backend: backend}
}

// Sandbox returns the boundary this Files operates in.
func (f *Files) Sandbox() *Sandbox { return f.sandbox }

// Backend returns the underlying storage, shared when deriving a narrowed
// Files for a delegated worker.
func (f *Files) Backend() fs.FileSystem { return f.backend }

// Restrict derives a Files bound to a narrowed sandbox over the same backend.
func (f *Files) Restrict(opts RestrictOptions) (*Files, error) {
	narrowed, err := f.sandbox.Restrict(opts)
	if err != nil {
		return nil, err
	}
	return NewFiles(narrowed, f.backend), nil
}

func (f *Files) ReadFile(ctx context.Context, virtual string) ([]byte, error) {
	real, err := f.sandbox.ResolvePath(virtual)
	if err != nil {
		return nil, err
	}
	return f.backend.ReadFile(ctx, real)
}

func (f *Files) WriteFile(ctx context.Context, virtual string, data []byte) error {
	real, err := f.sandbox.ResolvePath(virtual)
	if err != nil {
		return err
	}
	if !f.sandbox.CanWrite(virtual) {
		return fmt.Errorf("%w: %s", ErrReadOnly, virtual)
	}
	return f.backend.WriteFile(ctx, real, data)
}

func (f *Files) Delete(ctx context.Context, virtual string) error {
	real, err := f.sandbox.ResolvePath(virtual)
	if err != nil {
		return err
	}
	if !f.sandbox.CanWrite(virtual) {
		return fmt.Errorf("%w: %s", ErrReadOnly, virtual)
	}
	return f.backend.Delete(ctx, real)
}

func (f *Files) Stat(ctx context.Context, virtual string) (*fs.FileInfo, error) {
	real, err := f.sandbox.ResolvePath(virtual)
	if err != nil {
		return nil, err
	}
	return f.backend.Stat(ctx, real)
}

func (f *Files) ListDir(ctx context.Context, virtual string) ([]*fs.FileInfo, error) {
	real, err := f.sandbox.ResolvePath(virtual)
	if err != nil {
		return nil, err
	}
	return f.backend.ListDir(ctx, real)
}

func (f *Files) Exists(ctx context.Context, virtual string) (bool, error) {
	real, err := f.sandbox.ResolvePath(virtual)
	if err != nil {
		return false, err
	}
	return f.backend.Exists(ctx, real)
}

func (f *Files) MkdirAll(ctx context.Context, virtual string, perm os.FileMode) error {
	real, err := f.sandbox.ResolvePath(virtual)
	if err != nil {
		return err
	}
	if !f.sandbox.CanWrite(virtual) {
		return fmt.Errorf("%w: %s", ErrReadOnly, virtual)
	}
	return f.backend.MkdirAll(ctx, real, perm)
}
