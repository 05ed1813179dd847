// Package sandbox implements the mount-based virtual filesystem boundary a
// worker operates in. Every path a worker touches is a virtual path that is
// resolved against the sandbox root and its mounts before any storage I/O.
package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrInvalidPath is returned for non-absolute virtual paths and for paths
	// that would escape above the virtual root.
	ErrInvalidPath = errors.New("sandbox: invalid path")
	// ErrReadOnly is returned when a write or delete targets a non-writable path.
	ErrReadOnly = errors.New("sandbox: path is read-only")
	// ErrPermissionEscalation is returned when a restriction attempts to widen
	// permissions. This is a programming-contract violation, not a runtime
	// condition.
	ErrPermissionEscalation = errors.New("sandbox: restriction cannot widen permissions")
)

// Mount binds a real path into the virtual tree, Docker bind-mount style.
type Mount struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readonly,omitempty"`
}

// Config is the declared boundary for one worker.
type Config struct {
	Root     string  `json:"root"`
	ReadOnly bool    `json:"readonly,omitempty"`
	Mounts   []Mount `json:"mounts,omitempty"`
}

// Sandbox is a resolved, validated boundary. It is immutable after Resolve;
// Restrict derives a new independent value and never mutates its receiver.
type Sandbox struct {
	root     string
	readOnly bool
	mounts   []Mount // sorted by target length, longest first
}

// Resolve validates a Config and produces the concrete boundary in use.
func Resolve(cfg Config) (*Sandbox, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("%w: sandbox root is required", ErrInvalidPath)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve root %q: %v", ErrInvalidPath, root, err)
	}

	mounts := make([]Mount, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		target, err := NormalizeVirtual(m.Target)
		if err != nil {
			return nil, fmt.Errorf("mount target %q: %w", m.Target, err)
		}
		if target == "/" {
			return nil, fmt.Errorf("%w: mount target must not be the virtual root", ErrInvalidPath)
		}
		source, err := filepath.Abs(m.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve mount source %q: %v", ErrInvalidPath, m.Source, err)
		}
		mounts = append(mounts, Mount{Source: filepath.Clean(source), Target: target, ReadOnly: m.ReadOnly})
	}

	// Longest target first so nested mounts shadow their parents.
	sort.SliceStable(mounts, func(i, j int) bool {
		return len(mounts[i].Target) > len(mounts[j].Target)
	})

	return &Sandbox{
		root:     filepath.Clean(absRoot),
		readOnly: cfg.ReadOnly,
		mounts:   mounts,
	}, nil
}

// Root returns the real root directory the virtual root maps to.
func (s *Sandbox) Root() string { return s.root }

// ReadOnly reports whether the sandbox root is read-only.
func (s *Sandbox) ReadOnly() bool { return s.readOnly }

// Mounts returns a copy of the configured mounts, longest target first.
func (s *Sandbox) Mounts() []Mount {
	out := make([]Mount, len(s.mounts))
	copy(out, s.mounts)
	return out
}

// NormalizeVirtual normalizes a virtual path. The path must be absolute;
// "." and ".." segments are resolved against a segment stack and a ".." that
// would climb above the virtual root is an error, never a silent clamp.
func NormalizeVirtual(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || !strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q is not an absolute virtual path", ErrInvalidPath, path)
	}

	var stack []string
	for _, segment := range strings.Split(trimmed, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", fmt.Errorf("%w: %q escapes above the virtual root", ErrInvalidPath, path)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, segment)
		}
	}

	return "/" + strings.Join(stack, "/"), nil
}

// ResolvePath maps a virtual path to the real path it is backed by.
func (s *Sandbox) ResolvePath(virtual string) (string, error) {
	norm, err := NormalizeVirtual(virtual)
	if err != nil {
		return "", err
	}

	var real string
	if mount := s.matchMount(norm); mount != nil {
		remainder := strings.TrimPrefix(norm, mount.Target)
		real = filepath.Join(mount.Source, filepath.FromSlash(remainder))
	} else {
		real = filepath.Join(s.root, filepath.FromSlash(norm))
	}
	real = filepath.Clean(real)

	// Defense in depth: the result must lie under the root or a mount source
	// regardless of how it was computed. Anything else is a resolver defect.
	if !s.withinBoundary(real) {
		return "", fmt.Errorf("%w: resolved path %q is outside the sandbox boundary", ErrInvalidPath, real)
	}

	return real, nil
}

// CanWrite reports whether a write to the virtual path is permitted. The
// matched mount's flag wins; without a mount the sandbox flag applies.
func (s *Sandbox) CanWrite(virtual string) bool {
	norm, err := NormalizeVirtual(virtual)
	if err != nil {
		return false
	}
	if mount := s.matchMount(norm); mount != nil {
		return !mount.ReadOnly
	}
	return !s.readOnly
}

// matchMount returns the longest mount whose target is a prefix of the
// normalized virtual path, or nil. Mounts are pre-sorted longest first.
func (s *Sandbox) matchMount(norm string) *Mount {
	for i := range s.mounts {
		target := s.mounts[i].Target
		if norm == target || strings.HasPrefix(norm, target+"/") {
			return &s.mounts[i]
		}
	}
	return nil
}

func (s *Sandbox) withinBoundary(real string) bool {
	if withinDir(real, s.root) {
		return true
	}
	for i := range s.mounts {
		if withinDir(real, s.mounts[i].Source) {
			return true
		}
	}
	return false
}

func withinDir(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	if path == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
