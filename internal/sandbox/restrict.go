package sandbox

import (
	"fmt"
	"strings"
)

// RestrictOptions narrows a sandbox for a delegated worker. Subtree is a
// virtual path in the parent that becomes the child's root; empty keeps the
// parent root. ReadOnly, when set, may only tighten the write permission.
type RestrictOptions struct {
	Subtree  string `json:"subtree,omitempty"`
	ReadOnly *bool  `json:"readonly,omitempty"`
}

// Restrict derives a new sandbox that is at most as permissive as the
// receiver. The receiver is never modified.
func (s *Sandbox) Restrict(opts RestrictOptions) (*Sandbox, error) {
	newRoot := s.root
	newMounts := s.Mounts()
	baseReadOnly := s.readOnly

	if strings.TrimSpace(opts.Subtree) != "" {
		subtree, err := NormalizeVirtual(opts.Subtree)
		if err != nil {
			return nil, err
		}
		if subtree == "/" {
			// Explicit "/" keeps the full tree.
			subtree = ""
		}
		if subtree != "" {
			newRoot, err = s.ResolvePath(subtree)
			if err != nil {
				return nil, err
			}
			baseReadOnly = !s.CanWrite(subtree)
			newMounts = remapMounts(s.mounts, subtree)
		}
	}

	if opts.ReadOnly != nil {
		if !*opts.ReadOnly && baseReadOnly {
			return nil, fmt.Errorf("%w: cannot grant write access inside a read-only tree", ErrPermissionEscalation)
		}
		if *opts.ReadOnly {
			baseReadOnly = true
			for i := range newMounts {
				newMounts[i].ReadOnly = true
			}
		}
	}

	return &Sandbox{
		root:     newRoot,
		readOnly: baseReadOnly,
		mounts:   newMounts,
	}, nil
}

// remapMounts keeps only the mounts that live strictly under the subtree and
// rebases their targets onto the new virtual root. A mount whose target
// equals the subtree becomes the new root itself and is dropped from the
// list; mounts outside the subtree are unreachable and dropped too.
func remapMounts(mounts []Mount, subtree string) []Mount {
	var kept []Mount
	for _, m := range mounts {
		if m.Target == subtree {
			continue
		}
		if !strings.HasPrefix(m.Target, subtree+"/") {
			continue
		}
		rebased := m
		rebased.Target = "/" + strings.TrimPrefix(m.Target, subtree+"/")
		kept = append(kept, rebased)
	}
	return kept
}
