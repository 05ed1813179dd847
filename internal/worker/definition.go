package worker

import (
	"fmt"
	"strings"

	"github.com/schleuse-ai/schleuse/internal/sandbox"
)

// Definition describes one worker: its instructions, which other workers it
// may delegate to, and how its sandbox narrows relative to the caller's.
// Parsing and schema validation of the on-disk format happen elsewhere; a
// Definition arrives already well-formed.
type Definition struct {
	Name         string                  `json:"name"`
	Instructions string                  `json:"instructions"`
	// Tools restricts the worker to the named tools. Empty means the full
	// builtin set.
	Tools []string `json:"tools,omitempty"`
	// Workers is the explicit delegation allow-list. A worker not named here
	// cannot be delegated to, ever.
	Workers []string `json:"workers,omitempty"`
	// Model is an optional compatibility hint; a mismatch with the configured
	// client is logged, not fatal.
	Model string `json:"model,omitempty"`
	// Restrict narrows the delegated worker's sandbox relative to the
	// caller's. The zero value inherits the caller's boundary unchanged.
	Restrict      sandbox.RestrictOptions `json:"restrict,omitzero"`
	MaxIterations int                     `json:"max_iterations,omitempty"`
}

// Validate checks the definition's internal consistency.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("worker definition requires a name")
	}
	if strings.TrimSpace(d.Instructions) == "" {
		return fmt.Errorf("worker %q requires instructions", d.Name)
	}
	for _, name := range d.Workers {
		if name == d.Name {
			return fmt.Errorf("worker %q lists itself in its allow-list", d.Name)
		}
	}
	return nil
}

// AllowsWorker reports whether the definition permits delegating to name.
func (d Definition) AllowsWorker(name string) bool {
	for _, allowed := range d.Workers {
		if allowed == name {
			return true
		}
	}
	return false
}
