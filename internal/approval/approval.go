// Package approval decides whether a tool call may proceed. Decisions come
// from policy (blocked tools), the tool's own consent requirement, per-tool
// configuration overrides, remembered patterns, and finally the controller
// mode. Consent prompts are single-flight per controller.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/schleuse-ai/schleuse/internal/logger"
)

var (
	// ErrTimeout means no consent answer arrived within the window. Reported
	// distinctly from an explicit denial.
	ErrTimeout = errors.New("approval: consent request timed out")
	// ErrAborted means the run was cancelled while waiting for consent.
	ErrAborted = errors.New("approval: consent request aborted")
)

// Mode selects the controller's default behaviour for calls needing consent.
type Mode int

const (
	ModeInteractive Mode = iota
	ModeApproveAll
	ModeAutoDeny
)

// ParseMode maps a config string to a Mode, defaulting to interactive.
func ParseMode(s string) Mode {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "approve_all", "yolo":
		return ModeApproveAll
	case "auto_deny", "strict":
		return ModeAutoDeny
	default:
		return ModeInteractive
	}
}

func (m Mode) String() string {
	switch m {
	case ModeApproveAll:
		return "approve_all"
	case ModeAutoDeny:
		return "auto_deny"
	default:
		return "interactive"
	}
}

// Risk grades how destructive a request is.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

// Request is a pending consent question for one tool call.
type Request struct {
	ToolName       string
	ToolArgs       map[string]interface{}
	Description    string
	Risk           Risk
	DelegationPath []string
}

// Remember says how long a decision should be kept.
type Remember int

const (
	RememberNone Remember = iota
	RememberSession
	RememberAlways
)

// Decision is the outcome of one consent question.
type Decision struct {
	Approved bool
	Remember Remember
	// NarrowMatch includes the request description in the remembered pattern
	// so it only covers calls with the same description prefix.
	NarrowMatch bool
	Note        string
}

// Pattern is a remembered decision shape. Matching is by tool type, maximum
// risk, and an optional raw description prefix. The trailing-space convention
// applies to prefixes: "git " matches "git status" but not "gitx".
type Pattern struct {
	Type              string `json:"type,omitempty"`
	DescriptionPrefix string `json:"description_prefix,omitempty"`
	MaxRisk           Risk   `json:"max_risk"`
	Allow             bool   `json:"allow"`
}

// Matches reports whether the pattern covers the request.
func (p Pattern) Matches(req Request) bool {
	if p.Type != "" && p.Type != req.ToolName {
		return false
	}
	if req.Risk > p.MaxRisk {
		return false
	}
	if p.DescriptionPrefix != "" && !strings.HasPrefix(req.Description, p.DescriptionPrefix) {
		return false
	}
	return true
}

// ConsentFunc is the blocking callback that asks for consent. It must honour
// the context deadline.
type ConsentFunc func(ctx context.Context, req Request) (Decision, error)

// Options configures a Controller.
type Options struct {
	Mode    Mode
	Consent ConsentFunc
	Timeout time.Duration
	// Blocked tools are rejected outright; consent is never requested.
	Blocked []string
	// Overrides force a tool's consent requirement from configuration when
	// the tool itself declares none: true means consent is required.
	Overrides map[string]bool
	// Permanent patterns supplied by the embedding application.
	Permanent []Pattern
	// OnRemember is invoked when a pattern is remembered permanently so the
	// embedding application can persist it.
	OnRemember func(Pattern)
	Log        *logger.Logger
}

// Controller computes approval decisions and keeps run-scoped memory.
type Controller struct {
	mode       Mode
	consent    ConsentFunc
	timeout    time.Duration
	blocked    map[string]bool
	overrides  map[string]bool
	onRemember func(Pattern)
	log        *logger.Logger

	mu        sync.Mutex // also serializes consent prompts
	session   []Pattern
	permanent []Pattern
}

// NewController builds a controller from options.
func NewController(opts Options) *Controller {
	blocked := make(map[string]bool, len(opts.Blocked))
	for _, name := range opts.Blocked {
		blocked[name] = true
	}

	log := opts.Log
	if log == nil {
		log = logger.Global().WithPrefix("approval")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Controller{
		mode:       opts.Mode,
		consent:    opts.Consent,
		timeout:    timeout,
		blocked:    blocked,
		overrides:  opts.Overrides,
		onRemember: opts.OnRemember,
		log:        log,
		permanent:  append([]Pattern(nil), opts.Permanent...),
	}
}

// Fork derives a controller for a delegated worker: same policy and mode,
// same permanent patterns, fresh session memory. The child never shares
// mutable memory with the parent.
func (c *Controller) Fork() *Controller {
	c.mu.Lock()
	permanent := append([]Pattern(nil), c.permanent...)
	c.mu.Unlock()

	return &Controller{
		mode:       c.mode,
		consent:    c.consent,
		timeout:    c.timeout,
		blocked:    c.blocked,
		overrides:  c.overrides,
		onRemember: c.onRemember,
		log:        c.log,
		permanent:  permanent,
	}
}

// Mode returns the controller's mode.
func (c *Controller) Mode() Mode { return c.mode }

// Blocked reports whether policy forbids the tool outright.
func (c *Controller) Blocked(toolName string) bool {
	return c.blocked[toolName]
}

// ClearSession drops the run-scoped memory. Called at run end.
func (c *Controller) ClearSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// Decide resolves one tool call. needsConsent is the tool's own requirement
// evaluated against the call's arguments; nil means the tool declares none.
func (c *Controller) Decide(ctx context.Context, req Request, requirement *bool) (Decision, error) {
	// Blocked is checked first: "forbidden" and "needs consent" are distinct,
	// the user is never asked about something policy already disallows.
	if c.Blocked(req.ToolName) {
		return Decision{Approved: false, Note: fmt.Sprintf("tool %q is blocked by policy", req.ToolName)}, nil
	}

	needed := c.consentNeeded(req, requirement)
	if !needed {
		return Decision{Approved: true}, nil
	}

	if pattern, ok := c.matchRemembered(req); ok {
		c.log.Debug("request for %s matched remembered pattern %+v", req.ToolName, pattern)
		note := ""
		if !pattern.Allow {
			note = fmt.Sprintf("denied by remembered pattern for %q", req.ToolName)
		}
		return Decision{Approved: pattern.Allow, Note: note}, nil
	}

	switch c.mode {
	case ModeApproveAll:
		return Decision{Approved: true}, nil
	case ModeAutoDeny:
		return Decision{Approved: false, Note: "denied: controller is in auto-deny mode"}, nil
	}

	return c.prompt(ctx, req)
}

func (c *Controller) consentNeeded(req Request, requirement *bool) bool {
	if requirement != nil {
		return *requirement
	}
	if c.overrides != nil {
		if override, ok := c.overrides[req.ToolName]; ok {
			return override
		}
	}
	// Mode default: interactive asks, the other modes answer without asking.
	return true
}

func (c *Controller) matchRemembered(req Request) (Pattern, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Session list first, then permanent, insertion order, first match wins.
	for _, p := range c.session {
		if p.Matches(req) {
			return p, true
		}
	}
	for _, p := range c.permanent {
		if p.Matches(req) {
			return p, true
		}
	}
	return Pattern{}, false
}

func (c *Controller) prompt(ctx context.Context, req Request) (Decision, error) {
	if c.consent == nil {
		return Decision{Approved: false, Note: "denied: no consent handler configured"}, nil
	}

	// Single-flight: one outstanding consent prompt per controller.
	c.mu.Lock()
	defer c.mu.Unlock()

	promptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	decision, err := c.consent(promptCtx, req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return Decision{}, fmt.Errorf("%w: %s", ErrTimeout, req.ToolName)
		case errors.Is(err, context.Canceled):
			return Decision{}, fmt.Errorf("%w: %s", ErrAborted, req.ToolName)
		default:
			return Decision{}, err
		}
	}

	if decision.Remember != RememberNone {
		c.rememberLocked(req, decision)
	}

	return decision, nil
}

// rememberLocked derives a pattern from the request and appends it to the
// requested list. Caller holds c.mu.
func (c *Controller) rememberLocked(req Request, decision Decision) {
	pattern := Pattern{
		Type:    req.ToolName,
		MaxRisk: req.Risk,
		Allow:   decision.Approved,
	}
	if decision.NarrowMatch {
		pattern.DescriptionPrefix = req.Description
	}

	switch decision.Remember {
	case RememberSession:
		c.session = append(c.session, pattern)
	case RememberAlways:
		c.permanent = append(c.permanent, pattern)
		if c.onRemember != nil {
			c.onRemember(pattern)
		}
	}
}
