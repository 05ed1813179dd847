// Package events decouples the runtime from any rendering surface. Display
// events are fire-and-forget; consent and input requests block until
// answered, time out, or are cancelled.
package events

import (
	"context"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/llm"
)

// ToolEvent describes one tool call for display purposes.
type ToolEvent struct {
	CallID     string
	Name       string
	Arguments  map[string]interface{}
	DurationMs int64
	IsError    bool
	Summary    string
}

// TreeNode is a display snapshot of one worker in the delegation tree.
type TreeNode struct {
	ID       string
	Name     string
	Task     string
	Status   string
	Depth    int
	Children []TreeNode
}

// Sink receives runtime events. Implementations must not block on the
// fire-and-forget methods.
type Sink interface {
	// MessageShown reports text the worker produced or received.
	MessageShown(workerID, role, content string)
	// Status reports a coarse worker state change.
	Status(workerID, status string)
	// ToolStarted fires when a tool call begins executing.
	ToolStarted(workerID string, event ToolEvent)
	// ToolFinished fires when a tool call completes.
	ToolFinished(workerID string, event ToolEvent)
	// TreeUpdated delivers a fresh snapshot of the delegation tree.
	TreeUpdated(root TreeNode)
	// SessionEnded fires once per run with the accumulated usage.
	SessionEnded(workerID string, usage llm.Usage)

	// RequestConsent blocks until the operator answers, the context expires,
	// or the run is cancelled.
	RequestConsent(ctx context.Context, req approval.Request) (approval.Decision, error)
	// RequestInput blocks for one line of free-text input.
	RequestInput(ctx context.Context, prompt string) (string, error)
}

// NullSink discards display events and denies blocking requests. Delegated
// workers that must not prompt use it as a safe default.
type NullSink struct{}

func (NullSink) MessageShown(string, string, string) {}
func (NullSink) Status(string, string)               {}
func (NullSink) ToolStarted(string, ToolEvent)       {}
func (NullSink) ToolFinished(string, ToolEvent)      {}
func (NullSink) TreeUpdated(TreeNode)                {}
func (NullSink) SessionEnded(string, llm.Usage)      {}

func (NullSink) RequestConsent(ctx context.Context, req approval.Request) (approval.Decision, error) {
	return approval.Decision{Approved: false, Note: "denied: no interactive surface attached"}, nil
}

func (NullSink) RequestInput(ctx context.Context, prompt string) (string, error) {
	return "", context.Canceled
}
