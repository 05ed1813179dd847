package events

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/llm"
)

func TestConsoleSinkDisplayEvents(t *testing.T) {
	var out bytes.Buffer
	sink := NewConsoleSink(&out, strings.NewReader(""))

	sink.MessageShown("root", "assistant", "hello")
	sink.Status("root", "running")
	sink.ToolStarted("root", ToolEvent{Name: "read_file"})
	sink.ToolFinished("root", ToolEvent{Name: "read_file", DurationMs: 12})
	sink.SessionEnded("root", llm.Usage{InputTokens: 10, OutputTokens: 2})

	text := out.String()
	assert.Contains(t, text, "assistant: hello")
	assert.Contains(t, text, "status: running")
	assert.Contains(t, text, "tool read_file started")
	assert.Contains(t, text, "10 input tokens")
}

func TestConsoleSinkConsentAnswers(t *testing.T) {
	cases := map[string]approval.Decision{
		"y\n": {Approved: true},
		"s\n": {Approved: true, Remember: approval.RememberSession},
		"a\n": {Approved: true, Remember: approval.RememberAlways},
		"n\n": {Approved: false, Note: "denied by operator"},
	}

	for input, want := range cases {
		var out bytes.Buffer
		sink := NewConsoleSink(&out, strings.NewReader(input))

		decision, err := sink.RequestConsent(context.Background(), approval.Request{ToolName: "shell", Description: "ls"})
		require.NoError(t, err, input)
		assert.Equal(t, want.Approved, decision.Approved, input)
		assert.Equal(t, want.Remember, decision.Remember, input)
	}
}

func TestConsoleSinkConsentTimeout(t *testing.T) {
	var out bytes.Buffer
	// A reader that never delivers a line.
	blocked, writer := io.Pipe()
	defer writer.Close()
	sink := NewConsoleSink(&out, blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sink.RequestConsent(ctx, approval.Request{ToolName: "shell"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsoleSinkTreeRendering(t *testing.T) {
	var out bytes.Buffer
	sink := NewConsoleSink(&out, strings.NewReader(""))

	sink.TreeUpdated(TreeNode{
		ID: "1", Name: "root", Status: "running", Task: "main task",
		Children: []TreeNode{
			{ID: "2", Name: "helper", Status: "complete", Task: "sub task"},
		},
	})

	text := out.String()
	assert.Contains(t, text, "root [running] main task")
	assert.Contains(t, text, "  - helper [complete] sub task")
}

func TestNullSinkDeniesConsent(t *testing.T) {
	decision, err := NullSink{}.RequestConsent(context.Background(), approval.Request{ToolName: "shell"})
	require.NoError(t, err)
	assert.False(t, decision.Approved)
}
