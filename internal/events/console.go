package events

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/schleuse-ai/schleuse/internal/approval"
	"github.com/schleuse-ai/schleuse/internal/llm"
)

// ConsoleSink renders events to a terminal and answers consent and input
// requests from a line-based reader.
type ConsoleSink struct {
	out io.Writer

	mu     sync.Mutex // serializes reads from the terminal
	reader *bufio.Reader
}

// NewConsoleSink builds a sink over the given streams.
func NewConsoleSink(out io.Writer, in io.Reader) *ConsoleSink {
	return &ConsoleSink{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

func (s *ConsoleSink) MessageShown(workerID, role, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	fmt.Fprintf(s.out, "[%s] %s: %s\n", workerID, role, content)
}

func (s *ConsoleSink) Status(workerID, status string) {
	fmt.Fprintf(s.out, "[%s] status: %s\n", workerID, status)
}

func (s *ConsoleSink) ToolStarted(workerID string, event ToolEvent) {
	fmt.Fprintf(s.out, "[%s] tool %s started\n", workerID, event.Name)
}

func (s *ConsoleSink) ToolFinished(workerID string, event ToolEvent) {
	outcome := "ok"
	if event.IsError {
		outcome = "error"
	}
	fmt.Fprintf(s.out, "[%s] tool %s finished (%s, %dms)\n", workerID, event.Name, outcome, event.DurationMs)
}

func (s *ConsoleSink) TreeUpdated(root TreeNode) {
	var sb strings.Builder
	writeTreeNode(&sb, root, 0)
	fmt.Fprint(s.out, sb.String())
}

func (s *ConsoleSink) SessionEnded(workerID string, usage llm.Usage) {
	fmt.Fprintf(s.out, "[%s] session ended: %d input tokens, %d output tokens\n",
		workerID, usage.InputTokens, usage.OutputTokens)
}

// RequestConsent prompts on the terminal. Answers: y (yes), n (no),
// s (yes, remember for session), a (yes, remember always).
func (s *ConsoleSink) RequestConsent(ctx context.Context, req approval.Request) (approval.Decision, error) {
	fmt.Fprintf(s.out, "approve %s? %s [y/n/s/a] ", req.ToolName, req.Description)

	answer, err := s.readLine(ctx)
	if err != nil {
		return approval.Decision{}, err
	}

	switch strings.TrimSpace(strings.ToLower(answer)) {
	case "y", "yes":
		return approval.Decision{Approved: true}, nil
	case "s":
		return approval.Decision{Approved: true, Remember: approval.RememberSession}, nil
	case "a", "always":
		return approval.Decision{Approved: true, Remember: approval.RememberAlways}, nil
	default:
		return approval.Decision{Approved: false, Note: "denied by operator"}, nil
	}
}

func (s *ConsoleSink) RequestInput(ctx context.Context, prompt string) (string, error) {
	fmt.Fprintf(s.out, "%s ", prompt)
	return s.readLine(ctx)
}

// readLine reads one line while honouring context cancellation. The read
// itself cannot be interrupted, so it runs in a goroutine and the answer of
// an abandoned read is discarded.
func (s *ConsoleSink) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}

	ch := make(chan lineResult, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		line, err := s.reader.ReadString('\n')
		ch <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-ch:
		if result.err != nil && result.line == "" {
			return "", result.err
		}
		return result.line, nil
	}
}

func writeTreeNode(sb *strings.Builder, node TreeNode, indent int) {
	if node.ID == "" {
		return
	}
	sb.WriteString(strings.Repeat("  ", indent))
	fmt.Fprintf(sb, "- %s [%s] %s\n", node.Name, node.Status, node.Task)
	for _, child := range node.Children {
		writeTreeNode(sb, child, indent+1)
	}
}
