package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schleuse-ai/schleuse/internal/llm"
)

func TestSessionMessages(t *testing.T) {
	s := NewSession(GenerateID(), "/work")

	s.AddMessage(&Message{Role: "user", Content: "hi"})
	s.AddMessage(&Message{Role: "assistant", Content: "hello"})

	messages := s.GetMessages()
	assert.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.False(t, messages[0].Timestamp.IsZero())
}

func TestSessionFileTracking(t *testing.T) {
	s := NewSession("s1", "/work")

	assert.False(t, s.WasFileRead("/a.txt"))
	s.TrackFileRead("/a.txt", "content")
	assert.True(t, s.WasFileRead("/a.txt"))

	content, ok := s.ReadContent("/a.txt")
	assert.True(t, ok)
	assert.Equal(t, "content", content)

	s.TrackFileWrite("/b.txt", "fresh")
	assert.Contains(t, s.WrittenFiles(), "/b.txt")
	content, ok = s.ReadContent("/b.txt")
	assert.True(t, ok)
	assert.Equal(t, "fresh", content)
}

func TestSessionUsageAccumulates(t *testing.T) {
	s := NewSession("s1", "/work")

	s.AddUsage(llm.Usage{InputTokens: 100, OutputTokens: 20})
	s.AddUsage(llm.Usage{InputTokens: 50, OutputTokens: 10})

	usage := s.GetUsage()
	assert.Equal(t, int64(150), usage.InputTokens)
	assert.Equal(t, int64(30), usage.OutputTokens)

	// Clearing the conversation keeps the usage totals.
	s.Clear()
	assert.Empty(t, s.GetMessages())
	assert.Equal(t, int64(180), s.GetUsage().Total())
}

func TestGenerateID(t *testing.T) {
	assert.NotEqual(t, GenerateID(), GenerateID())
}
