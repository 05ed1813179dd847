// Package session holds the conversation state of one run.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/schleuse-ai/schleuse/internal/llm"
)

// Message represents a conversation message
type Message struct {
	Role      string         `json:"role"` // "user", "assistant", "tool"
	Content   string         `json:"content"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolID    string         `json:"tool_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Session manages a conversation session
type Session struct {
	ID         string
	WorkingDir string
	Messages   []*Message
	FilesRead  map[string]string // virtual path -> content at read time
	FilesWrote map[string]bool

	// Usage accumulated across all model calls in the run; never reset mid-run.
	Usage llm.Usage

	mu        sync.RWMutex
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates a new session
func NewSession(id, workingDir string) *Session {
	return &Session{
		ID:         id,
		WorkingDir: workingDir,
		Messages:   make([]*Message, 0),
		FilesRead:  make(map[string]string),
		FilesWrote: make(map[string]bool),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// GenerateID creates a random session ID.
func GenerateID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}

// AddMessage adds a message to the session
func (s *Session) AddMessage(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Timestamp = time.Now()
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// GetMessages returns a copy of all messages.
func (s *Session) GetMessages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := make([]*Message, len(s.Messages))
	copy(messages, s.Messages)
	return messages
}

// Clear drops the conversation but keeps accumulated usage.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = s.Messages[:0]
	s.FilesRead = make(map[string]string)
	s.FilesWrote = make(map[string]bool)
	s.UpdatedAt = time.Now()
}

// TrackFileRead tracks that a file was read
func (s *Session) TrackFileRead(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesRead[path] = content
	s.UpdatedAt = time.Now()
}

// WasFileRead checks if a file was read in this session
func (s *Session) WasFileRead(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.FilesRead[path]
	return ok
}

// ReadContent returns the content recorded when the file was last read.
func (s *Session) ReadContent(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.FilesRead[path]
	return content, ok
}

// TrackFileWrite tracks that a file was created or modified.
func (s *Session) TrackFileWrite(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesWrote[path] = true
	// Keep the read cache in sync so a later edit sees the written content.
	s.FilesRead[path] = content
	s.UpdatedAt = time.Now()
}

// WrittenFiles returns the paths written during this session.
func (s *Session) WrittenFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.FilesWrote))
	for path := range s.FilesWrote {
		paths = append(paths, path)
	}
	return paths
}

// AddUsage accumulates token usage from one model call.
func (s *Session) AddUsage(usage llm.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Usage.Add(usage)
	s.UpdatedAt = time.Now()
}

// GetUsage returns the accumulated usage.
func (s *Session) GetUsage() llm.Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Usage
}
