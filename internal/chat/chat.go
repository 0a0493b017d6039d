// Package chat keeps a conversation about one document with the reader
// service.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/api"
	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrNoDocument is returned when the session has no server document ID.
	ErrNoDocument = errors.New("no document attached to chat")
)

// Client answers questions.
type Client interface {
	Chat(ctx context.Context, req api.ChatRequest) (string, error)
}

// Turn is one exchanged message.
type Turn struct {
	api.Message `yaml:",inline"`
	At          time.Time `yaml:"at"`
}

// Session is a conversation bound to one server document. Safe for
// concurrent use.
type Session struct {
	client Client
	now    func() time.Time

	mu       sync.Mutex
	pdfID    string
	filename string
	turns    []Turn
}

// NewSession starts an empty conversation about pdfID.
func NewSession(client Client, pdfID, filename string) *Session {
	return &Session{client: client, pdfID: pdfID, filename: filename, now: time.Now}
}

// Attach binds the session to another document and clears the history.
func (s *Session) Attach(pdfID, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pdfID = pdfID
	s.filename = filename
	s.turns = nil
}

// Ask sends question with the history so far. The exchange is recorded
// only when the service answers.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	s.mu.Lock()
	pdfID := s.pdfID
	history := s.historyLocked()
	s.mu.Unlock()

	if pdfID == "" {
		return "", ErrNoDocument
	}

	asked := s.now()
	answer, err := s.client.Chat(ctx, api.ChatRequest{
		PDFID:               pdfID,
		Message:             question,
		ConversationHistory: history,
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pdfID != pdfID {
		// Re-attached while waiting; the answer belongs to the old document.
		return answer, nil
	}
	s.turns = append(s.turns,
		Turn{Message: api.Message{Role: api.RoleUser, Content: question}, At: asked},
		Turn{Message: api.Message{Role: api.RoleAssistant, Content: answer}, At: s.now()},
	)
	log.Debug("Chat answered", "pdf_id", pdfID, "turns", len(s.turns))
	return answer, nil
}

// History returns the conversation as sent to the service.
func (s *Session) History() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Session) historyLocked() []api.Message {
	msgs := make([]api.Message, len(s.turns))
	for i, t := range s.turns {
		msgs[i] = t.Message
	}
	return msgs
}

// Clear empties the history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Len returns the number of recorded messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

type transcript struct {
	Document string    `yaml:"document"`
	PDFID    string    `yaml:"pdf_id"`
	Exported time.Time `yaml:"exported"`
	Turns    []Turn    `yaml:"turns"`
}

// Export writes the conversation as YAML.
func (s *Session) Export(w io.Writer) error {
	s.mu.Lock()
	t := transcript{
		Document: s.filename,
		PDFID:    s.pdfID,
		Exported: s.now(),
		Turns:    append([]Turn(nil), s.turns...),
	}
	s.mu.Unlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("unable to export transcript: %w", err)
	}
	return enc.Close()
}
