package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/varsilias/mpt-chat/internal/prompt"
	"github.com/varsilias/mpt-chat/pkg/types"
)

var (
	ErrEmptyID    = errors.New("empty session id")
	ErrStaleTurn  = errors.New("turn is no longer pending")
	ErrNoSuchTurn = errors.New("no such turn")
)

// Session is one browser conversation: its history and system prompt.
type Session struct {
	ID           string
	SystemPrompt string
	History      types.History
	Updated      time.Time

	// epoch changes whenever History is reset
	epoch uint64
}

// Ticket identifies a pending turn. It goes stale when the history is cleared.
type Ticket struct {
	Index int
	epoch uint64
}

type Store interface {
	// Get returns a copy of the session; unknown ids yield a fresh session.
	Get(sessionID string) (Session, error)
	AppendTurn(sessionID, user string) (Ticket, error)
	CompleteTurn(sessionID string, t Ticket, reply string) error
	Clear(sessionID string) error
	SetSystemPrompt(sessionID, systemPrompt string) error
}

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Session)}
}

func newSession(id string) *Session {
	return &Session{ID: id, SystemPrompt: prompt.DefaultSystemPrompt, Updated: time.Now()}
}

// lookup returns the session, creating it. Callers hold the write lock.
func (s *MemoryStore) lookup(sessionID string) *Session {
	sess, ok := s.data[sessionID]
	if !ok {
		sess = newSession(sessionID)
		s.data[sessionID] = sess
	}
	return sess
}

func (s *MemoryStore) Get(sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrEmptyID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[sessionID]
	if !ok {
		return *newSession(sessionID), nil
	}
	out := *sess
	out.History = sess.History.Clone()
	return out, nil
}

func (s *MemoryStore) AppendTurn(sessionID, user string) (Ticket, error) {
	if sessionID == "" {
		return Ticket{}, ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.lookup(sessionID)
	sess.History = append(sess.History, types.Turn{User: user})
	sess.Updated = time.Now()
	return Ticket{Index: len(sess.History) - 1, epoch: sess.epoch}, nil
}

// CompleteTurn writes reply into the pending turn t. It fails with
// ErrStaleTurn when the history was cleared after t was issued.
func (s *MemoryStore) CompleteTurn(sessionID string, t Ticket, reply string) error {
	if sessionID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[sessionID]
	if !ok {
		return ErrNoSuchTurn
	}
	if sess.epoch != t.epoch {
		return ErrStaleTurn
	}
	if t.Index < 0 || t.Index >= len(sess.History) {
		return ErrNoSuchTurn
	}
	if !sess.History[t.Index].Pending() {
		return ErrStaleTurn
	}
	sess.History[t.Index].Assistant = reply
	sess.Updated = time.Now()
	return nil
}

func (s *MemoryStore) Clear(sessionID string) error {
	if sessionID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.lookup(sessionID)
	sess.History = nil
	sess.epoch++
	sess.Updated = time.Now()
	return nil
}

func (s *MemoryStore) SetSystemPrompt(sessionID, systemPrompt string) error {
	if sessionID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.lookup(sessionID)
	sess.SystemPrompt = systemPrompt
	sess.Updated = time.Now()
	return nil
}

// List returns lightweight session summaries (best effort).
type Summary struct {
	ID      string
	Title   string
	Updated time.Time
}

func (s *MemoryStore) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.data))
	for id, sess := range s.data {
		out = append(out, Summary{ID: id, Title: titleFrom(sess.History), Updated: sess.Updated})
	}
	return out
}

// Touch ensures a session exists in the list.
func (s *MemoryStore) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookup(sessionID).Updated = time.Now()
}

func titleFrom(h types.History) string {
	for _, t := range h {
		if strings.TrimSpace(t.User) != "" {
			return clip(words(t.User), 8)
		}
	}
	return ""
}

func words(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	parts := strings.Fields(s)
	if len(parts) <= 12 {
		return s
	}
	return strings.Join(parts[:12], " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n*2 {
		return s
	}
	return string(r[:n*2]) + "…"
}
