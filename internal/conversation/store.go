package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/sabitax/sabitax/internal/storage"
)

// Turn is one message in a conversation. Role is "user" or "assistant".
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides append-only conversation history over the SQLite
// message tables, with per-session serialization so concurrent requests
// against the same session cannot interleave their turn pairs.
type Store struct {
	db *storage.Store

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a keyed mutex entry. refs counts holders and waiters
// so the entry can be dropped from the map once nobody needs it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates a conversation Store over the given database.
func NewStore(db *storage.Store) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sessionLock),
	}
}

// Acquire locks the named session and returns its release function.
// Requests for different sessions proceed in parallel. The lock entry
// is removed from the map when the last holder releases it.
func (s *Store) Acquire(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

// Append adds turns to a session, creating the session on first use.
func (s *Store) Append(sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	now := time.Now().UTC()
	if err := s.db.EnsureSession(sessionID, now); err != nil {
		return fmt.Errorf("ensuring session %s: %w", sessionID, err)
	}

	for _, t := range turns {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := s.db.AppendMessage(storage.Message{
			SessionID: sessionID,
			Role:      t.Role,
			Content:   t.Content,
			Language:  t.Language,
			CreatedAt: createdAt,
		})
		if err != nil {
			return fmt.Errorf("appending %s turn: %w", t.Role, err)
		}
	}
	return nil
}

// History returns all turns of a session in insertion order. A session
// with no messages yields an empty history, not an error.
func (s *Store) History(sessionID string) ([]Turn, error) {
	msgs, err := s.db.ListMessages(sessionID)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = Turn{
			Role:      m.Role,
			Content:   m.Content,
			Language:  m.Language,
			CreatedAt: m.CreatedAt,
		}
	}
	return turns, nil
}

// Title returns the stored session title, which is empty until one has
// been generated. Returns storage.ErrNotFound for unknown sessions.
func (s *Store) Title(sessionID string) (string, error) {
	sess, err := s.db.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	return sess.Title, nil
}

// SetTitle stores a generated title for the session.
func (s *Store) SetTitle(sessionID, title string) error {
	return s.db.SetSessionTitle(sessionID, title)
}

// Sessions lists known sessions ordered by recent activity.
func (s *Store) Sessions(limit int) ([]storage.Session, error) {
	return s.db.ListSessions(limit)
}

// Session returns one session's metadata. Returns storage.ErrNotFound
// for unknown sessions.
func (s *Store) Session(sessionID string) (storage.Session, error) {
	return s.db.GetSession(sessionID)
}

// MessageCount returns the number of turns stored for the session.
func (s *Store) MessageCount(sessionID string) (int, error) {
	return s.db.CountMessages(sessionID)
}
