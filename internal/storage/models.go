package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session is one conversation thread.
type Session struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Message is a single turn within a session. Role is "user" or "assistant".
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	Language  string
	CreatedAt time.Time
}
