package conversation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sabitax/sabitax/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestAppendAndHistory(t *testing.T) {
	s := newTestStore(t)

	err := s.Append("sess-1",
		Turn{Role: "user", Content: "What is the VAT rate?", Language: "English"},
		Turn{Role: "assistant", Content: "7.5% under s. 146.", Language: "English"},
	)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	history, err := s.History("sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d turns, want 2", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("roles = %q, %q; want user, assistant", history[0].Role, history[1].Role)
	}
	if history[1].Content != "7.5% under s. 146." {
		t.Errorf("content = %q", history[1].Content)
	}
}

func TestHistory_OrderPreservedAcrossAppends(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		err := s.Append("sess-1",
			Turn{Role: "user", Content: "question", Language: "English"},
			Turn{Role: "assistant", Content: "answer", Language: "English"},
		)
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	history, err := s.History("sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("got %d turns, want 6", len(history))
	}
	for i, turn := range history {
		wantRole := "user"
		if i%2 == 1 {
			wantRole = "assistant"
		}
		if turn.Role != wantRole {
			t.Errorf("turn %d role = %q, want %q", i, turn.Role, wantRole)
		}
	}
}

func TestHistory_UnknownSessionEmpty(t *testing.T) {
	s := newTestStore(t)

	history, err := s.History("missing")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("got %d turns, want 0", len(history))
	}
}

func TestTitle_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Append("sess-1", Turn{Role: "user", Content: "hi", Language: "English"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	title, err := s.Title("sess-1")
	if err != nil {
		t.Fatalf("Title: %v", err)
	}
	if title != "" {
		t.Errorf("initial title = %q, want empty", title)
	}

	if err := s.SetTitle("sess-1", "Personal income tax basics"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	title, err = s.Title("sess-1")
	if err != nil {
		t.Fatalf("Title: %v", err)
	}
	if title != "Personal income tax basics" {
		t.Errorf("title = %q", title)
	}
}

func TestTitle_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Title("missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAcquire_SerializesSameSession(t *testing.T) {
	s := newTestStore(t)

	release := s.Acquire("sess-1")

	acquired := make(chan struct{})
	go func() {
		r := s.Acquire("sess-1")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while first lock held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed after release")
	}
}

func TestAcquire_IndependentSessions(t *testing.T) {
	s := newTestStore(t)

	release := s.Acquire("sess-1")
	defer release()

	done := make(chan struct{})
	go func() {
		r := s.Acquire("sess-2")
		r()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire on a different session blocked")
	}
}

func TestAcquire_ReleasesLockEntry(t *testing.T) {
	s := newTestStore(t)

	release := s.Acquire("sess-1")

	s.mu.Lock()
	held := len(s.locks)
	s.mu.Unlock()
	if held != 1 {
		t.Fatalf("got %d lock entries while held, want 1", held)
	}

	release()

	s.mu.Lock()
	remaining := len(s.locks)
	s.mu.Unlock()
	if remaining != 0 {
		t.Errorf("got %d lock entries after release, want 0", remaining)
	}
}

func TestAcquire_EntrySurvivesContention(t *testing.T) {
	s := newTestStore(t)

	release := s.Acquire("sess-1")

	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r := s.Acquire("sess-1")
		close(acquired)
		r()
		close(done)
	}()

	// Wait until the second caller is registered as a waiter.
	for {
		s.mu.Lock()
		l, ok := s.locks["sess-1"]
		refs := 0
		if ok {
			refs = l.refs
		}
		s.mu.Unlock()
		if refs == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock after release")
	}
	<-done

	s.mu.Lock()
	remaining := len(s.locks)
	s.mu.Unlock()
	if remaining != 0 {
		t.Errorf("got %d lock entries after both releases, want 0", remaining)
	}
}

func TestAppend_ConcurrentSessions(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		sessionID := string(rune('a' + i))
		go func() {
			defer wg.Done()
			release := s.Acquire(sessionID)
			defer release()
			if err := s.Append(sessionID, Turn{Role: "user", Content: "q", Language: "English"}); err != nil {
				t.Errorf("Append(%s): %v", sessionID, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		history, err := s.History(string(rune('a' + i)))
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 1 {
			t.Errorf("session %c has %d turns, want 1", 'a'+i, len(history))
		}
	}
}
