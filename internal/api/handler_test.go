package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sabitax/sabitax/internal/agent"
	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/corpus"
	"github.com/sabitax/sabitax/internal/retrieval"
	"github.com/sabitax/sabitax/internal/storage"
)

// --- mocks ---

type mockAgent struct {
	chatFn  func(ctx context.Context, sessionID, message string, role agent.Role) (*agent.Result, error)
	titleFn func(ctx context.Context, sessionID string) string
}

func (m *mockAgent) Chat(ctx context.Context, sessionID, message string, role agent.Role) (*agent.Result, error) {
	if m.chatFn == nil {
		return &agent.Result{Response: "ok", Language: agent.LangEnglish}, nil
	}
	return m.chatFn(ctx, sessionID, message, role)
}

func (m *mockAgent) Title(ctx context.Context, sessionID string) string {
	if m.titleFn == nil {
		return agent.DefaultTitle
	}
	return m.titleFn(ctx, sessionID)
}

type mockIndexer struct {
	buildFn func(ctx context.Context, force bool) (int, error)
	ready   bool
}

func (m *mockIndexer) Build(ctx context.Context, force bool) (int, error) {
	if m.buildFn == nil {
		return 0, nil
	}
	return m.buildFn(ctx, force)
}

func (m *mockIndexer) Ready() bool { return m.ready }

// --- helpers ---

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return Deps{
		Agent:         &mockAgent{},
		Conversations: conversation.NewStore(db),
		Indexer:       &mockIndexer{ready: true},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

// --- tests ---

func TestChatEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	deps.Agent = &mockAgent{
		chatFn: func(ctx context.Context, sessionID, message string, role agent.Role) (*agent.Result, error) {
			if role != agent.RoleCompany {
				t.Errorf("got role %q, want company", role)
			}
			return &agent.Result{
				Response: "The rate is 30% (s. 12, Nigeria Tax Act).",
				Sources: []agent.Source{
					{Citation: "s. 12, Nigeria Tax Act", SourceFile: "nigeria-tax-act.pdf", Page: 42},
				},
				UsedRetrieval: true,
				Language:      agent.LangEnglish,
			}, nil
		},
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/chat", chatRequest{
		Message:   "What is the CIT rate?",
		SessionID: "sess-1",
		Role:      "company",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[chatResponse](t, rec)
	if resp.SessionID != "sess-1" {
		t.Errorf("got session %q", resp.SessionID)
	}
	if !resp.UsedRetrieval {
		t.Error("used_retrieval not set")
	}
	if len(resp.Sources) != 1 {
		t.Errorf("got %d sources, want 1", len(resp.Sources))
	}
	if resp.Language != "English" {
		t.Errorf("got language %q", resp.Language)
	}
}

func TestChatEndpoint_GeneratesSessionID(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/chat", chatRequest{Message: "What is VAT?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[chatResponse](t, rec)
	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
}

func TestChatEndpoint_MessageTooShort(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doJSON(t, h, http.MethodPost, "/chat", chatRequest{Message: "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestChatEndpoint_MessageLengthCountsRunes(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	// Four runes but six bytes; the minimum is a character count.
	rec := doJSON(t, h, http.MethodPost, "/chat", chatRequest{Message: "owóó"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400 for a 4-rune message", rec.Code)
	}

	// Five runes of accented text must pass validation.
	rec = doJSON(t, h, http.MethodPost, "/chat", chatRequest{Message: "báwo ni owó orí?"})
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200 for a multi-rune message", rec.Code)
	}
}

func TestChatEndpoint_IndexNotReady(t *testing.T) {
	deps := newTestDeps(t)
	deps.Agent = &mockAgent{
		chatFn: func(ctx context.Context, sessionID, message string, role agent.Role) (*agent.Result, error) {
			return nil, retrieval.ErrNotReady
		},
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/chat", chatRequest{Message: "What is the CIT rate?"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}

func TestChatEndpoint_GenerationFailure(t *testing.T) {
	deps := newTestDeps(t)
	deps.Agent = &mockAgent{
		chatFn: func(ctx context.Context, sessionID, message string, role agent.Role) (*agent.Result, error) {
			return nil, agent.ErrGenerationFailed
		},
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/chat", chatRequest{Message: "What is the CIT rate?"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("got status %d, want 502", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	deps := newTestDeps(t)
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	resp := decode[healthResponse](t, rec)
	if resp.Status != "healthy" || !resp.RAGInitialized {
		t.Errorf("got %+v, want healthy and initialized", resp)
	}
}

func TestHealth_Degraded(t *testing.T) {
	deps := newTestDeps(t)
	deps.Indexer = &mockIndexer{ready: false}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	resp := decode[healthResponse](t, rec)
	if resp.Status != "degraded" || resp.RAGInitialized {
		t.Errorf("got %+v, want degraded", resp)
	}
}

func TestBearerAuth(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "secret"
	h := NewHandler(deps)

	// Health stays open.
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health got status %d, want 200", rec.Code)
	}

	// Chat requires the token.
	rec = doJSON(t, h, http.MethodPost, "/chat", chatRequest{Message: "What is VAT?"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated chat got status %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"What is VAT?"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Errorf("authenticated chat got status %d, want 200", rec2.Code)
	}
}

func TestHistory_UnknownSessionEmpty(t *testing.T) {
	h := NewHandler(newTestDeps(t))

	rec := doJSON(t, h, http.MethodGet, "/sessions/nope/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	resp := decode[historyResponse](t, rec)
	if resp.SessionID != "nope" || len(resp.Messages) != 0 {
		t.Errorf("got %+v, want empty history", resp)
	}
}

func TestHistory_ReturnsTurns(t *testing.T) {
	deps := newTestDeps(t)
	if err := deps.Conversations.Append("sess-1",
		conversation.Turn{Role: "user", Content: "What is VAT?", Language: "English"},
		conversation.Turn{Role: "assistant", Content: "A consumption tax.", Language: "English"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/sessions/sess-1/history", nil)
	resp := decode[historyResponse](t, rec)
	if len(resp.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Role != "user" || resp.Messages[1].Role != "assistant" {
		t.Errorf("wrong order: %+v", resp.Messages)
	}
}

func TestGetSession(t *testing.T) {
	deps := newTestDeps(t)
	if err := deps.Conversations.Append("sess-1",
		conversation.Turn{Role: "user", Content: "What is VAT?", Language: "English"},
		conversation.Turn{Role: "assistant", Content: "A consumption tax.", Language: "English"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/sessions/sess-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	info := decode[sessionInfo](t, rec)
	if info.SessionID != "sess-1" || info.MessageCount != 2 {
		t.Errorf("got %+v", info)
	}

	rec = doJSON(t, h, http.MethodGet, "/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	deps := newTestDeps(t)
	for _, id := range []string{"sess-1", "sess-2"} {
		if err := deps.Conversations.Append(id,
			conversation.Turn{Role: "user", Content: "What is VAT?", Language: "English"},
		); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/sessions", nil)
	infos := decode[[]sessionInfo](t, rec)
	if len(infos) != 2 {
		t.Errorf("got %d sessions, want 2", len(infos))
	}
}

func TestTitleEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	deps.Agent = &mockAgent{
		titleFn: func(ctx context.Context, sessionID string) string {
			return "VAT Basics"
		},
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/sessions/sess-1/title", nil)
	resp := decode[map[string]string](t, rec)
	if resp["title"] != "VAT Basics" {
		t.Errorf("got %q", resp["title"])
	}
}

func TestReloadDocuments(t *testing.T) {
	deps := newTestDeps(t)
	deps.Indexer = &mockIndexer{
		buildFn: func(ctx context.Context, force bool) (int, error) {
			if !force {
				t.Error("reload must force a rebuild")
			}
			return 128, nil
		},
	}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/reload-documents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string]any](t, rec)
	if resp["passages"].(float64) != 128 {
		t.Errorf("got %v passages", resp["passages"])
	}
}

func TestReloadDocuments_Conflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rebuild in progress", corpus.ErrRebuildInProgress, http.StatusConflict},
		{"no documents", corpus.ErrNoDocuments, http.StatusNotFound},
		{"other failure", errors.New("embed failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps(t)
			deps.Indexer = &mockIndexer{
				buildFn: func(ctx context.Context, force bool) (int, error) {
					return 0, tt.err
				},
			}
			h := NewHandler(deps)

			rec := doJSON(t, h, http.MethodPost, "/reload-documents", nil)
			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
