package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sabitax/sabitax/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskCommand_SendsChatRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chat": `{"response":"The CIT rate is 30% (s. 12, Nigeria Tax Act).","session_id":"abc-123","sources":[{"citation":"s. 12, Nigeria Tax Act","source_file":"nta.pdf","page":42}],"used_retrieval":true,"language":"English"}`,
	})

	client := ts.client()
	req := map[string]any{
		"message": "What is the CIT rate?",
		"role":    "company",
	}

	resp, err := client.post(ctx, "/chat", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Response      string `json:"response"`
		SessionID     string `json:"session_id"`
		UsedRetrieval bool   `json:"used_retrieval"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.SessionID != "abc-123" {
		t.Errorf("session_id = %q, want abc-123", result.SessionID)
	}
	if !result.UsedRetrieval {
		t.Error("used_retrieval = false, want true")
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/chat" {
		t.Errorf("request = %s %s, want POST /chat", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message"] != "What is the CIT rate?" {
		t.Errorf("body.message = %v", body["message"])
	}
	if body["role"] != "company" {
		t.Errorf("body.role = %v, want company", body["role"])
	}
	if _, ok := body["session_id"]; ok {
		t.Error("session_id should be omitted when not set")
	}
}

func TestAskCommand_MissingQuestion(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing question")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestSessionsCommand_List(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sessions": `[{"session_id":"8f14e45f-ceea-467f-9c4e-000000000001","title":"CIT Rate for Large Companies","created_at":"2026-01-10T09:00:00Z","message_count":4,"last_activity":"2026-01-10T09:05:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sessions []struct {
		SessionID    string `json:"session_id"`
		Title        string `json:"title"`
		MessageCount int    `json:"message_count"`
	}
	if err := decodeJSON(resp, &sessions); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].Title != "CIT Rate for Large Companies" {
		t.Errorf("title = %q", sessions[0].Title)
	}
	if sessions[0].MessageCount != 4 {
		t.Errorf("message_count = %d, want 4", sessions[0].MessageCount)
	}
}

func TestSessionsShow_History(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sessions/abc-123/history": `{"session_id":"abc-123","messages":[{"role":"user","content":"What is VAT?","created_at":"2026-01-10T09:00:00Z"},{"role":"assistant","content":"VAT is a consumption tax (s. 143, Nigeria Tax Act).","created_at":"2026-01-10T09:00:05Z"}]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/sessions/abc-123/history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var history struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := decodeJSON(resp, &history); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(history.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(history.Messages))
	}
	if history.Messages[0].Role != "user" || history.Messages[1].Role != "assistant" {
		t.Errorf("roles = %q, %q, want user, assistant", history.Messages[0].Role, history.Messages[1].Role)
	}
}

func TestReindexCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /reload-documents": `{"message":"corpus reindexed","passages":128,"timestamp":"2026-01-10T09:00:00Z"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/reload-documents", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Passages int `json:"passages"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.Passages != 128 {
		t.Errorf("passages = %d, want 128", result.Passages)
	}
	if ts.requests[0].Body != "" {
		t.Errorf("reload body = %q, want empty", ts.requests[0].Body)
	}
}

func TestAPIClientAuth_NoToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sessions": `[]`,
	})

	client := ts.client()
	client.token = ""

	resp, err := client.get(ctx, "/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth header = %q, want empty when no token configured", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	resp, err := client.get(ctx, "/nope")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var out map[string]any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention 404", err.Error())
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q, want it to include the response body", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	out := paint(ansiGreen, "hello")
	if out != "hello" {
		t.Errorf("paint with no-color = %q, want plain text", out)
	}

	noColor = false
	out = paint(ansiGreen, "hello")
	if !strings.Contains(out, "\033[32m") {
		t.Errorf("paint = %q, want ANSI green", out)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("8f14e45f-ceea-467f-9c4e-000000000001"); got != "8f14e45f" {
		t.Errorf("shortID = %q, want 8f14e45f", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q, want abc unchanged", got)
	}
}

func TestTruncateLine_RuneSafe(t *testing.T) {
	title := strings.Repeat("orí", 30)
	got := truncateLine(title, 60)
	if len([]rune(got)) != 60 {
		t.Errorf("truncated to %d runes, want 60", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated title %q does not end with ellipsis", got)
	}
	if short := truncateLine("short title", 60); short != "short title" {
		t.Errorf("short title changed: %q", short)
	}
}

func TestConfigShowAll_HidesToken(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config load error: %v", err)
	}

	for _, k := range config.ShowAll(cfg) {
		if strings.Contains(k.Key, "token") {
			t.Errorf("ShowAll exposed secret key %q", k.Key)
		}
	}
}
