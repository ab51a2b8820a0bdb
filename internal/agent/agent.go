// Package agent implements the retrieval-augmented conversation core:
// scope gating, language detection, retrieval routing, grounded response
// generation with citation verification, and session titling.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/retrieval"
)

// Retriever is the slice of the retrieval layer the agent consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// Source describes one passage an answer was grounded in, in the shape
// the chat API returns to callers.
type Source struct {
	Citation   string `json:"citation"`
	SourceFile string `json:"source_file"`
	Page       int    `json:"page"`
	Locator    string `json:"locator"`
	Preview    string `json:"content_preview"`
}

// Result is the outcome of one chat turn.
type Result struct {
	Response      string   `json:"response"`
	Sources       []Source `json:"sources"`
	UsedRetrieval bool     `json:"used_retrieval"`
	Language      Language `json:"language"`
}

// Options configures an Agent.
type Options struct {
	ChatModel         string
	TopK              int
	ReflectionPasses  int
	GenerationTimeout time.Duration
}

// Agent runs the per-turn conversation state machine: detect language,
// gate on scope, route to retrieval or plain generation, generate, and
// append the exchange to the session. Turns for the same session are
// serialized; turns for different sessions run concurrently.
type Agent struct {
	gate          *ScopeGate
	router        *Router
	generator     *Generator
	titler        *Titler
	retriever     Retriever
	conversations *conversation.Store
	topK          int
}

// New creates an Agent wired to the given engine, retriever and
// conversation store.
func New(e classifier, retriever Retriever, conversations *conversation.Store, opts Options) *Agent {
	topK := opts.TopK
	if topK <= 0 {
		topK = 4
	}
	return &Agent{
		gate:          NewScopeGate(e, opts.ChatModel),
		router:        NewRouter(e, opts.ChatModel),
		generator:     NewGenerator(e, opts.ChatModel, opts.ReflectionPasses, opts.GenerationTimeout),
		titler:        NewTitler(e, opts.ChatModel),
		retriever:     retriever,
		conversations: conversations,
		topK:          topK,
	}
}

// Chat processes one user message for the given session and returns the
// generated response with its sources. Out-of-scope messages get a
// localized canned rejection, which is still recorded in the session.
// Generation failures propagate and leave the session history untouched.
func (a *Agent) Chat(ctx context.Context, sessionID, message string, role Role) (*Result, error) {
	unlock := a.conversations.Acquire(sessionID)
	defer unlock()

	history, err := a.conversations.History(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session history: %w", err)
	}

	lang := DetectLanguage(message)

	if !a.gate.IsInScope(ctx, message) {
		slog.Info("message rejected as out of scope", "session", sessionID, "language", lang)
		result := &Result{
			Response:      rejectionMessage(lang),
			UsedRetrieval: false,
			Language:      lang,
		}
		if err := a.appendExchange(sessionID, message, result.Response, lang); err != nil {
			return nil, err
		}
		return result, nil
	}

	var results []retrieval.ScoredRecord
	usedRetrieval := false
	if a.router.NeedsRetrieval(ctx, history, message) {
		results, err = a.retriever.Retrieve(ctx, message, a.topK)
		if err != nil {
			if errors.Is(err, retrieval.ErrNotReady) {
				return nil, err
			}
			return nil, fmt.Errorf("retrieving passages: %w", err)
		}
		usedRetrieval = true
	}

	answer, err := a.generator.Generate(ctx, history, message, results, role, lang)
	if err != nil {
		return nil, err
	}

	sources := buildSources(results)
	response := answer
	if len(sources) > 0 {
		response += sourcesBlock(sources)
	}

	if err := a.appendExchange(sessionID, message, response, lang); err != nil {
		return nil, err
	}

	return &Result{
		Response:      response,
		Sources:       sources,
		UsedRetrieval: usedRetrieval,
		Language:      lang,
	}, nil
}

// Title returns the session's title, generating and persisting it on
// first use. It never fails: sessions without a substantive question and
// any generation error yield the default sentinel.
func (a *Agent) Title(ctx context.Context, sessionID string) string {
	if stored, err := a.conversations.Title(sessionID); err == nil && stored != "" {
		return stored
	}

	history, err := a.conversations.History(sessionID)
	if err != nil {
		return DefaultTitle
	}
	title := a.titler.TitleFor(ctx, history)
	if title != DefaultTitle {
		if err := a.conversations.SetTitle(sessionID, title); err != nil {
			slog.Warn("persisting session title failed", "session", sessionID, "error", err)
		}
	}
	return title
}

func (a *Agent) appendExchange(sessionID, message, response string, lang Language) error {
	err := a.conversations.Append(sessionID,
		conversation.Turn{Role: "user", Content: message, Language: string(lang), CreatedAt: time.Now().UTC()},
		conversation.Turn{Role: "assistant", Content: response, Language: string(lang), CreatedAt: time.Now().UTC()},
	)
	if err != nil {
		return fmt.Errorf("appending turns: %w", err)
	}
	return nil
}

const previewLen = 200

func buildSources(results []retrieval.ScoredRecord) []Source {
	if len(results) == 0 {
		return nil
	}
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			Citation:   fmt.Sprintf("%s, %s", r.Section, r.Act),
			SourceFile: r.SourceFile,
			Page:       r.Page,
			Locator:    fmt.Sprintf("%s#page=%d", r.SourceFile, r.Page),
			Preview:    preview(r.Text),
		})
	}
	return sources
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLen {
		return text
	}
	return string(runes[:previewLen]) + "..."
}

func sourcesBlock(sources []Source) string {
	var b strings.Builder
	b.WriteString("\n\n**Sources Referenced:**\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "%d. %s, Page %d [%s]\n", i+1, s.SourceFile, s.Page, s.Locator)
	}
	return b.String()
}
