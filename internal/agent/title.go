package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/engine"
)

// DefaultTitle is the sentinel returned for sessions with no substantive
// user turn yet, and whenever title generation fails.
const DefaultTitle = "New Conversation"

const maxTitleLen = 60

// Titler summarizes a session's opening question into a short label.
type Titler struct {
	engine classifier
	model  string
}

// NewTitler creates a Titler using the given engine and chat model.
func NewTitler(e classifier, model string) *Titler {
	return &Titler{engine: e, model: model}
}

const titlePromptFmt = `Generate a short, descriptive title (max 60 characters) for a conversation that starts with this question:

"%s"

Write the title in the same language as the question (%s). Respond with ONLY the title, no quotes or extra text.`

// TitleFor produces a title of at most 60 characters from the session's
// first substantive user turn, in that turn's language. Greeting-only
// sessions keep the sentinel until a real question arrives. This path
// never fails: any error collapses to the sentinel.
func (t *Titler) TitleFor(ctx context.Context, history []conversation.Turn) string {
	first, ok := firstSubstantiveTurn(history)
	if !ok {
		return DefaultTitle
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	lang := Language(first.Language)
	if lang == "" {
		lang = DetectLanguage(first.Content)
	}
	prompt := fmt.Sprintf(titlePromptFmt, first.Content, languageDisplayName(lang))

	raw, err := t.engine.Chat(ctx, t.model, []engine.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		slog.Warn("title generation failed, using default", "error", err)
		return DefaultTitle
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if title == "" {
		return DefaultTitle
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen-3]) + "..."
	}
	return title
}

// firstSubstantiveTurn returns the first user turn that is more than a
// short greeting.
func firstSubstantiveTurn(history []conversation.Turn) (conversation.Turn, bool) {
	for _, turn := range history {
		if turn.Role != "user" {
			continue
		}
		lowered := strings.ToLower(turn.Content)
		if isShortGreeting(lowered, tokenSet(lowered)) {
			continue
		}
		return turn, true
	}
	return conversation.Turn{}, false
}
