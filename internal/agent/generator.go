package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/engine"
	"github.com/sabitax/sabitax/internal/retrieval"
)

// ErrGenerationFailed is returned when the inference engine fails while
// producing an answer. Turns that fail generation are never persisted.
var ErrGenerationFailed = errors.New("response generation failed")

const defaultGenerationTimeout = 60 * time.Second

// Generator produces role- and language-adapted answers, grounded in
// retrieved passages when a retrieval result is supplied. Grounded
// answers pass through the citation filter and a bounded reflection loop
// before they are returned.
type Generator struct {
	engine  classifier
	model   string
	passes  int
	timeout time.Duration
}

// NewGenerator creates a Generator. passes bounds the reflection loop;
// timeout bounds each engine call and falls back to 60s when
// non-positive.
func NewGenerator(e classifier, model string, passes int, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &Generator{engine: e, model: model, passes: passes, timeout: timeout}
}

// Generate produces an answer to message given the session history.
// With a non-empty retrieval result it runs in grounded mode: the
// passages are embedded in the prompt, unverifiable citations are
// stripped from the output, and up to the configured number of
// reflection passes rewrite the answer while citations keep getting
// removed. The loop stops early on the first clean pass. When every
// citation was filtered away, one verifiable citation from the first
// passage is appended instead.
func (g *Generator) Generate(ctx context.Context, history []conversation.Turn, message string, results []retrieval.ScoredRecord, role Role, lang Language) (string, error) {
	grounded := len(results) > 0

	messages := make([]engine.Message, 0, len(history)+3)
	messages = append(messages, engine.Message{Role: "system", Content: systemPrompt(role, lang, grounded)})
	if grounded {
		messages = append(messages, engine.Message{Role: "system", Content: contextBlock(results)})
	}
	for _, t := range history {
		messages = append(messages, engine.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, engine.Message{Role: "user", Content: message})

	answer, err := g.chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if !grounded {
		return answer, nil
	}

	verified := verifiedRefs(results)
	answer, removed := filterCitations(answer, verified)
	for pass := 0; pass < g.passes && removed > 0; pass++ {
		revised, err := g.reflect(ctx, message, answer, results)
		if err != nil {
			// Reflection is a quality loop, not a correctness gate. Keep
			// the last filtered answer.
			slog.Warn("reflection pass failed, keeping current answer", "pass", pass+1, "error", err)
			break
		}
		answer, removed = filterCitations(revised, verified)
	}

	if !hasVerifiableCitation(answer, verified) {
		answer = appendFallbackCitation(answer, results)
	}
	return answer, nil
}

// reflect asks the model to revise the current answer against the same
// retrieval context, tightening citation accuracy.
func (g *Generator) reflect(ctx context.Context, question, answer string, results []retrieval.ScoredRecord) (string, error) {
	return g.chat(ctx, []engine.Message{
		{Role: "system", Content: contextBlock(results)},
		{Role: "user", Content: fmt.Sprintf(reflectionPromptFmt, question, answer)},
	})
}

func (g *Generator) chat(ctx context.Context, messages []engine.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.engine.Chat(ctx, g.model, messages)
}
