package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/engine"
)

// Router decides, for an in-scope message, whether answering requires
// searching the document corpus or plain generation is enough. It runs
// only after the scope gate has accepted the message.
type Router struct {
	engine classifier
	model  string
}

// NewRouter creates a Router using the given engine and chat model.
func NewRouter(e classifier, model string) *Router {
	return &Router{engine: e, model: model}
}

const routerPrompt = `You are a routing agent for a Nigerian tax law assistant. Decide if the user's latest message requires searching through the tax legislation documents.

Answer 'YES' if:
- The question asks about specific provisions, rates, obligations, exemptions, or definitions in tax law
- The question requires factual information from the Nigeria Tax Act, the Tax Administration Act, or related legislation
- The question is about NRS, JRB, or revenue administration specifics

Answer 'NO' if:
- The message is a greeting or general chat
- The message asks for clarification of a previous answer
- The message is about your capabilities

Respond with ONLY 'YES' or 'NO'.`

// NeedsRetrieval reports whether the conversation's latest message needs
// document grounding. Classification failures fall back to plain
// generation rather than failing the turn.
func (r *Router) NeedsRetrieval(ctx context.Context, history []conversation.Turn, message string) bool {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	messages := make([]engine.Message, 0, len(history)+2)
	messages = append(messages, engine.Message{Role: "system", Content: routerPrompt})
	for _, t := range history {
		messages = append(messages, engine.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, engine.Message{Role: "user", Content: message})

	resp, err := r.engine.Chat(ctx, r.model, messages)
	if err != nil {
		slog.Warn("retrieval routing failed, generating without retrieval", "error", err)
		return false
	}
	return strings.Contains(strings.ToUpper(resp), "YES")
}
