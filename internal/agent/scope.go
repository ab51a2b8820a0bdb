package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sabitax/sabitax/internal/engine"
)

const classifyTimeout = 15 * time.Second

// taxKeywords is the deterministic fast path of the scope gate. A message
// containing any of these is accepted without a model call. The list
// covers tax types, the statutory instruments in the corpus, authorities
// and filing vocabulary, plus the tax words of the supported languages.
var taxKeywords = []string{
	"tax", "taxes", "taxation", "taxpayer", "taxable",
	"vat", "cit", "pit", "paye", "cgt", "tin",
	"levy", "levies", "duty", "duties", "tariff", "excise", "customs",
	"withholding", "stamp duty", "surcharge",
	"nigeria tax act", "tax administration", "finance act",
	"revenue service", "joint revenue board", "firs", "nrs", "jrb",
	"filing", "returns", "assessment", "remittance", "self-assessment",
	"exemption", "deduction", "allowance", "relief", "rebate",
	"penalty", "audit", "compliance", "turnover", "chargeable income",
	"capital gains", "value added", "personal income", "company income",
	"haraji", "owo-ori", "owo ori", "utu isi",
}

// greetings allows short salutations through the gate so the agent can
// answer them conversationally instead of rejecting them.
var greetings = []string{
	"hello", "hi", "hey", "greetings", "morning", "afternoon", "evening",
	"sannu", "ndewo", "kedu", "bawo", "how far",
}

// classifier is the narrow slice of the inference engine the gate and
// router need.
type classifier interface {
	Chat(ctx context.Context, model string, messages []engine.Message) (string, error)
}

// ScopeGate decides whether a message belongs to the Nigerian tax domain
// before any retrieval or generation cost is spent on it. Stage one is a
// keyword match; only inconclusive messages pay for a classification
// call. Ambiguity resolves toward rejection.
type ScopeGate struct {
	engine classifier
	model  string
}

// NewScopeGate creates a ScopeGate using the given engine and chat model.
func NewScopeGate(e classifier, model string) *ScopeGate {
	return &ScopeGate{engine: e, model: model}
}

const scopePrompt = `You are a strict domain classifier for a Nigerian tax law assistant.

Classify the user message below. Answer 'TAX' if it is about Nigerian taxation, tax law, levies, revenue authorities, filing obligations, or the Nigeria Tax Act and related legislation. Answer 'NOT_TAX' for anything else, including general knowledge, other countries' law, and unrelated chit-chat.

Respond with ONLY 'TAX' or 'NOT_TAX'.`

// IsInScope reports whether message is a Nigerian-tax-domain request.
// Classification failures count as out of scope.
func (g *ScopeGate) IsInScope(ctx context.Context, message string) bool {
	lowered := strings.ToLower(message)
	words := tokenSet(lowered)

	for _, kw := range taxKeywords {
		if containsPhrase(lowered, words, kw) {
			return true
		}
	}
	if isShortGreeting(lowered, words) {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := g.engine.Chat(ctx, g.model, []engine.Message{
		{Role: "system", Content: scopePrompt},
		{Role: "user", Content: message},
	})
	if err != nil {
		slog.Warn("scope classification failed, rejecting message", "error", err)
		return false
	}

	upper := strings.ToUpper(resp)
	return strings.Contains(upper, "TAX") && !strings.Contains(upper, "NOT_TAX")
}

// isShortGreeting accepts inputs of at most three words that contain a
// greeting token.
func isShortGreeting(lowered string, words map[string]bool) bool {
	if len(strings.Fields(lowered)) > 3 {
		return false
	}
	for _, gr := range greetings {
		if containsPhrase(lowered, words, gr) {
			return true
		}
	}
	return false
}
