package agent

import (
	"fmt"
	"strings"

	"github.com/sabitax/sabitax/internal/corpus"
	"github.com/sabitax/sabitax/internal/retrieval"
)

// verifiedRefs collects every provision reference that can be verified
// against the retrieval result: the section label attached to each
// passage at indexing time plus any references named in the passage text
// itself. Keys are "Kind Number" with subsections ignored, so a citation
// to s. 12(3) verifies when section 12 appears anywhere in the result.
func verifiedRefs(results []retrieval.ScoredRecord) map[string]bool {
	verified := make(map[string]bool)
	add := func(refs []corpus.Ref) {
		for _, r := range refs {
			verified[refKey(r)] = true
		}
	}
	for _, rec := range results {
		add(corpus.ParseRefs(rec.Section, 3))
		add(corpus.ParseRefs(rec.Text, 20))
	}
	return verified
}

func refKey(r corpus.Ref) string {
	return r.Kind + " " + strings.ToUpper(r.Number)
}

// filterCitations removes parenthesized citation spans whose references
// cannot all be traced to the retrieval result. It returns the cleaned
// answer and the number of spans removed. Spans without any provision
// reference pass through untouched; this is a citation filter, not a
// parenthesis filter.
func filterCitations(answer string, verified map[string]bool) (string, int) {
	var b strings.Builder
	removed := 0
	i := 0
	for i < len(answer) {
		if answer[i] != '(' {
			b.WriteByte(answer[i])
			i++
			continue
		}
		end, ok := matchParen(answer, i)
		if !ok {
			b.WriteString(answer[i:])
			break
		}
		span := answer[i : end+1]
		refs := corpus.ParseRefs(span, 10)
		if len(refs) == 0 || anyVerified(refs, verified) {
			b.WriteString(span)
			i = end + 1
			continue
		}
		removed++
		i = end + 1
		// Drop the space that preceded the span so the sentence does not
		// keep a double gap where the citation was.
		trimTrailingSpace(&b)
	}
	return b.String(), removed
}

func anyVerified(refs []corpus.Ref, verified map[string]bool) bool {
	for _, r := range refs {
		if verified[refKey(r)] {
			return true
		}
	}
	return false
}

// matchParen returns the index of the parenthesis closing the one at
// start, tolerating nesting such as "(s. 27(1)(a), Nigeria Tax Act)".
func matchParen(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " ")
	if len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}

// hasVerifiableCitation reports whether the answer still names at least
// one provision backed by the retrieval result.
func hasVerifiableCitation(answer string, verified map[string]bool) bool {
	return anyVerified(corpus.ParseRefs(answer, 50), verified)
}

// fallbackCitation renders one citation from a retrieved passage, used
// when filtering stripped every reference from an answer. The locator in
// brackets is resolvable by the document-serving layer.
func fallbackCitation(rec retrieval.ScoredRecord) string {
	return fmt.Sprintf("(%s, %s, p. %d) [%s#page=%d]",
		rec.Section, rec.Act, rec.Page, rec.SourceFile, rec.Page)
}

// appendFallbackCitation attaches the fallback citation of the first
// retrieval result to the answer.
func appendFallbackCitation(answer string, results []retrieval.ScoredRecord) string {
	if len(results) == 0 {
		return answer
	}
	return strings.TrimRight(answer, "\n ") + "\n\n" + fallbackCitation(results[0])
}
