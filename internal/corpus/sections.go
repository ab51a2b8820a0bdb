package corpus

import (
	"regexp"
	"sort"
	"strings"
)

// Ref is a parsed reference to a numbered provision of an act, e.g.
// "Section 27(1)(a)" or "Part IV".
type Ref struct {
	Kind        string // Section, Part, Schedule, Chapter, Article, Regulation
	Number      string
	Subsections []string
}

// Label renders a Ref in the citation style used throughout the corpus:
// sections abbreviate to "s. 27(1)(a)", every other kind keeps its name.
func (r Ref) Label() string {
	var b strings.Builder
	if r.Kind == "Section" {
		b.WriteString("s. ")
	} else {
		b.WriteString(r.Kind)
		b.WriteString(" ")
	}
	b.WriteString(r.Number)
	for _, sub := range r.Subsections {
		b.WriteString("(")
		b.WriteString(sub)
		b.WriteString(")")
	}
	return b.String()
}

// GeneralProvisions is the section label for passages with no
// identifiable provision reference.
const GeneralProvisions = "General Provisions"

// sectionScanWindow bounds how far into a chunk SectionLabel looks for a
// reference. A chunk's governing provision is named near its start.
const sectionScanWindow = 500

var refPattern = regexp.MustCompile(`(?i)\b(section|s\.|part|schedule|chapter|article|regulation)\s+(\d+[A-Za-z]?|[IVXLC]+\b)((?:\s*\([0-9a-zA-Z]+\))*)`)

var subPattern = regexp.MustCompile(`\(([0-9a-zA-Z]+)\)`)

// canonicalKinds maps a lowercased matched keyword to its canonical kind.
var canonicalKinds = map[string]string{
	"section":    "Section",
	"s.":         "Section",
	"part":       "Part",
	"schedule":   "Schedule",
	"chapter":    "Chapter",
	"article":    "Article",
	"regulation": "Regulation",
}

// kindPriority orders reference kinds from most to least specific when a
// chunk names several. Sections win over structural containers.
var kindPriority = map[string]int{
	"Section":    0,
	"Part":       1,
	"Schedule":   2,
	"Chapter":    3,
	"Article":    4,
	"Regulation": 5,
}

// ParseRefs extracts up to max provision references from text in order
// of appearance, deduplicated by label.
func ParseRefs(text string, max int) []Ref {
	matches := refPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var refs []Ref
	for _, m := range matches {
		kind, ok := canonicalKinds[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		ref := Ref{Kind: kind, Number: strings.ToUpper(m[2])}
		if kind == "Section" {
			// Section numbers are arabic; an all-letters match here is a
			// false positive like "s. IV" that real drafting never uses.
			if !strings.ContainsAny(ref.Number, "0123456789") {
				continue
			}
		}
		for _, sub := range subPattern.FindAllStringSubmatch(m[3], -1) {
			ref.Subsections = append(ref.Subsections, sub[1])
		}

		label := ref.Label()
		if seen[label] {
			continue
		}
		seen[label] = true
		refs = append(refs, ref)
		if max > 0 && len(refs) >= max {
			break
		}
	}
	return refs
}

// maxLabelRefs caps how many references a chunk label carries.
const maxLabelRefs = 3

// SectionLabel determines the provision label for a chunk of act text.
// It scans the head of the chunk and joins up to maxLabelRefs distinct
// references, most specific kind first; chunks with none are labelled
// GeneralProvisions.
func SectionLabel(text string) string {
	window := text
	if len(window) > sectionScanWindow {
		window = window[:sectionScanWindow]
	}

	refs := ParseRefs(window, 0)
	if len(refs) == 0 {
		return GeneralProvisions
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return kindPriority[refs[i].Kind] < kindPriority[refs[j].Kind]
	})
	if len(refs) > maxLabelRefs {
		refs = refs[:maxLabelRefs]
	}

	labels := make([]string, len(refs))
	for i, r := range refs {
		labels[i] = r.Label()
	}
	return strings.Join(labels, "; ")
}
