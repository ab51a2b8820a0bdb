package agent

import (
	"fmt"
	"strings"

	"github.com/sabitax/sabitax/internal/retrieval"
)

// Role is the persona lens applied to generated answers.
type Role string

const (
	RoleTaxLawyer Role = "tax_lawyer"
	RoleTaxpayer  Role = "taxpayer"
	RoleCompany   Role = "company"
)

// ParseRole validates a requested role against the closed persona set.
// Unknown or empty values fall back to the taxpayer persona.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleTaxLawyer, RoleTaxpayer, RoleCompany:
		return Role(s)
	default:
		return RoleTaxpayer
	}
}

const basePrompt = `You are a helpful AI assistant specializing in Nigerian tax and revenue law. Your knowledge covers the Nigeria Tax Act, the Nigeria Tax Administration Act, the Nigeria Revenue Service (Establishment) Act, and the Joint Revenue Board (Establishment) Act.`

// roleLens returns the persona paragraph appended to every system prompt.
func roleLens(role Role) string {
	switch role {
	case RoleTaxLawyer:
		return `Audience: a tax lawyer. Use a formal legal register. State each proposition precisely and cite the governing statutory provision mechanically after it. Prefer the statute's own terminology over paraphrase.`
	case RoleCompany:
		return `Audience: a company compliance officer. Frame answers as compliance checklists oriented around obligations, deadlines, filings, and remittances. Call out who must act and by when.`
	default:
		return `Audience: an individual taxpayer with no legal training. Use plain conversational language, explain jargon the first time it appears, and include a short worked example with naira figures where it helps.`
	}
}

// languageLens instructs the model to answer entirely in the detected
// language, translating tax terms with domain fidelity.
func languageLens(lang Language) string {
	if lang == LangEnglish {
		return ""
	}
	name := languageDisplayName(lang)
	return fmt.Sprintf(`Respond entirely in %s. Translate technical tax terms into accurate %s equivalents rather than transliterating them; keep statutory citations and act names in English.`, name, name)
}

func languageDisplayName(lang Language) string {
	if lang == LangPidgin {
		return "Nigerian Pidgin"
	}
	return string(lang)
}

const groundedRules = `Use the provided context to answer the question accurately.

Citation rules:
- Attach a citation immediately after each legal proposition, rate, obligation, exemption, or definition, in the form "(s. [section number], [short Act name])"
- Cite ONLY sections that appear in the provided context
- NEVER cite an Act without a section number
- NEVER infer or guess section numbers
- If the context does not contain enough information to answer, say so clearly`

const ungroundedRules = `No documents were retrieved for this message. Reply briefly and conversationally. Stay within the Nigerian tax domain; if the user wants specific legal information, suggest they ask a concrete question about the Nigeria Tax Act or related legislation. Do not invent statutory citations.`

// systemPrompt composes the generation system prompt from the base
// instructions, retrieval mode rules, and the role and language lenses.
func systemPrompt(role Role, lang Language, grounded bool) string {
	parts := []string{basePrompt}
	if grounded {
		parts = append(parts, groundedRules)
	} else {
		parts = append(parts, ungroundedRules)
	}
	parts = append(parts, roleLens(role))
	if lens := languageLens(lang); lens != "" {
		parts = append(parts, lens)
	}
	return strings.Join(parts, "\n\n")
}

// contextBlock renders retrieved passages as a numbered source list, each
// tagged with its citation metadata so the model can cite it.
func contextBlock(results []retrieval.ScoredRecord) string {
	var b strings.Builder
	b.WriteString("Context from tax legislation:\n\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[Source %d: %s, %s, Page %d]\n%s\n", i+1, r.Section, r.Act, r.Page, r.Text)
	}
	return b.String()
}

const reflectionPromptFmt = `Review your draft answer to a Nigerian tax question against the provided context.

Question: %s

Draft answer:
%s

Revise the draft so that every legal claim carries a citation in the form "(s. [section number], [short Act name])" and every cited section actually appears in the context. Remove or correct any citation you cannot verify against the context. Keep everything else as close to the draft as possible, including its language and tone.

Respond with ONLY the revised answer.`

// rejectionMessages are the canned out-of-scope replies, localized per
// supported language.
var rejectionMessages = map[Language]string{
	LangEnglish: "I can only help with questions about Nigerian tax and revenue law, such as the Nigeria Tax Act, filing obligations, rates, and exemptions. Please ask a tax-related question.",
	LangHausa:   "Zan iya taimakawa ne kawai kan tambayoyi game da harajin Najeriya da dokokin kudaden shiga, kamar Nigeria Tax Act, biyan haraji da keɓancewa. Don Allah ka yi tambaya game da haraji.",
	LangIgbo:    "Enwere m ike inyere aka naanị n'ajụjụ gbasara ụtụ isi Naịjịrịa na iwu ego ọchịchị, dịka Nigeria Tax Act, ịkwụ ụtụ na nkwụsịrị. Biko jụọ ajụjụ gbasara ụtụ isi.",
	LangYoruba:  "Mo le ran ọ lọwọ nikan lori awọn ibeere nipa owo-ori Naijiria ati ofin owo-wiwọle, bii Nigeria Tax Act, sisan owo-ori ati idasile. Jọwọ beere ibeere nipa owo-ori.",
	LangPidgin:  "Na only question wey concern Nigeria tax and revenue law I fit answer, like Nigeria Tax Act, how to file tax and exemption matter. Abeg ask me tax question.",
}

// rejectionMessage returns the localized canned reply for out-of-scope
// messages.
func rejectionMessage(lang Language) string {
	if msg, ok := rejectionMessages[lang]; ok {
		return msg
	}
	return rejectionMessages[LangEnglish]
}
