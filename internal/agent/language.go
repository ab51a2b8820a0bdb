package agent

import "strings"

// Language is the detected language of a message. The service answers in
// the language the user wrote in, so detection runs on every turn.
type Language string

const (
	LangEnglish Language = "English"
	LangHausa   Language = "Hausa"
	LangIgbo    Language = "Igbo"
	LangYoruba  Language = "Yoruba"
	LangPidgin  Language = "NigerianPidgin"
)

// languageProfile holds the detection vocabulary for one non-English
// language. Indicators are whole words counted against the input; strong
// markers are phrases distinctive enough to decide the language on their
// own. Two separate thresholds keep a single indicator that happens to
// overlap an English word from flipping the language.
type languageProfile struct {
	lang          Language
	indicators    []string
	strongMarkers []string
}

// profiles are checked in a fixed order so detection is deterministic
// even if a message somehow scores in two vocabularies at once.
var profiles = []languageProfile{
	{
		lang: LangHausa,
		indicators: []string{
			"menene", "nawa", "yaya", "wannan", "haraji", "harajin",
			"kudin", "biyan", "akwai", "domin", "sannu", "kamfani",
			"shekara", "mutum", "gwamnati", "dokar",
		},
		strongMarkers: []string{
			"menene", "ta yaya", "sannu da zuwa", "ina son sani",
		},
	},
	{
		lang: LangIgbo,
		indicators: []string{
			"kedu", "gini", "ego", "akwukwo", "maka", "nke", "ole",
			"biko", "ndewo", "onye", "ulo oru", "ochichi", "iwu",
			"kwuo", "anyi", "unu",
		},
		strongMarkers: []string{
			"kedu", "biko", "gini bu", "ndewo",
		},
	},
	{
		lang: LangYoruba,
		indicators: []string{
			"kini", "elo", "owo-ori", "bawo", "melo", "jowo", "sanwo",
			"ijoba", "ofin", "ile-ise", "odun", "eniyan", "fun mi",
			"nipa", "owo ori",
		},
		strongMarkers: []string{
			"kini", "bawo ni", "jowo", "e kaaro", "e kaasan",
		},
	},
	{
		lang: LangPidgin,
		indicators: []string{
			"abeg", "wetin", "dey", "dem", "wahala", "sabi", "oga",
			"una", "wan", "don", "gree", "pikin", "naira wey",
			"how much i go", "no be",
		},
		strongMarkers: []string{
			"abeg", "wetin", "how far", "i wan sabi", "na wetin",
		},
	},
}

// DetectLanguage identifies the language of text among English, Hausa,
// Igbo, Yoruba and Nigerian Pidgin. English is the default; a non-English
// language is returned only when at least two of its indicator words
// appear, or one of its strong marker phrases appears verbatim.
func DetectLanguage(text string) Language {
	lowered := strings.ToLower(text)
	words := tokenSet(lowered)

	for _, p := range profiles {
		for _, marker := range p.strongMarkers {
			if containsPhrase(lowered, words, marker) {
				return p.lang
			}
		}
		matches := 0
		for _, ind := range p.indicators {
			if containsPhrase(lowered, words, ind) {
				matches++
				if matches >= 2 {
					return p.lang
				}
			}
		}
	}
	return LangEnglish
}

// containsPhrase matches single-word entries against the token set and
// multi-word entries as substrings, so "dey" cannot match inside "today".
func containsPhrase(lowered string, words map[string]bool, phrase string) bool {
	if strings.ContainsRune(phrase, ' ') {
		return strings.Contains(lowered, phrase)
	}
	return words[phrase]
}

func tokenSet(lowered string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !isWordRune(r)
	}) {
		set[w] = true
	}
	return set
}

func isWordRune(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
		return true
	}
	// Hyphen stays so "owo-ori" survives tokenization; everything above
	// ASCII stays so accented Yoruba and Igbo characters keep their words
	// intact.
	return r == '-' || r > 127
}
