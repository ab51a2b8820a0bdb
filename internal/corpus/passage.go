package corpus

import "fmt"

// Passage is one indexed chunk of legislation text together with the
// citation metadata attached at indexing time.
type Passage struct {
	ID         string
	Text       string
	SourceFile string
	Page       int
	Section    string
	Act        string
}

// Locator returns a stable pointer into the source document, e.g.
// "nigeria-tax-act.pdf#page=12".
func (p Passage) Locator() string {
	return locator(p.SourceFile, p.Page)
}

func locator(file string, page int) string {
	return fmt.Sprintf("%s#page=%d", file, page)
}
