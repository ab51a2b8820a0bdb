package corpus

import (
	"path/filepath"
	"strings"
)

// The 2025 consolidation repealed the old tax statutes and replaced
// them with four acts; indexed documents are attributed to one of these
// by filename.
const (
	ActNigeriaTax        = "Nigeria Tax Act"
	ActTaxAdministration = "Nigeria Tax Administration Act"
	ActRevenueService    = "Nigeria Revenue Service (Establishment) Act"
	ActJointRevenueBoard = "Joint Revenue Board (Establishment) Act"
)

// actKeywords maps lowercase filename fragments to act names. Order
// matters: more specific fragments are checked first so
// "tax-administration" doesn't fall through to the Nigeria Tax Act.
var actKeywords = []struct {
	fragment string
	act      string
}{
	{"administration", ActTaxAdministration},
	{"revenue-service", ActRevenueService},
	{"revenue_service", ActRevenueService},
	{"revenue service", ActRevenueService},
	{"nrs", ActRevenueService},
	{"joint-revenue", ActJointRevenueBoard},
	{"joint_revenue", ActJointRevenueBoard},
	{"joint revenue", ActJointRevenueBoard},
	{"jrb", ActJointRevenueBoard},
	{"tax-act", ActNigeriaTax},
	{"tax_act", ActNigeriaTax},
	{"tax act", ActNigeriaTax},
	{"nigeria-tax", ActNigeriaTax},
}

// ActForFile infers which act a document belongs to from its filename.
// Unrecognized files fall back to a title derived from the name stem so
// citations still carry something readable.
func ActForFile(filename string) string {
	name := strings.ToLower(filepath.Base(filename))
	for _, kw := range actKeywords {
		if strings.Contains(name, kw.fragment) {
			return kw.act
		}
	}

	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return titleCase(stem)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
