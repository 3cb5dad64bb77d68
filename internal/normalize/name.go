package normalize

import (
	"strings"
)

// notFoundMarker is appended to ancestor names by earlier research passes to
// flag unresolved slots. It is never part of the real name.
const notFoundMarker = "(not found)"

// minPrefixLen guards GivenNamePrefixMatch against trivial one-letter hits.
const minPrefixLen = 2

// Name is a parsed personal name.
type Name struct {
	Given   string
	Surname string
}

// ParseName splits a display name into given name(s) and surname.
// The surname is the final whitespace-separated token; everything before it is
// the given name. A single token yields only a given name. The "(not found)"
// marker is stripped before splitting.
func ParseName(full string) Name {
	s := strings.ReplaceAll(full, notFoundMarker, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return Name{}
	}

	tokens := strings.Fields(s)
	if len(tokens) == 1 {
		return Name{Given: tokens[0]}
	}

	return Name{
		Given:   strings.Join(tokens[:len(tokens)-1], " "),
		Surname: tokens[len(tokens)-1],
	}
}

// FormatName joins a given name and surname into a display name.
func FormatName(given, surname string) string {
	return strings.TrimSpace(strings.TrimSpace(given) + " " + strings.TrimSpace(surname))
}

// diminutives maps a canonical given name to its historical short forms.
// The table is applied bidirectionally: "bill" matches "william" and
// "william" matches "bill". Entries follow common 19th/20th century English
// usage, including the clerk abbreviations found in civil indices ("wm", "jno").
var diminutives = map[string][]string{
	"william":   {"bill", "will", "wm", "billy", "willie"},
	"elizabeth": {"betty", "bess", "bessie", "liz", "lizzie", "eliza", "beth"},
	"margaret":  {"maggie", "meg", "peggy", "madge", "margt"},
	"mary":      {"molly", "polly", "may"},
	"john":      {"jack", "jno", "johnny"},
	"robert":    {"bob", "rob", "robt", "bobby"},
	"richard":   {"dick", "rich", "richd"},
	"thomas":    {"tom", "thos", "tommy"},
	"james":     {"jim", "jas", "jimmy"},
	"catherine": {"kate", "katie", "kitty", "cath"},
	"ann":       {"annie", "nan", "nancy"},
	"sarah":     {"sally", "sadie"},
	"dorothy":   {"dot", "dolly", "dora"},
	"frances":   {"fanny", "fran"},
	"francis":   {"frank"},
	"henry":     {"harry", "hal", "hy"},
	"edward":    {"ted", "ned", "ed", "edwd"},
	"charles":   {"charlie", "chas"},
	"george":    {"geo"},
	"joseph":    {"joe", "jos"},
	"samuel":    {"sam", "saml"},
	"alexander": {"alex", "sandy", "alexr"},
	"frederick": {"fred", "freddie", "fredk"},
	"albert":    {"bert", "albt"},
	"arthur":    {"art"},
	"helen":     {"nell", "nellie", "ellen"},
	"alice":     {"allie"},
	"emily":     {"emma", "em"},
	"harriet":   {"hattie"},
	"jane":      {"jenny", "janet"},
}

// canonicalGiven maps every diminutive and every canonical form to the
// canonical name, built once from the diminutives table.
var canonicalGiven = func() map[string]string {
	m := make(map[string]string, len(diminutives)*4)

	for canonical, variants := range diminutives {
		m[canonical] = canonical
		for _, v := range variants {
			m[v] = canonical
		}
	}

	return m
}()

// SimilarGivenNames reports whether two given-name strings plausibly refer to
// the same person. Comparison is case-insensitive on the first token of each:
// equal tokens match, and so do diminutive pairs ("bill"/"william").
// Substring containment of the whole strings also matches, which absorbs
// middle names ("John Henry" vs "John").
func SimilarGivenNames(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == "" || b == "" {
		return false
	}

	firstA := strings.Fields(a)[0]
	firstB := strings.Fields(b)[0]

	if firstA == firstB {
		return true
	}

	if canonA, ok := canonicalGiven[firstA]; ok {
		if canonB, okB := canonicalGiven[firstB]; okB && canonA == canonB {
			return true
		}
	}

	return strings.Contains(a, b) || strings.Contains(b, a)
}

// GivenNamePrefixMatch reports whether the first token of one name is a
// prefix of the other's first token. Weaker than SimilarGivenNames; used for
// partial credit when an index entry carries a truncated forename.
func GivenNamePrefixMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == "" || b == "" {
		return false
	}

	firstA := strings.Fields(a)[0]
	firstB := strings.Fields(b)[0]

	if len(firstA) < minPrefixLen || len(firstB) < minPrefixLen {
		return false
	}

	return strings.HasPrefix(firstA, firstB) || strings.HasPrefix(firstB, firstA)
}
