// Package notes extracts ancestor anchor facts from free-text research notes.
//
// Customers describe what they already know in prose ("father John Smith
// (1890-1952), paternal grandparents: William Smith (1861-1923) and Mary Ann
// Brown"). The parser turns that prose into per-slot anchors for ascendancy
// numbers 2 through 7, which the engine treats as customer-provided ground
// truth. Parsing is best-effort: anything the rules cannot read is simply
// absent from the result.
package notes

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rootline-io/rootline/internal/normalize"
)

// Ascendancy slots the parser can anchor. The subject (1) comes from
// structured input, never from notes.
const (
	slotFather              = 2
	slotMother              = 3
	slotPaternalGrandfather = 4
	slotPaternalGrandmother = 5
	slotMaternalGrandfather = 6
	slotMaternalGrandmother = 7
)

// Anchor holds the facts extracted for one ascendancy slot. All fields are
// raw strings in customer spelling; normalization happens downstream.
type Anchor struct {
	GivenName  string
	Surname    string
	BirthDate  string
	BirthPlace string
	DeathDate  string
}

// AnchorMap maps ascendancy numbers 2..7 to extracted anchors.
type AnchorMap map[int]Anchor

// Regular expression building blocks. Person names are runs of capitalized
// tokens; keyword groups are case-insensitive but the name capture stays
// case-sensitive so lowercase prose never leaks into a name.
const (
	personExpr = `([A-Z][A-Za-z'\-]*(?:\s+[A-Z][A-Za-z'\-]*)+)`
	yearsExpr  = `\(\s*(\d{4})\s*(?:-\s*(\d{4}|[Pp]resent|[Ll]iving)?)?\s*\)`
	fillerExpr = `[^A-Z(.;\n]*`
)

var (
	fatherPattern = regexp.MustCompile(`(?i:\bfather\b)` + fillerExpr + personExpr + `(?:\s*` + yearsExpr + `)?`)
	motherPattern = regexp.MustCompile(`(?i:\bmother\b)` + fillerExpr + personExpr + `(?:\s*` + yearsExpr + `)?`)

	paternalPairPattern = regexp.MustCompile(
		`(?i:\bpaternal\s+(?:gp|grandparents)\b)\s*:?\s*` + personExpr +
			`(?:\s*` + yearsExpr + `)?` +
			`(?:\s+(?i:and)\s+` + personExpr + `(?:\s*` + yearsExpr + `)?)?`,
	)
	maternalPairPattern = regexp.MustCompile(
		`(?i:\bmaternal\s+(?:gp|grandparents)\b)\s*:?\s*` + personExpr +
			`(?:\s*` + yearsExpr + `)?` +
			`(?:\s+(?i:and)\s+` + personExpr + `(?:\s*` + yearsExpr + `)?)?`,
	)

	paternalGrandfatherPattern = regexp.MustCompile(`(?i:\bpaternal\s+grandfather\b)` + fillerExpr + personExpr + `(?:\s*` + yearsExpr + `)?`)
	paternalGrandmotherPattern = regexp.MustCompile(`(?i:\bpaternal\s+grandmother\b)` + fillerExpr + personExpr + `(?:\s*` + yearsExpr + `)?`)
	maternalGrandfatherPattern = regexp.MustCompile(`(?i:\bmaternal\s+grandfather\b)` + fillerExpr + personExpr + `(?:\s*` + yearsExpr + `)?`)
	maternalGrandmotherPattern = regexp.MustCompile(`(?i:\bmaternal\s+grandmother\b)` + fillerExpr + personExpr + `(?:\s*` + yearsExpr + `)?`)

	bornPattern  = regexp.MustCompile(`(?i:\bborn\b)\s+([^,;\n]+)`)
	placePattern = regexp.MustCompile(`(?i:\b(?:from|in|of)\b)\s+([A-Z][A-Za-z'\-]*(?:(?:\s|,\s*)[A-Z][A-Za-z'\-]*)*)`)

	// Filler tokens that the capitalized-name capture can pick up when the
	// prose itself is title-cased ("Father Was John Smith").
	nameFillerTokens = map[string]bool{
		"was": true, "is": true, "named": true, "name": true, "the": true,
	}
)

// Parse extracts anchors for ascendancy numbers 2..7 from free-text notes.
// Rules apply in a fixed order and the first match wins per slot; later
// passes only fill missing birth dates and places for already-anchored slots.
func Parse(text string) AnchorMap {
	anchors := make(AnchorMap)

	if strings.TrimSpace(text) == "" {
		return anchors
	}

	applyPersonRule(anchors, slotFather, fatherPattern, text)
	applyPersonRule(anchors, slotMother, motherPattern, text)
	applyPairRule(anchors, slotPaternalGrandfather, slotPaternalGrandmother, paternalPairPattern, text)
	applyPersonRule(anchors, slotPaternalGrandfather, paternalGrandfatherPattern, text)
	applyPersonRule(anchors, slotPaternalGrandmother, paternalGrandmotherPattern, text)
	applyPairRule(anchors, slotMaternalGrandfather, slotMaternalGrandmother, maternalPairPattern, text)
	applyPersonRule(anchors, slotMaternalGrandfather, maternalGrandfatherPattern, text)
	applyPersonRule(anchors, slotMaternalGrandmother, maternalGrandmotherPattern, text)

	sentences := splitSentences(text)
	fillBirthDates(anchors, sentences)
	fillBirthPlaces(anchors, sentences)

	return anchors
}

func applyPersonRule(anchors AnchorMap, slot int, pattern *regexp.Regexp, text string) {
	if _, exists := anchors[slot]; exists {
		return
	}

	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return
	}

	anchor, ok := newAnchor(m[1], m[2], m[3])
	if !ok {
		return
	}

	anchors[slot] = anchor
}

// applyPairRule handles "paternal grandparents: Name (years) and Name (years)".
// The first name is the grandfather slot, the second the grandmother slot.
func applyPairRule(anchors AnchorMap, fatherSlot, motherSlot int, pattern *regexp.Regexp, text string) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return
	}

	if _, exists := anchors[fatherSlot]; !exists {
		if anchor, ok := newAnchor(m[1], m[2], m[3]); ok {
			anchors[fatherSlot] = anchor
		}
	}

	if m[4] == "" {
		return
	}

	if _, exists := anchors[motherSlot]; !exists {
		if anchor, ok := newAnchor(m[4], m[5], m[6]); ok {
			anchors[motherSlot] = anchor
		}
	}
}

// newAnchor builds an anchor from a captured name and year pair. A second
// year slot of "present" or "living" means the person has no death date.
func newAnchor(rawName, birthYear, deathYear string) (Anchor, bool) {
	name := normalize.ParseName(cleanCapturedName(rawName))
	if name.Given == "" && name.Surname == "" {
		return Anchor{}, false
	}

	anchor := Anchor{
		GivenName: name.Given,
		Surname:   name.Surname,
		BirthDate: birthYear,
	}

	switch strings.ToLower(deathYear) {
	case "", "present", "living":
		// no death date
	default:
		anchor.DeathDate = deathYear
	}

	return anchor, true
}

// cleanCapturedName drops leading filler tokens that title-cased prose can
// push into the capitalized-name capture.
func cleanCapturedName(raw string) string {
	tokens := strings.Fields(raw)

	for len(tokens) > 0 && nameFillerTokens[strings.ToLower(tokens[0])] {
		tokens = tokens[1:]
	}

	return strings.Join(tokens, " ")
}

// fillBirthDates applies the generic "born DATE" rule: a sentence mentioning
// an anchored surname can supply a missing birth date.
func fillBirthDates(anchors AnchorMap, sentences []string) {
	for slot, anchor := range anchors {
		if anchor.BirthDate != "" || anchor.Surname == "" {
			continue
		}

		for _, sentence := range sentences {
			if !containsFold(sentence, anchor.Surname) {
				continue
			}

			m := bornPattern.FindStringSubmatch(sentence)
			if m == nil {
				continue
			}

			if date, ok := firstParsableDate(m[1]); ok {
				anchor.BirthDate = date
				anchors[slot] = anchor

				break
			}
		}
	}
}

// fillBirthPlaces applies the "from|in|of Place" rule: a sentence mentioning
// an anchored surname can supply a missing birth place.
func fillBirthPlaces(anchors AnchorMap, sentences []string) {
	for slot, anchor := range anchors {
		if anchor.BirthPlace != "" || anchor.Surname == "" {
			continue
		}

		for _, sentence := range sentences {
			if !containsFold(sentence, anchor.Surname) {
				continue
			}

			place, ok := capturePlace(sentence, anchor)
			if !ok {
				continue
			}

			anchor.BirthPlace = place
			anchors[slot] = anchor

			break
		}
	}
}

// capturePlace finds a capitalized place after from/in/of that is not the
// anchor's own name and not a date.
func capturePlace(sentence string, anchor Anchor) (string, bool) {
	for _, m := range placePattern.FindAllStringSubmatch(sentence, -1) {
		candidate := strings.TrimSpace(m[1])
		if candidate == "" {
			continue
		}

		if containsFold(candidate, anchor.Surname) {
			continue
		}

		if anchor.GivenName != "" && containsFold(candidate, strings.Fields(anchor.GivenName)[0]) {
			continue
		}

		if _, isDate := normalize.ParseDate(candidate); isDate {
			continue
		}

		return candidate, true
	}

	return "", false
}

// firstParsableDate tries the full capture, then progressively shorter token
// prefixes, against the date parser. Returns the raw matched text.
func firstParsableDate(capture string) (string, bool) {
	tokens := strings.Fields(strings.TrimSpace(capture))

	for end := len(tokens); end > 0; end-- {
		candidate := strings.TrimSuffix(strings.Join(tokens[:end], " "), ".")
		if _, ok := normalize.ParseDate(candidate); ok {
			return candidate, true
		}
	}

	return "", false
}

// splitSentences splits notes on semicolons, newlines, and periods that end a
// sentence. A period inside a dotted date ("04.03.1950") or an abbreviation
// followed by a digit ("c. 1900") does not split.
func splitSentences(text string) []string {
	var sentences []string

	runes := []rune(text)
	start := 0

	for i, r := range runes {
		switch r {
		case ';', '\n':
			sentences = appendSentence(sentences, string(runes[start:i]))
			start = i + 1
		case '.':
			if sentenceBoundary(runes, i) {
				sentences = appendSentence(sentences, string(runes[start:i]))
				start = i + 1
			}
		}
	}

	return appendSentence(sentences, string(runes[start:]))
}

// sentenceBoundary reports whether the period at index i ends a sentence:
// the next non-space rune must be an uppercase letter or the text must end.
func sentenceBoundary(runes []rune, i int) bool {
	for j := i + 1; j < len(runes); j++ {
		if unicode.IsSpace(runes[j]) {
			continue
		}

		return unicode.IsUpper(runes[j])
	}

	return true
}

func appendSentence(sentences []string, s string) []string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return append(sentences, trimmed)
	}

	return sentences
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}

	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
