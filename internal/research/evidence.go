package research

import (
	"fmt"
	"strings"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/sources"
)

// birthRecord converts a birth-index entry into an evidence record. Variant
// hits carry a reduced weight because the surname was rewritten to find them.
func birthRecord(sourceName string, entry sources.BirthEntry, variant bool) EvidenceRecord {
	weight := WeightBirth
	if variant {
		weight = WeightBirthVariant
	}

	supports := []Aspect{AspectIdentity, AspectLocation}
	if entry.MotherMaidenSurname != "" {
		supports = append(supports, AspectParents)
	}

	return EvidenceRecord{
		Kind:        EvidenceBirth,
		Source:      sourceName,
		Independent: true,
		Year:        entry.Year,
		Quarter:     entry.Quarter,
		District:    entry.District,
		Volume:      entry.Volume,
		Page:        entry.Page,
		Details:     birthDetails(entry),
		Supports:    supports,
		Weight:      weight,
	}
}

func birthDetails(entry sources.BirthEntry) string {
	var b strings.Builder

	b.WriteString("Birth index: ")
	b.WriteString(registrationText(entry.Surname, entry.Forenames, entry.Quarter, entry.Year, entry.District))
	b.WriteString(referenceText(entry.Volume, entry.Page))

	if entry.MotherMaidenSurname != "" {
		b.WriteString(", mother ")
		b.WriteString(entry.MotherMaidenSurname)
	}

	return b.String()
}

func marriageDetails(match *CoupleMatch) string {
	var b strings.Builder

	b.WriteString("Marriage index: ")
	fmt.Fprintf(&b, "%s, %s x %s, %s",
		match.GroomSurname, match.GroomForenames, match.BrideSurname, match.BrideForenames)

	entry := match.Entry
	if entry.Quarter != "" || entry.Year > 0 {
		b.WriteString(", ")
		b.WriteString(quarterYearText(entry.Quarter, entry.Year))
	}

	if entry.District != "" {
		b.WriteString(", ")
		b.WriteString(entry.District)
	}

	b.WriteString(referenceText(entry.Volume, entry.Page))

	return b.String()
}

func deathDetails(entry sources.DeathEntry) string {
	var b strings.Builder

	b.WriteString("Death index: ")
	b.WriteString(registrationText(entry.Surname, entry.Forenames, entry.Quarter, entry.Year, entry.District))
	b.WriteString(referenceText(entry.Volume, entry.Page))

	return b.String()
}

func censusDetails(year int, place string) string {
	if place == "" {
		return fmt.Sprintf("Census %d", year)
	}

	return fmt.Sprintf("Census %d: %s", year, place)
}

func registrationText(surname, forenames, quarter string, year int, district string) string {
	var b strings.Builder

	b.WriteString(surname)

	if forenames != "" {
		b.WriteString(", ")
		b.WriteString(forenames)
	}

	if quarter != "" || year > 0 {
		b.WriteString(", ")
		b.WriteString(quarterYearText(quarter, year))
	}

	if district != "" {
		b.WriteString(", ")
		b.WriteString(district)
	}

	return b.String()
}

func quarterYearText(quarter string, year int) string {
	switch {
	case quarter != "" && year > 0:
		return fmt.Sprintf("%s %d", quarter, year)
	case year > 0:
		return fmt.Sprintf("%d", year)
	default:
		return quarter
	}
}

func referenceText(volume, page string) string {
	switch {
	case volume != "" && page != "":
		return fmt.Sprintf(" (vol %s p %s)", volume, page)
	case volume != "":
		return fmt.Sprintf(" (vol %s)", volume)
	case page != "":
		return fmt.Sprintf(" (p %s)", page)
	default:
		return ""
	}
}

// hasEvidenceKind reports whether the chain already carries a record of the
// given kind. Enrichment passes use it to stay idempotent across re-runs.
func hasEvidenceKind(chain []EvidenceRecord, kind EvidenceKind) bool {
	for _, record := range chain {
		if record.Kind == kind {
			return true
		}
	}

	return false
}

// searchDistrict derives a registration-district token from a place string.
// Only a town-level place or a lone unclassified token yields one: a county
// or country string is not a district, and letting "Lancashire" stem-match
// the Lancaster district would miscredit the scorers.
func searchDistrict(place string) string {
	switch normalize.PlaceSpecificity(place) {
	case normalize.SpecificityTown, normalize.SpecificityPartial:
		return normalize.ExtractDistrict(place)
	default:
		return ""
	}
}

// districtPoints scores agreement between two registration districts on a
// three-point scale: exact, one containing the other, or sharing a stem.
func districtPoints(got, want string, equal, contains, similar int) int {
	if got == "" || want == "" {
		return 0
	}

	switch {
	case strings.EqualFold(got, want):
		return equal
	case containsFold(got, want) || containsFold(want, got):
		return contains
	case normalize.DistrictsSimilar(got, want):
		return similar
	default:
		return 0
	}
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}

	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// prefixFold reports whether two strings share a case-insensitive prefix of
// n bytes. Used for loose surname agreement ("Thompson" vs "Thomson").
func prefixFold(a, b string, n int) bool {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if len(a) < n || len(b) < n {
		return false
	}

	return a[:n] == b[:n]
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}

	return x
}
