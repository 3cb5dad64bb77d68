package normalize

import (
	"strings"
	"unicode"
)

// Specificity classifies how precisely a place string locates someone.
type Specificity string

// Specificity levels, most precise first.
const (
	SpecificityTown    Specificity = "town"
	SpecificityCounty  Specificity = "county"
	SpecificityCountry Specificity = "country"
	SpecificityPartial Specificity = "partial"
	SpecificityNone    Specificity = "none"
)

const (
	usStateCodeLen  = 2
	districtStemLen = 4
)

// glossTranslation is one non-Latin place gloss and its English equivalent.
// Tree sources localize place names per account language; Cyrillic and
// Mongolian glosses are the ones observed in practice. Longer keys are listed
// before their prefixes ("Англия" before the Mongolian "Англи") so the
// replacement pass never truncates a match.
type glossTranslation struct {
	gloss   string
	english string
}

var glossTranslations = []glossTranslation{
	{"Америкийн Нэгдсэн Улс", "United States"},
	{"Соединённые Штаты", "United States"},
	{"Калифорния", "California"},
	{"Калифорни", "California"},
	{"Шотландия", "Scotland"},
	{"Ирландия", "Ireland"},
	{"Нью-Йорк", "New York"},
	{"Англия", "England"},
	{"Англи", "England"},
	{"Лондон", "London"},
	{"Уэльс", "Wales"},
	{"Техас", "Texas"},
	{"Огайо", "Ohio"},
}

// oldEnglishCounties maps pre-Conquest county spellings, which surface in
// transcribed parish material, to their modern names. Matched per
// comma-separated token, case-insensitively.
var oldEnglishCounties = map[string]string{
	"deorbyscir":       "Derbyshire",
	"eoforwicscir":     "Yorkshire",
	"hamtunscir":       "Hampshire",
	"wiltunscir":       "Wiltshire",
	"sumorsaete":       "Somerset",
	"defnascir":        "Devon",
	"grantabrycgscir":  "Cambridgeshire",
	"snotingahamscir":  "Nottinghamshire",
	"legraceasterscir": "Leicestershire",
	"stæffordscir":     "Staffordshire",
}

var ukCounties = map[string]bool{
	"bedfordshire": true, "berkshire": true, "buckinghamshire": true,
	"cambridgeshire": true, "cheshire": true, "cornwall": true,
	"cumberland": true, "derbyshire": true, "devon": true, "dorset": true,
	"durham": true, "essex": true, "gloucestershire": true, "hampshire": true,
	"herefordshire": true, "hertfordshire": true, "huntingdonshire": true,
	"kent": true, "lancashire": true, "leicestershire": true,
	"lincolnshire": true, "middlesex": true, "norfolk": true,
	"northamptonshire": true, "northumberland": true, "nottinghamshire": true,
	"oxfordshire": true, "rutland": true, "shropshire": true, "somerset": true,
	"staffordshire": true, "suffolk": true, "surrey": true, "sussex": true,
	"warwickshire": true, "westmorland": true, "wiltshire": true,
	"worcestershire": true, "yorkshire": true,
	// Wales
	"glamorgan": true, "monmouthshire": true, "carmarthenshire": true,
	"denbighshire": true, "flintshire": true, "pembrokeshire": true,
	// Scotland
	"aberdeenshire": true, "angus": true, "argyll": true, "ayrshire": true,
	"fife": true, "lanarkshire": true, "midlothian": true, "perthshire": true,
	"renfrewshire": true, "stirlingshire": true,
}

var ukCountries = map[string]bool{
	"england": true, "scotland": true, "wales": true, "ireland": true,
	"northern ireland": true, "united kingdom": true, "uk": true,
	"great britain": true,
}

var nonUKCountries = map[string]bool{
	"united states": true, "usa": true, "u.s.a.": true, "america": true,
	"canada": true, "australia": true, "new zealand": true,
	"south africa": true, "india": true, "france": true, "germany": true,
	"italy": true, "spain": true, "poland": true, "russia": true,
	"mongolia": true, "china": true, "japan": true, "argentina": true,
	"brazil": true, "mexico": true,
}

var usStates = map[string]bool{
	"alabama": true, "alaska": true, "arizona": true, "arkansas": true,
	"california": true, "colorado": true, "connecticut": true,
	"delaware": true, "florida": true, "georgia": true, "hawaii": true,
	"idaho": true, "illinois": true, "indiana": true, "iowa": true,
	"kansas": true, "kentucky": true, "louisiana": true, "maine": true,
	"maryland": true, "massachusetts": true, "michigan": true,
	"minnesota": true, "mississippi": true, "missouri": true, "montana": true,
	"nebraska": true, "nevada": true, "new hampshire": true,
	"new jersey": true, "new mexico": true, "new york": true,
	"north carolina": true, "north dakota": true, "ohio": true,
	"oklahoma": true, "oregon": true, "pennsylvania": true,
	"rhode island": true, "south carolina": true, "south dakota": true,
	"tennessee": true, "texas": true, "utah": true, "vermont": true,
	"virginia": true, "washington": true, "west virginia": true,
	"wisconsin": true, "wyoming": true,
}

var usStateCodes = map[string]bool{
	"al": true, "ak": true, "az": true, "ar": true, "ca": true, "co": true,
	"ct": true, "de": true, "fl": true, "ga": true, "hi": true, "id": true,
	"il": true, "in": true, "ia": true, "ks": true, "ky": true, "la": true,
	"me": true, "md": true, "ma": true, "mi": true, "mn": true, "ms": true,
	"mo": true, "mt": true, "ne": true, "nv": true, "nh": true, "nj": true,
	"nm": true, "ny": true, "nc": true, "nd": true, "oh": true, "ok": true,
	"or": true, "pa": true, "ri": true, "sc": true, "sd": true, "tn": true,
	"tx": true, "ut": true, "vt": true, "va": true, "wa": true, "wv": true,
	"wi": true, "wy": true,
}

// SanitizePlace normalizes a place string to a clean Latin comma-separated
// form. Applied in order:
//
//  1. Translate known non-Latin glosses to English.
//  2. Strip residual non-Latin characters.
//  3. Collapse duplicate commas and whitespace, trim empty segments.
//  4. Replace Old-English county spellings with modern names.
//
// The result is a fixed point: sanitizing twice yields the same string.
func SanitizePlace(place string) string {
	s := place
	for _, t := range glossTranslations {
		s = strings.ReplaceAll(s, t.gloss, t.english)
	}

	s = stripNonLatin(s)

	parts := splitPlace(s)
	for i, part := range parts {
		if modern, ok := oldEnglishCounties[strings.ToLower(part)]; ok {
			parts[i] = modern
		}
	}

	return strings.Join(parts, ", ")
}

// stripNonLatin removes every rune outside ASCII and the Latin script.
// Accented Latin letters survive; leftover Cyrillic and CJK do not.
func stripNonLatin(s string) string {
	var b strings.Builder

	b.Grow(len(s))

	for _, r := range s {
		if r <= unicode.MaxASCII || unicode.Is(unicode.Latin, r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// splitPlace splits on commas, collapses inner whitespace and drops empty
// segments.
func splitPlace(s string) []string {
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))

	for _, part := range raw {
		cleaned := strings.Join(strings.Fields(part), " ")
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}

	return parts
}

// IsUKPlace reports whether any comma-separated segment of the place names a
// UK country or historic UK county.
func IsUKPlace(place string) bool {
	for _, part := range splitPlace(place) {
		lower := strings.ToLower(part)
		if ukCountries[lower] || ukCounties[lower] {
			return true
		}
	}

	return false
}

// IsNonUKPlace reports whether the place names a known non-UK country or US
// state. Two-letter US state codes count only as the final comma-separated
// segment, where postal convention puts them; "IN" or "OR" mid-string is
// almost always an English word.
func IsNonUKPlace(place string) bool {
	parts := splitPlace(place)
	if len(parts) == 0 {
		return false
	}

	last := strings.ToLower(parts[len(parts)-1])
	if len(last) == usStateCodeLen && usStateCodes[last] {
		return true
	}

	for _, part := range parts {
		lower := strings.ToLower(part)
		if nonUKCountries[lower] || usStates[lower] {
			return true
		}
	}

	return false
}

// PlaceSpecificity classifies a place string by the most precise component it
// carries. The string is parsed into a (town, county, country) triple against
// the fixed county and country tables; unrecognized leading segments are
// assumed to be the town.
//
//	"Derby, Derbyshire, England" -> town
//	"Derbyshire, England"        -> county
//	"England"                    -> country
//	"Derby"                      -> partial (unconfirmed token)
//	""                           -> none
func PlaceSpecificity(place string) Specificity {
	parts := splitPlace(place)
	if len(parts) == 0 {
		return SpecificityNone
	}

	var town, county, country string

	for i, part := range parts {
		lower := strings.ToLower(part)

		switch {
		case ukCounties[lower] || usStates[lower]:
			if county == "" {
				county = part
			}
		case ukCountries[lower] || nonUKCountries[lower]:
			if country == "" {
				country = part
			}
		case i == len(parts)-1 && len(lower) == usStateCodeLen && usStateCodes[lower]:
			if county == "" {
				county = part
			}
		default:
			if town == "" {
				town = part
			}
		}
	}

	switch {
	case town != "" && (county != "" || country != ""):
		return SpecificityTown
	case county != "":
		return SpecificityCounty
	case country != "":
		return SpecificityCountry
	default:
		return SpecificityPartial
	}
}

// ExtractDistrict returns the registration district of a place string: its
// first comma-separated segment.
func ExtractDistrict(place string) string {
	parts := splitPlace(place)
	if len(parts) == 0 {
		return ""
	}

	return parts[0]
}

// DistrictsSimilar reports whether two district names share a four-letter
// stem. Registration districts drifted in spelling across census years
// ("Burton upon Trent" / "Burton-on-Trent"); a shared stem is enough for the
// partial-credit tier of the scorers.
func DistrictsSimilar(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if len(a) < districtStemLen || len(b) < districtStemLen {
		return false
	}

	return a[:districtStemLen] == b[:districtStemLen]
}
