// Package normalize provides deterministic string normalization for genealogical
// research data: dates, personal names, surnames and place strings.
//
// All functions are pure and side-effect free. Record sources disagree on
// formats (civil indices use year-only, customer input arrives as anything from
// "abt 1892" to "04.03.50"), so every comparison in the research pipeline goes
// through this package first.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// twoDigitYearPivot decides the century for DD.MM.YY dates:
	// years above the pivot resolve to 19xx, at or below to 20xx.
	twoDigitYearPivot = 25

	maxMonth = 12
	maxDay   = 31

	monthYearFields    = 2
	dayMonthYearFields = 3
)

// Date is a parsed genealogical date. Year is always set; Month and Day are
// zero when the source string did not carry them.
type Date struct {
	Year  int
	Month int
	Day   int
}

// YearString returns the canonical year-only form used for external source
// queries. The genealogical APIs referenced by the adapters reject any other
// date format.
func (d Date) YearString() string {
	return strconv.Itoa(d.Year)
}

var (
	yearOnlyPattern   = regexp.MustCompile(`^(\d{4})$`)
	dottedLongPattern = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	dottedYYPattern   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2})$`)

	// Leading approximation markers stripped before parsing. Order matters:
	// "abt." must be tried before "abt" so the bare form does not strip the
	// letters and leave the period behind.
	approxPrefixes = []string{"about", "abt.", "abt", "circa", "c.", "~"}

	monthNumbers = map[string]int{
		"january": 1, "february": 2, "march": 3, "april": 4,
		"may": 5, "june": 6, "july": 7, "august": 8,
		"september": 9, "october": 10, "november": 11, "december": 12,
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "sept": 9, "oct": 10,
		"nov": 11, "dec": 12,
	}
)

// ParseDate parses a genealogical date string into a Date.
//
// Accepted forms:
//   - "1892" (year only)
//   - "04.03.1950" (DD.MM.YYYY)
//   - "04.03.50" (DD.MM.YY, two-digit-year pivot: >25 resolves to 19xx, otherwise 20xx)
//   - "4 March 1950" and "March 1950" (full month name, optional day)
//   - "Mar 1950" (abbreviated month name)
//
// Leading approximation markers ("abt", "about", "circa", "c.", "~") are
// stripped. Returns false when the string matches none of the accepted forms.
func ParseDate(raw string) (Date, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, false
	}

	s = stripApproxPrefix(s)

	if m := yearOnlyPattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])

		return Date{Year: year}, true
	}

	if m := dottedLongPattern.FindStringSubmatch(s); m != nil {
		return newDottedDate(m[1], m[2], m[3], false)
	}

	if m := dottedYYPattern.FindStringSubmatch(s); m != nil {
		return newDottedDate(m[1], m[2], m[3], true)
	}

	return parseMonthNameDate(s)
}

// ParseYear parses a date string and returns only the year component.
// Convenience wrapper used wherever the pipeline needs a search window.
func ParseYear(raw string) (int, bool) {
	d, ok := ParseDate(raw)
	if !ok {
		return 0, false
	}

	return d.Year, true
}

func stripApproxPrefix(s string) string {
	lower := strings.ToLower(s)

	for _, prefix := range approxPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}

	return s
}

func newDottedDate(dayStr, monthStr, yearStr string, twoDigitYear bool) (Date, bool) {
	day, _ := strconv.Atoi(dayStr)
	month, _ := strconv.Atoi(monthStr)
	year, _ := strconv.Atoi(yearStr)

	if twoDigitYear {
		if year > twoDigitYearPivot {
			year += 1900
		} else {
			year += 2000
		}
	}

	if month < 1 || month > maxMonth || day < 1 || day > maxDay {
		return Date{}, false
	}

	return Date{Year: year, Month: month, Day: day}, true
}

// parseMonthNameDate handles "[d] MMMM YYYY" and "MMM YYYY" forms.
func parseMonthNameDate(s string) (Date, bool) {
	fields := strings.Fields(s)

	var dayStr, monthStr, yearStr string

	switch len(fields) {
	case monthYearFields: // "March 1950"
		monthStr, yearStr = fields[0], fields[1]
	case dayMonthYearFields: // "4 March 1950"
		dayStr, monthStr, yearStr = fields[0], fields[1], fields[2]
	default:
		return Date{}, false
	}

	if !yearOnlyPattern.MatchString(yearStr) {
		return Date{}, false
	}

	month, ok := monthNumbers[strings.ToLower(strings.TrimSuffix(monthStr, "."))]
	if !ok {
		return Date{}, false
	}

	year, _ := strconv.Atoi(yearStr)
	date := Date{Year: year, Month: month}

	if dayStr != "" {
		day, err := strconv.Atoi(dayStr)
		if err != nil || day < 1 || day > maxDay {
			return Date{}, false
		}

		date.Day = day
	}

	return date, true
}
