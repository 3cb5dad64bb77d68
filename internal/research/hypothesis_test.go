package research

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rootline-io/rootline/internal/sources"
)

// TestScoreBirthEntry walks the scoring dimensions against a fixed search
// input: given-name agreement, year proximity tiers, district agreement and
// mother-maiden agreement.
func TestScoreBirthEntry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	info := PersonInfo{
		GivenName:           "George",
		Surname:             "Hartley",
		BirthYear:           1854,
		MotherMaidenSurname: "Turner",
	}

	entry := func(mutate func(*sources.BirthEntry)) sources.BirthEntry {
		e := sources.BirthEntry{
			Surname:             "Hartley",
			Forenames:           "George",
			Year:                1854,
			District:            "Preston",
			MotherMaidenSurname: "Turner",
		}
		if mutate != nil {
			mutate(&e)
		}

		return e
	}

	tests := []struct {
		name  string
		entry sources.BirthEntry
		want  int
	}{
		{
			name:  "full agreement",
			entry: entry(nil),
			want:  85,
		},
		{
			name:  "clerk abbreviation still counts as the same given name",
			entry: entry(func(e *sources.BirthEntry) { e.Forenames = "Geo" }),
			want:  85,
		},
		{
			name:  "unrelated given name",
			entry: entry(func(e *sources.BirthEntry) { e.Forenames = "Albert" }),
			want:  65,
		},
		{
			name:  "year off by one",
			entry: entry(func(e *sources.BirthEntry) { e.Year = 1855 }),
			want:  80,
		},
		{
			name:  "year off by three",
			entry: entry(func(e *sources.BirthEntry) { e.Year = 1851 }),
			want:  75,
		},
		{
			name:  "year off by five",
			entry: entry(func(e *sources.BirthEntry) { e.Year = 1859 }),
			want:  70,
		},
		{
			name:  "year outside the window",
			entry: entry(func(e *sources.BirthEntry) { e.Year = 1860 }),
			want:  65,
		},
		{
			name:  "district containment",
			entry: entry(func(e *sources.BirthEntry) { e.District = "Preston St John" }),
			want:  80,
		},
		{
			name:  "district stem",
			entry: entry(func(e *sources.BirthEntry) { e.District = "Prestwich" }),
			want:  78,
		},
		{
			name:  "unrelated district",
			entry: entry(func(e *sources.BirthEntry) { e.District = "Carlisle" }),
			want:  70,
		},
		{
			name:  "maiden substring",
			entry: entry(func(e *sources.BirthEntry) { e.MotherMaidenSurname = "Turner Smith" }),
			want:  70,
		},
		{
			name:  "maiden disagrees",
			entry: entry(func(e *sources.BirthEntry) { e.MotherMaidenSurname = "Bowker" }),
			want:  55,
		},
		{
			name:  "entry without maiden earns nothing for it",
			entry: entry(func(e *sources.BirthEntry) { e.MotherMaidenSurname = "" }),
			want:  55,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scoreBirthEntry(tc.entry, info, "Preston"))
		})
	}
}

// TestScoreBirthEntry_PrefixTier verifies the partial-credit tier for
// truncated forenames where the full-similarity check cannot fire.
func TestScoreBirthEntry_PrefixTier(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	info := PersonInfo{GivenName: "Eleanora", Surname: "Crook", BirthYear: 1885}
	entry := sources.BirthEntry{
		Surname:   "Crook",
		Forenames: "Eleanor May",
		Year:      1885,
		District:  "Blackburn",
	}

	// prefix 15 + year 20, no district wanted, no maiden on either side
	assert.Equal(t, 35, scoreBirthEntry(entry, info, ""))
}

// TestScoreBirthEntry_MaidenIgnoredWhenUnknown verifies that an entry's
// mother-maiden surname is ignored when the search input has none to compare.
func TestScoreBirthEntry_MaidenIgnoredWhenUnknown(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	info := PersonInfo{GivenName: "George", Surname: "Hartley", BirthYear: 1854}
	entry := sources.BirthEntry{
		Surname: "Hartley", Forenames: "George", Year: 1854,
		District: "Preston", MotherMaidenSurname: "Turner",
	}

	assert.Equal(t, 55, scoreBirthEntry(entry, info, "Preston"))
}

// TestDedupeBirthEntries verifies both dedupe keys: the register reference
// when present, and the indexed field tuple when it is not.
func TestDedupeBirthEntries(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	byReference := []sources.BirthEntry{
		{Surname: "Hartley", Forenames: "George", Volume: "8e", Page: "411"},
		{Surname: "Hartley", Forenames: "Geo", Volume: "8e", Page: "411"},
		{Surname: "Hartley", Forenames: "Margaret", Volume: "8e", Page: "500"},
	}

	got := dedupeBirthEntries(byReference)
	assert.Len(t, got, 2)
	assert.Equal(t, "George", got[0].Forenames, "first occurrence wins")
	assert.Equal(t, "Margaret", got[1].Forenames)

	byFields := []sources.BirthEntry{
		{Surname: "Hartley", Forenames: "George", Year: 1854, Quarter: "Q3", District: "Preston"},
		{Surname: "HARTLEY", Forenames: "GEORGE", Year: 1854, Quarter: "Q3", District: "PRESTON"},
		{Surname: "Hartley", Forenames: "George", Year: 1855, Quarter: "Q3", District: "Preston"},
	}

	got = dedupeBirthEntries(byFields)
	assert.Len(t, got, 2, "field-tuple key is case-insensitive")

	// A reference-less entry never collides with a referenced one.
	mixed := []sources.BirthEntry{
		{Surname: "Hartley", Forenames: "George", Year: 1854, Volume: "8e", Page: "411"},
		{Surname: "Hartley", Forenames: "George", Year: 1854},
	}

	assert.Len(t, dedupeBirthEntries(mixed), 2)
}
