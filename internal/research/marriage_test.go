package research

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rootline-io/rootline/internal/sources"
)

// TestScoreMarriageEntry walks the scoring dimensions for a groom-side
// search: indexed surname, spouse surname, given-name agreement, the
// marriage-to-birth gap tiers and district agreement.
func TestScoreMarriageEntry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	side := marriageSide{
		surname:       "Hartley",
		given:         "William",
		spouseSurname: "Crook",
		spouseGiven:   "Edith",
		groom:         true,
	}
	seed := coupleSeed{childBirthYear: 1910, district: "Preston"}

	entry := func(mutate func(*sources.MarriageEntry)) sources.MarriageEntry {
		e := sources.MarriageEntry{
			Surname:         "Hartley",
			Forenames:       "William",
			SpouseSurname:   "Crook",
			SpouseForenames: "Edith",
			Year:            1908,
			District:        "Preston",
		}
		if mutate != nil {
			mutate(&e)
		}

		return e
	}

	tests := []struct {
		name  string
		entry sources.MarriageEntry
		want  int
	}{
		{
			name:  "full agreement",
			entry: entry(nil),
			want:  100,
		},
		{
			name:  "spouse surname disagrees",
			entry: entry(func(e *sources.MarriageEntry) { e.SpouseSurname = "Smith" }),
			want:  70,
		},
		{
			name:  "given name disagrees",
			entry: entry(func(e *sources.MarriageEntry) { e.Forenames = "Robert" }),
			want:  85,
		},
		{
			name:  "middle gap tier",
			entry: entry(func(e *sources.MarriageEntry) { e.Year = 1902 }),
			want:  95,
		},
		{
			name:  "outer gap tier",
			entry: entry(func(e *sources.MarriageEntry) { e.Year = 1898 }),
			want:  90,
		},
		{
			name:  "gap beyond window earns nothing",
			entry: entry(func(e *sources.MarriageEntry) { e.Year = 1890 }),
			want:  80,
		},
		{
			name:  "marriage after the birth earns nothing",
			entry: entry(func(e *sources.MarriageEntry) { e.Year = 1912 }),
			want:  80,
		},
		{
			name:  "district containment takes partial credit",
			entry: entry(func(e *sources.MarriageEntry) { e.District = "Preston St John" }),
			want:  95,
		},
		{
			name:  "district stem takes partial credit",
			entry: entry(func(e *sources.MarriageEntry) { e.District = "Prestwich" }),
			want:  95,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scoreMarriageEntry(tc.entry, side, seed))
		})
	}
}

// TestScoreMarriageEntry_UnknownSpouse verifies that a side with no expected
// spouse never earns spouse points, whatever the entry says.
func TestScoreMarriageEntry_UnknownSpouse(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	side := marriageSide{surname: "Hartley", given: "William", groom: true}
	seed := coupleSeed{childBirthYear: 1910, district: "Preston"}
	entry := sources.MarriageEntry{
		Surname: "Hartley", Forenames: "William",
		SpouseSurname: "Crook",
		Year:          1908, District: "Preston",
	}

	// surname 25 + given 15 + gap 20 + district 10, no spouse credit
	assert.Equal(t, 70, scoreMarriageEntry(entry, side, seed))
}

// TestNewCoupleMatch_Orientation verifies that a match normalizes to groom
// and bride regardless of which side the index was searched from.
func TestNewCoupleMatch_Orientation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	groomEntry := sources.MarriageEntry{
		Surname: "Hartley", Forenames: "William",
		SpouseSurname: "Crook", SpouseForenames: "Edith",
		Year: 1908, Quarter: "Q2", District: "Preston",
		Volume: "8e", Page: "50",
	}

	fromGroom := newCoupleMatch("civil-index", groomEntry, marriageSide{groom: true}, 100)

	assert.Equal(t, "Hartley", fromGroom.GroomSurname)
	assert.Equal(t, "William", fromGroom.GroomForenames)
	assert.Equal(t, "Crook", fromGroom.BrideSurname)
	assert.Equal(t, "Edith", fromGroom.BrideForenames)
	assert.Equal(t, 100, fromGroom.Score)

	brideEntry := sources.MarriageEntry{
		Surname: "Crook", Forenames: "Edith",
		SpouseSurname: "Hartley", SpouseForenames: "William",
		Year: 1908, Quarter: "Q2", District: "Preston",
		Volume: "8e", Page: "50",
	}

	fromBride := newCoupleMatch("civil-index", brideEntry, marriageSide{groom: false}, 90)

	assert.Equal(t, "Hartley", fromBride.GroomSurname)
	assert.Equal(t, "William", fromBride.GroomForenames)
	assert.Equal(t, "Crook", fromBride.BrideSurname)
	assert.Equal(t, "Edith", fromBride.BrideForenames)
}

// TestNewCoupleMatch_Evidence verifies the evidence record built alongside
// the match.
func TestNewCoupleMatch_Evidence(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	entry := sources.MarriageEntry{
		Surname: "Hartley", Forenames: "William",
		SpouseSurname: "Crook", SpouseForenames: "Edith",
		Year: 1908, Quarter: "Q2", District: "Preston",
		Volume: "8e", Page: "50",
	}

	match := newCoupleMatch("civil-index", entry, marriageSide{groom: true}, 100)
	record := match.Evidence

	assert.Equal(t, EvidenceMarriage, record.Kind)
	assert.Equal(t, "civil-index", record.Source)
	assert.True(t, record.Independent)
	assert.Equal(t, WeightMarriage, record.Weight)
	assert.Equal(t, 1908, record.Year)
	assert.Equal(t, "8e", record.Volume)
	assert.Equal(t, "50", record.Page)
	assert.ElementsMatch(t, []Aspect{AspectParents, AspectLocation}, record.Supports)
	assert.Equal(t, "Marriage index: Hartley, William x Crook, Edith, Q2 1908, Preston (vol 8e p 50)", record.Details)
}
