package research

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rootline-io/rootline/internal/sources"
)

func TestBirthRecord(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	entry := sources.BirthEntry{
		Surname:             "Hartley",
		Forenames:           "George",
		Year:                1854,
		Quarter:             "Q3",
		District:            "Preston",
		Volume:              "8e",
		Page:                "411",
		MotherMaidenSurname: "Turner",
	}

	record := birthRecord("civil-index", entry, false)

	assert.Equal(t, EvidenceBirth, record.Kind)
	assert.Equal(t, WeightBirth, record.Weight)
	assert.True(t, record.Independent)
	assert.ElementsMatch(t, []Aspect{AspectIdentity, AspectLocation, AspectParents}, record.Supports)
	assert.Equal(t, "Birth index: Hartley, George, Q3 1854, Preston (vol 8e p 411), mother Turner", record.Details)

	variant := birthRecord("civil-index", entry, true)
	assert.Equal(t, WeightBirthVariant, variant.Weight)

	// Without a maiden name the entry says nothing about parents.
	entry.MotherMaidenSurname = ""
	record = birthRecord("civil-index", entry, false)
	assert.ElementsMatch(t, []Aspect{AspectIdentity, AspectLocation}, record.Supports)
	assert.Equal(t, "Birth index: Hartley, George, Q3 1854, Preston (vol 8e p 411)", record.Details)
}

func TestRegistrationText_SparseEntries(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "Hartley", registrationText("Hartley", "", "", 0, ""))
	assert.Equal(t, "Hartley, George", registrationText("Hartley", "George", "", 0, ""))
	assert.Equal(t, "Hartley, 1854", registrationText("Hartley", "", "", 1854, ""))
	assert.Equal(t, "Hartley, Q3, Preston", registrationText("Hartley", "", "Q3", 0, "Preston"))
}

func TestQuarterYearText(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "Q3 1854", quarterYearText("Q3", 1854))
	assert.Equal(t, "1854", quarterYearText("", 1854))
	assert.Equal(t, "Q3", quarterYearText("Q3", 0))
	assert.Equal(t, "", quarterYearText("", 0))
}

func TestReferenceText(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, " (vol 8e p 411)", referenceText("8e", "411"))
	assert.Equal(t, " (vol 8e)", referenceText("8e", ""))
	assert.Equal(t, " (p 411)", referenceText("", "411"))
	assert.Equal(t, "", referenceText("", ""))
}

func TestCensusDetails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "Census 1861: Preston, Lancashire", censusDetails(1861, "Preston, Lancashire"))
	assert.Equal(t, "Census 1861", censusDetails(1861, ""))
}

func TestHasEvidenceKind(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	chain := []EvidenceRecord{
		{Kind: EvidenceBirth},
		{Kind: EvidenceCensus},
	}

	assert.True(t, hasEvidenceKind(chain, EvidenceBirth))
	assert.True(t, hasEvidenceKind(chain, EvidenceCensus))
	assert.False(t, hasEvidenceKind(chain, EvidenceMarriage))
	assert.False(t, hasEvidenceKind(nil, EvidenceBirth))
}

func TestDistrictPoints(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		got  string
		want string
		pts  int
	}{
		{"exact", "Preston", "Preston", 15},
		{"exact case-insensitive", "PRESTON", "preston", 15},
		{"containment", "Preston St John", "Preston", 10},
		{"containment reversed", "Preston", "Preston St John", 10},
		{"shared stem", "Prestwich", "Preston", 8},
		{"unrelated", "Carlisle", "Preston", 0},
		{"missing got", "", "Preston", 0},
		{"missing want", "Preston", "", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.pts, districtPoints(tc.got, tc.want, 15, 10, 8))
		})
	}
}

func TestPrefixFold(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.True(t, prefixFold("Thompson", "Thomson", 4))
	assert.True(t, prefixFold("HARTLEY", "hartman", 4))
	assert.False(t, prefixFold("Hartley", "Horton", 4))
	assert.False(t, prefixFold("Ho", "Horton", 4), "too short for the requested prefix")
}

func TestAbsInt(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, 3, absInt(3))
	assert.Equal(t, 3, absInt(-3))
	assert.Equal(t, 0, absInt(0))
}
