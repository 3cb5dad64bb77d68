package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Evidence chain builders for scorer tests. Weights follow the fixed
// per-kind values; only the shape of the chain matters to the branches.

func birthEvidence() EvidenceRecord {
	return EvidenceRecord{Kind: EvidenceBirth, Independent: true, Weight: WeightBirth}
}

func marriageEvidence() EvidenceRecord {
	return EvidenceRecord{Kind: EvidenceMarriage, Independent: true, Weight: WeightMarriage}
}

func censusChildEvidence() EvidenceRecord {
	return EvidenceRecord{Kind: EvidenceCensus, Weight: WeightCensusChild}
}

func censusReinforceEvidence() EvidenceRecord {
	return EvidenceRecord{Kind: EvidenceCensus, Weight: WeightCensusReinforce}
}

func siblingEvidence() EvidenceRecord {
	return EvidenceRecord{Kind: EvidenceSiblingBirth, Independent: true, Weight: WeightSiblingBirth}
}

func deathEvidence() EvidenceRecord {
	return EvidenceRecord{Kind: EvidenceDeath, Independent: true, Weight: WeightDeath}
}

func treeLeadEvidence() EvidenceRecord {
	return EvidenceRecord{Kind: EvidenceTreeLead, Weight: WeightTreeLead}
}

// TestScoreEvidence_Branches pins the score of each evidence shape the
// formula distinguishes.
func TestScoreEvidence_Branches(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		chain []EvidenceRecord
		want  int
	}{
		{
			name: "empty chain scores zero",
		},
		{
			name:  "single birth record",
			chain: []EvidenceRecord{birthEvidence()},
			want:  40,
		},
		{
			name:  "single marriage record",
			chain: []EvidenceRecord{marriageEvidence()},
			want:  45,
		},
		{
			name:  "single weak record stays at the branch base",
			chain: []EvidenceRecord{deathEvidence()},
			want:  25,
		},
		{
			name:  "birth and marriage corroborate to the paired ceiling",
			chain: []EvidenceRecord{birthEvidence(), marriageEvidence()},
			want:  89,
		},
		{
			name:  "full triangle without reinforcement stays paired",
			chain: []EvidenceRecord{birthEvidence(), marriageEvidence(), censusChildEvidence()},
			want:  89,
		},
		{
			name: "triangle plus death reaches the top",
			chain: []EvidenceRecord{
				birthEvidence(), marriageEvidence(), censusChildEvidence(), deathEvidence(),
			},
			want: 100,
		},
		{
			name: "triangle plus second census reaches the top",
			chain: []EvidenceRecord{
				birthEvidence(), marriageEvidence(), censusChildEvidence(), censusReinforceEvidence(),
			},
			want: 100,
		},
		{
			name: "triangle plus sibling reaches the top",
			chain: []EvidenceRecord{
				birthEvidence(), marriageEvidence(), censusChildEvidence(), siblingEvidence(),
			},
			want: 100,
		},
		{
			name:  "two independent records without a marriage",
			chain: []EvidenceRecord{birthEvidence(), siblingEvidence()},
			want:  65,
		},
		{
			name:  "derived census never counts alone",
			chain: []EvidenceRecord{censusChildEvidence()},
			want:  0,
		},
		{
			name:  "tree lead never counts as evidence",
			chain: []EvidenceRecord{treeLeadEvidence()},
			want:  0,
		},
		{
			name:  "derived records do not fake a pair",
			chain: []EvidenceRecord{marriageEvidence(), censusChildEvidence()},
			want:  49,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreEvidence(tt.chain, CrossCheckVerdict{}))
		})
	}
}

// TestScoreEvidence_CrossCheckCap verifies that a failed cross-check caps
// any branch, while a verified one never interferes.
func TestScoreEvidence_CrossCheckCap(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	paired := []EvidenceRecord{birthEvidence(), marriageEvidence()}
	reinforced := []EvidenceRecord{
		birthEvidence(), marriageEvidence(), censusChildEvidence(), deathEvidence(),
	}

	failed := CrossCheckVerdict{Attempted: true, Verified: false, Score: 10}
	verified := CrossCheckVerdict{Attempted: true, Verified: true, Score: 50}

	assert.Equal(t, 60, ScoreEvidence(paired, failed))
	assert.Equal(t, 60, ScoreEvidence(reinforced, failed))
	assert.Equal(t, 89, ScoreEvidence(paired, verified))
	assert.Equal(t, 100, ScoreEvidence(reinforced, verified))

	// A chain already below the cap is left alone.
	single := []EvidenceRecord{birthEvidence()}
	assert.Equal(t, 40, ScoreEvidence(single, failed))
}

// TestScoreEvidence_Deterministic verifies that the same chain and verdict
// always yield the same score.
func TestScoreEvidence_Deterministic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	chain := []EvidenceRecord{
		birthEvidence(), marriageEvidence(), censusChildEvidence(), siblingEvidence(), deathEvidence(),
	}
	verdict := CrossCheckVerdict{Attempted: true, Verified: true, Score: 40}

	first := ScoreEvidence(chain, verdict)
	for range 10 {
		assert.Equal(t, first, ScoreEvidence(chain, verdict))
	}
}

// TestScoreEvidence_MoreEvidenceNeverHurts verifies monotonicity: appending
// a record never lowers the score.
func TestScoreEvidence_MoreEvidenceNeverHurts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	chain := []EvidenceRecord{birthEvidence()}
	additions := []EvidenceRecord{
		marriageEvidence(), censusChildEvidence(), deathEvidence(),
		siblingEvidence(), censusReinforceEvidence(), treeLeadEvidence(),
	}

	previous := ScoreEvidence(chain, CrossCheckVerdict{})

	for _, record := range additions {
		chain = append(chain, record)
		score := ScoreEvidence(chain, CrossCheckVerdict{})
		assert.GreaterOrEqual(t, score, previous, "adding %s lowered the score", record.Kind)
		previous = score
	}
}

// TestBranchScore verifies the surplus-above-pivot arithmetic at its edges.
func TestBranchScore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Weight at the pivot yields the base; the ceiling is never exceeded.
	assert.Equal(t, singleBase, branchScore(singlePivot, singleBase, singleCeil, singlePivot))
	assert.Equal(t, pairedCeil, branchScore(1000, pairedBase, pairedCeil, pairedPivot))
	assert.Equal(t, 79, branchScore(44, pairedBase, pairedCeil, pairedPivot))
}
