package research

// Confidence formula parameters. Each branch converts the chain's weight
// surplus above a pivot into points above the branch base, capped at the
// branch ceiling. Branch order is strongest evidence shape first.
const (
	reinforcedBase  = 85
	reinforcedCeil  = 100
	reinforcedPivot = 55

	pairedBase  = 75
	pairedCeil  = 89
	pairedPivot = 40

	multiBase  = 50
	multiCeil  = 74
	multiPivot = 25

	singleBase  = 25
	singleCeil  = 49
	singlePivot = 10

	// crossCheckFailCap bounds the score of a slot whose marriage record
	// could not be reconciled with its birth record.
	crossCheckFailCap = 60
)

// chainStats are the aggregate features of an evidence chain that the
// scoring branches switch on.
type chainStats struct {
	weight      int
	independent int

	hasBirth    bool
	hasMarriage bool

	// households counts census placements and sibling births. The first
	// completes the triangle; the rest reinforce it, as do deaths.
	households int
	deaths     int
}

func summarizeChain(chain []EvidenceRecord) chainStats {
	var stats chainStats

	for _, record := range chain {
		stats.weight += record.Weight

		if record.Independent {
			stats.independent++
		}

		switch record.Kind {
		case EvidenceBirth:
			if record.Independent {
				stats.hasBirth = true
			}
		case EvidenceMarriage:
			if record.Independent {
				stats.hasMarriage = true
			}
		case EvidenceCensus, EvidenceSiblingBirth:
			stats.households++
		case EvidenceDeath:
			stats.deaths++
		case EvidenceTreeLead:
			// leads carry weight but never shift the branch
		}
	}

	return stats
}

// triangle reports whether the chain holds a full evidence triangle: an
// independent birth, an independent marriage and a household placement.
func (s chainStats) triangle() bool {
	return s.hasBirth && s.hasMarriage && s.households > 0
}

// reinforcements counts the records beyond the triangle itself: every death
// and every household placement after the first.
func (s chainStats) reinforcements() int {
	extra := s.deaths

	if s.households > 1 {
		extra += s.households - 1
	}

	return extra
}

// ScoreEvidence computes the confidence score for one ancestor slot from its
// evidence chain and the cross-check verdict. The function is deterministic:
// the same chain and verdict always yield the same score.
//
// Branches, strongest first:
//   - a full triangle with at least one reinforcement on top
//   - birth and marriage corroborating each other, household leg or not
//   - two or more independent records of any kind
//   - a single independent record
//
// A failed cross-check caps the result regardless of branch.
func ScoreEvidence(chain []EvidenceRecord, verdict CrossCheckVerdict) int {
	stats := summarizeChain(chain)

	var score int

	switch {
	case stats.triangle() && stats.reinforcements() > 0:
		score = branchScore(stats.weight, reinforcedBase, reinforcedCeil, reinforcedPivot)
	case stats.hasBirth && stats.hasMarriage:
		score = branchScore(stats.weight, pairedBase, pairedCeil, pairedPivot)
	case stats.independent >= 2:
		score = branchScore(stats.weight, multiBase, multiCeil, multiPivot)
	case stats.independent >= 1:
		score = branchScore(stats.weight, singleBase, singleCeil, singlePivot)
	default:
		return 0
	}

	if verdict.Attempted && !verdict.Verified {
		score = min(score, crossCheckFailCap)
	}

	return max(score, 0)
}

func branchScore(weight, base, ceil, pivot int) int {
	return min(ceil, base+min(ceil-base, weight-pivot))
}
