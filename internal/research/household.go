package research

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/sources"
)

// Household resolution parameters. A hypothesis needs a tree person scoring
// at least the alternate line to survive; the primary line marks a firm
// attachment.
const (
	householdCandidateCount = 10
	householdPrimaryMin     = 60
	householdAlternateMin   = 30

	// surnamePrefixLen is the shared-prefix length for loose maiden-name
	// agreement.
	surnamePrefixLen = 3
)

// Household candidate point values.
const (
	householdGivenSimilarPoints = 20

	householdDistrictEqualPoints   = 15
	householdDistrictSimilarPoints = 10

	householdYearOff1Points = 15
	householdYearOff2Points = 10
	householdYearOff3Points = 5

	householdFatherSurnamePoints = 15
	householdMotherExactPoints   = 25
	householdMotherPrefixPoints  = 10
)

// Childhood census: a placement at this age or younger puts the candidate in
// the right household at the right time.
const (
	childCensusPoints = 10
	childCensusMaxAge = 15
)

// resolveHousehold attaches a tree person to a hypothesis. The person search
// is scored against the hypothesis; non-UK births and operator-rejected
// persons are filtered; a childhood census placement adds both points and an
// evidence record. The hypothesis status lands on primary, alternate or
// discarded depending on the best candidate's score.
//
// With no tree source configured the hypothesis is left untouched and the
// caller promotes the best index hit directly.
func (e *Engine) resolveHousehold(ctx context.Context, rs *runState, hyp *Hypothesis, info PersonInfo, trace *searchTrace) {
	if rs.tree == nil {
		return
	}

	query := sources.PersonQuery{
		GivenName:     hyp.Forenames,
		Surname:       hyp.Surname,
		BirthPlace:    hyp.District,
		FatherSurname: info.FatherSurname,
		MotherSurname: hyp.MotherMaidenSurname,
		Count:         householdCandidateCount,
	}
	if query.GivenName == "" {
		query.GivenName = info.GivenName
	}

	if hyp.BirthYear > 0 {
		query.BirthDate = strconv.Itoa(hyp.BirthYear)
	}

	candidates, err := rs.tree.SearchPersons(ctx, query)
	if err != nil {
		e.logger.Warn("Person search failed",
			slog.String("surname", hyp.Surname),
			slog.String("error", err.Error()))
		trace.addf("Person search failed: %v", err)

		return
	}

	trace.source(rs.tree.Name())
	trace.addf("Person search: %s %s b.%d: %d candidates",
		query.GivenName, query.Surname, hyp.BirthYear, len(candidates))

	best, bestScore := e.pickHouseholdCandidate(candidates, hyp, rs.rejected, trace)
	if best == nil {
		hyp.Status = StatusDiscarded
		trace.addf("No usable tree candidate for %s %s", hyp.Forenames, hyp.Surname)

		return
	}

	bestScore += e.attachCensusFacts(ctx, rs, hyp, best, trace)

	switch {
	case bestScore >= householdPrimaryMin:
		hyp.Status = StatusPrimary
	case bestScore >= householdAlternateMin:
		hyp.Status = StatusAlternate
	default:
		hyp.Status = StatusDiscarded
		trace.addf("Best tree candidate %s scored %d, below the alternate line", best.ID, bestScore)

		return
	}

	hyp.Score += bestScore
	hyp.TreePersonID = best.ID
	hyp.TreeName = best.Name
	hyp.TreeBirthDate = best.BirthDate
	hyp.TreeBirthPlace = best.BirthPlace
	hyp.TreeFatherName = best.FatherName
	hyp.TreeMotherName = best.MotherName

	if best.DeathDate != "" {
		hyp.TreeDeathDate = best.DeathDate
	}

	trace.addf("Attached tree person %s (%s) with household score %d (%s)",
		best.Name, best.ID, bestScore, hyp.Status)
}

func (e *Engine) pickHouseholdCandidate(candidates []sources.PersonCandidate, hyp *Hypothesis, rejected map[string]bool, trace *searchTrace) (*sources.PersonCandidate, int) {
	var best *sources.PersonCandidate

	bestScore := -1

	for i := range candidates {
		candidate := &candidates[i]

		if rejected[candidate.ID] {
			trace.addf("Skipped rejected tree person %s", candidate.ID)

			continue
		}

		if normalize.IsNonUKPlace(candidate.BirthPlace) && !normalize.IsUKPlace(candidate.BirthPlace) {
			continue
		}

		if score := scoreHouseholdCandidate(candidate, hyp); score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	return best, bestScore
}

// scoreHouseholdCandidate weighs a tree person against a hypothesis:
// given-name agreement, birth district, birth-year proximity, and parent
// names against the index surname and recorded mother-maiden surname.
func scoreHouseholdCandidate(candidate *sources.PersonCandidate, hyp *Hypothesis) int {
	score := 0

	given := normalize.ParseName(candidate.Name).Given
	if normalize.SimilarGivenNames(given, hyp.Forenames) {
		score += householdGivenSimilarPoints
	}

	if year, ok := normalize.ParseYear(candidate.BirthDate); ok && hyp.BirthYear > 0 {
		switch gap := absInt(year - hyp.BirthYear); {
		case gap <= 1:
			score += householdYearOff1Points
		case gap <= 2:
			score += householdYearOff2Points
		case gap <= 3:
			score += householdYearOff3Points
		}
	}

	district := searchDistrict(candidate.BirthPlace)

	switch {
	case district != "" && hyp.District != "" && strings.EqualFold(district, hyp.District):
		score += householdDistrictEqualPoints
	case normalize.DistrictsSimilar(district, hyp.District):
		score += householdDistrictSimilarPoints
	}

	if candidate.FatherName != "" {
		fatherSurname := normalize.ParseName(candidate.FatherName).Surname
		if strings.EqualFold(fatherSurname, hyp.Surname) {
			score += householdFatherSurnamePoints
		}
	}

	if hyp.MotherMaidenSurname != "" && candidate.MotherName != "" {
		motherSurname := normalize.ParseName(candidate.MotherName).Surname

		switch {
		case strings.EqualFold(motherSurname, hyp.MotherMaidenSurname):
			score += householdMotherExactPoints
		case prefixFold(motherSurname, hyp.MotherMaidenSurname, surnamePrefixLen):
			score += householdMotherPrefixPoints
		}
	}

	return score
}

// backfillTreeParents fills missing parent names on an attached tree person
// from the tree's parent lookup. Person-search summaries frequently omit
// parent links that the underlying tree records.
func (e *Engine) backfillTreeParents(ctx context.Context, rs *runState, hyp *Hypothesis, trace *searchTrace) {
	pair, err := rs.tree.GetParents(ctx, hyp.TreePersonID)
	if err != nil {
		e.logger.Warn("Tree parent lookup failed",
			slog.String("person_id", hyp.TreePersonID),
			slog.String("error", err.Error()))
		trace.addf("Tree parent lookup for %s failed: %v", hyp.TreePersonID, err)

		return
	}

	if pair == nil {
		return
	}

	if hyp.TreeFatherName == "" && pair.Father != nil {
		hyp.TreeFatherName = pair.Father.Name
		trace.addf("Tree parent lookup: father %s", pair.Father.Name)
	}

	if hyp.TreeMotherName == "" && pair.Mother != nil {
		hyp.TreeMotherName = pair.Mother.Name
		trace.addf("Tree parent lookup: mother %s", pair.Mother.Name)
	}
}

// attachCensusFacts extracts the candidate's census placements. All of them
// are kept on the hypothesis for the reinforcement pass; a placement inside
// the childhood window additionally becomes evidence and earns points.
func (e *Engine) attachCensusFacts(ctx context.Context, rs *runState, hyp *Hypothesis, candidate *sources.PersonCandidate, trace *searchTrace) int {
	facts, err := rs.tree.ExtractFacts(ctx, candidate.ID)
	if err != nil {
		e.logger.Warn("Fact extraction failed",
			slog.String("person_id", candidate.ID),
			slog.String("error", err.Error()))
		trace.addf("Fact extraction for %s failed: %v", candidate.ID, err)

		return 0
	}

	if facts == nil {
		return 0
	}

	for _, census := range facts.Census {
		hyp.CensusYears = append(hyp.CensusYears, CensusPlacement{Year: census.Year, Place: census.Place})
	}

	if candidate.DeathDate == "" && facts.DeathDate != "" {
		hyp.TreeDeathDate = facts.DeathDate
	}

	if hyp.BirthYear == 0 {
		return 0
	}

	for _, census := range facts.Census {
		age := census.Year - hyp.BirthYear
		if age < 0 || age > childCensusMaxAge {
			continue
		}

		hyp.Evidence = append(hyp.Evidence, EvidenceRecord{
			Kind:     EvidenceCensus,
			Source:   rs.tree.Name(),
			Year:     census.Year,
			Place:    census.Place,
			Details:  censusDetails(census.Year, census.Place),
			Supports: []Aspect{AspectIdentity, AspectLocation},
			Weight:   WeightCensusChild,
		})
		trace.addf("Census %d places candidate at %s, age %d", census.Year, census.Place, age)

		return childCensusPoints
	}

	return 0
}
