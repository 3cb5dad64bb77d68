package research

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/sources"
)

// Tree-lead fallback parameters. A lead is a provisional identification from
// a derived tree, flagged for review rather than trusted: its confidence is
// the match score on a depressed base, hard-capped below the expansion line.
const (
	treeLeadAcceptMin      = 25
	treeLeadCandidateCount = 10
	treeLeadBase           = 25
	treeLeadCap            = 49
)

// treeLeadFallback attempts a tree-only identification when the primary
// pipeline produced no surviving hypothesis. Candidates are filtered and
// scored like household candidates; the best one becomes a hypothesis whose
// only evidence is a tree lead. Returns nil when nothing acceptable exists.
func (e *Engine) treeLeadFallback(ctx context.Context, rs *runState, info PersonInfo, trace *searchTrace) *Hypothesis {
	if rs.tree == nil {
		return nil
	}

	query := sources.PersonQuery{
		GivenName:     info.GivenName,
		Surname:       info.Surname,
		BirthPlace:    normalize.ExtractDistrict(info.BirthPlace),
		FatherSurname: info.FatherSurname,
		MotherSurname: info.MotherMaidenSurname,
		Count:         treeLeadCandidateCount,
	}
	if info.BirthYear > 0 {
		query.BirthDate = strconv.Itoa(info.BirthYear)
	}

	candidates, err := rs.tree.SearchPersons(ctx, query)
	if err != nil {
		e.logger.Warn("Tree-lead search failed",
			slog.String("surname", info.Surname),
			slog.String("error", err.Error()))
		trace.addf("Tree-lead search failed: %v", err)

		return nil
	}

	trace.source(rs.tree.Name())
	trace.addf("Tree-lead search: %s %s: %d candidates", info.GivenName, info.Surname, len(candidates))

	// Score candidates against a pseudo-hypothesis built from the search
	// input; the dimensions are the same as household resolution.
	expected := &Hypothesis{
		Forenames:           info.GivenName,
		Surname:             info.Surname,
		BirthYear:           info.BirthYear,
		District:            searchDistrict(info.BirthPlace),
		MotherMaidenSurname: info.MotherMaidenSurname,
	}

	best, bestScore := e.pickHouseholdCandidate(candidates, expected, rs.rejected, trace)
	if best == nil || bestScore < treeLeadAcceptMin {
		trace.addf("No acceptable tree lead for %s %s", info.GivenName, info.Surname)

		return nil
	}

	name := normalize.ParseName(best.Name)
	birthYear, _ := normalize.ParseYear(best.BirthDate)

	hyp := &Hypothesis{
		Surname:        name.Surname,
		Forenames:      name.Given,
		BirthYear:      birthYear,
		District:       searchDistrict(best.BirthPlace),
		Score:          bestScore,
		Status:         StatusAlternate,
		TreePersonID:   best.ID,
		TreeName:       best.Name,
		TreeBirthDate:  best.BirthDate,
		TreeBirthPlace: best.BirthPlace,
		TreeDeathDate:  best.DeathDate,
		TreeFatherName: best.FatherName,
		TreeMotherName: best.MotherName,
	}

	if hyp.Surname == "" {
		hyp.Surname = info.Surname
	}

	hyp.Evidence = []EvidenceRecord{{
		Kind:     EvidenceTreeLead,
		Source:   rs.tree.Name(),
		Year:     birthYear,
		Place:    best.BirthPlace,
		Details:  treeLeadDetails(best),
		Supports: []Aspect{AspectIdentity},
		Weight:   WeightTreeLead,
	}}

	trace.addf("Tree lead accepted: %s (%s), score %d", best.Name, best.ID, bestScore)

	return hyp
}

// treeLeadConfidence converts a lead's match score into its confidence.
func treeLeadConfidence(score int) int {
	return min(treeLeadCap, treeLeadBase+score)
}

func treeLeadDetails(candidate *sources.PersonCandidate) string {
	details := fmt.Sprintf("Tree lead: %s (%s)", candidate.Name, candidate.ID)

	if candidate.BirthDate != "" || candidate.BirthPlace != "" {
		details += ", b."

		if candidate.BirthDate != "" {
			details += " " + candidate.BirthDate
		}

		if candidate.BirthPlace != "" {
			details += " " + candidate.BirthPlace
		}
	}

	return details
}
