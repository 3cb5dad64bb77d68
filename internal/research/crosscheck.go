package research

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/sources"
)

// Cross-check point values. The check weighs how well an accepted marriage
// agrees with the birth hypothesis it is supposed to explain.
const (
	crossCheckSurnamePoints         = 15
	crossCheckMaidenPoints          = 15
	crossCheckDistrictEqualPoints   = 10
	crossCheckDistrictSimilarPoints = 5
	crossCheckGapPoints             = 10

	// crossCheckMaxGapYears is the largest plausible marriage-to-birth
	// gap that still earns agreement points.
	crossCheckMaxGapYears = 15

	// crossCheckVerifyMin is the score at which birth and marriage count
	// as reconciled. Below it the identification is capped.
	crossCheckVerifyMin = 25
)

// Reinforcement search parameters.
const (
	// siblingWindowYears bounds the registration window around the
	// hypothesis birth year when looking for siblings.
	siblingWindowYears = 8

	// censusReinforceGapYears is the minimum distance between census
	// placements for a second one to count as fresh support.
	censusReinforceGapYears = 8
)

// CrossCheckVerdict is the outcome of reconciling a birth hypothesis with
// the marriage record found for its parents. Attempted is false when no
// marriage was found, in which case no cap applies.
type CrossCheckVerdict struct {
	Attempted bool
	Verified  bool
	Score     int
}

// crossCheck weighs the agreement between a birth hypothesis and an accepted
// parent-couple marriage: shared surname, bride matching the recorded
// mother-maiden surname, district agreement and a plausible marriage-to-birth
// gap.
func crossCheck(hyp *Hypothesis, match *CoupleMatch) CrossCheckVerdict {
	if match == nil {
		return CrossCheckVerdict{}
	}

	score := 0

	if hyp.Surname != "" && strings.EqualFold(hyp.Surname, match.GroomSurname) {
		score += crossCheckSurnamePoints
	}

	if hyp.MotherMaidenSurname != "" && strings.EqualFold(hyp.MotherMaidenSurname, match.BrideSurname) {
		score += crossCheckMaidenPoints
	}

	switch {
	case hyp.District != "" && strings.EqualFold(hyp.District, match.Entry.District):
		score += crossCheckDistrictEqualPoints
	case normalize.DistrictsSimilar(hyp.District, match.Entry.District):
		score += crossCheckDistrictSimilarPoints
	}

	if hyp.BirthYear > 0 && match.Entry.Year > 0 {
		gap := hyp.BirthYear - match.Entry.Year
		if gap >= 0 && gap <= crossCheckMaxGapYears {
			score += crossCheckGapPoints
		}
	}

	return CrossCheckVerdict{
		Attempted: true,
		Verified:  score >= crossCheckVerifyMin,
		Score:     score,
	}
}

// reinforce runs the searches that strengthen an already-accepted
// identification: a sibling birth under the same mother, a death-index
// confirmation of the tree death date, and a second census placement well
// apart from the first. Each hit appends to the hypothesis evidence chain;
// misses are silent.
func (e *Engine) reinforce(ctx context.Context, rs *runState, hyp *Hypothesis, trace *searchTrace) {
	e.seekSiblingBirth(ctx, rs, hyp, trace)
	e.confirmDeath(ctx, rs, hyp, trace)
	e.seekSecondCensus(hyp, trace)
}

// seekSiblingBirth looks for another birth registration in the same district
// under the same mother-maiden surname within a few years of the hypothesis.
func (e *Engine) seekSiblingBirth(ctx context.Context, rs *runState, hyp *Hypothesis, trace *searchTrace) {
	if rs.primary == nil || hyp.MotherMaidenSurname == "" || hyp.BirthYear == 0 {
		return
	}

	entries, err := rs.primary.SearchBirths(ctx, sources.IndexQuery{
		Surname:  hyp.Surname,
		YearFrom: hyp.BirthYear - siblingWindowYears,
		YearTo:   hyp.BirthYear + siblingWindowYears,
		District: hyp.District,
	})
	if err != nil {
		e.logger.Warn("Sibling search failed",
			slog.String("surname", hyp.Surname),
			slog.String("error", err.Error()))
		trace.addf("Sibling search failed: %v", err)

		return
	}

	trace.source(rs.primary.Name())
	trace.addf("Sibling search: %s births %d-%d in %s: %d entries",
		hyp.Surname, hyp.BirthYear-siblingWindowYears, hyp.BirthYear+siblingWindowYears,
		hyp.District, len(entries))

	for _, entry := range entries {
		if !isSiblingOf(entry, hyp) {
			continue
		}

		hyp.Evidence = append(hyp.Evidence, EvidenceRecord{
			Kind:        EvidenceSiblingBirth,
			Source:      rs.primary.Name(),
			Independent: true,
			Year:        entry.Year,
			Quarter:     entry.Quarter,
			District:    entry.District,
			Volume:      entry.Volume,
			Page:        entry.Page,
			Details:     "Sibling " + birthDetails(entry),
			Supports:    []Aspect{AspectParents},
			Weight:      WeightSiblingBirth,
		})
		trace.addf("Sibling found: %s %s, %d, mother %s",
			entry.Forenames, entry.Surname, entry.Year, entry.MotherMaidenSurname)

		return
	}
}

// isSiblingOf reports whether a birth entry is a distinct registration under
// the same mother in the same district as the hypothesis.
func isSiblingOf(entry sources.BirthEntry, hyp *Hypothesis) bool {
	if !strings.EqualFold(entry.MotherMaidenSurname, hyp.MotherMaidenSurname) {
		return false
	}

	if !strings.EqualFold(entry.District, hyp.District) {
		return false
	}

	// The hypothesis's own registration is not its sibling.
	if entry.Volume != "" && entry.Page != "" &&
		entry.Volume == hyp.Volume && entry.Page == hyp.Page {
		return false
	}

	if entry.Year == hyp.BirthYear && strings.EqualFold(entry.Forenames, hyp.Forenames) {
		return false
	}

	return true
}

// confirmDeath checks the death index for the tree-reported death date.
func (e *Engine) confirmDeath(ctx context.Context, rs *runState, hyp *Hypothesis, trace *searchTrace) {
	if rs.confirm == nil || hyp.TreeDeathDate == "" {
		return
	}

	year, ok := normalize.ParseYear(hyp.TreeDeathDate)
	if !ok {
		return
	}

	entry, err := rs.confirm.ConfirmDeath(ctx, hyp.Forenames, hyp.Surname, year)
	if err != nil {
		e.logger.Warn("Death confirmation failed",
			slog.String("surname", hyp.Surname),
			slog.Int("year", year),
			slog.String("error", err.Error()))
		trace.addf("Death confirmation failed: %v", err)

		return
	}

	trace.source(rs.confirm.Name())

	if entry == nil {
		trace.addf("Death %d for %s %s: no matching registration", year, hyp.Forenames, hyp.Surname)

		return
	}

	hyp.Evidence = append(hyp.Evidence, EvidenceRecord{
		Kind:        EvidenceDeath,
		Source:      rs.confirm.Name(),
		Independent: true,
		Year:        entry.Year,
		Quarter:     entry.Quarter,
		District:    entry.District,
		Volume:      entry.Volume,
		Page:        entry.Page,
		Details:     deathDetails(*entry),
		Supports:    []Aspect{AspectIdentity},
		Weight:      WeightDeath,
	})
	trace.addf("Death confirmed: %s %s, %d, %s", entry.Forenames, entry.Surname, entry.Year, entry.District)
}

// seekSecondCensus promotes one more census placement from the tree facts
// when it sits well apart from every census already in the chain.
func (e *Engine) seekSecondCensus(hyp *Hypothesis, trace *searchTrace) {
	existing := censusYears(hyp.Evidence)
	if len(existing) == 0 {
		return
	}

	for _, placement := range hyp.CensusYears {
		if placement.Year == 0 || !apartFromAll(placement.Year, existing) {
			continue
		}

		hyp.Evidence = append(hyp.Evidence, EvidenceRecord{
			Kind:     EvidenceCensus,
			Source:   treeSourceName(hyp),
			Year:     placement.Year,
			Place:    placement.Place,
			Details:  censusDetails(placement.Year, placement.Place),
			Supports: []Aspect{AspectIdentity, AspectLocation},
			Weight:   WeightCensusReinforce,
		})
		trace.addf("Second census: %d at %s", placement.Year, placement.Place)

		return
	}
}

func censusYears(chain []EvidenceRecord) []int {
	var years []int

	for _, record := range chain {
		if record.Kind == EvidenceCensus && record.Year > 0 {
			years = append(years, record.Year)
		}
	}

	return years
}

func apartFromAll(year int, existing []int) bool {
	for _, y := range existing {
		if absInt(year-y) <= censusReinforceGapYears {
			return false
		}
	}

	return true
}

// treeSourceName recovers the source that produced the census placements
// already in the chain, so the reinforcement carries the same attribution.
func treeSourceName(hyp *Hypothesis) string {
	for _, record := range hyp.Evidence {
		if record.Kind == EvidenceCensus {
			return record.Source
		}
	}

	return ""
}
