package research

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/sources"
)

// Parent-couple search parameters. The window runs backwards from the
// child's birth year; a groom-side hit at or above marriageGroomFirmMin is
// taken without consulting the bride side's result.
const (
	marriageWindowYears  = 15
	marriageAcceptMin    = 40
	marriageGroomFirmMin = 60
)

// Marriage candidate point values.
const (
	marriageSurnamePoints      = 25
	marriageSpousePoints       = 30
	marriageGivenSimilarPoints = 15

	marriageGap5Points  = 20
	marriageGap10Points = 15
	marriageGap15Points = 10

	marriageDistrictEqualPoints   = 10
	marriageDistrictSimilarPoints = 5
)

type (
	// coupleSeed is the known-couple input to a marriage search: both
	// parents' identities as far as the pipeline knows them, anchored on
	// the year their child was born.
	coupleSeed struct {
		fatherSurname  string
		fatherGiven    string
		motherMaiden   string
		motherGiven    string
		childBirthYear int
		district       string
	}

	// marriageSide is one direction of the search: the indexed party and
	// the spouse we expect to find opposite them.
	marriageSide struct {
		surname       string
		given         string
		spouseSurname string
		spouseGiven   string
		groom         bool
	}

	// CoupleMatch is an accepted parent-couple marriage, normalized to
	// groom and bride regardless of which side the index was searched
	// from.
	CoupleMatch struct {
		GroomSurname   string
		GroomForenames string
		BrideSurname   string
		BrideForenames string

		Entry    sources.MarriageEntry
		Score    int
		Evidence EvidenceRecord
	}
)

// findParentCouple searches the marriage index for the target's parents,
// working backwards from the child's birth year. The groom side always runs;
// when the mother's identity is known the bride side runs concurrently and
// serves as the fallback for a weak groom-side result. Returns nil when no
// candidate reaches the acceptance line.
func (e *Engine) findParentCouple(ctx context.Context, rs *runState, seed coupleSeed, trace *searchTrace) *CoupleMatch {
	if rs.primary == nil || seed.childBirthYear == 0 || seed.fatherSurname == "" {
		return nil
	}

	var groom, bride *CoupleMatch

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		groom = e.searchMarriageSide(gctx, rs, marriageSide{
			surname:       seed.fatherSurname,
			given:         seed.fatherGiven,
			spouseSurname: seed.motherMaiden,
			spouseGiven:   seed.motherGiven,
			groom:         true,
		}, seed, trace)

		return nil
	})

	if seed.motherMaiden != "" && seed.motherGiven != "" {
		g.Go(func() error {
			bride = e.searchMarriageSide(gctx, rs, marriageSide{
				surname:       seed.motherMaiden,
				given:         seed.motherGiven,
				spouseSurname: seed.fatherSurname,
				spouseGiven:   seed.fatherGiven,
				groom:         false,
			}, seed, trace)

			return nil
		})
	}

	_ = g.Wait()

	best := groom
	if groom == nil || groom.Score < marriageGroomFirmMin {
		if bride != nil && (best == nil || bride.Score > best.Score) {
			best = bride
		}
	}

	if best == nil || best.Score < marriageAcceptMin {
		trace.addf("No marriage accepted for %s x %s before %d",
			seed.fatherSurname, seed.motherMaiden, seed.childBirthYear)

		return nil
	}

	trace.addf("Marriage accepted: %s, %s x %s, %s (%d, score %d)",
		best.GroomSurname, best.GroomForenames, best.BrideSurname, best.BrideForenames,
		best.Entry.Year, best.Score)

	return best
}

// searchMarriageSide queries the index from one party's side and returns the
// best-scoring entry, unfiltered by the acceptance line.
func (e *Engine) searchMarriageSide(ctx context.Context, rs *runState, side marriageSide, seed coupleSeed, trace *searchTrace) *CoupleMatch {
	query := sources.IndexQuery{
		Surname:   side.surname,
		GivenName: side.given,
		YearFrom:  seed.childBirthYear - marriageWindowYears,
		YearTo:    seed.childBirthYear,
		District:  seed.district,
	}

	entries, err := rs.primary.SearchMarriages(ctx, query)
	if err != nil {
		e.logger.Warn("Marriage index search failed",
			slog.String("surname", side.surname),
			slog.String("error", err.Error()))
		trace.addf("Marriage search %s failed: %v", side.surname, err)

		return nil
	}

	trace.source(rs.primary.Name())
	trace.addf("Marriage search (%s side): %s %s %d-%d: %d entries",
		sideLabel(side.groom), side.surname, side.given, query.YearFrom, query.YearTo, len(entries))

	var best *CoupleMatch

	bestScore := -1

	for _, entry := range entries {
		score := scoreMarriageEntry(entry, side, seed)
		if score <= bestScore {
			continue
		}

		bestScore = score
		best = newCoupleMatch(rs.primary.Name(), entry, side, score)
	}

	return best
}

// scoreMarriageEntry weighs one marriage-index entry against the expected
// couple: the indexed surname, the spouse surname, given-name agreement, the
// marriage-to-birth gap and the district.
func scoreMarriageEntry(entry sources.MarriageEntry, side marriageSide, seed coupleSeed) int {
	score := 0

	if side.surname != "" && strings.EqualFold(entry.Surname, side.surname) {
		score += marriageSurnamePoints
	}

	if side.spouseSurname != "" && strings.EqualFold(entry.SpouseSurname, side.spouseSurname) {
		score += marriageSpousePoints
	}

	if side.given != "" && normalize.SimilarGivenNames(entry.Forenames, side.given) {
		score += marriageGivenSimilarPoints
	}

	if entry.Year > 0 {
		switch gap := seed.childBirthYear - entry.Year; {
		case gap >= 0 && gap <= 5:
			score += marriageGap5Points
		case gap > 5 && gap <= 10:
			score += marriageGap10Points
		case gap > 10 && gap <= marriageWindowYears:
			score += marriageGap15Points
		}
	}

	score += districtPoints(entry.District, seed.district,
		marriageDistrictEqualPoints, marriageDistrictSimilarPoints, marriageDistrictSimilarPoints)

	return score
}

// newCoupleMatch orients an entry to groom and bride and builds the marriage
// evidence record. The record supports the parents and location aspects of
// the hypothesis it gets attached to.
func newCoupleMatch(sourceName string, entry sources.MarriageEntry, side marriageSide, score int) *CoupleMatch {
	match := &CoupleMatch{Entry: entry, Score: score}

	if side.groom {
		match.GroomSurname = entry.Surname
		match.GroomForenames = entry.Forenames
		match.BrideSurname = entry.SpouseSurname
		match.BrideForenames = entry.SpouseForenames
	} else {
		match.GroomSurname = entry.SpouseSurname
		match.GroomForenames = entry.SpouseForenames
		match.BrideSurname = entry.Surname
		match.BrideForenames = entry.Forenames
	}

	match.Evidence = EvidenceRecord{
		Kind:        EvidenceMarriage,
		Source:      sourceName,
		Independent: true,
		Year:        entry.Year,
		Quarter:     entry.Quarter,
		District:    entry.District,
		Volume:      entry.Volume,
		Page:        entry.Page,
		Details:     marriageDetails(match),
		Supports:    []Aspect{AspectParents, AspectLocation},
		Weight:      WeightMarriage,
	}

	return match
}

func sideLabel(groom bool) string {
	if groom {
		return "groom"
	}

	return "bride"
}
