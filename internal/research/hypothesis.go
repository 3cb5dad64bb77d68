package research

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/sources"
)

// Hypothesis-building parameters: search window, retry rules and how many
// candidates are persisted for operator review versus carried forward.
const (
	hypothesisWindowYears  = 5
	hypothesisRetryMinHits = 3
	hypothesisMaxVariants  = 2
	hypothesisPersistLimit = 15
	hypothesisCarryLimit   = 5
)

// Birth-candidate point values, one group per scoring dimension.
const (
	birthGivenSimilarPoints = 20
	birthGivenPrefixPoints  = 15

	birthYearExactPoints = 20
	birthYearOff1Points  = 15
	birthYearOff3Points  = 10
	birthYearOff5Points  = 5

	birthDistrictEqualPoints    = 15
	birthDistrictContainsPoints = 10
	birthDistrictSimilarPoints  = 8

	birthMaidenExactPoints     = 30
	birthMaidenSubstringPoints = 15
)

// buildHypotheses runs the birth-index passes for one target slot: a
// district-narrowed search, a broadened retry when the narrow pass is thin,
// and surname-variant passes when nothing matched at all. Deduplicated
// entries are scored against the search input, the strongest are persisted
// as reviewable candidates, and all survivors return ranked best-first.
//
// Returns nil without error when no primary index is available or the input
// has no usable anchor; the caller falls back to tree leads.
func (e *Engine) buildHypotheses(ctx context.Context, rs *runState, ascNumber int, info PersonInfo, trace *searchTrace) ([]*Hypothesis, error) {
	if rs.primary == nil {
		trace.addf("No primary index source available")

		return nil, nil
	}

	if info.Surname == "" || info.BirthYear == 0 {
		trace.addf("Insufficient input for index search: surname=%q year=%d", info.Surname, info.BirthYear)

		return nil, nil
	}

	district := searchDistrict(info.BirthPlace)

	query := sources.IndexQuery{
		Surname:   info.Surname,
		GivenName: info.GivenName,
		YearFrom:  info.BirthYear - hypothesisWindowYears,
		YearTo:    info.BirthYear + hypothesisWindowYears,
		District:  district,
	}

	entries := e.searchBirthPass(ctx, rs, query, trace)

	// A thin narrow pass means the district filter is probably wrong;
	// search again without it.
	if len(entries) < hypothesisRetryMinHits && district != "" {
		broad := query
		broad.District = ""
		entries = append(entries, e.searchBirthPass(ctx, rs, broad, trace)...)
	}

	variant := false

	if len(entries) == 0 {
		entries = e.searchVariantPasses(ctx, rs, query, trace)
		variant = len(entries) > 0
	}

	entries = dedupeBirthEntries(entries)

	hyps := make([]*Hypothesis, 0, len(entries))
	for _, entry := range entries {
		hyps = append(hyps, newHypothesis(rs.primary.Name(), entry, info, district, variant))
	}

	sort.SliceStable(hyps, func(i, j int) bool { return hyps[i].Score > hyps[j].Score })

	if err := e.persistCandidates(ctx, rs, ascNumber, hyps); err != nil {
		return nil, err
	}

	trace.addf("Built %d hypotheses for slot %d", len(hyps), ascNumber)

	return hyps, nil
}

func (e *Engine) searchBirthPass(ctx context.Context, rs *runState, query sources.IndexQuery, trace *searchTrace) []sources.BirthEntry {
	entries, err := rs.primary.SearchBirths(ctx, query)
	if err != nil {
		e.logger.Warn("Birth index search failed",
			slog.String("surname", query.Surname),
			slog.String("error", err.Error()))
		trace.addf("Birth search %s %s failed: %v", query.Surname, query.GivenName, err)

		return nil
	}

	trace.source(rs.primary.Name())
	trace.addf("Birth search: %s %s %d-%d district=%q: %d entries",
		query.Surname, query.GivenName, query.YearFrom, query.YearTo, query.District, len(entries))

	return entries
}

// searchVariantPasses retries the birth search under phonetic surname
// variants, fanned out concurrently. District is dropped: the variant pass
// only runs when everything narrower came back empty.
func (e *Engine) searchVariantPasses(ctx context.Context, rs *runState, query sources.IndexQuery, trace *searchTrace) []sources.BirthEntry {
	variants := normalize.SurnameVariants(query.Surname)
	if len(variants) > hypothesisMaxVariants {
		variants = variants[:hypothesisMaxVariants]
	}

	if len(variants) == 0 {
		return nil
	}

	results := make([][]sources.BirthEntry, len(variants))

	g, gctx := errgroup.WithContext(ctx)

	for i, variant := range variants {
		g.Go(func() error {
			q := query
			q.Surname = variant
			q.District = ""

			found, err := rs.primary.SearchBirths(gctx, q)
			if err != nil {
				return fmt.Errorf("variant %q: %w", variant, err)
			}

			results[i] = found

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Warn("Surname-variant search failed",
			slog.String("surname", query.Surname),
			slog.String("error", err.Error()))
		trace.addf("Variant search failed: %v", err)
	}

	trace.source(rs.primary.Name())

	var entries []sources.BirthEntry

	for i, found := range results {
		trace.addf("Variant search: %s %d-%d: %d entries",
			variants[i], query.YearFrom, query.YearTo, len(found))
		entries = append(entries, found...)
	}

	return entries
}

// dedupeBirthEntries drops repeated registrations. Volume and page identify
// a register row exactly; entries without them fall back to the indexed
// fields.
func dedupeBirthEntries(entries []sources.BirthEntry) []sources.BirthEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]sources.BirthEntry, 0, len(entries))

	for _, entry := range entries {
		var key string

		if entry.Volume != "" && entry.Page != "" {
			key = entry.Volume + "|" + entry.Page
		} else {
			key = fmt.Sprintf("%s|%s|%d|%s|%s",
				strings.ToLower(entry.Surname), strings.ToLower(entry.Forenames),
				entry.Year, entry.Quarter, strings.ToLower(entry.District))
		}

		if seen[key] {
			continue
		}

		seen[key] = true

		out = append(out, entry)
	}

	return out
}

func newHypothesis(sourceName string, entry sources.BirthEntry, info PersonInfo, district string, variant bool) *Hypothesis {
	return &Hypothesis{
		Surname:             entry.Surname,
		Forenames:           entry.Forenames,
		BirthYear:           entry.Year,
		Quarter:             entry.Quarter,
		District:            entry.District,
		Volume:              entry.Volume,
		Page:                entry.Page,
		MotherMaidenSurname: entry.MotherMaidenSurname,
		Score:               scoreBirthEntry(entry, info, district),
		Status:              StatusHypothesis,
		Evidence:            []EvidenceRecord{birthRecord(sourceName, entry, variant)},
	}
}

// scoreBirthEntry weighs one birth-index entry against the search input:
// given-name agreement, year proximity, district agreement and mother-maiden
// agreement.
func scoreBirthEntry(entry sources.BirthEntry, info PersonInfo, district string) int {
	score := 0

	switch {
	case info.GivenName != "" && normalize.SimilarGivenNames(entry.Forenames, info.GivenName):
		score += birthGivenSimilarPoints
	case info.GivenName != "" && normalize.GivenNamePrefixMatch(entry.Forenames, info.GivenName):
		score += birthGivenPrefixPoints
	}

	if entry.Year > 0 && info.BirthYear > 0 {
		switch gap := absInt(entry.Year - info.BirthYear); {
		case gap == 0:
			score += birthYearExactPoints
		case gap == 1:
			score += birthYearOff1Points
		case gap <= 3:
			score += birthYearOff3Points
		case gap <= 5:
			score += birthYearOff5Points
		}
	}

	score += districtPoints(entry.District, district,
		birthDistrictEqualPoints, birthDistrictContainsPoints, birthDistrictSimilarPoints)

	if info.MotherMaidenSurname != "" && entry.MotherMaidenSurname != "" {
		switch {
		case strings.EqualFold(entry.MotherMaidenSurname, info.MotherMaidenSurname):
			score += birthMaidenExactPoints
		case containsFold(entry.MotherMaidenSurname, info.MotherMaidenSurname),
			containsFold(info.MotherMaidenSurname, entry.MotherMaidenSurname):
			score += birthMaidenSubstringPoints
		}
	}

	return score
}

// persistCandidates stores the strongest hypotheses for operator inspection.
// Persistence failures are fatal to the job; losing the audit trail silently
// would defeat its purpose.
func (e *Engine) persistCandidates(ctx context.Context, rs *runState, ascNumber int, hyps []*Hypothesis) error {
	for i, hyp := range hyps {
		if i >= hypothesisPersistLimit {
			break
		}

		candidate := &SearchCandidate{
			JobID:               rs.job.ID,
			AscNumber:           ascNumber,
			Rank:                i + 1,
			Surname:             hyp.Surname,
			Forenames:           hyp.Forenames,
			BirthYear:           hyp.BirthYear,
			Quarter:             hyp.Quarter,
			District:            hyp.District,
			Volume:              hyp.Volume,
			Page:                hyp.Page,
			MotherMaidenSurname: hyp.MotherMaidenSurname,
			Score:               hyp.Score,
		}

		if err := e.repo.AddSearchCandidate(ctx, candidate); err != nil {
			return fmt.Errorf("persist candidate %d for slot %d: %w", i+1, ascNumber, err)
		}
	}

	return nil
}
