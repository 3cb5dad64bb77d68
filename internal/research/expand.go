package research

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rootline-io/rootline/internal/normalize"
)

// Expansion parameters. Parent birth years are estimated from the child's
// using registration-era averages; only identifications at or above the
// expansion line research their own parents.
const (
	fatherAgeAtBirth = 28
	motherAgeAtBirth = 25

	expandScoreMin = 50
)

// notFoundSuffix marks the display name of a placeholder row written when a
// slot's research came up empty. Seeds derived from such a row are skipped.
const notFoundSuffix = "(not found)"

// queueItem is one slot awaiting research, carrying the search input
// assembled from its child's finalized state.
type queueItem struct {
	ascNumber int
	info      PersonInfo
}

// expand walks the ascendancy tree breadth-first. The queue starts with the
// parents of every anchored slot; each successful identification enqueues
// its own parents until the generation limit or the evidence runs out.
func (e *Engine) expand(ctx context.Context, rs *runState) error {
	queue, err := e.seedQueue(ctx, rs)
	if err != nil {
		return err
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]

		if rs.processed[item.ascNumber] || GenerationOf(item.ascNumber) > rs.job.Generations {
			continue
		}

		rs.processed[item.ascNumber] = true

		existing, err := e.loadSlot(ctx, rs, item.ascNumber)
		if err != nil {
			return err
		}

		if existing != nil {
			// Occupied slot: anchors and survivors of an earlier pass
			// stay as they are; expansion continues through them.
			more, err := e.expandThrough(ctx, rs, existing)
			if err != nil {
				return err
			}

			queue = append(queue, more...)

			continue
		}

		if reason, skip := skipTarget(item.info); skip {
			e.logger.Debug("Skipping slot",
				slog.String("job_id", rs.job.ID),
				slog.Int("asc_number", item.ascNumber),
				slog.String("reason", reason))

			continue
		}

		rs.current++

		message := fmt.Sprintf("Researching ancestor %d (generation %d): %s",
			item.ascNumber, GenerationOf(item.ascNumber), searchDisplayName(item.info))
		if err := e.progress(ctx, rs, message); err != nil {
			return err
		}

		ancestor, err := e.processTarget(ctx, rs, item)
		if err != nil {
			return err
		}

		more, err := e.expandThrough(ctx, rs, ancestor)
		if err != nil {
			return err
		}

		queue = append(queue, more...)
	}

	return nil
}

// seedQueue enqueues the parents of every anchored slot, so a known
// grandparent is expanded even when the chain between them and the subject
// cannot be researched.
func (e *Engine) seedQueue(ctx context.Context, rs *runState) ([]queueItem, error) {
	var queue []queueItem

	for slot := 1; slot <= maxAnchorSlot; slot++ {
		row, err := e.loadSlot(ctx, rs, slot)
		if err != nil {
			return nil, err
		}

		if row == nil {
			continue
		}

		items, err := e.expandThrough(ctx, rs, row)
		if err != nil {
			return nil, err
		}

		queue = append(queue, items...)
	}

	return queue, nil
}

// expandThrough returns the parent seeds of an occupied slot. Customer
// anchors always expand; researched slots only above the expansion line.
func (e *Engine) expandThrough(ctx context.Context, rs *runState, ancestor *Ancestor) ([]queueItem, error) {
	if GenerationOf(FatherSlot(ancestor.AscNumber)) > rs.job.Generations {
		return nil, nil
	}

	if ancestor.ConfidenceLevel != LevelCustomerData && ancestor.ConfidenceScore < expandScoreMin {
		return nil, nil
	}

	return e.parentSeeds(ctx, rs, ancestor)
}

// parentSeeds assembles the search inputs for a child's father and mother.
// The father inherits the child's surname; the mother's surname is the
// recorded maiden surname, falling back to the surname of any tree-lead
// mother name. Birth years are estimates, places carry over.
func (e *Engine) parentSeeds(ctx context.Context, rs *runState, child *Ancestor) ([]queueItem, error) {
	childYear, _ := normalize.ParseYear(child.BirthDate)

	surname := normalize.ParseName(child.Name).Surname

	// A mother's birth surname may be recorded on her child's row when a
	// couple marriage corrected a married display name.
	if child.AscNumber > 1 && child.AscNumber%2 == 1 {
		grandchild, err := e.loadSlot(ctx, rs, child.AscNumber/2)
		if err != nil {
			return nil, err
		}

		if grandchild != nil && grandchild.MotherMaidenSurname != "" {
			surname = grandchild.MotherMaidenSurname
		}
	}

	father := PersonInfo{
		GivenName:     normalize.ParseName(child.FatherName).Given,
		Surname:       surname,
		BirthPlace:    child.BirthPlace,
		FatherSurname: surname,
	}

	motherSurname := child.MotherMaidenSurname
	if motherSurname == "" {
		motherSurname = normalize.ParseName(child.MotherName).Surname
	}

	mother := PersonInfo{
		GivenName:     normalize.ParseName(child.MotherName).Given,
		Surname:       motherSurname,
		BirthPlace:    child.BirthPlace,
		FatherSurname: motherSurname,
	}

	if childYear > 0 {
		father.BirthYear = childYear - fatherAgeAtBirth
		mother.BirthYear = childYear - motherAgeAtBirth
	}

	return []queueItem{
		{ascNumber: FatherSlot(child.AscNumber), info: father},
		{ascNumber: MotherSlot(child.AscNumber), info: mother},
	}, nil
}

func skipTarget(info PersonInfo) (string, bool) {
	if strings.TrimSpace(info.GivenName) == "" && strings.TrimSpace(info.Surname) == "" {
		return "blank name", true
	}

	if strings.Contains(info.GivenName, notFoundSuffix) || strings.Contains(info.Surname, notFoundSuffix) {
		return "descends from a not-found placeholder", true
	}

	return "", false
}

func searchDisplayName(info PersonInfo) string {
	name := normalize.FormatName(info.GivenName, info.Surname)
	if name == "" {
		return "name unknown"
	}

	return name
}

// processTarget runs the five-step pipeline for one empty slot and persists
// the outcome: hypotheses from the birth index, household resolution,
// the parent couple, cross-check, reinforcement, then scoring.
func (e *Engine) processTarget(ctx context.Context, rs *runState, item queueItem) (*Ancestor, error) {
	trace := newSearchTrace(nil, nil)

	hyps, err := e.buildHypotheses(ctx, rs, item.ascNumber, item.info, trace)
	if err != nil {
		return nil, err
	}

	if len(hyps) > hypothesisCarryLimit {
		hyps = hyps[:hypothesisCarryLimit]
	}

	for _, hyp := range hyps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.resolveHousehold(ctx, rs, hyp, item.info, trace)
	}

	best := pickBest(hyps)
	if best == nil {
		return e.finalizeFallback(ctx, rs, item, trace)
	}

	// Without a tree source the top index hit carries the slot alone.
	if best.Status == StatusHypothesis {
		best.Status = StatusPrimary
	}

	// A person-search summary may omit parent links the tree itself records.
	if rs.tree != nil && best.TreePersonID != "" && (best.TreeFatherName == "" || best.TreeMotherName == "") {
		e.backfillTreeParents(ctx, rs, best, trace)
	}

	seed := coupleSeed{
		fatherSurname:  best.Surname,
		fatherGiven:    normalize.ParseName(best.TreeFatherName).Given,
		motherMaiden:   best.MotherMaidenSurname,
		motherGiven:    normalize.ParseName(best.TreeMotherName).Given,
		childBirthYear: best.BirthYear,
		district:       best.District,
	}
	if seed.motherMaiden == "" {
		seed.motherMaiden = normalize.ParseName(best.TreeMotherName).Surname
	}

	match := e.findParentCouple(ctx, rs, seed, trace)

	// The verdict uses the maiden surname as the birth index recorded it;
	// backfilling from the marriage first would make the check circular.
	verdict := crossCheck(best, match)
	if verdict.Attempted {
		trace.addf("Cross-check score %d (verified=%t)", verdict.Score, verdict.Verified)
	}

	if match != nil {
		best.Evidence = append(best.Evidence, match.Evidence)

		if best.MotherMaidenSurname == "" {
			best.MotherMaidenSurname = match.BrideSurname
		}
	}

	e.reinforce(ctx, rs, best, trace)

	score := ScoreEvidence(best.Evidence, verdict)
	row := e.ancestorRow(rs, item, best, score, verdict, trace)

	stored, err := e.repo.AddAncestor(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("store ancestor %d: %w", item.ascNumber, err)
	}

	e.logger.Info("Ancestor researched",
		slog.String("job_id", rs.job.ID),
		slog.Int("asc_number", item.ascNumber),
		slog.String("name", stored.Name),
		slog.Int("score", score),
		slog.String("level", string(stored.ConfidenceLevel)))

	return stored, nil
}

// pickBest selects the hypothesis to finalize: the strongest status first,
// then the higher combined score. Discarded hypotheses never win.
func pickBest(hyps []*Hypothesis) *Hypothesis {
	var best *Hypothesis

	for _, hyp := range hyps {
		if hyp.Status == StatusDiscarded {
			continue
		}

		if best == nil || statusRank(hyp.Status) > statusRank(best.Status) ||
			(statusRank(hyp.Status) == statusRank(best.Status) && hyp.Score > best.Score) {
			best = hyp
		}
	}

	return best
}

func statusRank(status HypothesisStatus) int {
	switch status {
	case StatusPrimary:
		return 3
	case StatusAlternate:
		return 2
	case StatusHypothesis:
		return 1
	default:
		return 0
	}
}

// finalizeFallback handles a slot with no surviving hypothesis: a tree lead
// when one is acceptable, otherwise a not-found placeholder.
func (e *Engine) finalizeFallback(ctx context.Context, rs *runState, item queueItem, trace *searchTrace) (*Ancestor, error) {
	hyp := e.treeLeadFallback(ctx, rs, item.info, trace)
	if hyp == nil {
		return e.storeNotFound(ctx, rs, item, trace)
	}

	score := treeLeadConfidence(hyp.Score)
	row := e.ancestorRow(rs, item, hyp, score, CrossCheckVerdict{}, trace)

	stored, err := e.repo.AddAncestor(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("store tree lead %d: %w", item.ascNumber, err)
	}

	e.logger.Info("Ancestor flagged from tree lead",
		slog.String("job_id", rs.job.ID),
		slog.Int("asc_number", item.ascNumber),
		slog.String("name", stored.Name),
		slog.Int("score", score))

	return stored, nil
}

func (e *Engine) storeNotFound(ctx context.Context, rs *runState, item queueItem, trace *searchTrace) (*Ancestor, error) {
	trace.addf("No identification possible; recording placeholder")

	name := searchDisplayName(item.info)
	if name == "name unknown" {
		name = "Unknown"
	}

	row := &Ancestor{
		JobID:           rs.job.ID,
		AscNumber:       item.ascNumber,
		Generation:      GenerationOf(item.ascNumber),
		Gender:          GenderFor(item.ascNumber),
		Name:            name + " " + notFoundSuffix,
		ConfidenceLevel: LevelNotFound,
		ConfidenceScore: 0,
		SearchLog:       trace.log(),
		Sources:         trace.sourceNames(),
	}

	stored, err := e.repo.AddAncestor(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("store placeholder %d: %w", item.ascNumber, err)
	}

	e.logger.Info("Ancestor not found",
		slog.String("job_id", rs.job.ID),
		slog.Int("asc_number", item.ascNumber))

	return stored, nil
}

// ancestorRow converts a finalized hypothesis into the persistent row for a
// slot. Researched dates are stored year-only so downstream seeding can
// always parse them; richer context lives in the evidence details.
func (e *Engine) ancestorRow(rs *runState, item queueItem, hyp *Hypothesis, score int, verdict CrossCheckVerdict, trace *searchTrace) *Ancestor {
	birthDate := ""
	if hyp.BirthYear > 0 {
		birthDate = strconv.Itoa(hyp.BirthYear)
	}

	birthPlace := hyp.District
	if hyp.TreeBirthPlace != "" {
		birthPlace = hyp.TreeBirthPlace
	}

	return &Ancestor{
		JobID:               rs.job.ID,
		AscNumber:           item.ascNumber,
		Generation:          GenerationOf(item.ascNumber),
		Gender:              GenderFor(item.ascNumber),
		Name:                normalize.FormatName(hyp.Forenames, hyp.Surname),
		BirthDate:           birthDate,
		BirthPlace:          birthPlace,
		DeathDate:           hyp.TreeDeathDate,
		ConfidenceLevel:     LevelForScore(score),
		ConfidenceScore:     score,
		Evidence:            hyp.Evidence,
		SearchLog:           trace.log(),
		Sources:             trace.sourceNames(),
		VerificationNotes:   verificationNote(hyp, verdict),
		TreePersonID:        hyp.TreePersonID,
		FatherName:          hyp.TreeFatherName,
		MotherName:          hyp.TreeMotherName,
		MotherMaidenSurname: hyp.MotherMaidenSurname,
	}
}

func verificationNote(hyp *Hypothesis, verdict CrossCheckVerdict) string {
	stats := summarizeChain(hyp.Evidence)

	note := fmt.Sprintf("%d evidence records, total weight %d", len(hyp.Evidence), stats.weight)

	if hyp.TreePersonID != "" {
		note += "; tree person " + hyp.TreePersonID
	}

	switch {
	case verdict.Attempted && verdict.Verified:
		note += fmt.Sprintf("; cross-check verified (score %d)", verdict.Score)
	case verdict.Attempted:
		note += fmt.Sprintf("; cross-check failed (score %d), confidence capped", verdict.Score)
	default:
		note += "; no parent marriage found to cross-check"
	}

	return note
}
