package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/rootline-io/rootline/internal/normalize"
	"github.com/rootline-io/rootline/internal/sources"
)

// Anchor enrichment parameters: the tight confirmation window against the
// birth index and the size of the tree-lead lookup.
const (
	anchorBirthWindowYears = 2
	anchorPersonCount      = 5
)

// anchorCouples are the slot pairs whose marriages the couple pass searches,
// ordered subject's parents first. The child anchoring each pair's window is
// the pair's father slot halved.
var anchorCouples = [3][2]int{{2, 3}, {4, 5}, {6, 7}}

// Engine drives the research pipeline for one job at a time: anchor
// enrichment, couple marriages, then breadth-first expansion of the
// ascendancy tree. Engines are cheap; the runner creates one per job.
type Engine struct {
	repo     Repository
	registry *sources.Registry
	logger   *slog.Logger
}

// runState is the in-memory state of one research pass. It is created when
// the pass starts and dropped with it; nothing in it outlives the job.
type runState struct {
	job       *ResearchJob
	rejected  map[string]bool
	processed map[int]bool

	// Sources resolved once per pass. The tree source is wrapped in a
	// per-job cache because the same person recurs across pipeline steps.
	primary sources.Source
	tree    sources.Source
	confirm sources.Source

	current int
	total   int
}

// NewEngine creates a research engine on a repository and source registry.
func NewEngine(repo Repository, registry *sources.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		repo:     repo,
		registry: registry,
		logger:   logger.With(slog.String("component", "research_engine")),
	}
}

// Run executes a full research pass for a job and leaves it in a terminal
// status. Research misses are results, not errors; only persistence faults
// and cancellation surface, and both mark the job failed.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	job, err := e.repo.GetResearchJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if err := e.transition(ctx, jobID, JobRunning, false); err != nil {
		return err
	}

	e.logger.Info("Research started",
		slog.String("job_id", jobID),
		slog.Int("generations", job.Generations))

	return e.finish(ctx, job, e.research(ctx, job))
}

// ReResearch discards the subtree rooted at a slot and runs the pipeline
// again. The current identification's tree person is marked rejected first
// so the re-run cannot simply pick it again. The subject slot is protected.
func (e *Engine) ReResearch(ctx context.Context, jobID string, ascNumber int) error {
	if ascNumber == 1 {
		return ErrSubjectSlotProtected
	}

	if ascNumber < 1 {
		return fmt.Errorf("%w: slot %d", ErrAncestorNotFound, ascNumber)
	}

	job, err := e.repo.GetResearchJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	existing, err := e.repo.GetAncestorByAscNumber(ctx, jobID, ascNumber)
	if err != nil && !errors.Is(err, ErrAncestorNotFound) {
		return fmt.Errorf("load slot %d: %w", ascNumber, err)
	}

	if existing != nil && existing.TreePersonID != "" {
		if err := e.repo.AddRejectedTreeID(ctx, jobID, existing.TreePersonID); err != nil {
			return fmt.Errorf("reject tree person: %w", err)
		}
	}

	deleted, err := e.repo.DeleteDescendantAncestors(ctx, jobID, ascNumber)
	if err != nil {
		return fmt.Errorf("delete subtree at %d: %w", ascNumber, err)
	}

	if err := e.repo.DeleteSearchCandidates(ctx, jobID); err != nil {
		return fmt.Errorf("reset search candidates: %w", err)
	}

	if err := e.transition(ctx, jobID, JobRunning, true); err != nil {
		return err
	}

	e.logger.Info("Re-research started",
		slog.String("job_id", jobID),
		slog.Int("asc_number", ascNumber),
		slog.Int("deleted", len(deleted)))

	return e.finish(ctx, job, e.research(ctx, job))
}

// research runs the pipeline phases in order. Customer anchors are
// re-asserted first, which makes the whole pass idempotent and lets a
// re-research rebuild what subtree deletion removed.
func (e *Engine) research(ctx context.Context, job *ResearchJob) error {
	if err := PrepopulateAnchors(ctx, e.repo, job); err != nil {
		return fmt.Errorf("prepopulate anchors: %w", err)
	}

	rs, err := e.newRunState(ctx, job)
	if err != nil {
		return err
	}

	if err := e.enrichAnchors(ctx, rs); err != nil {
		return err
	}

	if err := e.coupleMarriages(ctx, rs); err != nil {
		return err
	}

	return e.expand(ctx, rs)
}

func (e *Engine) newRunState(ctx context.Context, job *ResearchJob) (*runState, error) {
	rejected, err := e.repo.GetRejectedTreeIDs(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load rejected tree ids: %w", err)
	}

	rs := &runState{
		job:       job,
		rejected:  rejected,
		processed: make(map[int]bool),
		total:     TotalSlots(job.Generations),
	}

	if e.registry == nil {
		return rs, nil
	}

	if src, ok := e.registry.FirstWith(sources.CapabilitySearchPrimary); ok {
		rs.primary = src
	}

	if src, ok := e.registry.FirstWith(sources.CapabilityConfirmation); ok {
		rs.confirm = src
	}

	if src, ok := e.registry.FirstWith(sources.CapabilityPersonSearch, sources.CapabilityTreeTraversal); ok {
		cached, err := sources.NewCachingSource(src, 0)
		if err != nil {
			e.logger.Warn("Tree source cache unavailable", slog.String("error", err.Error()))
			rs.tree = src
		} else {
			rs.tree = cached
		}
	}

	return rs, nil
}

// finish persists the terminal status. Terminal writes run on an
// uncancellable context: a cancelled job still has to record that it failed.
func (e *Engine) finish(ctx context.Context, job *ResearchJob, runErr error) error {
	base := context.WithoutCancel(ctx)

	if runErr != nil {
		message := runErr.Error()
		if errors.Is(runErr, context.Canceled) {
			message = "research cancelled"
		}

		status := JobFailed
		if err := e.repo.UpdateResearchJob(base, job.ID, JobUpdate{
			Status:       &status,
			ErrorMessage: &message,
		}); err != nil {
			e.logger.Error("Failed to mark job failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
		}

		e.logger.Warn("Research finished with error",
			slog.String("job_id", job.ID),
			slog.String("error", runErr.Error()))

		return runErr
	}

	summary, err := e.summarize(base, job.ID)
	if err != nil {
		return e.finish(base, job, err)
	}

	status := JobCompleted
	clear := ""

	if err := e.repo.UpdateResearchJob(base, job.ID, JobUpdate{
		Status:       &status,
		ErrorMessage: &clear,
		Summary:      summary,
	}); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	total := TotalSlots(job.Generations)
	if err := e.repo.UpdateJobProgress(base, job.ID, "Research complete", total, total); err != nil {
		return fmt.Errorf("final progress: %w", err)
	}

	e.logger.Info("Research completed", slog.String("job_id", job.ID))

	return nil
}

// summarize counts the job's ancestors per confidence level.
func (e *Engine) summarize(ctx context.Context, jobID string) (map[ConfidenceLevel]int, error) {
	ancestors, err := e.repo.GetAncestors(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load ancestors for summary: %w", err)
	}

	summary := make(map[ConfidenceLevel]int)
	for _, ancestor := range ancestors {
		summary[ancestor.ConfidenceLevel]++
	}

	return summary, nil
}

func (e *Engine) transition(ctx context.Context, jobID string, to JobStatus, viaReResearch bool) error {
	status := to

	if err := e.repo.UpdateResearchJob(ctx, jobID, JobUpdate{
		Status:        &status,
		ViaReResearch: viaReResearch,
	}); err != nil {
		return fmt.Errorf("transition job to %s: %w", to, err)
	}

	return nil
}

func (e *Engine) progress(ctx context.Context, rs *runState, message string) error {
	if err := e.repo.UpdateJobProgress(ctx, rs.job.ID, message, rs.current, rs.total); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	return nil
}

// enrichAnchors confirms each customer anchor against the birth index and
// attaches a tree lead. The anchor's name and confidence never change; only
// corroborating evidence and correlating data are added.
func (e *Engine) enrichAnchors(ctx context.Context, rs *runState) error {
	for slot := 1; slot <= maxAnchorSlot; slot++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		ancestor, err := e.repo.GetAncestorByAscNumber(ctx, rs.job.ID, slot)
		if errors.Is(err, ErrAncestorNotFound) {
			continue
		}

		if err != nil {
			return fmt.Errorf("load anchor %d: %w", slot, err)
		}

		if ancestor.ConfidenceLevel != LevelCustomerData {
			continue
		}

		rs.processed[slot] = true
		rs.current++

		if err := e.enrichAnchor(ctx, rs, ancestor); err != nil {
			return err
		}

		if err := e.progress(ctx, rs, fmt.Sprintf("Enriched anchor %d: %s", slot, ancestor.Name)); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) enrichAnchor(ctx context.Context, rs *runState, ancestor *Ancestor) error {
	trace := newSearchTrace(ancestor.SearchLog, ancestor.Sources)
	update := AncestorUpdate{}
	evidence := slices.Clone(ancestor.Evidence)

	name := normalize.ParseName(ancestor.Name)
	year, _ := normalize.ParseYear(ancestor.BirthDate)
	district := searchDistrict(ancestor.BirthPlace)

	// Birth confirmation: a single name-similar hit in a tight window is
	// treated as this person's registration. Ambiguity adds nothing.
	if rs.primary != nil && year > 0 && name.Surname != "" && !hasEvidenceKind(evidence, EvidenceBirth) {
		entries, err := rs.primary.SearchBirths(ctx, sources.IndexQuery{
			Surname:   name.Surname,
			GivenName: name.Given,
			YearFrom:  year - anchorBirthWindowYears,
			YearTo:    year + anchorBirthWindowYears,
			District:  district,
		})
		if err != nil {
			e.logger.Warn("Anchor birth check failed",
				slog.Int("asc_number", ancestor.AscNumber),
				slog.String("error", err.Error()))
			trace.addf("Anchor birth check failed: %v", err)
		} else {
			trace.source(rs.primary.Name())
			trace.addf("Anchor birth check: %s %s %d±%d: %d entries",
				name.Surname, name.Given, year, anchorBirthWindowYears, len(entries))

			if len(entries) == 1 && anchorEntryMatches(entries[0], name) {
				evidence = append(evidence, birthRecord(rs.primary.Name(), entries[0], false))

				if maiden := entries[0].MotherMaidenSurname; maiden != "" && ancestor.MotherMaidenSurname == "" {
					update.MotherMaidenSurname = &maiden
				}
			}
		}
	}

	// Tree lead: recorded as correlating data, never as evidence.
	if rs.tree != nil && ancestor.TreePersonID == "" {
		e.attachAnchorLead(ctx, rs, ancestor, name, year, &update, trace)
	}

	update.Evidence = evidence
	update.SearchLog = trace.log()
	update.Sources = trace.sourceNames()

	if err := e.repo.UpdateAncestorByAscNumber(ctx, rs.job.ID, ancestor.AscNumber, update); err != nil {
		return fmt.Errorf("enrich anchor %d: %w", ancestor.AscNumber, err)
	}

	return nil
}

func anchorEntryMatches(entry sources.BirthEntry, name normalize.Name) bool {
	if name.Given == "" {
		return true
	}

	return normalize.SimilarGivenNames(entry.Forenames, name.Given) ||
		normalize.GivenNamePrefixMatch(entry.Forenames, name.Given)
}

func (e *Engine) attachAnchorLead(ctx context.Context, rs *runState, ancestor *Ancestor, name normalize.Name, year int, update *AncestorUpdate, trace *searchTrace) {
	query := sources.PersonQuery{
		GivenName:  name.Given,
		Surname:    name.Surname,
		BirthPlace: normalize.ExtractDistrict(ancestor.BirthPlace),
		Count:      anchorPersonCount,
	}
	if year > 0 {
		query.BirthDate = strconv.Itoa(year)
	}

	// A stated mother narrows the search. In customer-provided names her
	// surname is conventionally the maiden name.
	if mother := normalize.ParseName(ancestor.MotherName); mother.Given != "" {
		query.MotherGivenName = mother.Given
		query.MotherSurname = mother.Surname
	}

	candidates, err := rs.tree.SearchPersons(ctx, query)
	if err != nil {
		e.logger.Warn("Anchor person search failed",
			slog.Int("asc_number", ancestor.AscNumber),
			slog.String("error", err.Error()))
		trace.addf("Anchor person search failed: %v", err)

		return
	}

	trace.source(rs.tree.Name())
	trace.addf("Anchor person search: %s %s: %d candidates", name.Given, name.Surname, len(candidates))

	for i := range candidates {
		candidate := &candidates[i]

		if rs.rejected[candidate.ID] {
			continue
		}

		candidateName := normalize.ParseName(candidate.Name)
		if !normalize.SimilarGivenNames(candidateName.Given, name.Given) ||
			!equalSurname(candidateName.Surname, name.Surname) {
			continue
		}

		update.TreePersonID = &candidate.ID
		trace.addf("Tree lead for anchor: %s (%s)", candidate.Name, candidate.ID)

		if ancestor.FatherName == "" && candidate.FatherName != "" {
			update.FatherName = &candidate.FatherName
		}

		if ancestor.MotherName == "" && candidate.MotherName != "" {
			update.MotherName = &candidate.MotherName
		}

		return
	}
}

func equalSurname(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// coupleMarriages is the couple pass: for each fully-anchored parent pair,
// find their marriage anchored on their child's birth year. The identical
// marriage record lands in both spouses' evidence chains, and the bride's
// maiden surname is recorded on the child as the seed for her side of the
// next generation.
func (e *Engine) coupleMarriages(ctx context.Context, rs *runState) error {
	for _, pair := range anchorCouples {
		if err := ctx.Err(); err != nil {
			return err
		}

		husband, err := e.loadSlot(ctx, rs, pair[0])
		if err != nil {
			return err
		}

		wife, err := e.loadSlot(ctx, rs, pair[1])
		if err != nil {
			return err
		}

		child, err := e.loadSlot(ctx, rs, pair[0]/2)
		if err != nil {
			return err
		}

		if husband == nil || wife == nil || child == nil {
			continue
		}

		// Already married on a previous pass.
		if hasEvidenceKind(husband.Evidence, EvidenceMarriage) || hasEvidenceKind(wife.Evidence, EvidenceMarriage) {
			continue
		}

		childYear, ok := normalize.ParseYear(child.BirthDate)
		if !ok {
			continue
		}

		if err := e.coupleMarriage(ctx, rs, husband, wife, child, childYear); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) coupleMarriage(ctx context.Context, rs *runState, husband, wife, child *Ancestor, childYear int) error {
	husbandName := normalize.ParseName(husband.Name)
	wifeName := normalize.ParseName(wife.Name)

	trace := newSearchTrace(nil, nil)

	seed := coupleSeed{
		fatherSurname:  husbandName.Surname,
		fatherGiven:    husbandName.Given,
		motherMaiden:   wifeName.Surname,
		motherGiven:    wifeName.Given,
		childBirthYear: childYear,
		district:       searchDistrict(child.BirthPlace),
	}

	match := e.findParentCouple(ctx, rs, seed, trace)
	if match == nil {
		if err := e.progress(ctx, rs, fmt.Sprintf("No marriage found for %s and %s", husband.Name, wife.Name)); err != nil {
			return err
		}

		return e.appendTrace(ctx, rs, trace, husband, wife)
	}

	for _, spouse := range []*Ancestor{husband, wife} {
		update := AncestorUpdate{
			Evidence:  append(slices.Clone(spouse.Evidence), match.Evidence),
			SearchLog: append(slices.Clone(spouse.SearchLog), trace.log()...),
			Sources:   mergeNames(spouse.Sources, trace.sourceNames()),
		}

		if err := e.repo.UpdateAncestorByAscNumber(ctx, rs.job.ID, spouse.AscNumber, update); err != nil {
			return fmt.Errorf("attach marriage to slot %d: %w", spouse.AscNumber, err)
		}
	}

	if match.BrideSurname != "" {
		maiden := match.BrideSurname
		if err := e.repo.UpdateAncestorByAscNumber(ctx, rs.job.ID, child.AscNumber, AncestorUpdate{
			MotherMaidenSurname: &maiden,
		}); err != nil {
			return fmt.Errorf("record bride maiden surname on slot %d: %w", child.AscNumber, err)
		}
	}

	return e.progress(ctx, rs, fmt.Sprintf("Found marriage of %s and %s (%d)", husband.Name, wife.Name, match.Entry.Year))
}

// appendTrace lands a shared search trace on several ancestors' logs.
func (e *Engine) appendTrace(ctx context.Context, rs *runState, trace *searchTrace, ancestors ...*Ancestor) error {
	lines := trace.log()
	if len(lines) == 0 {
		return nil
	}

	for _, ancestor := range ancestors {
		update := AncestorUpdate{
			SearchLog: append(slices.Clone(ancestor.SearchLog), lines...),
			Sources:   mergeNames(ancestor.Sources, trace.sourceNames()),
		}

		if err := e.repo.UpdateAncestorByAscNumber(ctx, rs.job.ID, ancestor.AscNumber, update); err != nil {
			return fmt.Errorf("append search log to slot %d: %w", ancestor.AscNumber, err)
		}
	}

	return nil
}

// loadSlot returns the occupant of a slot, or nil when the slot is empty.
func (e *Engine) loadSlot(ctx context.Context, rs *runState, ascNumber int) (*Ancestor, error) {
	ancestor, err := e.repo.GetAncestorByAscNumber(ctx, rs.job.ID, ascNumber)
	if errors.Is(err, ErrAncestorNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("load slot %d: %w", ascNumber, err)
	}

	return ancestor, nil
}
