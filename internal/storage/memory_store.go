package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rootline-io/rootline/internal/research"
)

// Compile-time check that the in-memory store satisfies the engine's
// persistence contract.
var _ research.Repository = (*MemoryStore)(nil)

type (
	// MemoryStore is a thread-safe in-memory research.Repository. It backs
	// local development without PostgreSQL and the engine tests; it applies
	// the same lifecycle and customer-data rules as ResearchStore.
	MemoryStore struct {
		mutex sync.RWMutex

		jobs map[string]*research.ResearchJob

		// ancestors is keyed jobID then ascendancy number; ancestorsByID
		// indexes the same rows by row id.
		ancestors     map[string]map[int]*research.Ancestor
		ancestorsByID map[string]*research.Ancestor

		candidates map[candidateKey]*research.SearchCandidate

		// rejected holds externally-rejected tree person ids per job.
		rejected map[string]map[string]bool

		settings map[string]string
	}

	// candidateKey identifies one persisted search candidate.
	candidateKey struct {
		jobID     string
		ascNumber int
		rank      int
	}
)

// NewMemoryStore creates an empty in-memory research repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:          make(map[string]*research.ResearchJob),
		ancestors:     make(map[string]map[int]*research.Ancestor),
		ancestorsByID: make(map[string]*research.Ancestor),
		candidates:    make(map[candidateKey]*research.SearchCandidate),
		rejected:      make(map[string]map[string]bool),
		settings:      make(map[string]string),
	}
}

// HealthCheck reports the store as always healthy.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// CreateResearchJob validates and stores a new job in pending state.
func (s *MemoryStore) CreateResearchJob(
	_ context.Context,
	req research.JobRequest,
) (*research.ResearchJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return nil, research.ErrDuplicateJob
	}

	now := time.Now().UTC()
	job := &research.ResearchJob{
		ID:          jobID,
		Subject:     req.Subject,
		Generations: req.Generations,
		Status:      research.JobPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.jobs[jobID] = job

	return copyJob(job), nil
}

// GetResearchJob retrieves a job by id.
func (s *MemoryStore) GetResearchJob(_ context.Context, jobID string) (*research.ResearchJob, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, research.ErrJobNotFound
	}

	return copyJob(job), nil
}

// ListResearchJobs returns all jobs, newest first.
func (s *MemoryStore) ListResearchJobs(_ context.Context) ([]*research.ResearchJob, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	jobs := make([]*research.ResearchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, copyJob(job))
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs, nil
}

// UpdateResearchJob applies a partial update to a job, validating any status
// change against the job lifecycle.
func (s *MemoryStore) UpdateResearchJob(_ context.Context, jobID string, update research.JobUpdate) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return research.ErrJobNotFound
	}

	if update.Status != nil {
		if err := research.ValidateJobTransition(job.Status, *update.Status, update.ViaReResearch); err != nil {
			return err
		}

		job.Status = *update.Status
	}

	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}

	if update.Summary != nil {
		job.Summary = copySummary(update.Summary)
	}

	job.UpdatedAt = time.Now().UTC()

	return nil
}

// UpdateJobProgress records the per-slot progress of a running job.
func (s *MemoryStore) UpdateJobProgress(_ context.Context, jobID, message string, current, total int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return research.ErrJobNotFound
	}

	job.ProgressMessage = message
	job.ProgressCurrent = current
	job.ProgressTotal = total
	job.UpdatedAt = time.Now().UTC()

	return nil
}

// AddAncestor upserts an ancestor keyed on (job id, ascendancy number). An
// existing customer-data occupant is never replaced by engine output.
func (s *MemoryStore) AddAncestor(_ context.Context, ancestor *research.Ancestor) (*research.Ancestor, error) {
	if ancestor == nil {
		return nil, fmt.Errorf("%w: ancestor cannot be nil", ErrResearchStoreFailed)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	slots, exists := s.ancestors[ancestor.JobID]
	if !exists {
		slots = make(map[int]*research.Ancestor)
		s.ancestors[ancestor.JobID] = slots
	}

	stored := *copyAncestor(ancestor)
	now := time.Now().UTC()

	if existing, occupied := slots[ancestor.AscNumber]; occupied {
		if existing.ConfidenceLevel == research.LevelCustomerData &&
			stored.ConfidenceLevel != research.LevelCustomerData {
			return nil, research.ErrCustomerDataProtected
		}

		// The slot keeps its original row id and creation time.
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}

		stored.CreatedAt = now
	}

	stored.UpdatedAt = now

	slots[stored.AscNumber] = &stored
	s.ancestorsByID[stored.ID] = &stored

	return copyAncestor(&stored), nil
}

// GetAncestorByAscNumber retrieves the occupant of one slot.
func (s *MemoryStore) GetAncestorByAscNumber(
	_ context.Context,
	jobID string,
	ascNumber int,
) (*research.Ancestor, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ancestor, exists := s.ancestors[jobID][ascNumber]
	if !exists {
		return nil, research.ErrAncestorNotFound
	}

	return copyAncestor(ancestor), nil
}

// GetAncestorByID retrieves an ancestor by its row id.
func (s *MemoryStore) GetAncestorByID(_ context.Context, id string) (*research.Ancestor, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ancestor, exists := s.ancestorsByID[id]
	if !exists {
		return nil, research.ErrAncestorNotFound
	}

	return copyAncestor(ancestor), nil
}

// GetAncestors returns all ancestors of a job ordered by ascendancy number.
func (s *MemoryStore) GetAncestors(_ context.Context, jobID string) ([]*research.Ancestor, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	slots := s.ancestors[jobID]

	ancestors := make([]*research.Ancestor, 0, len(slots))
	for _, ancestor := range slots {
		ancestors = append(ancestors, copyAncestor(ancestor))
	}

	sort.Slice(ancestors, func(i, j int) bool {
		return ancestors[i].AscNumber < ancestors[j].AscNumber
	})

	return ancestors, nil
}

// UpdateAncestorByAscNumber applies a partial update to one slot. On a
// customer-data occupant only enrichment fields may change.
func (s *MemoryStore) UpdateAncestorByAscNumber(
	_ context.Context,
	jobID string,
	ascNumber int,
	update research.AncestorUpdate,
) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ancestor, exists := s.ancestors[jobID][ascNumber]
	if !exists {
		return research.ErrAncestorNotFound
	}

	if ancestor.ConfidenceLevel == research.LevelCustomerData {
		if update.Name != nil || update.ConfidenceLevel != nil || update.ConfidenceScore != nil {
			return research.ErrCustomerDataProtected
		}
	}

	applyAncestorUpdate(ancestor, update)
	ancestor.UpdatedAt = time.Now().UTC()

	return nil
}

// DeleteDescendantAncestors removes the subtree rooted at ascNumber,
// including the root slot itself, and returns the deleted row ids.
func (s *MemoryStore) DeleteDescendantAncestors(
	_ context.Context,
	jobID string,
	ascNumber int,
) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	deleted := []string{}

	for slot, ancestor := range s.ancestors[jobID] {
		if research.InSubtree(slot, ascNumber) {
			deleted = append(deleted, ancestor.ID)
			delete(s.ancestorsByID, ancestor.ID)
			delete(s.ancestors[jobID], slot)
		}
	}

	sort.Strings(deleted)

	return deleted, nil
}

// AddSearchCandidate persists one birth-index candidate, replacing any
// previous candidate at the same (job, slot, rank).
func (s *MemoryStore) AddSearchCandidate(_ context.Context, candidate *research.SearchCandidate) error {
	if candidate == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := *candidate
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	key := candidateKey{jobID: stored.JobID, ascNumber: stored.AscNumber, rank: stored.Rank}
	s.candidates[key] = &stored

	return nil
}

// GetSearchCandidates returns the persisted candidates for one slot ordered
// by rank.
func (s *MemoryStore) GetSearchCandidates(
	_ context.Context,
	jobID string,
	ascNumber int,
) ([]*research.SearchCandidate, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	candidates := []*research.SearchCandidate{}

	for key, candidate := range s.candidates {
		if key.jobID == jobID && key.ascNumber == ascNumber {
			candidateCopy := *candidate
			candidates = append(candidates, &candidateCopy)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Rank < candidates[j].Rank
	})

	return candidates, nil
}

// DeleteSearchCandidates removes all persisted candidates for a job.
func (s *MemoryStore) DeleteSearchCandidates(_ context.Context, jobID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key := range s.candidates {
		if key.jobID == jobID {
			delete(s.candidates, key)
		}
	}

	return nil
}

// GetRejectedTreeIDs returns the set of externally-rejected tree person ids
// for a job.
func (s *MemoryStore) GetRejectedTreeIDs(_ context.Context, jobID string) (map[string]bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rejected := make(map[string]bool, len(s.rejected[jobID]))
	for id := range s.rejected[jobID] {
		rejected[id] = true
	}

	return rejected, nil
}

// AddRejectedTreeID records a tree person id the next run of a job must not
// attach again.
func (s *MemoryStore) AddRejectedTreeID(_ context.Context, jobID, treePersonID string) error {
	if treePersonID == "" {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.rejected[jobID] == nil {
		s.rejected[jobID] = make(map[string]bool)
	}

	s.rejected[jobID][treePersonID] = true

	return nil
}

// GetSetting returns the value for a settings key.
func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, exists := s.settings[key]
	if !exists {
		return "", research.ErrSettingNotFound
	}

	return value, nil
}

// SetSetting stores or replaces a settings value.
func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.settings[key] = value

	return nil
}

// applyAncestorUpdate copies the non-nil fields of a partial update onto a
// stored ancestor. Evidence, SearchLog and Sources replace the stored
// values when non-nil.
func applyAncestorUpdate(ancestor *research.Ancestor, update research.AncestorUpdate) {
	if update.Name != nil {
		ancestor.Name = *update.Name
	}

	if update.BirthDate != nil {
		ancestor.BirthDate = *update.BirthDate
	}

	if update.BirthPlace != nil {
		ancestor.BirthPlace = *update.BirthPlace
	}

	if update.DeathDate != nil {
		ancestor.DeathDate = *update.DeathDate
	}

	if update.DeathPlace != nil {
		ancestor.DeathPlace = *update.DeathPlace
	}

	if update.ConfidenceLevel != nil {
		ancestor.ConfidenceLevel = *update.ConfidenceLevel
	}

	if update.ConfidenceScore != nil {
		ancestor.ConfidenceScore = *update.ConfidenceScore
	}

	if update.Evidence != nil {
		ancestor.Evidence = append([]research.EvidenceRecord(nil), update.Evidence...)
	}

	if update.SearchLog != nil {
		ancestor.SearchLog = append([]string(nil), update.SearchLog...)
	}

	if update.Sources != nil {
		ancestor.Sources = append([]string(nil), update.Sources...)
	}

	if update.VerificationNotes != nil {
		ancestor.VerificationNotes = *update.VerificationNotes
	}

	if update.TreePersonID != nil {
		ancestor.TreePersonID = *update.TreePersonID
	}

	if update.FatherName != nil {
		ancestor.FatherName = *update.FatherName
	}

	if update.MotherName != nil {
		ancestor.MotherName = *update.MotherName
	}

	if update.MotherMaidenSurname != nil {
		ancestor.MotherMaidenSurname = *update.MotherMaidenSurname
	}
}

// copyJob returns a deep copy of a job so callers cannot mutate stored
// state.
func copyJob(job *research.ResearchJob) *research.ResearchJob {
	jobCopy := *job
	jobCopy.Summary = copySummary(job.Summary)

	return &jobCopy
}

// copySummary returns a copy of a confidence-level summary map.
func copySummary(summary map[research.ConfidenceLevel]int) map[research.ConfidenceLevel]int {
	if summary == nil {
		return nil
	}

	summaryCopy := make(map[research.ConfidenceLevel]int, len(summary))
	for level, count := range summary {
		summaryCopy[level] = count
	}

	return summaryCopy
}

// copyAncestor returns a deep copy of an ancestor including its chains.
func copyAncestor(ancestor *research.Ancestor) *research.Ancestor {
	ancestorCopy := *ancestor

	if ancestor.Evidence != nil {
		ancestorCopy.Evidence = append([]research.EvidenceRecord(nil), ancestor.Evidence...)
	}

	if ancestor.SearchLog != nil {
		ancestorCopy.SearchLog = append([]string(nil), ancestor.SearchLog...)
	}

	if ancestor.Sources != nil {
		ancestorCopy.Sources = append([]string(nil), ancestor.Sources...)
	}

	return &ancestorCopy
}
