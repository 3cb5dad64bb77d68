package research

import (
	"context"
	"errors"
)

var (
	// ErrJobNotFound is returned when no research job exists for an id.
	ErrJobNotFound = errors.New("research job not found")

	// ErrAncestorNotFound is returned when no ancestor occupies the
	// requested slot.
	ErrAncestorNotFound = errors.New("ancestor not found")

	// ErrCustomerDataProtected is returned when a write would replace a
	// customer-data ancestor with engine output.
	ErrCustomerDataProtected = errors.New("customer data ancestor cannot be overwritten")

	// ErrDuplicateJob is returned when a job id already exists.
	ErrDuplicateJob = errors.New("research job already exists")

	// ErrSettingNotFound is returned when a settings key has no value.
	ErrSettingNotFound = errors.New("setting not found")
)

type (
	// JobUpdate is a partial update to a research job. Nil fields are
	// left untouched. ViaReResearch marks the one legal terminal-to-running
	// transition; see ValidateJobTransition.
	JobUpdate struct {
		Status        *JobStatus
		ErrorMessage  *string
		Summary       map[ConfidenceLevel]int
		ViaReResearch bool
	}

	// AncestorUpdate is a partial update to an ancestor row. Nil fields
	// are left untouched; Evidence, SearchLog and Sources replace the
	// stored values when non-nil.
	AncestorUpdate struct {
		Name                *string
		BirthDate           *string
		BirthPlace          *string
		DeathDate           *string
		DeathPlace          *string
		ConfidenceLevel     *ConfidenceLevel
		ConfidenceScore     *int
		Evidence            []EvidenceRecord
		SearchLog           []string
		Sources             []string
		VerificationNotes   *string
		TreePersonID        *string
		FatherName          *string
		MotherName          *string
		MotherMaidenSurname *string
	}

	// Repository is the persistence contract the engine writes through.
	// Implementations must make every operation atomic per row; the
	// engine serializes writes per slot but jobs run concurrently.
	Repository interface {
		CreateResearchJob(ctx context.Context, req JobRequest) (*ResearchJob, error)
		GetResearchJob(ctx context.Context, jobID string) (*ResearchJob, error)
		ListResearchJobs(ctx context.Context) ([]*ResearchJob, error)
		UpdateResearchJob(ctx context.Context, jobID string, update JobUpdate) error
		UpdateJobProgress(ctx context.Context, jobID, message string, current, total int) error

		AddAncestor(ctx context.Context, ancestor *Ancestor) (*Ancestor, error)
		GetAncestorByAscNumber(ctx context.Context, jobID string, ascNumber int) (*Ancestor, error)
		GetAncestorByID(ctx context.Context, id string) (*Ancestor, error)
		GetAncestors(ctx context.Context, jobID string) ([]*Ancestor, error)
		UpdateAncestorByAscNumber(ctx context.Context, jobID string, ascNumber int, update AncestorUpdate) error
		DeleteDescendantAncestors(ctx context.Context, jobID string, ascNumber int) ([]string, error)

		AddSearchCandidate(ctx context.Context, candidate *SearchCandidate) error
		GetSearchCandidates(ctx context.Context, jobID string, ascNumber int) ([]*SearchCandidate, error)
		DeleteSearchCandidates(ctx context.Context, jobID string) error

		GetRejectedTreeIDs(ctx context.Context, jobID string) (map[string]bool, error)
		AddRejectedTreeID(ctx context.Context, jobID, treePersonID string) error

		GetSetting(ctx context.Context, key string) (string, error)
		SetSetting(ctx context.Context, key, value string) error
	}
)
