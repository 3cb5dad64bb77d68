// Package research implements the evidence-based ancestry research engine:
// hypothesis building, household resolution, parent-couple finding,
// cross-checking, confidence scoring and the breadth-first traversal of the
// binary ascendancy tree.
//
// Ancestors are addressed by ascendancy number: the subject is 1, the father
// of slot A is 2A and the mother is 2A+1, so generation = floor(log2 A). The
// engine walks this tree one target at a time, correlating civil-index and
// tree-source evidence into a calibrated confidence score per slot.
package research

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

// Generation bounds for a research job. Seven generations is 254 ancestor
// slots beyond the subject; civil indices thin out fast beyond that.
const (
	MinGenerations = 1
	MaxGenerations = 7
)

// Evidence weights, fixed per record kind. Independence and weight are
// intrinsic to the kind of record, never to how the search went.
const (
	WeightBirth           = 25
	WeightBirthVariant    = 20
	WeightMarriage        = 30
	WeightDeath           = 10
	WeightCensusChild     = 15
	WeightCensusReinforce = 10
	WeightSiblingBirth    = 15
	WeightTreeLead        = 10
)

// Confidence score thresholds for the categorical levels.
const (
	scoreVerifiedMin = 90
	scoreProbableMin = 75
	scorePossibleMin = 50
	scoreFlaggedMin  = 25
)

var (
	// ErrInvalidGenerations is returned when a job requests a generation
	// count outside [MinGenerations, MaxGenerations].
	ErrInvalidGenerations = errors.New("generations out of range")

	// ErrMissingSubjectName is returned when a job request carries no
	// subject surname.
	ErrMissingSubjectName = errors.New("subject surname is required")

	// ErrInvalidJobTransition is returned for a job status change the
	// lifecycle does not allow.
	ErrInvalidJobTransition = errors.New("invalid job status transition")

	// ErrSubjectSlotProtected is returned when a re-research targets the
	// subject slot (ascendancy number 1).
	ErrSubjectSlotProtected = errors.New("subject slot cannot be re-researched")
)

type (
	// Gender of an ancestor slot. For every slot above the subject the
	// tree position fixes it: even slots are fathers, odd slots mothers.
	Gender string

	// ConfidenceLevel is the categorical outcome of researching one slot.
	ConfidenceLevel string

	// JobStatus is the lifecycle state of a research job.
	JobStatus string

	// EvidenceKind classifies one record in an evidence chain.
	EvidenceKind string

	// Aspect names what a piece of evidence supports about a person.
	Aspect string

	// HypothesisStatus tracks a candidate identification through the
	// pipeline steps.
	HypothesisStatus string
)

// Gender values.
const (
	GenderMale    Gender = "Male"
	GenderFemale  Gender = "Female"
	GenderUnknown Gender = "Unknown"
)

// Confidence levels, strongest first. CustomerData marks operator-provided
// ground truth and is never downgraded by the engine.
const (
	LevelCustomerData ConfidenceLevel = "Customer Data"
	LevelVerified     ConfidenceLevel = "Verified"
	LevelProbable     ConfidenceLevel = "Probable"
	LevelPossible     ConfidenceLevel = "Possible"
	LevelFlagged      ConfidenceLevel = "Flagged"
	LevelNotFound     ConfidenceLevel = "Not Found"
)

// Job lifecycle states.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Evidence record kinds. Birth, marriage, death and sibling-birth records
// come from primary indices and count as independent; census placements and
// tree leads are derived.
const (
	EvidenceBirth        EvidenceKind = "birth"
	EvidenceMarriage     EvidenceKind = "marriage"
	EvidenceDeath        EvidenceKind = "death"
	EvidenceCensus       EvidenceKind = "census"
	EvidenceSiblingBirth EvidenceKind = "sibling_birth"
	EvidenceTreeLead     EvidenceKind = "tree_lead"
)

// Aspects of a person a record can support.
const (
	AspectIdentity Aspect = "identity"
	AspectParents  Aspect = "parents"
	AspectLocation Aspect = "location"
	AspectCouple   Aspect = "couple"
)

// Hypothesis statuses assigned during household resolution.
const (
	StatusHypothesis HypothesisStatus = "hypothesis"
	StatusPrimary    HypothesisStatus = "primary"
	StatusAlternate  HypothesisStatus = "alternate"
	StatusDiscarded  HypothesisStatus = "discarded"
)

type (
	// SubjectInput is the customer-provided description of the subject.
	// All fields are raw strings in customer spelling; dates and places go
	// through the normalize package before any comparison.
	SubjectInput struct {
		GivenName  string
		Surname    string
		BirthDate  string
		BirthPlace string
		DeathDate  string
		DeathPlace string
		FatherName string
		MotherName string
		Notes      string
	}

	// JobRequest asks the engine to research one subject's ascendancy
	// tree to a requested depth.
	JobRequest struct {
		JobID       string
		Generations int
		Subject     SubjectInput
	}

	// ResearchJob is the persistent state of one request.
	ResearchJob struct {
		ID              string
		Subject         SubjectInput
		Generations     int
		Status          JobStatus
		ProgressMessage string
		ProgressCurrent int
		ProgressTotal   int
		ErrorMessage    string

		// Summary counts ancestors per confidence level once the job
		// reaches a terminal status.
		Summary map[ConfidenceLevel]int

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// EvidenceRecord is one item in an ancestor's evidence chain.
	EvidenceRecord struct {
		Kind        EvidenceKind
		Source      string
		Independent bool
		Year        int
		Quarter     string
		District    string
		Volume      string
		Page        string
		Place       string
		Details     string
		Supports    []Aspect
		Weight      int
	}

	// Ancestor is the occupant of one slot in the ascendancy tree.
	Ancestor struct {
		ID         string
		JobID      string
		AscNumber  int
		Generation int
		Name       string
		Gender     Gender
		BirthDate  string
		BirthPlace string
		DeathDate  string
		DeathPlace string

		ConfidenceLevel ConfidenceLevel
		ConfidenceScore int

		// Evidence is the ordered chain of records supporting the
		// identification. SearchLog is the append-only diagnostic trace
		// of every search performed for this slot.
		Evidence  []EvidenceRecord
		SearchLog []string
		Sources   []string

		VerificationNotes string

		// TreePersonID links the slot to an external tree person when
		// one was matched or attached as a lead.
		TreePersonID string

		// Raw correlating data carried for the next generation.
		FatherName          string
		MotherName          string
		MotherMaidenSurname string

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// PersonInfo is the search input for one target slot, assembled from
	// the child's finalized state and customer anchors.
	PersonInfo struct {
		GivenName           string
		Surname             string
		BirthYear           int
		BirthPlace          string
		MotherMaidenSurname string
		FatherSurname       string
	}

	// Hypothesis is an in-memory candidate identification for one target,
	// created from a birth-index entry and enriched step by step.
	Hypothesis struct {
		Surname             string
		Forenames           string
		BirthYear           int
		Quarter             string
		District            string
		Volume              string
		Page                string
		MotherMaidenSurname string

		Score  int
		Status HypothesisStatus

		// Tree attachment from household resolution.
		TreePersonID   string
		TreeName       string
		TreeBirthDate  string
		TreeBirthPlace string
		TreeDeathDate  string
		TreeFatherName string
		TreeMotherName string

		// CensusYears are census placements extracted from tree facts,
		// kept for the second-census reinforcement pass.
		CensusYears []CensusPlacement

		Evidence []EvidenceRecord
	}

	// CensusPlacement is one census year and place from tree facts.
	CensusPlacement struct {
		Year  int
		Place string
	}

	// SearchCandidate is a persisted step-one birth-index candidate, kept
	// for operator inspection.
	SearchCandidate struct {
		ID                  string
		JobID               string
		AscNumber           int
		Rank                int
		Surname             string
		Forenames           string
		BirthYear           int
		Quarter             string
		District            string
		Volume              string
		Page                string
		MotherMaidenSurname string
		Score               int
	}
)

// Validate checks a job request before any work starts.
func (r *JobRequest) Validate() error {
	if r.Generations < MinGenerations || r.Generations > MaxGenerations {
		return fmt.Errorf("%w: %d not in [%d, %d]",
			ErrInvalidGenerations, r.Generations, MinGenerations, MaxGenerations)
	}

	if r.Subject.Surname == "" {
		return ErrMissingSubjectName
	}

	return nil
}

// TotalSlots returns the number of ascendancy slots in a tree of the given
// depth, including the subject: 2^(generations+1) - 1.
func TotalSlots(generations int) int {
	return 1<<(generations+1) - 1
}

// GenerationOf returns the generation of an ascendancy number:
// floor(log2 A). The subject is generation 0.
func GenerationOf(ascNumber int) int {
	if ascNumber < 1 {
		return 0
	}

	return bits.Len(uint(ascNumber)) - 1
}

// GenderFor returns the gender a slot's position dictates. Even slots are
// fathers, odd slots mothers; the subject's gender is not derivable from the
// tree.
func GenderFor(ascNumber int) Gender {
	if ascNumber <= 1 {
		return GenderUnknown
	}

	if ascNumber%2 == 0 {
		return GenderMale
	}

	return GenderFemale
}

// FatherSlot and MotherSlot return the parent slots of an ascendancy number.
func FatherSlot(ascNumber int) int { return 2 * ascNumber }

// MotherSlot returns the mother's slot for an ascendancy number.
func MotherSlot(ascNumber int) int { return 2*ascNumber + 1 }

// InSubtree reports whether slot lies in the ascendancy subtree rooted at
// root, including root itself. Every slot A*2^k + r with 0 <= r < 2^k for
// some k >= 0 is in the subtree of A.
func InSubtree(slot, root int) bool {
	if slot < root {
		return false
	}

	for slot > root {
		slot /= 2
	}

	return slot == root
}

// Rank orders confidence levels for downgrade protection: higher is
// stronger. CustomerData outranks everything the engine can produce.
func (l ConfidenceLevel) Rank() int {
	switch l {
	case LevelCustomerData:
		return 6
	case LevelVerified:
		return 5
	case LevelProbable:
		return 4
	case LevelPossible:
		return 3
	case LevelFlagged:
		return 2
	case LevelNotFound:
		return 1
	default:
		return 0
	}
}

// LevelForScore maps a confidence score to its categorical level.
func LevelForScore(score int) ConfidenceLevel {
	switch {
	case score >= scoreVerifiedMin:
		return LevelVerified
	case score >= scoreProbableMin:
		return LevelProbable
	case score >= scorePossibleMin:
		return LevelPossible
	case score >= scoreFlaggedMin:
		return LevelFlagged
	default:
		return LevelNotFound
	}
}

// IsTerminal reports whether a job status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IsValid reports whether a job status is one of the known states.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return true
	default:
		return false
	}
}

// ValidateJobTransition checks a job status change against the lifecycle
// pending -> running -> {completed, failed}. A terminal status may return to
// running only through an explicit re-research, which the caller signals
// with viaReResearch.
func ValidateJobTransition(from, to JobStatus, viaReResearch bool) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobTransition, from, to)
	}

	switch {
	case from == to:
		return nil
	case from == JobPending && to == JobRunning:
		return nil
	case from == JobRunning && to.IsTerminal():
		return nil
	case from.IsTerminal() && to == JobRunning && viaReResearch:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobTransition, from, to)
	}
}
