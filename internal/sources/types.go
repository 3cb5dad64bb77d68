// Package sources provides the external record-source registry and adapters:
// civil vital-records indices and genealogy-tree APIs behind one uniform,
// capability-tagged interface.
//
// Adapters rate-limit and retry internally. Absence of results is never an
// error; an error crossing the adapter boundary means a non-recoverable
// configuration fault or an exhausted retry budget.
package sources

import (
	"context"
	"errors"
)

var (
	// ErrCapabilityUnsupported is returned when an operation is called on
	// a source that does not advertise the matching capability.
	ErrCapabilityUnsupported = errors.New("source does not support this capability")

	// ErrSourceNotConfigured is returned when an adapter is constructed
	// without the configuration it needs to reach its backend.
	ErrSourceNotConfigured = errors.New("source is not configured")

	// ErrRequestFailed is returned when a request exhausts its retry
	// budget or the backend rejects it permanently.
	ErrRequestFailed = errors.New("source request failed")
)

// Capability tags what a source can do. The engine selects sources by
// capability, never by name.
type Capability string

// Source capabilities.
const (
	// CapabilitySearchPrimary marks primary-index search: birth and
	// marriage registrations usable as independent evidence.
	CapabilitySearchPrimary Capability = "search_primary"

	// CapabilityConfirmation marks death-registration confirmation.
	CapabilityConfirmation Capability = "confirmation"

	// CapabilityTreeTraversal marks parent lookup and fact extraction on
	// an external tree graph.
	CapabilityTreeTraversal Capability = "tree_traversal"

	// CapabilityPersonSearch marks free-form person search on an
	// external tree graph.
	CapabilityPersonSearch Capability = "person_search"
)

// CapabilitySet is the set of capabilities a source advertises.
type CapabilitySet map[Capability]bool

// Has reports whether every given capability is in the set.
func (s CapabilitySet) Has(caps ...Capability) bool {
	for _, c := range caps {
		if !s[c] {
			return false
		}
	}

	return true
}

// NewCapabilitySet builds a set from a list of capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}

	return set
}

type (
	// IndexQuery is a primary-index search: surname and given name over an
	// inclusive year window, optionally narrowed to a registration
	// district.
	IndexQuery struct {
		Surname   string
		GivenName string
		YearFrom  int
		YearTo    int
		District  string
	}

	// BirthEntry is one birth-index registration.
	BirthEntry struct {
		Surname             string
		Forenames           string
		Year                int
		Quarter             string
		District            string
		Volume              string
		Page                string
		MotherMaidenSurname string
	}

	// MarriageEntry is one marriage-index registration. Surname and
	// Forenames are the searched side; the spouse fields are the other
	// party as indexed.
	MarriageEntry struct {
		Surname         string
		Forenames       string
		SpouseSurname   string
		SpouseForenames string
		Year            int
		Quarter         string
		District        string
		Volume          string
		Page            string
	}

	// DeathEntry is one death-index registration.
	DeathEntry struct {
		Surname   string
		Forenames string
		Year      int
		Quarter   string
		District  string
		Volume    string
		Page      string
	}

	// PersonQuery is a free-form person search against a tree source.
	// BirthDate must be year-only; tree APIs reject richer formats.
	PersonQuery struct {
		GivenName       string
		Surname         string
		BirthDate       string
		BirthPlace      string
		FatherSurname   string
		MotherSurname   string
		MotherGivenName string
		Count           int
	}

	// PersonCandidate is one person returned by a tree source.
	PersonCandidate struct {
		ID         string
		Name       string
		Gender     string
		BirthDate  string
		BirthPlace string
		DeathDate  string
		DeathPlace string
		FatherName string
		MotherName string
	}

	// ParentPair is the parents of a tree person; either side may be
	// absent.
	ParentPair struct {
		Father *PersonCandidate
		Mother *PersonCandidate
	}

	// CensusFact is one census placement extracted from tree facts.
	CensusFact struct {
		Year  int
		Place string
	}

	// PersonFacts are the extracted facts of one tree person, grouped by
	// type.
	PersonFacts struct {
		Census    []CensusFact
		DeathDate string
	}
)

// Source is the uniform adapter interface over one external record source.
//
// Search operations return empty slices for absence. ConfirmDeath returns a
// nil entry when no registration matches. Every operation honors context
// cancellation; rate limiting and transient-error retries happen inside the
// adapter.
type Source interface {
	Name() string
	IsAvailable() bool
	Capabilities() CapabilitySet

	SearchBirths(ctx context.Context, q IndexQuery) ([]BirthEntry, error)
	SearchMarriages(ctx context.Context, q IndexQuery) ([]MarriageEntry, error)
	ConfirmDeath(ctx context.Context, givenName, surname string, year int) (*DeathEntry, error)

	SearchPersons(ctx context.Context, q PersonQuery) ([]PersonCandidate, error)
	GetParents(ctx context.Context, personID string) (*ParentPair, error)
	ExtractFacts(ctx context.Context, personID string) (*PersonFacts, error)
}
