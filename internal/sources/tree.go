package sources

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
)

// defaultPersonSearchCount is requested when a query does not say how many
// candidates it wants.
const defaultPersonSearchCount = 10

// TreeConfig configures the genealogy-tree adapter.
type TreeConfig struct {
	// Name identifies the source in tree leads and logs.
	Name string

	Transport TransportConfig
}

// TreeSource is the adapter for a user-maintained genealogical tree API.
// Trees are useful for leads and household facts but are not independent
// evidence; the adapter advertises person_search and tree_traversal.
type TreeSource struct {
	name      string
	transport *transport
	caps      CapabilitySet
	logger    *slog.Logger
}

// Interface guard.
var _ Source = (*TreeSource)(nil)

// NewTreeSource creates the tree adapter. Returns ErrSourceNotConfigured
// when no base URL is set.
func NewTreeSource(cfg TreeConfig, logger *slog.Logger) (*TreeSource, error) {
	if cfg.Transport.BaseURL == "" {
		return nil, ErrSourceNotConfigured
	}

	if cfg.Name == "" {
		cfg.Name = "familysearch"
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "sources"), slog.String("source", cfg.Name))

	return &TreeSource{
		name:      cfg.Name,
		transport: newTransport(cfg.Transport, logger),
		caps:      NewCapabilitySet(CapabilityPersonSearch, CapabilityTreeTraversal),
		logger:    logger,
	}, nil
}

// Name returns the source name used in tree leads.
func (s *TreeSource) Name() string { return s.name }

// IsAvailable reports runtime availability from the transport health
// tracker.
func (s *TreeSource) IsAvailable() bool { return s.transport.healthy() }

// Capabilities returns the advertised capability set.
func (s *TreeSource) Capabilities() CapabilitySet { return s.caps }

type (
	personSearchResponse struct {
		Persons []treePerson `json:"persons"`
	}

	treePerson struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Gender     string `json:"gender"`
		BirthDate  string `json:"birth_date"`
		BirthPlace string `json:"birth_place"`
		DeathDate  string `json:"death_date"`
		DeathPlace string `json:"death_place"`
		FatherName string `json:"father_name"`
		MotherName string `json:"mother_name"`
	}

	parentsResponse struct {
		Father *treePerson `json:"father"`
		Mother *treePerson `json:"mother"`
	}

	factsResponse struct {
		Census []struct {
			Year  int    `json:"year"`
			Place string `json:"place"`
		} `json:"census"`
		DeathDate string `json:"death_date"`
	}
)

// SearchPersons runs a free-form person search against the tree.
func (s *TreeSource) SearchPersons(ctx context.Context, q PersonQuery) ([]PersonCandidate, error) {
	if q.Count <= 0 {
		q.Count = defaultPersonSearchCount
	}

	values := url.Values{}
	values.Set("given", q.GivenName)
	values.Set("surname", q.Surname)
	values.Set("count", strconv.Itoa(q.Count))

	if q.BirthDate != "" {
		values.Set("birth_year", q.BirthDate)
	}

	if q.BirthPlace != "" {
		values.Set("birth_place", q.BirthPlace)
	}

	if q.FatherSurname != "" {
		values.Set("father_surname", q.FatherSurname)
	}

	if q.MotherSurname != "" {
		values.Set("mother_surname", q.MotherSurname)
	}

	if q.MotherGivenName != "" {
		values.Set("mother_given", q.MotherGivenName)
	}

	var resp personSearchResponse
	if err := s.transport.getJSON(ctx, "/v1/persons", values, &resp); err != nil {
		return nil, err
	}

	candidates := make([]PersonCandidate, 0, len(resp.Persons))
	for _, p := range resp.Persons {
		candidates = append(candidates, newPersonCandidate(p))
	}

	s.logger.Debug("Person search",
		slog.String("surname", q.Surname),
		slog.String("birth_year", q.BirthDate),
		slog.Int("results", len(candidates)))

	return candidates, nil
}

// GetParents looks up the recorded parents of a tree person. Either side
// may be nil when the tree has no link.
func (s *TreeSource) GetParents(ctx context.Context, personID string) (*ParentPair, error) {
	var resp parentsResponse
	if err := s.transport.getJSON(ctx, "/v1/persons/"+url.PathEscape(personID)+"/parents", nil, &resp); err != nil {
		return nil, err
	}

	pair := &ParentPair{}

	if resp.Father != nil {
		father := newPersonCandidate(*resp.Father)
		pair.Father = &father
	}

	if resp.Mother != nil {
		mother := newPersonCandidate(*resp.Mother)
		pair.Mother = &mother
	}

	return pair, nil
}

// ExtractFacts pulls the typed facts of a tree person: census placements
// and a death date when recorded.
func (s *TreeSource) ExtractFacts(ctx context.Context, personID string) (*PersonFacts, error) {
	var resp factsResponse
	if err := s.transport.getJSON(ctx, "/v1/persons/"+url.PathEscape(personID)+"/facts", nil, &resp); err != nil {
		return nil, err
	}

	facts := &PersonFacts{DeathDate: resp.DeathDate}
	for _, c := range resp.Census {
		facts.Census = append(facts.Census, CensusFact{Year: c.Year, Place: c.Place})
	}

	return facts, nil
}

// SearchBirths is not supported by a tree source.
func (s *TreeSource) SearchBirths(context.Context, IndexQuery) ([]BirthEntry, error) {
	return nil, ErrCapabilityUnsupported
}

// SearchMarriages is not supported by a tree source.
func (s *TreeSource) SearchMarriages(context.Context, IndexQuery) ([]MarriageEntry, error) {
	return nil, ErrCapabilityUnsupported
}

// ConfirmDeath is not supported by a tree source.
func (s *TreeSource) ConfirmDeath(context.Context, string, string, int) (*DeathEntry, error) {
	return nil, ErrCapabilityUnsupported
}

func newPersonCandidate(p treePerson) PersonCandidate {
	return PersonCandidate{
		ID:         p.ID,
		Name:       p.Name,
		Gender:     p.Gender,
		BirthDate:  p.BirthDate,
		BirthPlace: p.BirthPlace,
		DeathDate:  p.DeathDate,
		DeathPlace: p.DeathPlace,
		FatherName: p.FatherName,
		MotherName: p.MotherName,
	}
}
