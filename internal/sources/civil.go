package sources

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
)

// CivilIndexConfig configures the civil registration index adapter.
type CivilIndexConfig struct {
	// Name identifies the source in evidence records and logs.
	Name string

	Transport TransportConfig
}

// CivilIndexSource is the adapter for a civil vital-records index: quarterly
// birth, marriage and death registrations with volume/page coordinates and,
// on birth entries, the mother's maiden surname. It advertises
// search_primary and confirmation; person search belongs to tree sources.
type CivilIndexSource struct {
	name      string
	transport *transport
	caps      CapabilitySet
	logger    *slog.Logger
}

// Interface guard.
var _ Source = (*CivilIndexSource)(nil)

// NewCivilIndexSource creates the civil-index adapter. Returns
// ErrSourceNotConfigured when no base URL is set; a missing API key is left
// to the backend to reject, since some indices are open.
func NewCivilIndexSource(cfg CivilIndexConfig, logger *slog.Logger) (*CivilIndexSource, error) {
	if cfg.Transport.BaseURL == "" {
		return nil, ErrSourceNotConfigured
	}

	if cfg.Name == "" {
		cfg.Name = "civil-index"
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "sources"), slog.String("source", cfg.Name))

	return &CivilIndexSource{
		name:      cfg.Name,
		transport: newTransport(cfg.Transport, logger),
		caps:      NewCapabilitySet(CapabilitySearchPrimary, CapabilityConfirmation),
		logger:    logger,
	}, nil
}

// Name returns the source name used in evidence records.
func (s *CivilIndexSource) Name() string { return s.name }

// IsAvailable reports runtime availability: the adapter is configured and
// its failure streak has not tripped the health tracker.
func (s *CivilIndexSource) IsAvailable() bool { return s.transport.healthy() }

// Capabilities returns the advertised capability set.
func (s *CivilIndexSource) Capabilities() CapabilitySet { return s.caps }

type (
	birthIndexResponse struct {
		Entries []birthIndexEntry `json:"entries"`
	}

	birthIndexEntry struct {
		Surname             string `json:"surname"`
		Forenames           string `json:"forenames"`
		Year                int    `json:"year"`
		Quarter             string `json:"quarter"`
		District            string `json:"district"`
		Volume              string `json:"volume"`
		Page                string `json:"page"`
		MotherMaidenSurname string `json:"mother_maiden_surname"`
	}

	marriageIndexResponse struct {
		Entries []marriageIndexEntry `json:"entries"`
	}

	marriageIndexEntry struct {
		Surname         string `json:"surname"`
		Forenames       string `json:"forenames"`
		SpouseSurname   string `json:"spouse_surname"`
		SpouseForenames string `json:"spouse_forenames"`
		Year            int    `json:"year"`
		Quarter         string `json:"quarter"`
		District        string `json:"district"`
		Volume          string `json:"volume"`
		Page            string `json:"page"`
	}

	deathIndexResponse struct {
		Entries []deathIndexEntry `json:"entries"`
	}

	deathIndexEntry struct {
		Surname   string `json:"surname"`
		Forenames string `json:"forenames"`
		Year      int    `json:"year"`
		Quarter   string `json:"quarter"`
		District  string `json:"district"`
		Volume    string `json:"volume"`
		Page      string `json:"page"`
	}
)

// SearchBirths queries the birth index over an inclusive year window.
func (s *CivilIndexSource) SearchBirths(ctx context.Context, q IndexQuery) ([]BirthEntry, error) {
	query := indexQueryValues(q)

	var resp birthIndexResponse
	if err := s.transport.getJSON(ctx, "/v1/births", query, &resp); err != nil {
		return nil, err
	}

	entries := make([]BirthEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, BirthEntry{
			Surname:             e.Surname,
			Forenames:           e.Forenames,
			Year:                e.Year,
			Quarter:             e.Quarter,
			District:            e.District,
			Volume:              e.Volume,
			Page:                e.Page,
			MotherMaidenSurname: e.MotherMaidenSurname,
		})
	}

	s.logger.Debug("Birth index search",
		slog.String("surname", q.Surname),
		slog.Int("year_from", q.YearFrom),
		slog.Int("year_to", q.YearTo),
		slog.Int("results", len(entries)))

	return entries, nil
}

// SearchMarriages queries the marriage index over an inclusive year window.
func (s *CivilIndexSource) SearchMarriages(ctx context.Context, q IndexQuery) ([]MarriageEntry, error) {
	query := indexQueryValues(q)

	var resp marriageIndexResponse
	if err := s.transport.getJSON(ctx, "/v1/marriages", query, &resp); err != nil {
		return nil, err
	}

	entries := make([]MarriageEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, MarriageEntry{
			Surname:         e.Surname,
			Forenames:       e.Forenames,
			SpouseSurname:   e.SpouseSurname,
			SpouseForenames: e.SpouseForenames,
			Year:            e.Year,
			Quarter:         e.Quarter,
			District:        e.District,
			Volume:          e.Volume,
			Page:            e.Page,
		})
	}

	s.logger.Debug("Marriage index search",
		slog.String("surname", q.Surname),
		slog.Int("year_from", q.YearFrom),
		slog.Int("year_to", q.YearTo),
		slog.Int("results", len(entries)))

	return entries, nil
}

// ConfirmDeath looks for a death registration in the given year. Returns a
// nil entry when none matches; absence is not an error.
func (s *CivilIndexSource) ConfirmDeath(ctx context.Context, givenName, surname string, year int) (*DeathEntry, error) {
	query := url.Values{}
	query.Set("surname", surname)
	query.Set("given", givenName)
	query.Set("year", strconv.Itoa(year))

	var resp deathIndexResponse
	if err := s.transport.getJSON(ctx, "/v1/deaths", query, &resp); err != nil {
		return nil, err
	}

	if len(resp.Entries) == 0 {
		return nil, nil //nolint:nilnil // absence of a registration is a valid result
	}

	e := resp.Entries[0]

	return &DeathEntry{
		Surname:   e.Surname,
		Forenames: e.Forenames,
		Year:      e.Year,
		Quarter:   e.Quarter,
		District:  e.District,
		Volume:    e.Volume,
		Page:      e.Page,
	}, nil
}

// SearchPersons is not supported by a civil index.
func (s *CivilIndexSource) SearchPersons(context.Context, PersonQuery) ([]PersonCandidate, error) {
	return nil, ErrCapabilityUnsupported
}

// GetParents is not supported by a civil index.
func (s *CivilIndexSource) GetParents(context.Context, string) (*ParentPair, error) {
	return nil, ErrCapabilityUnsupported
}

// ExtractFacts is not supported by a civil index.
func (s *CivilIndexSource) ExtractFacts(context.Context, string) (*PersonFacts, error) {
	return nil, ErrCapabilityUnsupported
}

func indexQueryValues(q IndexQuery) url.Values {
	values := url.Values{}
	values.Set("surname", q.Surname)

	if q.GivenName != "" {
		values.Set("given", q.GivenName)
	}

	values.Set("year_from", strconv.Itoa(q.YearFrom))
	values.Set("year_to", strconv.Itoa(q.YearTo))

	if q.District != "" {
		values.Set("district", q.District)
	}

	return values
}
