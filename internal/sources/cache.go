package sources

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds the per-job response cache. A seven-generation
// job touches at most a few hundred distinct tree queries.
const defaultCacheSize = 256

// CachingSource wraps a tree source with a small in-memory LRU over person
// searches, parent lookups and fact extraction. The same person recurs
// across pipeline steps within one job; the wrapper is created per job and
// dropped with it, so nothing third-party is ever persisted.
type CachingSource struct {
	Source

	persons *lru.Cache[string, []PersonCandidate]
	parents *lru.Cache[string, *ParentPair]
	facts   *lru.Cache[string, *PersonFacts]
}

// Interface guard.
var _ Source = (*CachingSource)(nil)

// NewCachingSource wraps a source in a per-job response cache. A size of
// zero or less uses the default.
func NewCachingSource(inner Source, size int) (*CachingSource, error) {
	if size <= 0 {
		size = defaultCacheSize
	}

	persons, err := lru.New[string, []PersonCandidate](size)
	if err != nil {
		return nil, fmt.Errorf("create person cache: %w", err)
	}

	parents, err := lru.New[string, *ParentPair](size)
	if err != nil {
		return nil, fmt.Errorf("create parent cache: %w", err)
	}

	facts, err := lru.New[string, *PersonFacts](size)
	if err != nil {
		return nil, fmt.Errorf("create fact cache: %w", err)
	}

	return &CachingSource{
		Source:  inner,
		persons: persons,
		parents: parents,
		facts:   facts,
	}, nil
}

// SearchPersons serves repeated identical queries from the cache.
func (c *CachingSource) SearchPersons(ctx context.Context, q PersonQuery) ([]PersonCandidate, error) {
	key := personQueryKey(q)

	if cached, ok := c.persons.Get(key); ok {
		return cached, nil
	}

	result, err := c.Source.SearchPersons(ctx, q)
	if err != nil {
		return nil, err
	}

	c.persons.Add(key, result)

	return result, nil
}

// GetParents serves repeated lookups for the same person from the cache.
func (c *CachingSource) GetParents(ctx context.Context, personID string) (*ParentPair, error) {
	if cached, ok := c.parents.Get(personID); ok {
		return cached, nil
	}

	result, err := c.Source.GetParents(ctx, personID)
	if err != nil {
		return nil, err
	}

	c.parents.Add(personID, result)

	return result, nil
}

// ExtractFacts serves repeated extractions for the same person from the
// cache.
func (c *CachingSource) ExtractFacts(ctx context.Context, personID string) (*PersonFacts, error) {
	if cached, ok := c.facts.Get(personID); ok {
		return cached, nil
	}

	result, err := c.Source.ExtractFacts(ctx, personID)
	if err != nil {
		return nil, err
	}

	c.facts.Add(personID, result)

	return result, nil
}

func personQueryKey(q PersonQuery) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%d",
		q.GivenName, q.Surname, q.BirthDate, q.BirthPlace,
		q.FatherSurname, q.MotherSurname, q.MotherGivenName, q.Count)
}
