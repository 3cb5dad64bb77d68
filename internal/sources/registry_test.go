package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource is an in-memory Source for registry and cache tests. Canned
// results are returned as-is; call counters expose pass-through behavior.
type stubSource struct {
	name      string
	available bool
	caps      CapabilitySet

	persons []PersonCandidate
	parents *ParentPair
	facts   *PersonFacts
	err     error

	personCalls int
	parentCalls int
	factCalls   int
}

func (s *stubSource) Name() string                { return s.name }
func (s *stubSource) IsAvailable() bool           { return s.available }
func (s *stubSource) Capabilities() CapabilitySet { return s.caps }

func (s *stubSource) SearchBirths(context.Context, IndexQuery) ([]BirthEntry, error) {
	return nil, s.err
}

func (s *stubSource) SearchMarriages(context.Context, IndexQuery) ([]MarriageEntry, error) {
	return nil, s.err
}

func (s *stubSource) ConfirmDeath(context.Context, string, string, int) (*DeathEntry, error) {
	return nil, s.err
}

func (s *stubSource) SearchPersons(context.Context, PersonQuery) ([]PersonCandidate, error) {
	s.personCalls++

	return s.persons, s.err
}

func (s *stubSource) GetParents(context.Context, string) (*ParentPair, error) {
	s.parentCalls++

	return s.parents, s.err
}

func (s *stubSource) ExtractFacts(context.Context, string) (*PersonFacts, error) {
	s.factCalls++

	return s.facts, s.err
}

func newStubSource(name string, caps ...Capability) *stubSource {
	return &stubSource{
		name:      name,
		available: true,
		caps:      NewCapabilitySet(caps...),
	}
}

// TestRegistry_FirstWithPrefersRegistrationOrder verifies that when several
// sources advertise a capability, the one registered first wins.
func TestRegistry_FirstWithPrefersRegistrationOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	primary := newStubSource("primary", CapabilitySearchPrimary)
	secondary := newStubSource("secondary", CapabilitySearchPrimary)
	registry := NewRegistry(nil, primary, secondary)

	selected, ok := registry.FirstWith(CapabilitySearchPrimary)

	require.True(t, ok)
	assert.Equal(t, "primary", selected.Name())
}

// TestRegistry_FirstWithSkipsUnavailableSources verifies that an unhealthy
// source is passed over in favor of a later healthy one.
func TestRegistry_FirstWithSkipsUnavailableSources(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	down := newStubSource("down", CapabilitySearchPrimary)
	down.available = false
	up := newStubSource("up", CapabilitySearchPrimary)
	registry := NewRegistry(nil, down, up)

	selected, ok := registry.FirstWith(CapabilitySearchPrimary)

	require.True(t, ok)
	assert.Equal(t, "up", selected.Name())
}

// TestRegistry_FirstWithRequiresAllCapabilities verifies that a source must
// advertise every requested capability at once.
func TestRegistry_FirstWithRequiresAllCapabilities(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	searchOnly := newStubSource("search-only", CapabilitySearchPrimary)
	both := newStubSource("both", CapabilitySearchPrimary, CapabilityConfirmation)
	registry := NewRegistry(nil, searchOnly, both)

	selected, ok := registry.FirstWith(CapabilitySearchPrimary, CapabilityConfirmation)

	require.True(t, ok)
	assert.Equal(t, "both", selected.Name())
}

// TestRegistry_FirstWithNoMatch verifies that selection reports absence
// instead of returning an unusable source.
func TestRegistry_FirstWithNoMatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry(nil, newStubSource("civil", CapabilitySearchPrimary))

	selected, ok := registry.FirstWith(CapabilityTreeTraversal)

	assert.False(t, ok)
	assert.Nil(t, selected)
}

// TestRegistry_AllListsEveryRegisteredSource verifies the listing used for
// health reporting includes unavailable sources, since operators need to see
// a tripped source rather than have it vanish.
func TestRegistry_AllListsEveryRegisteredSource(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	civil := newStubSource("civil", CapabilitySearchPrimary, CapabilityConfirmation)
	downTree := newStubSource("down-tree", CapabilityPersonSearch)
	downTree.available = false
	registry := NewRegistry(nil, civil, downTree)

	listed := registry.All()

	require.Len(t, listed, 2)
	assert.Equal(t, "civil", listed[0].Name())
	assert.Equal(t, "down-tree", listed[1].Name())
	assert.False(t, listed[1].IsAvailable())
}

// TestRegistry_NamesPreservesRegistrationOrder verifies the name listing
// used by status reporting.
func TestRegistry_NamesPreservesRegistrationOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry := NewRegistry(nil)
	registry.Register(newStubSource("first", CapabilitySearchPrimary))
	registry.Register(newStubSource("second", CapabilityPersonSearch))
	registry.Register(nil)

	assert.Equal(t, []string{"first", "second"}, registry.Names())
}
