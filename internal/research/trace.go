package research

import (
	"fmt"
	"slices"
	"sync"
)

// searchTrace accumulates the append-only diagnostic log of one slot and the
// names of every source consulted. Marriage searches fan out across
// goroutines, so appends take a lock.
type searchTrace struct {
	mu      sync.Mutex
	lines   []string
	sources []string
	seen    map[string]bool
}

// newSearchTrace starts a trace, optionally continuing an existing log when a
// slot is enriched rather than created.
func newSearchTrace(lines, sources []string) *searchTrace {
	t := &searchTrace{
		lines:   slices.Clone(lines),
		sources: slices.Clone(sources),
		seen:    make(map[string]bool, len(sources)),
	}

	for _, s := range sources {
		t.seen[s] = true
	}

	return t
}

func (t *searchTrace) addf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// source records that a named source contributed to this slot. Duplicates
// are dropped; order of first use is kept.
func (t *searchTrace) source(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if name == "" || t.seen[name] {
		return
	}

	t.seen[name] = true
	t.sources = append(t.sources, name)
}

// log returns a snapshot of the accumulated lines.
func (t *searchTrace) log() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.lines)
}

// sourceNames returns a snapshot of the consulted source names.
func (t *searchTrace) sourceNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.sources)
}

// mergeNames appends the entries of extra that are not already in base,
// preserving order. Used when one search (a couple marriage) lands on two
// ancestor rows.
func mergeNames(base, extra []string) []string {
	out := slices.Clone(base)

	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}

	for _, s := range extra {
		if !seen[s] {
			seen[s] = true

			out = append(out, s)
		}
	}

	return out
}
