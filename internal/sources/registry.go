package sources

import (
	"log/slog"
	"sync"
)

// Registry enumerates the configured record sources and selects them by
// capability. Registration happens at startup; selection happens per engine
// step, so reads dominate and take the read lock only.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	logger  *slog.Logger
}

// NewRegistry creates a registry holding the given sources in order.
// Selection prefers earlier sources, so register the preferred primary index
// first.
func NewRegistry(logger *slog.Logger, srcs ...Source) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		sources: make([]Source, 0, len(srcs)),
		logger:  logger.With(slog.String("component", "sources")),
	}

	for _, s := range srcs {
		r.Register(s)
	}

	return r
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	if s == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = append(r.sources, s)
	r.logger.Info("Registered record source",
		slog.String("source", s.Name()),
		slog.Int("capabilities", len(s.Capabilities())))
}

// All returns the registered sources in registration order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, len(r.sources))
	copy(out, r.sources)

	return out
}

// Names returns the names of all registered sources.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}

	return names
}

// FirstWith returns the first available source advertising every given
// capability. Availability is runtime-dependent, so an unhealthy source is
// passed over even though it is registered.
func (r *Registry) FirstWith(caps ...Capability) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sources {
		if s.Capabilities().Has(caps...) && s.IsAvailable() {
			return s, true
		}
	}

	return nil, false
}

