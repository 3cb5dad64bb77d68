// Package api provides the HTTP API server for the Rootline service.
package api

import (
	"context"

	"github.com/rootline-io/rootline/internal/research"
	"github.com/rootline-io/rootline/internal/storage"
)

type (
	// JobStore is the persistence surface the API needs: the research
	// repository plus a health probe for the readiness endpoint.
	JobStore interface {
		research.Repository

		HealthCheck(ctx context.Context) error
	}

	// JobRunner starts and supervises background research runs. The HTTP
	// handlers never execute research inline; they hand jobs to the
	// runner and return.
	JobRunner interface {
		StartResearch(jobID string) error
		StartReResearch(jobID string, ascNumber int) error
		CancelJob(jobID string) bool
		Running(jobID string) bool
	}
)

// Interface guards: both store implementations and the research runner
// must satisfy the API contracts.
var (
	_ JobStore  = (*storage.MemoryStore)(nil)
	_ JobStore  = (*storage.ResearchStore)(nil)
	_ JobRunner = (*research.Runner)(nil)
)
