package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rootline-io/rootline/internal/sources"
)

// Runner bounds and supervision for background research jobs.
const (
	defaultMaxConcurrentJobs = 4

	// runnerCloseTimeout bounds how long Close waits for running jobs to
	// notice cancellation and persist their terminal status.
	runnerCloseTimeout = 10 * time.Second
)

var (
	// ErrRunnerClosed is returned when a job is submitted after shutdown
	// has begun.
	ErrRunnerClosed = errors.New("runner is closed")

	// ErrJobAlreadyRunning is returned when a job is submitted while a
	// run for the same job id is still in flight.
	ErrJobAlreadyRunning = errors.New("job is already running")
)

// Runner executes research jobs in the background, one goroutine per job,
// bounded by a semaphore. Each job gets its own cancellable context; Close
// cancels everything and drains with a timeout.
type Runner struct {
	repo     Repository
	registry *sources.Registry
	logger   *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// Interface guard: the runner participates in the server's closer sweep.
var _ io.Closer = (*Runner)(nil)

// NewRunner creates a runner executing at most maxConcurrent jobs at once.
// Zero or negative means the default bound.
func NewRunner(repo Repository, registry *sources.Registry, maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentJobs
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		repo:     repo,
		registry: registry,
		logger:   logger.With(slog.String("component", "research_runner")),
		sem:      make(chan struct{}, maxConcurrent),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// StartResearch launches a full research pass for a job in the background.
func (r *Runner) StartResearch(jobID string) error {
	return r.start(jobID, func(ctx context.Context, engine *Engine) error {
		return engine.Run(ctx, jobID)
	})
}

// StartReResearch launches a re-research of one slot in the background.
func (r *Runner) StartReResearch(jobID string, ascNumber int) error {
	return r.start(jobID, func(ctx context.Context, engine *Engine) error {
		return engine.ReResearch(ctx, jobID, ascNumber)
	})
}

func (r *Runner) start(jobID string, run func(context.Context, *Engine) error) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return ErrRunnerClosed
	}

	if _, running := r.cancels[jobID]; running {
		r.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrJobAlreadyRunning, jobID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancels[jobID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.release(jobID)
		defer r.recoverRun(jobID)

		// The semaphore gates actual work, not submission; a queued job
		// stays pending until a slot frees up.
		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			r.logger.Warn("Job cancelled before it started", slog.String("job_id", jobID))

			return
		}
		defer func() { <-r.sem }()

		engine := NewEngine(r.repo, r.registry, r.logger)

		if err := run(ctx, engine); err != nil {
			r.logger.Error("Research run finished with error",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))

			return
		}

		r.logger.Info("Research run finished", slog.String("job_id", jobID))
	}()

	return nil
}

// recoverRun converts a panicking job into a failed one. A single bad job
// must not take the process down.
func (r *Runner) recoverRun(jobID string) {
	rec := recover()
	if rec == nil {
		return
	}

	r.logger.Error("Research run panicked",
		slog.String("job_id", jobID),
		slog.Any("panic", rec))

	status := JobFailed
	message := fmt.Sprintf("internal error: %v", rec)

	if err := r.repo.UpdateResearchJob(context.Background(), jobID, JobUpdate{
		Status:       &status,
		ErrorMessage: &message,
	}); err != nil {
		r.logger.Error("Failed to mark panicked job failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
}

func (r *Runner) release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.cancels[jobID]; ok {
		cancel()
		delete(r.cancels, jobID)
	}
}

// CancelJob cancels a running job. The engine notices at its next
// suspension point and marks the job failed with a cancellation message.
// Returns false when no run is in flight for the id.
func (r *Runner) CancelJob(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.cancels[jobID]
	if ok {
		cancel()
	}

	return ok
}

// Running reports whether a run is currently in flight for the job id.
func (r *Runner) Running(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.cancels[jobID]

	return ok
}

// Close stops accepting jobs, cancels the running ones and waits for them
// to drain, up to a timeout.
func (r *Runner) Close() error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return nil
	}

	r.closed = true

	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(runnerCloseTimeout):
		return errors.New("timed out waiting for research jobs to stop")
	}
}
