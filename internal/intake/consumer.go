package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/rootline-io/rootline/internal/research"
)

type (
	// JobCreator is the slice of the research repository the consumer
	// writes through. Both storage implementations satisfy it.
	JobCreator interface {
		CreateResearchJob(ctx context.Context, req research.JobRequest) (*research.ResearchJob, error)
		GetResearchJob(ctx context.Context, jobID string) (*research.ResearchJob, error)
	}

	// JobStarter hands created jobs to the background research runner.
	JobStarter interface {
		StartResearch(jobID string) error
	}

	// messageSource is the part of kafka.Reader the consumer drives.
	// Tests substitute a scripted implementation.
	messageSource interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
		CommitMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// SubjectEnvelope carries the customer-provided subject description
	// on the wire. Field names match the POST /api/v1/jobs payload so
	// producers can publish the same document they would send over HTTP.
	SubjectEnvelope struct {
		GivenName  string `json:"givenName"`
		Surname    string `json:"surname"`
		BirthDate  string `json:"birthDate,omitempty"`
		BirthPlace string `json:"birthPlace,omitempty"`
		DeathDate  string `json:"deathDate,omitempty"`
		DeathPlace string `json:"deathPlace,omitempty"`
		FatherName string `json:"fatherName,omitempty"`
		MotherName string `json:"motherName,omitempty"`
		Notes      string `json:"notes,omitempty"`
	}

	// JobEnvelope is one research job request published to the intake
	// topic.
	JobEnvelope struct {
		JobID       string          `json:"jobId,omitempty"`
		Generations int             `json:"generations"`
		Subject     SubjectEnvelope `json:"subject"`
	}

	// Consumer reads job request envelopes from Kafka, creates the jobs
	// and starts their research runs. Offsets are committed only after a
	// message has been fully handled, so delivery is at-least-once;
	// duplicate creates are treated as redeliveries, which makes job
	// starts effectively once.
	Consumer struct {
		source      messageSource
		repo        JobCreator
		starter     JobStarter
		logger      *slog.Logger
		retryBudget time.Duration
	}
)

var _ messageSource = (*kafka.Reader)(nil)

// NewConsumer creates a consumer reading from the configured topic as part
// of the configured consumer group.
func NewConsumer(cfg *Config, repo JobCreator, starter JobStarter, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(func(format string, args ...any) {
			logger.Error(fmt.Sprintf(format, args...))
		}),
	})

	return newConsumer(reader, cfg, repo, starter, logger)
}

func newConsumer(source messageSource, cfg *Config, repo JobCreator, starter JobStarter, logger *slog.Logger) *Consumer {
	return &Consumer{
		source:      source,
		repo:        repo,
		starter:     starter,
		logger:      logger,
		retryBudget: cfg.CreateRetryBudget,
	}
}

// Run consumes messages until the context is cancelled or the consumer is
// closed. It returns nil on clean shutdown and the failing error otherwise;
// the offset of a failed message stays uncommitted so it is redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}
	}
}

// Close stops the underlying reader. A Run blocked in FetchMessage returns
// once the reader reports closed.
func (c *Consumer) Close() error {
	return c.source.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var envelope JobEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		c.logger.Warn("Discarding malformed job message",
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		return c.commit(ctx, msg)
	}

	req := envelope.jobRequest()
	if err := req.Validate(); err != nil {
		c.logger.Warn("Discarding invalid job request",
			slog.String("job_id", req.JobID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		return c.commit(ctx, msg)
	}

	job, err := c.ensureJob(ctx, req)
	if err != nil {
		return err
	}

	if job == nil {
		// Nothing left to do for this message.
		return c.commit(ctx, msg)
	}

	if err := c.starter.StartResearch(job.ID); err != nil {
		if errors.Is(err, research.ErrJobAlreadyRunning) {
			return c.commit(ctx, msg)
		}

		// The job row exists but its run never started. Leaving the
		// offset uncommitted makes the redelivery land on the
		// pending-duplicate path, which starts the run then.
		return fmt.Errorf("start research for job %s: %w", job.ID, err)
	}

	c.logger.Info("Research job accepted from intake",
		slog.String("job_id", job.ID),
		slog.Int("generations", job.Generations),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)

	return c.commit(ctx, msg)
}

// ensureJob creates the job for a validated request, retrying transient
// store failures within the configured budget. It returns nil without error
// when the message needs no further work.
func (c *Consumer) ensureJob(ctx context.Context, req research.JobRequest) (*research.ResearchJob, error) {
	var job *research.ResearchJob

	create := func() error {
		created, err := c.repo.CreateResearchJob(ctx, req)
		if err == nil {
			job = created

			return nil
		}

		if errors.Is(err, research.ErrDuplicateJob) ||
			errors.Is(err, research.ErrInvalidGenerations) ||
			errors.Is(err, research.ErrMissingSubjectName) {
			return backoff.Permanent(err)
		}

		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.retryBudget

	err := backoff.Retry(create, backoff.WithContext(policy, ctx))

	switch {
	case err == nil:
		return job, nil

	case errors.Is(err, research.ErrDuplicateJob):
		// Redelivery of a message that already created its job. Hand the
		// job back only when the first delivery never got the run
		// started; anything past pending has been handled.
		existing, loadErr := c.repo.GetResearchJob(ctx, req.JobID)
		if loadErr != nil {
			return nil, fmt.Errorf("load existing job %s: %w", req.JobID, loadErr)
		}

		if existing.Status == research.JobPending {
			return existing, nil
		}

		c.logger.Info("Skipping redelivered job request",
			slog.String("job_id", existing.ID),
			slog.String("status", string(existing.Status)),
		)

		return nil, nil

	case errors.Is(err, research.ErrInvalidGenerations), errors.Is(err, research.ErrMissingSubjectName):
		// The envelope passed Validate but the store still refused it.
		// Discard rather than loop on a poison message.
		c.logger.Warn("Discarding job request rejected by the store",
			slog.String("job_id", req.JobID),
			slog.String("error", err.Error()),
		)

		return nil, nil

	default:
		return nil, fmt.Errorf("create research job: %w", err)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.source.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}

	return nil
}

func (e JobEnvelope) jobRequest() research.JobRequest {
	return research.JobRequest{
		JobID:       e.JobID,
		Generations: e.Generations,
		Subject: research.SubjectInput{
			GivenName:  e.Subject.GivenName,
			Surname:    e.Subject.Surname,
			BirthDate:  e.Subject.BirthDate,
			BirthPlace: e.Subject.BirthPlace,
			DeathDate:  e.Subject.DeathDate,
			DeathPlace: e.Subject.DeathPlace,
			FatherName: e.Subject.FatherName,
			MotherName: e.Subject.MotherName,
			Notes:      e.Subject.Notes,
		},
	}
}
