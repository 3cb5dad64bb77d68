package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootline-io/rootline/internal/research"
	"github.com/rootline-io/rootline/internal/storage"
)

// scriptedSource replays a fixed message sequence, then blocks like a real
// reader until the consumer is closed or the context ends.
type scriptedSource struct {
	mu        sync.Mutex
	messages  []kafka.Message
	next      int
	committed []int64
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedSource(payloads ...string) *scriptedSource {
	s := &scriptedSource{closed: make(chan struct{})}

	for i, payload := range payloads {
		s.messages = append(s.messages, kafka.Message{
			Topic:  defaultTopic,
			Offset: int64(i),
			Value:  []byte(payload),
		})
	}

	return s
}

func (s *scriptedSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if s.next < len(s.messages) {
		msg := s.messages[s.next]
		s.next++
		s.mu.Unlock()

		return msg, nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-s.closed:
		return kafka.Message{}, io.EOF
	}
}

func (s *scriptedSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range msgs {
		s.committed = append(s.committed, msg.Offset)
	}

	return nil
}

func (s *scriptedSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })

	return nil
}

func (s *scriptedSource) committedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]int64(nil), s.committed...)
}

// stubStarter records handed-off job ids and returns a scripted error.
type stubStarter struct {
	mu      sync.Mutex
	err     error
	started []string
}

func (s *stubStarter) StartResearch(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = append(s.started, jobID)

	return s.err
}

// flakyCreator fails a set number of creates before delegating to the
// wrapped store.
type flakyCreator struct {
	*storage.MemoryStore

	mu       sync.Mutex
	failures int
}

func (f *flakyCreator) CreateResearchJob(
	ctx context.Context,
	req research.JobRequest,
) (*research.ResearchJob, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()

		return nil, errors.New("store unavailable")
	}
	f.mu.Unlock()

	return f.MemoryStore.CreateResearchJob(ctx, req)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	return &Config{
		Brokers:           []string{"localhost:9092"},
		Topic:             defaultTopic,
		GroupID:           defaultGroupID,
		MinBytes:          defaultMinBytes,
		MaxBytes:          defaultMaxBytes,
		MaxWait:           50 * time.Millisecond,
		CreateRetryBudget: 5 * time.Second,
		LogLevel:          slog.LevelError,
	}
}

func hartleyEnvelope(jobID string) JobEnvelope {
	return JobEnvelope{
		JobID:       jobID,
		Generations: 1,
		Subject: SubjectEnvelope{
			GivenName:  "Thomas",
			Surname:    "Hartley",
			BirthDate:  "1910",
			BirthPlace: "Preston, Lancashire",
		},
	}
}

func envelopeJSON(t *testing.T, env JobEnvelope) string {
	t.Helper()

	data, err := json.Marshal(env)
	require.NoError(t, err)

	return string(data)
}

func jobStatusIs(store JobCreator, jobID string, want research.JobStatus) func() bool {
	return func() bool {
		job, err := store.GetResearchJob(context.Background(), jobID)

		return err == nil && job.Status == want
	}
}

// startConsumer runs the consumer in the background and returns its exit
// channel.
func startConsumer(c *Consumer) <-chan error {
	done := make(chan error, 1)

	go func() { done <- c.Run(context.Background()) }()

	return done
}

func stopConsumer(t *testing.T, c *Consumer, done <-chan error) error {
	t.Helper()

	require.NoError(t, c.Close())

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after close")

		return nil
	}
}

func TestConsumerStartsRequestedJob(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := storage.NewMemoryStore()
	runner := research.NewRunner(store, nil, 0, testLogger())
	defer runner.Close()

	source := newScriptedSource(envelopeJSON(t, hartleyEnvelope("intake-job-1")))
	consumer := newConsumer(source, testConfig(), store, runner, testLogger())
	done := startConsumer(consumer)

	require.Eventually(t, jobStatusIs(store, "intake-job-1", research.JobCompleted), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(source.committedOffsets()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, stopConsumer(t, consumer, done))
}

func TestConsumerDiscardsMalformedMessage(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := storage.NewMemoryStore()
	runner := research.NewRunner(store, nil, 0, testLogger())
	defer runner.Close()

	source := newScriptedSource(
		"{this is not json",
		envelopeJSON(t, hartleyEnvelope("intake-job-2")),
	)
	consumer := newConsumer(source, testConfig(), store, runner, testLogger())
	done := startConsumer(consumer)

	// The poison message is committed and skipped; the next one still
	// lands.
	require.Eventually(t, jobStatusIs(store, "intake-job-2", research.JobCompleted), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(source.committedOffsets()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	jobs, err := store.ListResearchJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	require.NoError(t, stopConsumer(t, consumer, done))
}

func TestConsumerDiscardsInvalidRequest(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	outOfRange := hartleyEnvelope("intake-bad-generations")
	outOfRange.Generations = 9

	noSurname := hartleyEnvelope("intake-no-surname")
	noSurname.Subject.Surname = ""

	store := storage.NewMemoryStore()
	runner := research.NewRunner(store, nil, 0, testLogger())
	defer runner.Close()

	source := newScriptedSource(
		envelopeJSON(t, outOfRange),
		envelopeJSON(t, noSurname),
	)
	consumer := newConsumer(source, testConfig(), store, runner, testLogger())
	done := startConsumer(consumer)

	require.Eventually(t, func() bool {
		return len(source.committedOffsets()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	jobs, err := store.ListResearchJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	require.NoError(t, stopConsumer(t, consumer, done))
}

func TestConsumerSkipsHandledRedelivery(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	payload := envelopeJSON(t, hartleyEnvelope("intake-dup"))

	store := storage.NewMemoryStore()
	runner := research.NewRunner(store, nil, 0, testLogger())
	defer runner.Close()

	source := newScriptedSource(payload, payload)
	consumer := newConsumer(source, testConfig(), store, runner, testLogger())
	done := startConsumer(consumer)

	require.Eventually(t, func() bool {
		return len(source.committedOffsets()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, jobStatusIs(store, "intake-dup", research.JobCompleted), 2*time.Second, 10*time.Millisecond)

	jobs, err := store.ListResearchJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "redelivery must not create a second job")

	require.NoError(t, stopConsumer(t, consumer, done))
}

func TestConsumerRestartsPendingDuplicate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := storage.NewMemoryStore()
	runner := research.NewRunner(store, nil, 0, testLogger())
	defer runner.Close()

	// A job row left pending by a crash between create and start.
	env := hartleyEnvelope("intake-recovered")
	_, err := store.CreateResearchJob(context.Background(), env.jobRequest())
	require.NoError(t, err)

	source := newScriptedSource(envelopeJSON(t, env))
	consumer := newConsumer(source, testConfig(), store, runner, testLogger())
	done := startConsumer(consumer)

	require.Eventually(t, jobStatusIs(store, "intake-recovered", research.JobCompleted), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(source.committedOffsets()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, stopConsumer(t, consumer, done))
}

func TestConsumerCommitsWhenJobAlreadyRunning(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := storage.NewMemoryStore()
	starter := &stubStarter{err: research.ErrJobAlreadyRunning}

	source := newScriptedSource(envelopeJSON(t, hartleyEnvelope("intake-racing")))
	consumer := newConsumer(source, testConfig(), store, starter, testLogger())
	done := startConsumer(consumer)

	require.Eventually(t, func() bool {
		return len(source.committedOffsets()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, stopConsumer(t, consumer, done))

	job, err := store.GetResearchJob(context.Background(), "intake-racing")
	require.NoError(t, err)
	assert.Equal(t, research.JobPending, job.Status)
}

func TestConsumerLeavesOffsetUncommittedWhenRunnerClosed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := storage.NewMemoryStore()
	runner := research.NewRunner(store, nil, 0, testLogger())
	require.NoError(t, runner.Close())

	source := newScriptedSource(envelopeJSON(t, hartleyEnvelope("intake-stalled")))
	consumer := newConsumer(source, testConfig(), store, runner, testLogger())
	done := startConsumer(consumer)

	select {
	case err := <-done:
		require.ErrorIs(t, err, research.ErrRunnerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on runner failure")
	}

	// The offset stays uncommitted so the redelivery restarts the
	// pending job.
	assert.Empty(t, source.committedOffsets())

	job, err := store.GetResearchJob(context.Background(), "intake-stalled")
	require.NoError(t, err)
	assert.Equal(t, research.JobPending, job.Status)
}

func TestConsumerRetriesTransientCreateFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &flakyCreator{MemoryStore: storage.NewMemoryStore(), failures: 2}
	runner := research.NewRunner(store.MemoryStore, nil, 0, testLogger())
	defer runner.Close()

	source := newScriptedSource(envelopeJSON(t, hartleyEnvelope("intake-flaky")))
	consumer := newConsumer(source, testConfig(), store, runner, testLogger())
	done := startConsumer(consumer)

	require.Eventually(t, jobStatusIs(store, "intake-flaky", research.JobCompleted), 5*time.Second, 25*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(source.committedOffsets()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, stopConsumer(t, consumer, done))
}

func TestConsumerStopsWhenStoreStaysDown(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := testConfig()
	cfg.CreateRetryBudget = 100 * time.Millisecond

	store := &flakyCreator{MemoryStore: storage.NewMemoryStore(), failures: 1 << 30}
	starter := &stubStarter{}

	source := newScriptedSource(envelopeJSON(t, hartleyEnvelope("intake-down")))
	consumer := newConsumer(source, cfg, store, starter, testLogger())
	done := startConsumer(consumer)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create research job")
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop when the store stayed down")
	}

	assert.Empty(t, source.committedOffsets())
	assert.Empty(t, starter.started)
}

func TestConsumerStopsOnContextCancel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := storage.NewMemoryStore()
	starter := &stubStarter{}

	source := newScriptedSource()
	consumer := newConsumer(source, testConfig(), store, starter, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- consumer.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on context cancel")
	}
}
