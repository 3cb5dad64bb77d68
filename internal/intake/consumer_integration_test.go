package intake

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/rootline-io/rootline/internal/research"
	"github.com/rootline-io/rootline/internal/storage"
)

// TestConsumerIntegration_EndToEnd publishes a mixed batch to a real broker
// and verifies the consumer creates and completes exactly the valid jobs.
func TestConsumerIntegration_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("rootline-intake-test"),
	)
	require.NoError(t, err, "Failed to start kafka container")

	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "Failed to resolve kafka brokers")

	cfg := &Config{
		Brokers:           brokers,
		Topic:             defaultTopic,
		GroupID:           "rootline-intake-it",
		MinBytes:          defaultMinBytes,
		MaxBytes:          defaultMaxBytes,
		MaxWait:           250 * time.Millisecond,
		CreateRetryBudget: 5 * time.Second,
	}
	require.NoError(t, cfg.Validate())

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}

	t.Cleanup(func() { _ = writer.Close() })

	batch := []kafka.Message{
		{Value: []byte(envelopeJSON(t, hartleyEnvelope("intake-it-1")))},
		{Value: []byte("{malformed")},
		{Value: []byte(envelopeJSON(t, hartleyEnvelope("intake-it-2")))},
		{Value: []byte(envelopeJSON(t, hartleyEnvelope("intake-it-1")))}, // redelivery
	}

	// Topic auto-creation races the first produce, so retry until the
	// leader is ready.
	require.Eventually(t, func() bool {
		return writer.WriteMessages(ctx, batch...) == nil
	}, 60*time.Second, 2*time.Second, "Failed to publish intake messages")

	store := storage.NewMemoryStore()
	runner := research.NewRunner(store, nil, 2, testLogger())
	defer runner.Close()

	consumer := NewConsumer(cfg, store, runner, testLogger())
	done := make(chan error, 1)

	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, jobStatusIs(store, "intake-it-1", research.JobCompleted),
		90*time.Second, 250*time.Millisecond, "first job never completed")
	require.Eventually(t, jobStatusIs(store, "intake-it-2", research.JobCompleted),
		30*time.Second, 250*time.Millisecond, "second job never completed")

	jobs, err := store.ListResearchJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "malformed and redelivered messages must not create jobs")

	require.NoError(t, consumer.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop after close")
	}
}
