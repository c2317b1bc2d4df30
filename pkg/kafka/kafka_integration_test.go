//go:build integration

package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/invoice-anomaly/pkg/kafka"
	"github.com/bibbank/invoice-anomaly/pkg/testutil"
)

func TestProducerConsumerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	kc := testutil.NewKafkaContainer(ctx, t)
	cfg := kafka.Config{Brokers: kc.Brokers, ConsumerGroup: "anomaly-it"}

	producer, err := kafka.NewProducer(cfg)
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, producer.Publish(ctx, "invoice.batches", kafka.Message{
		Key:     []byte("batch-1"),
		Value:   []byte(`{"invoices":[]}`),
		Headers: map[string]string{"tenant_id": testutil.TestTenantID.String()},
	}))

	received := make(chan kafka.Message, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	consumer, err := kafka.NewConsumer(cfg, "invoice.batches", func(_ context.Context, msg kafka.Message) error {
		received <- msg
		stop()
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer consumer.Close()

	require.NoError(t, consumer.Start(consumeCtx))

	select {
	case msg := <-received:
		assert.Equal(t, "batch-1", string(msg.Key))
		assert.Equal(t, testutil.TestTenantID.String(), msg.Headers["tenant_id"])
	default:
		t.Fatal("no message consumed")
	}
}
