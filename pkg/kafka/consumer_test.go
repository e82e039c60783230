package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventMessage(t *testing.T, topic, eventType string, offset int64) kafka.Message {
	t.Helper()
	event, err := NewEvent(eventType, "payment", "pp_1", map[string]string{"status": "completed"})
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Offset: offset, Value: raw}
}

func newTestConsumer(t *testing.T, cfg ConsumerConfig, handler Handler, msgs []kafka.Message, opts ...ConsumerOption) (*Consumer, *fakeReader, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reader := &fakeReader{msgs: msgs, cancel: cancel}
	opts = append(opts, WithReader(reader))
	return NewConsumer(cfg, handler, testLogger(), opts...), reader, ctx
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	topic := "test.consumer.ok"
	cfg := ConsumerConfig{Topic: topic, GroupID: "g1"}

	var seen []string
	handler := func(_ context.Context, e *Event) error {
		seen = append(seen, e.EventType)
		return nil
	}
	msgs := []kafka.Message{
		eventMessage(t, topic, "payment.status", 1),
		eventMessage(t, topic, "payment.status", 2),
	}
	c, reader, ctx := newTestConsumer(t, cfg, handler, msgs)

	require.NoError(t, c.Start(ctx))

	assert.Equal(t, []string{"payment.status", "payment.status"}, seen)
	require.Len(t, reader.committed, 2)
	assert.Equal(t, int64(2), reader.committed[1].Offset)
	assert.Equal(t, 1, reader.closed)
	assert.Equal(t, float64(2), testutil.ToFloat64(ConsumerMessagesProcessed.WithLabelValues(topic, "g1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(ConsumerMessagesReceived.WithLabelValues(topic, "g1")))
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	topic := "test.consumer.dlq"
	cfg := ConsumerConfig{Topic: topic, GroupID: "g1", MaxRetries: 3, RetryBackoff: time.Millisecond}

	calls := 0
	handler := func(context.Context, *Event) error {
		calls++
		return errors.New("backend down")
	}
	dlq := &fakeDLQ{}
	c, reader, ctx := newTestConsumer(t, cfg, handler, []kafka.Message{eventMessage(t, topic, "payment.status", 7)}, WithDLQ(dlq))

	require.NoError(t, c.Start(ctx))

	assert.Equal(t, 3, calls)
	require.Len(t, dlq.msgs, 1)
	assert.EqualError(t, dlq.errs[0], "backend down")
	assert.Len(t, reader.committed, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerMessagesFailed.WithLabelValues(topic, "g1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerDLQPublished.WithLabelValues(topic, "g1")))
}

func TestConsumer_SucceedsOnRetry(t *testing.T) {
	topic := "test.consumer.retry"
	cfg := ConsumerConfig{Topic: topic, GroupID: "g1", MaxRetries: 3, RetryBackoff: time.Millisecond}

	calls := 0
	handler := func(context.Context, *Event) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}
	dlq := &fakeDLQ{}
	c, reader, ctx := newTestConsumer(t, cfg, handler, []kafka.Message{eventMessage(t, topic, "payment.status", 1)}, WithDLQ(dlq))

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, 2, calls)
	assert.Empty(t, dlq.msgs)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_UndecodableMessageIsSkipped(t *testing.T) {
	topic := "test.consumer.bad"
	cfg := ConsumerConfig{Topic: topic, GroupID: "g1"}

	called := false
	handler := func(context.Context, *Event) error {
		called = true
		return nil
	}
	dlq := &fakeDLQ{}
	bad := kafka.Message{Topic: topic, Offset: 3, Value: []byte("{nope")}
	c, reader, ctx := newTestConsumer(t, cfg, handler, []kafka.Message{bad}, WithDLQ(dlq))

	require.NoError(t, c.Start(ctx))
	assert.False(t, called)
	assert.Len(t, dlq.msgs, 1)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_CancelDuringRetryDoesNotCommit(t *testing.T) {
	topic := "test.consumer.cancel"
	cfg := ConsumerConfig{Topic: topic, GroupID: "g1", MaxRetries: 3, RetryBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{msgs: []kafka.Message{eventMessage(t, topic, "payment.status", 1)}, cancel: cancel}
	handler := func(context.Context, *Event) error {
		cancel()
		return errors.New("fail")
	}
	c := NewConsumer(cfg, handler, testLogger(), WithReader(reader))

	require.NoError(t, c.Start(ctx))
	assert.Empty(t, reader.committed)
	assert.Equal(t, 1, reader.closed)
}

func TestConsumer_CloseIsIdempotent(t *testing.T) {
	reader := &fakeReader{cancel: func() {}}
	c := NewConsumer(ConsumerConfig{Topic: "t"}, nil, testLogger(), WithReader(reader))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, reader.closed)
}
