package booknotify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/booknotify/model"
)

func newTestPublisher(t *testing.T, producer Producer, metrics Metrics) *Publisher {
	t.Helper()
	p, err := NewPublisher(
		WithPublisherProducer(producer),
		WithTopic(testTopic),
		WithPublisherMetrics(metrics),
	)
	require.NoError(t, err)
	return p
}

func TestNewPublisher_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts []PublisherOption
	}{
		{name: "missing producer", opts: []PublisherOption{WithTopic(testTopic)}},
		{name: "missing topic", opts: []PublisherOption{WithPublisherProducer(&recordingProducer{})}},
		{name: "empty topic", opts: []PublisherOption{WithPublisherProducer(&recordingProducer{}), WithTopic("")}},
		{name: "nil metrics", opts: []PublisherOption{WithPublisherProducer(&recordingProducer{}), WithTopic(testTopic), WithPublisherMetrics(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPublisher(tt.opts...)
			assert.Nil(t, p)
			assert.Error(t, err)
		})
	}
}

func TestPublisher_PublishOneEventPerSubscriber(t *testing.T) {
	producer := &recordingProducer{}
	metrics := newCountingMetrics()
	p := newTestPublisher(t, producer, metrics)
	ctx := context.Background()

	outcomes, err := p.Publish(ctx, 42, "Dune", []int64{7, 8, 9})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	require.NoError(t, AwaitAll(ctx, outcomes))

	sent := producer.sent()
	require.Len(t, sent, 3)
	for i, rec := range sent {
		assert.Equal(t, testTopic, rec.Topic)
		assert.Equal(t, "42", rec.Key)
		assert.Equal(t, outcomes[i].DeliveryID, rec.Header(HeaderDeliveryID))

		event, err := model.DecodeEvent(rec.Value)
		require.NoError(t, err)
		assert.Equal(t, int64(42), event.BookID)
		assert.Equal(t, "Dune", event.BookTitle)
		assert.Equal(t, []int64{7, 8, 9}[i], event.UserID)
		assert.Equal(t, model.EventTypeBookAvailable, event.EventType)
		assert.Equal(t, "Book 'Dune' is now available", event.Message)
	}
	assert.Equal(t, 3, metrics.published)
}

func TestPublisher_DeduplicatesSubscribers(t *testing.T) {
	producer := &recordingProducer{}
	p := newTestPublisher(t, producer, NoopMetrics{})

	outcomes, err := p.Publish(context.Background(), 42, "Dune", []int64{9, 7, 9, 7, 8})
	require.NoError(t, err)

	var users []int64
	for _, o := range outcomes {
		users = append(users, o.Event.UserID)
	}
	assert.Equal(t, []int64{9, 7, 8}, users)
	assert.Len(t, producer.sent(), 3)
}

func TestPublisher_NoSubscribers(t *testing.T) {
	producer := &recordingProducer{}
	p := newTestPublisher(t, producer, NoopMetrics{})

	outcomes, err := p.Publish(context.Background(), 42, "Dune", nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, producer.sent())
	assert.NoError(t, AwaitAll(context.Background(), outcomes))
}

func TestPublisher_InvalidInputSendsNothing(t *testing.T) {
	tests := []struct {
		name        string
		bookID      int64
		title       string
		subscribers []int64
	}{
		{name: "zero book id", bookID: 0, title: "Dune", subscribers: []int64{7}},
		{name: "negative book id", bookID: -1, title: "Dune", subscribers: []int64{7}},
		{name: "empty title", bookID: 42, title: "", subscribers: []int64{7}},
		{name: "invalid user among valid ones", bookID: 42, title: "Dune", subscribers: []int64{7, 0, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &recordingProducer{}
			p := newTestPublisher(t, producer, NoopMetrics{})

			outcomes, err := p.Publish(context.Background(), tt.bookID, tt.title, tt.subscribers)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Empty(t, outcomes)
			assert.Empty(t, producer.sent())
		})
	}
}

func TestPublisher_SendFailureIsReportedThroughOutcome(t *testing.T) {
	brokerErr := errors.New("leader not available")
	producer := &recordingProducer{fail: func(_ int, rec Record) error {
		event, _ := model.DecodeEvent(rec.Value)
		if event.UserID == 8 {
			return brokerErr
		}
		return nil
	}}
	metrics := newCountingMetrics()
	p := newTestPublisher(t, producer, metrics)
	ctx := context.Background()

	outcomes, err := p.Publish(ctx, 42, "Dune", []int64{7, 8, 9})
	require.NoError(t, err, "send failures do not fail Publish")
	require.Len(t, outcomes, 3)

	_, err = outcomes[1].Wait(ctx)
	require.Error(t, err)
	assert.True(t, IsPublish(err))
	assert.ErrorIs(t, err, brokerErr)

	err = AwaitAll(ctx, outcomes)
	require.Error(t, err)
	assert.ErrorIs(t, err, brokerErr)

	assert.Equal(t, 2, metrics.published)
	assert.Equal(t, 1, metrics.publishFailed)
	assert.Len(t, producer.sent(), 2)
}

func TestPublishOutcome_WaitHonorsContext(t *testing.T) {
	future, complete := NewSendFuture()
	o := &PublishOutcome{future: future}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := o.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsPublish(err))

	complete(SendResult{Offset: 3}, nil)
	<-o.Done()
	res, err := o.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Offset)
}

func TestPublisher_SetsDeliveryIDHeader(t *testing.T) {
	producer := &recordingProducer{}
	p := newTestPublisher(t, producer, NoopMetrics{})

	_, err := p.Publish(context.Background(), 42, "Dune", []int64{7})
	require.NoError(t, err)

	rec := producer.last()
	_, err = uuid.Parse(rec.Header(HeaderDeliveryID))
	assert.NoError(t, err)
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []int64{}, uniqueIDs(nil))
	assert.Equal(t, []int64{3, 1, 2}, uniqueIDs([]int64{3, 1, 3, 2, 1}))
}
