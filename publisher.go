package booknotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/booknotify/model"
)

// Publisher turns a book becoming available into one notification event per
// interested user and hands each event to the broker.
//
// Sends are asynchronous. Publish returns as soon as every send was handed to
// the producer; the outcome of each send is observed through its
// PublishOutcome. Failed sends are always logged and counted, and the caller
// decides whether to wait for them (see AwaitAll). The publisher never
// retries: redelivery is the pipeline's job on the consuming side.
type Publisher struct {
	producer Producer
	topic    string
	logger   zerolog.Logger
	metrics  Metrics
	tracer   trace.Tracer
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherProducer: producer for the outgoing events
//   - WithTopic: primary notification topic
//
// Example:
//
//	publisher, err := booknotify.NewPublisher(
//	    booknotify.WithPublisherProducer(producer),
//	    booknotify.WithTopic("book-notifications"),
//	    booknotify.WithPublisherLogger(logger),
//	)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{
		logger:  zerolog.Nop(),
		metrics: NoopMetrics{},
		tracer:  defaultTracer(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.producer == nil {
		return nil, NewError(ErrCodeConfiguration, "Producer is required (use WithPublisherProducer)")
	}
	if p.topic == "" {
		return nil, NewError(ErrCodeConfiguration, "topic is required (use WithTopic)")
	}

	return p, nil
}

// WithPublisherProducer sets the producer.
func WithPublisherProducer(producer Producer) PublisherOption {
	return func(p *Publisher) error {
		if producer == nil {
			return fmt.Errorf("producer cannot be nil")
		}
		p.producer = producer
		return nil
	}
}

// WithTopic sets the topic events are published to.
func WithTopic(topic string) PublisherOption {
	return func(p *Publisher) error {
		if topic == "" {
			return fmt.Errorf("topic cannot be empty")
		}
		p.topic = topic
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger zerolog.Logger) PublisherOption {
	return func(p *Publisher) error {
		p.logger = logger
		return nil
	}
}

// WithPublisherMetrics sets the metrics sink.
func WithPublisherMetrics(metrics Metrics) PublisherOption {
	return func(p *Publisher) error {
		if metrics == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		p.metrics = metrics
		return nil
	}
}

// WithPublisherTracer sets the tracer.
func WithPublisherTracer(tracer trace.Tracer) PublisherOption {
	return func(p *Publisher) error {
		if tracer == nil {
			return fmt.Errorf("tracer cannot be nil")
		}
		p.tracer = tracer
		return nil
	}
}

// PublishOutcome is the pending result of publishing one event.
type PublishOutcome struct {
	Event      model.NotificationEvent
	DeliveryID string
	future     *SendFuture
}

// Done is closed when the broker acknowledged or rejected the event.
func (o *PublishOutcome) Done() <-chan struct{} {
	return o.future.Done()
}

// Wait blocks until the send resolves or ctx ends. A rejected send is
// reported as a PUBLISH_ERROR.
func (o *PublishOutcome) Wait(ctx context.Context) (SendResult, error) {
	res, err := o.future.Wait(ctx)
	if err != nil && !errors.Is(err, ctx.Err()) {
		return res, publishError(o.Event, err)
	}
	return res, err
}

func publishError(event model.NotificationEvent, cause error) error {
	if IsPublish(cause) {
		return cause
	}
	return NewErrorWithCause(ErrCodePublish,
		fmt.Sprintf("failed to send notification for book %d to user %d", event.BookID, event.UserID), cause)
}

// Publish emits one BOOK_AVAILABLE event per subscriber, keyed by bookID so
// that all events of one book stay ordered.
//
// subscribers is treated as a set: duplicates are dropped, first-occurrence
// order is kept. Every event is validated before anything is sent; a
// validation failure sends nothing and returns a VALIDATION_ERROR. Send
// failures never surface through the returned error; they are reported by
// the outcomes.
func (p *Publisher) Publish(ctx context.Context, bookID int64, bookTitle string, subscribers []int64) ([]*PublishOutcome, error) {
	if bookID <= 0 {
		return nil, NewError(ErrCodeValidation, fmt.Sprintf("book id must be positive, got %d", bookID))
	}
	if bookTitle == "" {
		return nil, NewError(ErrCodeValidation, "book title is required")
	}

	userIDs := uniqueIDs(subscribers)

	events := make([]model.NotificationEvent, 0, len(userIDs))
	for _, userID := range userIDs {
		event := model.NewBookAvailableEvent(bookID, bookTitle, userID)
		if err := event.Validate(); err != nil {
			return nil, NewErrorWithCause(ErrCodeValidation,
				fmt.Sprintf("invalid notification for book %d and user %d", bookID, userID), err)
		}
		events = append(events, event)
	}

	if len(events) == 0 {
		p.logger.Info().Int64("book_id", bookID).Msg("No wishlisted users to notify")
		return []*PublishOutcome{}, nil
	}

	outcomes := make([]*PublishOutcome, 0, len(events))
	for _, event := range events {
		outcome, err := p.send(ctx, event)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}

	p.logger.Info().
		Int64("book_id", bookID).
		Str("book_title", bookTitle).
		Int("events", len(outcomes)).
		Str("topic", p.topic).
		Msg("Published availability notifications")

	return outcomes, nil
}

func (p *Publisher) send(ctx context.Context, event model.NotificationEvent) (*PublishOutcome, error) {
	payload, err := model.EncodeEvent(event)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "failed to encode notification", err)
	}

	deliveryID := uuid.NewString()
	ctx, span := p.tracer.Start(ctx, "booknotify.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.kafka.message.key", event.Key()),
			attribute.String("booknotify.delivery_id", deliveryID),
		))

	headers := map[string]string{HeaderDeliveryID: deliveryID}
	injectTraceContext(ctx, headers)

	future := p.producer.Send(ctx, Record{
		Topic:   p.topic,
		Key:     event.Key(),
		Value:   payload,
		Headers: headers,
	})

	future.OnComplete(func(res SendResult, err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "send failed")
			p.metrics.IncPublishFailed(p.topic)
			p.logger.Error().
				Err(err).
				Str("delivery_id", deliveryID).
				Str("topic", p.topic).
				Int64("book_id", event.BookID).
				Int64("user_id", event.UserID).
				Msg("Failed to send notification event")
			return
		}
		p.metrics.IncPublished(p.topic)
		p.logger.Info().
			Str("delivery_id", deliveryID).
			Str("topic", res.Topic).
			Int32("partition", res.Partition).
			Int64("offset", res.Offset).
			Int64("book_id", event.BookID).
			Int64("user_id", event.UserID).
			Msg("Notification event sent")
	})

	return &PublishOutcome{Event: event, DeliveryID: deliveryID, future: future}, nil
}

// AwaitAll waits for every outcome and joins the failures. It returns nil
// when all sends were acknowledged.
func AwaitAll(ctx context.Context, outcomes []*PublishOutcome) error {
	var errs []error
	for _, o := range outcomes {
		if _, err := o.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
