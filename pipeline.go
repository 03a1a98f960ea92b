package booknotify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/coregx/booknotify/model"
	"github.com/coregx/booknotify/retry"
)

// Pipeline consumes notification events and drives each one through the
// retry stages until it is processed or dead-lettered.
//
// Topology for base topic "book-notifications" and the default policy:
//
//	book-notifications          attempt 1
//	book-notifications-retry-0  attempt 2, held 2s
//	book-notifications-retry-1  attempt 3, held 4s
//	book-notifications-retry-2  attempt 4, held 8s
//	book-notifications-dlt      dead letters
//
// Each stage is consumed independently, so an event waiting on a retry stage
// never holds back fresh events on the primary topic.
//
// Thread safety: Handle and HandleDeadLetter are safe for concurrent use.
// The pipeline keeps no per-event state in memory; it travels in record headers.
type Pipeline struct {
	producer          Producer
	processor         Processor
	deadLetters       DeadLetterHandler
	baseTopic         string
	policy            retry.Policy
	logger            zerolog.Logger
	metrics           Metrics
	clock             Clock
	tracer            trace.Tracer
	newForwardBackOff func() backoff.BackOff
}

// NewPipeline creates a pipeline with the provided options.
//
// Required options:
//   - WithProducer: producer for retry and dead-letter forwards
//   - WithBaseTopic: primary topic name
//
// Optional options:
//   - WithProcessor: notification processor (default: LoggingProcessor)
//   - WithPolicy: retry policy (default: retry.DefaultPolicy())
//   - WithDeadLetterHandler: dead-letter handler (default: LoggingDeadLetterHandler)
//   - WithLogger, WithMetrics, WithClock, WithTracer, WithForwardBackOff
func NewPipeline(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		policy:            retry.DefaultPolicy(),
		logger:            zerolog.Nop(),
		metrics:           NoopMetrics{},
		clock:             SystemClock(),
		tracer:            defaultTracer(),
		newForwardBackOff: defaultForwardBackOff,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply pipeline option", err)
		}
	}

	if p.producer == nil {
		return nil, NewError(ErrCodeConfiguration, "Producer is required (use WithProducer)")
	}
	if p.baseTopic == "" {
		return nil, NewError(ErrCodeConfiguration, "base topic is required (use WithBaseTopic)")
	}
	if p.processor == nil {
		p.processor = NewLoggingProcessor(p.logger, 0)
	}
	if p.deadLetters == nil {
		p.deadLetters = NewLoggingDeadLetterHandler(p.logger)
	}

	return p, nil
}

func defaultForwardBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // retry until the context ends
	return b
}

// BaseTopic returns the primary topic.
func (p *Pipeline) BaseTopic() string {
	return p.baseTopic
}

// Policy returns the retry policy.
func (p *Pipeline) Policy() retry.Policy {
	return p.policy
}

// Topics returns every topic the pipeline consumes: the primary topic, the
// retry stages and the dead-letter topic.
func (p *Pipeline) Topics() []string {
	return append(StageTopics(p.baseTopic, p.policy), DeadLetterTopic(p.baseTopic))
}

// Handle processes one record from the primary topic or a retry stage.
//
// It returns nil once the record reached a terminal state on this stage:
// processed, forwarded to the next retry stage, or forwarded to the
// dead-letter topic. A forward counts only after the broker acknowledged it,
// so a nil return is the single point where the caller may commit the record.
// A non-nil error means the record must stay uncommitted and be redelivered;
// it only happens when ctx ends before the record could be disposed of.
func (p *Pipeline) Handle(ctx context.Context, rec Record) error {
	ctx = extractTraceContext(ctx, rec.Headers)
	ctx, span := p.tracer.Start(ctx, "booknotify.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", rec.Topic),
			attribute.Int("messaging.kafka.partition", int(rec.Partition)),
			attribute.Int64("messaging.kafka.offset", rec.Offset),
			attribute.String("messaging.kafka.message.key", rec.Key),
		))
	defer span.End()

	d, headerErr := deliveryFromRecord(rec)
	span.SetAttributes(
		attribute.String("booknotify.delivery_id", d.DeliveryID),
		attribute.Int("booknotify.attempt", d.AttemptNumber()),
	)
	logger := p.logger.With().
		Str("delivery_id", d.DeliveryID).
		Str("topic", rec.Topic).
		Int32("partition", rec.Partition).
		Int64("offset", rec.Offset).
		Str("key", rec.Key).
		Logger()

	if headerErr != nil {
		return p.rejectMalformed(ctx, span, logger, rec, d,
			NewErrorWithCause(ErrCodeDecode, "unreadable retry headers", headerErr))
	}

	if wait := d.TimeUntilDue(p.clock.Now()); wait > 0 {
		logger.Debug().Dur("delay", wait).Int("attempt", d.AttemptNumber()).Msg("Holding record until its retry is due")
		if err := sleep(ctx, p.clock, wait); err != nil {
			return err
		}
	}

	event, err := model.DecodeEvent(rec.Value)
	if err != nil {
		return p.rejectMalformed(ctx, span, logger, rec, d,
			NewErrorWithCause(ErrCodeDecode, "undecodable notification payload", err))
	}

	logger = logger.With().
		Int64("book_id", event.BookID).
		Int64("user_id", event.UserID).
		Str("event_type", event.EventType.String()).
		Logger()
	received := logger.Info().
		Int("attempt", d.AttemptNumber()).
		Int("max_attempts", p.policy.MaxAttempts)
	if !d.IsFirstAttempt() {
		received = received.
			Str("retry_topic", rec.Topic).
			Time("first_failure_at", d.FirstFailureAt)
	}
	received.Msg("Received notification event")

	if !event.EventType.IsKnown() {
		logger.Warn().Msg("Unknown event type, processing anyway")
	}

	if err := d.StartProcessing(); err != nil {
		return err
	}

	start := p.clock.Now()
	procErr := p.process(ctx, d, event)
	p.metrics.ObserveProcessingDuration(rec.Topic, p.clock.Now().Sub(start))

	if procErr == nil {
		if err := d.MarkAcked(); err != nil {
			return err
		}
		p.metrics.IncProcessed(rec.Topic)
		logger.Info().Int("attempt", d.AttemptNumber()).Msg("Notification processed")
		return nil
	}

	return p.handleFailure(ctx, span, logger, rec, d, procErr)
}

// process runs the processor, turning a panic into a processing error.
func (p *Pipeline) process(ctx context.Context, d *model.Delivery, event model.NotificationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithStack(NewError(ErrCodeProcessing, fmt.Sprintf("processor panicked: %v", r)))
		}
	}()

	snapshot := *d
	return p.processor.Process(ContextWithDelivery(ctx, &snapshot), event)
}

func (p *Pipeline) handleFailure(
	ctx context.Context,
	span trace.Span,
	logger zerolog.Logger,
	rec Record,
	d *model.Delivery,
	procErr error,
) error {
	now := p.clock.Now()
	if err := d.MarkFailed(describeFailure(procErr), now); err != nil {
		return err
	}
	p.metrics.IncProcessingFailed(rec.Topic)
	span.RecordError(procErr)

	if p.policy.ShouldRetry(d.Attempts, procErr) {
		nextTopic := RetryTopic(p.baseTopic, d.Attempts-1)
		delay := p.policy.Delay(d.Attempts + 1)
		if err := d.ScheduleRetry(nextTopic, now.Add(delay)); err != nil {
			return err
		}

		if err := p.forward(ctx, logger, forwardRecord(rec, d)); err != nil {
			span.SetStatus(codes.Error, "retry forward failed")
			return err
		}

		p.metrics.IncRetryScheduled(nextTopic)
		logger.Warn().
			Err(procErr).
			Int("attempt", d.Attempts).
			Int("max_attempts", p.policy.MaxAttempts).
			Str("next_topic", nextTopic).
			Dur("delay", delay).
			Msg("Notification processing failed, retry scheduled")
		return nil
	}

	reason := model.ReasonRetriesExhausted
	if !p.policy.IsRetryable(procErr) {
		reason = model.ReasonNotRetryable
	}
	span.SetStatus(codes.Error, string(reason))
	return p.sendToDeadLetter(ctx, logger, rec, d, reason)
}

// rejectMalformed routes a record that cannot be processed at all straight to
// the dead-letter topic. Retrying cannot fix a schema mismatch.
func (p *Pipeline) rejectMalformed(
	ctx context.Context,
	span trace.Span,
	logger zerolog.Logger,
	rec Record,
	d *model.Delivery,
	cause error,
) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, string(model.ReasonMalformedPayload))
	if err := d.MarkMalformed(describeFailure(cause), p.clock.Now()); err != nil {
		return err
	}
	return p.sendToDeadLetter(ctx, logger, rec, d, model.ReasonMalformedPayload)
}

func (p *Pipeline) sendToDeadLetter(
	ctx context.Context,
	logger zerolog.Logger,
	rec Record,
	d *model.Delivery,
	reason model.DeadLetterReason,
) error {
	dlt := DeadLetterTopic(p.baseTopic)
	if err := d.MarkDeadLettered(dlt); err != nil {
		return err
	}

	out := forwardRecord(rec, d)
	out.Headers[HeaderDeadLetterReason] = string(reason)
	out.Headers[HeaderDeadLetteredAt] = p.clock.Now().UTC().Format(timeLayout)

	if err := p.forward(ctx, logger, out); err != nil {
		return err
	}

	p.metrics.IncDeadLettered(reason)
	logger.Error().
		Str("reason", string(reason)).
		Int("attempt_count", d.Attempts).
		Str("next_topic", dlt).
		Str("exception_message", d.LastFailure.Message).
		Msg("Notification moved to dead-letter topic")
	return nil
}

// forward sends rec and waits for the broker acknowledgement, retrying with
// backoff until it succeeds or ctx ends.
func (p *Pipeline) forward(ctx context.Context, logger zerolog.Logger, rec Record) error {
	injectTraceContext(ctx, rec.Headers)

	operation := func() error {
		_, err := p.producer.Send(ctx, rec).Wait(ctx)
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Str("next_topic", rec.Topic).Dur("retry_in", next).Msg("Failed to forward notification, retrying")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(p.newForwardBackOff(), ctx), notify); err != nil {
		logger.Error().Err(err).Str("next_topic", rec.Topic).Msg("Giving up forwarding notification, record stays uncommitted")
		return NewErrorWithCause(ErrCodePublish, fmt.Sprintf("failed to forward delivery to %s", rec.Topic), err)
	}
	return nil
}

// HandleDeadLetter processes one record from the dead-letter topic. It always
// returns nil: a dead letter is terminal and is committed exactly once.
func (p *Pipeline) HandleDeadLetter(ctx context.Context, rec Record) error {
	ctx = extractTraceContext(ctx, rec.Headers)
	ctx, span := p.tracer.Start(ctx, "booknotify.dead_letter",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", rec.Topic),
			attribute.Int64("messaging.kafka.offset", rec.Offset),
		))
	defer span.End()

	dl := deadLetterFromRecord(rec)
	if dl.DeadLetteredAt.IsZero() {
		dl.DeadLetteredAt = p.clock.Now()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("delivery_id", dl.DeliveryID).
				Interface("panic", r).
				Msg("Dead letter handler panicked")
		}
	}()
	p.deadLetters.OnDeadLetter(ctx, dl)
	return nil
}

// Run consumes the primary topic, every retry stage and the dead-letter topic
// until ctx is canceled or a subscription fails.
//
// Example:
//
//	go func() {
//	    if err := pipeline.Run(ctx, subscriber); err != nil {
//	        logger.Error().Err(err).Msg("pipeline stopped")
//	    }
//	}()
func (p *Pipeline) Run(ctx context.Context, sub Subscriber) error {
	if sub == nil {
		return NewError(ErrCodeConfiguration, "subscriber cannot be nil")
	}

	p.logger.Info().
		Strs("topics", p.Topics()).
		Str("retry_schedule", p.policy.String()).
		Msg("Notification pipeline started")

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range StageTopics(p.baseTopic, p.policy) {
		g.Go(func() error {
			return sub.Subscribe(gctx, topic, p.Handle)
		})
	}
	g.Go(func() error {
		return sub.Subscribe(gctx, DeadLetterTopic(p.baseTopic), p.HandleDeadLetter)
	})

	err := g.Wait()
	p.logger.Info().Err(err).Msg("Notification pipeline stopped")
	return err
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// describeFailure captures type, message and stack context of err.
func describeFailure(err error) model.Failure {
	var st stackTracer
	if !errors.As(err, &st) {
		err = errors.WithStack(err)
	}
	return model.Failure{
		Type:    fmt.Sprintf("%T", errors.Cause(err)),
		Message: err.Error(),
		Stack:   fmt.Sprintf("%+v", err),
	}
}
