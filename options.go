package booknotify

import (
	"fmt"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/booknotify/retry"
)

// Option is a function that configures a Pipeline.
//
// Example:
//
//	pipeline, err := booknotify.NewPipeline(
//	    booknotify.WithProducer(producer),
//	    booknotify.WithBaseTopic("book-notifications"),
//	    booknotify.WithProcessor(processor),
//	    booknotify.WithLogger(logger),
//	)
type Option func(*Pipeline) error

// WithProducer sets the producer used to forward events to retry stages and
// to the dead-letter topic.
//
// This is a required option for NewPipeline.
func WithProducer(producer Producer) Option {
	return func(p *Pipeline) error {
		if producer == nil {
			return fmt.Errorf("producer cannot be nil")
		}
		p.producer = producer
		return nil
	}
}

// WithBaseTopic sets the primary topic. Retry stages and the dead-letter
// topic derive their names from it.
//
// This is a required option for NewPipeline.
func WithBaseTopic(topic string) Option {
	return func(p *Pipeline) error {
		if topic == "" {
			return fmt.Errorf("base topic cannot be empty")
		}
		p.baseTopic = topic
		return nil
	}
}

// WithProcessor sets the notification processor.
// Optional: defaults to a LoggingProcessor using the pipeline logger.
func WithProcessor(processor Processor) Option {
	return func(p *Pipeline) error {
		if processor == nil {
			return fmt.Errorf("processor cannot be nil")
		}
		p.processor = processor
		return nil
	}
}

// WithPolicy sets the retry policy.
// Optional: defaults to retry.DefaultPolicy() (4 attempts, 2s → 4s → 8s, max 10s).
func WithPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("invalid retry policy: %w", err)
		}
		p.policy = policy
		return nil
	}
}

// WithDeadLetterHandler sets the handler invoked for records on the dead-letter topic.
// Optional: defaults to a LoggingDeadLetterHandler without hooks.
func WithDeadLetterHandler(handler DeadLetterHandler) Option {
	return func(p *Pipeline) error {
		if handler == nil {
			return fmt.Errorf("dead letter handler cannot be nil")
		}
		p.deadLetters = handler
		return nil
	}
}

// WithLogger sets the logger. Optional: defaults to zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink. Optional: defaults to NoopMetrics.
func WithMetrics(metrics Metrics) Option {
	return func(p *Pipeline) error {
		if metrics == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		p.metrics = metrics
		return nil
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(p *Pipeline) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		p.clock = clock
		return nil
	}
}

// WithTracer sets the tracer. Optional: defaults to the global otel tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) error {
		if tracer == nil {
			return fmt.Errorf("tracer cannot be nil")
		}
		p.tracer = tracer
		return nil
	}
}

// WithForwardBackOff sets the backoff used while a forward to the next topic
// keeps failing. The factory is called once per forward. Forwarding retries
// until the backoff stops or the context ends.
func WithForwardBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Pipeline) error {
		if newBackOff == nil {
			return fmt.Errorf("backoff factory cannot be nil")
		}
		p.newForwardBackOff = newBackOff
		return nil
	}
}
