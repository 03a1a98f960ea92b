package booknotify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/coregx/booknotify/model"
)

// Processor performs the business action for one notification event.
// Any returned error counts as a failed attempt.
type Processor interface {
	Process(ctx context.Context, event model.NotificationEvent) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, event model.NotificationEvent) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, event model.NotificationEvent) error {
	return f(ctx, event)
}

// LoggingProcessor is the production processor. Delivering to end users
// (email, push, SMS) is not implemented; the notification is logged as sent.
type LoggingProcessor struct {
	logger      zerolog.Logger
	sendLatency time.Duration
}

// NewLoggingProcessor creates a LoggingProcessor. sendLatency simulates the
// time a real delivery channel would take and may be zero.
func NewLoggingProcessor(logger zerolog.Logger, sendLatency time.Duration) *LoggingProcessor {
	return &LoggingProcessor{logger: logger, sendLatency: sendLatency}
}

// Process logs the prepared notification and reports it as sent.
func (p *LoggingProcessor) Process(ctx context.Context, event model.NotificationEvent) error {
	p.logger.Info().
		Int64("user_id", event.UserID).
		Int64("book_id", event.BookID).
		Str("event_type", event.EventType.String()).
		Str("notification", model.BookAvailableMessage(event.BookTitle)).
		Str("message", event.Message).
		Msg("Notification prepared")

	if p.sendLatency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.sendLatency):
		}
	}

	p.logger.Info().
		Int64("user_id", event.UserID).
		Int64("book_id", event.BookID).
		Msg("Notification successfully sent to user")
	return nil
}

// FailureMode selects how a FailureInjector fails.
type FailureMode string

const (
	// FailNever passes every call through.
	FailNever FailureMode = "never"

	// FailAlways fails every call after the wrapped processor ran.
	FailAlways FailureMode = "always"

	// FailFirstN fails the first N calls of each delivery, then succeeds.
	FailFirstN FailureMode = "first-n"
)

// ParseFailureMode maps a configuration value to a FailureMode.
func ParseFailureMode(s string) (FailureMode, error) {
	switch mode := FailureMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "", "none", FailNever:
		return FailNever, nil
	case FailAlways, FailFirstN:
		return mode, nil
	default:
		return "", NewError(ErrCodeConfiguration, fmt.Sprintf("unknown failure mode %q", s))
	}
}

// ErrSimulatedFailure is returned by a FailureInjector when it fails a call.
var ErrSimulatedFailure = errors.New("simulated failure for retry")

// FailureInjector wraps a processor and fails calls on purpose so the retry
// stages and the dead-letter path can be exercised end to end.
type FailureInjector struct {
	next        Processor
	mode        FailureMode
	limit       int
	maxAttempts int

	mu    sync.Mutex
	calls map[string]int
}

// FailureInjectorOption configures a FailureInjector.
type FailureInjectorOption func(*FailureInjector)

// WithMaxAttempts sets the attempts a delivery gets before it is
// dead-lettered. FailFirstN forgets a delivery on its last attempt.
func WithMaxAttempts(n int) FailureInjectorOption {
	return func(f *FailureInjector) { f.maxAttempts = n }
}

// NewFailureInjector wraps next. limit is only used with FailFirstN.
func NewFailureInjector(next Processor, mode FailureMode, limit int, opts ...FailureInjectorOption) (*FailureInjector, error) {
	if next == nil {
		return nil, NewError(ErrCodeConfiguration, "processor cannot be nil")
	}
	if mode == FailFirstN && limit < 0 {
		return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("failure limit must be >= 0, got %d", limit))
	}
	f := &FailureInjector{
		next:  next,
		mode:  mode,
		limit: limit,
		calls: make(map[string]int),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Process runs the wrapped processor and then applies the failure mode.
func (f *FailureInjector) Process(ctx context.Context, event model.NotificationEvent) error {
	if err := f.next.Process(ctx, event); err != nil {
		return err
	}

	switch f.mode {
	case FailAlways:
		return errors.WithStack(ErrSimulatedFailure)
	case FailFirstN:
		key := injectionKey(ctx, event)
		f.mu.Lock()
		f.calls[key]++
		n := f.calls[key]
		if n > f.limit || f.onLastAttempt(ctx) {
			delete(f.calls, key)
		}
		f.mu.Unlock()
		if n <= f.limit {
			return errors.Wrapf(ErrSimulatedFailure, "call %d of %d", n, f.limit)
		}
	}
	return nil
}

// onLastAttempt reports whether the delivery in ctx will not be retried again.
func (f *FailureInjector) onLastAttempt(ctx context.Context) bool {
	if f.maxAttempts <= 0 {
		return false
	}
	d, ok := DeliveryFromContext(ctx)
	return ok && d.AttemptNumber() >= f.maxAttempts
}

func injectionKey(ctx context.Context, event model.NotificationEvent) string {
	if d, ok := DeliveryFromContext(ctx); ok {
		return d.DeliveryID
	}
	return fmt.Sprintf("%d/%d", event.BookID, event.UserID)
}

type deliveryContextKey struct{}

// ContextWithDelivery attaches the delivery state to ctx. The pipeline does
// this before calling the processor.
func ContextWithDelivery(ctx context.Context, d *model.Delivery) context.Context {
	return context.WithValue(ctx, deliveryContextKey{}, d)
}

// DeliveryFromContext returns the delivery being processed, if any.
func DeliveryFromContext(ctx context.Context) (*model.Delivery, bool) {
	d, ok := ctx.Value(deliveryContextKey{}).(*model.Delivery)
	return d, ok && d != nil
}
