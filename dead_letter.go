package booknotify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/coregx/booknotify/model"
)

// DeadLetterHandler receives every event that reached the dead-letter topic.
// It is the terminal step: nothing it does feeds back into the retry stages.
type DeadLetterHandler interface {
	OnDeadLetter(ctx context.Context, dl model.DeadLetter)
}

// Alerter notifies an external monitoring system about a dead letter.
// No implementation is installed by default.
type Alerter interface {
	Alert(ctx context.Context, dl model.DeadLetter) error
}

// NoOpDeadLetterHandler ignores dead letters.
type NoOpDeadLetterHandler struct{}

// OnDeadLetter does nothing.
func (NoOpDeadLetterHandler) OnDeadLetter(_ context.Context, _ model.DeadLetter) {}

// LoggingDeadLetterHandler logs each dead letter at error level with the
// full failure context, flagged for manual intervention.
type LoggingDeadLetterHandler struct {
	logger  zerolog.Logger
	store   DeadLetterStore
	alerter Alerter
}

// DeadLetterHandlerOption configures a LoggingDeadLetterHandler.
type DeadLetterHandlerOption func(*LoggingDeadLetterHandler)

// WithPersistHook installs a store that receives every dead letter after it was logged.
func WithPersistHook(store DeadLetterStore) DeadLetterHandlerOption {
	return func(h *LoggingDeadLetterHandler) {
		h.store = store
	}
}

// WithAlertHook installs an alerter that receives every dead letter after it was logged.
func WithAlertHook(alerter Alerter) DeadLetterHandlerOption {
	return func(h *LoggingDeadLetterHandler) {
		h.alerter = alerter
	}
}

// NewLoggingDeadLetterHandler creates the default dead-letter handler.
func NewLoggingDeadLetterHandler(logger zerolog.Logger, opts ...DeadLetterHandlerOption) *LoggingDeadLetterHandler {
	h := &LoggingDeadLetterHandler{logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnDeadLetter logs the terminal failure and runs the optional hooks.
// Hook failures are logged and otherwise ignored.
func (h *LoggingDeadLetterHandler) OnDeadLetter(ctx context.Context, dl model.DeadLetter) {
	entry := h.logger.Error().
		Str("delivery_id", dl.DeliveryID).
		Str("dlt_topic", dl.DeadLetterTopic).
		Int32("dlt_partition", dl.DeadLetterPartition).
		Int64("dlt_offset", dl.DeadLetterOffset).
		Str("original_topic", dl.OriginalTopic).
		Int32("original_partition", dl.OriginalPartition).
		Int64("original_offset", dl.OriginalOffset).
		Str("failed_topic", dl.FailedTopic).
		Str("key", dl.Key).
		Str("reason", string(dl.Reason)).
		Int("attempt_count", dl.AttemptCount).
		Str("exception_type", dl.ExceptionType).
		Str("exception_message", dl.ExceptionMessage).
		Str("exception_stacktrace", dl.StackTrace).
		Time("first_failure_at", dl.FirstFailureAt).
		Time("dead_lettered_at", dl.DeadLetteredAt).
		Bool("requires_manual_intervention", true).
		Str("action", "review the failure, fix the root cause, replay the event manually")

	if dl.Event != nil {
		entry = entry.
			Int64("book_id", dl.Event.BookID).
			Str("book_title", dl.Event.BookTitle).
			Int64("user_id", dl.Event.UserID).
			Str("event_type", dl.Event.EventType.String())
	} else {
		entry = entry.Bytes("payload", dl.Payload)
	}
	entry.Msg("Dead letter received: manual intervention required")

	if h.store != nil {
		if err := h.store.Persist(ctx, dl); err != nil {
			h.logger.Error().Err(err).Str("delivery_id", dl.DeliveryID).Msg("Failed to persist dead letter")
		}
	}
	if h.alerter != nil {
		if err := h.alerter.Alert(ctx, dl); err != nil {
			h.logger.Error().Err(err).Str("delivery_id", dl.DeliveryID).Msg("Failed to send dead letter alert")
		}
	}

	h.logger.Warn().
		Str("delivery_id", dl.DeliveryID).
		Msg("Dead letter logged, manual intervention may be required")
}
