package model

import (
	"time"
)

// DeadLetterReason explains why an event left the retry stages.
type DeadLetterReason string

const (
	// ReasonRetriesExhausted means every allowed attempt failed.
	ReasonRetriesExhausted DeadLetterReason = "RETRIES_EXHAUSTED"

	// ReasonNotRetryable means the failure was classified as permanent.
	ReasonNotRetryable DeadLetterReason = "NOT_RETRYABLE"

	// ReasonMalformedPayload means the record could not be decoded into an event.
	ReasonMalformedPayload DeadLetterReason = "MALFORMED_PAYLOAD"
)

// DeadLetter is an event that reached the dead-letter topic together with
// the full failure context an operator needs to replay it by hand.
//
// Business logic methods:
//   - Resolve: Mark the entry as handled by an operator
//   - GetAge: Time since the event was dead-lettered
//   - IsOld: Check if the entry needs attention
type DeadLetter struct {
	ID         int64  `json:"id" db:"id"`
	DeliveryID string `json:"deliveryId" db:"delivery_id"`
	Key        string `json:"key" db:"record_key"`

	// Payload holds the raw record value. Event is nil when the payload did not decode.
	Payload []byte             `json:"payload" db:"payload"`
	Event   *NotificationEvent `json:"event,omitempty" db:"-"`

	// Failure information
	Reason           DeadLetterReason `json:"reason" db:"reason"`
	AttemptCount     int              `json:"attemptCount" db:"attempt_count"`
	ExceptionType    string           `json:"exceptionType" db:"exception_type"`
	ExceptionMessage string           `json:"exceptionMessage" db:"exception_message"`
	StackTrace       string           `json:"stackTrace" db:"stack_trace"`

	// Where the event came from and where it failed last
	OriginalTopic     string `json:"originalTopic" db:"original_topic"`
	OriginalPartition int32  `json:"originalPartition" db:"original_partition"`
	OriginalOffset    int64  `json:"originalOffset" db:"original_offset"`
	FailedTopic       string `json:"failedTopic" db:"failed_topic"`

	// Position in the dead-letter topic
	DeadLetterTopic     string `json:"deadLetterTopic" db:"dead_letter_topic"`
	DeadLetterPartition int32  `json:"deadLetterPartition" db:"dead_letter_partition"`
	DeadLetterOffset    int64  `json:"deadLetterOffset" db:"dead_letter_offset"`

	// Timing information
	FirstFailureAt time.Time `json:"firstFailureAt" db:"first_failure_at"`
	DeadLetteredAt time.Time `json:"deadLetteredAt" db:"dead_lettered_at"`

	// Lifecycle
	IsResolved     bool       `json:"isResolved" db:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolvedAt" db:"resolved_at"`
	ResolvedBy     string     `json:"resolvedBy" db:"resolved_by"`
	ResolutionNote string     `json:"resolutionNote" db:"resolution_note"`
}

// Resolve marks the entry as handled by an operator, typically after a
// manual replay or after deciding the failure can be ignored.
func (d *DeadLetter) Resolve(resolvedBy, note string, now time.Time) {
	d.IsResolved = true
	d.ResolvedAt = &now
	d.ResolvedBy = resolvedBy
	d.ResolutionNote = note
}

// GetAge returns how long the event has been dead-lettered.
func (d *DeadLetter) GetAge(now time.Time) time.Duration {
	return now.Sub(d.DeadLetteredAt)
}

// IsOld checks if the entry has waited longer than threshold.
func (d *DeadLetter) IsOld(now time.Time, threshold time.Duration) bool {
	return d.GetAge(now) > threshold
}
