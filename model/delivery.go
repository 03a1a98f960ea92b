package model

import (
	"time"
)

// DeliveryStatus represents the lifecycle state of one event delivery.
type DeliveryStatus string

const (
	// DeliveryStatusReceived indicates the record was read from a stage topic.
	DeliveryStatusReceived DeliveryStatus = "received"

	// DeliveryStatusProcessing indicates the processor is running.
	DeliveryStatusProcessing DeliveryStatus = "processing"

	// DeliveryStatusFailed indicates the last attempt failed and no disposition was chosen yet.
	DeliveryStatusFailed DeliveryStatus = "failed"

	// DeliveryStatusAcked indicates successful processing.
	DeliveryStatusAcked DeliveryStatus = "acked"

	// DeliveryStatusRetryScheduled indicates the event was forwarded to a retry stage.
	DeliveryStatusRetryScheduled DeliveryStatus = "retry_scheduled"

	// DeliveryStatusDeadLettered indicates the event was forwarded to the dead-letter topic.
	DeliveryStatusDeadLettered DeliveryStatus = "dead_lettered"
)

// IsTerminal reports whether the status ends the delivery on its current stage.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryStatusAcked, DeliveryStatusRetryScheduled, DeliveryStatusDeadLettered:
		return true
	default:
		return false
	}
}

// Failure describes why a processing attempt failed.
type Failure struct {
	Type    string // Go type of the root cause
	Message string // err.Error()
	Stack   string // %+v rendering, with stack frames when available
}

// Delivery is the retry state of one event instance. It is rebuilt from the
// record headers every time the event is read from a stage, so the attempt
// counter survives the hop between topics.
//
// Lifecycle on one stage:
//
//	received → processing → acked
//	                      → failed → retry_scheduled (next stage)
//	                               → dead_lettered
type Delivery struct {
	DeliveryID string `json:"deliveryId"`

	// Stage the record was read from.
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`

	// Where the event was first consumed.
	OriginalTopic     string `json:"originalTopic"`
	OriginalPartition int32  `json:"originalPartition"`
	OriginalOffset    int64  `json:"originalOffset"`

	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"` // failed attempts so far, 0-based
	FirstFailureAt time.Time      `json:"firstFailureAt"`
	LastFailure    Failure        `json:"lastFailure"`
	NextAttemptAt  time.Time      `json:"nextAttemptAt"` // zero means immediately
	NextTopic      string         `json:"nextTopic"`
}

// NewDelivery creates the state for an event read for the first time.
func NewDelivery(deliveryID, topic string, partition int32, offset int64) *Delivery {
	return &Delivery{
		DeliveryID:        deliveryID,
		Topic:             topic,
		Partition:         partition,
		Offset:            offset,
		OriginalTopic:     topic,
		OriginalPartition: partition,
		OriginalOffset:    offset,
		Status:            DeliveryStatusReceived,
	}
}

// AttemptNumber returns the 1-indexed number of the attempt about to be made.
func (d *Delivery) AttemptNumber() int {
	return d.Attempts + 1
}

// IsFirstAttempt reports whether the event never failed before.
func (d *Delivery) IsFirstAttempt() bool {
	return d.Attempts == 0
}

// TimeUntilDue returns how long the stage must hold the record before processing.
func (d *Delivery) TimeUntilDue(now time.Time) time.Duration {
	if d.NextAttemptAt.IsZero() {
		return 0
	}
	wait := d.NextAttemptAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// StartProcessing moves a received delivery into processing.
func (d *Delivery) StartProcessing() error {
	if d.Status.IsTerminal() {
		return ErrDeliveryFinished
	}
	d.Status = DeliveryStatusProcessing
	return nil
}

// MarkAcked records successful processing.
func (d *Delivery) MarkAcked() error {
	if d.Status != DeliveryStatusProcessing {
		return ErrNotProcessing
	}
	d.Status = DeliveryStatusAcked
	return nil
}

// MarkFailed records a failed attempt: the attempt counter grows by one and
// the first failure timestamp is kept from the earliest failure.
func (d *Delivery) MarkFailed(f Failure, now time.Time) error {
	if d.Status != DeliveryStatusProcessing {
		return ErrNotProcessing
	}
	d.Status = DeliveryStatusFailed
	d.Attempts++
	d.LastFailure = f
	if d.FirstFailureAt.IsZero() {
		d.FirstFailureAt = now
	}
	return nil
}

// MarkMalformed records a payload that could not be decoded. The processor
// never ran, so the attempt counter is left alone.
func (d *Delivery) MarkMalformed(f Failure, now time.Time) error {
	if d.Status.IsTerminal() {
		return ErrDeliveryFinished
	}
	d.Status = DeliveryStatusFailed
	d.LastFailure = f
	if d.FirstFailureAt.IsZero() {
		d.FirstFailureAt = now
	}
	return nil
}

// ScheduleRetry records that the event moves to nextTopic and becomes due at dueAt.
func (d *Delivery) ScheduleRetry(nextTopic string, dueAt time.Time) error {
	if d.Status != DeliveryStatusFailed {
		return ErrNotFailed
	}
	d.Status = DeliveryStatusRetryScheduled
	d.NextTopic = nextTopic
	d.NextAttemptAt = dueAt
	return nil
}

// MarkDeadLettered records that the event moves to the dead-letter topic.
func (d *Delivery) MarkDeadLettered(deadLetterTopic string) error {
	if d.Status != DeliveryStatusFailed {
		return ErrNotFailed
	}
	d.Status = DeliveryStatusDeadLettered
	d.NextTopic = deadLetterTopic
	d.NextAttemptAt = time.Time{}
	return nil
}
