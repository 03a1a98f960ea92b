package booknotify

import (
	"time"

	"github.com/coregx/booknotify/model"
)

// Metrics receives pipeline counters. adapters/prometheus provides the
// Prometheus implementation.
type Metrics interface {
	IncPublished(topic string)
	IncPublishFailed(topic string)
	IncProcessed(topic string)
	IncProcessingFailed(topic string)
	IncRetryScheduled(topic string)
	IncDeadLettered(reason model.DeadLetterReason)
	ObserveProcessingDuration(topic string, d time.Duration)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

// IncPublished implements Metrics.IncPublished as a no-op.
func (NoopMetrics) IncPublished(string) {}

// IncPublishFailed implements Metrics.IncPublishFailed as a no-op.
func (NoopMetrics) IncPublishFailed(string) {}

// IncProcessed implements Metrics.IncProcessed as a no-op.
func (NoopMetrics) IncProcessed(string) {}

// IncProcessingFailed implements Metrics.IncProcessingFailed as a no-op.
func (NoopMetrics) IncProcessingFailed(string) {}

// IncRetryScheduled implements Metrics.IncRetryScheduled as a no-op.
func (NoopMetrics) IncRetryScheduled(string) {}

// IncDeadLettered implements Metrics.IncDeadLettered as a no-op.
func (NoopMetrics) IncDeadLettered(model.DeadLetterReason) {}

// ObserveProcessingDuration implements Metrics.ObserveProcessingDuration as a no-op.
func (NoopMetrics) ObserveProcessingDuration(string, time.Duration) {}
