// Package prometheus implements booknotify.Metrics with Prometheus collectors.
package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/coregx/booknotify"
	"github.com/coregx/booknotify/model"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "booknotify"

var (
	_ booknotify.Metrics = (*Metrics)(nil)
	_ booknotify.Alerter = (*Metrics)(nil)
)

// Metrics holds the publisher and pipeline collectors.
type Metrics struct {
	// Publisher metrics
	EventsPublished *prometheus.CounterVec // labels: topic
	PublishErrors   *prometheus.CounterVec // labels: topic

	// Pipeline metrics
	EventsProcessed    *prometheus.CounterVec   // labels: topic
	ProcessingFailures *prometheus.CounterVec   // labels: topic
	RetriesScheduled   *prometheus.CounterVec   // labels: topic (the retry stage)
	DeadLettered       *prometheus.CounterVec   // labels: reason
	ProcessingTime     *prometheus.HistogramVec // labels: topic

	// Alerting
	LastDeadLetter *prometheus.GaugeVec // labels: original_topic, reason
}

// New registers the collectors with reg. Use prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of notification events acknowledged by the broker",
		}, []string{"topic"}),
		PublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of notification events the broker rejected",
		}, []string{"topic"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of notification events processed successfully",
		}, []string{"topic"}),
		ProcessingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_failures_total",
			Help:      "Total number of failed processing attempts",
		}, []string{"topic"}),
		RetriesScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Total number of events forwarded to a retry stage",
		}, []string{"topic"}),
		DeadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Total number of events forwarded to the dead-letter topic",
		}, []string{"reason"}),
		ProcessingTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent in the notification processor",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		LastDeadLetter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dead_letter_last_timestamp_seconds",
			Help:      "Unix time of the most recent dead letter handed to the alert hook",
		}, []string{"original_topic", "reason"}),
	}
}

func (m *Metrics) IncPublished(topic string) {
	m.EventsPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncPublishFailed(topic string) {
	m.PublishErrors.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncProcessed(topic string) {
	m.EventsProcessed.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncProcessingFailed(topic string) {
	m.ProcessingFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncRetryScheduled(topic string) {
	m.RetriesScheduled.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncDeadLettered(reason model.DeadLetterReason) {
	m.DeadLettered.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) ObserveProcessingDuration(topic string, d time.Duration) {
	m.ProcessingTime.WithLabelValues(topic).Observe(d.Seconds())
}

// Alert records the dead letter on a gauge that alert rules can watch, e.g.
// time() - booknotify_dead_letter_last_timestamp_seconds < 300.
func (m *Metrics) Alert(_ context.Context, dl model.DeadLetter) error {
	at := dl.DeadLetteredAt
	if at.IsZero() {
		at = time.Now()
	}
	m.LastDeadLetter.WithLabelValues(dl.OriginalTopic, string(dl.Reason)).Set(float64(at.Unix()))
	return nil
}
