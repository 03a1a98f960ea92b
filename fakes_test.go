package booknotify

import (
	"context"
	"sync"
	"time"

	"github.com/coregx/booknotify/model"
)

// recordingProducer acknowledges sends synchronously and keeps them.
type recordingProducer struct {
	mu      sync.Mutex
	records []Record
	fail    func(n int, rec Record) error // n is the 1-based send count
	sends   int
}

func (p *recordingProducer) Send(_ context.Context, rec Record) *SendFuture {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sends++
	if p.fail != nil {
		if err := p.fail(p.sends, rec); err != nil {
			return CompletedSendFuture(SendResult{}, err)
		}
	}

	copied := rec
	copied.Headers = make(map[string]string, len(rec.Headers))
	for k, v := range rec.Headers {
		copied.Headers[k] = v
	}
	copied.Offset = int64(len(p.records))
	p.records = append(p.records, copied)
	return CompletedSendFuture(SendResult{Topic: rec.Topic, Offset: copied.Offset}, nil)
}

func (p *recordingProducer) sent() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

func (p *recordingProducer) last() Record {
	recs := p.sent()
	return recs[len(recs)-1]
}

// fakeClock advances only when the pipeline sleeps on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// recordingDeadLetters keeps every dead letter handed to it.
type recordingDeadLetters struct {
	mu      sync.Mutex
	letters []model.DeadLetter
}

func (r *recordingDeadLetters) OnDeadLetter(_ context.Context, dl model.DeadLetter) {
	r.mu.Lock()
	r.letters = append(r.letters, dl)
	r.mu.Unlock()
}

func (r *recordingDeadLetters) all() []model.DeadLetter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.DeadLetter(nil), r.letters...)
}

// countingProcessor fails while fail returns an error for the call number.
type countingProcessor struct {
	mu     sync.Mutex
	calls  int
	events []model.NotificationEvent
	fail   func(call int) error
}

func (p *countingProcessor) Process(_ context.Context, event model.NotificationEvent) error {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.events = append(p.events, event)
	p.mu.Unlock()

	if p.fail != nil {
		return p.fail(call)
	}
	return nil
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// countingMetrics counts pipeline and publisher measurements.
type countingMetrics struct {
	mu             sync.Mutex
	published      int
	publishFailed  int
	processed      int
	failed         int
	retries        map[string]int
	deadLettered   map[model.DeadLetterReason]int
	durationsCount int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		retries:      make(map[string]int),
		deadLettered: make(map[model.DeadLetterReason]int),
	}
}

func (m *countingMetrics) IncPublished(string) {
	m.mu.Lock()
	m.published++
	m.mu.Unlock()
}

func (m *countingMetrics) IncPublishFailed(string) {
	m.mu.Lock()
	m.publishFailed++
	m.mu.Unlock()
}

func (m *countingMetrics) IncProcessed(string) {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *countingMetrics) IncProcessingFailed(string) {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *countingMetrics) IncRetryScheduled(topic string) {
	m.mu.Lock()
	m.retries[topic]++
	m.mu.Unlock()
}

func (m *countingMetrics) IncDeadLettered(reason model.DeadLetterReason) {
	m.mu.Lock()
	m.deadLettered[reason]++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveProcessingDuration(string, time.Duration) {
	m.mu.Lock()
	m.durationsCount++
	m.mu.Unlock()
}
