// Package memory provides an in-process broker implementing
// booknotify.Producer and booknotify.Subscriber.
//
// Each topic is a single ordered log with one committed offset, which is
// enough for tests, demos and single-binary deployments. Nothing is durable.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coregx/booknotify"
)

// SendHook can fail a send on purpose. It is called for every record before
// it is appended; a non-nil error rejects the send.
type SendHook func(rec booknotify.Record) error

// Broker is an in-memory log-structured broker.
type Broker struct {
	mu       sync.Mutex
	topics   map[string]*topicLog
	sendHook SendHook
	now      func() time.Time
}

type topicLog struct {
	records   []booknotify.Record
	committed int64 // next offset to deliver
	notify    chan struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topicLog),
		now:    time.Now,
	}
}

// SetSendHook installs or clears (nil) the send failure hook.
func (b *Broker) SetSendHook(hook SendHook) {
	b.mu.Lock()
	b.sendHook = hook
	b.mu.Unlock()
}

func (b *Broker) topic(name string) *topicLog {
	t, ok := b.topics[name]
	if !ok {
		t = &topicLog{notify: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

// Send appends rec to its topic. The returned future is already resolved.
func (b *Broker) Send(ctx context.Context, rec booknotify.Record) *booknotify.SendFuture {
	if err := ctx.Err(); err != nil {
		return booknotify.CompletedSendFuture(booknotify.SendResult{}, err)
	}
	if rec.Topic == "" {
		return booknotify.CompletedSendFuture(booknotify.SendResult{}, errors.New("record topic is empty"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sendHook != nil {
		if err := b.sendHook(rec); err != nil {
			return booknotify.CompletedSendFuture(booknotify.SendResult{}, err)
		}
	}

	t := b.topic(rec.Topic)
	stored := rec
	stored.Partition = 0
	stored.Offset = int64(len(t.records))
	stored.Timestamp = b.now()
	stored.Headers = make(map[string]string, len(rec.Headers))
	for k, v := range rec.Headers {
		stored.Headers[k] = v
	}
	stored.Value = append([]byte(nil), rec.Value...)
	t.records = append(t.records, stored)

	close(t.notify)
	t.notify = make(chan struct{})

	return booknotify.CompletedSendFuture(booknotify.SendResult{
		Topic:     stored.Topic,
		Partition: stored.Partition,
		Offset:    stored.Offset,
	}, nil)
}

// Subscribe delivers the records of topic to handler in order, starting at
// the committed offset, until ctx is done. A record is committed only after
// the handler returned nil. A handler error stops the subscription and leaves
// the record uncommitted, so the next Subscribe starts with it again.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler booknotify.HandlerFunc) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	for {
		rec, ok, wait := b.next(topic)
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-wait:
				continue
			}
		}

		if err := handler(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		b.commit(topic, rec.Offset)
	}
}

func (b *Broker) next(topic string) (booknotify.Record, bool, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(topic)
	if t.committed >= int64(len(t.records)) {
		return booknotify.Record{}, false, t.notify
	}
	return t.records[t.committed], true, nil
}

func (b *Broker) commit(topic string, offset int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(topic)
	if offset+1 > t.committed {
		t.committed = offset + 1
	}
}

// Records returns a copy of every record ever sent to topic.
func (b *Broker) Records(topic string) []booknotify.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topic]
	if !ok {
		return nil
	}
	out := make([]booknotify.Record, len(t.records))
	copy(out, t.records)
	return out
}

// Committed returns the next offset the topic's consumer will receive.
func (b *Broker) Committed(topic string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topic]
	if !ok {
		return 0
	}
	return t.committed
}
