package booknotify

import (
	"context"
	"sync"
	"time"
)

// Record is a broker message as seen by the pipeline. Adapters translate
// their native message types to and from it.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Header returns the value of a header, or "" when absent.
func (r Record) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[key]
}

// SendResult is the broker acknowledgement of a send.
type SendResult struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Producer sends records asynchronously. Send must not block on the broker
// acknowledgement; the outcome is observed through the returned future.
type Producer interface {
	Send(ctx context.Context, rec Record) *SendFuture
}

// HandlerFunc processes one consumed record. Returning nil lets the adapter
// commit the record; returning an error leaves it uncommitted.
type HandlerFunc func(ctx context.Context, rec Record) error

// Subscriber consumes a topic on behalf of a consumer group. Subscribe
// blocks until ctx is done. Implementations commit a record only after the
// handler returned nil for it, and never commit it otherwise.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error
}

// CompleteFunc resolves a SendFuture. Only the first call has an effect.
type CompleteFunc func(res SendResult, err error)

// SendFuture is the pending outcome of an asynchronous send.
type SendFuture struct {
	done      chan struct{}
	once      sync.Once
	mu        sync.Mutex
	res       SendResult
	err       error
	callbacks []func(SendResult, error)
}

// NewSendFuture returns an unresolved future and the function that resolves it.
// Producers keep the CompleteFunc and hand the future to the caller.
func NewSendFuture() (*SendFuture, CompleteFunc) {
	f := &SendFuture{done: make(chan struct{})}
	return f, f.complete
}

// CompletedSendFuture returns a future that is already resolved.
func CompletedSendFuture(res SendResult, err error) *SendFuture {
	f, complete := NewSendFuture()
	complete(res, err)
	return f
}

func (f *SendFuture) complete(res SendResult, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.res = res
		f.err = err
		callbacks := f.callbacks
		f.callbacks = nil
		close(f.done)
		f.mu.Unlock()

		for _, cb := range callbacks {
			cb(res, err)
		}
	})
}

// Done is closed once the send has been acknowledged or has failed.
func (f *SendFuture) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the send resolves or ctx ends.
func (f *SendFuture) Wait(ctx context.Context) (SendResult, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	}
}

// OnComplete registers fn to run once the send resolves. If it already
// resolved, fn runs immediately on the calling goroutine.
func (f *SendFuture) OnComplete(fn func(SendResult, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		res, err := f.res, f.err
		f.mu.Unlock()
		fn(res, err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}
