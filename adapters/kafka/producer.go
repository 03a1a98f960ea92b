package kafka

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/coregx/booknotify"
)

var _ booknotify.Producer = (*Producer)(nil)

// Producer is an asynchronous booknotify.Producer.
type Producer struct {
	producer sarama.AsyncProducer
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewProducer wraps an AsyncProducer. The producer must be configured with
// Return.Successes and Return.Errors enabled; see NewSaramaConfig.
func NewProducer(producer sarama.AsyncProducer, logger zerolog.Logger) *Producer {
	p := &Producer{producer: producer, logger: logger}

	p.wg.Add(2)
	go p.dispatchSuccesses()
	go p.dispatchErrors()

	return p
}

// NewProducerFromConfig connects a new AsyncProducer.
func NewProducerFromConfig(cfg Config, logger zerolog.Logger) (*Producer, error) {
	config, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, err
	}
	return NewProducer(producer, logger), nil
}

// Send enqueues rec and returns its pending outcome.
func (p *Producer) Send(ctx context.Context, rec booknotify.Record) *booknotify.SendFuture {
	future, complete := booknotify.NewSendFuture()

	msg := &sarama.ProducerMessage{
		Topic:    rec.Topic,
		Key:      sarama.StringEncoder(rec.Key), // Used for partition routing
		Value:    sarama.ByteEncoder(rec.Value),
		Headers:  toSaramaHeaders(rec.Headers),
		Metadata: complete,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		complete(booknotify.SendResult{}, booknotify.ErrProducerClosed)
		return future
	}

	select {
	case p.producer.Input() <- msg:
	case <-ctx.Done():
		complete(booknotify.SendResult{}, ctx.Err())
	}
	return future
}

func (p *Producer) dispatchSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		complete, ok := msg.Metadata.(booknotify.CompleteFunc)
		if !ok {
			continue
		}
		complete(booknotify.SendResult{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		}, nil)
	}
}

func (p *Producer) dispatchErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		p.logger.Warn().Err(perr.Err).Str("topic", perr.Msg.Topic).Msg("Kafka rejected message")
		complete, ok := perr.Msg.Metadata.(booknotify.CompleteFunc)
		if !ok {
			continue
		}
		complete(booknotify.SendResult{}, perr.Err)
	}
}

// Close flushes in-flight messages and stops the producer. Every future
// handed out before Close resolves before Close returns.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}

func toSaramaHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return out
}
