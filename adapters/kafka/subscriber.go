package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/coregx/booknotify"
)

var _ booknotify.Subscriber = (*Subscriber)(nil)

// GroupFactory opens a consumer group.
type GroupFactory func(groupID string) (sarama.ConsumerGroup, error)

// Subscriber consumes topics through sarama consumer groups. Each subscribed
// topic gets its own group, "<GroupID>-<topic>", so a rebalance on one retry
// stage never pauses the others.
type Subscriber struct {
	groupID      string
	newGroup     GroupFactory
	logger       zerolog.Logger
	retryBackoff time.Duration
}

// NewSubscriber creates a Subscriber using newGroup to open consumer groups.
func NewSubscriber(groupID string, newGroup GroupFactory, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		groupID:      groupID,
		newGroup:     newGroup,
		logger:       logger,
		retryBackoff: 2 * time.Second,
	}
}

// NewSubscriberFromConfig creates a Subscriber that connects to cfg.Brokers.
func NewSubscriberFromConfig(cfg Config, logger zerolog.Logger) (*Subscriber, error) {
	config, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewSubscriber(cfg.GroupID, func(groupID string) (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroup(cfg.Brokers, groupID, config)
	}, logger), nil
}

// GroupIDFor returns the consumer group used for topic.
func (s *Subscriber) GroupIDFor(topic string) string {
	return s.groupID + "-" + topic
}

// Subscribe consumes topic until ctx is canceled. Sessions that end with an
// error (handler failure, rebalance, broker loss) are restarted after a short
// pause; the failed record was not marked and is consumed again.
func (s *Subscriber) Subscribe(ctx context.Context, topic string, handler booknotify.HandlerFunc) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	groupID := s.GroupIDFor(topic)
	group, err := s.newGroup(groupID)
	if err != nil {
		return err
	}
	defer func() {
		if err := group.Close(); err != nil {
			s.logger.Warn().Err(err).Str("group_id", groupID).Msg("Failed to close consumer group")
		}
	}()

	go func() {
		for err := range group.Errors() {
			s.logger.Error().Err(err).Str("topic", topic).Str("group_id", groupID).Msg("Error from consumer group")
		}
	}()

	cgHandler := &claimHandler{topic: topic, handler: handler, logger: s.logger}
	s.logger.Info().Str("topic", topic).Str("group_id", groupID).Msg("Subscribed to topic")

	for {
		if err := group.Consume(ctx, []string{topic}, cgHandler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			s.logger.Error().Err(err).Str("topic", topic).Msg("Consumer group session ended with error")
			select {
			case <-ctx.Done():
			case <-time.After(s.retryBackoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// claimHandler implements sarama.ConsumerGroupHandler.
type claimHandler struct {
	topic   string
	handler booknotify.HandlerFunc
	logger  zerolog.Logger
}

func (h *claimHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info().
		Str("topic", h.topic).
		Int32("generation_id", sess.GenerationID()).
		Str("member_id", sess.MemberID()).
		Msg("Consumer group session setup")
	return nil
}

func (h *claimHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info().
		Str("topic", h.topic).
		Int32("generation_id", sess.GenerationID()).
		Str("member_id", sess.MemberID()).
		Msg("Consumer group session cleanup")
	return nil
}

// ConsumeClaim hands each message to the handler and marks it only when the
// handler returned nil. On the first error the claim stops, so no later
// offset of the partition is marked past the failed one.
func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	h.logger.Debug().
		Str("topic", claim.Topic()).
		Int32("partition", claim.Partition()).
		Int64("initial_offset", claim.InitialOffset()).
		Msg("Starting to consume from partition")

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handler(sess.Context(), fromSaramaMessage(msg)); err != nil {
				if sess.Context().Err() != nil {
					return nil
				}
				return err
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func fromSaramaMessage(msg *sarama.ConsumerMessage) booknotify.Record {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		headers[string(h.Key)] = string(h.Value)
	}
	return booknotify.Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Timestamp: msg.Timestamp,
	}
}
