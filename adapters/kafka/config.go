// Package kafka implements booknotify.Producer and booknotify.Subscriber on
// top of IBM/sarama.
//
// The producer is asynchronous: every Send returns a future that resolves
// when the broker acknowledged the record (acks=all). The subscriber runs one
// consumer group session per topic and marks a message only after the handler
// returned nil for it, so unprocessed records are redelivered after a restart
// or rebalance.
package kafka

import (
	"time"

	"github.com/IBM/sarama"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config contains settings for connecting to Kafka.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// GroupID identifies the consumer group shared by all pipeline instances.
	GroupID string

	// ClientID identifies this client to the cluster.
	ClientID string

	// Version is the Kafka protocol version, e.g. "2.8.0". Empty means 2.8.0.
	Version string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required),
		validation.Field(&c.GroupID, validation.Required),
		validation.Field(&c.ClientID, validation.Required),
	)
}

// NewSaramaConfig builds the sarama configuration shared by the producer and
// the consumer groups.
func NewSaramaConfig(cfg Config) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	version := sarama.V2_8_0_0
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, err
		}
		version = v
	}
	config.Version = version

	// Producer settings
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	// Consumer settings. Offsets are marked by the subscriber and flushed by
	// the auto-committer, so only handled messages are ever committed.
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = time.Second
	// A retry stage can hold a record for the full retry delay.
	config.Consumer.MaxProcessingTime = 15 * time.Second

	return config, nil
}
