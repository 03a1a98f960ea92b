package kafka

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
)

// ConnectWithRetry creates the producer and subscriber, retrying with
// exponential backoff for up to five minutes. This covers brokers that are
// still starting when the service boots.
func ConnectWithRetry(cfg Config, logger zerolog.Logger) (*Producer, *Subscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	var producer *Producer
	operation := func() error {
		var err error
		producer, err = NewProducerFromConfig(cfg, logger)
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Strs("brokers", cfg.Brokers).Dur("retry_in", next).Msg("Kafka not reachable, retrying")
	}

	if err := backoff.RetryNotify(operation, expBackoff, notify); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	subscriber, err := NewSubscriberFromConfig(cfg, logger)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}
	return producer, subscriber, nil
}
