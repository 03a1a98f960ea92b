package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/booknotify"
)

func newMockProducer(t *testing.T) *mocks.AsyncProducer {
	t.Helper()
	config, err := NewSaramaConfig(Config{Brokers: []string{"localhost:9092"}, GroupID: "g", ClientID: "c"})
	require.NoError(t, err)
	return mocks.NewAsyncProducer(t, config)
}

func TestProducer_SendSuccess(t *testing.T) {
	mock := newMockProducer(t)
	mock.ExpectInputAndSucceed()

	p := NewProducer(mock, zerolog.Nop())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := p.Send(ctx, booknotify.Record{
		Topic:   "book-notifications",
		Key:     "42",
		Value:   []byte(`{}`),
		Headers: map[string]string{booknotify.HeaderDeliveryID: "d-1"},
	}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "book-notifications", res.Topic)
	assert.Equal(t, int64(1), res.Offset)
}

func TestProducer_SendFailureResolvesFuture(t *testing.T) {
	mock := newMockProducer(t)
	brokerErr := errors.New("leader not available")
	mock.ExpectInputAndFail(brokerErr)

	p := NewProducer(mock, zerolog.Nop())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := p.Send(ctx, booknotify.Record{Topic: "book-notifications", Key: "42"}).Wait(ctx)
	assert.ErrorIs(t, err, brokerErr)
}

func TestProducer_SendAfterClose(t *testing.T) {
	p := NewProducer(newMockProducer(t), zerolog.Nop())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Send(context.Background(), booknotify.Record{Topic: "t"}).Wait(context.Background())
	assert.ErrorIs(t, err, booknotify.ErrProducerClosed)
}

func TestToSaramaHeaders(t *testing.T) {
	assert.Nil(t, toSaramaHeaders(nil))

	headers := toSaramaHeaders(map[string]string{"a": "1"})
	require.Len(t, headers, 1)
	assert.Equal(t, sarama.RecordHeader{Key: []byte("a"), Value: []byte("1")}, headers[0])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Brokers: []string{"k:9092"}, GroupID: "g", ClientID: "c"}},
		{name: "no brokers", cfg: Config{GroupID: "g", ClientID: "c"}, wantErr: true},
		{name: "no group", cfg: Config{Brokers: []string{"k:9092"}, ClientID: "c"}, wantErr: true},
		{name: "no client id", cfg: Config{Brokers: []string{"k:9092"}, GroupID: "g"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSaramaConfig(t *testing.T) {
	config, err := NewSaramaConfig(Config{ClientID: "svc"})
	require.NoError(t, err)
	assert.Equal(t, sarama.V2_8_0_0, config.Version)
	assert.Equal(t, sarama.WaitForAll, config.Producer.RequiredAcks)
	assert.True(t, config.Producer.Return.Successes)
	assert.Equal(t, sarama.OffsetOldest, config.Consumer.Offsets.Initial)
	assert.NoError(t, config.Validate())

	config, err = NewSaramaConfig(Config{ClientID: "svc", Version: "3.6.0"})
	require.NoError(t, err)
	assert.Equal(t, sarama.V3_6_0_0, config.Version)

	_, err = NewSaramaConfig(Config{Version: "not-a-version"})
	assert.Error(t, err)
}
