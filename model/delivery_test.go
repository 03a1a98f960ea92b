package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDelivery(t *testing.T) {
	d := NewDelivery("d-1", "book-notifications", 2, 17)

	assert.Equal(t, "d-1", d.DeliveryID)
	assert.Equal(t, "book-notifications", d.Topic)
	assert.Equal(t, "book-notifications", d.OriginalTopic)
	assert.Equal(t, int32(2), d.OriginalPartition)
	assert.Equal(t, int64(17), d.OriginalOffset)
	assert.Equal(t, DeliveryStatusReceived, d.Status)
	assert.Equal(t, 0, d.Attempts)
	assert.Equal(t, 1, d.AttemptNumber())
	assert.True(t, d.IsFirstAttempt())
	assert.True(t, d.FirstFailureAt.IsZero())
}

func TestDelivery_SuccessPath(t *testing.T) {
	d := NewDelivery("d-1", "t", 0, 0)

	require.NoError(t, d.StartProcessing())
	assert.Equal(t, DeliveryStatusProcessing, d.Status)

	require.NoError(t, d.MarkAcked())
	assert.Equal(t, DeliveryStatusAcked, d.Status)
	assert.True(t, d.Status.IsTerminal())

	assert.ErrorIs(t, d.StartProcessing(), ErrDeliveryFinished)
	assert.ErrorIs(t, d.MarkAcked(), ErrNotProcessing)
}

func TestDelivery_MarkFailed(t *testing.T) {
	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Second)

	d := NewDelivery("d-1", "t", 0, 0)
	require.NoError(t, d.StartProcessing())
	require.NoError(t, d.MarkFailed(Failure{Type: "*errors.errorString", Message: "boom"}, first))

	assert.Equal(t, DeliveryStatusFailed, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 2, d.AttemptNumber())
	assert.Equal(t, first, d.FirstFailureAt)
	assert.Equal(t, "boom", d.LastFailure.Message)

	// A second failure on the next stage keeps the first timestamp.
	d.Status = DeliveryStatusReceived
	require.NoError(t, d.StartProcessing())
	require.NoError(t, d.MarkFailed(Failure{Message: "boom again"}, second))
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, first, d.FirstFailureAt)
	assert.Equal(t, "boom again", d.LastFailure.Message)
}

func TestDelivery_Disposition(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		failFirst  bool
		dispose    func(d *Delivery) error
		wantErr    error
		wantStatus DeliveryStatus
	}{
		{
			name:       "retry after failure",
			failFirst:  true,
			dispose:    func(d *Delivery) error { return d.ScheduleRetry("t-retry-0", now.Add(2*time.Second)) },
			wantStatus: DeliveryStatusRetryScheduled,
		},
		{
			name:       "dead letter after failure",
			failFirst:  true,
			dispose:    func(d *Delivery) error { return d.MarkDeadLettered("t-dlt") },
			wantStatus: DeliveryStatusDeadLettered,
		},
		{
			name:       "retry without failure",
			dispose:    func(d *Delivery) error { return d.ScheduleRetry("t-retry-0", now) },
			wantErr:    ErrNotFailed,
			wantStatus: DeliveryStatusProcessing,
		},
		{
			name:       "dead letter without failure",
			dispose:    func(d *Delivery) error { return d.MarkDeadLettered("t-dlt") },
			wantErr:    ErrNotFailed,
			wantStatus: DeliveryStatusProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelivery("d", "t", 0, 0)
			require.NoError(t, d.StartProcessing())
			if tt.failFirst {
				require.NoError(t, d.MarkFailed(Failure{Message: "x"}, now))
			}

			err := tt.dispose(d)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, d.Status)
		})
	}
}

func TestDelivery_ScheduleRetryRecordsTarget(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDelivery("d", "t", 0, 0)
	require.NoError(t, d.StartProcessing())
	require.NoError(t, d.MarkFailed(Failure{Message: "x"}, now))
	require.NoError(t, d.ScheduleRetry("t-retry-0", now.Add(2*time.Second)))

	assert.Equal(t, "t-retry-0", d.NextTopic)
	assert.Equal(t, now.Add(2*time.Second), d.NextAttemptAt)
}

func TestDelivery_MarkMalformedKeepsAttempts(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDelivery("d", "t", 0, 0)

	require.NoError(t, d.MarkMalformed(Failure{Message: "bad json"}, now))
	assert.Equal(t, 0, d.Attempts)
	assert.Equal(t, DeliveryStatusFailed, d.Status)
	require.NoError(t, d.MarkDeadLettered("t-dlt"))
	assert.Equal(t, "t-dlt", d.NextTopic)
}

func TestDelivery_TimeUntilDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		due  time.Time
		want time.Duration
	}{
		{name: "no due time", due: time.Time{}, want: 0},
		{name: "due in future", due: now.Add(4 * time.Second), want: 4 * time.Second},
		{name: "already due", due: now.Add(-time.Second), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelivery("d", "t", 0, 0)
			d.NextAttemptAt = tt.due
			assert.Equal(t, tt.want, d.TimeUntilDue(now))
		})
	}
}
