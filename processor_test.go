package booknotify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/booknotify/model"
)

func TestLoggingProcessor_LogsNotification(t *testing.T) {
	var buf bytes.Buffer
	p := NewLoggingProcessor(zerolog.New(&buf), 0)

	err := p.Process(context.Background(), model.NewBookAvailableEvent(42, "Dune", 7))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Notification prepared")
	assert.Contains(t, out, "Book 'Dune' is now available")
	assert.Contains(t, out, "Notification successfully sent to user")
}

func TestLoggingProcessor_LatencyHonorsContext(t *testing.T) {
	p := NewLoggingProcessor(zerolog.Nop(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Process(ctx, model.NewBookAvailableEvent(42, "Dune", 7))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFailureMode(t *testing.T) {
	tests := []struct {
		in      string
		want    FailureMode
		wantErr bool
	}{
		{in: "", want: FailNever},
		{in: "none", want: FailNever},
		{in: "never", want: FailNever},
		{in: " ALWAYS ", want: FailAlways},
		{in: "first-n", want: FailFirstN},
		{in: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailureMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailureInjector(t *testing.T) {
	event := model.NewBookAvailableEvent(42, "Dune", 7)

	tests := []struct {
		name      string
		mode      FailureMode
		limit     int
		calls     int
		wantFails []bool
	}{
		{name: "never", mode: FailNever, calls: 3, wantFails: []bool{false, false, false}},
		{name: "always", mode: FailAlways, calls: 3, wantFails: []bool{true, true, true}},
		{name: "first two", mode: FailFirstN, limit: 2, calls: 4, wantFails: []bool{true, true, false, false}},
		{name: "first zero", mode: FailFirstN, limit: 0, calls: 2, wantFails: []bool{false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &countingProcessor{}
			injector, err := NewFailureInjector(next, tt.mode, tt.limit)
			require.NoError(t, err)

			ctx := ContextWithDelivery(context.Background(), model.NewDelivery("d-1", testTopic, 0, 0))
			var fails []bool
			for i := 0; i < tt.calls; i++ {
				err := injector.Process(ctx, event)
				if err != nil {
					assert.ErrorIs(t, err, ErrSimulatedFailure)
				}
				fails = append(fails, err != nil)
			}

			assert.Equal(t, tt.wantFails, fails)
			assert.Equal(t, tt.calls, next.count(), "wrapped processor always runs")
		})
	}
}

func TestFailureInjector_CountsPerDelivery(t *testing.T) {
	injector, err := NewFailureInjector(&countingProcessor{}, FailFirstN, 1)
	require.NoError(t, err)
	event := model.NewBookAvailableEvent(42, "Dune", 7)

	first := ContextWithDelivery(context.Background(), model.NewDelivery("d-1", testTopic, 0, 0))
	second := ContextWithDelivery(context.Background(), model.NewDelivery("d-2", testTopic, 0, 1))

	assert.Error(t, injector.Process(first, event))
	assert.Error(t, injector.Process(second, event))
	assert.NoError(t, injector.Process(first, event))
	assert.NoError(t, injector.Process(second, event))
}

// pending returns how many deliveries have a call count.
func (f *FailureInjector) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestFailureInjector_ForgetsDeadLetteredDeliveries(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		wantPending int
	}{
		{name: "attempt budget known", maxAttempts: 4, wantPending: 0},
		{name: "attempt budget unknown", maxAttempts: 0, wantPending: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			injector, err := NewFailureInjector(&countingProcessor{}, FailFirstN, 5, WithMaxAttempts(tt.maxAttempts))
			require.NoError(t, err)
			event := model.NewBookAvailableEvent(42, "Dune", 7)

			// Four failed attempts of one delivery, then the pipeline dead-letters it.
			d := model.NewDelivery("d-1", testTopic, 0, 0)
			for attempt := 0; attempt < 4; attempt++ {
				d.Attempts = attempt
				err := injector.Process(ContextWithDelivery(context.Background(), d), event)
				assert.ErrorIs(t, err, ErrSimulatedFailure)
			}

			assert.Equal(t, tt.wantPending, injector.pending())
		})
	}
}

func TestFailureInjector_WrappedErrorWins(t *testing.T) {
	wrappedErr := errors.New("mailer down")
	injector, err := NewFailureInjector(ProcessorFunc(func(context.Context, model.NotificationEvent) error {
		return wrappedErr
	}), FailAlways, 0)
	require.NoError(t, err)

	err = injector.Process(context.Background(), model.NewBookAvailableEvent(42, "Dune", 7))
	assert.ErrorIs(t, err, wrappedErr)
}

func TestNewFailureInjector_Validation(t *testing.T) {
	_, err := NewFailureInjector(nil, FailAlways, 0)
	assert.Error(t, err)

	_, err = NewFailureInjector(&countingProcessor{}, FailFirstN, -1)
	assert.Error(t, err)
}

func TestDeliveryFromContext(t *testing.T) {
	_, ok := DeliveryFromContext(context.Background())
	assert.False(t, ok)

	d := model.NewDelivery("d-1", testTopic, 0, 0)
	got, ok := DeliveryFromContext(ContextWithDelivery(context.Background(), d))
	require.True(t, ok)
	assert.Equal(t, "d-1", got.DeliveryID)
}
