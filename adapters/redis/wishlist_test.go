package redis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/booknotify"
)

func TestParseMembers(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		want    []int64
		wantErr bool
	}{
		{name: "empty", members: nil, want: []int64{}},
		{name: "sorted output", members: []string{"9", "7", "8"}, want: []int64{7, 8, 9}},
		{name: "not a number", members: []string{"7", "alice"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMembers(tt.members)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWishlist_Key(t *testing.T) {
	w := NewWishlist(nil)
	assert.Equal(t, "wishlist:42", w.Key(42))
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{ConnectionURL: "http://nope"})
	assert.ErrorIs(t, err, ErrFailedToParseRedisConnString)
}

func TestConnect_GivesUpAfterRetryAttempts(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		wantRetries int
	}{
		{name: "single attempt", attempts: 1, wantRetries: 0},
		{name: "unset means one attempt", attempts: 0, wantRetries: 0},
		{name: "three attempts", attempts: 3, wantRetries: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			// Nothing listens on port 1; go-redis retries are disabled so each attempt is one dial.
			_, err := Connect(context.Background(), Config{
				ConnectionURL:  "redis://127.0.0.1:1/0?max_retries=-1&dial_timeout=200ms",
				ConnectTimeout: 10 * time.Second,
				RetryAttempts:  tt.attempts,
				RetryInterval:  10 * time.Millisecond,
				Logger:         zerolog.New(&buf),
			})

			assert.ErrorIs(t, err, ErrRedisNotReady)
			assert.Equal(t, tt.wantRetries, strings.Count(buf.String(), "Redis not reachable, retrying"))
		})
	}
}

func TestConnect_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, Config{
		ConnectionURL: "redis://127.0.0.1:1/0?max_retries=-1",
		RetryAttempts: 5,
		RetryInterval: time.Hour,
	})

	assert.ErrorIs(t, err, ErrRedisNotReady)
	assert.ErrorIs(t, err, context.Canceled)
}

// Runs against a real server when REDIS_ADDR is set, e.g. REDIS_ADDR=localhost:6379.
func TestWishlist_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, Config{
		ConnectionURL:  "redis://" + addr,
		ConnectTimeout: 5 * time.Second,
		RetryAttempts:  3,
		RetryInterval:  100 * time.Millisecond,
	})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, Healthcheck(client)(ctx))

	w := &Wishlist{client: client, keyPrefix: fmt.Sprintf("test:%d:wishlist:", time.Now().UnixNano())}
	t.Cleanup(func() { client.Del(ctx, w.Key(42)) })

	_, err = w.SubscribersOf(ctx, 42)
	assert.True(t, booknotify.IsNoData(err))

	require.NoError(t, w.Add(ctx, 8, 42))
	require.NoError(t, w.Add(ctx, 7, 42))
	require.NoError(t, w.Add(ctx, 7, 42))

	users, err := w.SubscribersOf(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, users)

	require.NoError(t, w.Remove(ctx, 8, 42))
	users, err = w.SubscribersOf(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, users)
}
