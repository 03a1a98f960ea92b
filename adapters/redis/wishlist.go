// Package redis stores the wishlist as Redis sets, one set of user ids per
// book under "wishlist:<bookId>".
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/coregx/booknotify"
)

var _ booknotify.WishlistRepository = (*Wishlist)(nil)

// DefaultKeyPrefix is the key prefix of the wishlist sets.
const DefaultKeyPrefix = "wishlist:"

// Config configures the Redis connection.
type Config struct {
	// ConnectionURL is a redis:// or rediss:// URL.
	ConnectionURL string

	// ConnectTimeout bounds the whole connection attempt including retries.
	ConnectTimeout time.Duration

	// RetryAttempts is how many times the connection is tried.
	RetryAttempts int

	// RetryInterval is the pause between attempts.
	RetryInterval time.Duration

	// Logger receives a warning for every failed attempt that is retried.
	Logger zerolog.Logger
}

var (
	// ErrFailedToParseRedisConnString is returned for an invalid ConnectionURL.
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")

	// ErrRedisNotReady is returned when no attempt reached the server.
	ErrRedisNotReady = errors.New("redis is not ready")
)

// Connect establishes a connection to Redis, making up to RetryAttempts
// attempts RetryInterval apart.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	retries := uint64(max(cfg.RetryAttempts, 1) - 1)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryInterval), retries), ctx)

	var client *redis.Client
	operation := func() error {
		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		cfg.Logger.Warn().Err(err).Str("addr", opts.Addr).Dur("retry_in", next).Msg("Redis not reachable, retrying")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(ErrRedisNotReady, ctxErr, err)
		}
		return nil, errors.Join(ErrRedisNotReady, err)
	}
	return client, nil
}

// Wishlist implements booknotify.WishlistRepository on Redis sets.
type Wishlist struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewWishlist creates a Wishlist using DefaultKeyPrefix.
func NewWishlist(client redis.UniversalClient) *Wishlist {
	return &Wishlist{client: client, keyPrefix: DefaultKeyPrefix}
}

// Key returns the set key holding the subscribers of bookID.
func (w *Wishlist) Key(bookID int64) string {
	return w.keyPrefix + strconv.FormatInt(bookID, 10)
}

// SubscribersOf returns the users in the book's set, in ascending id order.
// Returns ErrNoData if the set is empty or missing.
func (w *Wishlist) SubscribersOf(ctx context.Context, bookID int64) ([]int64, error) {
	members, err := w.client.SMembers(ctx, w.Key(bookID)).Result()
	if err != nil {
		return nil, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to read wishlist set", err)
	}
	users, err := parseMembers(members)
	if err != nil {
		return nil, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase,
			fmt.Sprintf("corrupt wishlist set %s", w.Key(bookID)), err)
	}
	if len(users) == 0 {
		return nil, booknotify.ErrNoData
	}
	return users, nil
}

// Add puts userID into the book's set.
func (w *Wishlist) Add(ctx context.Context, userID, bookID int64) error {
	if err := w.client.SAdd(ctx, w.Key(bookID), userID).Err(); err != nil {
		return booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to add wishlist entry", err)
	}
	return nil
}

// Remove takes userID out of the book's set.
func (w *Wishlist) Remove(ctx context.Context, userID, bookID int64) error {
	if err := w.client.SRem(ctx, w.Key(bookID), userID).Err(); err != nil {
		return booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to remove wishlist entry", err)
	}
	return nil
}

// Healthcheck returns a check that pings the server.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := client.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("redis healthcheck failed: %w", err)
		}
		return nil
	}
}

// parseMembers converts set members to user ids. Sets are unordered, so the
// result is sorted to keep publishing deterministic.
func parseMembers(members []string) ([]int64, error) {
	users := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("member %q is not a user id: %w", m, err)
		}
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}
