// Package retry provides the exponential backoff policy that drives the
// notification retry stages. It decides how many attempts an event gets and how
// long each retry stage holds it before the next attempt.
package retry

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Classifier reports whether a processing error may be retried.
type Classifier func(err error) bool

// Policy defines the retry behavior for failed notification processing.
//
// The delay before attempt k (1-indexed, k >= 2) follows:
//
//	delay = min(InitialDelay * Multiplier^(k-2), MaxDelay)
//
// Example with defaults (4 attempts, 2s initial, 2.0 multiplier, 10s max):
//
//	Attempt 1: immediate
//	Attempt 2: after 2s
//	Attempt 3: after 4s
//	Attempt 4: after 8s (→ dead-letter on failure)
type Policy struct {
	MaxAttempts  int           // Total attempts including the first delivery
	InitialDelay time.Duration // Delay before the second attempt
	Multiplier   float64       // Backoff multiplier (e.g., 2.0 for doubling)
	MaxDelay     time.Duration // Upper bound for any single delay
	Retryable    Classifier    // nil retries every error
}

// DefaultPolicy returns the notification retry policy:
// 4 attempts, 2s → 4s → 8s backoff capped at 10s, every error retried.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	}
}

// Validate checks that the policy can drive a pipeline.
func (p Policy) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.InitialDelay, validation.Min(time.Duration(0))),
		validation.Field(&p.Multiplier, validation.Required, validation.Min(1.0)),
		validation.Field(&p.MaxDelay, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return err
	}
	if p.MaxDelay < p.InitialDelay {
		return errors.New("max delay must not be lower than initial delay")
	}
	return nil
}

// Delay returns how long the event waits before the given 1-indexed attempt.
// The first attempt is never delayed.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-2))

	// Cap at max delay
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt follows after attemptsMade
// failed attempts ended with err.
func (p Policy) ShouldRetry(attemptsMade int, err error) bool {
	if attemptsMade >= p.MaxAttempts {
		return false
	}
	return p.IsRetryable(err)
}

// IsRetryable applies the classifier. Without one every error is retryable.
func (p Policy) IsRetryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// StageCount returns the number of retry stages the policy needs.
func (p Policy) StageCount() int {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return p.MaxAttempts - 1
}

// Schedule returns the delay before each retry, in order.
func (p Policy) Schedule() []time.Duration {
	schedule := make([]time.Duration, 0, p.StageCount())
	for attempt := 2; attempt <= p.MaxAttempts; attempt++ {
		schedule = append(schedule, p.Delay(attempt))
	}
	return schedule
}

// String returns a human-readable description of the schedule.
//
// Example output:
//
//	attempt 1: immediate, attempt 2: after 2s, attempt 3: after 4s, attempt 4: after 8s, then dead-letter
func (p Policy) String() string {
	parts := make([]string, 0, p.MaxAttempts+1)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt == 1 {
			parts = append(parts, "attempt 1: immediate")
			continue
		}
		parts = append(parts, fmt.Sprintf("attempt %d: after %v", attempt, p.Delay(attempt)))
	}
	parts = append(parts, "then dead-letter")
	return strings.Join(parts, ", ")
}
