package booknotify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coregx/booknotify/model"
)

// BookPublisher is the part of Publisher the notifier depends on.
type BookPublisher interface {
	Publish(ctx context.Context, bookID int64, bookTitle string, subscribers []int64) ([]*PublishOutcome, error)
}

// AvailabilityNotifier is the entry point for the catalogue service: it is
// told about every book status change and publishes notifications when a
// borrowed book becomes available.
type AvailabilityNotifier struct {
	lookup    SubscriberLookup
	publisher BookPublisher
	logger    zerolog.Logger
}

// NewAvailabilityNotifier creates an AvailabilityNotifier.
func NewAvailabilityNotifier(lookup SubscriberLookup, publisher BookPublisher, logger zerolog.Logger) (*AvailabilityNotifier, error) {
	if lookup == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriberLookup is required")
	}
	if publisher == nil {
		return nil, NewError(ErrCodeConfiguration, "publisher is required")
	}
	return &AvailabilityNotifier{lookup: lookup, publisher: publisher, logger: logger}, nil
}

// BookStatusChanged publishes one event per wishlisted user when book went
// from BORROWED to AVAILABLE. Any other transition is ignored and returns no
// outcomes. The wishlist is read once per call and never cached.
func (n *AvailabilityNotifier) BookStatusChanged(ctx context.Context, book model.Book, previous model.AvailabilityStatus) ([]*PublishOutcome, error) {
	if !model.BecameAvailable(previous, book.Status) {
		n.logger.Debug().
			Int64("book_id", book.ID).
			Str("previous_status", string(previous)).
			Str("status", string(book.Status)).
			Msg("Status change does not trigger notifications")
		return nil, nil
	}

	subscribers, err := n.lookup.SubscribersOf(ctx, book.ID)
	if err != nil && !IsNoData(err) {
		return nil, NewErrorWithCause(ErrCodeDatabase, fmt.Sprintf("failed to load wishlist for book %d", book.ID), err)
	}

	n.logger.Info().
		Int64("book_id", book.ID).
		Str("book_title", book.Title).
		Int("subscribers", len(subscribers)).
		Msg("Book became available")

	return n.publisher.Publish(ctx, book.ID, book.Title, subscribers)
}
