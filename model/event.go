// Package model contains the domain models of the book notification pipeline:
// the wire event, per-delivery retry state, dead letters and the book/wishlist
// collaborator data read by the publisher.
package model

import (
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EventType tags a NotificationEvent. The set of values is open: consumers
// must accept types they do not know yet.
type EventType string

const (
	// EventTypeBookAvailable is emitted when a borrowed book becomes available again.
	EventTypeBookAvailable EventType = "BOOK_AVAILABLE"
)

// IsKnown reports whether this build recognises the event type.
func (t EventType) IsKnown() bool {
	switch t {
	case EventTypeBookAvailable:
		return true
	default:
		return false
	}
}

func (t EventType) String() string {
	return string(t)
}

// NotificationEvent is the unit of work flowing through the pipeline.
// It is passed by value and has no mutators; treat it as immutable once built.
type NotificationEvent struct {
	BookID    int64     `json:"bookId"`
	BookTitle string    `json:"bookTitle"`
	UserID    int64     `json:"userId"`
	EventType EventType `json:"eventType"`
	Message   string    `json:"message"`
}

// NewBookAvailableEvent builds the BOOK_AVAILABLE event for one wishlisted user.
func NewBookAvailableEvent(bookID int64, bookTitle string, userID int64) NotificationEvent {
	return NotificationEvent{
		BookID:    bookID,
		BookTitle: bookTitle,
		UserID:    userID,
		EventType: EventTypeBookAvailable,
		Message:   BookAvailableMessage(bookTitle),
	}
}

// BookAvailableMessage renders the human-readable availability message.
func BookAvailableMessage(bookTitle string) string {
	return fmt.Sprintf("Book '%s' is now available", bookTitle)
}

// Key returns the partitioning key. All events of one book share it, which
// keeps them ordered relative to each other within a topic.
func (e NotificationEvent) Key() string {
	return strconv.FormatInt(e.BookID, 10)
}

// Validate checks the required fields.
func (e NotificationEvent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.BookID, validation.Required, validation.Min(int64(1))),
		validation.Field(&e.BookTitle, validation.Required),
		validation.Field(&e.UserID, validation.Required, validation.Min(int64(1))),
		validation.Field(&e.EventType, validation.Required),
		validation.Field(&e.Message, validation.Required),
	)
}
