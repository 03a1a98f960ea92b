package model

import "time"

// AvailabilityStatus is the lending state of a book.
type AvailabilityStatus string

const (
	// StatusAvailable means the book can be borrowed.
	StatusAvailable AvailabilityStatus = "AVAILABLE"

	// StatusBorrowed means the book is lent out.
	StatusBorrowed AvailabilityStatus = "BORROWED"
)

// IsValid reports whether s is a known status.
func (s AvailabilityStatus) IsValid() bool {
	return s == StatusAvailable || s == StatusBorrowed
}

// Book is the part of the catalogue entry the notifier needs.
type Book struct {
	ID     int64              `json:"id"`
	Title  string             `json:"title"`
	Status AvailabilityStatus `json:"status"`
}

// BecameAvailable reports whether a status change should notify wishlisted users.
// Only a borrowed book being returned qualifies.
func BecameAvailable(previous, next AvailabilityStatus) bool {
	return previous == StatusBorrowed && next == StatusAvailable
}

// WishlistEntry records a user's interest in a book.
type WishlistEntry struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	BookID    int64     `json:"bookId" db:"book_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
