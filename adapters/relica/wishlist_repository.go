package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/booknotify"
	"github.com/coregx/booknotify/model"
)

var _ booknotify.WishlistRepository = (*WishlistRepository)(nil)

// WishlistRepository implements booknotify.WishlistRepository using Relica.
type WishlistRepository struct {
	db          *relica.DB
	tablePrefix string
	now         func() time.Time
}

// NewWishlistRepository creates a new WishlistRepository with default table prefix.
func NewWishlistRepository(sqlDB *sql.DB, driverName string) *WishlistRepository {
	return NewWishlistRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix)
}

// NewWishlistRepositoryWithPrefix creates a new WishlistRepository with custom table prefix.
func NewWishlistRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *WishlistRepository {
	return &WishlistRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix, now: time.Now}
}

func (r *WishlistRepository) tableName() string {
	return r.tablePrefix + "wishlist"
}

// SubscribersOf returns the users who wishlisted bookID, in the order they did.
// Returns ErrNoData if nobody did.
func (r *WishlistRepository) SubscribersOf(ctx context.Context, bookID int64) ([]int64, error) {
	var entries []model.WishlistEntry
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("book_id = ?", bookID).
		OrderBy("id ASC").
		All(&entries)
	if err != nil {
		return nil, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to load wishlist", err)
	}
	if len(entries) == 0 {
		return nil, booknotify.ErrNoData
	}

	users := make([]int64, 0, len(entries))
	for _, e := range entries {
		users = append(users, e.UserID)
	}
	return users, nil
}

// Add records userID's interest in bookID. Existing entries are left alone.
func (r *WishlistRepository) Add(ctx context.Context, userID, bookID int64) error {
	_, err := r.find(ctx, userID, bookID)
	if err == nil {
		return nil
	}
	if !booknotify.IsNoData(err) {
		return err
	}

	entry := model.WishlistEntry{UserID: userID, BookID: bookID, CreatedAt: r.now().UTC()}
	if err := r.db.WithContext(ctx).Model(&entry).Table(r.tableName()).Insert(); err != nil {
		return booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to insert wishlist entry", err)
	}
	return nil
}

// Remove deletes userID's interest in bookID, if any.
func (r *WishlistRepository) Remove(ctx context.Context, userID, bookID int64) error {
	entry, err := r.find(ctx, userID, bookID)
	if booknotify.IsNoData(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Model(&entry).Table(r.tableName()).Delete(); err != nil {
		return booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to delete wishlist entry", err)
	}
	return nil
}

func (r *WishlistRepository) find(ctx context.Context, userID, bookID int64) (model.WishlistEntry, error) {
	var entry model.WishlistEntry
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		One(&entry)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, booknotify.ErrNoData
	}
	if err != nil {
		return entry, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to load wishlist entry", err)
	}
	return entry, nil
}
