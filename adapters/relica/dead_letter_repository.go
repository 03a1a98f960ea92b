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

var _ booknotify.DeadLetterRepository = (*DeadLetterRepository)(nil)

// DeadLetterRepository implements booknotify.DeadLetterRepository using Relica.
type DeadLetterRepository struct {
	db          *relica.DB
	tablePrefix string
	now         func() time.Time
}

// NewDeadLetterRepository creates a new DeadLetterRepository with default table prefix.
func NewDeadLetterRepository(sqlDB *sql.DB, driverName string) *DeadLetterRepository {
	return NewDeadLetterRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix)
}

// NewDeadLetterRepositoryWithPrefix creates a new DeadLetterRepository with custom table prefix.
func NewDeadLetterRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DeadLetterRepository {
	return &DeadLetterRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix, now: time.Now}
}

func (r *DeadLetterRepository) tableName() string {
	return r.tablePrefix + "dead_letters"
}

// Persist stores a dead letter. Redelivery of the same dead-letter record
// (same delivery id) is stored only once.
func (r *DeadLetterRepository) Persist(ctx context.Context, dl model.DeadLetter) error {
	var existing model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("delivery_id = ?", dl.DeliveryID).
		One(&existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to check dead letter", err)
	}

	dl.ID = 0
	if dl.DeadLetteredAt.IsZero() {
		dl.DeadLetteredAt = r.now()
	}
	dl.DeadLetteredAt = dl.DeadLetteredAt.UTC()
	dl.FirstFailureAt = dl.FirstFailureAt.UTC()

	if err := r.db.WithContext(ctx).Model(&dl).Table(r.tableName()).Insert(); err != nil {
		return booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to insert dead letter", err)
	}
	return nil
}

// Load retrieves a dead letter by ID.
func (r *DeadLetterRepository) Load(ctx context.Context, id int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, booknotify.ErrNoData
	}
	if err != nil {
		return dl, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to load dead letter", err)
	}
	attachEvent(&dl)
	return dl, nil
}

// FindUnresolved retrieves unresolved dead letters, oldest first.
func (r *DeadLetterRepository) FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	var dls []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ?", false).
		OrderBy("dead_lettered_at ASC").
		Limit(int64(limit)).
		All(&dls)
	if err != nil {
		return nil, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to find unresolved dead letters", err)
	}
	if len(dls) == 0 {
		return nil, booknotify.ErrNoData
	}
	for i := range dls {
		attachEvent(&dls[i])
	}
	return dls, nil
}

// FindOlderThan retrieves dead letters older than threshold, oldest first.
func (r *DeadLetterRepository) FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeadLetter, error) {
	var dls []model.DeadLetter
	cutoff := r.now().Add(-threshold).UTC()
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("dead_lettered_at < ?", cutoff).
		OrderBy("dead_lettered_at ASC").
		Limit(int64(limit)).
		All(&dls)
	if err != nil {
		return nil, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to find old dead letters", err)
	}
	if len(dls) == 0 {
		return nil, booknotify.ErrNoData
	}
	for i := range dls {
		attachEvent(&dls[i])
	}
	return dls, nil
}

// Resolve marks a dead letter as handled.
func (r *DeadLetterRepository) Resolve(ctx context.Context, id int64, resolvedBy, note string) error {
	dl, err := r.Load(ctx, id)
	if err != nil {
		return err
	}

	dl.Resolve(resolvedBy, note, r.now().UTC())
	if err := r.db.WithContext(ctx).Model(&dl).Table(r.tableName()).Update(); err != nil {
		return booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to resolve dead letter", err)
	}
	return nil
}

// CountUnresolved returns the number of unresolved dead letters.
func (r *DeadLetterRepository) CountUnresolved(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).Where("is_resolved = ?", false).One(&count)
	if err != nil {
		return 0, booknotify.NewErrorWithCause(booknotify.ErrCodeDatabase, "failed to count unresolved dead letters", err)
	}
	return int(count), nil
}

// attachEvent decodes the stored payload, if it is a valid event.
func attachEvent(dl *model.DeadLetter) {
	if event, err := model.DecodeEvent(dl.Payload); err == nil {
		dl.Event = &event
	}
}
