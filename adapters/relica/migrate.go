package relica

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sync"
	"testing/fstest"
	"text/template"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/coregx/booknotify"
)

var (
	// ErrUnsupportedDriver is returned for drivers without embedded migrations.
	ErrUnsupportedDriver = errors.New("no migrations for database driver")

	// ErrInvalidPrefix is returned for table prefixes that are not plain identifiers.
	ErrInvalidPrefix = errors.New("invalid table prefix")

	prefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// goose keeps its configuration in package state.
	gooseMu sync.Mutex
)

// MigrationsTable returns the goose version table used for prefix.
func MigrationsTable(prefix string) string {
	return prefix + "schema_migrations"
}

// ValidateTablePrefix checks that prefix can be spliced into table and index names.
func ValidateTablePrefix(prefix string) error {
	if err := validation.Validate(prefix, validation.Required, validation.Match(prefixPattern)); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidPrefix, prefix, err)
	}
	return nil
}

// Migrate applies the embedded schema for driverName (mysql, postgres or
// sqlite3) with every table and index name carrying prefix. Each prefix has
// its own version table, so several prefixes can share one database.
// Already applied migrations are skipped.
func Migrate(ctx context.Context, db *sql.DB, driverName, prefix string, logger zerolog.Logger) error {
	if err := ValidateTablePrefix(prefix); err != nil {
		return err
	}

	dir := booknotify.MigrationsDir(driverName)
	if _, err := fs.Stat(booknotify.MigrationFiles, dir); err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, driverName)
	}

	schema, err := renderMigrations(dir, prefix)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(schema)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger: logger})
	goose.SetTableName(MigrationsTable(prefix))

	if err := goose.SetDialect(driverName); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// renderMigrations executes the SQL templates in dir with prefix and returns
// them as an in-memory tree with the same layout.
func renderMigrations(dir, prefix string) (fs.FS, error) {
	names, err := fs.Glob(booknotify.MigrationFiles, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	data := struct{ Prefix string }{Prefix: prefix}
	rendered := fstest.MapFS{}
	for _, name := range names {
		raw, err := fs.ReadFile(booknotify.MigrationFiles, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to render migration %s: %w", name, err)
		}
		rendered[name] = &fstest.MapFile{Data: buf.Bytes(), Mode: 0o444}
	}
	return rendered, nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error().Msgf(format, v...)
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info().Str("component", "migrations").Msgf(format, v...)
}
