package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// index persists cache entries so the cache survives restarts.
type index struct {
	db *sql.DB
}

// indexRow is one persisted entry.
type indexRow struct {
	key        domain.CacheKey
	path       string
	size       int64
	lastAccess time.Time
	seq        int64
}

func openIndex(path string, logger *slog.Logger) (*index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	// SQLite allows one writer; a single connection serializes statements.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache index %s: %w", pragma, err)
		}
	}
	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &index{db: db}, nil
}

func migrateUp(db *sql.DB, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load cache migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Closing m would close db, which the index keeps using.
	m.Log = &migrateLogger{logger: logger}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("cache index migration failed: %w", err)
	}
	return nil
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

func (ix *index) close() error {
	return ix.db.Close()
}

func (ix *index) upsert(ctx context.Context, r indexRow) error {
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, station, scan_time, variant, path, size_bytes, last_access, access_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			last_access = excluded.last_access,
			access_seq = excluded.access_seq`,
		r.key.String(), r.key.Station, r.key.Time.Unix(), r.key.Variant,
		r.path, r.size, r.lastAccess.UnixNano(), r.seq)
	return err
}

func (ix *index) touch(ctx context.Context, key string, at time.Time, seq int64) error {
	_, err := ix.db.ExecContext(ctx,
		`UPDATE cache_entries SET last_access = ?, access_seq = ? WHERE cache_key = ?`,
		at.UnixNano(), seq, key)
	return err
}

func (ix *index) delete(ctx context.Context, key string) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key)
	return err
}

func (ix *index) deleteAll(ctx context.Context) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}

// all returns every row, least recently accessed first.
func (ix *index) all(ctx context.Context) ([]indexRow, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT station, scan_time, variant, path, size_bytes, last_access, access_seq
		FROM cache_entries
		ORDER BY access_seq, last_access`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		var (
			r          indexRow
			scanTime   int64
			lastAccess int64
		)
		if err := rows.Scan(&r.key.Station, &scanTime, &r.key.Variant, &r.path, &r.size, &lastAccess, &r.seq); err != nil {
			return nil, err
		}
		r.key.Time = time.Unix(scanTime, 0).UTC()
		r.lastAccess = time.Unix(0, lastAccess).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
