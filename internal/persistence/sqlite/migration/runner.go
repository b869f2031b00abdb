package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

const versionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version           TEXT PRIMARY KEY,
	checksum          TEXT NOT NULL,
	applied_at        TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL
)`

// Applied is a row of schema_migrations.
type Applied struct {
	Version       string
	Checksum      string
	AppliedAt     time.Time
	ExecutionTime time.Duration
}

// Run applies every migration in fsys that db has not seen yet.
// An applied file whose checksum changed aborts the run.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migration")

	migrations, err := Scan(fsys)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, versionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	checksums := make(map[string]string, len(applied))
	for _, a := range applied {
		checksums[a.Version] = a.Checksum
	}

	for _, m := range migrations {
		if sum, ok := checksums[m.Version]; ok {
			if sum != m.Checksum {
				return newMigrationError(m.Version, m.File, "verify", ErrChecksumMismatch)
			}
			continue
		}
		start := time.Now()
		if err := apply(ctx, db, m, start); err != nil {
			logger.ErrorContext(ctx, "migration failed", "version", m.Version, "file", m.File, "error", err)
			return err
		}
		logger.InfoContext(ctx, "migration applied",
			"version", m.Version,
			"description", m.Description,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m Migration, start time.Time) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return newMigrationError(m.Version, m.File, "begin", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	for i, stmt := range statements(m.SQL) {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return newMigrationError(m.Version, m.File, fmt.Sprintf("statement %d", i+1),
				fmt.Errorf("%w: %v", ErrMigrationFailed, execErr))
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, checksum, applied_at, execution_time_ms) VALUES (?, ?, ?, ?)`,
		m.Version, m.Checksum, start.UTC().Format(time.RFC3339Nano), time.Since(start).Milliseconds())
	if err != nil {
		return newMigrationError(m.Version, m.File, "record", err)
	}
	if err = tx.Commit(); err != nil {
		return newMigrationError(m.Version, m.File, "commit", err)
	}
	return nil
}

// AppliedVersions lists the recorded migrations in version order.
func AppliedVersions(ctx context.Context, db *sql.DB) ([]Applied, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version, checksum, applied_at, execution_time_ms FROM schema_migrations ORDER BY CAST(version AS INTEGER)`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var (
			a         Applied
			appliedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&a.Version, &a.Checksum, &appliedAt, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339Nano, appliedAt)
		a.ExecutionTime = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}
