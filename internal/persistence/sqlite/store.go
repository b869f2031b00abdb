// Package sqlite stores documents as JSON rows in a single SQLite table using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/hearing-scheduler/internal/persistence"
)

// Store implements persistence.Store on SQLite.
type Store struct {
	pool *ConnectionPool
	now  func() time.Time
}

// Open connects to dsn, applies pending migrations and returns a ready store.
func Open(ctx context.Context, dsn string, now func() time.Time) (*Store, error) {
	return OpenWithLogger(ctx, dsn, now, nil)
}

// OpenWithLogger is Open with migration progress reported to logger.
func OpenWithLogger(ctx context.Context, dsn string, now func() time.Time, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Store{pool: pool, now: now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, container, id, partitionKey string) (persistence.Record, error) {
	row := s.pool.DB().QueryRowContext(ctx, `
		SELECT id, partition_key, COALESCE(unique_key, ''), attributes, body, updated_at
		FROM documents
		WHERE container = ? AND id = ? AND (? = '' OR partition_key = ?)
	`, container, id, partitionKey, partitionKey)

	record, err := scanRecord(row)
	if err != nil {
		return persistence.Record{}, mapError(err)
	}
	return record, nil
}

// List returns records in the container whose attributes match the filter.
func (s *Store) List(ctx context.Context, container string, filter persistence.Filter) ([]persistence.Record, error) {
	query := `SELECT id, partition_key, COALESCE(unique_key, ''), attributes, body, updated_at
		FROM documents WHERE container = ?`
	args := []any{container}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		query += ` AND json_extract(attributes, ?) = ?`
		args = append(args, attributePath(key), filter[key])
	}
	query += ` ORDER BY id`

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", container, mapError(err))
	}
	defer rows.Close()

	var out []persistence.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", container, err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate %s: %w", container, err)
	}
	return out, nil
}

// Create inserts a new record; duplicate ids or unique keys yield ErrDuplicate.
func (s *Store) Create(ctx context.Context, container string, record persistence.Record) error {
	args, err := s.rowArgs(container, record)
	if err != nil {
		return err
	}
	_, err = s.pool.DB().ExecContext(ctx, `
		INSERT INTO documents (container, id, partition_key, unique_key, attributes, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: create %s/%s: %w", container, record.ID, mapError(err))
	}
	return nil
}

// Upsert inserts or replaces the record with the same id.
func (s *Store) Upsert(ctx context.Context, container string, record persistence.Record) error {
	args, err := s.rowArgs(container, record)
	if err != nil {
		return err
	}
	_, err = s.pool.DB().ExecContext(ctx, `
		INSERT INTO documents (container, id, partition_key, unique_key, attributes, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (container, id) DO UPDATE SET
			partition_key = excluded.partition_key,
			unique_key    = excluded.unique_key,
			attributes    = excluded.attributes,
			body          = excluded.body,
			updated_at    = excluded.updated_at
	`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s/%s: %w", container, record.ID, mapError(err))
	}
	return nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, container, id, partitionKey string) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM documents
			WHERE container = ? AND id = ? AND (? = '' OR partition_key = ?)
		`, container, id, partitionKey, partitionKey)
		if err != nil {
			return fmt.Errorf("sqlite: delete %s/%s: %w", container, id, mapError(err))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func (s *Store) rowArgs(container string, record persistence.Record) ([]any, error) {
	if record.ID == "" {
		return nil, persistence.ErrConstraintViolation
	}
	attributes := record.Attributes
	if attributes == nil {
		attributes = map[string]string{}
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode attributes: %w", err)
	}
	var unique sql.NullString
	if key := persistence.NormalizeUniqueKey(record.UniqueKey); key != "" {
		unique = sql.NullString{String: key, Valid: true}
	}
	return []any{
		container,
		record.ID,
		record.PartitionKey,
		unique,
		string(encoded),
		record.Body,
		s.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (persistence.Record, error) {
	var (
		record     persistence.Record
		attributes string
		updatedAt  string
	)
	if err := row.Scan(&record.ID, &record.PartitionKey, &record.UniqueKey, &attributes, &record.Body, &updatedAt); err != nil {
		return persistence.Record{}, err
	}
	if attributes != "" && attributes != "{}" {
		if err := json.Unmarshal([]byte(attributes), &record.Attributes); err != nil {
			return persistence.Record{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		record.UpdatedAt = parsed
	}
	return record, nil
}

// attributePath builds a JSON path addressing a top-level attribute key.
func attributePath(key string) string {
	quoted, _ := json.Marshal(key)
	return "$." + string(quoted)
}
