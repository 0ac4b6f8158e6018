package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/bookings-api/internal/platform/logger"
	"github.com/phrazzld/bookings-api/internal/store"
)

// DB is the subset of *sql.DB the entity store needs.
type DB interface {
	store.DBTX
	store.TxBeginner
}

// EntityStore implements store.EntityStore on PostgreSQL.
type EntityStore struct {
	db     DB
	logger *slog.Logger
}

// Ensure EntityStore implements store.EntityStore interface
var _ store.EntityStore = (*EntityStore)(nil)

// NewEntityStore creates a PostgreSQL entity store.
// The connection pool is owned and closed by the caller.
// If logger is nil, a default logger will be used.
func NewEntityStore(db DB, logger *slog.Logger) *EntityStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityStore{
		db:     db,
		logger: logger.With(slog.String("component", "entity_store")),
	}
}

// ident quotes a table name for interpolation into SQL.
func ident(table string) string {
	return pgx.Identifier{table}.Sanitize()
}

// Insert implements store.EntityStore.Insert.
func (s *EntityStore) Insert(ctx context.Context, table string, rec store.Record) (store.Record, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`, ident(table))

	out := rec
	err := s.db.QueryRowContext(ctx, query,
		rec.Key, rec.Version, string(rec.Data), rec.CreatedAt, rec.UpdatedAt,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return store.Record{}, s.fail(ctx, "insert", table, rec.Key, err)
	}
	return out, nil
}

// Get implements store.EntityStore.Get.
func (s *EntityStore) Get(ctx context.Context, table, key string) (store.Record, error) {
	query := fmt.Sprintf(`
		SELECT id::text, version, data, created_at, updated_at
		FROM %s
		WHERE id = $1`, ident(table))

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		return store.Record{}, s.fail(ctx, "get", table, key, err)
	}
	return rec, nil
}

// List implements store.EntityStore.List. Rows are streamed to the consumer
// as they are read; every traversal runs the query again.
func (s *EntityStore) List(ctx context.Context, table string, q store.Query) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		query, args, err := listQuery(table, q)
		if err != nil {
			yield(store.Record{}, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(store.Record{}, s.fail(ctx, "list", table, "", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(store.Record{}, s.fail(ctx, "list", table, "", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(store.Record{}, s.fail(ctx, "list", table, "", err))
		}
	}
}

// listQuery builds the SELECT for a List call. Filters use JSONB containment,
// which matches top-level field equality.
func listQuery(table string, q store.Query) (string, []any, error) {
	query := fmt.Sprintf(`SELECT id::text, version, data, created_at, updated_at FROM %s`, ident(table))
	var args []any

	if len(q.Filter) > 0 {
		filter, err := json.Marshal(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("invalid filter: %w", err)
		}
		args = append(args, string(filter))
		query += ` WHERE data @> $1::jsonb`
	}

	query += ` ORDER BY seq`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	return query, args, nil
}

// Replace implements store.EntityStore.Replace. The update and the follow-up
// existence check run in one transaction so a miss is classified against the
// same snapshot.
func (s *EntityStore) Replace(
	ctx context.Context,
	table string,
	rec store.Record,
	expected int64,
) (store.Record, error) {
	out := rec
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		query := fmt.Sprintf(`
			UPDATE %s
			SET data = $2, version = version + 1, updated_at = $3
			WHERE id = $1`, ident(table))
		args := []any{rec.Key, string(rec.Data), rec.UpdatedAt}
		if expected != store.AnyVersion {
			query += ` AND version = $4`
			args = append(args, expected)
		}
		query += ` RETURNING version, created_at, updated_at`

		err := tx.QueryRowContext(ctx, query, args...).Scan(&out.Version, &out.CreatedAt, &out.UpdatedAt)
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var current int64
		err = tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT version FROM %s WHERE id = $1`, ident(table)), rec.Key,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: stored version %d, expected %d", store.ErrConflict, current, expected)
	})
	if err != nil {
		return store.Record{}, s.fail(ctx, "replace", table, rec.Key, err)
	}
	return out, nil
}

// Delete implements store.EntityStore.Delete.
func (s *EntityStore) Delete(ctx context.Context, table, key string) error {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ident(table)), key)
	if err != nil {
		return s.fail(ctx, "delete", table, key, err)
	}
	return CheckRowsAffected(result, table)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (store.Record, error) {
	var rec store.Record
	err := row.Scan(&rec.Key, &rec.Version, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// fail maps err onto the store error kinds and logs anything unexpected.
func (s *EntityStore) fail(ctx context.Context, op, table, key string, err error) error {
	mapped := MapError(err)
	switch store.Outcome(mapped) {
	case "not_found", "conflict":
	default:
		logger.FromContextOrDefault(ctx, s.logger).Warn("entity store call failed",
			slog.String("operation", op),
			slog.String("table", table),
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
	return mapped
}
