// Package postgres implements store.EntityStore on PostgreSQL through the pgx
// database/sql driver. Each entity kind lives in its own table holding the key,
// the concurrency version, the JSONB document and the lifecycle timestamps.
//
// The package also owns the embedded goose migrations creating those tables.
package postgres
