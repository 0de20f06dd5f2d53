// Package postgres implements core.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store is a PostgreSQL-backed core.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses url, applies pool settings, connects and pings.
func Open(ctx context.Context, url string, cfg PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(pool), nil
}

// PoolConfig holds connection pool sizing.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates any missing tables. It never alters existing ones.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logging.FromContext(ctx).Info("database schema ensured")
	return nil
}

// mapError translates driver errors into core sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.Detail, core.ErrConflict)
	}
	return err
}

func tableName(kind *core.KindDefinition) string {
	return pgx.Identifier{kind.Table}.Sanitize()
}

// valueColumnName is the column holding the record payload.
func valueColumnName(kind *core.KindDefinition) string {
	if kind.IsScalar() {
		return kind.ScalarField
	}
	return "data"
}

func valueColumn(kind *core.KindDefinition) string {
	return pgx.Identifier{valueColumnName(kind)}.Sanitize()
}

// --- Records ---

func (s *Store) ListRecords(ctx context.Context, kind *core.KindDefinition, q core.ListQuery) ([]core.Record, error) {
	var (
		where []string
		args  []any
	)
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if q.Search != "" && kind.IsScalar() {
		args = append(args, q.Search)
		where = append(where, fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", valueColumn(kind), len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, owner_id, %s, created_at, updated_at FROM %s",
		valueColumn(kind), tableName(kind))
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind.Table, err)
	}
	defer rows.Close()

	recs := []core.Record{}
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind.Table, err)
	}
	return recs, nil
}

func scanRecord(kind *core.KindDefinition, row pgx.Row) (*core.Record, error) {
	rec := core.Record{Kind: kind.Key}

	if kind.IsScalar() {
		var value string
		if err := row.Scan(&rec.ID, &rec.OwnerID, &value, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		rec.Payload = core.Payload{kind.ScalarField: value}
		return &rec, nil
	}

	var raw []byte
	if err := row.Scan(&rec.ID, &rec.OwnerID, &raw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	rec.Payload = core.Payload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode %s %s payload: %w", kind.Key, rec.ID, err)
		}
	}
	return &rec, nil
}

func (s *Store) GetRecord(ctx context.Context, kind *core.KindDefinition, id string) (*core.Record, error) {
	query := fmt.Sprintf("SELECT id, owner_id, %s, created_at, updated_at FROM %s WHERE id = $1",
		valueColumn(kind), tableName(kind))
	return scanRecord(kind, s.pool.QueryRow(ctx, query, id))
}

// payloadValue returns the database value stored in the payload column.
func payloadValue(kind *core.KindDefinition, p core.Payload) (any, error) {
	if kind.IsScalar() {
		return core.Stringify(p[kind.ScalarField]), nil
	}
	if p == nil {
		p = core.Payload{}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}

// InsertRecords copies all records in a single transaction using the COPY
// protocol. Any failure rolls back the whole batch.
func (s *Store) InsertRecords(ctx context.Context, kind *core.KindDefinition, recs []core.Record) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([][]any, len(recs))
	for i, rec := range recs {
		value, err := payloadValue(kind, rec.Payload)
		if err != nil {
			return err
		}
		rows[i] = []any{rec.ID, rec.OwnerID, value, rec.CreatedAt, rec.UpdatedAt}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	columns := []string{"id", "owner_id", valueColumnName(kind), "created_at", "updated_at"}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{kind.Table}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy into %s: %w", kind.Table, mapError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", kind.Table, mapError(err))
	}
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, kind *core.KindDefinition, rec *core.Record) error {
	value, err := payloadValue(kind, rec.Payload)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET %s = $2, owner_id = $3, updated_at = $4 WHERE id = $1",
		tableName(kind), valueColumn(kind))
	tag, err := s.pool.Exec(ctx, query, rec.ID, value, rec.OwnerID, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind.Table, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, kind *core.KindDefinition, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", tableName(kind)), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind.Table, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ClearRecords(ctx context.Context, kind *core.KindDefinition) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", tableName(kind)))
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", kind.Table, err)
	}
	return tag.RowsAffected(), nil
}
