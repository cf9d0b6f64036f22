package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/db"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
)

// Fetcher runs range queries.
type Fetcher interface {
	FetchRange(ctx context.Context, q RangeQuery) ([]records.Row, error)
}

// Sink applies single-row mutations.
type Sink interface {
	Insert(ctx context.Context, table string, row records.Row) (string, error)
	Update(ctx context.Context, table, id string, patch records.Row) error
	Delete(ctx context.Context, table, id string) error
}

// Executor is the statement surface available both outside and inside a
// transaction.
type Executor interface {
	Fetcher
	Sink
	Get(ctx context.Context, table, id string) (records.Row, error)
	Increment(ctx context.Context, table string, key Equals, column string, delta float64) (float64, error)
}

// Transactor can group several statements into one transaction.
type Transactor interface {
	Executor
	WithTx(ctx context.Context, fn func(Executor) error) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements Transactor on PostgreSQL.
type Store struct {
	q    querier
	pool *pgxpool.Pool
}

// New constructs a Store over the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, pool: pool}
}

// FetchRange returns the rows of q.Table within the range as plain maps.
func (s *Store) FetchRange(ctx context.Context, q RangeQuery) ([]records.Row, error) {
	sql, args, err := q.build()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("recordstore: fetch %s: %w", q.Table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("recordstore: scan %s: %w", q.Table, err)
	}
	return out, nil
}

// Get loads a single row by id.
func (s *Store) Get(ctx context.Context, table, id string) (records.Row, error) {
	t, err := quote(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id::text = $1", t), id)
	if err != nil {
		return nil, fmt.Errorf("recordstore: get %s: %w", table, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recordstore: get %s: %w", table, err)
	}
	return row, nil
}

// Insert stores row and returns the id assigned by the database.
func (s *Store) Insert(ctx context.Context, table string, row records.Row) (string, error) {
	t, err := quote(table)
	if err != nil {
		return "", err
	}
	cols, vals, err := columns(row)
	if err != nil {
		return "", err
	}
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id::text",
		t, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	var id string
	if err := s.q.QueryRow(ctx, sql, vals...).Scan(&id); err != nil {
		return "", fmt.Errorf("recordstore: insert %s: %w", table, err)
	}
	return id, nil
}

// Update applies patch to the row with the given id.
func (s *Store) Update(ctx context.Context, table, id string, patch records.Row) error {
	t, err := quote(table)
	if err != nil {
		return err
	}
	cols, vals, err := columns(patch)
	if err != nil {
		return err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
	}
	vals = append(vals, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id::text = $%d", t, strings.Join(sets, ", "), len(vals))
	tag, err := s.q.Exec(ctx, sql, vals...)
	if err != nil {
		return fmt.Errorf("recordstore: update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row with the given id.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	t, err := quote(table)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id::text = $1", t), id)
	if err != nil {
		return fmt.Errorf("recordstore: delete %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Increment adds delta to column on the row matched by key and returns the
// new value.
func (s *Store) Increment(ctx context.Context, table string, key Equals, column string, delta float64) (float64, error) {
	t, err := quote(table)
	if err != nil {
		return 0, err
	}
	c, err := quote(column)
	if err != nil {
		return 0, err
	}
	k, err := quote(key.Column)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s = COALESCE(%s, 0) + $1 WHERE %s = $2 RETURNING %s::float8", t, c, c, k, c)
	var next float64
	err = s.q.QueryRow(ctx, sql, delta, key.Value).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("recordstore: increment %s.%s: %w", table, column, err)
	}
	return next, nil
}

// WithTx runs fn inside a repeatable-read transaction. Calls made on a
// transactional Executor run fn directly.
func (s *Store) WithTx(ctx context.Context, fn func(Executor) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{q: tx})
	})
}

func columns(row records.Row) ([]string, []any, error) {
	if len(row) == 0 {
		return nil, nil, ErrEmptyRow
	}
	cols := make([]string, 0, len(row))
	for c := range row {
		if !identPattern.MatchString(c) {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = row[c]
	}
	return cols, vals, nil
}
