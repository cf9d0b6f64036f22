package recordstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/autoparts-erp/autoparts-erp/internal/records"
)

// Memory is an in-process Transactor holding tables as row slices. It backs
// tests and the offline CLI mode.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]records.Row
	// Fail, when set, is returned by every call touching the named table.
	Fail map[string]error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]records.Row), Fail: make(map[string]error)}
}

// Seed appends rows to table, assigning ids where missing.
func (m *Memory) Seed(table string, rows ...records.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		cp := copyRow(r)
		if cellString(cp[records.ColID]) == "" {
			cp[records.ColID] = uuid.NewString()
		}
		m.tables[table] = append(m.tables[table], cp)
	}
}

// Rows returns a copy of the rows currently stored in table.
func (m *Memory) Rows(table string) []records.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]records.Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

func (m *Memory) check(table string) error {
	if _, err := quote(table); err != nil {
		return err
	}
	if err := m.Fail[table]; err != nil {
		return fmt.Errorf("recordstore: %s: %w", table, err)
	}
	return nil
}

// FetchRange filters the rows of q.Table the same way the SQL query does.
func (m *Memory) FetchRange(ctx context.Context, q RangeQuery) ([]records.Row, error) {
	if _, _, err := q.build(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(q.Table); err != nil {
		return nil, err
	}

	var out []records.Row
	for _, r := range m.tables[q.Table] {
		at := rowTime(r[q.Column])
		if !q.From.IsZero() && (at.IsZero() || at.Before(q.From)) {
			continue
		}
		if !q.To.IsZero() && (at.IsZero() || at.After(q.To)) {
			continue
		}
		keep := true
		for _, p := range q.Predicates {
			if !p.match(r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, copyRow(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := rowTime(out[i][q.Column]), rowTime(out[j][q.Column])
		if q.Order == Descending {
			return a.After(b)
		}
		return a.Before(b)
	})
	return out, nil
}

// Get returns a copy of the row with the given id.
func (m *Memory) Get(ctx context.Context, table, id string) (records.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(table); err != nil {
		return nil, err
	}
	i := m.index(table, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return copyRow(m.tables[table][i]), nil
}

// Insert appends row and returns its id.
func (m *Memory) Insert(ctx context.Context, table string, row records.Row) (string, error) {
	if _, _, err := columns(row); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(table); err != nil {
		return "", err
	}
	cp := copyRow(row)
	id := cellString(cp[records.ColID])
	if id == "" {
		id = uuid.NewString()
		cp[records.ColID] = id
	}
	if _, ok := cp[records.ColCreatedAt]; !ok {
		cp[records.ColCreatedAt] = time.Now()
	}
	m.tables[table] = append(m.tables[table], cp)
	return id, nil
}

// Update merges patch into the row with the given id.
func (m *Memory) Update(ctx context.Context, table, id string, patch records.Row) error {
	if _, _, err := columns(patch); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(table); err != nil {
		return err
	}
	i := m.index(table, id)
	if i < 0 {
		return ErrNotFound
	}
	for k, v := range patch {
		m.tables[table][i][k] = v
	}
	return nil
}

// Delete removes the row with the given id.
func (m *Memory) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(table); err != nil {
		return err
	}
	i := m.index(table, id)
	if i < 0 {
		return ErrNotFound
	}
	rows := m.tables[table]
	m.tables[table] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

// Increment adds delta to column on the first row matched by key.
func (m *Memory) Increment(ctx context.Context, table string, key Equals, column string, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(table); err != nil {
		return 0, err
	}
	for _, r := range m.tables[table] {
		if key.match(r) {
			next := cast.ToFloat64(r[column]) + delta
			r[column] = next
			return next, nil
		}
	}
	return 0, ErrNotFound
}

// WithTx snapshots every table and restores the snapshot when fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(Executor) error) error {
	m.mu.Lock()
	snapshot := make(map[string][]records.Row, len(m.tables))
	for t, rows := range m.tables {
		cp := make([]records.Row, len(rows))
		for i, r := range rows {
			cp[i] = copyRow(r)
		}
		snapshot[t] = cp
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.tables = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) index(table, id string) int {
	for i, r := range m.tables[table] {
		if cellString(r[records.ColID]) == id {
			return i
		}
	}
	return -1
}

func copyRow(r records.Row) records.Row {
	cp := make(records.Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

func rowTime(v any) time.Time {
	return records.Timestamp(v, time.UTC)
}
