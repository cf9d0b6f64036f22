// Package recordstore fetches and mutates plain rows of the backend tables.
package recordstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autoparts-erp/autoparts-erp/internal/records"
)

var (
	// ErrNotFound is returned when an update, delete or lookup touches no row.
	ErrNotFound = errors.New("recordstore: row not found")
	// ErrInvalidIdentifier rejects table or column names outside [a-z0-9_].
	ErrInvalidIdentifier = errors.New("recordstore: invalid identifier")
	// ErrEmptyRow rejects inserts and updates without columns.
	ErrEmptyRow = errors.New("recordstore: no columns given")
)

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Order selects the sort direction of a range fetch.
type Order int

const (
	Ascending Order = iota
	Descending
)

// Predicate narrows a range fetch.
type Predicate interface {
	sql(arg func(any) string) (string, error)
	match(row records.Row) bool
}

// NotContainsAny excludes rows whose Column contains any of Substrings,
// compared case-insensitively. NULL counts as the empty string.
type NotContainsAny struct {
	Column     string
	Substrings []string
}

func (p NotContainsAny) sql(arg func(any) string) (string, error) {
	col, err := quote(p.Column)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(p.Substrings))
	for _, s := range p.Substrings {
		parts = append(parts, fmt.Sprintf("COALESCE(%s::text, '') NOT ILIKE %s", col, arg("%"+escapeLike(s)+"%")))
	}
	return strings.Join(parts, " AND "), nil
}

func (p NotContainsAny) match(row records.Row) bool {
	val := strings.ToUpper(cellString(row[p.Column]))
	for _, s := range p.Substrings {
		if strings.Contains(val, strings.ToUpper(s)) {
			return false
		}
	}
	return true
}

// Equals keeps rows whose Column equals Value.
type Equals struct {
	Column string
	Value  any
}

func (p Equals) sql(arg func(any) string) (string, error) {
	col, err := quote(p.Column)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", col, arg(p.Value)), nil
}

func (p Equals) match(row records.Row) bool {
	return cellString(row[p.Column]) == cellString(p.Value)
}

// EqualsFold keeps rows whose Column equals Value ignoring case and
// surrounding spaces. Store codes written by older clients are not
// normalised.
type EqualsFold struct {
	Column string
	Value  string
}

func (p EqualsFold) sql(arg func(any) string) (string, error) {
	col, err := quote(p.Column)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPPER(TRIM(COALESCE(%s::text, ''))) = %s", col, arg(strings.ToUpper(strings.TrimSpace(p.Value)))), nil
}

func (p EqualsFold) match(row records.Row) bool {
	return strings.EqualFold(strings.TrimSpace(cellString(row[p.Column])), strings.TrimSpace(p.Value))
}

// RangeQuery describes one range fetch over a timestamp column. A zero From
// or To leaves that side open; both bounds are inclusive.
type RangeQuery struct {
	Table      string
	Column     string
	From       time.Time
	To         time.Time
	Predicates []Predicate
	Order      Order
}

func (q RangeQuery) build() (string, []any, error) {
	table, err := quote(q.Table)
	if err != nil {
		return "", nil, err
	}
	column, err := quote(q.Column)
	if err != nil {
		return "", nil, err
	}

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var where []string
	if !q.From.IsZero() {
		where = append(where, fmt.Sprintf("%s >= %s", column, arg(q.From)))
	}
	if !q.To.IsZero() {
		where = append(where, fmt.Sprintf("%s <= %s", column, arg(q.To)))
	}
	for _, p := range q.Predicates {
		clause, err := p.sql(arg)
		if err != nil {
			return "", nil, err
		}
		if clause != "" {
			where = append(where, clause)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(column)
	if q.Order == Descending {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}
	return b.String(), args, nil
}

func quote(ident string) (string, error) {
	if !identPattern.MatchString(ident) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, ident)
	}
	return pgx.Identifier{ident}.Sanitize(), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
