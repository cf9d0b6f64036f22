package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &fakeExecer{}
	logger := NewAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{Action: "create", Entity: "toko_pembayaran", EntityID: "p1", Meta: map[string]any{"amount": "1000"}})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	require.Equal(t, SystemActor, db.calls[0].args[0])
	require.JSONEq(t, `{"amount":"1000"}`, string(db.calls[0].args[4].([]byte)))

	err = logger.Record(context.Background(), AuditLog{Action: "create"})
	require.Error(t, err)

	var nilLogger *AuditLogger
	require.ErrorIs(t, nilLogger.Record(context.Background(), AuditLog{}), ErrNotInitialised)
}

func TestIdempotencyConflict(t *testing.T) {
	db := &fakeExecer{err: &pgconn.PgError{Code: "23505"}}
	store := NewIdempotencyStore(db)
	err := store.CheckAndInsert(context.Background(), "k1", "receivables.payment")
	require.ErrorIs(t, err, ErrIdempotencyConflict)

	db.err = errors.New("network")
	err = store.CheckAndInsert(context.Background(), "k1", "receivables.payment")
	require.EqualError(t, err, "network")

	require.Error(t, store.CheckAndInsert(context.Background(), "", "m"))
}

func TestIdempotencyCleanupUsesClock(t *testing.T) {
	db := &fakeExecer{}
	store := NewIdempotencyStore(db)
	now := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Cleanup(context.Background(), 24*time.Hour))
	require.Equal(t, now.Add(-24*time.Hour), db.calls[0].args[0])
}

func TestActorFromContext(t *testing.T) {
	require.Equal(t, SystemActor, ActorFromContext(context.Background()))
	ctx := ContextWithActor(context.Background(), "rina")
	require.Equal(t, "rina", ActorFromContext(ctx))
}
