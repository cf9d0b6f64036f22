package recordstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autoparts-erp/autoparts-erp/internal/records"
)

func TestRangeQueryBuild(t *testing.T) {
	from := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 11, 30, 23, 59, 59, 0, time.UTC)
	sql, args, err := RangeQuery{
		Table:  "barang_keluar_utama",
		Column: "created_at",
		From:   from,
		To:     to,
		Predicates: []Predicate{
			NotContainsAny{Column: "tempo", Substrings: []string{"CASH", "50%"}},
			Equals{Column: "toko", Value: "UTAMA"},
		},
		Order: Descending,
	}.build()
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM "barang_keluar_utama" WHERE "created_at" >= $1 AND "created_at" <= $2`+
		` AND COALESCE("tempo"::text, '') NOT ILIKE $3 AND COALESCE("tempo"::text, '') NOT ILIKE $4`+
		` AND "toko" = $5 ORDER BY "created_at" DESC`, sql)
	require.Equal(t, []any{from, to, "%CASH%", `%50\%%`, "UTAMA"}, args)
}

func TestEqualsFoldIgnoresCase(t *testing.T) {
	sql, args, err := RangeQuery{
		Table:      "toko_tagihan",
		Column:     "tanggal",
		Predicates: []Predicate{EqualsFold{Column: "toko", Value: "utama "}},
	}.build()
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM "toko_tagihan" WHERE UPPER(TRIM(COALESCE("toko"::text, ''))) = $1 ORDER BY "tanggal" ASC`, sql)
	require.Equal(t, []any{"UTAMA"}, args)

	p := EqualsFold{Column: "toko", Value: "UTAMA"}
	require.True(t, p.match(records.Row{"toko": " utama"}))
	require.False(t, p.match(records.Row{"toko": "CABANG"}))
	require.False(t, p.match(records.Row{}))
}

func TestRangeQueryOpenBounds(t *testing.T) {
	sql, args, err := RangeQuery{Table: "toko_pembayaran", Column: "created_at"}.build()
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM "toko_pembayaran" ORDER BY "created_at" ASC`, sql)
	require.Empty(t, args)
}

func TestRangeQueryRejectsBadIdentifiers(t *testing.T) {
	_, _, err := RangeQuery{Table: "x; drop table y", Column: "created_at"}.build()
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	_, _, err = RangeQuery{Table: "ok", Column: "created_at", Predicates: []Predicate{Equals{Column: "Bad-Col"}}}.build()
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestMemoryFetchRangeAppliesPredicatesAndOrder(t *testing.T) {
	m := NewMemory()
	m.Seed("barang_keluar_utama",
		records.Row{"id": "1", "tempo": "2 BLN", "created_at": "2025-11-20"},
		records.Row{"id": "2", "tempo": "cash", "created_at": "2025-11-10"},
		records.Row{"id": "3", "tempo": nil, "created_at": "2025-11-05"},
		records.Row{"id": "4", "tempo": "1 BLN", "created_at": "2025-10-01"},
	)

	rows, err := m.FetchRange(context.Background(), RangeQuery{
		Table:      "barang_keluar_utama",
		Column:     "created_at",
		From:       time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		Predicates: []Predicate{NotContainsAny{Column: "tempo", Substrings: []string{"CASH"}}},
		Order:      Ascending,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "3", rows[0]["id"])
	require.Equal(t, "1", rows[1]["id"])
}

func TestMemoryMutations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Insert(ctx, "toko_pembayaran", records.Row{"customer": "BUDI", "jumlah": 1000})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, m.Update(ctx, "toko_pembayaran", id, records.Row{"jumlah": 2000}))
	row, err := m.Get(ctx, "toko_pembayaran", id)
	require.NoError(t, err)
	require.Equal(t, 2000, row["jumlah"])

	require.NoError(t, m.Delete(ctx, "toko_pembayaran", id))
	require.ErrorIs(t, m.Delete(ctx, "toko_pembayaran", id), ErrNotFound)
	require.ErrorIs(t, m.Update(ctx, "toko_pembayaran", id, records.Row{"jumlah": 1}), ErrNotFound)

	_, err = m.Insert(ctx, "toko_pembayaran", records.Row{})
	require.ErrorIs(t, err, ErrEmptyRow)
}

func TestMemoryWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Seed("stok_utama", records.Row{"id": "s1", "part_number": "BRK-01", "stok": 5.0})

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx Executor) error {
		next, err := tx.Increment(ctx, "stok_utama", Equals{Column: "part_number", Value: "BRK-01"}, "stok", -2)
		require.NoError(t, err)
		require.Equal(t, 3.0, next)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 5.0, m.Rows("stok_utama")[0]["stok"])

	_, err = m.Increment(ctx, "stok_utama", Equals{Column: "part_number", Value: "NOPE"}, "stok", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFailureInjection(t *testing.T) {
	m := NewMemory()
	m.Fail["toko_tagihan"] = errors.New("connection reset")
	_, err := m.FetchRange(context.Background(), RangeQuery{Table: "toko_tagihan", Column: "tanggal"})
	require.Error(t, err)
}
