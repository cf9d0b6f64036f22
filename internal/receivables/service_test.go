package receivables

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
)

type countingRecorder struct {
	orphans    int
	mismatches int
	hits       int
	misses     int
}

func (c *countingRecorder) OrphanPayments(ledger string, n int)      { c.orphans += n }
func (c *countingRecorder) LineTotalMismatches(ledger string, n int) { c.mismatches += n }

func (c *countingRecorder) CacheLookup(ledger string, hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func jakartaTime(t *testing.T, y int, m time.Month, d int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	return time.Date(y, m, d, 9, 0, 0, 0, loc)
}

func seedStores(t *testing.T) *recordstore.Memory {
	t.Helper()
	mem := recordstore.NewMemory()
	mem.Seed("barang_keluar_utama",
		records.Row{"customer": "BUDI", "tempo": "2 BLN", "qty": 1, "harga_satuan": 100000, "harga_total": 100000, "created_at": jakartaTime(t, 2025, 11, 15)},
		records.Row{"customer": "BUDI", "tempo": "CASH", "qty": 1, "harga_satuan": 5000, "harga_total": 5000, "created_at": jakartaTime(t, 2025, 11, 16)},
		records.Row{"customer": "ANI", "tempo": "1 BLN", "qty": 2, "harga_satuan": 10000, "harga_total": 25000, "created_at": jakartaTime(t, 2025, 11, 20)},
	)
	mem.Seed("barang_keluar_cabang",
		records.Row{"customer": "SARI", "tempo": "3 BLN", "qty": 1, "harga_satuan": 70000, "harga_total": 70000, "created_at": jakartaTime(t, 2025, 11, 3)},
	)
	mem.Seed("toko_tagihan",
		records.Row{"customer": "ANI", "tempo": "1 BLN", "tanggal": jakartaTime(t, 2025, 11, 21), "jumlah": 5000, "toko": "UTAMA"},
	)
	mem.Seed("toko_pembayaran",
		records.Row{"customer": "ANI", "tempo": "1 BLN", "tanggal": jakartaTime(t, 2025, 12, 2), "jumlah": 30000, "toko": "UTAMA", "created_at": jakartaTime(t, 2025, 12, 2)},
		records.Row{"customer": "GHOST", "tempo": "1 BLN", "tanggal": jakartaTime(t, 2025, 12, 2), "jumlah": 1, "toko": "UTAMA", "created_at": jakartaTime(t, 2025, 12, 2)},
	)
	return mem
}

func novemberRequest(scope []stores.StoreContext) ViewRequest {
	return ViewRequest{
		Ledger: CustomerLedger,
		Stores: scope,
		From:   time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestServiceViewAggregatesAcrossStores(t *testing.T) {
	mem := seedStores(t)
	rec := &countingRecorder{}
	svc := NewService(mem, nil, Options{Metrics: rec})

	view, err := svc.View(context.Background(), novemberRequest(stores.DefaultRegistry().All()))
	require.NoError(t, err)

	require.Equal(t, []string{"BUDI_2 BLN", "SARI_3 BLN"}, balanceKeys(view.Unpaid))
	require.Equal(t, []string{"ANI_1 BLN"}, balanceKeys(view.Paid))
	require.Equal(t, "170000", view.Stats.TotalOutstanding.String())
	require.Equal(t, "30000", view.PaidTotal.String())
	require.Equal(t, []string{"1 BLN", "2 BLN", "3 BLN"}, view.TempoOptions)
	require.Equal(t, []string{"CABANG", "UTAMA"}, view.StoreOptions)
	require.Len(t, view.OrphanPayments, 1)
	require.Equal(t, 1, rec.orphans)
	require.Equal(t, 1, rec.mismatches)
	require.Equal(t, "2025-11-01", view.From)
}

func TestServiceViewScopesToSelectedStore(t *testing.T) {
	mem := seedStores(t)
	svc := NewService(mem, nil, Options{})
	cabang, err := stores.DefaultRegistry().Lookup("CABANG")
	require.NoError(t, err)

	view, err := svc.View(context.Background(), novemberRequest([]stores.StoreContext{cabang}))
	require.NoError(t, err)
	require.Equal(t, []string{"SARI_3 BLN"}, balanceKeys(view.Unpaid))
	require.Empty(t, view.Paid)
}

func TestServiceViewAppliesCriteriaAfterAggregation(t *testing.T) {
	mem := seedStores(t)
	svc := NewService(mem, nil, Options{})
	req := novemberRequest(stores.DefaultRegistry().All())
	req.Criteria = Criteria{Tempo: Selection{"3 bln"}}

	view, err := svc.View(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"SARI_3 BLN"}, balanceKeys(view.Unpaid))
	require.Empty(t, view.Paid)
	require.True(t, view.FilterState.TempoActive)
	require.Equal(t, "70000", view.Stats.TotalOutstanding.String())
	require.Equal(t, []string{"1 BLN", "2 BLN", "3 BLN"}, view.TempoOptions)
}

func TestServiceViewUsesCacheUntilBumped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := seedStores(t)
	cache := NewCache(client, time.Minute)
	rec := &countingRecorder{}
	svc := NewService(mem, cache, Options{Metrics: rec})
	req := novemberRequest(stores.DefaultRegistry().All())

	first, err := svc.View(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Unpaid, 2)

	mem.Seed("barang_keluar_utama", records.Row{"customer": "DEDI", "tempo": "1 BLN", "harga_total": 1000, "created_at": jakartaTime(t, 2025, 11, 25)})

	cached, err := svc.View(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, cached.Unpaid, 2)

	require.NoError(t, cache.Bump(context.Background()))
	fresh, err := svc.View(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, fresh.Unpaid, 3)
	require.Equal(t, 1, rec.hits)
	require.Equal(t, 2, rec.misses)
}

func TestServiceViewDegradesWhenCacheIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	svc := NewService(seedStores(t), NewCache(client, time.Minute), Options{})
	view, err := svc.View(context.Background(), novemberRequest(stores.DefaultRegistry().All()))
	require.NoError(t, err)
	require.Len(t, view.Unpaid, 2)
}

func TestServiceViewMatchesLowercaseStoreCodes(t *testing.T) {
	mem := recordstore.NewMemory()
	mem.Seed("barang_keluar_utama",
		records.Row{"customer": "ANI", "tempo": "1 BLN", "harga_total": 25000, "created_at": jakartaTime(t, 2025, 11, 20)},
	)
	mem.Seed("toko_pembayaran",
		records.Row{"customer": "ANI", "tempo": "1 BLN", "tanggal": jakartaTime(t, 2025, 11, 25), "jumlah": 25000, "toko": "utama ", "created_at": jakartaTime(t, 2025, 11, 25)},
	)
	svc := NewService(mem, nil, Options{})

	view, err := svc.View(context.Background(), novemberRequest(stores.DefaultRegistry().All()))
	require.NoError(t, err)
	require.Empty(t, view.Unpaid)
	require.Equal(t, []string{"ANI_1 BLN"}, balanceKeys(view.Paid))
	require.Empty(t, view.OrphanPayments)
}

func TestServiceViewTransportFailure(t *testing.T) {
	mem := seedStores(t)
	mem.Fail["toko_pembayaran"] = errors.New("connection reset by peer")
	svc := NewService(mem, nil, Options{})

	_, err := svc.View(context.Background(), novemberRequest(stores.DefaultRegistry().All()))
	require.ErrorIs(t, err, httpx.ErrUpstream)
}

func TestServiceViewValidation(t *testing.T) {
	svc := NewService(recordstore.NewMemory(), nil, Options{})

	_, err := svc.View(context.Background(), ViewRequest{Ledger: CustomerLedger})
	require.ErrorIs(t, err, httpx.ErrValidation)

	req := novemberRequest(stores.DefaultRegistry().All())
	req.From, req.To = req.To, req.From
	_, err = svc.View(context.Background(), req)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestServiceViewCancelledCaller(t *testing.T) {
	svc := NewService(seedStores(t), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.View(ctx, novemberRequest(stores.DefaultRegistry().All()))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSupplierLedgerView(t *testing.T) {
	mem := recordstore.NewMemory()
	mem.Seed("barang_masuk_utama",
		records.Row{"supplier": "PT MAJU", "tempo": "3 BLN", "harga_total": 900000, "created_at": jakartaTime(t, 2025, 11, 2)},
	)
	mem.Seed("importir_pembayaran",
		records.Row{"importir": "pt maju", "tempo": "3 bln", "jumlah": 400000, "toko": "UTAMA", "tanggal": jakartaTime(t, 2025, 11, 30), "created_at": jakartaTime(t, 2025, 11, 30)},
	)
	svc := NewService(mem, nil, Options{})
	req := novemberRequest(stores.DefaultRegistry().All())
	req.Ledger = SupplierLedger

	view, err := svc.View(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, view.Unpaid, 1)
	require.Equal(t, "500000", view.Unpaid[0].Outstanding.String())
	require.Equal(t, "2026-02", view.Unpaid[0].DueMonth)
}
