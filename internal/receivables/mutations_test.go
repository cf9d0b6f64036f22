package receivables

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/autoparts-erp/autoparts-erp/internal/platform/httpx"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/shared"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
)

type memoryAudit struct {
	entries []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.entries = append(m.entries, log)
	return nil
}

type memoryIdempotency struct {
	keys map[string]string
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type mutationFixture struct {
	mem   *recordstore.Memory
	svc   *MutationService
	audit *memoryAudit
	idem  *memoryIdempotency
	cache *Cache
}

func newMutationFixture(t *testing.T) mutationFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := mutationFixture{
		mem:   recordstore.NewMemory(),
		audit: &memoryAudit{},
		idem:  &memoryIdempotency{keys: map[string]string{}},
		cache: NewCache(client, time.Minute),
	}
	f.svc = NewMutationService(f.mem, stores.DefaultRegistry(), f.cache, f.audit, f.idem, nil)
	f.svc.now = func() time.Time { return time.Date(2025, 12, 2, 8, 0, 0, 0, time.UTC) }
	return f
}

func validPayment() PaymentInput {
	return PaymentInput{
		Party:     "Budi",
		Tempo:     "2 BLN",
		PaidOn:    "2025-12-01",
		Amount:    decimal.NewFromInt(50000),
		Store:     "utama",
		ForMonths: []string{"2025-11"},
	}
}

func TestCreatePaymentPersistsAuditsAndBumpsCache(t *testing.T) {
	f := newMutationFixture(t)
	ctx := context.Background()
	before, err := f.cache.Version(ctx)
	require.NoError(t, err)

	p, err := f.svc.CreatePayment(ctx, CustomerLedger, validPayment(), MutationMeta{Actor: "rina", IdempotencyKey: "k-1"})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "UTAMA", p.StoreCode)

	rows := f.mem.Rows("toko_pembayaran")
	require.Len(t, rows, 1)
	require.Equal(t, "Budi", rows[0]["customer"])
	require.Equal(t, "2025-11", rows[0]["for_months"])
	require.Equal(t, p.ID, rows[0]["id"])

	require.Len(t, f.audit.entries, 1)
	require.Equal(t, "rina", f.audit.entries[0].Actor)
	require.Equal(t, "toko_pembayaran", f.audit.entries[0].Entity)

	after, err := f.cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)
}

func TestCreatePaymentRejectsDuplicateIdempotencyKey(t *testing.T) {
	f := newMutationFixture(t)
	ctx := context.Background()
	meta := MutationMeta{IdempotencyKey: "same"}

	_, err := f.svc.CreatePayment(ctx, CustomerLedger, validPayment(), meta)
	require.NoError(t, err)
	_, err = f.svc.CreatePayment(ctx, CustomerLedger, validPayment(), meta)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	require.Len(t, f.mem.Rows("toko_pembayaran"), 1)
}

func TestPaymentValidationHappensBeforeAnyWrite(t *testing.T) {
	cases := map[string]func(*PaymentInput){
		"zero amount":     func(in *PaymentInput) { in.Amount = decimal.Zero },
		"negative amount": func(in *PaymentInput) { in.Amount = decimal.NewFromInt(-5) },
		"missing party":   func(in *PaymentInput) { in.Party = "" },
		"blank tempo":     func(in *PaymentInput) { in.Tempo = "   " },
		"bad date":        func(in *PaymentInput) { in.PaidOn = "01/12/2025" },
		"unknown store":   func(in *PaymentInput) { in.Store = "GUDANG" },
		"bad month":       func(in *PaymentInput) { in.ForMonths = []string{"2025-13"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newMutationFixture(t)
			f.mem.Fail["toko_pembayaran"] = errors.New("must not be called")
			in := validPayment()
			mutate(&in)

			_, err := f.svc.CreatePayment(context.Background(), CustomerLedger, in, MutationMeta{IdempotencyKey: "k"})
			require.ErrorIs(t, err, httpx.ErrValidation)
			require.Empty(t, f.idem.keys)
			require.Empty(t, f.audit.entries)
		})
	}
}

func TestSupplierPaymentRejectsForMonths(t *testing.T) {
	f := newMutationFixture(t)
	_, err := f.svc.CreatePayment(context.Background(), SupplierLedger, validPayment(), MutationMeta{})
	require.ErrorIs(t, err, httpx.ErrValidation)

	in := validPayment()
	in.ForMonths = nil
	p, err := f.svc.CreatePayment(context.Background(), SupplierLedger, in, MutationMeta{})
	require.NoError(t, err)
	rows := f.mem.Rows("importir_pembayaran")
	require.Len(t, rows, 1)
	require.Equal(t, p.Party, rows[0]["importir"])
}

func TestMutationFailureLeavesCacheAndKeysUntouched(t *testing.T) {
	f := newMutationFixture(t)
	ctx := context.Background()
	f.mem.Fail["toko_tagihan"] = errors.New("timeout")
	before, err := f.cache.Version(ctx)
	require.NoError(t, err)

	_, err = f.svc.CreateCharge(ctx, CustomerLedger, ChargeInput{
		Party: "ANI", Tempo: "1 BLN", Date: "2025-11-20", Amount: decimal.NewFromInt(1000), Store: "CABANG",
	}, MutationMeta{IdempotencyKey: "retry-me"})
	require.ErrorIs(t, err, httpx.ErrUpstream)

	after, err := f.cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Empty(t, f.idem.keys)
	require.Empty(t, f.audit.entries)
}

func TestChargeLifecycle(t *testing.T) {
	f := newMutationFixture(t)
	ctx := context.Background()
	in := ChargeInput{Party: "ANI", Tempo: "1 BLN", Date: "2025-11-20", Amount: decimal.NewFromInt(1000), Store: "CABANG", Note: "ongkir"}

	c, err := f.svc.CreateCharge(ctx, CustomerLedger, in, MutationMeta{})
	require.NoError(t, err)

	in.Amount = decimal.NewFromInt(1500)
	_, err = f.svc.UpdateCharge(ctx, CustomerLedger, c.ID, in, MutationMeta{})
	require.NoError(t, err)
	rows := f.mem.Rows("toko_tagihan")
	require.Equal(t, "1500", rows[0]["jumlah"].(decimal.Decimal).String())

	require.NoError(t, f.svc.DeleteCharge(ctx, CustomerLedger, c.ID, MutationMeta{}))
	require.Empty(t, f.mem.Rows("toko_tagihan"))

	err = f.svc.DeleteCharge(ctx, CustomerLedger, c.ID, MutationMeta{})
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.Len(t, f.audit.entries, 3)
}

func TestUpdatePaymentClearsMonths(t *testing.T) {
	f := newMutationFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePayment(ctx, CustomerLedger, validPayment(), MutationMeta{})
	require.NoError(t, err)

	in := validPayment()
	in.ForMonths = nil
	_, err = f.svc.UpdatePayment(ctx, CustomerLedger, p.ID, in, MutationMeta{})
	require.NoError(t, err)
	require.Nil(t, f.mem.Rows("toko_pembayaran")[0]["for_months"])

	_, err = f.svc.UpdatePayment(ctx, CustomerLedger, "", in, MutationMeta{})
	require.ErrorIs(t, err, httpx.ErrValidation)
}
