package receivables

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

var outgoing = AggregateOptions{Rule: records.RuleFor(records.Outgoing)}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func sale(customer, term string, at time.Time, total int64) records.TransactionRecord {
	return records.TransactionRecord{
		Customer:  customer,
		Tempo:     term,
		CreatedAt: at,
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(total),
		LineTotal: decimal.NewFromInt(total),
		StoreCode: "UTAMA",
		Direction: records.Outgoing,
	}
}

func pay(customer, term string, created time.Time, amount int64) records.Payment {
	return records.Payment{Party: customer, Tempo: term, PaidOn: created, CreatedAt: created, Amount: decimal.NewFromInt(amount)}
}

func TestAggregateSingleCreditSale(t *testing.T) {
	txs := []records.TransactionRecord{sale("BUDI", "2 BLN", day(2025, 11, 15), 100000)}

	res := Aggregate(txs, nil, nil, outgoing)

	require.Len(t, res.Unpaid, 1)
	require.Empty(t, res.Paid)
	b := res.Unpaid[0]
	require.Equal(t, "BUDI", b.Party)
	require.Equal(t, "2 BLN", b.Tempo)
	require.Equal(t, "BUDI_2 BLN", b.Key)
	require.True(t, b.TotalFromTransactions.Equal(decimal.NewFromInt(100000)))
	require.True(t, b.Outstanding.Equal(decimal.NewFromInt(100000)))
	require.Equal(t, "2026-01", b.DueMonth)
	require.Equal(t, []string{"UTAMA"}, b.Stores)
	require.Equal(t, "2026-01", tempo.CalculateDueMonth(day(2025, 11, 15), "2 BLN"))
}

func TestAggregateFullPaymentMovesGroupToPaid(t *testing.T) {
	txs := []records.TransactionRecord{sale("BUDI", "2 BLN", day(2025, 11, 15), 100000)}
	payments := []records.Payment{pay("BUDI", "2 BLN", day(2025, 12, 1), 100000)}

	res := Aggregate(txs, nil, payments, outgoing)

	require.Empty(t, res.Unpaid)
	require.Len(t, res.Paid, 1)
	require.True(t, res.Paid[0].Outstanding.IsZero())
	require.True(t, res.Paid[0].TotalPaid.Equal(decimal.NewFromInt(100000)))
}

func TestAggregateExcludesNonCreditTempo(t *testing.T) {
	for _, term := range []string{"CASH", "cash", "Nadir", "RETUR 1", "STOK OPNAME", "", "-", "  "} {
		t.Run(fmt.Sprintf("%q", term), func(t *testing.T) {
			res := Aggregate([]records.TransactionRecord{sale("BUDI", term, day(2025, 11, 15), 5000)}, nil, nil, outgoing)
			require.Empty(t, res.Unpaid)
			require.Empty(t, res.Paid)
		})
	}
}

func TestAggregateNormalisesKeysAndFallsBackToReason(t *testing.T) {
	txs := []records.TransactionRecord{
		sale("budi ", "2 bln", day(2025, 11, 1), 1000),
		sale("BUDI", "2 BLN", day(2025, 11, 3), 2000),
		{Reason: "servis", Tempo: "1 BLN", CreatedAt: day(2025, 11, 2), LineTotal: decimal.NewFromInt(300)},
		{Tempo: "1 BLN", CreatedAt: day(2025, 11, 2), LineTotal: decimal.NewFromInt(50)},
	}

	res := Aggregate(txs, nil, nil, outgoing)

	keys := make([]string, 0, len(res.Unpaid))
	for _, b := range res.Unpaid {
		keys = append(keys, b.Key)
	}
	require.Equal(t, []string{"BUDI_2 BLN", "SERVIS_1 BLN", "UNKNOWN_1 BLN"}, keys)
	require.Len(t, res.Unpaid[0].Transactions, 2)
	require.True(t, res.Unpaid[0].LastTransactionDate.Equal(day(2025, 11, 3)))
}

func TestAggregateSupplierRule(t *testing.T) {
	txs := []records.TransactionRecord{{Supplier: "PT MAJU", Customer: "ignored", Tempo: "3 BLN", CreatedAt: day(2025, 1, 5), LineTotal: decimal.NewFromInt(10)}}
	res := Aggregate(txs, nil, nil, AggregateOptions{Rule: records.RuleFor(records.Incoming)})
	require.Equal(t, "PT MAJU", res.Unpaid[0].Party)
}

func TestAggregateManualChargesAndLastPaymentDate(t *testing.T) {
	txs := []records.TransactionRecord{sale("BUDI", "1 BLN", day(2025, 10, 1), 1000)}
	charges := []records.ManualCharge{
		{Party: "budi", Tempo: "1 bln", Date: day(2025, 10, 20), Amount: decimal.NewFromInt(500), StoreCode: "CABANG"},
		{Party: "SARI", Tempo: "2 BLN", Date: day(2025, 10, 2), Amount: decimal.NewFromInt(700)},
	}
	late := pay("BUDI", "1 BLN", day(2025, 10, 5), 200)
	late.CreatedAt = day(2025, 10, 25)
	early := pay("BUDI", "1 BLN", day(2025, 10, 30), 100)
	early.CreatedAt = day(2025, 10, 21)

	res := Aggregate(txs, charges, []records.Payment{late, early}, outgoing)

	require.Len(t, res.Unpaid, 2)
	budi := res.Unpaid[0]
	require.Equal(t, "BUDI_1 BLN", budi.Key)
	require.True(t, budi.TotalFromManualCharges.Equal(decimal.NewFromInt(500)))
	require.True(t, budi.Outstanding.Equal(decimal.NewFromInt(1200)))
	require.True(t, budi.LastTransactionDate.Equal(day(2025, 10, 20)))
	require.True(t, budi.LastPaymentDate.Equal(day(2025, 10, 25)), "last payment follows record creation")
	require.Equal(t, []string{"CABANG", "UTAMA"}, budi.Stores)

	sari := res.Unpaid[1]
	require.True(t, sari.TotalFromTransactions.IsZero())
	require.Equal(t, "2025-12", sari.DueMonth)
}

func TestAggregateChargeOnlyGroupSettledIsDropped(t *testing.T) {
	charges := []records.ManualCharge{{Party: "SARI", Tempo: "2 BLN", Date: day(2025, 10, 2), Amount: decimal.NewFromInt(700)}}
	payments := []records.Payment{pay("SARI", "2 BLN", day(2025, 10, 3), 700)}

	res := Aggregate(nil, charges, payments, outgoing)
	require.Empty(t, res.Unpaid)
	require.Empty(t, res.Paid)
}

func TestAggregateOrphanPayments(t *testing.T) {
	txs := []records.TransactionRecord{sale("BUDI", "2 BLN", day(2025, 11, 15), 100)}
	payments := []records.Payment{pay("BUDI", "3 BLN", day(2025, 11, 20), 100), pay("ANI", "2 BLN", day(2025, 11, 20), 5)}

	res := Aggregate(txs, nil, payments, outgoing)
	require.Len(t, res.Unpaid, 1)
	require.True(t, res.Unpaid[0].TotalPaid.IsZero())
	require.Len(t, res.OrphanPayments, 2)
}

func TestAggregateOrdering(t *testing.T) {
	txs := []records.TransactionRecord{
		sale("A", "1 BLN", day(2025, 1, 1), 100),
		sale("B", "1 BLN", day(2025, 1, 2), 300),
		sale("C", "1 BLN", day(2025, 1, 3), 300),
		sale("D", "1 BLN", day(2025, 1, 4), 50),
		sale("E", "1 BLN", day(2025, 1, 9), 50),
	}
	payments := []records.Payment{pay("D", "1 BLN", day(2025, 2, 1), 50), pay("E", "1 BLN", day(2025, 2, 1), 80)}

	res := Aggregate(txs, nil, payments, outgoing)
	require.Equal(t, []string{"B_1 BLN", "C_1 BLN", "A_1 BLN"}, balanceKeys(res.Unpaid))
	require.Equal(t, []string{"E_1 BLN", "D_1 BLN"}, balanceKeys(res.Paid))
	require.True(t, res.Paid[0].Outstanding.Equal(decimal.NewFromInt(-30)))
}

func balanceKeys(bs []PartyBalance) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Key
	}
	return out
}

func randomInputs(seed int64) ([]records.TransactionRecord, []records.ManualCharge, []records.Payment) {
	rng := rand.New(rand.NewSource(seed))
	parties := []string{"BUDI", "ANI", "sari", "", "PT MAJU"}
	terms := []string{"1 BLN", "2 BLN", "3 BLN", "CASH", "13 BLN", "-"}
	var txs []records.TransactionRecord
	var charges []records.ManualCharge
	var payments []records.Payment
	for i := 0; i < 60; i++ {
		at := day(2025, time.Month(1+rng.Intn(12)), 1+rng.Intn(28))
		txs = append(txs, sale(parties[rng.Intn(len(parties))], terms[rng.Intn(len(terms))], at, int64(rng.Intn(100000))))
	}
	for i := 0; i < 10; i++ {
		charges = append(charges, records.ManualCharge{
			Party:  parties[rng.Intn(len(parties))],
			Tempo:  terms[rng.Intn(3)],
			Date:   day(2025, time.Month(1+rng.Intn(12)), 1),
			Amount: decimal.NewFromInt(int64(rng.Intn(50000))),
		})
	}
	for i := 0; i < 25; i++ {
		payments = append(payments, pay(parties[rng.Intn(len(parties))], terms[rng.Intn(len(terms))], day(2025, 12, 1+rng.Intn(28)), int64(rng.Intn(120000))))
	}
	return txs, charges, payments
}

func TestAggregateBalanceIdentityOverUnpaid(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		txs, charges, payments := randomInputs(seed)
		res := Aggregate(txs, charges, payments, outgoing)

		outstanding, paid, billed := decimal.Zero, decimal.Zero, decimal.Zero
		for _, b := range res.Unpaid {
			outstanding = outstanding.Add(b.Outstanding)
			paid = paid.Add(b.TotalPaid)
			billed = billed.Add(b.TotalFromTransactions).Add(b.TotalFromManualCharges)
			require.True(t, b.TotalPaid.LessThan(b.Billed()), "fully paid group %s in unpaid", b.Key)
		}
		require.True(t, outstanding.Add(paid).Equal(billed), "seed %d", seed)
	}
}

func TestAggregateIsIdempotentAndLeavesInputsUntouched(t *testing.T) {
	txs, charges, payments := randomInputs(7)
	txCopy := append([]records.TransactionRecord(nil), txs...)
	chargeCopy := append([]records.ManualCharge(nil), charges...)
	paymentCopy := append([]records.Payment(nil), payments...)

	first := Aggregate(txs, charges, payments, outgoing)
	second := Aggregate(txs, charges, payments, outgoing)

	require.Equal(t, first, second)
	require.Equal(t, txCopy, txs)
	require.Equal(t, chargeCopy, charges)
	require.Equal(t, paymentCopy, payments)
}
