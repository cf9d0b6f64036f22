package receivables

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

// PartyBalance is the running position of one (party, tempo) group.
type PartyBalance struct {
	Key                    string                      `json:"key"`
	Party                  string                      `json:"party"`
	Tempo                  string                      `json:"tempo"`
	TotalFromTransactions  decimal.Decimal             `json:"total_from_transactions"`
	TotalFromManualCharges decimal.Decimal             `json:"total_from_manual_charges"`
	TotalPaid              decimal.Decimal             `json:"total_paid"`
	Outstanding            decimal.Decimal             `json:"outstanding"`
	LastTransactionDate    time.Time                   `json:"last_transaction_date"`
	LastPaymentDate        time.Time                   `json:"last_payment_date,omitempty"`
	DueMonth               string                      `json:"due_month,omitempty"`
	Stores                 []string                    `json:"stores"`
	Transactions           []records.TransactionRecord `json:"transactions"`
	ManualCharges          []records.ManualCharge      `json:"manual_charges"`
}

// Billed is the gross amount owed before payments.
func (b PartyBalance) Billed() decimal.Decimal {
	return b.TotalFromTransactions.Add(b.TotalFromManualCharges)
}

// Result splits groups into those still owing and those settled.
type Result struct {
	Unpaid []PartyBalance `json:"unpaid"`
	Paid   []PartyBalance `json:"paid"`
	// OrphanPayments matched no group in the window and were not applied.
	OrphanPayments []records.Payment `json:"orphan_payments,omitempty"`
}

// AggregateOptions controls counterparty resolution of movements.
type AggregateOptions struct {
	Rule records.CounterpartyRule
}

// GroupKey builds the aggregation key from already normalised parts.
func GroupKey(party, term string) string {
	return party + "_" + term
}

type group struct {
	balance PartyBalance
	stores  map[string]struct{}
}

// Aggregate groups the inputs by (party, tempo) and derives balances. Inputs
// are read only.
func Aggregate(transactions []records.TransactionRecord, charges []records.ManualCharge, payments []records.Payment, opts AggregateOptions) Result {
	rule := opts.Rule
	if rule.Primary == "" {
		rule = records.RuleFor(records.Outgoing)
	}

	groups := make(map[string]*group)
	var order []string
	lookup := func(party, term string) *group {
		key := GroupKey(party, term)
		g, ok := groups[key]
		if !ok {
			g = &group{
				balance: PartyBalance{Key: key, Party: party, Tempo: term},
				stores:  make(map[string]struct{}),
			}
			groups[key] = g
			order = append(order, key)
		}
		return g
	}

	for _, tx := range transactions {
		if !tempo.IsReceivable(tx.Tempo) {
			continue
		}
		party := tempo.NormalizeParty(records.ResolveCounterparty(tx, rule).Name)
		g := lookup(party, tempo.Normalize(tx.Tempo))
		g.balance.TotalFromTransactions = g.balance.TotalFromTransactions.Add(tx.LineTotal)
		g.balance.Transactions = append(g.balance.Transactions, tx)
		if tx.CreatedAt.After(g.balance.LastTransactionDate) {
			g.balance.LastTransactionDate = tx.CreatedAt
		}
		if tx.StoreCode != "" {
			g.stores[tx.StoreCode] = struct{}{}
		}
	}

	for _, ch := range charges {
		g := lookup(tempo.NormalizeParty(ch.Party), tempo.Normalize(ch.Tempo))
		g.balance.TotalFromManualCharges = g.balance.TotalFromManualCharges.Add(ch.Amount)
		g.balance.ManualCharges = append(g.balance.ManualCharges, ch)
		if ch.Date.After(g.balance.LastTransactionDate) {
			g.balance.LastTransactionDate = ch.Date
		}
		if ch.StoreCode != "" {
			g.stores[ch.StoreCode] = struct{}{}
		}
	}

	var orphans []records.Payment
	for _, p := range payments {
		g, ok := groups[GroupKey(tempo.NormalizeParty(p.Party), tempo.Normalize(p.Tempo))]
		if !ok {
			orphans = append(orphans, p)
			continue
		}
		g.balance.TotalPaid = g.balance.TotalPaid.Add(p.Amount)
		// Last paid follows when the payment was recorded, not its stated date.
		if p.CreatedAt.After(g.balance.LastPaymentDate) {
			g.balance.LastPaymentDate = p.CreatedAt
		}
	}

	res := Result{OrphanPayments: orphans}
	for _, key := range order {
		g := groups[key]
		b := g.balance
		b.Outstanding = b.Billed().Sub(b.TotalPaid)
		b.Stores = sortedKeys(g.stores)
		if !b.LastTransactionDate.IsZero() {
			b.DueMonth = tempo.CalculateDueMonth(b.LastTransactionDate, b.Tempo)
		}
		switch {
		case b.Outstanding.IsPositive():
			res.Unpaid = append(res.Unpaid, b)
		case b.TotalFromTransactions.IsPositive():
			res.Paid = append(res.Paid, b)
		}
	}

	sort.SliceStable(res.Unpaid, func(i, j int) bool {
		a, b := res.Unpaid[i], res.Unpaid[j]
		if c := a.Outstanding.Cmp(b.Outstanding); c != 0 {
			return c > 0
		}
		return a.Key < b.Key
	})
	sort.SliceStable(res.Paid, func(i, j int) bool {
		a, b := res.Paid[i], res.Paid[j]
		if !a.LastTransactionDate.Equal(b.LastTransactionDate) {
			return a.LastTransactionDate.After(b.LastTransactionDate)
		}
		return a.Key < b.Key
	})
	return res
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
