package receivables

import (
	"github.com/shopspring/decimal"

	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

// Stats summarises the outstanding amount of a list of balances.
type Stats struct {
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	Tempo3           decimal.Decimal `json:"tempo_3"`
	Tempo2           decimal.Decimal `json:"tempo_2"`
	Tempo1           decimal.Decimal `json:"tempo_1"`
	Other            decimal.Decimal `json:"other"`
	Count            int             `json:"count"`
}

// ComputeStats sums outstanding amounts overall and per tempo bucket. In
// substring mode a term may count toward several buckets, which can push
// Other below zero.
func ComputeStats(balances []PartyBalance, mode tempo.BucketMode) Stats {
	var s Stats
	for _, b := range balances {
		s.TotalOutstanding = s.TotalOutstanding.Add(b.Outstanding)
		m := tempo.Classify(b.Tempo, mode)
		if m.Three {
			s.Tempo3 = s.Tempo3.Add(b.Outstanding)
		}
		if m.Two {
			s.Tempo2 = s.Tempo2.Add(b.Outstanding)
		}
		if m.One {
			s.Tempo1 = s.Tempo1.Add(b.Outstanding)
		}
	}
	s.Count = len(balances)
	s.Other = s.TotalOutstanding.Sub(s.Tempo3.Add(s.Tempo2).Add(s.Tempo1))
	return s
}

// TotalPaid sums the paid amount over balances.
func TotalPaid(balances []PartyBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.TotalPaid)
	}
	return total
}
