package receivables

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

func owing(party, term string, amount int64, storeCodes ...string) PartyBalance {
	return PartyBalance{
		Key:         GroupKey(party, term),
		Party:       party,
		Tempo:       term,
		Outstanding: decimal.NewFromInt(amount),
		Stores:      storeCodes,
	}
}

func TestComputeStatsSubstringBuckets(t *testing.T) {
	balances := []PartyBalance{
		owing("A", "3 BLN", 300),
		owing("B", "2 BLN", 200),
		owing("C", "1 BLN", 100),
		owing("D", "13 BLN", 1000),
		owing("E", "KONSINYASI", 50),
	}

	s := ComputeStats(balances, tempo.BucketModeSubstring)
	require.Equal(t, 5, s.Count)
	require.Equal(t, "1650", s.TotalOutstanding.String())
	require.Equal(t, "1300", s.Tempo3.String())
	require.Equal(t, "200", s.Tempo2.String())
	require.Equal(t, "1100", s.Tempo1.String())
	require.Equal(t, "-950", s.Other.String())
}

func TestComputeStatsExactBuckets(t *testing.T) {
	balances := []PartyBalance{
		owing("A", "3 BLN", 300),
		owing("D", "13 BLN", 1000),
		owing("E", "KONSINYASI", 50),
	}

	s := ComputeStats(balances, tempo.BucketModeExact)
	require.Equal(t, "300", s.Tempo3.String())
	require.True(t, s.Tempo1.IsZero())
	require.Equal(t, "1050", s.Other.String())
}

func TestComputeStatsEmpty(t *testing.T) {
	s := ComputeStats(nil, tempo.BucketModeSubstring)
	require.Zero(t, s.Count)
	require.True(t, s.TotalOutstanding.IsZero())
	require.True(t, s.Other.IsZero())
}
