package receivables

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleBalances() []PartyBalance {
	return []PartyBalance{
		owing("BUDI SANTOSO", "2 BLN", 100, "UTAMA"),
		owing("ANI", "1 BLN", 50, "CABANG"),
		owing("PT BUDI JAYA", "3 BLN", 70, "UTAMA", "CABANG"),
		owing("SARI", "2 BLN", 30, "CABANG"),
	}
}

func TestFilterSearchIsCaseInsensitiveSubstring(t *testing.T) {
	got := Filter(sampleBalances(), Criteria{Search: "budi"})
	require.Equal(t, []string{"BUDI SANTOSO_2 BLN", "PT BUDI JAYA_3 BLN"}, balanceKeys(got))

	require.Len(t, Filter(sampleBalances(), Criteria{}), 4)
	require.Len(t, Filter(sampleBalances(), Criteria{Search: "   "}), 4)
}

func TestFilterEmptyAndFullSelectionsAreEquivalent(t *testing.T) {
	balances := sampleBalances()
	empty := Filter(balances, Criteria{})
	full := Filter(balances, Criteria{
		Tempo:  Selection(TempoOptions(balances)),
		Stores: Selection(StoreOptions(balances)),
	})
	require.Equal(t, len(empty), len(full))

	lower := Filter(balances, Criteria{Tempo: Selection{"1 bln", "2 bln", "3 bln"}})
	require.Len(t, lower, len(empty))
}

func TestFilterPartialSelections(t *testing.T) {
	balances := sampleBalances()

	got := Filter(balances, Criteria{Tempo: Selection{"2 BLN"}})
	require.Equal(t, []string{"BUDI SANTOSO_2 BLN", "SARI_2 BLN"}, balanceKeys(got))

	got = Filter(balances, Criteria{Stores: Selection{"utama"}})
	require.Equal(t, []string{"BUDI SANTOSO_2 BLN", "PT BUDI JAYA_3 BLN"}, balanceKeys(got))

	got = Filter(balances, Criteria{Search: "sari", Tempo: Selection{"2 BLN"}, Stores: Selection{"CABANG"}})
	require.Equal(t, []string{"SARI_2 BLN"}, balanceKeys(got))
}

func TestSelectionIndicatorsAreIndependent(t *testing.T) {
	available := []string{"1 BLN", "2 BLN"}

	require.False(t, Selection(nil).Applies(available))
	require.False(t, Selection(nil).BadgeVisible(available))

	require.False(t, Selection{"1 BLN", "2 BLN"}.Applies(available))
	require.False(t, Selection{"1 BLN", "2 BLN"}.BadgeVisible(available))

	require.True(t, Selection{"1 BLN"}.Applies(available))
	require.True(t, Selection{"1 BLN"}.BadgeVisible(available))

	require.True(t, Selection{"5 BLN"}.Applies(available))
	require.True(t, Selection{"5 BLN"}.BadgeVisible(available))

	require.False(t, Selection{"5 BLN"}.Applies(nil))
	require.False(t, Selection{"5 BLN"}.BadgeVisible(nil))
}

func TestCriteriaState(t *testing.T) {
	c := Criteria{Search: "x", Tempo: Selection{"1 BLN"}}.Normalized()
	state := c.State([]string{"1 BLN", "2 BLN"}, []string{"UTAMA"})
	require.True(t, state.SearchActive)
	require.True(t, state.TempoActive)
	require.True(t, state.TempoBadge)
	require.False(t, state.StoresActive)
	require.Equal(t, 2, state.AvailableTempo)
	require.Equal(t, 1, state.SelectedTempo)
}

func TestOptions(t *testing.T) {
	balances := sampleBalances()
	require.Equal(t, []string{"1 BLN", "2 BLN", "3 BLN"}, TempoOptions(balances))
	require.Equal(t, []string{"CABANG", "UTAMA"}, StoreOptions(balances))
}
