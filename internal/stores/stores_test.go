package stores

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryTables(t *testing.T) {
	reg := DefaultRegistry()
	require.Equal(t, []string{"CABANG", "UTAMA"}, reg.Codes())

	utama, err := reg.Lookup("utama")
	require.NoError(t, err)
	require.Equal(t, "barang_masuk_utama", utama.IncomingTable())
	require.Equal(t, "barang_keluar_utama", utama.OutgoingTable())
	require.Equal(t, "stok_utama", utama.StockTable())
}

func TestLookupUnknownStore(t *testing.T) {
	_, err := DefaultRegistry().Lookup("gudang")
	require.True(t, errors.Is(err, ErrUnknownStore))
}

func TestResolveAllAndDedup(t *testing.T) {
	reg := DefaultRegistry()

	all, err := reg.Resolve([]string{"all"})
	require.NoError(t, err)
	require.Len(t, all, 2)

	some, err := reg.Resolve([]string{"cabang", "CABANG"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	require.Equal(t, "CABANG", some[0].Code)
}

func TestParseRegistryValidates(t *testing.T) {
	_, err := ParseRegistry([]byte("stores:\n  - code: a\n    table_suffix: Bad-Suffix\n"))
	require.Error(t, err)

	_, err = ParseRegistry([]byte("stores:\n  - code: a\n    table_suffix: a\n  - code: A\n    table_suffix: b\n"))
	require.ErrorContains(t, err, "duplicate")

	_, err = ParseRegistry([]byte("stores: []\n"))
	require.Error(t, err)
}

func TestLoadRegistryFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stores.yaml")
	content := `stores:
  - code: pusat
    name: Toko Pusat
    table_suffix: pusat
    timezone: Asia/Makassar
  - code: timur
    table_suffix: timur
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	pusat, err := reg.Lookup("PUSAT")
	require.NoError(t, err)
	require.Equal(t, "Toko Pusat", pusat.Name)
	require.Equal(t, "Asia/Makassar", pusat.Loc().String())

	timur, err := reg.Lookup("timur")
	require.NoError(t, err)
	require.Equal(t, "TIMUR", timur.Name)
	require.Equal(t, DefaultTimezone, timur.Loc().String())
}

func TestLoadRegistryEmptyPathUsesDefault(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	require.Len(t, reg.All(), 2)
}
