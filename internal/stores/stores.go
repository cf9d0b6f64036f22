// Package stores describes the physical shops whose stock movements live in
// per-store tables. A StoreContext is passed explicitly to every fetch and
// aggregation call.
package stores

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultTimezone is used when a store definition omits one.
const DefaultTimezone = "Asia/Jakarta"

var suffixPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ErrUnknownStore is returned when a store code is not registered.
var ErrUnknownStore = errors.New("stores: unknown store")

// StoreContext identifies one store and the table suffix of its movement tables.
type StoreContext struct {
	Code        string
	Name        string
	TableSuffix string
	Location    *time.Location
}

// IncomingTable is the stock-in table of the store.
func (s StoreContext) IncomingTable() string {
	return "barang_masuk_" + s.TableSuffix
}

// OutgoingTable is the stock-out table of the store.
func (s StoreContext) OutgoingTable() string {
	return "barang_keluar_" + s.TableSuffix
}

// StockTable holds the current stock level per part number.
func (s StoreContext) StockTable() string {
	return "stok_" + s.TableSuffix
}

// Loc returns the store location, falling back to time.Local.
func (s StoreContext) Loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Registry is an immutable, ordered set of stores.
type Registry struct {
	stores []StoreContext
	byCode map[string]int
}

// NewRegistry validates the definitions and builds a registry.
func NewRegistry(defs ...StoreContext) (*Registry, error) {
	if len(defs) == 0 {
		return nil, errors.New("stores: at least one store required")
	}
	reg := &Registry{byCode: make(map[string]int, len(defs))}
	for _, def := range defs {
		def.Code = strings.ToUpper(strings.TrimSpace(def.Code))
		if def.Code == "" {
			return nil, errors.New("stores: code required")
		}
		if !suffixPattern.MatchString(def.TableSuffix) {
			return nil, fmt.Errorf("stores: invalid table suffix %q for %s", def.TableSuffix, def.Code)
		}
		if _, dup := reg.byCode[def.Code]; dup {
			return nil, fmt.Errorf("stores: duplicate code %s", def.Code)
		}
		if def.Name == "" {
			def.Name = def.Code
		}
		reg.byCode[def.Code] = len(reg.stores)
		reg.stores = append(reg.stores, def)
	}
	return reg, nil
}

// DefaultRegistry returns the two stores the business operates.
func DefaultRegistry() *Registry {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.Local
	}
	reg, _ := NewRegistry(
		StoreContext{Code: "UTAMA", Name: "Toko Utama", TableSuffix: "utama", Location: loc},
		StoreContext{Code: "CABANG", Name: "Toko Cabang", TableSuffix: "cabang", Location: loc},
	)
	return reg
}

// Lookup resolves a store by code, case-insensitively.
func (r *Registry) Lookup(code string) (StoreContext, error) {
	if r == nil {
		return StoreContext{}, ErrUnknownStore
	}
	idx, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return StoreContext{}, fmt.Errorf("%w: %q", ErrUnknownStore, code)
	}
	return r.stores[idx], nil
}

// Resolve maps a list of codes to stores. An empty list or the single value
// "all" selects every store.
func (r *Registry) Resolve(codes []string) ([]StoreContext, error) {
	if len(codes) == 0 || (len(codes) == 1 && strings.EqualFold(codes[0], "all")) {
		return r.All(), nil
	}
	seen := make(map[string]struct{}, len(codes))
	out := make([]StoreContext, 0, len(codes))
	for _, code := range codes {
		store, err := r.Lookup(code)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[store.Code]; dup {
			continue
		}
		seen[store.Code] = struct{}{}
		out = append(out, store)
	}
	return out, nil
}

// All returns a copy of the registered stores in definition order.
func (r *Registry) All() []StoreContext {
	if r == nil {
		return nil
	}
	out := make([]StoreContext, len(r.stores))
	copy(out, r.stores)
	return out
}

// Codes returns the sorted store codes.
func (r *Registry) Codes() []string {
	if r == nil {
		return nil
	}
	codes := make([]string, 0, len(r.stores))
	for _, s := range r.stores {
		codes = append(codes, s.Code)
	}
	sort.Strings(codes)
	return codes
}
