package receivables

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/autoparts-erp/autoparts-erp/internal/tempo"
)

// Selection is a multi-select over categorical values. Empty and complete
// selections mean "everything".
type Selection []string

func (s Selection) set() map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		out[v] = struct{}{}
	}
	return out
}

func (s Selection) covers(available []string) bool {
	chosen := s.set()
	for _, v := range available {
		if _, ok := chosen[v]; !ok {
			return false
		}
	}
	return true
}

// Applies reports whether the selection narrows the rows.
func (s Selection) Applies(available []string) bool {
	if len(s) == 0 {
		return false
	}
	return !s.covers(available)
}

// BadgeVisible reports whether the filter control shows its active badge.
func (s Selection) BadgeVisible(available []string) bool {
	if len(s) == 0 || len(available) == 0 {
		return false
	}
	return !s.covers(available)
}

// Contains reports whether v was selected.
func (s Selection) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Criteria are the user's search and filter inputs.
type Criteria struct {
	Search string    `json:"search,omitempty"`
	Tempo  Selection `json:"tempo,omitempty"`
	Stores Selection `json:"stores,omitempty"`
}

// Normalized upper-cases the categorical selections to match balance values.
func (c Criteria) Normalized() Criteria {
	out := Criteria{Search: strings.TrimSpace(c.Search)}
	for _, t := range c.Tempo {
		if strings.TrimSpace(t) != "" {
			out.Tempo = append(out.Tempo, tempo.Normalize(t))
		}
	}
	for _, s := range c.Stores {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out.Stores = append(out.Stores, s)
		}
	}
	return out
}

// FilterState carries the UI indicators derived from the criteria.
type FilterState struct {
	SearchActive    bool `json:"search_active"`
	TempoActive     bool `json:"tempo_active"`
	TempoBadge      bool `json:"tempo_badge"`
	StoresActive    bool `json:"stores_active"`
	StoresBadge     bool `json:"stores_badge"`
	SelectedTempo   int  `json:"selected_tempo"`
	SelectedStores  int  `json:"selected_stores"`
	AvailableTempo  int  `json:"available_tempo"`
	AvailableStores int  `json:"available_stores"`
}

// State derives the indicators for the given option lists.
func (c Criteria) State(tempoOptions, storeOptions []string) FilterState {
	return FilterState{
		SearchActive:    c.Search != "",
		TempoActive:     c.Tempo.Applies(tempoOptions),
		TempoBadge:      c.Tempo.BadgeVisible(tempoOptions),
		StoresActive:    c.Stores.Applies(storeOptions),
		StoresBadge:     c.Stores.BadgeVisible(storeOptions),
		SelectedTempo:   len(c.Tempo),
		SelectedStores:  len(c.Stores),
		AvailableTempo:  len(tempoOptions),
		AvailableStores: len(storeOptions),
	}
}

// Filter keeps balances matching the search term and selections. Options
// are derived from balances itself, so a selection naming every present
// value behaves exactly like no selection.
func Filter(balances []PartyBalance, criteria Criteria) []PartyBalance {
	c := criteria.Normalized()
	tempoActive := c.Tempo.Applies(TempoOptions(balances))
	storesActive := c.Stores.Applies(StoreOptions(balances))
	fold := cases.Fold()
	needle := fold.String(c.Search)

	out := make([]PartyBalance, 0, len(balances))
	for _, b := range balances {
		if needle != "" && !strings.Contains(fold.String(b.Party), needle) {
			continue
		}
		if tempoActive && !c.Tempo.Contains(b.Tempo) {
			continue
		}
		if storesActive && !anySelected(c.Stores, b.Stores) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func anySelected(sel Selection, values []string) bool {
	for _, v := range values {
		if sel.Contains(v) {
			return true
		}
	}
	return false
}

// TempoOptions lists the distinct tempo terms present, sorted.
func TempoOptions(balances []PartyBalance) []string {
	set := make(map[string]struct{})
	for _, b := range balances {
		set[b.Tempo] = struct{}{}
	}
	return sortedKeys(set)
}

// StoreOptions lists the distinct stores present, sorted.
func StoreOptions(balances []PartyBalance) []string {
	set := make(map[string]struct{})
	for _, b := range balances {
		for _, s := range b.Stores {
			set[s] = struct{}{}
		}
	}
	return sortedKeys(set)
}
