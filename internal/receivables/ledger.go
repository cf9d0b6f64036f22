// Package receivables aggregates stock movements, manual charges and
// payments into per-party balances for customer receivables and supplier
// payables.
package receivables

import (
	"errors"
	"fmt"
	"strings"

	"github.com/autoparts-erp/autoparts-erp/internal/records"
	"github.com/autoparts-erp/autoparts-erp/internal/stores"
)

// ErrUnknownLedger is returned for an unrecognised ledger slug.
var ErrUnknownLedger = errors.New("receivables: unknown ledger")

// Ledger binds one side of the books to its backend tables.
type Ledger struct {
	Slug         string
	Title        string
	Direction    records.Direction
	ChargeTable  string
	PaymentTable string
	PartyColumn  string
	// MonthsOnPayments enables the for_months column on payments.
	MonthsOnPayments bool
}

var (
	// CustomerLedger tracks what customers owe the stores for credit sales.
	CustomerLedger = Ledger{
		Slug:             "customer",
		Title:            "Piutang Customer",
		Direction:        records.Outgoing,
		ChargeTable:      "toko_tagihan",
		PaymentTable:     "toko_pembayaran",
		PartyColumn:      "customer",
		MonthsOnPayments: true,
	}
	// SupplierLedger tracks what the stores owe importers for credit purchases.
	SupplierLedger = Ledger{
		Slug:         "supplier",
		Title:        "Tagihan Importir",
		Direction:    records.Incoming,
		ChargeTable:  "importir_tagihan",
		PaymentTable: "importir_pembayaran",
		PartyColumn:  "importir",
	}
)

// Ledgers lists every ledger.
func Ledgers() []Ledger {
	return []Ledger{CustomerLedger, SupplierLedger}
}

// LookupLedger resolves a slug.
func LookupLedger(slug string) (Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(slug)) {
	case CustomerLedger.Slug, "piutang":
		return CustomerLedger, nil
	case SupplierLedger.Slug, "importir", "tagihan":
		return SupplierLedger, nil
	}
	return Ledger{}, fmt.Errorf("%w: %q", ErrUnknownLedger, slug)
}

// MovementTable returns the stock movement table feeding this ledger.
func (l Ledger) MovementTable(store stores.StoreContext) string {
	if l.Direction == records.Incoming {
		return store.IncomingTable()
	}
	return store.OutgoingTable()
}

// Rule returns how the counterparty of a movement is resolved.
func (l Ledger) Rule() records.CounterpartyRule {
	return records.RuleFor(l.Direction)
}
