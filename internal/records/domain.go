// Package records defines the typed views over stock movements, manual
// charges and payments, decoded from the untyped rows of the backend.
package records

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is a plain untyped record as returned by the record fetcher.
type Row = map[string]any

// Direction tells whether a stock movement is incoming or outgoing.
type Direction string

const (
	// Incoming rows live in barang_masuk_<store>.
	Incoming Direction = "masuk"
	// Outgoing rows live in barang_keluar_<store>.
	Outgoing Direction = "keluar"
)

// ErrInvalidDirection is returned for unknown movement directions.
var ErrInvalidDirection = errors.New("records: direction must be masuk or keluar")

// ParseDirection accepts the Indonesian and English names.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "masuk", "in", "incoming":
		return Incoming, nil
	case "keluar", "out", "outgoing":
		return Outgoing, nil
	default:
		return "", ErrInvalidDirection
	}
}

// TransactionRecord is one incoming or outgoing stock movement.
// LineTotal is expected to equal Quantity x UnitPrice but manual edits can
// desynchronise them; the stored LineTotal is authoritative for balances.
type TransactionRecord struct {
	ID         string          `json:"id"`
	PartNumber string          `json:"part_number"`
	ItemName   string          `json:"item_name"`
	Quantity   float64         `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Customer   string          `json:"customer,omitempty"`
	Supplier   string          `json:"supplier,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Channel    string          `json:"channel,omitempty"`
	Tempo      string          `json:"tempo"`
	CreatedAt  time.Time       `json:"created_at"`
	StoreCode  string          `json:"store"`
	Direction  Direction       `json:"direction"`
}

// LineTotalMismatch reports whether the stored line total differs from
// quantity times unit price.
func (t TransactionRecord) LineTotalMismatch() bool {
	expected := decimal.NewFromFloat(t.Quantity).Mul(t.UnitPrice)
	return !expected.Equal(t.LineTotal)
}

// ManualCharge is a receivable or payable entered directly by a user.
type ManualCharge struct {
	ID        string          `json:"id"`
	Party     string          `json:"party"`
	Tempo     string          `json:"tempo"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	StoreCode string          `json:"store"`
	CreatedAt time.Time       `json:"created_at"`
}

// Payment settles part of a (party, tempo) group.
type Payment struct {
	ID        string          `json:"id"`
	Party     string          `json:"party"`
	Tempo     string          `json:"tempo"`
	PaidOn    time.Time       `json:"paid_on"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	StoreCode string          `json:"store"`
	ForMonths []string        `json:"for_months,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
