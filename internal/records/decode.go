package records

import (
	"database/sql/driver"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Decoding never fails: malformed or missing fields take their zero value so
// one bad row cannot abort an aggregation.

// DecodeTransaction converts a movement row of the given store and direction.
func DecodeTransaction(row Row, storeCode string, dir Direction, loc *time.Location) TransactionRecord {
	return TransactionRecord{
		ID:         idString(row[ColID]),
		PartNumber: str(row[ColPartNumber]),
		ItemName:   str(row[ColItemName]),
		Quantity:   Money(row[ColQuantity]).InexactFloat64(),
		UnitPrice:  Money(row[ColUnitPrice]),
		LineTotal:  Money(row[ColLineTotal]),
		Customer:   str(row[ColCustomer]),
		Supplier:   str(row[ColSupplier]),
		Reason:     str(row[ColReason]),
		Channel:    str(row[ColChannel]),
		Tempo:      str(row[ColTempo]),
		CreatedAt:  Timestamp(row[ColCreatedAt], loc),
		StoreCode:  storeCode,
		Direction:  dir,
	}
}

// DecodeCharge converts a manual charge row. partyColumn names the column
// holding the counterparty ("customer" or "importir").
func DecodeCharge(row Row, partyColumn string, loc *time.Location) ManualCharge {
	return ManualCharge{
		ID:        idString(row[ColID]),
		Party:     str(row[partyColumn]),
		Tempo:     str(row[ColTempo]),
		Date:      CalendarDate(row[ColDate], loc),
		Amount:    Money(row[ColAmount]),
		Note:      str(row[ColNote]),
		StoreCode: strings.ToUpper(str(row[ColStore])),
		CreatedAt: Timestamp(row[ColCreatedAt], loc),
	}
}

// DecodePayment converts a payment row.
func DecodePayment(row Row, partyColumn string, loc *time.Location) Payment {
	return Payment{
		ID:        idString(row[ColID]),
		Party:     str(row[partyColumn]),
		Tempo:     str(row[ColTempo]),
		PaidOn:    CalendarDate(row[ColDate], loc),
		Amount:    Money(row[ColAmount]),
		Note:      str(row[ColNote]),
		StoreCode: strings.ToUpper(str(row[ColStore])),
		ForMonths: stringList(row[ColForMonths]),
		CreatedAt: Timestamp(row[ColCreatedAt], loc),
	}
}

// Row encodes the charge for the mutation sink.
func (c ManualCharge) Row(partyColumn string) Row {
	return Row{
		ColID:       c.ID,
		partyColumn: c.Party,
		ColTempo:    c.Tempo,
		ColDate:     c.Date,
		ColAmount:   c.Amount,
		ColNote:     c.Note,
		ColStore:    c.StoreCode,
	}
}

// Row encodes the payment for the mutation sink.
func (p Payment) Row(partyColumn string) Row {
	row := Row{
		ColID:       p.ID,
		partyColumn: p.Party,
		ColTempo:    p.Tempo,
		ColDate:     p.PaidOn,
		ColAmount:   p.Amount,
		ColNote:     p.Note,
		ColStore:    p.StoreCode,
	}
	if len(p.ForMonths) > 0 {
		row[ColForMonths] = strings.Join(p.ForMonths, ",")
	}
	return row
}

// Money converts numbers, numeric strings and driver values to a decimal.
// Anything unparsable is zero.
func Money(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(val)
	case float32:
		return Money(float64(val))
	case string:
		return parseMoneyString(val)
	case []byte:
		return parseMoneyString(string(val))
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return decimal.Zero
		}
		if _, again := inner.(driver.Valuer); again {
			return decimal.Zero
		}
		return Money(inner)
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(n)
}

// parseMoneyString accepts comma grouping ("1,250,000.50") and Indonesian
// dot grouping with a decimal comma ("Rp 1.250.000,50").
func parseMoneyString(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "Rp"), "rp")
	s = strings.NewReplacer(" ", "", "_", "").Replace(s)
	dots := strings.Count(s, ".")
	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	if dots > 1 || (dots == 1 && lastComma > lastDot) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Timestamp converts a time-ish value; bare dates are read in loc and instants
// are moved into loc so calendar fields carry the store's local meaning.
func Timestamp(v any, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if v == nil {
		return time.Time{}
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, err := cast.ToTimeInDefaultLocationE(v, loc)
	if err != nil || t.IsZero() {
		return time.Time{}
	}
	return t.In(loc)
}

// CalendarDate decodes a DATE column. PostgreSQL dates arrive as midnight
// UTC and bare "YYYY-MM-DD" strings carry no zone; both keep their calendar
// day in loc. Other values are treated as instants, like Timestamp.
func CalendarDate(v any, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	switch val := v.(type) {
	case time.Time:
		if val.Location() == time.UTC && val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return time.Date(val.Year(), val.Month(), val.Day(), 0, 0, 0, 0, loc)
		}
	case string:
		if d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(val), loc); err == nil {
			return d
		}
	}
	return Timestamp(v, loc)
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func idString(v any) string {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case uuid.UUID:
		return val.String()
	}
	return str(v)
}

func stringList(v any) []string {
	var parts []string
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		parts = val
	case []any:
		parts = cast.ToStringSlice(val)
	default:
		parts = strings.Split(str(v), ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
