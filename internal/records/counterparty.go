package records

import "strings"

// CounterpartyField names a record field that may carry the counterparty.
type CounterpartyField string

const (
	FieldCustomer CounterpartyField = "customer"
	FieldSupplier CounterpartyField = "supplier"
	FieldReason   CounterpartyField = "reason"
)

// CounterpartyRule picks the counterparty name from a primary field, falling
// back to a second field when the primary is blank.
type CounterpartyRule struct {
	Primary  CounterpartyField
	Fallback CounterpartyField
}

// Counterparty is a resolved name together with the field it came from.
type Counterparty struct {
	Name   string
	Source CounterpartyField
}

// RuleFor returns the counterparty rule for a movement direction: sales are
// attributed to the customer, purchases to the supplier, and both fall back
// to the free-text reason.
func RuleFor(dir Direction) CounterpartyRule {
	if dir == Incoming {
		return CounterpartyRule{Primary: FieldSupplier, Fallback: FieldReason}
	}
	return CounterpartyRule{Primary: FieldCustomer, Fallback: FieldReason}
}

func (t TransactionRecord) field(f CounterpartyField) string {
	switch f {
	case FieldCustomer:
		return t.Customer
	case FieldSupplier:
		return t.Supplier
	case FieldReason:
		return t.Reason
	default:
		return ""
	}
}

// ResolveCounterparty applies rule to the record. An empty Name means neither
// field was filled.
func ResolveCounterparty(t TransactionRecord, rule CounterpartyRule) Counterparty {
	if name := strings.TrimSpace(t.field(rule.Primary)); name != "" {
		return Counterparty{Name: name, Source: rule.Primary}
	}
	if name := strings.TrimSpace(t.field(rule.Fallback)); name != "" {
		return Counterparty{Name: name, Source: rule.Fallback}
	}
	return Counterparty{}
}
