// Package tempo implements the rules around payment terms ("tempo"), such as
// "2 BLN" for a two month credit period.
package tempo

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// NoTerm is the normalised form of an empty tempo.
	NoTerm = "-"
	// UnknownParty is the normalised form of an empty counterparty name.
	UnknownParty = "UNKNOWN"
	// DueMonthLayout formats due months.
	DueMonthLayout = "2006-01"
)

var firstInteger = regexp.MustCompile(`\d+`)

// excludedMarkers flag movements that never create a receivable.
var excludedMarkers = []string{"CASH", "NADIR", "RETUR", "STOK"}

func upper(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

// Normalize upper-cases a tempo term; empty terms become NoTerm.
func Normalize(term string) string {
	n := upper(term)
	if n == "" {
		return NoTerm
	}
	return n
}

// NormalizeParty upper-cases a counterparty name; empty names become UnknownParty.
func NormalizeParty(name string) string {
	n := upper(name)
	if n == "" {
		return UnknownParty
	}
	return n
}

// LeadingMonths extracts the first integer in the term. ok is false when the
// term has no digits.
func LeadingMonths(term string) (months int, ok bool) {
	match := firstInteger.FindString(term)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CalculateDueMonth returns the YYYY-MM in which a transaction made at t with
// the given term falls due. Terms without a number count as one month. The
// arithmetic uses t's own calendar fields, so callers control the location.
func CalculateDueMonth(t time.Time, term string) string {
	months, ok := LeadingMonths(term)
	if !ok {
		months = 1
	}
	due := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	return due.Format(DueMonthLayout)
}

// IsReceivable reports whether a movement with this term is sold or bought on
// credit. Cash sales, returns, stock corrections and empty terms are not.
func IsReceivable(term string) bool {
	n := upper(term)
	if n == "" || n == NoTerm {
		return false
	}
	for _, marker := range excludedMarkers {
		if strings.Contains(n, marker) {
			return false
		}
	}
	return true
}
