package tempo

import (
	"fmt"
	"strings"
)

// BucketMode selects how tempo terms are assigned to the 1/2/3 month buckets.
type BucketMode string

const (
	// BucketModeSubstring matches a bucket when the term contains the digit.
	// "13 BLN" therefore lands in both the 1 and the 3 bucket.
	BucketModeSubstring BucketMode = "substring"
	// BucketModeExact matches on the leading integer only.
	BucketModeExact BucketMode = "exact"
)

// ParseBucketMode validates a configured mode. Empty selects substring.
func ParseBucketMode(raw string) (BucketMode, error) {
	switch BucketMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", BucketModeSubstring:
		return BucketModeSubstring, nil
	case BucketModeExact:
		return BucketModeExact, nil
	default:
		return "", fmt.Errorf("tempo: unknown bucket mode %q", raw)
	}
}

// Membership tells which month buckets a term belongs to.
type Membership struct {
	Three bool
	Two   bool
	One   bool
}

// Classify assigns a term to buckets.
func Classify(term string, mode BucketMode) Membership {
	n := Normalize(term)
	if mode == BucketModeExact {
		months, ok := LeadingMonths(n)
		if !ok {
			return Membership{}
		}
		return Membership{Three: months == 3, Two: months == 2, One: months == 1}
	}
	return Membership{
		Three: strings.Contains(n, "3"),
		Two:   strings.Contains(n, "2"),
		One:   strings.Contains(n, "1"),
	}
}
