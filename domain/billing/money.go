package billing

import (
	"math"
	"strings"
	"time"
)

// DefaultMinorUnitMultiplier suits two-decimal currencies such as EUR or USD.
const DefaultMinorUnitMultiplier = 100

// Money holds the settlement currency of a deployment and the factor that
// converts its major units to minor units.
type Money struct {
	Currency   string
	Multiplier int64
}

// NewMoney normalises the currency code and falls back to the default
// multiplier when none is given.
func NewMoney(currency string, multiplier int64) Money {
	if multiplier <= 0 {
		multiplier = DefaultMinorUnitMultiplier
	}
	return Money{
		Currency:   strings.ToLower(strings.TrimSpace(currency)),
		Multiplier: multiplier,
	}
}

// ToMinor converts a major-unit amount, rounding half away from zero.
func (m Money) ToMinor(major float64) (int64, error) {
	if math.IsNaN(major) || math.IsInf(major, 0) {
		return 0, Validationf("to_minor", "amount is not a finite number")
	}
	if major < 0 {
		return 0, Validationf("to_minor", "amount must not be negative, got %v", major)
	}
	minor := math.Round(major * float64(m.Multiplier))
	if minor > math.MaxInt64/2 {
		return 0, Validationf("to_minor", "amount %v is out of range", major)
	}
	return int64(minor), nil
}

// DateLayout is the slash-delimited day/month/year layout accepted by ledger queries.
const DateLayout = "02/01/2006"

// ParseLocalDate parses a DateLayout date as midnight in loc.
// Single-digit days and months are accepted ("1/3/2024").
func ParseLocalDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "2/1/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, Validationf("parse_date", "invalid date %q, expected dd/mm/yyyy", s)
}
