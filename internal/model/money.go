package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the scale between minor (cents, paise) and major units.
// All currencies the storefront sells in use two decimal places.
const MinorUnitsPerMajor = 100

// ParseMinorUnits converts string amounts already in minor units to int64.
// Store API style backends send every price field this way ("8900" = 89.00).
// Examples: "8900" → 8900, "123456" → 123456, "" → 0
func ParseMinorUnits(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// Parse as float to tolerate "100.0", then truncate
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// MajorUnits converts an integer minor-unit amount to its decimal major-unit form.
// The conversion is exact: MinorUnits(MajorUnits(x)) == x for every int64 x.
func MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// MinorUnits converts a major-unit amount to minor units, rounding half away from zero.
func MinorUnits(major decimal.Decimal) int64 {
	return major.Shift(2).Round(0).IntPart()
}

// FormatMinor renders a minor-unit amount as major units with exactly two decimals.
// Examples: 49900 → "499.00", 5 → "0.05", -2000 → "-20.00"
func FormatMinor(minor int64) string {
	return MajorUnits(minor).StringFixed(2)
}

// FormatMajor renders a major-unit amount with exactly two decimals.
func FormatMajor(major decimal.Decimal) string {
	return major.StringFixed(2)
}

// Minor is an integer minor-unit amount that decodes from either a JSON number
// or a JSON string. Store API backends send "8900", other backends send 8900.
type Minor int64

// UnmarshalJSON accepts 8900, "8900" and null.
func (m *Minor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("minor units: %w", err)
		}
		*m = Minor(ParseMinorUnits(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("minor units: %w", err)
	}
	*m = Minor(ParseMinorUnits(n.String()))
	return nil
}

// Int64 returns the amount as a plain int64.
func (m Minor) Int64() int64 {
	return int64(m)
}
