// Package money implements fixed-point currency arithmetic.
//
// Amounts are held as integer cents so that invoice aggregation is exact:
// summing line amounts twice must give the same totals, and tax rounding is
// deterministic (round half up to the cent).
package money

import (
	"errors"
	"fmt"
	"strings"
)

// Cents is a monetary amount in hundredths of the base currency unit.
type Cents int64

var ErrInvalidAmount = errors.New("money: invalid amount")

// Parse converts a decimal string like "1234.56" (up to two decimal places)
// into Cents. A leading minus sign is accepted for discounts.
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, ErrInvalidAmount
	}
	// 15 whole digits keeps the cent total well inside int64.
	if len(whole) > 15 {
		return 0, ErrInvalidAmount
	}
	if len(frac) > 2 {
		return 0, ErrInvalidAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var total Cents
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, ErrInvalidAmount
			}
			total = total*10 + Cents(r-'0')
		}
	}
	if neg {
		total = -total
	}
	return total, nil
}

// MustParse is Parse for constants in tests and seed data.
func MustParse(s string) Cents {
	c, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("money: MustParse(%q): %v", s, err))
	}
	return c
}

// String renders the amount with two decimal places.
func (c Cents) String() string {
	n := int64(c)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%02d", sign, n/100, n%100)
}

// MulQty multiplies a unit price by a quantity that is itself expressed in
// hundredths (meter consumption is read to two decimal places). The result
// is rounded half up to the cent.
func MulQty(unitPrice, qty Cents) Cents {
	return roundDiv(int64(unitPrice)*int64(qty), 100)
}

// ApplyRate computes amount x rate where the rate is in basis points
// (21% == 2100 bp), rounded half up to the cent.
func ApplyRate(amount Cents, rateBP int64) Cents {
	return roundDiv(int64(amount)*rateBP, 10000)
}

// roundDiv divides num by den rounding half away from zero.
func roundDiv(num, den int64) Cents {
	if num >= 0 {
		return Cents((num + den/2) / den)
	}
	return Cents(-((-num + den/2) / den))
}

// PercentToBP converts a percent string like "21" or "21.5" to basis points.
func PercentToBP(s string) (int64, error) {
	c, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return int64(c), nil
}
