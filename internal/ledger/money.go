package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnparsableAmount is reported (never returned to callers of the
// reconciliation engine) when an embedded amount cannot be read.
var ErrUnparsableAmount = errors.New("unparsable split amount")

// WarnUnparsableSplitAmount is the warning code surfaced next to reconciliation totals.
const WarnUnparsableSplitAmount = "UNPARSABLE_SPLIT_AMOUNT"

// WarnUnclassifiedRemainder flags a split note whose electronic share had no recognizable instrument.
const WarnUnclassifiedRemainder = "UNCLASSIFIED_SPLIT_REMAINDER"

var (
	// Tolerance is the largest difference treated as "balanced".
	Tolerance = decimal.New(1, -2)
	hundred   = decimal.NewFromInt(100)
)

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseBRL reads an amount written the Brazilian way ("1.234,56", optionally
// prefixed with "R$"). Dots are thousands separators and the comma is the
// decimal separator.
func ParseBRL(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
		s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparsableAmount, raw)
	}
	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparsableAmount, raw)
	}
	if negative {
		value = value.Neg()
	}
	return value, nil
}

// FormatBRL renders "R$ 1.234,56"; negative values render as "- R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	prefix := "R$ "
	if d.IsNegative() {
		prefix = "- R$ "
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return prefix + grouped.String() + "," + fracPart
}
