package fixtype

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseFloat decodes a FIX float (Price, Qty, Amt, Percentage). Decimals are
// used instead of binary floats so that every representable wire value
// round-trips exactly; "1.10" and "1.1" compare equal but re-encode from the
// same decimal value.
func ParseFloat(b []byte) (decimal.Decimal, error) {
	if len(b) == 0 {
		return decimal.Zero, fmt.Errorf("empty float value")
	}
	// decimal.NewFromString accepts scientific notation which the FIX float
	// grammar does not. Reject anything outside [-]digits[.digits].
	dot := false
	for i, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c == '-' && i == 0 && len(b) > 1:
		case c == '.' && !dot && i > 0 && i < len(b)-1:
			dot = true
		default:
			return decimal.Zero, fmt.Errorf("invalid float value %q", b)
		}
	}
	v, err := decimal.NewFromString(string(b))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid float value %q", b)
	}
	return v, nil
}

// AppendFloat encodes a decimal in the canonical FIX representation: plain
// decimal notation, no exponent, no trailing zero padding.
func AppendFloat(dst []byte, v decimal.Decimal) []byte {
	return append(dst, v.String()...)
}
