// Package codec converts Starknet field elements into arbitrary-precision
// integers and fixed-point decimals.
package codec

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/shopspring/decimal"
)

const halfBits = 128

// ErrNotInteger is returned when a value is not a base-10 integer string.
var ErrNotInteger = errors.New("not a decimal integer")

var halfMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), halfBits), big.NewInt(1))

// FeltToBig returns the unsigned integer value of a field element.
func FeltToBig(f *felt.Felt) *big.Int {
	if f == nil {
		return new(big.Int)
	}
	b := f.Bytes()
	return new(big.Int).SetBytes(b[:])
}

// Bool reports whether a field element is nonzero.
func Bool(f *felt.Felt) bool {
	return f != nil && !f.IsZero()
}

// WideFromHalves rebuilds a 256-bit value as (high << 128) | low. Both halves
// are expected to fit in 128 bits.
func WideFromHalves(high, low *felt.Felt) *big.Int {
	out := new(big.Int).Lsh(FeltToBig(high), halfBits)
	return out.Or(out, FeltToBig(low))
}

// SplitWide splits a value below 2^256 into its high and low 128-bit halves.
func SplitWide(v *big.Int) (high, low *big.Int) {
	high = new(big.Int).Rsh(v, halfBits)
	low = new(big.Int).And(v, halfMask)
	return high, low
}

// ToFixedPoint renders value / 10^scale exactly. A zero scale keeps the raw integer.
func ToFixedPoint(value *big.Int, scale int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -scale)
}

// FixedPointFromString parses a base-10 integer string and scales it like ToFixedPoint.
func FixedPointFromString(value string, scale int32) (decimal.Decimal, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrNotInteger, value)
	}
	return ToFixedPoint(v, scale), nil
}

// FormatFixed returns the decimal text with exactly scale fractional digits.
func FormatFixed(d decimal.Decimal, scale int32) string {
	if scale <= 0 {
		return d.String()
	}
	return d.StringFixed(scale)
}

// ScaledString renders d with every fractional digit its exponent carries, so a
// value built by ToFixedPoint with scale 18 keeps all 18 digits.
func ScaledString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// FeltHex returns the zero-padded 64 digit hex form of a field element.
func FeltHex(f *felt.Felt) string {
	return fmt.Sprintf("0x%064x", FeltToBig(f))
}

// ParseFelt parses a hex (0x-prefixed) or decimal field element.
func ParseFelt(input string) (*felt.Felt, error) {
	f, err := new(felt.Felt).SetString(input)
	if err != nil {
		return nil, fmt.Errorf("invalid field element %q: %w", input, err)
	}
	return f, nil
}
