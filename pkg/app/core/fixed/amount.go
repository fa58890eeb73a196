// Package fixed implements the exact decimal arithmetic used for prices,
// quantities and ledger amounts.
//
// An Amount is an unsigned count of 10^-8 units. Every operation is checked:
// results above Max (2^128 - 1 units, the width of a ledger balance)
// fail with ErrOverflow instead of wrapping or saturating.
package fixed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every Amount.
const Decimals = 8

// maxBits bounds every Amount to a 128-bit unit count.
const maxBits = 128

var (
	ErrOverflow       = errors.New("fixed-point overflow")
	ErrUnderflow      = errors.New("fixed-point underflow")
	ErrDivisionByZero = errors.New("fixed-point division by zero")
	ErrPrecision      = errors.New("too many fractional digits")
	ErrNegative       = errors.New("negative amount")
)

var scale = uint256.NewInt(100_000_000)

// Amount is a non-negative fixed-point decimal. The zero value is 0.
type Amount struct {
	u uint256.Int
}

// Zero is the zero Amount.
var Zero = Amount{}

// Max is the largest representable Amount.
var Max = func() Amount {
	var a Amount
	a.u.Lsh(uint256.NewInt(1), maxBits)
	a.u.SubUint64(&a.u, 1)
	return a
}()

// FromUnits returns the Amount made of n raw 10^-8 units.
func FromUnits(n uint64) Amount {
	var a Amount
	a.u.SetUint64(n)
	return a
}

// New returns the Amount equal to the whole number n.
func New(n uint64) Amount {
	var a Amount
	a.u.Mul(uint256.NewInt(n), scale) // n < 2^64, product < 2^91
	return a
}

// Parse reads a decimal string such as "10", "0.25" or "1e3".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromDecimal converts d, rejecting negatives and sub-unit precision.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.Sign() < 0 {
		return Zero, fmt.Errorf("%s: %w", d, ErrNegative)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return Zero, fmt.Errorf("%s: %w", d, ErrPrecision)
	}
	u, overflow := uint256.FromBig(d.Shift(Decimals).BigInt())
	if overflow || u.BitLen() > maxBits {
		return Zero, fmt.Errorf("%s: %w", d, ErrOverflow)
	}
	return Amount{u: *u}, nil
}

// Decimal returns a as a shopspring decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.u.ToBig(), -Decimals)
}

// Units returns the raw unit count and whether it fits in a uint64.
func (a Amount) Units() (uint64, bool) {
	return a.u.Uint64(), a.u.IsUint64()
}

func (a Amount) String() string {
	return a.Decimal().String()
}

// Float64 is lossy and only meant for metrics.
func (a Amount) Float64() float64 {
	return a.Decimal().InexactFloat64()
}

func (a Amount) IsZero() bool                 { return a.u.IsZero() }
func (a Amount) Cmp(b Amount) int             { return a.u.Cmp(&b.u) }
func (a Amount) Equal(b Amount) bool          { return a.u.Eq(&b.u) }
func (a Amount) LessThan(b Amount) bool       { return a.u.Lt(&b.u) }
func (a Amount) GreaterThan(b Amount) bool    { return a.u.Gt(&b.u) }
func (a Amount) LessOrEqual(b Amount) bool    { return !a.u.Gt(&b.u) }
func (a Amount) GreaterOrEqual(b Amount) bool { return !a.u.Lt(&b.u) }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Add returns a + b.
func (a Amount) Add(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.u.AddOverflow(&a.u, &b.u); overflow || z.u.BitLen() > maxBits {
		return Zero, fmt.Errorf("%s + %s: %w", a, b, ErrOverflow)
	}
	return z, nil
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) (Amount, error) {
	var z Amount
	if _, underflow := z.u.SubOverflow(&a.u, &b.u); underflow {
		return Zero, fmt.Errorf("%s - %s: %w", a, b, ErrUnderflow)
	}
	return z, nil
}

// Mul returns the fixed-point product a × b truncated to Decimals digits.
func (a Amount) Mul(b Amount) (Amount, error) {
	var z Amount
	// Both operands are below 2^128 so the raw product always fits 256 bits.
	if _, overflow := z.u.MulOverflow(&a.u, &b.u); overflow {
		return Zero, fmt.Errorf("%s * %s: %w", a, b, ErrOverflow)
	}
	z.u.Div(&z.u, scale)
	if z.u.BitLen() > maxBits {
		return Zero, fmt.Errorf("%s * %s: %w", a, b, ErrOverflow)
	}
	return z, nil
}

// Div returns the fixed-point quotient a ÷ b truncated to Decimals digits.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return Zero, fmt.Errorf("%s / 0: %w", a, ErrDivisionByZero)
	}
	var z Amount
	z.u.Mul(&a.u, scale) // < 2^155
	z.u.Div(&z.u, &b.u)
	if z.u.BitLen() > maxBits {
		return Zero, fmt.Errorf("%s / %s: %w", a, b, ErrOverflow)
	}
	return z, nil
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*a = Zero
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
