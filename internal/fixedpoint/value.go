// Package fixedpoint implements overflow-free integer arithmetic for scaled
// fixed-point amounts (USD values carry 30 implied decimals).
//
// Every Value is an integer. Operations never round silently: division
// truncates toward zero, which is the only narrowing operation, and
// division by zero is reported as an error.
package fixedpoint

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// USDDecimals is the implied precision of every USD amount in the engine.
const USDDecimals = 30

// Errors returned by the adapter.
var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrNotInteger     = errors.New("value is not an integer")
	ErrInvalidValue   = errors.New("invalid fixed-point value")
)

// Value is an arbitrary-precision signed integer.
// The zero value is 0 and ready to use.
type Value struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Value{}

func wrap(d decimal.Decimal) Value {
	if d.IsZero() {
		return Value{}
	}
	// keep exponent 0 so that String and Equal agree on one representation
	return Value{d: decimal.NewFromBigInt(d.BigInt(), 0)}
}

// FromInt64 returns n as a Value.
func FromInt64(n int64) Value {
	return wrap(decimal.NewFromInt(n))
}

// FromBig returns a copy of b as a Value.
func FromBig(b *big.Int) Value {
	if b == nil {
		return Value{}
	}
	return wrap(decimal.NewFromBigInt(new(big.Int).Set(b), 0))
}

// Pow10 returns 10^n for n >= 0.
func Pow10(n int) Value {
	if n < 0 {
		panic(fmt.Sprintf("fixedpoint: negative exponent %d", n))
	}
	return wrap(decimal.New(1, int32(n)))
}

// Parse reads a base-10 integer string. Fractional input is rejected.
func Parse(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, fmt.Errorf("%w: empty string", ErrInvalidValue)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %v", ErrInvalidValue, s, err)
	}
	if !d.IsInteger() {
		return Value{}, fmt.Errorf("%w: %q", ErrNotInteger, s)
	}
	return wrap(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromDecimalString scales a human-readable decimal ("4000.25") to the given
// precision. Digits beyond the precision are rejected rather than rounded.
func FromDecimalString(s string, decimals int) (Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %v", ErrInvalidValue, s, err)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return Value{}, fmt.Errorf("%w: %q has more than %d decimals", ErrNotInteger, s, decimals)
	}
	return wrap(scaled), nil
}

// FromUSD scales a decimal USD string to 30 decimals.
func FromUSD(s string) (Value, error) {
	return FromDecimalString(s, USDDecimals)
}

// MustUSD is FromUSD for constants and tests.
func MustUSD(s string) Value {
	v, err := FromUSD(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) Add(o Value) Value { return wrap(v.d.Add(o.d)) }
func (v Value) Sub(o Value) Value { return wrap(v.d.Sub(o.d)) }
func (v Value) Mul(o Value) Value { return wrap(v.d.Mul(o.d)) }
func (v Value) Neg() Value        { return wrap(v.d.Neg()) }
func (v Value) Abs() Value        { return wrap(v.d.Abs()) }

// Div returns v / o truncated toward zero.
func (v Value) Div(o Value) (Value, error) {
	if o.d.IsZero() {
		return Value{}, ErrDivisionByZero
	}
	q, _ := v.d.QuoRem(o.d, 0)
	return wrap(q), nil
}

// MulDiv returns v * num / den truncated toward zero, without an
// intermediate narrowing step.
func (v Value) MulDiv(num, den Value) (Value, error) {
	return v.Mul(num).Div(den)
}

// Rescale converts a value with `from` implied decimals to `to` implied
// decimals. Widening is exact; narrowing truncates toward zero.
func (v Value) Rescale(from, to int) Value {
	if from == to {
		return v
	}
	return wrap(v.d.Shift(int32(to - from)).Truncate(0))
}

// ToUSD rescales a value carrying `decimals` implied decimals to 30 decimals.
func (v Value) ToUSD(decimals int) Value {
	return v.Rescale(decimals, USDDecimals)
}

func (v Value) Cmp(o Value) int          { return v.d.Cmp(o.d) }
func (v Value) Equal(o Value) bool       { return v.d.Equal(o.d) }
func (v Value) Sign() int                { return v.d.Sign() }
func (v Value) IsZero() bool             { return v.d.IsZero() }
func (v Value) IsPositive() bool         { return v.d.Sign() > 0 }
func (v Value) IsNegative() bool         { return v.d.Sign() < 0 }
func (v Value) LessThan(o Value) bool    { return v.d.LessThan(o.d) }
func (v Value) GreaterThan(o Value) bool { return v.d.GreaterThan(o.d) }

// Max returns the larger of a and b.
func Max(a, b Value) Value {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Value) Value {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Big returns the value as a new big.Int.
func (v Value) Big() *big.Int {
	return v.d.BigInt()
}

// String returns the base-10 integer representation.
func (v Value) String() string {
	return v.d.String()
}

// Format renders the value with `decimals` implied decimals as a plain
// decimal string, for logs and reports only.
func (v Value) Format(decimals int) string {
	return v.d.Shift(int32(-decimals)).String()
}

// Decimal exposes the underlying decimal for drivers that bind it directly.
func (v Value) Decimal() decimal.Decimal {
	return v.d
}

// MarshalJSON encodes the value as a quoted integer string.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts quoted or bare integers.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*v = Value{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler (YAML, CSV).
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Value implements driver.Valuer.
func (v Value) Value() (driver.Value, error) {
	return v.String(), nil
}

// Scan implements sql.Scanner.
func (v *Value) Scan(src interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if !d.IsInteger() {
		return fmt.Errorf("%w: %s", ErrNotInteger, d.String())
	}
	*v = wrap(d)
	return nil
}
