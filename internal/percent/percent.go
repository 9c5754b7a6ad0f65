package percent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxPrecision bounds the number of fractional digits a Result can carry.
const MaxPrecision = 30

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrPrecision      = fmt.Errorf("precision must be <= %d", MaxPrecision)
	ErrOverflow       = errors.New("fixed-point overflow")
)

var hundred = uint256.NewInt(100)

// Result is a percentage in fixed-point form. Scaled holds the percentage
// multiplied by 10^Precision, split into Whole and Decimal parts.
type Result struct {
	Scaled    uint256.Int
	Whole     uint256.Int
	Decimal   uint256.Int
	Precision uint8
}

// PercentOf returns what percent numerator is of denominator, truncated to
// precision fractional digits.
func PercentOf(numerator, denominator *uint256.Int, precision uint8) (Result, error) {
	if denominator == nil || denominator.IsZero() {
		return Result{}, ErrDivisionByZero
	}
	unit, err := Unit(precision)
	if err != nil {
		return Result{}, err
	}

	factor, overflow := new(uint256.Int).MulOverflow(unit, hundred)
	if overflow {
		return Result{}, ErrOverflow
	}
	scaled, err := MulDiv(numerator, factor, denominator)
	if err != nil {
		return Result{}, err
	}

	res := Result{Precision: precision}
	res.Scaled.Set(scaled)
	res.Whole.Div(scaled, unit)
	res.Decimal.Mod(scaled, unit)
	return res, nil
}

// AmountOf returns scaledPercent percent of total, where scaledPercent carries
// precision fractional digits.
func AmountOf(scaledPercent, total *uint256.Int, precision uint8) (*uint256.Int, error) {
	unit, err := Unit(precision)
	if err != nil {
		return nil, err
	}
	denominator, overflow := new(uint256.Int).MulOverflow(unit, hundred)
	if overflow {
		return nil, ErrOverflow
	}
	return MulDiv(total, scaledPercent, denominator)
}

// MulDiv returns floor(x*y/d). The intermediate product is 512 bits wide so
// only a quotient above 2^256-1 overflows.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Unit returns 10^precision.
func Unit(precision uint8) (*uint256.Int, error) {
	if precision > MaxPrecision {
		return nil, ErrPrecision
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(precision))), nil
}

// String renders the percentage as Whole.Decimal with the decimal part zero
// padded to Precision digits.
func (r Result) String() string {
	if r.Precision == 0 {
		return r.Whole.Dec()
	}
	frac := r.Decimal.Dec()
	if pad := int(r.Precision) - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	return r.Whole.Dec() + "." + frac
}

// AsDecimal converts the percentage for display. It is never used for accounting.
func (r Result) AsDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(r.Scaled.ToBig(), -int32(r.Precision))
}
