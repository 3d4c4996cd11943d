package numbers

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of decimals used by both staking tokens.
const TokenDecimals = 18

var ErrOverflow = errors.New("uint256 overflow")

// ParseUint256 parses a base-10 or 0x-prefixed amount.
func ParseUint256(s string) (*uint256.Int, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex amount '%s': %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount '%s': %w", s, err)
	}
	return v, nil
}

// MustParseUint256 is ParseUint256 for constants and tests.
func MustParseUint256(s string) *uint256.Int {
	v, err := ParseUint256(s)
	if err != nil {
		panic(err)
	}
	return v
}

// MulDivFloor computes floor(x*y/d) with a 512-bit intermediate product.
func MulDivFloor(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return uint256.NewInt(0), nil
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// AddChecked returns x+y or ErrOverflow.
func AddChecked(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulChecked returns x*y or ErrOverflow.
func MulChecked(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sum adds every value, returning ErrOverflow if the total exceeds 256 bits.
func Sum(values ...*uint256.Int) (*uint256.Int, error) {
	total := uint256.NewInt(0)
	for _, v := range values {
		var err error
		if total, err = AddChecked(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func ToDecimal(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), 0)
}

// ToTokenUnits shifts a smallest-unit amount into whole tokens for display.
func ToTokenUnits(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -TokenDecimals)
}

// FromDecimal truncates a non-negative decimal into a uint256.
func FromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount '%s'", d.String())
	}
	v, overflow := uint256.FromBig(d.Truncate(0).BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// Percentage returns part/total*100 with the given number of places. A zero total yields zero.
func Percentage(part, total *uint256.Int, places int32) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	p := decimal.NewFromBigInt(part.ToBig(), 0).Mul(decimal.NewFromInt(100))
	return p.DivRound(decimal.NewFromBigInt(total.ToBig(), 0), places)
}

// BigToUint256 converts a non-negative big.Int.
func BigToUint256(b *big.Int) (*uint256.Int, error) {
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", b.String())
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}
