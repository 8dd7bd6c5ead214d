package lien

import (
	"math/big"

	"github.com/holiman/uint256"
)

// WAD is the fixed-point base used for rates.
var WAD = big.NewInt(1_000_000_000_000_000_000)

const (
	maxUint40 = uint64(1)<<40 - 1
	maxUint32 = uint64(1)<<32 - 1
	maxUint8  = uint64(1)<<8 - 1
)

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

// mulDivDown returns floor(x*y/d) with a 512-bit intermediate product.
func mulDivDown(x, y, d *big.Int) (*big.Int, error) {
	ux, err := toUint256(x)
	if err != nil {
		return nil, err
	}
	uy, err := toUint256(y)
	if err != nil {
		return nil, err
	}
	ud, err := toUint256(d)
	if err != nil {
		return nil, err
	}
	if ud.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(ux, uy, ud)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z.ToBig(), nil
}

// mulWadDown returns floor(x*y/WAD).
func mulWadDown(x, y *big.Int) (*big.Int, error) {
	return mulDivDown(x, y, WAD)
}

func safeCastTo88(v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 || v.BitLen() > 88 {
		return nil, ErrNarrowing
	}
	return new(big.Int).Set(v), nil
}

func safeCastTo40(v uint64) (uint64, error) {
	if v > maxUint40 {
		return 0, ErrNarrowing
	}
	return v, nil
}

func safeCastTo32(v *uint256.Int) (uint32, error) {
	if !v.IsUint64() || v.Uint64() > maxUint32 {
		return 0, ErrNarrowing
	}
	return uint32(v.Uint64()), nil
}

func safeCastTo8(v *uint256.Int) (uint8, error) {
	if !v.IsUint64() || v.Uint64() > maxUint8 {
		return 0, ErrNarrowing
	}
	return uint8(v.Uint64()), nil
}
