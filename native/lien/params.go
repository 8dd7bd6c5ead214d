package lien

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultMaxLiens                  uint8  = 5
	DefaultBuyoutFeeNumerator        uint32 = 100
	DefaultBuyoutFeeDenominator      uint32 = 1000
	DefaultDurationFeeCapNumerator   uint32 = 900
	DefaultDurationFeeCapDenominator uint32 = 1000
	DefaultMinLoanDuration                  = uint32(time.Hour / time.Second)
	DefaultMinDurationIncrease              = uint32(5 * 24 * time.Hour / time.Second)
	// DefaultMinInterestBPS is 0.5% a year expressed as a per-second WAD rate.
	DefaultMinInterestBPS = uint32(5_000_000_000_000_000 / (365 * 24 * 60 * 60))
	// DefaultAuctionFloor is the end price of a liquidation auction in token
	// base units.
	DefaultAuctionFloor int64 = 1000
)

// Params is the ledger configuration. It is mutated only through File and is
// persisted alongside the registry.
type Params struct {
	CollateralToken           common.Address
	Router                    common.Address
	MaxLiens                  uint8
	BuyoutFeeNumerator        uint32
	BuyoutFeeDenominator      uint32
	DurationFeeCapNumerator   uint32
	DurationFeeCapDenominator uint32
	MinInterestBPS            uint32
	MinDurationIncrease       uint32
	MinLoanDuration           uint32
	AuctionFloor              *big.Int
}

// DefaultParams returns the configuration installed on a fresh ledger.
func DefaultParams() Params {
	return Params{
		MaxLiens:                  DefaultMaxLiens,
		BuyoutFeeNumerator:        DefaultBuyoutFeeNumerator,
		BuyoutFeeDenominator:      DefaultBuyoutFeeDenominator,
		DurationFeeCapNumerator:   DefaultDurationFeeCapNumerator,
		DurationFeeCapDenominator: DefaultDurationFeeCapDenominator,
		MinInterestBPS:            DefaultMinInterestBPS,
		MinDurationIncrease:       DefaultMinDurationIncrease,
		MinLoanDuration:           DefaultMinLoanDuration,
		AuctionFloor:              big.NewInt(DefaultAuctionFloor),
	}
}

// Clone returns a deep copy of the params.
func (p Params) Clone() Params {
	out := p
	out.AuctionFloor = cloneBigInt(p.AuctionFloor)
	return out
}

// Validate enforces the invariants every configuration update must keep.
func (p Params) Validate() error {
	if err := validateFraction(p.BuyoutFeeNumerator, p.BuyoutFeeDenominator); err != nil {
		return err
	}
	if err := validateFraction(p.DurationFeeCapNumerator, p.DurationFeeCapDenominator); err != nil {
		return err
	}
	if p.AuctionFloor == nil || p.AuctionFloor.Sign() <= 0 {
		return ErrInvalidAuctionFloor
	}
	if _, err := safeCastTo88(p.AuctionFloor); err != nil {
		return err
	}
	return nil
}

func validateFraction(numerator, denominator uint32) error {
	if denominator == 0 || denominator < numerator {
		return ErrInvalidFeeFraction
	}
	return nil
}
