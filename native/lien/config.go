package lien

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the TOML representation of the initial ledger params. Zero values
// fall back to DefaultParams.
type Config struct {
	CollateralToken           string `toml:"CollateralToken"`
	Router                    string `toml:"Router"`
	MaxLiens                  *uint8 `toml:"MaxLiens"`
	BuyoutFeeNumerator        uint32 `toml:"BuyoutFeeNumerator"`
	BuyoutFeeDenominator      uint32 `toml:"BuyoutFeeDenominator"`
	DurationFeeCapNumerator   uint32 `toml:"DurationFeeCapNumerator"`
	DurationFeeCapDenominator uint32 `toml:"DurationFeeCapDenominator"`
	MinInterestBPS            uint32 `toml:"MinInterestBPS"`
	MinDurationIncrease       uint32 `toml:"MinDurationIncrease"`
	MinLoanDuration           uint32 `toml:"MinLoanDuration"`
	AuctionFloor              string `toml:"AuctionFloor"`
}

// LoadParams decodes a TOML params file and validates the result.
func LoadParams(path string) (Params, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Params{}, fmt.Errorf("lien: decode params: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Params{}, fmt.Errorf("lien: unknown params key %q", undecoded[0].String())
	}
	return cfg.Params()
}

// Params converts the decoded configuration into validated ledger params.
func (c Config) Params() (Params, error) {
	params := DefaultParams()
	var err error
	if params.CollateralToken, err = parseAddress("CollateralToken", c.CollateralToken); err != nil {
		return Params{}, err
	}
	if params.Router, err = parseAddress("Router", c.Router); err != nil {
		return Params{}, err
	}
	if c.MaxLiens != nil {
		params.MaxLiens = *c.MaxLiens
	}
	if c.BuyoutFeeDenominator != 0 || c.BuyoutFeeNumerator != 0 {
		params.BuyoutFeeNumerator = c.BuyoutFeeNumerator
		params.BuyoutFeeDenominator = c.BuyoutFeeDenominator
	}
	if c.DurationFeeCapDenominator != 0 || c.DurationFeeCapNumerator != 0 {
		params.DurationFeeCapNumerator = c.DurationFeeCapNumerator
		params.DurationFeeCapDenominator = c.DurationFeeCapDenominator
	}
	if c.MinInterestBPS != 0 {
		params.MinInterestBPS = c.MinInterestBPS
	}
	if c.MinDurationIncrease != 0 {
		params.MinDurationIncrease = c.MinDurationIncrease
	}
	if c.MinLoanDuration != 0 {
		params.MinLoanDuration = c.MinLoanDuration
	}
	if trimmed := strings.TrimSpace(c.AuctionFloor); trimmed != "" {
		floor, ok := new(big.Int).SetString(trimmed, 10)
		if !ok {
			return Params{}, fmt.Errorf("lien: invalid AuctionFloor %q", c.AuctionFloor)
		}
		params.AuctionFloor = floor
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("lien: invalid %s address %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}
