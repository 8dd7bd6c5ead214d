package lien

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IsValidRefinance reports whether the new terms improve on the stack enough
// to justify a buyout: either the rate drops by at least minInterestBPS
// without shortening the loan, or the loan is extended by at least
// minDurationIncrease without raising the rate.
func (e *Engine) IsValidRefinance(newTerms Terms, stack *Stack) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	cfg, err := e.Params()
	if err != nil {
		return false, err
	}
	record, err := e.validateStack(stack)
	if err != nil {
		return false, err
	}
	return isValidRefinance(cfg, newTerms, record, e.now()), nil
}

func isValidRefinance(cfg Params, newTerms Terms, record *Stack, now uint64) bool {
	oldRate := cloneBigInt(record.Lien.Details.Rate)
	newRate := cloneBigInt(newTerms.Details.Rate)
	minNewRate := new(big.Int).Sub(oldRate, new(big.Int).SetUint64(uint64(cfg.MinInterestBPS)))
	newEnd := now + newTerms.Details.Duration
	if newEnd < now {
		return false
	}
	if minNewRate.Sign() >= 0 && newRate.Cmp(minNewRate) <= 0 && newEnd >= record.Point.End {
		return true
	}
	return newEnd >= record.Point.End &&
		newEnd-record.Point.End >= uint64(cfg.MinDurationIncrease) &&
		newRate.Cmp(oldRate) <= 0
}

// GetBuyout returns the current debt of the stack and the price of buying it
// out, which adds the buyout fee on the remaining interest.
func (e *Engine) GetBuyout(stack *Stack) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	cfg, err := e.Params()
	if err != nil {
		return nil, nil, err
	}
	record, err := e.validateStack(stack)
	if err != nil {
		return nil, nil, err
	}
	return buyoutPrice(cfg, record, e.now())
}

// buyoutPrice charges the buyout fee on the interest left until maturity. The
// fee window never exceeds the durationFeeCap share of the lien duration.
func buyoutPrice(cfg Params, record *Stack, now uint64) (*big.Int, *big.Int, error) {
	owed, err := Owed(record, now)
	if err != nil {
		return nil, nil, err
	}
	var window uint64
	if now < record.Point.End {
		window = record.Point.End - now
	}
	capped, err := mulDivDown(
		new(big.Int).SetUint64(record.Lien.Details.Duration),
		new(big.Int).SetUint64(uint64(cfg.DurationFeeCapNumerator)),
		new(big.Int).SetUint64(uint64(cfg.DurationFeeCapDenominator)),
	)
	if err != nil {
		return nil, nil, err
	}
	if capped.IsUint64() && window > capped.Uint64() {
		window = capped.Uint64()
	}
	remaining, err := accrue(record, window)
	if err != nil {
		return nil, nil, err
	}
	fee, err := mulDivDown(
		remaining,
		new(big.Int).SetUint64(uint64(cfg.BuyoutFeeNumerator)),
		new(big.Int).SetUint64(uint64(cfg.BuyoutFeeDenominator)),
	)
	if err != nil {
		return nil, nil, err
	}
	return owed, new(big.Int).Add(owed, fee), nil
}

// BuyoutLien replaces a live lien with a refinanced one. The current payee is
// paid the buyout price by the caller and the replacement lien, with the old
// debt as principal, is minted to the receiver.
func (e *Engine) BuyoutLien(caller common.Address, params BuyoutParams) (common.Hash, *Stack, error) {
	if err := e.guard(); err != nil {
		return common.Hash{}, nil, err
	}
	var created *Stack
	err := e.execute(func(op *operation) error {
		cfg, err := e.Params()
		if err != nil {
			return err
		}
		if err := e.authorize(caller, CapBuyout, cfg); err != nil {
			return err
		}
		collateralID := params.Stack.Lien.CollateralID
		if collateralID == nil {
			return ErrInvalidTerms
		}
		if _, err := e.assertStack(collateralID, &params.Stack); err != nil {
			return err
		}
		record, err := e.validateStack(&params.Stack)
		if err != nil {
			return err
		}
		oldID := record.Point.LienID
		meta, err := e.loadMeta(oldID)
		if err != nil {
			return err
		}
		if meta.AtLiquidation {
			return ErrCollateralAuction
		}
		now := e.now()
		if now >= record.Point.End {
			return ErrInvalidLoanState
		}
		if cloneBigInt(params.NewTerms.CollateralID).Cmp(collateralID) != 0 || params.NewTerms.Token != record.Lien.Token {
			return ErrInvalidBuyoutDetails
		}
		if !isValidRefinance(cfg, params.NewTerms, record, now) {
			return ErrInvalidRefinance
		}
		owed, buyout, err := buyoutPrice(cfg, record, now)
		if err != nil {
			return err
		}
		if cloneBigInt(params.NewTerms.Details.MaxAmount).Cmp(owed) < 0 {
			return ErrInvalidBuyoutDetails
		}
		payee, err := e.payeeOf(oldID)
		if err != nil {
			return err
		}
		if vault, ok := e.publicVault(payee); ok {
			slope, err := Slope(record)
			if err != nil {
				return err
			}
			err = vault.HandleBuyoutLien(BuyoutLienParams{
				LienID:    oldID,
				LienSlope: slope,
				LienEnd:   record.Point.End,
				Owed:      cloneBigInt(owed),
			})
			if err != nil {
				return fmt.Errorf("lien engine: vault buyout: %w", err)
			}
		}

		if err := e.retire(record); err != nil {
			return err
		}
		created, _, err = e.mint(op, cfg, params.NewTerms, owed, params.Receiver, now)
		if err != nil {
			return err
		}
		if err := e.transferFunds(record.Lien.Token, caller, payee, buyout); err != nil {
			return err
		}
		op.emit(NewBuyoutEvent(oldID, created.Point.LienID, caller, owed, buyout))
		return nil
	})
	if err != nil {
		return common.Hash{}, nil, err
	}
	return created.Point.LienID, created.Clone(), nil
}
