package lien

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MakePayment repays the committed stack of the collateral in full. The lien
// is retired before funds move so the transfer observes the terminal state.
func (e *Engine) MakePayment(payer common.Address, collateralID *big.Int, stack Stack) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	var paid *big.Int
	err := e.execute(func(op *operation) error {
		if collateralID == nil || cloneBigInt(stack.Lien.CollateralID).Cmp(collateralID) != 0 {
			return ErrInvalidHash
		}
		if _, err := e.assertStack(collateralID, &stack); err != nil {
			return err
		}
		record, err := e.validateStack(&stack)
		if err != nil {
			return err
		}
		id := record.Point.LienID
		meta, err := e.loadMeta(id)
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
		owed, err := Owed(record, now)
		if err != nil {
			return err
		}
		owner, err := e.ownerOf(id)
		if err != nil {
			return err
		}
		payee, err := e.payeeOf(id)
		if err != nil {
			return err
		}

		// The vault must see the lien's numbers before it disappears.
		if vault, ok := e.publicVault(owner); ok {
			slope, err := Slope(record)
			if err != nil {
				return err
			}
			err = vault.BeforePayment(BeforePaymentParams{
				LienID:       id,
				InterestOwed: new(big.Int).Sub(owed, record.Point.Amount),
				Amount:       cloneBigInt(record.Point.Amount),
				LienSlope:    slope,
			})
			if err != nil {
				return fmt.Errorf("lien engine: vault before payment: %w", err)
			}
			if err := vault.DecreaseEpochLienCount(vault.LienEpoch(record.Point.End)); err != nil {
				return fmt.Errorf("lien engine: vault epoch count: %w", err)
			}
		}

		if err := e.retire(record); err != nil {
			return err
		}
		if err := e.transferFunds(record.Lien.Token, payer, payee, owed); err != nil {
			return err
		}
		paid = owed
		op.emit(NewPaymentEvent(id, collateralID, payer, payee, owed, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// PayDebtViaClearingHouse settles a liquidated lien from auction proceeds. It
// uses the debt frozen at liquidation and returns the shortfall, which is zero
// when payment covers the frozen amount. Only the clearing house bound to the
// collateral may call it.
func (e *Engine) PayDebtViaClearingHouse(caller, token common.Address, collateralID *big.Int, payment *big.Int, auctionStack AuctionStack) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.clearing == nil {
		return nil, errNilResolver
	}
	if collateralID == nil {
		return nil, ErrInvalidTerms
	}
	clearingHouse, ok := e.clearing.ClearingHouse(collateralID)
	if !ok || clearingHouse != caller {
		return nil, ErrNotClearingHouse
	}
	if payment != nil && payment.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	var remaining *big.Int
	err := e.execute(func(op *operation) error {
		auction, ok, err := e.state.AuctionGet(collateralID)
		if err != nil {
			return fmt.Errorf("lien engine: load auction: %w", err)
		}
		if !ok || auction == nil {
			return ErrNoActiveAuction
		}
		if !auction.Stack.Equal(auctionStack) {
			return ErrInvalidAuctionStack
		}
		if token != auction.Token {
			return ErrInvalidToken
		}
		record, err := e.loadLien(auction.Stack.LienID)
		if err != nil {
			return err
		}
		payee, err := e.payeeOf(record.Point.LienID)
		if err != nil {
			return err
		}

		owed := cloneBigInt(auction.Stack.AmountOwed)
		paid := cloneBigInt(payment)
		remaining = big.NewInt(0)
		if owed.Cmp(paid) > 0 {
			remaining = new(big.Int).Sub(owed, paid)
		} else {
			paid = owed
		}
		op.emit(NewPaymentEvent(record.Point.LienID, collateralID, caller, payee, paid, remaining))

		if err := e.retire(record); err != nil {
			return err
		}
		if err := e.state.AuctionDelete(collateralID); err != nil {
			return fmt.Errorf("lien engine: delete auction: %w", err)
		}
		if err := e.transferFunds(token, caller, payee, paid); err != nil {
			return err
		}
		vault, ok, err := e.settlementVault(payee)
		if err != nil {
			return err
		}
		if ok {
			err := vault.UpdateAfterLiquidationPayment(LiquidationPaymentParams{
				LienID:    record.Point.LienID,
				LienEnd:   auction.Stack.End,
				Remaining: cloneBigInt(remaining),
			})
			if err != nil {
				return fmt.Errorf("lien engine: vault after liquidation payment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}
