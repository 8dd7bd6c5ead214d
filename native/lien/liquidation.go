package lien

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StopLiens freezes the debt of the collateral's committed stack and routes
// the collateral to auction. No funds move; the returned record is what the
// auction collaborator executes against.
func (e *Engine) StopLiens(caller common.Address, collateralID *big.Int, auctionWindow uint64, stack Stack, liquidator common.Address) (*AuctionData, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	var auction *AuctionData
	err := e.execute(func(op *operation) error {
		cfg, err := e.Params()
		if err != nil {
			return err
		}
		if err := e.authorize(caller, CapLiquidate, cfg); err != nil {
			return err
		}
		if collateralID == nil || cloneBigInt(stack.Lien.CollateralID).Cmp(collateralID) != 0 {
			return ErrInvalidHash
		}
		if auctionWindow == 0 {
			return ErrInvalidAuctionWindow
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
		owed, err := Owed(record, now)
		if err != nil {
			return err
		}
		slope, err := Slope(record)
		if err != nil {
			return err
		}
		endTime, err := safeCastTo40(now + auctionWindow)
		if err != nil || endTime < now {
			return ErrInvalidAuctionWindow
		}

		meta.AtLiquidation = true
		if err := e.state.CollateralStatePut(collateralID, ActiveAuction); err != nil {
			return fmt.Errorf("lien engine: store collateral state: %w", err)
		}
		auction = &AuctionData{
			Liquidator: liquidator,
			Token:      record.Lien.Token,
			Stack: AuctionStack{
				LienID:     id,
				End:        record.Point.End,
				AmountOwed: owed,
			},
			StartTime:   now,
			EndTime:     endTime,
			StartAmount: cloneBigInt(record.Lien.Details.LiquidationInitialAsk),
			EndAmount:   cloneBigInt(cfg.AuctionFloor),
		}
		if err := e.state.AuctionPut(collateralID, auction); err != nil {
			return fmt.Errorf("lien engine: store auction: %w", err)
		}

		payee, err := e.payeeOf(id)
		if err != nil {
			return err
		}
		if vault, ok := e.publicVault(payee); ok {
			proxy, err := vault.UpdateVaultAfterLiquidation(auctionWindow, AfterLiquidationParams{
				LienID:    id,
				LienSlope: slope,
				NewAmount: cloneBigInt(owed),
				LienEnd:   record.Point.End,
			})
			if err != nil {
				return fmt.Errorf("lien engine: vault after liquidation: %w", err)
			}
			if proxy != (common.Address{}) {
				meta.Payee = proxy
				op.emit(NewPayeeChangedEvent(id, proxy))
			}
		}
		if err := e.state.LienMetaPut(id, meta); err != nil {
			return fmt.Errorf("lien engine: store metadata: %w", err)
		}
		op.emit(NewLiquidatedEvent(collateralID, auction))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return auction.Clone(), nil
}

// GetAuctionData returns the auction record of a liquidated collateral.
func (e *Engine) GetAuctionData(collateralID *big.Int) (*AuctionData, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	auction, ok, err := e.state.AuctionGet(collateralID)
	if err != nil {
		return nil, fmt.Errorf("lien engine: load auction: %w", err)
	}
	if !ok || auction == nil {
		return nil, ErrNoActiveAuction
	}
	return auction.Clone(), nil
}

// GetAuctionLiquidator returns the address that triggered the collateral's
// liquidation.
func (e *Engine) GetAuctionLiquidator(collateralID *big.Int) (common.Address, error) {
	auction, err := e.GetAuctionData(collateralID)
	if err != nil {
		return common.Address{}, err
	}
	return auction.Liquidator, nil
}
