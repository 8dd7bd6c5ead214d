package lien

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ActiveAuction is the collateral state sentinel written when a collateral is
// routed to auction.
var ActiveAuction = crypto.Keccak256Hash([]byte("ACTIVE_AUCTION"))

// LienID derives the content-addressed identifier of the terms.
func LienID(terms Terms) (common.Hash, error) {
	encoded, err := rlp.EncodeToBytes(&terms)
	if err != nil {
		return common.Hash{}, fmt.Errorf("lien: encode terms: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// StackHash derives the collateral state commitment for the stack. A nil
// stack hashes to zero, matching a collateral without an active lien.
func StackHash(stack *Stack) (common.Hash, error) {
	if stack == nil {
		return common.Hash{}, nil
	}
	encoded, err := rlp.EncodeToBytes(stack)
	if err != nil {
		return common.Hash{}, fmt.Errorf("lien: encode stack: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// assertStack compares the presented stack against the committed collateral
// state. The auction sentinel is reported before a plain mismatch so callers
// learn the collateral is being liquidated.
func (e *Engine) assertStack(collateralID *big.Int, stack *Stack) (common.Hash, error) {
	stored, err := e.state.CollateralStateGet(collateralID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("lien engine: load collateral state: %w", err)
	}
	if stored == ActiveAuction {
		return stored, ErrCollateralAuction
	}
	computed, err := StackHash(stack)
	if err != nil {
		return stored, err
	}
	if stored != (common.Hash{}) && stored != computed {
		return stored, ErrInvalidHash
	}
	return stored, nil
}

// commitStack records the stack as the collateral's committed state.
func (e *Engine) commitStack(stack *Stack) error {
	hash, err := StackHash(stack)
	if err != nil {
		return err
	}
	return e.state.CollateralStatePut(stack.Lien.CollateralID, hash)
}

// GetCollateralState returns the committed state hash for the collateral.
func (e *Engine) GetCollateralState(collateralID *big.Int) (common.Hash, error) {
	if e == nil || e.state == nil {
		return common.Hash{}, errNilState
	}
	return e.state.CollateralStateGet(collateralID)
}
