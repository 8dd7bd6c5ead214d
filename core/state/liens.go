package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/native/lien"
)

// LienGet loads the registry record of a lien.
func (m *Manager) LienGet(id common.Hash) (*lien.Stack, bool, error) {
	var stack lien.Stack
	ok, err := m.KVGet(LienStackKey(id), &stack)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stack, true, nil
}

// LienPut stores the registry record keyed by its point's lien id.
func (m *Manager) LienPut(stack *lien.Stack) error {
	if stack == nil {
		return fmt.Errorf("lien: nil stack")
	}
	return m.KVPut(LienStackKey(stack.Point.LienID), stack)
}

// LienDelete removes the registry record of a lien.
func (m *Manager) LienDelete(id common.Hash) error {
	return m.KVDelete(LienStackKey(id))
}

// LienMetaGet loads the metadata of a lien.
func (m *Manager) LienMetaGet(id common.Hash) (*lien.Metadata, bool, error) {
	var meta lien.Metadata
	ok, err := m.KVGet(LienMetaKey(id), &meta)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &meta, true, nil
}

// LienMetaPut stores the metadata of a lien.
func (m *Manager) LienMetaPut(id common.Hash, meta *lien.Metadata) error {
	if meta == nil {
		return fmt.Errorf("lien: nil metadata")
	}
	return m.KVPut(LienMetaKey(id), meta)
}

// LienMetaDelete removes the metadata of a lien.
func (m *Manager) LienMetaDelete(id common.Hash) error {
	return m.KVDelete(LienMetaKey(id))
}

// LienOwnerGet returns the holder of a lien.
func (m *Manager) LienOwnerGet(id common.Hash) (common.Address, bool, error) {
	var owner common.Address
	ok, err := m.KVGet(LienOwnerKey(id), &owner)
	return owner, ok, err
}

// LienOwnerPut records the holder of a lien.
func (m *Manager) LienOwnerPut(id common.Hash, owner common.Address) error {
	return m.KVPut(LienOwnerKey(id), owner)
}

// LienOwnerDelete burns the ownership record of a lien.
func (m *Manager) LienOwnerDelete(id common.Hash) error {
	return m.KVDelete(LienOwnerKey(id))
}

// CollateralStateGet returns the committed stack hash of a collateral, zero
// when none is committed.
func (m *Manager) CollateralStateGet(collateralID *big.Int) (common.Hash, error) {
	var hash common.Hash
	if _, err := m.KVGet(CollateralStateKey(collateralID), &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// CollateralStatePut commits a stack hash. Writing zero clears the entry.
func (m *Manager) CollateralStatePut(collateralID *big.Int, hash common.Hash) error {
	if hash == (common.Hash{}) {
		return m.KVDelete(CollateralStateKey(collateralID))
	}
	return m.KVPut(CollateralStateKey(collateralID), hash)
}

// CollateralLienCount returns the number of open liens on a collateral.
func (m *Manager) CollateralLienCount(collateralID *big.Int) (uint64, error) {
	var count uint64
	if _, err := m.KVGet(CollateralCountKey(collateralID), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetCollateralLienCount records the number of open liens on a collateral.
func (m *Manager) SetCollateralLienCount(collateralID *big.Int, count uint64) error {
	if count == 0 {
		return m.KVDelete(CollateralCountKey(collateralID))
	}
	return m.KVPut(CollateralCountKey(collateralID), count)
}

// AuctionGet loads the auction record of a collateral.
func (m *Manager) AuctionGet(collateralID *big.Int) (*lien.AuctionData, bool, error) {
	var auction lien.AuctionData
	ok, err := m.KVGet(AuctionKey(collateralID), &auction)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &auction, true, nil
}

// AuctionPut stores the auction record of a collateral.
func (m *Manager) AuctionPut(collateralID *big.Int, auction *lien.AuctionData) error {
	if auction == nil {
		return fmt.Errorf("lien: nil auction")
	}
	return m.KVPut(AuctionKey(collateralID), auction)
}

// AuctionDelete removes the auction record of a collateral.
func (m *Manager) AuctionDelete(collateralID *big.Int) error {
	return m.KVDelete(AuctionKey(collateralID))
}

// LienParamsGet loads the persisted ledger params.
func (m *Manager) LienParamsGet() (*lien.Params, bool, error) {
	var params lien.Params
	ok, err := m.KVGet(LienParamsKey(), &params)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &params, true, nil
}

// LienParamsPut persists the ledger params.
func (m *Manager) LienParamsPut(params *lien.Params) error {
	if params == nil {
		return fmt.Errorf("lien: nil params")
	}
	return m.KVPut(LienParamsKey(), params)
}
