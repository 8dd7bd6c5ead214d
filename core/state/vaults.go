package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/native/vault"
)

// VaultStateGet loads the accounting state of a pooled vault.
func (m *Manager) VaultStateGet(addr common.Address) (*vault.State, bool, error) {
	var st vault.State
	ok, err := m.KVGet(VaultStateKey(addr), &st)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &st, true, nil
}

// VaultStatePut stores the accounting state keyed by the vault address.
func (m *Manager) VaultStatePut(st *vault.State) error {
	if st == nil {
		return fmt.Errorf("vault: nil state")
	}
	return m.KVPut(VaultStateKey(st.Address), st)
}

// VaultEpochGet loads the bookkeeping of a vault epoch.
func (m *Manager) VaultEpochGet(addr common.Address, epoch uint64) (*vault.Epoch, bool, error) {
	var data vault.Epoch
	ok, err := m.KVGet(VaultEpochKey(addr, epoch), &data)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &data, true, nil
}

// VaultEpochPut stores the bookkeeping of a vault epoch.
func (m *Manager) VaultEpochPut(addr common.Address, epoch uint64, data *vault.Epoch) error {
	if data == nil {
		return fmt.Errorf("vault: nil epoch")
	}
	return m.KVPut(VaultEpochKey(addr, epoch), data)
}

// WithdrawProxyGet returns the vault that deployed a withdraw proxy.
func (m *Manager) WithdrawProxyGet(proxy common.Address) (common.Address, bool, error) {
	var owner common.Address
	ok, err := m.KVGet(WithdrawProxyKey(proxy), &owner)
	return owner, ok, err
}

// WithdrawProxyPut records the vault that deployed a withdraw proxy.
func (m *Manager) WithdrawProxyPut(proxy, owner common.Address) error {
	return m.KVPut(WithdrawProxyKey(proxy), owner)
}

// VaultLienGet loads the position a vault holds for a lien.
func (m *Manager) VaultLienGet(addr common.Address, id common.Hash) (*vault.Position, bool, error) {
	var pos vault.Position
	ok, err := m.KVGet(VaultLienKey(addr, id), &pos)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &pos, true, nil
}

// VaultLienPut stores the position a vault holds for a lien.
func (m *Manager) VaultLienPut(addr common.Address, id common.Hash, pos *vault.Position) error {
	if pos == nil {
		return fmt.Errorf("vault: nil position")
	}
	return m.KVPut(VaultLienKey(addr, id), pos)
}

// VaultLienDelete drops the position a vault holds for a lien.
func (m *Manager) VaultLienDelete(addr common.Address, id common.Hash) error {
	return m.KVDelete(VaultLienKey(addr, id))
}
