package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Balance returns the token balance of an account, zero when never funded.
func (m *Manager) Balance(token, addr common.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(BalanceKey(token, addr), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetBalance stores the token balance of an account. Zero balances are
// removed from state.
func (m *Manager) SetBalance(token, addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(BalanceKey(token, addr))
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	return m.KVPut(BalanceKey(token, addr), amount)
}
