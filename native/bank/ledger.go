package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	errNilState            = errors.New("bank: state not configured")
)

type ledgerState interface {
	Balance(token, addr common.Address) (*big.Int, error)
	SetBalance(token, addr common.Address, amount *big.Int) error
}

// Ledger moves token balances held in state. Credits to receivers that
// reject funds are redirected to the error receiver instead of failing the
// transfer, so a hostile payee cannot block settlement.
type Ledger struct {
	state         ledgerState
	errorReceiver common.Address

	mu       sync.RWMutex
	rejected map[common.Address]struct{}
}

// NewLedger creates a ledger crediting redirected funds to errorReceiver.
func NewLedger(state ledgerState, errorReceiver common.Address) *Ledger {
	return &Ledger{
		state:         state,
		errorReceiver: errorReceiver,
		rejected:      make(map[common.Address]struct{}),
	}
}

// ErrorReceiver returns the address credited when a receiver rejects funds.
func (l *Ledger) ErrorReceiver() common.Address { return l.errorReceiver }

// RejectReceiver marks an address as refusing incoming credits.
func (l *Ledger) RejectReceiver(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejected[addr] = struct{}{}
}

// AcceptReceiver clears a previous RejectReceiver call.
func (l *Ledger) AcceptReceiver(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rejected, addr)
}

func (l *Ledger) accepts(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, rejected := l.rejected[addr]
	return !rejected
}

// Balance returns the token balance of addr.
func (l *Ledger) Balance(token, addr common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.Balance(token, addr)
}

// Mint credits amount to addr. It only stages the write; callers commit the
// underlying state.
func (l *Ledger) Mint(token, addr common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.credit(token, addr, amount)
}

// TokenTransferFromWithErrorReceiver debits from and credits to. An
// insufficient payer balance fails the transfer; a rejecting receiver has the
// credit redirected to the error receiver.
func (l *Ledger) TokenTransferFromWithErrorReceiver(token, from, to common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.state.Balance(token, from)
	if err != nil {
		return fmt.Errorf("bank: load balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.SetBalance(token, from, new(big.Int).Sub(balance, amount)); err != nil {
		return fmt.Errorf("bank: store balance: %w", err)
	}
	recipient := to
	if !l.accepts(to) {
		recipient = l.errorReceiver
	}
	return l.credit(token, recipient, amount)
}

func (l *Ledger) credit(token, addr common.Address, amount *big.Int) error {
	balance, err := l.state.Balance(token, addr)
	if err != nil {
		return fmt.Errorf("bank: load balance: %w", err)
	}
	if err := l.state.SetBalance(token, addr, new(big.Int).Add(balance, amount)); err != nil {
		return fmt.Errorf("bank: store balance: %w", err)
	}
	return nil
}
