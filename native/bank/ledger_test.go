package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type memBalances map[string]*big.Int

func (m memBalances) Balance(token, addr common.Address) (*big.Int, error) {
	if v, ok := m[token.Hex()+addr.Hex()]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m memBalances) SetBalance(token, addr common.Address, amount *big.Int) error {
	m[token.Hex()+addr.Hex()] = new(big.Int).Set(amount)
	return nil
}

var (
	token    = common.HexToAddress("0x10")
	alice    = common.HexToAddress("0x20")
	bob      = common.HexToAddress("0x30")
	fallback = common.HexToAddress("0x40")
)

func balanceOf(t *testing.T, l *Ledger, addr common.Address) int64 {
	t.Helper()
	bal, err := l.Balance(token, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestTransfer(t *testing.T) {
	l := NewLedger(memBalances{}, fallback)
	if err := l.Mint(token, alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := l.Mint(token, alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.TokenTransferFromWithErrorReceiver(token, alice, bob, big.NewInt(60)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.TokenTransferFromWithErrorReceiver(token, alice, bob, big.NewInt(20)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if balanceOf(t, l, alice) != 30 || balanceOf(t, l, bob) != 20 {
		t.Fatalf("unexpected balances alice=%d bob=%d", balanceOf(t, l, alice), balanceOf(t, l, bob))
	}
}

func TestRejectingReceiverIsRedirected(t *testing.T) {
	l := NewLedger(memBalances{}, fallback)
	if err := l.Mint(token, alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	l.RejectReceiver(bob)
	if err := l.TokenTransferFromWithErrorReceiver(token, alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := l.TokenTransferFromWithErrorReceiver(token, alice, common.Address{}, big.NewInt(5)); err != nil {
		t.Fatalf("transfer to zero: %v", err)
	}
	if balanceOf(t, l, bob) != 0 || balanceOf(t, l, fallback) != 15 {
		t.Fatalf("expected redirect to error receiver, bob=%d fallback=%d", balanceOf(t, l, bob), balanceOf(t, l, fallback))
	}
	l.AcceptReceiver(bob)
	if err := l.TokenTransferFromWithErrorReceiver(token, alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if balanceOf(t, l, bob) != 10 {
		t.Fatalf("expected bob to accept funds again")
	}
	if l.ErrorReceiver() != fallback {
		t.Fatalf("unexpected error receiver")
	}
}
