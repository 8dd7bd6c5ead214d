package modules

import (
	"context"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/native/bank"
	"lienledger/native/lien"
	"lienledger/native/vault"
)

// EventFilter narrows an archive query. Empty fields match everything.
type EventFilter struct {
	Type         string
	LienID       string
	CollateralID string
	Limit        int
}

// EventRecord is an archived ledger event.
type EventRecord struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// EventSource serves historical ledger events.
type EventSource interface {
	ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error)
}

type journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Commit() error
}

// LienModule exposes the ledger to the RPC server. Every call runs under one
// mutex so the ledger observes a single sequence of operations.
type LienModule struct {
	mu     sync.Mutex
	engine *lien.Engine
	bank   *bank.Ledger
	vaults *vault.Registry
	state  journal
	events EventSource
}

// NewLienModule wires the ledger components sharing state.
func NewLienModule(engine *lien.Engine, ledger *bank.Ledger, vaults *vault.Registry, state journal) *LienModule {
	return &LienModule{engine: engine, bank: ledger, vaults: vaults, state: state}
}

// SetEventSource configures the archive backing ListEvents.
func (m *LienModule) SetEventSource(src EventSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = src
}

func (m *LienModule) moduleUnavailable() *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "lien module not available"}
}

func (m *LienModule) withEngine(fn func(engine *lien.Engine) error) *ModuleError {
	if m == nil || m.engine == nil {
		return m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return WrapError(fn(m.engine))
}

// CreateResult is returned by CreateLien.
type CreateResult struct {
	LienID common.Hash
	Stack  *lien.Stack
	Slope  *big.Int
}

func (m *LienModule) CreateLien(caller common.Address, params lien.CreateParams) (*CreateResult, *ModuleError) {
	var out CreateResult
	err := m.withEngine(func(engine *lien.Engine) error {
		id, stack, slope, err := engine.CreateLien(caller, params)
		out = CreateResult{LienID: id, Stack: stack, Slope: slope}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *LienModule) ValidateLien(terms lien.Terms) (common.Hash, *ModuleError) {
	var id common.Hash
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		id, err = engine.ValidateLien(terms)
		return err
	})
	return id, err
}

// LienView is a registry record with its ownership data.
type LienView struct {
	Stack    *lien.Stack
	Metadata *lien.Metadata
	Owner    common.Address
	Payee    common.Address
}

func (m *LienModule) GetLien(id common.Hash) (*LienView, *ModuleError) {
	var view LienView
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		if view.Stack, err = engine.GetLien(id); err != nil {
			return err
		}
		if view.Metadata, err = engine.GetMetadata(id); err != nil {
			return err
		}
		if view.Owner, err = engine.OwnerOf(id); err != nil {
			return err
		}
		view.Payee, err = engine.GetPayee(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// GetOwed returns the debt now, or at timestamp when it is non-zero.
func (m *LienModule) GetOwed(stack *lien.Stack, timestamp uint64) (*big.Int, *ModuleError) {
	return m.amount(func(engine *lien.Engine) (*big.Int, error) {
		if timestamp != 0 {
			return engine.GetOwedAt(stack, timestamp)
		}
		return engine.GetOwed(stack)
	})
}

func (m *LienModule) GetInterest(stack *lien.Stack) (*big.Int, *ModuleError) {
	return m.amount(func(engine *lien.Engine) (*big.Int, error) { return engine.GetInterest(stack) })
}

func (m *LienModule) CalculateSlope(stack *lien.Stack) (*big.Int, *ModuleError) {
	return m.amount(func(engine *lien.Engine) (*big.Int, error) { return engine.CalculateSlope(stack) })
}

func (m *LienModule) GetRemainingInterest(stack *lien.Stack) (*big.Int, *ModuleError) {
	return m.amount(func(engine *lien.Engine) (*big.Int, error) { return engine.GetRemainingInterest(stack) })
}

func (m *LienModule) GetMaxPotentialDebt(stack *lien.Stack) (*big.Int, *ModuleError) {
	return m.amount(func(engine *lien.Engine) (*big.Int, error) { return engine.GetMaxPotentialDebt(stack) })
}

func (m *LienModule) amount(fn func(engine *lien.Engine) (*big.Int, error)) (*big.Int, *ModuleError) {
	var out *big.Int
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		out, err = fn(engine)
		return err
	})
	return out, err
}

func (m *LienModule) GetBuyout(stack *lien.Stack) (*big.Int, *big.Int, *ModuleError) {
	var owed, price *big.Int
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		owed, price, err = engine.GetBuyout(stack)
		return err
	})
	return owed, price, err
}

func (m *LienModule) IsValidRefinance(terms lien.Terms, stack *lien.Stack) (bool, *ModuleError) {
	var ok bool
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		ok, err = engine.IsValidRefinance(terms, stack)
		return err
	})
	return ok, err
}

func (m *LienModule) SetPayee(caller common.Address, id common.Hash, payee common.Address) *ModuleError {
	return m.withEngine(func(engine *lien.Engine) error { return engine.SetPayee(caller, id, payee) })
}

func (m *LienModule) TransferLien(caller, from, to common.Address, id common.Hash) *ModuleError {
	return m.withEngine(func(engine *lien.Engine) error { return engine.TransferLien(caller, from, to, id) })
}

func (m *LienModule) StopLiens(caller common.Address, collateralID *big.Int, window uint64, stack lien.Stack, liquidator common.Address) (*lien.AuctionData, *ModuleError) {
	var out *lien.AuctionData
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		out, err = engine.StopLiens(caller, collateralID, window, stack, liquidator)
		return err
	})
	return out, err
}

func (m *LienModule) MakePayment(payer common.Address, collateralID *big.Int, stack lien.Stack) (*big.Int, *ModuleError) {
	return m.amount(func(engine *lien.Engine) (*big.Int, error) {
		return engine.MakePayment(payer, collateralID, stack)
	})
}

func (m *LienModule) PayDebtViaClearingHouse(caller, token common.Address, collateralID, payment *big.Int, auctionStack lien.AuctionStack) (*big.Int, *ModuleError) {
	return m.amount(func(engine *lien.Engine) (*big.Int, error) {
		return engine.PayDebtViaClearingHouse(caller, token, collateralID, payment, auctionStack)
	})
}

func (m *LienModule) BuyoutLien(caller common.Address, params lien.BuyoutParams) (*CreateResult, *ModuleError) {
	var out CreateResult
	err := m.withEngine(func(engine *lien.Engine) error {
		id, stack, err := engine.BuyoutLien(caller, params)
		out = CreateResult{LienID: id, Stack: stack}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CollateralState reports the committed hash and whether it is the auction
// sentinel.
func (m *LienModule) CollateralState(collateralID *big.Int) (common.Hash, bool, *ModuleError) {
	var hash common.Hash
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		hash, err = engine.GetCollateralState(collateralID)
		return err
	})
	return hash, hash == lien.ActiveAuction, err
}

func (m *LienModule) GetAuctionData(collateralID *big.Int) (*lien.AuctionData, *ModuleError) {
	var out *lien.AuctionData
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		out, err = engine.GetAuctionData(collateralID)
		return err
	})
	return out, err
}

func (m *LienModule) File(caller common.Address, req lien.FileRequest) *ModuleError {
	return m.withEngine(func(engine *lien.Engine) error { return engine.File(caller, req) })
}

func (m *LienModule) Params() (lien.Params, *ModuleError) {
	var out lien.Params
	err := m.withEngine(func(engine *lien.Engine) error {
		var err error
		out, err = engine.Params()
		return err
	})
	return out, err
}

func (m *LienModule) Balance(token, addr common.Address) (*big.Int, *ModuleError) {
	if m == nil || m.bank == nil {
		return nil, m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, err := m.bank.Balance(token, addr)
	if err != nil {
		return nil, WrapError(err)
	}
	return bal, nil
}

// Mint credits test funds and commits them immediately.
func (m *LienModule) Mint(token, addr common.Address, amount *big.Int) *ModuleError {
	if m == nil || m.bank == nil || m.state == nil {
		return m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.Snapshot()
	if err := m.bank.Mint(token, addr, amount); err != nil {
		m.state.RevertToSnapshot(snapshot)
		return WrapError(err)
	}
	if err := m.state.Commit(); err != nil {
		m.state.RevertToSnapshot(snapshot)
		return WrapError(err)
	}
	return nil
}

// VaultState returns a pooled vault's accounting and projected assets.
func (m *LienModule) VaultState(addr common.Address) (*vault.State, *big.Int, *ModuleError) {
	if m == nil || m.vaults == nil {
		return nil, nil, m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vaults.Vault(addr)
	if !ok {
		return nil, nil, WrapError(vault.ErrUnknownVault)
	}
	st, err := v.State()
	if err != nil {
		return nil, nil, WrapError(err)
	}
	assets, err := v.TotalAssets()
	if err != nil {
		return nil, nil, WrapError(err)
	}
	return st, assets, nil
}

func (m *LienModule) ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, *ModuleError) {
	if m == nil {
		return nil, m.moduleUnavailable()
	}
	m.mu.Lock()
	src := m.events
	m.mu.Unlock()
	if src == nil {
		return nil, &ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeServerError, Message: "event archive not configured"}
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	records, err := src.ListEvents(ctx, filter)
	if err != nil {
		return nil, &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "list events failed", Data: err.Error()}
	}
	if records == nil {
		records = []EventRecord{}
	}
	return records, nil
}
