package lien

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/core/events"
	"lienledger/core/types"
	nativecommon "lienledger/native/common"
)

const moduleName = "lien"

var (
	errNilTransferer = errors.New("lien engine: transferer not configured")
	errNilResolver   = errors.New("lien engine: clearing house resolver not configured")
)

type engineState interface {
	LienGet(id common.Hash) (*Stack, bool, error)
	LienPut(stack *Stack) error
	LienDelete(id common.Hash) error
	LienMetaGet(id common.Hash) (*Metadata, bool, error)
	LienMetaPut(id common.Hash, meta *Metadata) error
	LienMetaDelete(id common.Hash) error
	LienOwnerGet(id common.Hash) (common.Address, bool, error)
	LienOwnerPut(id common.Hash, owner common.Address) error
	LienOwnerDelete(id common.Hash) error
	CollateralStateGet(collateralID *big.Int) (common.Hash, error)
	CollateralStatePut(collateralID *big.Int, hash common.Hash) error
	CollateralLienCount(collateralID *big.Int) (uint64, error)
	SetCollateralLienCount(collateralID *big.Int, count uint64) error
	AuctionGet(collateralID *big.Int) (*AuctionData, bool, error)
	AuctionPut(collateralID *big.Int, auction *AuctionData) error
	AuctionDelete(collateralID *big.Int) error
	LienParamsGet() (*Params, bool, error)
	LienParamsPut(params *Params) error

	Snapshot() int
	RevertToSnapshot(id int)
	Commit() error
}

// Engine is the lien ledger. It is not safe for concurrent use; callers
// serialise access so every operation observes the previous one's committed
// state.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	transfer  Transferer
	vaults    VaultRegistry
	clearing  ClearingHouseResolver
	authority Authority
	pauses    nativecommon.PauseView
	defaults  Params
	nowFn     func() int64
	busy      bool
}

// NewEngine creates a lien engine with default params and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		defaults: DefaultParams(),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetTransferer configures the token transfer collaborator.
func (e *Engine) SetTransferer(t Transferer) { e.transfer = t }

// SetVaultRegistry configures the pooled vault lookup.
func (e *Engine) SetVaultRegistry(r VaultRegistry) { e.vaults = r }

// SetClearingHouseResolver configures the auction settlement lookup.
func (e *Engine) SetClearingHouseResolver(r ClearingHouseResolver) { e.clearing = r }

// SetAuthority configures the capability checks for restricted calls.
func (e *Engine) SetAuthority(a Authority) { e.authority = a }

// SetPauses wires the module pause switch.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetDefaultParams replaces the params used until the first File call is
// persisted.
func (e *Engine) SetDefaultParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.defaults = p.Clone()
	return nil
}

// SetNowFunc overrides the clock. Intended for tests.
func (e *Engine) SetNowFunc(now func() int64) { e.nowFn = now }

func (e *Engine) now() uint64 {
	ts := time.Now().Unix()
	if e.nowFn != nil {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(lienEvent{evt: event})
}

// operation buffers the events of a mutating call until it commits.
type operation struct {
	events []*types.Event
}

func (op *operation) emit(evt *types.Event) { op.events = append(op.events, evt) }

// execute runs fn against a state snapshot. Any failure reverts every write
// staged by fn, including transfers and vault bookkeeping made through the
// same state; success commits once and releases the buffered events.
func (e *Engine) execute(fn func(op *operation) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.busy {
		return ErrReentrantCall
	}
	e.busy = true
	defer func() { e.busy = false }()

	snapshot := e.state.Snapshot()
	op := &operation{}
	if err := fn(op); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return fmt.Errorf("lien engine: commit: %w", err)
	}
	for _, evt := range op.events {
		e.emit(evt)
	}
	return nil
}

func (e *Engine) guard() error {
	if e == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return fmt.Errorf("%w: %w", ErrModulePaused, err)
	}
	return nil
}

// Params returns the active configuration.
func (e *Engine) Params() (Params, error) {
	if e == nil || e.state == nil {
		return Params{}, errNilState
	}
	stored, ok, err := e.state.LienParamsGet()
	if err != nil {
		return Params{}, fmt.Errorf("lien engine: load params: %w", err)
	}
	if !ok || stored == nil {
		return e.defaults.Clone(), nil
	}
	return stored.Clone(), nil
}

func (e *Engine) authorize(caller common.Address, capability Capability, cfg Params) error {
	if e.authority != nil && e.authority.CanCall(caller, capability) {
		return nil
	}
	if caller != (common.Address{}) {
		switch capability {
		case CapCreate, CapBuyout, CapSetPayee:
			if caller == cfg.Router {
				return nil
			}
		case CapLiquidate:
			if caller == cfg.CollateralToken {
				return nil
			}
		}
	}
	return ErrNotAuthorized
}

func (e *Engine) publicVault(addr common.Address) (PublicVault, bool) {
	if e.vaults == nil || addr == (common.Address{}) {
		return nil, false
	}
	return e.vaults.PublicVault(addr)
}

// settlementVault resolves the vault accounting for a payee, following a
// withdraw proxy back to the vault that deployed it.
func (e *Engine) settlementVault(payee common.Address) (PublicVault, bool, error) {
	if vault, ok := e.publicVault(payee); ok {
		return vault, true, nil
	}
	proxies, ok := e.vaults.(ProxyRegistry)
	if !ok || payee == (common.Address{}) {
		return nil, false, nil
	}
	owner, found, err := proxies.VaultForProxy(payee)
	if err != nil {
		return nil, false, fmt.Errorf("lien engine: resolve withdraw proxy: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	vault, ok := e.publicVault(owner)
	return vault, ok, nil
}

func (e *Engine) transferFunds(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if e.transfer == nil {
		return errNilTransferer
	}
	if err := e.transfer.TokenTransferFromWithErrorReceiver(token, from, to, amount); err != nil {
		return fmt.Errorf("lien engine: transfer: %w", err)
	}
	return nil
}

func (e *Engine) loadLien(id common.Hash) (*Stack, error) {
	stack, ok, err := e.state.LienGet(id)
	if err != nil {
		return nil, fmt.Errorf("lien engine: load lien: %w", err)
	}
	if !ok || stack == nil {
		return nil, ErrInvalidLienID
	}
	return stack, nil
}

func (e *Engine) loadMeta(id common.Hash) (*Metadata, error) {
	meta, ok, err := e.state.LienMetaGet(id)
	if err != nil {
		return nil, fmt.Errorf("lien engine: load metadata: %w", err)
	}
	if !ok || meta == nil {
		return &Metadata{}, nil
	}
	return meta, nil
}

func (e *Engine) ownerOf(id common.Hash) (common.Address, error) {
	owner, ok, err := e.state.LienOwnerGet(id)
	if err != nil {
		return common.Address{}, fmt.Errorf("lien engine: load owner: %w", err)
	}
	if !ok {
		return common.Address{}, ErrInvalidLienID
	}
	return owner, nil
}

func (e *Engine) payeeOf(id common.Hash) (common.Address, error) {
	meta, err := e.loadMeta(id)
	if err != nil {
		return common.Address{}, err
	}
	if meta.Payee != (common.Address{}) {
		return meta.Payee, nil
	}
	return e.ownerOf(id)
}

// validateStack checks the presented stack names a live lien and matches the
// registry record bit for bit.
func (e *Engine) validateStack(stack *Stack) (*Stack, error) {
	if stack == nil {
		return nil, ErrInvalidTerms
	}
	id, err := LienID(stack.Lien)
	if err != nil {
		return nil, err
	}
	if stack.Point.LienID != id {
		return nil, ErrInvalidLienID
	}
	record, err := e.loadLien(id)
	if err != nil {
		return nil, err
	}
	recordHash, err := StackHash(record)
	if err != nil {
		return nil, err
	}
	presentedHash, err := StackHash(stack)
	if err != nil {
		return nil, err
	}
	if recordHash != presentedHash {
		return nil, ErrInvalidHash
	}
	return record, nil
}

// retire removes every registry record of the lien and clears the committed
// collateral state.
func (e *Engine) retire(stack *Stack) error {
	id := stack.Point.LienID
	if err := e.state.LienMetaDelete(id); err != nil {
		return fmt.Errorf("lien engine: delete metadata: %w", err)
	}
	if err := e.state.LienDelete(id); err != nil {
		return fmt.Errorf("lien engine: delete lien: %w", err)
	}
	if err := e.state.LienOwnerDelete(id); err != nil {
		return fmt.Errorf("lien engine: burn lien: %w", err)
	}
	if err := e.state.CollateralStatePut(stack.Lien.CollateralID, common.Hash{}); err != nil {
		return fmt.Errorf("lien engine: clear collateral state: %w", err)
	}
	count, err := e.state.CollateralLienCount(stack.Lien.CollateralID)
	if err != nil {
		return fmt.Errorf("lien engine: load lien count: %w", err)
	}
	if count > 0 {
		count--
	}
	if err := e.state.SetCollateralLienCount(stack.Lien.CollateralID, count); err != nil {
		return fmt.Errorf("lien engine: store lien count: %w", err)
	}
	return nil
}
