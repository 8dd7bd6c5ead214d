package vault

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/native/lien"
)

// Config declares a pooled vault.
type Config struct {
	Address     common.Address
	Asset       common.Address
	Start       uint64
	EpochLength uint64
}

// Registry resolves pooled vault addresses and implements lien.VaultRegistry.
// Withdraw proxies are not vaults; use VaultForProxy to map them back.
type Registry struct {
	state vaultState
	nowFn func() int64

	mu     sync.RWMutex
	vaults map[common.Address]*Vault
}

var (
	_ lien.VaultRegistry = (*Registry)(nil)
	_ lien.ProxyRegistry = (*Registry)(nil)
)

// NewRegistry creates an empty registry backed by state.
func NewRegistry(state vaultState) *Registry {
	return &Registry{state: state, vaults: make(map[common.Address]*Vault)}
}

// SetNowFunc overrides the clock. Intended for tests.
func (r *Registry) SetNowFunc(now func() int64) { r.nowFn = now }

func (r *Registry) now() uint64 {
	ts := time.Now().Unix()
	if r.nowFn != nil {
		ts = r.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// Register declares a vault. Its accounting state is created on first
// registration; the write is staged and committed by the caller.
func (r *Registry) Register(cfg Config) (*Vault, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("vault: address required")
	}
	if cfg.EpochLength == 0 {
		return nil, ErrInvalidEpochSpan
	}
	_, ok, err := r.state.VaultStateGet(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("vault: load state: %w", err)
	}
	if !ok {
		start := cfg.Start
		if start == 0 {
			start = r.now()
		}
		st := &State{
			Address:     cfg.Address,
			Asset:       cfg.Asset,
			Start:       start,
			EpochLength: cfg.EpochLength,
			Slope:       big.NewInt(0),
			YIntercept:  big.NewInt(0),
			Last:        start,
			Losses:      big.NewInt(0),
		}
		if err := r.state.VaultStatePut(st); err != nil {
			return nil, fmt.Errorf("vault: store state: %w", err)
		}
	}
	v := &Vault{address: cfg.Address, state: r.state, registry: r}
	r.mu.Lock()
	r.vaults[cfg.Address] = v
	r.mu.Unlock()
	return v, nil
}

// Vault returns the registered vault at addr.
func (r *Registry) Vault(addr common.Address) (*Vault, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vaults[addr]
	return v, ok
}

// PublicVault implements lien.VaultRegistry.
func (r *Registry) PublicVault(addr common.Address) (lien.PublicVault, bool) {
	v, ok := r.Vault(addr)
	if !ok {
		return nil, false
	}
	return v, true
}

// VaultForProxy maps a withdraw proxy to the vault that deployed it.
func (r *Registry) VaultForProxy(proxy common.Address) (common.Address, bool, error) {
	return r.state.WithdrawProxyGet(proxy)
}

// Addresses lists the registered vaults in byte order.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.vaults))
	for addr := range r.vaults {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
