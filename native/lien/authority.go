package lien

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Capability names a restricted ledger entry point.
type Capability string

const (
	CapCreate    Capability = "create"
	CapLiquidate Capability = "liquidate"
	CapBuyout    Capability = "buyout"
	CapSetPayee  Capability = "setPayee"
	CapFile      Capability = "file"
)

// Authority decides whether a caller may invoke a restricted entry point.
type Authority interface {
	CanCall(caller common.Address, capability Capability) bool
}

// RoleAuthority is an in-memory address to capability grant table.
type RoleAuthority struct {
	mu     sync.RWMutex
	grants map[common.Address]map[Capability]struct{}
}

// NewRoleAuthority returns an empty grant table.
func NewRoleAuthority() *RoleAuthority {
	return &RoleAuthority{grants: make(map[common.Address]map[Capability]struct{})}
}

// Grant adds the capabilities to the caller's grant set.
func (a *RoleAuthority) Grant(caller common.Address, caps ...Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.grants[caller]
	if !ok {
		set = make(map[Capability]struct{})
		a.grants[caller] = set
	}
	for _, c := range caps {
		set[c] = struct{}{}
	}
}

// Revoke removes the capabilities from the caller's grant set.
func (a *RoleAuthority) Revoke(caller common.Address, caps ...Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.grants[caller]
	if !ok {
		return
	}
	for _, c := range caps {
		delete(set, c)
	}
	if len(set) == 0 {
		delete(a.grants, caller)
	}
}

// CanCall implements Authority.
func (a *RoleAuthority) CanCall(caller common.Address, capability Capability) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.grants[caller][capability]
	return ok
}

// Capabilities lists the caller's grants in lexical order.
func (a *RoleAuthority) Capabilities(caller common.Address) []Capability {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Capability, 0, len(a.grants[caller]))
	for c := range a.grants[caller] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseCapability validates a capability name read from configuration.
func ParseCapability(name string) (Capability, bool) {
	switch c := Capability(name); c {
	case CapCreate, CapLiquidate, CapBuyout, CapSetPayee, CapFile:
		return c, true
	default:
		return "", false
	}
}
