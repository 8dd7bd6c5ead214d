package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the aggregate accounting of a pooled vault. Total assets grow
// linearly with Slope from YIntercept at Last.
type State struct {
	Address     common.Address
	Asset       common.Address
	Start       uint64
	EpochLength uint64
	Slope       *big.Int
	YIntercept  *big.Int
	Last        uint64
	// Losses accumulates auction shortfalls recognised by the vault.
	Losses *big.Int
}

// Epoch is the per-epoch bookkeeping of a vault.
type Epoch struct {
	LienCount     uint64
	WithdrawProxy common.Address
	// ExpectedProceeds sums the frozen debt of liens whose auction proceeds
	// were routed to the epoch's withdraw proxy.
	ExpectedProceeds *big.Int
}

// Position is a lien the vault counted when it was minted to it. Liens the
// vault never counted, such as those routed to it by a payee override, have
// no position and leave the vault accounting untouched.
type Position struct {
	Epoch uint64
	Slope *big.Int
	// Liquidated is set once the lien's debt was frozen. Proceeds holds the
	// frozen debt and Proxied whether it was routed to a withdraw proxy.
	Liquidated bool
	Proceeds   *big.Int
	Proxied    bool
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Slope = cloneBigInt(s.Slope)
	out.YIntercept = cloneBigInt(s.YIntercept)
	out.Losses = cloneBigInt(s.Losses)
	return &out
}

// Clone returns a deep copy of the epoch.
func (e *Epoch) Clone() *Epoch {
	if e == nil {
		return nil
	}
	out := *e
	out.ExpectedProceeds = cloneBigInt(e.ExpectedProceeds)
	return &out
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// saturatingSub returns a-b floored at zero.
func saturatingSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(cloneBigInt(a), cloneBigInt(b))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
