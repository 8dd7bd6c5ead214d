package vault

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lienledger/native/lien"
)

var (
	ErrUnknownVault     = errors.New("vault: unknown vault")
	ErrEpochUnderflow   = errors.New("vault: epoch lien count underflow")
	ErrInvalidEpochSpan = errors.New("vault: epoch length must be positive")
)

type vaultState interface {
	VaultStateGet(addr common.Address) (*State, bool, error)
	VaultStatePut(state *State) error
	VaultEpochGet(addr common.Address, epoch uint64) (*Epoch, bool, error)
	VaultEpochPut(addr common.Address, epoch uint64, data *Epoch) error
	WithdrawProxyGet(proxy common.Address) (common.Address, bool, error)
	WithdrawProxyPut(proxy, vault common.Address) error
	VaultLienGet(addr common.Address, id common.Hash) (*Position, bool, error)
	VaultLienPut(addr common.Address, id common.Hash, pos *Position) error
	VaultLienDelete(addr common.Address, id common.Hash) error
}

// Vault tracks the aggregate yield of the liens a pooled vault holds and
// implements lien.PublicVault. All writes are staged in the shared state so
// they commit or revert with the ledger operation that triggered them.
type Vault struct {
	address  common.Address
	state    vaultState
	registry *Registry
}

var _ lien.PublicVault = (*Vault)(nil)

// Address returns the vault address.
func (v *Vault) Address() common.Address { return v.address }

func (v *Vault) load() (*State, error) {
	st, ok, err := v.state.VaultStateGet(v.address)
	if err != nil {
		return nil, fmt.Errorf("vault: load state: %w", err)
	}
	if !ok || st == nil {
		return nil, ErrUnknownVault
	}
	return st, nil
}

func (v *Vault) loadEpoch(epoch uint64) (*Epoch, error) {
	data, ok, err := v.state.VaultEpochGet(v.address, epoch)
	if err != nil {
		return nil, fmt.Errorf("vault: load epoch: %w", err)
	}
	if !ok || data == nil {
		return &Epoch{ExpectedProceeds: big.NewInt(0)}, nil
	}
	return data, nil
}

// State returns a copy of the vault accounting.
func (v *Vault) State() (*State, error) {
	st, err := v.load()
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

func (v *Vault) loadPosition(id common.Hash) (*Position, bool, error) {
	pos, ok, err := v.state.VaultLienGet(v.address, id)
	if err != nil {
		return nil, false, fmt.Errorf("vault: load position: %w", err)
	}
	return pos, ok && pos != nil, nil
}

func (v *Vault) dropPosition(id common.Hash) error {
	if err := v.state.VaultLienDelete(v.address, id); err != nil {
		return fmt.Errorf("vault: drop position: %w", err)
	}
	return nil
}

// Position returns the vault's record of a lien it counted.
func (v *Vault) Position(id common.Hash) (*Position, bool, error) {
	pos, ok, err := v.loadPosition(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := *pos
	out.Slope = cloneBigInt(pos.Slope)
	out.Proceeds = cloneBigInt(pos.Proceeds)
	return &out, true, nil
}

// Epoch returns a copy of the bookkeeping of the epoch.
func (v *Vault) Epoch(epoch uint64) (*Epoch, error) {
	data, err := v.loadEpoch(epoch)
	if err != nil {
		return nil, err
	}
	return data.Clone(), nil
}

// TotalAssets projects the vault's assets at the current time.
func (v *Vault) TotalAssets() (*big.Int, error) {
	st, err := v.load()
	if err != nil {
		return nil, err
	}
	return totalAssets(st, v.registry.now()), nil
}

func totalAssets(st *State, now uint64) *big.Int {
	out := cloneBigInt(st.YIntercept)
	if now <= st.Last {
		return out
	}
	delta := new(big.Int).SetUint64(now - st.Last)
	return out.Add(out, delta.Mul(delta, cloneBigInt(st.Slope)))
}

// accrue folds the interest earned since Last into YIntercept.
func (v *Vault) accrue(st *State) {
	now := v.registry.now()
	st.YIntercept = totalAssets(st, now)
	if now > st.Last {
		st.Last = now
	}
}

// LienEpoch returns the epoch a lien ending at end matures in.
func (v *Vault) LienEpoch(end uint64) uint64 {
	st, err := v.load()
	if err != nil || st.EpochLength == 0 || end <= st.Start {
		return 0
	}
	span := end - st.Start
	return (span+st.EpochLength-1)/st.EpochLength - 1
}

func epochEnd(st *State, epoch uint64) uint64 {
	return st.Start + (epoch+1)*st.EpochLength
}

// WithdrawProxyAddress derives the proxy collecting an epoch's liquidation
// proceeds.
func WithdrawProxyAddress(vault common.Address, epoch uint64) common.Address {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(epoch >> (8 * i))
	}
	return common.BytesToAddress(crypto.Keccak256(vault.Bytes(), buf[:])[12:])
}

func (v *Vault) changeLienCount(epoch uint64, delta int) error {
	data, err := v.loadEpoch(epoch)
	if err != nil {
		return err
	}
	if delta < 0 {
		if data.LienCount == 0 {
			return ErrEpochUnderflow
		}
		data.LienCount--
	} else {
		data.LienCount++
	}
	return v.state.VaultEpochPut(v.address, epoch, data)
}

// AfterNewLien adds the lien's slope and counts it against its epoch.
func (v *Vault) AfterNewLien(params lien.NewLienParams) error {
	st, err := v.load()
	if err != nil {
		return err
	}
	if _, held, err := v.loadPosition(params.LienID); err != nil {
		return err
	} else if held {
		return nil
	}
	v.accrue(st)
	st.Slope = new(big.Int).Add(cloneBigInt(st.Slope), cloneBigInt(params.LienSlope))
	if err := v.state.VaultStatePut(st); err != nil {
		return fmt.Errorf("vault: store state: %w", err)
	}
	epoch := v.LienEpoch(params.LienEnd)
	pos := &Position{Epoch: epoch, Slope: cloneBigInt(params.LienSlope), Proceeds: big.NewInt(0)}
	if err := v.state.VaultLienPut(v.address, params.LienID, pos); err != nil {
		return fmt.Errorf("vault: store position: %w", err)
	}
	return v.changeLienCount(epoch, 1)
}

// BeforePayment removes the slope of a lien about to be repaid.
func (v *Vault) BeforePayment(params lien.BeforePaymentParams) error {
	st, err := v.load()
	if err != nil {
		return err
	}
	pos, held, err := v.loadPosition(params.LienID)
	if err != nil || !held {
		return err
	}
	v.accrue(st)
	st.Slope = saturatingSub(st.Slope, pos.Slope)
	if err := v.state.VaultStatePut(st); err != nil {
		return fmt.Errorf("vault: store state: %w", err)
	}
	return v.dropPosition(params.LienID)
}

// DecreaseEpochLienCount closes a lien against its epoch.
func (v *Vault) DecreaseEpochLienCount(epoch uint64) error {
	if _, err := v.load(); err != nil {
		return err
	}
	return v.changeLienCount(epoch, -1)
}

// UpdateVaultAfterLiquidation removes the slope of a liquidated lien. When the
// lien's epoch closes within the auction window the proceeds are routed to the
// epoch's withdraw proxy, whose address is returned. Liens the vault never
// counted are ignored.
func (v *Vault) UpdateVaultAfterLiquidation(auctionWindow uint64, params lien.AfterLiquidationParams) (common.Address, error) {
	st, err := v.load()
	if err != nil {
		return common.Address{}, err
	}
	pos, held, err := v.loadPosition(params.LienID)
	if err != nil {
		return common.Address{}, err
	}
	if !held || pos.Liquidated {
		return common.Address{}, nil
	}
	v.accrue(st)
	st.Slope = saturatingSub(st.Slope, pos.Slope)
	if err := v.state.VaultStatePut(st); err != nil {
		return common.Address{}, fmt.Errorf("vault: store state: %w", err)
	}
	epoch := pos.Epoch
	if err := v.changeLienCount(epoch, -1); err != nil {
		return common.Address{}, err
	}
	pos.Liquidated = true
	pos.Proceeds = cloneBigInt(params.NewAmount)

	var proxy common.Address
	now := v.registry.now()
	end := epochEnd(st, epoch)
	var timeToEnd uint64
	if end > now {
		timeToEnd = end - now
	}
	if timeToEnd < auctionWindow {
		data, err := v.loadEpoch(epoch)
		if err != nil {
			return common.Address{}, err
		}
		if data.WithdrawProxy == (common.Address{}) {
			data.WithdrawProxy = WithdrawProxyAddress(v.address, epoch)
			if err := v.state.WithdrawProxyPut(data.WithdrawProxy, v.address); err != nil {
				return common.Address{}, fmt.Errorf("vault: register withdraw proxy: %w", err)
			}
		}
		data.ExpectedProceeds = new(big.Int).Add(cloneBigInt(data.ExpectedProceeds), cloneBigInt(params.NewAmount))
		if err := v.state.VaultEpochPut(v.address, epoch, data); err != nil {
			return common.Address{}, fmt.Errorf("vault: store epoch: %w", err)
		}
		proxy = data.WithdrawProxy
		pos.Proxied = true
	}
	if err := v.state.VaultLienPut(v.address, params.LienID, pos); err != nil {
		return common.Address{}, fmt.Errorf("vault: store position: %w", err)
	}
	return proxy, nil
}

// UpdateAfterLiquidationPayment writes the auction shortfall off the vault's
// assets and closes the epoch's expectation for the lien's proceeds.
func (v *Vault) UpdateAfterLiquidationPayment(params lien.LiquidationPaymentParams) error {
	st, err := v.load()
	if err != nil {
		return err
	}
	pos, held, err := v.loadPosition(params.LienID)
	if err != nil {
		return err
	}
	if !held || !pos.Liquidated {
		return nil
	}
	v.accrue(st)
	if params.Remaining != nil && params.Remaining.Sign() > 0 {
		st.YIntercept = saturatingSub(st.YIntercept, params.Remaining)
		st.Losses = new(big.Int).Add(cloneBigInt(st.Losses), params.Remaining)
	}
	if err := v.state.VaultStatePut(st); err != nil {
		return fmt.Errorf("vault: store state: %w", err)
	}
	if pos.Proxied {
		data, err := v.loadEpoch(pos.Epoch)
		if err != nil {
			return err
		}
		data.ExpectedProceeds = saturatingSub(data.ExpectedProceeds, pos.Proceeds)
		if err := v.state.VaultEpochPut(v.address, pos.Epoch, data); err != nil {
			return fmt.Errorf("vault: store epoch: %w", err)
		}
	}
	return v.dropPosition(params.LienID)
}

// HandleBuyoutLien removes a bought out lien from the vault's slope and epoch.
func (v *Vault) HandleBuyoutLien(params lien.BuyoutLienParams) error {
	st, err := v.load()
	if err != nil {
		return err
	}
	pos, held, err := v.loadPosition(params.LienID)
	if err != nil || !held {
		return err
	}
	v.accrue(st)
	st.Slope = saturatingSub(st.Slope, pos.Slope)
	if err := v.state.VaultStatePut(st); err != nil {
		return fmt.Errorf("vault: store state: %w", err)
	}
	if err := v.changeLienCount(pos.Epoch, -1); err != nil {
		return err
	}
	return v.dropPosition(params.LienID)
}
