package lien

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transferer moves tokens between accounts. Failures on the payer side are
// returned; failures crediting the receiver are absorbed by redirecting the
// funds to an error receiver.
type Transferer interface {
	TokenTransferFromWithErrorReceiver(token, from, to common.Address, amount *big.Int) error
}

// NewLienParams is delivered to a pooled vault receiving a freshly minted lien.
type NewLienParams struct {
	LienID    common.Hash
	Amount    *big.Int
	LienSlope *big.Int
	LienEnd   uint64
}

// BeforePaymentParams is delivered to a pooled vault before a lien it owns is
// repaid and retired.
type BeforePaymentParams struct {
	LienID       common.Hash
	InterestOwed *big.Int
	Amount       *big.Int
	LienSlope    *big.Int
}

// AfterLiquidationParams carries the frozen debt of a liquidated lien.
type AfterLiquidationParams struct {
	LienID    common.Hash
	LienSlope *big.Int
	NewAmount *big.Int
	LienEnd   uint64
}

// LiquidationPaymentParams reports the shortfall left after auction proceeds
// settled a lien.
type LiquidationPaymentParams struct {
	LienID    common.Hash
	LienEnd   uint64
	Remaining *big.Int
}

// BuyoutLienParams is delivered to a pooled vault whose lien is bought out.
type BuyoutLienParams struct {
	LienID    common.Hash
	LienSlope *big.Int
	LienEnd   uint64
	Owed      *big.Int
}

// PublicVault observes every accrual-affecting event on the liens it owns or
// is paid for.
type PublicVault interface {
	AfterNewLien(params NewLienParams) error
	BeforePayment(params BeforePaymentParams) error
	LienEpoch(end uint64) uint64
	DecreaseEpochLienCount(epoch uint64) error
	// UpdateVaultAfterLiquidation returns a non-zero address when the payee
	// must be replaced, e.g. by the withdraw proxy of a closing epoch.
	UpdateVaultAfterLiquidation(auctionWindow uint64, params AfterLiquidationParams) (common.Address, error)
	UpdateAfterLiquidationPayment(params LiquidationPaymentParams) error
	HandleBuyoutLien(params BuyoutLienParams) error
}

// VaultRegistry resolves addresses recognised as pooled vaults.
type VaultRegistry interface {
	PublicVault(addr common.Address) (PublicVault, bool)
}

// ProxyRegistry is implemented by vault registries whose vaults route
// liquidation proceeds through withdraw proxies. Settlement uses it to find
// the vault behind a proxy payee.
type ProxyRegistry interface {
	VaultForProxy(proxy common.Address) (common.Address, bool, error)
}

// ClearingHouseResolver returns the settlement address bound to a collateral.
type ClearingHouseResolver interface {
	ClearingHouse(collateralID *big.Int) (common.Address, bool)
}
