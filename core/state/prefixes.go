package state

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

var (
	lienStackPrefix       = []byte("lien/stack/")
	lienMetaPrefix        = []byte("lien/meta/")
	lienOwnerPrefix       = []byte("lien/owner/")
	collateralStatePrefix = []byte("lien/collateral/state/")
	collateralCountPrefix = []byte("lien/collateral/count/")
	auctionPrefix         = []byte("lien/auction/")
	lienParamsKeyBytes    = []byte("lien/params")
	balancePrefix         = []byte("bank/balance/")
	vaultStatePrefix      = []byte("vault/state/")
	vaultEpochPrefix      = []byte("vault/epoch/")
	withdrawProxyPrefix   = []byte("vault/proxy/")
	vaultLienPrefix       = []byte("vault/lien/")
)

func prefixed(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func collateralBytes(collateralID *big.Int) []byte {
	if collateralID == nil {
		return common.Hash{}.Bytes()
	}
	return common.BigToHash(collateralID).Bytes()
}

// LienStackKey namespaces the registry record of a lien.
func LienStackKey(id common.Hash) []byte { return prefixed(lienStackPrefix, id.Bytes()) }

// LienMetaKey namespaces the payee and liquidation latch of a lien.
func LienMetaKey(id common.Hash) []byte { return prefixed(lienMetaPrefix, id.Bytes()) }

// LienOwnerKey namespaces the holder of a lien's repayment rights.
func LienOwnerKey(id common.Hash) []byte { return prefixed(lienOwnerPrefix, id.Bytes()) }

// CollateralStateKey namespaces the committed stack hash of a collateral.
func CollateralStateKey(collateralID *big.Int) []byte {
	return prefixed(collateralStatePrefix, collateralBytes(collateralID))
}

// CollateralCountKey namespaces the open lien count of a collateral.
func CollateralCountKey(collateralID *big.Int) []byte {
	return prefixed(collateralCountPrefix, collateralBytes(collateralID))
}

// AuctionKey namespaces the auction record of a collateral.
func AuctionKey(collateralID *big.Int) []byte {
	return prefixed(auctionPrefix, collateralBytes(collateralID))
}

// LienParamsKey is the location of the persisted ledger params.
func LienParamsKey() []byte { return append([]byte(nil), lienParamsKeyBytes...) }

// BalanceKey namespaces a token balance.
func BalanceKey(token, addr common.Address) []byte {
	return prefixed(balancePrefix, token.Bytes(), []byte{'/'}, addr.Bytes())
}

// VaultStateKey namespaces the accounting state of a pooled vault.
func VaultStateKey(vault common.Address) []byte { return prefixed(vaultStatePrefix, vault.Bytes()) }

// VaultEpochKey namespaces the bookkeeping of a single vault epoch.
func VaultEpochKey(vault common.Address, epoch uint64) []byte {
	return prefixed(vaultEpochPrefix, vault.Bytes(), []byte("/"+strconv.FormatUint(epoch, 10)))
}

// WithdrawProxyKey maps a withdraw proxy back to its vault.
func WithdrawProxyKey(proxy common.Address) []byte {
	return prefixed(withdrawProxyPrefix, proxy.Bytes())
}

// VaultLienKey namespaces a lien position held by a vault.
func VaultLienKey(vault common.Address, id common.Hash) []byte {
	return prefixed(vaultLienPrefix, vault.Bytes(), []byte{'/'}, id.Bytes())
}
