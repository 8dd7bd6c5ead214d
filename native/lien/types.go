package lien

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Details carries the economic parameters of a lien. Amounts are denominated
// in base units of the lien token; Rate is a per-second WAD scaled fraction.
type Details struct {
	MaxAmount             *big.Int
	Rate                  *big.Int
	Duration              uint64
	MaxPotentialDebt      *big.Int
	LiquidationInitialAsk *big.Int
}

// Terms are the immutable attributes of a lien. The lien id is the keccak256
// digest of their RLP encoding so field order is part of the identity.
type Terms struct {
	CollateralType uint8
	Token          common.Address
	// Vault records the originating vault. It does not need to be a pooled
	// vault; private lenders use their own address.
	Vault        common.Address
	CollateralID *big.Int
	Details      Details
}

// Point is the mutable accrual state of a lien. Amount only decreases after
// creation; interest is computed on demand and never compounded.
type Point struct {
	LienID common.Hash
	Amount *big.Int
	Last   uint64
	End    uint64
}

// Stack pairs the terms and accrual point of a lien and is the unit callers
// present when asserting the state of a collateral.
type Stack struct {
	Lien  Terms
	Point Point
}

// Metadata is the per-lien mutable bookkeeping owned by the registry.
type Metadata struct {
	// Payee overrides the lien owner as the payment destination when set.
	Payee common.Address
	// AtLiquidation latches once the lien enters liquidation.
	AtLiquidation bool
}

// AuctionStack is the frozen view of a lien handed to the auction collaborator.
type AuctionStack struct {
	LienID     common.Hash
	End        uint64
	AmountOwed *big.Int
}

// AuctionData is the record produced when a collateral is routed to auction.
type AuctionData struct {
	Liquidator  common.Address
	Token       common.Address
	Stack       AuctionStack
	StartTime   uint64
	EndTime     uint64
	StartAmount *big.Int
	EndAmount   *big.Int
}

// CreateParams describes a new lien request.
type CreateParams struct {
	Terms    Terms
	Amount   *big.Int
	Receiver common.Address
	// Stack is the caller's view of the collateral's committed stack. Nil
	// asserts the collateral carries no active lien.
	Stack *Stack
}

// BuyoutParams describes the refinance of an existing lien into new terms.
type BuyoutParams struct {
	Stack    Stack
	NewTerms Terms
	Receiver common.Address
}

// Clone returns a deep copy of the details.
func (d Details) Clone() Details {
	return Details{
		MaxAmount:             cloneBigInt(d.MaxAmount),
		Rate:                  cloneBigInt(d.Rate),
		Duration:              d.Duration,
		MaxPotentialDebt:      cloneBigInt(d.MaxPotentialDebt),
		LiquidationInitialAsk: cloneBigInt(d.LiquidationInitialAsk),
	}
}

// Clone returns a deep copy of the terms.
func (t Terms) Clone() Terms {
	out := t
	out.CollateralID = cloneBigInt(t.CollateralID)
	out.Details = t.Details.Clone()
	return out
}

// Clone returns a deep copy of the point.
func (p Point) Clone() Point {
	out := p
	out.Amount = cloneBigInt(p.Amount)
	return out
}

// Clone returns a deep copy of the stack.
func (s *Stack) Clone() *Stack {
	if s == nil {
		return nil
	}
	return &Stack{Lien: s.Lien.Clone(), Point: s.Point.Clone()}
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}

// Clone returns a deep copy of the auction stack.
func (a AuctionStack) Clone() AuctionStack {
	out := a
	out.AmountOwed = cloneBigInt(a.AmountOwed)
	return out
}

// Equal reports whether two auction stacks describe the same frozen debt.
func (a AuctionStack) Equal(other AuctionStack) bool {
	return a.LienID == other.LienID && a.End == other.End &&
		cloneBigInt(a.AmountOwed).Cmp(cloneBigInt(other.AmountOwed)) == 0
}

// Clone returns a deep copy of the auction record.
func (a *AuctionData) Clone() *AuctionData {
	if a == nil {
		return nil
	}
	out := *a
	out.Stack = a.Stack.Clone()
	out.StartAmount = cloneBigInt(a.StartAmount)
	out.EndAmount = cloneBigInt(a.EndAmount)
	return &out
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
