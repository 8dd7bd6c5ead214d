package lien

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/core/types"
)

const (
	EventTypeLienCreated      = "lien.created"
	EventTypeLienPayment      = "lien.payment"
	EventTypeLienPayeeChanged = "lien.payee_changed"
	EventTypeLienFileUpdated  = "lien.file_updated"
	EventTypeLienLiquidated   = "lien.liquidated"
	EventTypeLienTransferred  = "lien.transferred"
	EventTypeLienBuyout       = "lien.buyout"
)

type lienEvent struct {
	evt *types.Event
}

func (e lienEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event exposes the broadcast payload.
func (e lienEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent describes a freshly minted lien.
func NewCreatedEvent(stack *Stack, owner common.Address, stackHash common.Hash) *types.Event {
	attrs := stackAttributes(stack)
	attrs["owner"] = owner.Hex()
	attrs["stackHash"] = stackHash.Hex()
	return &types.Event{Type: EventTypeLienCreated, Attributes: attrs}
}

// NewPaymentEvent describes a repayment. The remaining attribute is only set
// for auction settlements.
func NewPaymentEvent(lienID common.Hash, collateralID *big.Int, payer, payee common.Address, amount, remaining *big.Int) *types.Event {
	attrs := map[string]string{
		"lienId":       lienID.Hex(),
		"collateralId": formatAmount(collateralID),
		"payer":        payer.Hex(),
		"payee":        payee.Hex(),
		"amount":       formatAmount(amount),
	}
	if remaining != nil {
		attrs["remaining"] = remaining.String()
	}
	return &types.Event{Type: EventTypeLienPayment, Attributes: attrs}
}

// NewPayeeChangedEvent describes a payee override.
func NewPayeeChangedEvent(lienID common.Hash, payee common.Address) *types.Event {
	return &types.Event{Type: EventTypeLienPayeeChanged, Attributes: map[string]string{
		"lienId": lienID.Hex(),
		"payee":  payee.Hex(),
	}}
}

// NewFileUpdatedEvent carries the configuration kind and its raw payload.
func NewFileUpdatedEvent(what FileType, data []byte) *types.Event {
	return &types.Event{Type: EventTypeLienFileUpdated, Attributes: map[string]string{
		"what": what.String(),
		"data": "0x" + hex.EncodeToString(data),
	}}
}

// NewLiquidatedEvent describes the auction record produced for a collateral.
func NewLiquidatedEvent(collateralID *big.Int, auction *AuctionData) *types.Event {
	attrs := map[string]string{
		"collateralId": formatAmount(collateralID),
	}
	if auction != nil {
		attrs["lienId"] = auction.Stack.LienID.Hex()
		attrs["liquidator"] = auction.Liquidator.Hex()
		attrs["token"] = auction.Token.Hex()
		attrs["amountOwed"] = formatAmount(auction.Stack.AmountOwed)
		attrs["lienEnd"] = strconv.FormatUint(auction.Stack.End, 10)
		attrs["startTime"] = strconv.FormatUint(auction.StartTime, 10)
		attrs["endTime"] = strconv.FormatUint(auction.EndTime, 10)
		attrs["startAmount"] = formatAmount(auction.StartAmount)
		attrs["endAmount"] = formatAmount(auction.EndAmount)
	}
	return &types.Event{Type: EventTypeLienLiquidated, Attributes: attrs}
}

// NewTransferredEvent describes an ownership transfer.
func NewTransferredEvent(lienID common.Hash, from, to common.Address) *types.Event {
	return &types.Event{Type: EventTypeLienTransferred, Attributes: map[string]string{
		"lienId": lienID.Hex(),
		"from":   from.Hex(),
		"to":     to.Hex(),
	}}
}

// NewBuyoutEvent links a bought out lien to its replacement.
func NewBuyoutEvent(oldID, newID common.Hash, buyer common.Address, owed, buyout *big.Int) *types.Event {
	return &types.Event{Type: EventTypeLienBuyout, Attributes: map[string]string{
		"lienId":    oldID.Hex(),
		"newLienId": newID.Hex(),
		"buyer":     buyer.Hex(),
		"owed":      formatAmount(owed),
		"buyout":    formatAmount(buyout),
	}}
}

func stackAttributes(stack *Stack) map[string]string {
	attrs := make(map[string]string)
	if stack == nil {
		return attrs
	}
	attrs["lienId"] = stack.Point.LienID.Hex()
	attrs["collateralId"] = formatAmount(stack.Lien.CollateralID)
	attrs["collateralType"] = strconv.FormatUint(uint64(stack.Lien.CollateralType), 10)
	attrs["token"] = stack.Lien.Token.Hex()
	attrs["vault"] = stack.Lien.Vault.Hex()
	attrs["amount"] = formatAmount(stack.Point.Amount)
	attrs["rate"] = formatAmount(stack.Lien.Details.Rate)
	attrs["last"] = strconv.FormatUint(stack.Point.Last, 10)
	attrs["end"] = strconv.FormatUint(stack.Point.End, 10)
	return attrs
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
