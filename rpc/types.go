package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/native/lien"
	"lienledger/native/vault"
)

// TermsJSON is the wire form of lien.Terms. Integers are decimal or
// 0x-prefixed hexadecimal strings.
type TermsJSON struct {
	CollateralType        uint8  `json:"collateralType"`
	Token                 string `json:"token"`
	Vault                 string `json:"vault,omitempty"`
	CollateralID          string `json:"collateralId"`
	MaxAmount             string `json:"maxAmount"`
	Rate                  string `json:"rate"`
	Duration              uint64 `json:"duration"`
	MaxPotentialDebt      string `json:"maxPotentialDebt"`
	LiquidationInitialAsk string `json:"liquidationInitialAsk"`
}

// PointJSON is the wire form of lien.Point.
type PointJSON struct {
	LienID string `json:"lienId"`
	Amount string `json:"amount"`
	Last   uint64 `json:"last"`
	End    uint64 `json:"end"`
}

// StackJSON is the wire form of lien.Stack.
type StackJSON struct {
	Lien  TermsJSON `json:"lien"`
	Point PointJSON `json:"point"`
}

// AuctionStackJSON is the wire form of lien.AuctionStack.
type AuctionStackJSON struct {
	LienID     string `json:"lienId"`
	End        uint64 `json:"end"`
	AmountOwed string `json:"amountOwed"`
}

// AuctionJSON is the wire form of lien.AuctionData.
type AuctionJSON struct {
	Liquidator  string           `json:"liquidator"`
	Token       string           `json:"token"`
	Stack       AuctionStackJSON `json:"stack"`
	StartTime   uint64           `json:"startTime"`
	EndTime     uint64           `json:"endTime"`
	StartAmount string           `json:"startAmount"`
	EndAmount   string           `json:"endAmount"`
}

// ParamsJSON is the wire form of lien.Params.
type ParamsJSON struct {
	CollateralToken           string `json:"collateralToken"`
	Router                    string `json:"router"`
	MaxLiens                  uint8  `json:"maxLiens"`
	BuyoutFeeNumerator        uint32 `json:"buyoutFeeNumerator"`
	BuyoutFeeDenominator      uint32 `json:"buyoutFeeDenominator"`
	DurationFeeCapNumerator   uint32 `json:"durationFeeCapNumerator"`
	DurationFeeCapDenominator uint32 `json:"durationFeeCapDenominator"`
	MinInterestBPS            uint32 `json:"minInterestBPS"`
	MinDurationIncrease       uint32 `json:"minDurationIncrease"`
	MinLoanDuration           uint32 `json:"minLoanDuration"`
	AuctionFloor              string `json:"auctionFloor"`
}

// VaultJSON summarises a pooled vault.
type VaultJSON struct {
	Address     string `json:"address"`
	Asset       string `json:"asset"`
	Start       uint64 `json:"start"`
	EpochLength uint64 `json:"epochLength"`
	Slope       string `json:"slope"`
	YIntercept  string `json:"yIntercept"`
	Last        uint64 `json:"last"`
	Losses      string `json:"losses"`
	TotalAssets string `json:"totalAssets"`
}

// ParseBigInt accepts decimal or 0x-prefixed hexadecimal integers. Empty input
// yields zero.
func ParseBigInt(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	base := 10
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "0x") {
		base = 16
		trimmed = lower[2:]
	}
	v, ok := new(big.Int).SetString(trimmed, base)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", field, raw)
	}
	return v, nil
}

// ParseAddress requires a 20 byte hex address. Empty input is allowed only
// when optional is set and yields the zero address.
func ParseAddress(field, raw string, optional bool) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if optional {
			return common.Address{}, nil
		}
		return common.Address{}, fmt.Errorf("%s required", field)
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// ParseHash requires a 32 byte hex hash.
func ParseHash(field, raw string) (common.Hash, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != 2+2*common.HashLength || !strings.HasPrefix(strings.ToLower(trimmed), "0x") {
		return common.Hash{}, fmt.Errorf("%s: invalid hash %q", field, raw)
	}
	return common.HexToHash(trimmed), nil
}

// Terms converts the wire form into ledger terms.
func (t TermsJSON) Terms() (lien.Terms, error) {
	var (
		out lien.Terms
		err error
	)
	out.CollateralType = t.CollateralType
	if out.Token, err = ParseAddress("token", t.Token, false); err != nil {
		return lien.Terms{}, err
	}
	if out.Vault, err = ParseAddress("vault", t.Vault, true); err != nil {
		return lien.Terms{}, err
	}
	if out.CollateralID, err = ParseBigInt("collateralId", t.CollateralID); err != nil {
		return lien.Terms{}, err
	}
	if out.Details.MaxAmount, err = ParseBigInt("maxAmount", t.MaxAmount); err != nil {
		return lien.Terms{}, err
	}
	if out.Details.Rate, err = ParseBigInt("rate", t.Rate); err != nil {
		return lien.Terms{}, err
	}
	out.Details.Duration = t.Duration
	if out.Details.MaxPotentialDebt, err = ParseBigInt("maxPotentialDebt", t.MaxPotentialDebt); err != nil {
		return lien.Terms{}, err
	}
	if out.Details.LiquidationInitialAsk, err = ParseBigInt("liquidationInitialAsk", t.LiquidationInitialAsk); err != nil {
		return lien.Terms{}, err
	}
	return out, nil
}

// Stack converts the wire form into a ledger stack.
func (s StackJSON) Stack() (*lien.Stack, error) {
	terms, err := s.Lien.Terms()
	if err != nil {
		return nil, err
	}
	id, err := ParseHash("point.lienId", s.Point.LienID)
	if err != nil {
		return nil, err
	}
	amount, err := ParseBigInt("point.amount", s.Point.Amount)
	if err != nil {
		return nil, err
	}
	return &lien.Stack{
		Lien:  terms,
		Point: lien.Point{LienID: id, Amount: amount, Last: s.Point.Last, End: s.Point.End},
	}, nil
}

// AuctionStack converts the wire form into the ledger auction stack.
func (a AuctionStackJSON) AuctionStack() (lien.AuctionStack, error) {
	id, err := ParseHash("lienId", a.LienID)
	if err != nil {
		return lien.AuctionStack{}, err
	}
	owed, err := ParseBigInt("amountOwed", a.AmountOwed)
	if err != nil {
		return lien.AuctionStack{}, err
	}
	return lien.AuctionStack{LienID: id, End: a.End, AmountOwed: owed}, nil
}

// FormatTerms renders terms for RPC consumers.
func FormatTerms(t lien.Terms) TermsJSON {
	return TermsJSON{
		CollateralType:        t.CollateralType,
		Token:                 t.Token.Hex(),
		Vault:                 t.Vault.Hex(),
		CollateralID:          formatBig(t.CollateralID),
		MaxAmount:             formatBig(t.Details.MaxAmount),
		Rate:                  formatBig(t.Details.Rate),
		Duration:              t.Details.Duration,
		MaxPotentialDebt:      formatBig(t.Details.MaxPotentialDebt),
		LiquidationInitialAsk: formatBig(t.Details.LiquidationInitialAsk),
	}
}

// FormatStack renders a stack for RPC consumers.
func FormatStack(s *lien.Stack) *StackJSON {
	if s == nil {
		return nil
	}
	return &StackJSON{
		Lien: FormatTerms(s.Lien),
		Point: PointJSON{
			LienID: s.Point.LienID.Hex(),
			Amount: formatBig(s.Point.Amount),
			Last:   s.Point.Last,
			End:    s.Point.End,
		},
	}
}

// FormatAuction renders an auction record for RPC consumers.
func FormatAuction(a *lien.AuctionData) *AuctionJSON {
	if a == nil {
		return nil
	}
	return &AuctionJSON{
		Liquidator: a.Liquidator.Hex(),
		Token:      a.Token.Hex(),
		Stack: AuctionStackJSON{
			LienID:     a.Stack.LienID.Hex(),
			End:        a.Stack.End,
			AmountOwed: formatBig(a.Stack.AmountOwed),
		},
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		StartAmount: formatBig(a.StartAmount),
		EndAmount:   formatBig(a.EndAmount),
	}
}

// FormatParams renders the ledger configuration.
func FormatParams(p lien.Params) ParamsJSON {
	return ParamsJSON{
		CollateralToken:           p.CollateralToken.Hex(),
		Router:                    p.Router.Hex(),
		MaxLiens:                  p.MaxLiens,
		BuyoutFeeNumerator:        p.BuyoutFeeNumerator,
		BuyoutFeeDenominator:      p.BuyoutFeeDenominator,
		DurationFeeCapNumerator:   p.DurationFeeCapNumerator,
		DurationFeeCapDenominator: p.DurationFeeCapDenominator,
		MinInterestBPS:            p.MinInterestBPS,
		MinDurationIncrease:       p.MinDurationIncrease,
		MinLoanDuration:           p.MinLoanDuration,
		AuctionFloor:              formatBig(p.AuctionFloor),
	}
}

// FormatVault renders a vault's accounting with its projected assets.
func FormatVault(st *vault.State, totalAssets *big.Int) VaultJSON {
	return VaultJSON{
		Address:     st.Address.Hex(),
		Asset:       st.Asset.Hex(),
		Start:       st.Start,
		EpochLength: st.EpochLength,
		Slope:       formatBig(st.Slope),
		YIntercept:  formatBig(st.YIntercept),
		Last:        st.Last,
		Losses:      formatBig(st.Losses),
		TotalAssets: formatBig(totalAssets),
	}
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
