package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/native/lien"
	"lienledger/rpc/modules"
)

type createLienParams struct {
	Terms    TermsJSON  `json:"terms"`
	Amount   string     `json:"amount"`
	Receiver string     `json:"receiver"`
	Stack    *StackJSON `json:"stack,omitempty"`
}

type createLienResult struct {
	LienID string     `json:"lienId"`
	Stack  *StackJSON `json:"stack"`
	Slope  string     `json:"slope,omitempty"`
}

type lienIDParams struct {
	LienID string `json:"lienId"`
}

type lienView struct {
	Stack         *StackJSON `json:"stack"`
	Owner         string     `json:"owner"`
	Payee         string     `json:"payee"`
	AtLiquidation bool       `json:"atLiquidation"`
}

type stackParams struct {
	Stack     StackJSON `json:"stack"`
	Timestamp uint64    `json:"timestamp,omitempty"`
}

type setPayeeParams struct {
	LienID string `json:"lienId"`
	Payee  string `json:"payee"`
}

type transferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	LienID string `json:"lienId"`
}

type stopLiensParams struct {
	CollateralID  string    `json:"collateralId"`
	AuctionWindow uint64    `json:"auctionWindow"`
	Stack         StackJSON `json:"stack"`
	Liquidator    string    `json:"liquidator"`
}

type makePaymentParams struct {
	CollateralID string    `json:"collateralId"`
	Stack        StackJSON `json:"stack"`
}

type clearingHouseParams struct {
	Token        string           `json:"token"`
	CollateralID string           `json:"collateralId"`
	Payment      string           `json:"payment"`
	AuctionStack AuctionStackJSON `json:"auctionStack"`
}

type buyoutParams struct {
	Stack    StackJSON `json:"stack"`
	NewTerms TermsJSON `json:"newTerms"`
	Receiver string    `json:"receiver"`
}

type collateralParams struct {
	CollateralID string `json:"collateralId"`
}

type fileParams struct {
	What    string   `json:"what"`
	Address string   `json:"address,omitempty"`
	Values  []string `json:"values,omitempty"`
}

type listEventsParams struct {
	Type         string `json:"type,omitempty"`
	LienID       string `json:"lienId,omitempty"`
	CollateralID string `json:"collateralId,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

type balanceParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
	Amount  string `json:"amount,omitempty"`
}

type vaultParams struct {
	Vault string `json:"vault"`
}

func invalidParams(format string, args ...interface{}) *modules.ModuleError {
	return &modules.ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func decodeParams(req *RPCRequest, out interface{}) *modules.ModuleError {
	if len(req.Params) != 1 {
		return invalidParams("expected a single parameter object")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("invalid parameter object: %v", err)
	}
	return nil
}

func callerOf(r *http.Request) common.Address {
	principal, _ := PrincipalFromContext(r.Context())
	return principal.Caller
}

func parseStack(raw StackJSON) (*lien.Stack, *modules.ModuleError) {
	stack, err := raw.Stack()
	if err != nil {
		return nil, invalidParams("stack: %v", err)
	}
	return stack, nil
}

func parseBig(field, raw string) (*big.Int, *modules.ModuleError) {
	v, err := ParseBigInt(field, raw)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return v, nil
}

func parseAddr(field, raw string, optional bool) (common.Address, *modules.ModuleError) {
	addr, err := ParseAddress(field, raw, optional)
	if err != nil {
		return common.Address{}, invalidParams("%v", err)
	}
	return addr, nil
}

func parseLienID(raw string) (common.Hash, *modules.ModuleError) {
	id, err := ParseHash("lienId", raw)
	if err != nil {
		return common.Hash{}, invalidParams("%v", err)
	}
	return id, nil
}

func (s *Server) handleLienCreate(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params createLienParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	terms, err := params.Terms.Terms()
	if err != nil {
		return nil, invalidParams("terms: %v", err)
	}
	amount, modErr := parseBig("amount", params.Amount)
	if modErr != nil {
		return nil, modErr
	}
	receiver, modErr := parseAddr("receiver", params.Receiver, false)
	if modErr != nil {
		return nil, modErr
	}
	create := lien.CreateParams{Terms: terms, Amount: amount, Receiver: receiver}
	if params.Stack != nil {
		if create.Stack, modErr = parseStack(*params.Stack); modErr != nil {
			return nil, modErr
		}
	}
	out, modErr := s.lien.CreateLien(callerOf(r), create)
	if modErr != nil {
		return nil, modErr
	}
	return createLienResult{LienID: out.LienID.Hex(), Stack: FormatStack(out.Stack), Slope: formatBig(out.Slope)}, nil
}

func (s *Server) handleLienValidate(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params TermsJSON
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	terms, err := params.Terms()
	if err != nil {
		return nil, invalidParams("terms: %v", err)
	}
	id, modErr := s.lien.ValidateLien(terms)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{"lienId": id.Hex()}, nil
}

func (s *Server) handleLienGet(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params lienIDParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, modErr := parseLienID(params.LienID)
	if modErr != nil {
		return nil, modErr
	}
	view, modErr := s.lien.GetLien(id)
	if modErr != nil {
		return nil, modErr
	}
	return lienView{
		Stack:         FormatStack(view.Stack),
		Owner:         view.Owner.Hex(),
		Payee:         view.Payee.Hex(),
		AtLiquidation: view.Metadata.AtLiquidation,
	}, nil
}

func (s *Server) handleLienGetPayee(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params lienIDParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, modErr := parseLienID(params.LienID)
	if modErr != nil {
		return nil, modErr
	}
	view, modErr := s.lien.GetLien(id)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{"payee": view.Payee.Hex()}, nil
}

func (s *Server) stackQuery(req *RPCRequest, key string, fn func(stack *lien.Stack, timestamp uint64) (*big.Int, *modules.ModuleError)) (interface{}, *modules.ModuleError) {
	var params stackParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	stack, modErr := parseStack(params.Stack)
	if modErr != nil {
		return nil, modErr
	}
	value, modErr := fn(stack, params.Timestamp)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{key: formatBig(value)}, nil
}

func (s *Server) handleLienGetOwed(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	return s.stackQuery(req, "owed", s.lien.GetOwed)
}

func (s *Server) handleLienGetInterest(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	return s.stackQuery(req, "interest", func(stack *lien.Stack, _ uint64) (*big.Int, *modules.ModuleError) {
		return s.lien.GetInterest(stack)
	})
}

func (s *Server) handleLienCalculateSlope(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	return s.stackQuery(req, "slope", func(stack *lien.Stack, _ uint64) (*big.Int, *modules.ModuleError) {
		return s.lien.CalculateSlope(stack)
	})
}

func (s *Server) handleLienGetRemainingInterest(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	return s.stackQuery(req, "remainingInterest", func(stack *lien.Stack, _ uint64) (*big.Int, *modules.ModuleError) {
		return s.lien.GetRemainingInterest(stack)
	})
}

func (s *Server) handleLienGetMaxPotentialDebt(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	return s.stackQuery(req, "maxPotentialDebt", func(stack *lien.Stack, _ uint64) (*big.Int, *modules.ModuleError) {
		return s.lien.GetMaxPotentialDebt(stack)
	})
}

func (s *Server) handleLienSetPayee(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params setPayeeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, modErr := parseLienID(params.LienID)
	if modErr != nil {
		return nil, modErr
	}
	payee, modErr := parseAddr("payee", params.Payee, true)
	if modErr != nil {
		return nil, modErr
	}
	if modErr := s.lien.SetPayee(callerOf(r), id, payee); modErr != nil {
		return nil, modErr
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleLienTransfer(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params transferParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, modErr := parseLienID(params.LienID)
	if modErr != nil {
		return nil, modErr
	}
	from, modErr := parseAddr("from", params.From, false)
	if modErr != nil {
		return nil, modErr
	}
	to, modErr := parseAddr("to", params.To, true)
	if modErr != nil {
		return nil, modErr
	}
	if modErr := s.lien.TransferLien(callerOf(r), from, to, id); modErr != nil {
		return nil, modErr
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleLienStopLiens(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params stopLiensParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	collateralID, modErr := parseBig("collateralId", params.CollateralID)
	if modErr != nil {
		return nil, modErr
	}
	stack, modErr := parseStack(params.Stack)
	if modErr != nil {
		return nil, modErr
	}
	liquidator, modErr := parseAddr("liquidator", params.Liquidator, false)
	if modErr != nil {
		return nil, modErr
	}
	auction, modErr := s.lien.StopLiens(callerOf(r), collateralID, params.AuctionWindow, *stack, liquidator)
	if modErr != nil {
		return nil, modErr
	}
	return FormatAuction(auction), nil
}

func (s *Server) handleLienMakePayment(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params makePaymentParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	collateralID, modErr := parseBig("collateralId", params.CollateralID)
	if modErr != nil {
		return nil, modErr
	}
	stack, modErr := parseStack(params.Stack)
	if modErr != nil {
		return nil, modErr
	}
	paid, modErr := s.lien.MakePayment(callerOf(r), collateralID, *stack)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{"paid": formatBig(paid)}, nil
}

func (s *Server) handleLienPayDebtViaClearingHouse(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params clearingHouseParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	token, modErr := parseAddr("token", params.Token, false)
	if modErr != nil {
		return nil, modErr
	}
	collateralID, modErr := parseBig("collateralId", params.CollateralID)
	if modErr != nil {
		return nil, modErr
	}
	payment, modErr := parseBig("payment", params.Payment)
	if modErr != nil {
		return nil, modErr
	}
	auctionStack, err := params.AuctionStack.AuctionStack()
	if err != nil {
		return nil, invalidParams("auctionStack: %v", err)
	}
	remaining, modErr := s.lien.PayDebtViaClearingHouse(callerOf(r), token, collateralID, payment, auctionStack)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{"remaining": formatBig(remaining)}, nil
}

func (s *Server) handleLienBuyout(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params buyoutParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	stack, modErr := parseStack(params.Stack)
	if modErr != nil {
		return nil, modErr
	}
	terms, err := params.NewTerms.Terms()
	if err != nil {
		return nil, invalidParams("newTerms: %v", err)
	}
	receiver, modErr := parseAddr("receiver", params.Receiver, false)
	if modErr != nil {
		return nil, modErr
	}
	out, modErr := s.lien.BuyoutLien(callerOf(r), lien.BuyoutParams{Stack: *stack, NewTerms: terms, Receiver: receiver})
	if modErr != nil {
		return nil, modErr
	}
	return createLienResult{LienID: out.LienID.Hex(), Stack: FormatStack(out.Stack)}, nil
}

func (s *Server) handleLienGetBuyout(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params stackParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	stack, modErr := parseStack(params.Stack)
	if modErr != nil {
		return nil, modErr
	}
	owed, price, modErr := s.lien.GetBuyout(stack)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{"owed": formatBig(owed), "buyout": formatBig(price)}, nil
}

func (s *Server) handleLienIsValidRefinance(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params buyoutParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	stack, modErr := parseStack(params.Stack)
	if modErr != nil {
		return nil, modErr
	}
	terms, err := params.NewTerms.Terms()
	if err != nil {
		return nil, invalidParams("newTerms: %v", err)
	}
	ok, modErr := s.lien.IsValidRefinance(terms, stack)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]bool{"valid": ok}, nil
}

func (s *Server) handleLienGetCollateralState(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params collateralParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	collateralID, modErr := parseBig("collateralId", params.CollateralID)
	if modErr != nil {
		return nil, modErr
	}
	hash, auction, modErr := s.lien.CollateralState(collateralID)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]interface{}{"stateHash": hash.Hex(), "auctionActive": auction}, nil
}

func (s *Server) handleLienGetAuctionData(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params collateralParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	collateralID, modErr := parseBig("collateralId", params.CollateralID)
	if modErr != nil {
		return nil, modErr
	}
	auction, modErr := s.lien.GetAuctionData(collateralID)
	if modErr != nil {
		return nil, modErr
	}
	return FormatAuction(auction), nil
}

// fileData encodes the request payload in the word layout the ledger expects.
// Address-valued settings take address, all others take values.
func fileData(what lien.FileType, params fileParams) ([]byte, *modules.ModuleError) {
	switch what {
	case lien.FileCollateralToken, lien.FileRouter:
		addr, modErr := parseAddr("address", params.Address, false)
		if modErr != nil {
			return nil, modErr
		}
		return lien.EncodeAddressWord(addr), nil
	}
	values := make([]*big.Int, 0, len(params.Values))
	for i, raw := range params.Values {
		v, modErr := parseBig(fmt.Sprintf("values[%d]", i), raw)
		if modErr != nil {
			return nil, modErr
		}
		values = append(values, v)
	}
	data, err := lien.EncodeWords(values...)
	if err != nil {
		return nil, invalidParams("values: %v", err)
	}
	return data, nil
}

func (s *Server) handleLienFile(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params fileParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	what, err := lien.ParseFileType(params.What)
	if err != nil {
		return nil, modules.WrapError(err)
	}
	data, modErr := fileData(what, params)
	if modErr != nil {
		return nil, modErr
	}
	if modErr := s.lien.File(callerOf(r), lien.FileRequest{What: what, Data: data}); modErr != nil {
		return nil, modErr
	}
	cfg, modErr := s.lien.Params()
	if modErr != nil {
		return nil, modErr
	}
	return FormatParams(cfg), nil
}

func (s *Server) handleLienParams(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	cfg, modErr := s.lien.Params()
	if modErr != nil {
		return nil, modErr
	}
	return FormatParams(cfg), nil
}

func (s *Server) handleLienListEvents(r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params listEventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
	}
	filter := modules.EventFilter{
		Type:         strings.TrimSpace(params.Type),
		LienID:       strings.TrimSpace(params.LienID),
		CollateralID: strings.TrimSpace(params.CollateralID),
		Limit:        params.Limit,
	}
	if filter.LienID != "" {
		id, modErr := parseLienID(filter.LienID)
		if modErr != nil {
			return nil, modErr
		}
		filter.LienID = id.Hex()
	}
	if filter.CollateralID != "" {
		id, modErr := parseBig("collateralId", filter.CollateralID)
		if modErr != nil {
			return nil, modErr
		}
		filter.CollateralID = id.String()
	}
	return s.lien.ListEvents(r.Context(), filter)
}

func (s *Server) handleBankBalance(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	token, modErr := parseAddr("token", params.Token, false)
	if modErr != nil {
		return nil, modErr
	}
	addr, modErr := parseAddr("address", params.Address, false)
	if modErr != nil {
		return nil, modErr
	}
	bal, modErr := s.lien.Balance(token, addr)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{"balance": formatBig(bal)}, nil
}

func (s *Server) handleBankMint(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	token, modErr := parseAddr("token", params.Token, false)
	if modErr != nil {
		return nil, modErr
	}
	addr, modErr := parseAddr("address", params.Address, false)
	if modErr != nil {
		return nil, modErr
	}
	amount, modErr := parseBig("amount", params.Amount)
	if modErr != nil {
		return nil, modErr
	}
	if modErr := s.lien.Mint(token, addr, amount); modErr != nil {
		return nil, modErr
	}
	bal, modErr := s.lien.Balance(token, addr)
	if modErr != nil {
		return nil, modErr
	}
	return map[string]string{"balance": formatBig(bal)}, nil
}

func (s *Server) handleVaultState(_ *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError) {
	var params vaultParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	addr, modErr := parseAddr("vault", params.Vault, false)
	if modErr != nil {
		return nil, modErr
	}
	st, assets, modErr := s.lien.VaultState(addr)
	if modErr != nil {
		return nil, modErr
	}
	return FormatVault(st, assets), nil
}
