package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lienledger/core/events"
	"lienledger/observability"
	"lienledger/observability/metrics"
	"lienledger/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	moduleName      = "lien"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeServerError    = -32000
)

type handlerFunc func(s *Server, r *http.Request, req *RPCRequest) (interface{}, *modules.ModuleError)

type method struct {
	handler handlerFunc
	scope   string
}

// Server dispatches JSON-RPC requests onto the lien module.
type Server struct {
	lien    *modules.LienModule
	bus     *events.Bus
	logger  *slog.Logger
	methods map[string]method
}

// NewServer builds a server over module. bus may be nil when the event stream
// is not served.
func NewServer(module *modules.LienModule, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{lien: module, bus: bus, logger: logger}
	s.methods = map[string]method{
		"lien_create":                  {handler: (*Server).handleLienCreate, scope: ScopeWrite},
		"lien_validate":                {handler: (*Server).handleLienValidate},
		"lien_getLien":                 {handler: (*Server).handleLienGet},
		"lien_getOwed":                 {handler: (*Server).handleLienGetOwed},
		"lien_getInterest":             {handler: (*Server).handleLienGetInterest},
		"lien_calculateSlope":          {handler: (*Server).handleLienCalculateSlope},
		"lien_getRemainingInterest":    {handler: (*Server).handleLienGetRemainingInterest},
		"lien_getMaxPotentialDebt":     {handler: (*Server).handleLienGetMaxPotentialDebt},
		"lien_getPayee":                {handler: (*Server).handleLienGetPayee},
		"lien_setPayee":                {handler: (*Server).handleLienSetPayee, scope: ScopeWrite},
		"lien_transfer":                {handler: (*Server).handleLienTransfer, scope: ScopeWrite},
		"lien_stopLiens":               {handler: (*Server).handleLienStopLiens, scope: ScopeWrite},
		"lien_makePayment":             {handler: (*Server).handleLienMakePayment, scope: ScopeWrite},
		"lien_payDebtViaClearingHouse": {handler: (*Server).handleLienPayDebtViaClearingHouse, scope: ScopeWrite},
		"lien_buyout":                  {handler: (*Server).handleLienBuyout, scope: ScopeWrite},
		"lien_getBuyout":               {handler: (*Server).handleLienGetBuyout},
		"lien_isValidRefinance":        {handler: (*Server).handleLienIsValidRefinance},
		"lien_getCollateralState":      {handler: (*Server).handleLienGetCollateralState},
		"lien_getAuctionData":          {handler: (*Server).handleLienGetAuctionData},
		"lien_file":                    {handler: (*Server).handleLienFile, scope: ScopeAdmin},
		"lien_params":                  {handler: (*Server).handleLienParams},
		"lien_listEvents":              {handler: (*Server).handleLienListEvents},
		"bank_balance":                 {handler: (*Server).handleBankBalance},
		"bank_mint":                    {handler: (*Server).handleBankMint, scope: ScopeAdmin},
		"vault_state":                  {handler: (*Server).handleVaultState},
	}
	return s
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "only POST is supported", nil)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	start := time.Now()
	status, rpcErr := s.dispatch(w, r, req)
	observability.ModuleMetrics().Observe(moduleName, req.Method, status, time.Since(start))
	if rpcErr != nil {
		s.logger.Debug("rpc request failed",
			slog.String("method", req.Method),
			slog.Int("code", rpcErr.Code),
			slog.String("error", rpcErr.Message))
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) (int, *RPCError) {
	m, ok := s.methods[strings.TrimSpace(req.Method)]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found: "+req.Method, nil)
		return http.StatusNotFound, &RPCError{Code: codeMethodNotFound, Message: "method not found"}
	}
	if m.scope != "" {
		if status, authErr := requireScope(r, m.scope); authErr != nil {
			writeError(w, status, req.ID, authErr.Code, authErr.Message, nil)
			return status, authErr
		}
	}
	result, modErr := m.handler(s, r, req)
	var opErr error
	if modErr != nil {
		opErr = modErr
	}
	metrics.Lien().ObserveOperation(req.Method, opErr)
	if modErr != nil {
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return modErr.HTTPStatus, &RPCError{Code: modErr.Code, Message: modErr.Message}
	}
	writeResult(w, req.ID, result)
	return http.StatusOK, nil
}

func requireScope(r *http.Request, scope string) (int, *RPCError) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return http.StatusUnauthorized, &RPCError{Code: codeUnauthorized, Message: "authenticated caller required"}
	}
	if !principal.HasScope(scope) {
		return http.StatusForbidden, &RPCError{Code: codeForbidden, Message: "missing scope " + scope}
	}
	return 0, nil
}
