package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"nhooyr.io/websocket"

	"lienledger/core/events"
	"lienledger/core/state"
	"lienledger/core/types"
	"lienledger/native/bank"
	"lienledger/native/lien"
	"lienledger/native/vault"
	"lienledger/rpc/modules"
	"lienledger/storage"
)

var (
	testAdmin    = common.HexToAddress("0xa000000000000000000000000000000000000001")
	testRouter   = common.HexToAddress("0xa000000000000000000000000000000000000002")
	testBorrower = common.HexToAddress("0xb000000000000000000000000000000000000001")
	testLender   = common.HexToAddress("0xb000000000000000000000000000000000000002")
	testStranger = common.HexToAddress("0xb000000000000000000000000000000000000003")
	testToken    = common.HexToAddress("0xd000000000000000000000000000000000000001")
	testVault    = common.HexToAddress("0xf000000000000000000000000000000000000001")
)

const testStart = int64(1_700_000_000)

type testEnv struct {
	server *Server
	bus    *events.Bus
	state  *state.Manager
	vaults *vault.Registry
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	env := &testEnv{bus: events.NewBus(), state: mgr, now: testStart}
	clock := func() int64 { return env.now }

	authority := lien.NewRoleAuthority()
	authority.Grant(testAdmin, lien.CapFile)
	authority.Grant(testRouter, lien.CapCreate, lien.CapLiquidate, lien.CapBuyout, lien.CapSetPayee)

	ledger := bank.NewLedger(mgr, common.HexToAddress("0xe000000000000000000000000000000000000001"))
	vaults := vault.NewRegistry(mgr)
	vaults.SetNowFunc(clock)
	env.vaults = vaults

	engine := lien.NewEngine()
	engine.SetState(mgr)
	engine.SetTransferer(ledger)
	engine.SetVaultRegistry(vaults)
	engine.SetAuthority(authority)
	engine.SetEmitter(env.bus)
	engine.SetNowFunc(clock)

	env.server = NewServer(modules.NewLienModule(engine, ledger, vaults, mgr), env.bus, nil)
	return env
}

type testResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (env *testEnv) call(t *testing.T, principal *Principal, method string, params interface{}) (int, testResponse) {
	t.Helper()
	payload := map[string]interface{}{"jsonrpc": jsonRPCVersion, "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if principal != nil {
		req = req.WithContext(WithPrincipal(req.Context(), *principal))
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	var resp testResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return rec.Code, resp
}

func (env *testEnv) mustCall(t *testing.T, principal *Principal, method string, params interface{}, out interface{}) {
	t.Helper()
	status, resp := env.call(t, principal, method, params)
	if resp.Error != nil {
		t.Fatalf("%s failed with %d: %+v", method, status, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			t.Fatalf("decode %s result: %v", method, err)
		}
	}
}

func writer(addr common.Address) *Principal {
	return &Principal{Caller: addr, Scopes: []string{ScopeWrite}}
}

func administrator(addr common.Address) *Principal {
	return &Principal{Caller: addr, Scopes: []string{ScopeWrite, ScopeAdmin}}
}

func testTermsJSON(collateral string) TermsJSON {
	return TermsJSON{
		CollateralType:        1,
		Token:                 testToken.Hex(),
		Vault:                 testLender.Hex(),
		CollateralID:          collateral,
		MaxAmount:             "1000",
		Rate:                  "100000000000000000",
		Duration:              7 * 24 * 60 * 60,
		MaxPotentialDebt:      "1000000",
		LiquidationInitialAsk: "10",
	}
}

func TestLienLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	var minted map[string]string
	env.mustCall(t, administrator(testAdmin), "bank_mint", balanceParams{
		Token: testToken.Hex(), Address: testBorrower.Hex(), Amount: "100",
	}, &minted)
	if minted["balance"] != "100" {
		t.Fatalf("unexpected mint result %v", minted)
	}

	terms := testTermsJSON("1")
	var created createLienResult
	env.mustCall(t, writer(testRouter), "lien_create", createLienParams{
		Terms: terms, Amount: "10", Receiver: testLender.Hex(),
	}, &created)
	ledgerTerms, err := terms.Terms()
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	wantID, _ := lien.LienID(ledgerTerms)
	if created.LienID != wantID.Hex() || created.Slope != "1" {
		t.Fatalf("unexpected create result %+v", created)
	}

	var owed map[string]string
	env.mustCall(t, nil, "lien_getOwed", stackParams{Stack: *created.Stack, Timestamp: uint64(testStart + 5)}, &owed)
	if owed["owed"] != "15" {
		t.Fatalf("expected 15 owed, got %v", owed)
	}

	var view lienView
	env.mustCall(t, nil, "lien_getLien", lienIDParams{LienID: created.LienID}, &view)
	if view.Owner != testLender.Hex() || view.Payee != testLender.Hex() || view.AtLiquidation {
		t.Fatalf("unexpected lien view %+v", view)
	}

	env.now += 5
	var paid map[string]string
	env.mustCall(t, writer(testBorrower), "lien_makePayment", makePaymentParams{
		CollateralID: "1", Stack: *created.Stack,
	}, &paid)
	if paid["paid"] != "15" {
		t.Fatalf("expected 15 paid, got %v", paid)
	}

	var bal map[string]string
	env.mustCall(t, nil, "bank_balance", balanceParams{Token: testToken.Hex(), Address: testLender.Hex()}, &bal)
	if bal["balance"] != "15" {
		t.Fatalf("expected lender balance 15, got %v", bal)
	}

	var collateral map[string]interface{}
	env.mustCall(t, nil, "lien_getCollateralState", collateralParams{CollateralID: "1"}, &collateral)
	if collateral["stateHash"] != (common.Hash{}).Hex() || collateral["auctionActive"] != false {
		t.Fatalf("expected cleared collateral, got %v", collateral)
	}

	status, resp := env.call(t, nil, "lien_getLien", lienIDParams{LienID: created.LienID})
	if resp.Error == nil || resp.Error.Code != modules.CodeInvalidState || status != http.StatusConflict {
		t.Fatalf("expected invalid state for retired lien, got %d %+v", status, resp.Error)
	}
}

func TestWritesRequireScopedPrincipal(t *testing.T) {
	env := newTestEnv(t)
	params := createLienParams{Terms: testTermsJSON("1"), Amount: "10", Receiver: testLender.Hex()}

	status, resp := env.call(t, nil, "lien_create", params)
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %d %+v", status, resp.Error)
	}
	status, resp = env.call(t, &Principal{Caller: testRouter}, "lien_create", params)
	if status != http.StatusForbidden || resp.Error == nil || resp.Error.Code != codeForbidden {
		t.Fatalf("expected missing scope, got %d %+v", status, resp.Error)
	}
	status, resp = env.call(t, writer(testAdmin), "bank_mint", balanceParams{
		Token: testToken.Hex(), Address: testBorrower.Hex(), Amount: "1",
	})
	if status != http.StatusForbidden || resp.Error == nil {
		t.Fatalf("expected mint to require admin scope, got %d %+v", status, resp.Error)
	}
}

func TestLedgerErrorsCarryKind(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, writer(testStranger), "lien_create", createLienParams{
		Terms: testTermsJSON("1"), Amount: "10", Receiver: testLender.Hex(),
	})
	if status != http.StatusForbidden || resp.Error == nil || resp.Error.Code != modules.CodeUnauthorized {
		t.Fatalf("expected ledger unauthorized, got %d %+v", status, resp.Error)
	}
	data, ok := resp.Error.Data.(map[string]interface{})
	if !ok || data["kind"] != "unauthorized" {
		t.Fatalf("expected kind in error data, got %#v", resp.Error.Data)
	}

	status, resp = env.call(t, writer(testRouter), "lien_create", createLienParams{
		Terms: testTermsJSON("1"), Amount: "0", Receiver: testLender.Hex(),
	})
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != modules.CodeInvalidInput {
		t.Fatalf("expected invalid input, got %d %+v", status, resp.Error)
	}
}

func TestMalformedRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "-32700") {
		t.Fatalf("expected parse error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected method not allowed, got %d", rec.Code)
	}

	status, resp := env.call(t, nil, "lien_unknown", nil)
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %d %+v", status, resp.Error)
	}

	status, resp = env.call(t, nil, "lien_getLien", lienIDParams{LienID: "0x1234"})
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %d %+v", status, resp.Error)
	}

	status, resp = env.call(t, nil, "lien_getLien", map[string]string{"lienId": "0x00", "extra": "1"})
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected unknown fields to be rejected, got %d %+v", status, resp.Error)
	}
}

func TestFileOverRPC(t *testing.T) {
	env := newTestEnv(t)
	var cfg ParamsJSON
	env.mustCall(t, administrator(testAdmin), "lien_file", fileParams{What: "MaxLiens", Values: []string{"3"}}, &cfg)
	if cfg.MaxLiens != 3 {
		t.Fatalf("expected max liens 3, got %+v", cfg)
	}
	env.mustCall(t, administrator(testAdmin), "lien_file", fileParams{What: "router", Address: testRouter.Hex()}, &cfg)
	if cfg.Router != testRouter.Hex() {
		t.Fatalf("expected router %s, got %s", testRouter.Hex(), cfg.Router)
	}

	status, resp := env.call(t, administrator(testStranger), "lien_file", fileParams{What: "MaxLiens", Values: []string{"1"}})
	if status != http.StatusForbidden || resp.Error == nil || resp.Error.Code != modules.CodeUnauthorized {
		t.Fatalf("expected ledger to reject stranger, got %d %+v", status, resp.Error)
	}
	status, resp = env.call(t, administrator(testAdmin), "lien_file", fileParams{What: "Nonsense"})
	if status != http.StatusBadRequest || resp.Error == nil {
		t.Fatalf("expected unsupported file, got %d %+v", status, resp.Error)
	}
}

func TestVaultStateOverRPC(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, nil, "vault_state", vaultParams{Vault: testVault.Hex()})
	if status != http.StatusNotFound || resp.Error == nil {
		t.Fatalf("expected unknown vault, got %d %+v", status, resp.Error)
	}

	if _, err := env.vaults.Register(vault.Config{
		Address: testVault, Asset: testToken, EpochLength: 3600,
	}); err != nil {
		t.Fatalf("register vault: %v", err)
	}
	if err := env.state.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	var out VaultJSON
	env.mustCall(t, nil, "vault_state", vaultParams{Vault: testVault.Hex()}, &out)
	if out.Address != testVault.Hex() || out.Start != uint64(testStart) || out.TotalAssets != "0" {
		t.Fatalf("unexpected vault state %+v", out)
	}
}

func TestListEventsWithoutArchive(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, nil, "lien_listEvents", listEventsParams{})
	if status != http.StatusServiceUnavailable || resp.Error == nil {
		t.Fatalf("expected archive unavailable, got %d %+v", status, resp.Error)
	}
}

type fakeArchive struct {
	filter modules.EventFilter
}

func (a *fakeArchive) ListEvents(_ context.Context, filter modules.EventFilter) ([]modules.EventRecord, error) {
	a.filter = filter
	return []modules.EventRecord{{Sequence: 1, Type: lien.EventTypeLienCreated}}, nil
}

func TestListEventsNormalisesFilter(t *testing.T) {
	env := newTestEnv(t)
	archive := &fakeArchive{}
	env.server.lien.SetEventSource(archive)

	var records []modules.EventRecord
	env.mustCall(t, nil, "lien_listEvents", listEventsParams{CollateralID: "0x10", Limit: 10_000}, &records)
	if len(records) != 1 || records[0].Type != lien.EventTypeLienCreated {
		t.Fatalf("unexpected records %+v", records)
	}
	if archive.filter.CollateralID != "16" || archive.filter.Limit != 100 {
		t.Fatalf("unexpected filter %+v", archive.filter)
	}
}

type streamEvent struct {
	payload *types.Event
}

func (e streamEvent) EventType() string { return e.payload.Type }
func (e streamEvent) Event() *types.Event { return e.payload }

func TestEventStreamFiltersByTopic(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.EventsHandler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"?topic=lien.payment", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The subscription is registered after the handshake, so keep emitting
	// until the first message arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				env.bus.Emit(streamEvent{payload: &types.Event{Type: lien.EventTypeLienCreated, Attributes: map[string]string{}}})
				env.bus.Emit(streamEvent{payload: &types.Event{Type: lien.EventTypeLienPayment, Attributes: map[string]string{"amount": "15"}}})
			}
		}
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != lien.EventTypeLienPayment || msg.Attributes["amount"] != "15" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestParseBigIntAcceptsHex(t *testing.T) {
	v, err := ParseBigInt("x", "0xFF")
	if err != nil || v.Cmp(big.NewInt(255)) != 0 {
		t.Fatalf("expected 255, got %v %v", v, err)
	}
	if _, err := ParseBigInt("x", "12a"); err == nil {
		t.Fatalf("expected invalid integer")
	}
	if _, err := ParseAddress("owner", "", false); err == nil {
		t.Fatalf("expected required address error")
	}
}
