package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lienledger/native/lien"
	"lienledger/rpc"
)

func sampleTerms() rpc.TermsJSON {
	return rpc.TermsJSON{
		CollateralType:        1,
		Token:                 "0xd000000000000000000000000000000000000001",
		Vault:                 "0xb000000000000000000000000000000000000002",
		CollateralID:          "16",
		MaxAmount:             "1000",
		Rate:                  "100000000000000000",
		Duration:              604800,
		MaxPotentialDebt:      "1000000",
		LiquidationInitialAsk: "10",
	}
}

func writeJSONFile(t *testing.T, name string, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLienIDMatchesLedger(t *testing.T) {
	wire := sampleTerms()
	terms, err := wire.Terms()
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	want, err := lien.LienID(terms)
	if err != nil {
		t.Fatalf("lien id: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"lien-id", "-terms", writeJSONFile(t, "terms.json", wire)}, &stdout, &stderr, false)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != want.Hex() {
		t.Fatalf("expected %s, got %s", want.Hex(), got)
	}
}

func TestStackHashMatchesLedger(t *testing.T) {
	wire := rpc.StackJSON{
		Lien:  sampleTerms(),
		Point: rpc.PointJSON{LienID: "0x0000000000000000000000000000000000000000000000000000000000000001", Amount: "100", Last: 10, End: 20},
	}
	stack, err := wire.Stack()
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	want, err := lien.StackHash(stack)
	if err != nil {
		t.Fatalf("stack hash: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"stack-hash", "-stack", writeJSONFile(t, "stack.json", wire)}, &stdout, &stderr, false); code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != want.Hex() {
		t.Fatalf("expected %s, got %s", want.Hex(), got)
	}
}

func TestLienIDRejectsUnknownFields(t *testing.T) {
	path := writeJSONFile(t, "terms.json", map[string]interface{}{"token": "0x01", "colour": "red"})
	var stdout, stderr bytes.Buffer
	if code := run([]string{"lien-id", "-terms", path}, &stdout, &stderr, false); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
}

func TestCallSendsBearerAndParams(t *testing.T) {
	var (
		auth string
		seen map[string]interface{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"balance":"15"}}`))
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"call", "-rpc", server.URL, "-method", "bank_balance", "-token", "abc",
		"-params", `{"token":"0x01","address":"0x02"}`}, &stdout, &stderr, false)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if auth != "Bearer abc" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if seen["method"] != "bank_balance" {
		t.Fatalf("unexpected method %v", seen["method"])
	}
	params, ok := seen["params"].([]interface{})
	if !ok || len(params) != 1 {
		t.Fatalf("expected a single param, got %v", seen["params"])
	}
	if strings.TrimSpace(stdout.String()) != `{"balance":"15"}` {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestCallReportsRPCErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32031,"message":"INVALID_LIEN_ID"}}`))
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"call", "-rpc", server.URL, "-method", "lien_getLien"}, &stdout, &stderr, false); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stderr.String(), "INVALID_LIEN_ID") {
		t.Fatalf("expected error message, got %q", stderr.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"frobnicate"}, &stdout, &stderr, false); code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}
