package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"lienledger/core/events"
	"lienledger/rpc"
	"lienledger/rpc/modules"
	"lienledger/services/liend/config"
	"lienledger/services/liend/middleware"
	"lienledger/storage"
)

var (
	testVault = common.HexToAddress("0xf000000000000000000000000000000000000001")
	testToken = common.HexToAddress("0xd000000000000000000000000000000000000001")
	testAdmin = common.HexToAddress("0xa000000000000000000000000000000000000001")
)

func testLedgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		ErrorReceiver: "0xe000000000000000000000000000000000000001",
		Grants: []config.GrantConfig{{
			Address:      testAdmin.Hex(),
			Capabilities: []string{"file"},
		}},
		Vaults: []config.VaultConfig{{
			Address:     testVault.Hex(),
			Asset:       testToken.Hex(),
			Start:       1_700_000_000,
			EpochLength: 86_400,
		}},
	}
}

func TestBuildLedgerRegistersVaults(t *testing.T) {
	db := storage.NewMemDB()
	core, err := buildLedger(testLedgerConfig(), db, events.NewBus())
	require.NoError(t, err)

	_, ok := core.vaults.Vault(testVault)
	require.True(t, ok)
	st, found, err := core.state.VaultStateGet(testVault)
	require.NoError(t, err)
	require.True(t, found, "vault state must be committed")
	require.Equal(t, testToken, st.Asset)
	require.Zero(t, core.state.Pending())
	require.False(t, core.pauses.IsPaused(lienModuleName))
}

func TestBuildLedgerHonoursPauseSwitch(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.Paused = true
	core, err := buildLedger(cfg, storage.NewMemDB(), nil)
	require.NoError(t, err)
	require.True(t, core.pauses.IsPaused(lienModuleName))
}

func TestOpenStorageBackends(t *testing.T) {
	mem, err := openStorage(config.StorageConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	mem.Close()

	bolt, err := openStorage(config.StorageConfig{Backend: config.BackendBolt, Path: t.TempDir() + "/ledger.db"})
	require.NoError(t, err)
	bolt.Close()

	_, err = openStorage(config.StorageConfig{Backend: "rocks"})
	require.Error(t, err)
}

func TestRouterServesRPCAndHealth(t *testing.T) {
	bus := events.NewBus()
	core, err := buildLedger(testLedgerConfig(), storage.NewMemDB(), bus)
	require.NoError(t, err)
	server := rpc.NewServer(modules.NewLienModule(core.engine, core.bank, core.vaults, core.state), bus, nil)
	handler := newRouter(server, routerDeps{
		obs:    middleware.NewObservability(middleware.ObservabilityConfig{}, prometheus.NewRegistry(), nil),
		auth:   middleware.NewAuthenticator(middleware.AuthConfig{}, nil),
		limits: middleware.NewRateLimiter(middleware.RateLimit{}, nil),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "vault_state",
		"params":  []interface{}{map[string]string{"vault": testVault.Hex()}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set(middleware.DevCallerHeader, testAdmin.Hex())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result map[string]interface{} `json:"result"`
		Error  *rpc.RPCError          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	require.Equal(t, testToken.Hex(), resp.Result["asset"])
}
