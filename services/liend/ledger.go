package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lienledger/core/events"
	"lienledger/core/state"
	"lienledger/core/types"
	nativecommon "lienledger/native/common"
	"lienledger/native/bank"
	"lienledger/native/lien"
	"lienledger/native/vault"
	"lienledger/observability/logging"
	"lienledger/observability/metrics"
	"lienledger/services/liend/config"
	"lienledger/storage"
)

// lienModuleName is the pause switch guarding ledger mutations.
const lienModuleName = "lien"

// ledger bundles the collaborators behind the RPC module. Bank, vaults and
// engine share one state journal.
type ledger struct {
	state  *state.Manager
	bank   *bank.Ledger
	vaults *vault.Registry
	engine *lien.Engine
	pauses *nativecommon.Pauses
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt:
		return storage.NewBoltDB(cfg.Path)
	case config.BackendLevelDB:
		return storage.NewLevelDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func buildLedger(cfg config.LedgerConfig, db storage.Database, emitter events.Emitter) (*ledger, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, fmt.Errorf("load ledger params: %w", err)
	}
	mgr := state.NewManager(db)

	var receiver common.Address
	if cfg.ErrorReceiver != "" {
		receiver = common.HexToAddress(cfg.ErrorReceiver)
	}
	bankLedger := bank.NewLedger(mgr, receiver)

	vaults := vault.NewRegistry(mgr)
	for i, v := range cfg.Vaults {
		_, err := vaults.Register(vault.Config{
			Address:     common.HexToAddress(strings.TrimSpace(v.Address)),
			Asset:       common.HexToAddress(strings.TrimSpace(v.Asset)),
			Start:       v.Start,
			EpochLength: v.EpochLength,
		})
		if err != nil {
			mgr.Discard()
			return nil, fmt.Errorf("register vault %d: %w", i, err)
		}
	}
	if err := mgr.Commit(); err != nil {
		return nil, fmt.Errorf("persist vaults: %w", err)
	}

	pauses := nativecommon.NewPauses()
	pauses.Set(lienModuleName, cfg.Paused)

	engine := lien.NewEngine()
	engine.SetState(mgr)
	engine.SetTransferer(bankLedger)
	engine.SetVaultRegistry(vaults)
	engine.SetAuthority(cfg.Authority())
	engine.SetClearingHouseResolver(cfg.ClearingHouseMap())
	engine.SetPauses(pauses)
	engine.SetEmitter(emitter)
	if err := engine.SetDefaultParams(params); err != nil {
		return nil, fmt.Errorf("ledger params: %w", err)
	}

	return &ledger{state: mgr, bank: bankLedger, vaults: vaults, engine: engine, pauses: pauses}, nil
}

// subscribeEventLog logs and counts every committed ledger event.
func subscribeEventLog(bus *events.Bus, logger *slog.Logger) func() {
	return bus.Subscribe("lien.*", func(evt *types.Event) {
		metrics.Lien().ObserveEvent(evt)
		logger.Info("ledger event", append([]any{slog.String("type", evt.Type)}, logging.MaskAttributes(evt.Attributes)...)...)
	})
}
