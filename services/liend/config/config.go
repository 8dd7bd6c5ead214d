package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"lienledger/native/lien"
)

const (
	defaultListen   = ":8645"
	defaultDataPath = "data/liend"

	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"

	ArchivePostgres = "postgres"
	ArchiveSQLite   = "sqlite"
)

// Config captures the runtime settings for the lien ledger daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	TLS           TLSConfig       `yaml:"tls"`
	Storage       StorageConfig   `yaml:"storage"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	CORS          CORSConfig      `yaml:"cors"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Archive       ArchiveConfig   `yaml:"archive"`
	Ledger        LedgerConfig    `yaml:"ledger"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// StorageConfig selects the key-value backend holding ledger state.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuthConfig configures HMAC bearer token verification. The secret is read
// from the environment variable named by SecretEnv.
type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SecretEnv  string `yaml:"secret_env"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
	ScopeClaim string `yaml:"scope_claim"`
}

type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rps"`
	Burst         int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	LogRequests bool   `yaml:"log_requests"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// ArchiveConfig enables the SQL event archive. An empty driver disables it.
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LedgerConfig wires the ledger collaborators.
type LedgerConfig struct {
	ParamsFile     string            `yaml:"params_file"`
	ErrorReceiver  string            `yaml:"error_receiver"`
	Paused         bool              `yaml:"paused"`
	Grants         []GrantConfig     `yaml:"grants"`
	ClearingHouses map[string]string `yaml:"clearing_houses"`

	// DefaultClearingHouse settles collaterals without an explicit binding.
	DefaultClearingHouse string        `yaml:"default_clearing_house"`
	Vaults               []VaultConfig `yaml:"vaults"`
}

// GrantConfig gives an address a set of restricted capabilities.
type GrantConfig struct {
	Address      string   `yaml:"address"`
	Capabilities []string `yaml:"capabilities"`
}

// VaultConfig declares a pooled vault.
type VaultConfig struct {
	Address     string `yaml:"address"`
	Asset       string `yaml:"asset"`
	Start       uint64 `yaml:"start"`
	EpochLength uint64 `yaml:"epoch_length"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendLevelDB
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	if cfg.Storage.Path == "" && cfg.Storage.Backend != BackendMemory {
		cfg.Storage.Path = defaultDataPath
	}

	cfg.Auth.SecretEnv = strings.TrimSpace(cfg.Auth.SecretEnv)
	if cfg.Auth.ScopeClaim = strings.TrimSpace(cfg.Auth.ScopeClaim); cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}

	origins := make([]string, 0, len(cfg.CORS.AllowedOrigins))
	for _, origin := range cfg.CORS.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORS.AllowedOrigins = origins

	cfg.Archive.Driver = strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	cfg.Archive.DSN = strings.TrimSpace(cfg.Archive.DSN)
	cfg.Ledger.ParamsFile = strings.TrimSpace(cfg.Ledger.ParamsFile)
	cfg.Ledger.ErrorReceiver = strings.TrimSpace(cfg.Ledger.ErrorReceiver)
	cfg.Ledger.DefaultClearingHouse = strings.TrimSpace(cfg.Ledger.DefaultClearingHouse)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	hasCert := cfg.TLS.CertPath != ""
	if hasCert != (cfg.TLS.KeyPath != "") {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	switch cfg.Storage.Backend {
	case BackendLevelDB, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.Storage.Backend)
	}
	if cfg.Auth.Enabled && cfg.Auth.SecretEnv == "" {
		return fmt.Errorf("auth: secret_env is required when auth is enabled")
	}
	if !cfg.Auth.Enabled && cfg.Environment == "prod" {
		return fmt.Errorf("auth: bearer authentication is mandatory in prod")
	}
	if cfg.RateLimit.RatePerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	switch cfg.Archive.Driver {
	case "":
	case ArchivePostgres, ArchiveSQLite:
		if cfg.Archive.DSN == "" {
			return fmt.Errorf("archive: dsn is required for driver %s", cfg.Archive.Driver)
		}
	default:
		return fmt.Errorf("archive: unsupported driver %q", cfg.Archive.Driver)
	}
	return cfg.Ledger.validate()
}

func (cfg LedgerConfig) validate() error {
	if cfg.ErrorReceiver != "" && !common.IsHexAddress(cfg.ErrorReceiver) {
		return fmt.Errorf("ledger: invalid error_receiver %q", cfg.ErrorReceiver)
	}
	if cfg.DefaultClearingHouse != "" && !common.IsHexAddress(cfg.DefaultClearingHouse) {
		return fmt.Errorf("ledger: invalid default_clearing_house %q", cfg.DefaultClearingHouse)
	}
	for i, grant := range cfg.Grants {
		if !common.IsHexAddress(strings.TrimSpace(grant.Address)) {
			return fmt.Errorf("ledger: grants[%d]: invalid address %q", i, grant.Address)
		}
		if len(grant.Capabilities) == 0 {
			return fmt.Errorf("ledger: grants[%d]: no capabilities", i)
		}
		for _, name := range grant.Capabilities {
			if _, ok := lien.ParseCapability(name); !ok {
				return fmt.Errorf("ledger: grants[%d]: unknown capability %q", i, name)
			}
		}
	}
	for id, addr := range cfg.ClearingHouses {
		if _, ok := new(big.Int).SetString(strings.TrimSpace(id), 10); !ok {
			return fmt.Errorf("ledger: clearing_houses: invalid collateral id %q", id)
		}
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			return fmt.Errorf("ledger: clearing_houses[%s]: invalid address %q", id, addr)
		}
	}
	for i, v := range cfg.Vaults {
		if !common.IsHexAddress(strings.TrimSpace(v.Address)) || !common.IsHexAddress(strings.TrimSpace(v.Asset)) {
			return fmt.Errorf("ledger: vaults[%d]: address and asset are required", i)
		}
		if v.EpochLength == 0 {
			return fmt.Errorf("ledger: vaults[%d]: epoch_length must be positive", i)
		}
	}
	return nil
}

// Params loads the ledger params file, or the defaults when none is set.
func (cfg LedgerConfig) Params() (lien.Params, error) {
	if cfg.ParamsFile == "" {
		return lien.DefaultParams(), nil
	}
	return lien.LoadParams(cfg.ParamsFile)
}

// Authority builds the capability table from the configured grants.
func (cfg LedgerConfig) Authority() *lien.RoleAuthority {
	authority := lien.NewRoleAuthority()
	for _, grant := range cfg.Grants {
		caps := make([]lien.Capability, 0, len(grant.Capabilities))
		for _, name := range grant.Capabilities {
			if capability, ok := lien.ParseCapability(name); ok {
				caps = append(caps, capability)
			}
		}
		authority.Grant(common.HexToAddress(strings.TrimSpace(grant.Address)), caps...)
	}
	return authority
}

// ClearingHouses resolves collateral ids to their settlement address.
type ClearingHouses struct {
	byCollateral map[string]common.Address
	fallback     common.Address
}

// ClearingHouse implements lien.ClearingHouseResolver.
func (c *ClearingHouses) ClearingHouse(collateralID *big.Int) (common.Address, bool) {
	if c == nil || collateralID == nil {
		return common.Address{}, false
	}
	if addr, ok := c.byCollateral[collateralID.String()]; ok {
		return addr, true
	}
	if c.fallback != (common.Address{}) {
		return c.fallback, true
	}
	return common.Address{}, false
}

// ClearingHouseMap converts the configured bindings. Ids are normalised to
// their decimal form.
func (cfg LedgerConfig) ClearingHouseMap() *ClearingHouses {
	out := &ClearingHouses{byCollateral: make(map[string]common.Address, len(cfg.ClearingHouses))}
	for id, addr := range cfg.ClearingHouses {
		v, ok := new(big.Int).SetString(strings.TrimSpace(id), 10)
		if !ok {
			continue
		}
		out.byCollateral[v.String()] = common.HexToAddress(strings.TrimSpace(addr))
	}
	if cfg.DefaultClearingHouse != "" {
		out.fallback = common.HexToAddress(cfg.DefaultClearingHouse)
	}
	return out
}
