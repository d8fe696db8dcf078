package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/Iwinswap/iwinswap-registry-sync/pkg/chains"
)

// Environment variables that override values from the configuration file.
const (
	EnvChain          = "CHAIN"
	EnvRPCURL         = "RPC_URL"
	EnvRegistry       = "REGISTRY_ADDRESS"
	EnvGraphURL       = "GRAPH_URL"
	EnvPrivateKey     = "PRIVATE_KEY"
	EnvGasPrice       = "GAS_PRICE"
	EnvPushgatewayURL = "PUSHGATEWAY_URL"
)

const DefaultChain = "celo"

type LogConfig struct {
	Level string `yaml:"level"`
	// File, when set, receives a rotated copy of the JSON log.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type SyncConfig struct {
	Chain           string `yaml:"chain"`
	RPCURL          string `yaml:"rpc_url"`
	RegistryAddress string `yaml:"registry_address"`
	GraphURL        string `yaml:"graph_url"`
	// PrivateKey is normally supplied through PRIVATE_KEY. Without it the run
	// only logs what it would submit.
	PrivateKey      string    `yaml:"private_key"`
	GasPrice        string    `yaml:"gas_price"`
	PairGasLimit    uint64    `yaml:"pair_gas_limit"`
	RankingGasLimit uint64    `yaml:"ranking_gas_limit"`
	RankingLimit    uint64    `yaml:"ranking_limit"`
	GraphPageSize   int       `yaml:"graph_page_size"`
	PushgatewayURL  string    `yaml:"pushgateway_url"`
	Log             LogConfig `yaml:"log"`

	// registryDefaulted is set when RegistryAddress was taken from the chain deployment.
	registryDefaulted bool
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into a SyncConfig struct. An empty path skips the file. Environment
// overrides and chain defaults are applied afterwards.
func LoadConfig(path string) (*SyncConfig, error) {
	var cfg SyncConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SyncConfig) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvChain, &c.Chain)
	set(EnvRPCURL, &c.RPCURL)
	set(EnvRegistry, &c.RegistryAddress)
	set(EnvGraphURL, &c.GraphURL)
	set(EnvPrivateKey, &c.PrivateKey)
	set(EnvGasPrice, &c.GasPrice)
	set(EnvPushgatewayURL, &c.PushgatewayURL)
}

func (c *SyncConfig) applyDefaults() error {
	if c.Chain == "" {
		c.Chain = DefaultChain
	}
	d, ok := chains.ByName(c.Chain)
	if !ok {
		return fmt.Errorf("config: unknown chain %q", c.Chain)
	}
	if c.RPCURL == "" {
		c.RPCURL = d.RPCURL
	}
	if c.RegistryAddress == "" {
		c.RegistryAddress = d.Registry.Hex()
		c.registryDefaulted = true
	}
	if c.GraphURL == "" {
		c.GraphURL = d.GraphURL
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

// Validate checks that the configuration can drive a run.
func (c *SyncConfig) Validate() error {
	if c.RPCURL == "" {
		return errors.New("config: rpc_url is required")
	}
	if c.GraphURL == "" {
		return errors.New("config: graph_url is required")
	}
	if !common.IsHexAddress(c.RegistryAddress) {
		return fmt.Errorf("config: invalid registry_address %q", c.RegistryAddress)
	}
	if c.GasPrice != "" {
		if _, err := c.GasPriceWei(); err != nil {
			return err
		}
	}
	if c.GraphPageSize < 0 {
		return errors.New("config: graph_page_size must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// Registry returns the registry contract address.
func (c *SyncConfig) Registry() common.Address {
	return common.HexToAddress(c.RegistryAddress)
}

// GasPriceWei parses GasPrice as a decimal wei amount. It returns nil when no
// gas price is configured.
func (c *SyncConfig) GasPriceWei() (*big.Int, error) {
	if c.GasPrice == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(c.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("config: invalid gas_price %q: %w", c.GasPrice, err)
	}
	if v.IsZero() {
		return nil, errors.New("config: gas_price must be greater than 0")
	}
	return v.ToBig(), nil
}

// CheckChainID compares the chain id reported by the ledger with the configured
// chain. It returns an error when they differ and the registry address is the
// configured chain's default deployment. When the registry address was set
// explicitly a mismatch is only reported, so the caller can warn.
func (c *SyncConfig) CheckChainID(chainID uint64) (mismatch bool, err error) {
	want, ok := chains.ByName(c.Chain)
	if !ok {
		return false, fmt.Errorf("config: unknown chain %q", c.Chain)
	}
	if want.ChainID == chainID {
		return false, nil
	}
	if !c.registryDefaulted {
		return true, nil
	}

	got := fmt.Sprintf("chain id %d", chainID)
	if d, ok := chains.ByChainID(chainID); ok {
		got = fmt.Sprintf("%s (chain id %d)", d.Name, chainID)
	}
	return true, fmt.Errorf("config: rpc_url is connected to %s but chain is %s (chain id %d); set chain or registry_address to match", got, want.Name, want.ChainID)
}

// Live reports whether a signing credential is configured.
func (c *SyncConfig) Live() bool {
	return c.PrivateKey != ""
}
