// Package config loads the daemon configuration: a YAML file with
// environment-variable overrides for the secrets that should not live on
// disk.
package config

import (
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"outputFile"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
	// DebugListen serves expvar and pprof when set. Keep it on localhost.
	DebugListen string `yaml:"debugListen"`
}

type ChainConfig struct {
	RPCURL  string `yaml:"rpcUrl"`
	ChainID int64  `yaml:"chainId"`
	// DryRun wires in-memory fakes instead of on-chain adapters.
	DryRun bool `yaml:"dryRun"`
}

type VaultConfig struct {
	Address             string `yaml:"address"`
	Asset               string `yaml:"asset"`
	Admin               string `yaml:"admin"`
	CooldownBlocks      uint64 `yaml:"cooldownBlocks"`
	ProtocolFeeBps      uint64 `yaml:"protocolFeeBps"`
	PythValidTimePeriod int64  `yaml:"pythValidTimePeriod"`
}

type OracleConfig struct {
	PushFeed     string `yaml:"pushFeed"`
	PushDecimals uint8  `yaml:"pushDecimals"`
	PythEndpoint string `yaml:"pythEndpoint"`
	PythPriceID  string `yaml:"pythPriceId"`
}

type VenueConfig struct {
	Pool   string `yaml:"pool"`
	AToken string `yaml:"aToken"`
}

type TokenConfig struct {
	Synth string `yaml:"synth"`
	// AssetDecimals and SynthDecimals control only how the monitoring API
	// renders raw amounts as human decimals.
	AssetDecimals int32 `yaml:"assetDecimals"`
	SynthDecimals int32 `yaml:"synthDecimals"`
}

type StoreConfig struct {
	Path      string `yaml:"path"`
	EventSink string `yaml:"eventSink"`
}

type Config struct {
	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
	Chain  ChainConfig  `yaml:"chain"`
	Vault  VaultConfig  `yaml:"vault"`
	Oracle OracleConfig `yaml:"oracle"`
	Venue  VenueConfig  `yaml:"venue"`
	Token  TokenConfig  `yaml:"token"`
	Store  StoreConfig  `yaml:"store"`
}

// Load reads the YAML file and applies defaults and environment overrides.
// VAULT_RPC_URL and VAULT_PRIVATE_KEY come from the environment only.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8087"
	}
	if c.Vault.CooldownBlocks == 0 {
		c.Vault.CooldownBlocks = 10
	}
	if c.Vault.PythValidTimePeriod == 0 {
		c.Vault.PythValidTimePeriod = 60
	}
	if c.Oracle.PythEndpoint == "" {
		c.Oracle.PythEndpoint = "https://hermes.pyth.network"
	}
	if c.Oracle.PushDecimals == 0 {
		c.Oracle.PushDecimals = 8
	}
	if c.Token.AssetDecimals == 0 {
		c.Token.AssetDecimals = 6
	}
	if c.Token.SynthDecimals == 0 {
		c.Token.SynthDecimals = 6
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VAULT_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("VAULT_HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv("VAULT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func mustBeAddress(name, v string) error {
	if !common.IsHexAddress(v) {
		return errors.Errorf("config: %s is not a valid address: %q", name, v)
	}
	if common.HexToAddress(v) == (common.Address{}) {
		return errors.Errorf("config: %s must be non-zero", name)
	}
	return nil
}

// Validate rejects configuration that cannot possibly run. Parameter bounds
// (cooldown, fee) are enforced again by the vault itself.
func (c *Config) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"vault.address", c.Vault.Address},
		{"vault.asset", c.Vault.Asset},
		{"vault.admin", c.Vault.Admin},
	} {
		if err := mustBeAddress(f.name, f.value); err != nil {
			return err
		}
	}
	if !c.Chain.DryRun {
		if c.Chain.RPCURL == "" {
			return errors.New("config: chain.rpcUrl is required outside dry-run")
		}
		for _, f := range []struct{ name, value string }{
			{"oracle.pushFeed", c.Oracle.PushFeed},
			{"venue.pool", c.Venue.Pool},
			{"venue.aToken", c.Venue.AToken},
			{"token.synth", c.Token.Synth},
		} {
			if err := mustBeAddress(f.name, f.value); err != nil {
				return err
			}
		}
		if c.Oracle.PythPriceID == "" {
			return errors.New("config: oracle.pythPriceId is required outside dry-run")
		}
	}
	if c.Oracle.PushDecimals == 0 || c.Oracle.PushDecimals > 18 {
		return errors.Errorf("config: oracle.pushDecimals %d outside (0, 18]", c.Oracle.PushDecimals)
	}
	if c.Vault.PythValidTimePeriod <= 0 {
		return errors.New("config: vault.pythValidTimePeriod must be positive")
	}
	return nil
}
