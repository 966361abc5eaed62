// Package config loads the ammd daemon configuration from YAML, a .env file
// and AMMD_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/defistate/defistate-amm-go/internal/logging"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "AMMD"

	BackendMemDB     = "memdb"
	BackendGoLevelDB = "goleveldb"

	storeName = "pairs"
)

// Config is the complete daemon configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Genesis  GenesisConfig  `mapstructure:"genesis" yaml:"genesis"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ServerConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	EventBuffer    int      `mapstructure:"event_buffer" yaml:"event_buffer"`
	Metrics        bool     `mapstructure:"metrics" yaml:"metrics"`
}

// RegistryConfig fixes the identity that every pool address derives from.
type RegistryConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	PoolTemplate string `mapstructure:"pool_template" yaml:"pool_template,omitempty"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Dir     string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// GenesisConfig seeds the in-memory asset ledger at startup.
type GenesisConfig struct {
	Assets []AssetConfig `mapstructure:"assets" yaml:"assets"`
}

type AssetConfig struct {
	Address  string         `mapstructure:"address" yaml:"address"`
	Name     string         `mapstructure:"name" yaml:"name"`
	Symbol   string         `mapstructure:"symbol" yaml:"symbol"`
	Decimals uint8          `mapstructure:"decimals" yaml:"decimals"`
	Holders  []HolderConfig `mapstructure:"holders" yaml:"holders,omitempty"`
}

// HolderConfig is an initial balance, in base units, as a decimal string.
type HolderConfig struct {
	Account string `mapstructure:"account" yaml:"account"`
	Balance string `mapstructure:"balance" yaml:"balance"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.listen_addr", "127.0.0.1:8545")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.event_buffer", 256)
	v.SetDefault("server.metrics", true)
	v.SetDefault("registry.address", "0x0000000000000000000000000000000000a11ce5")
	v.SetDefault("registry.pool_template", "")
	v.SetDefault("store.backend", BackendMemDB)
	v.SetDefault("store.dir", "")
}

// Load reads path (optional), then a .env file in the working directory if
// present, then AMMD_ environment variables, and validates the result.
// Nested keys map to variables with dots replaced by underscores, so
// AMMD_SERVER_LISTEN_ADDR overrides server.listen_addr.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}

	if c.Server.ListenAddr == "" {
		return errors.New("server: listen_addr is required")
	}
	if c.Server.EventBuffer < 0 {
		return errors.New("server: event_buffer cannot be negative")
	}

	if _, err := parseAddress(c.Registry.Address); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	switch c.Store.Backend {
	case BackendMemDB:
	case BackendGoLevelDB:
		if c.Store.Dir == "" {
			return errors.New("store: dir is required for goleveldb")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}

	seen := make(map[common.Address]bool, len(c.Genesis.Assets))
	for i, a := range c.Genesis.Assets {
		addr, err := parseAddress(a.Address)
		if err != nil {
			return fmt.Errorf("genesis: asset %d: %w", i, err)
		}
		if seen[addr] {
			return fmt.Errorf("genesis: asset %s listed twice", addr.Hex())
		}
		seen[addr] = true
		if a.Symbol == "" {
			return fmt.Errorf("genesis: asset %s has no symbol", addr.Hex())
		}
		for _, h := range a.Holders {
			if _, err := parseAddress(h.Account); err != nil {
				return fmt.Errorf("genesis: %s holder: %w", a.Symbol, err)
			}
			if _, err := uint256.FromDecimal(h.Balance); err != nil {
				return fmt.Errorf("genesis: %s holder %s: invalid balance %q: %w", a.Symbol, h.Account, h.Balance, err)
			}
		}
	}
	return nil
}

// RegistryAddress returns the parsed registry identity.
func (c *Config) RegistryAddress() common.Address {
	addr, _ := parseAddress(c.Registry.Address)
	return addr
}

// PoolTemplate returns the configured template, or nil for the default.
func (c *Config) PoolTemplate() []byte {
	if c.Registry.PoolTemplate == "" {
		return nil
	}
	return []byte(c.Registry.PoolTemplate)
}

// OpenStore opens the pair store for the configured backend.
func (c *Config) OpenStore() (dbm.DB, error) {
	switch c.Store.Backend {
	case BackendGoLevelDB:
		db, err := dbm.NewGoLevelDB(storeName, c.Store.Dir, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open goleveldb store in %s: %w", c.Store.Dir, err)
		}
		return db, nil
	default:
		return dbm.NewMemDB(), nil
	}
}

// NewBank creates the genesis assets and mints every holder's balance.
func (g *GenesisConfig) NewBank() (*ledger.Bank, error) {
	bank := ledger.NewBank()
	for _, a := range g.Assets {
		asset, err := bank.NewAsset(tokenregistry.Token{
			Address:  common.HexToAddress(a.Address),
			Name:     a.Name,
			Symbol:   a.Symbol,
			Decimals: a.Decimals,
		})
		if err != nil {
			return nil, err
		}
		for _, h := range a.Holders {
			balance, err := uint256.FromDecimal(h.Balance)
			if err != nil {
				return nil, fmt.Errorf("invalid %s balance for %s: %w", a.Symbol, h.Account, err)
			}
			if err := asset.Mint(common.HexToAddress(h.Account), balance); err != nil {
				return nil, err
			}
		}
	}
	return bank, nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("address cannot be zero")
	}
	return addr, nil
}
