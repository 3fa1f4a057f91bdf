// Package config loads the daemon's YAML configuration file: identity,
// P2P listen/advertised addresses, storage location, logging, the
// initial currency/pair bootstrap list, per-currency swap-client
// backend selection, reconnection/backoff constants, and the RPC/
// WebSocket bind address. Protocol timeouts, swap CLTV deltas and
// similar constants are not configured here; they are defined in the
// packages that use them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkType selects which gossip network this node joins; peers on
// different networks never complete a handshake with each other.
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
)

const (
	mainnetNetworkID = "xud-mainnet"
	testnetNetworkID = "xud-testnet"
)

// Config is the root of the daemon's configuration file.
type Config struct {
	NetworkType NetworkType `yaml:"network_type"`

	Identity IdentityConfig `yaml:"identity"`
	Network  NetworkConfig  `yaml:"network"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	RPC      RPCConfig      `yaml:"rpc"`

	// Currencies and Pairs seed the registry on first run; once
	// persisted in storage, the config file is no longer consulted
	// for them (addCurrency/addPair take over).
	Currencies []CurrencyConfig `yaml:"currencies"`
	Pairs      []PairConfig     `yaml:"pairs"`
}

// IdentityConfig holds the node's gossip identity settings.
type IdentityConfig struct {
	// KeyFile is the path to the node's private key file, relative to
	// Storage.DataDir unless absolute.
	KeyFile string `yaml:"key_file"`
}

// NetworkConfig holds P2P network settings.
type NetworkConfig struct {
	ListenAddrs    []string `yaml:"listen_addrs"`
	AdvertisedAddrs []string `yaml:"advertised_addrs"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`

	EnableMDNS bool `yaml:"enable_mdns"`
	EnableDHT  bool `yaml:"enable_dht"`
	AllowTor   bool `yaml:"allow_tor"`

	ConnMgr ConnMgrConfig `yaml:"conn_mgr"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// ConnMgrConfig holds connection manager watermarks.
type ConnMgrConfig struct {
	LowWater    int           `yaml:"low_water"`
	HighWater   int           `yaml:"high_water"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// BackoffConfig is the outbound reconnect schedule: doubling intervals
// capped at Max, reset on a successful connection.
type BackoffConfig struct {
	Base       time.Duration `yaml:"base"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RPCConfig holds the JSON-RPC/WebSocket server bind settings.
type RPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// CurrencyConfig is the YAML form of a bootstrap currency entry,
// including the modeled (not implemented) connection options for the
// swap-client backend it selects.
type CurrencyConfig struct {
	Symbol       string `yaml:"symbol"`
	Decimals     int    `yaml:"decimals"`
	SwapClient   string `yaml:"swap_client"` // "lnd" or "hashlock-transfer"
	TokenAddress string `yaml:"token_address,omitempty"`

	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	AuthToken  string `yaml:"auth_token,omitempty"`
	TLSCert    string `yaml:"tls_cert,omitempty"`
}

// PairConfig is the YAML form of a bootstrap trading pair entry.
type PairConfig struct {
	BaseCurrency  string `yaml:"base_currency"`
	QuoteCurrency string `yaml:"quote_currency"`
	SwapEnabled   bool   `yaml:"swap_enabled"`
}

// NetworkID returns the gossip network identifier peers exchange in
// Hello, scoped by NetworkType so mainnet and testnet nodes never
// handshake with each other.
func (c *Config) NetworkID() string {
	if c.NetworkType == NetworkTestnet {
		return testnetNetworkID
	}
	return mainnetNetworkID
}

func (c *Config) IsTestnet() bool {
	return c.NetworkType == NetworkTestnet
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: NetworkMainnet,
		Identity: IdentityConfig{
			KeyFile: "node.key",
		},
		Network: NetworkConfig{
			ListenAddrs: []string{
				"/ip4/0.0.0.0/tcp/8885",
				"/ip4/0.0.0.0/udp/8885/quic-v1",
			},
			AdvertisedAddrs: []string{},
			BootstrapPeers:  []string{},
			EnableMDNS:      false,
			EnableDHT:       true,
			AllowTor:        false,
			ConnMgr: ConnMgrConfig{
				LowWater:    50,
				HighWater:   200,
				GracePeriod: time.Minute,
			},
			Backoff: BackoffConfig{
				Base:       time.Second,
				Max:        5 * time.Minute,
				Multiplier: 2.0,
			},
		},
		Storage: StorageConfig{
			DataDir: "~/.xud",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		RPC: RPCConfig{
			ListenAddr: "127.0.0.1:8886",
		},
		Currencies: []CurrencyConfig{
			{Symbol: "BTC", Decimals: 8, SwapClient: "lnd"},
			{Symbol: "USDT", Decimals: 6, SwapClient: "hashlock-transfer"},
		},
		Pairs: []PairConfig{
			{BaseCurrency: "BTC", QuoteCurrency: "USDT", SwapEnabled: true},
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "xud.conf"

// LoadConfig loads configuration from a YAML file under dataDir. If
// the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	path := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# xud daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file for dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
