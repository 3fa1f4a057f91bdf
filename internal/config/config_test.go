package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "xud-config-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	path := filepath.Join(tmpDir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if cfg.Storage.DataDir != tmpDir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, tmpDir)
	}
	if len(cfg.Currencies) == 0 {
		t.Error("expected default currencies to be populated")
	}
}

func TestLoadConfigReadsExisting(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "xud-config-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.RPC.ListenAddr = "0.0.0.0:9999"
	if err := cfg.Save(ConfigPath(tmpDir)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", loaded.Logging.Level, "debug")
	}
	if loaded.RPC.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("RPC.ListenAddr = %q, want %q", loaded.RPC.ListenAddr, "0.0.0.0:9999")
	}
}

func TestNetworkID(t *testing.T) {
	tests := []struct {
		name string
		net  NetworkType
		want string
	}{
		{"mainnet", NetworkMainnet, mainnetNetworkID},
		{"testnet", NetworkTestnet, testnetNetworkID},
		{"unset defaults to mainnet", "", mainnetNetworkID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{NetworkType: tt.net}
			if got := cfg.NetworkID(); got != tt.want {
				t.Errorf("NetworkID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTestnet(t *testing.T) {
	if (&Config{NetworkType: NetworkTestnet}).IsTestnet() != true {
		t.Error("expected testnet config to report IsTestnet() = true")
	}
	if (&Config{NetworkType: NetworkMainnet}).IsTestnet() != false {
		t.Error("expected mainnet config to report IsTestnet() = false")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in   string
		want string
	}{
		{"~/.xud", filepath.Join(home, ".xud")},
		{"/var/lib/xud", "/var/lib/xud"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
