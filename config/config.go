// Package config loads node settings from a JSON file overlaid with
// environment variables, and builds the genesis state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Duration is a time.Duration that reads and writes as "2s", "12h" in both
// JSON and environment variables.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all node configuration.
type Config struct {
	NodeID        string        `json:"node_id"`
	DataDir       string        `json:"data_dir" env:"TOL_DATA_DIR"`
	RPCPort       int           `json:"rpc_port" env:"TOL_RPC_PORT"`
	RPCAuthToken  string        `json:"rpc_auth_token,omitempty" env:"TOL_RPC_AUTH_TOKEN"`
	BlockInterval Duration      `json:"block_interval" env:"TOL_BLOCK_INTERVAL"`
	MaxBlockTxs   int           `json:"max_block_txs" env:"TOL_MAX_BLOCK_TXS"` // 0 → 500
	Genesis       GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		RPCPort:       8545,
		BlockInterval: Duration(2 * time.Second),
		MaxBlockTxs:   500,
		Genesis: GenesisConfig{
			ChainID: "tolarcade-dev",
			Alloc:   map[string]uint64{},
			Params: GenesisParams{
				MinPlayInterval: Duration(time.Second),
				BreakerWindow:   Duration(time.Hour),
				ResetDelay:      Duration(12 * time.Hour),
				ResetExpiry:     Duration(48 * time.Hour),
			},
		},
	}
}

// Load reads a JSON config file from path on top of the defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays TOL_* environment variables onto cfg. Unset variables
// leave the existing values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	return nil
}

// Validate checks settings the node cannot start without.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", c.RPCPort)
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("block_interval must be positive")
	}
	return c.Genesis.Validate()
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
