package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/storage"
	"github.com/tolelom/tolarcade/vm/modules/arcade"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisParams seed core.ArcadeParams.
type GenesisParams struct {
	MinPlayInterval  Duration `json:"min_play_interval"`
	BreakerThreshold uint64   `json:"breaker_threshold"` // 0 disables automatic trips
	BreakerWindow    Duration `json:"breaker_window"`
	ResetDelay       Duration `json:"reset_delay"`
	ResetExpiry      Duration `json:"reset_expiry"`
}

// GenesisConfig describes the ledger's initial state.
type GenesisConfig struct {
	ChainID   string            `json:"chain_id" env:"TOL_CHAIN_ID"`
	Admins    []string          `json:"admins"`
	Guardians []string          `json:"guardians"`
	Treasury  string            `json:"treasury"`
	Alloc     map[string]uint64 `json:"alloc"` // pubkey hex → initial balance
	Params    GenesisParams     `json:"params"`
}

// Validate checks that every address is a well-formed key and that at
// least one admin exists to run the engine.
func (g *GenesisConfig) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("genesis: chain_id is required")
	}
	if len(g.Admins) == 0 {
		return fmt.Errorf("genesis: at least one admin is required")
	}
	for _, a := range g.Admins {
		if !crypto.IsAddress(a) {
			return fmt.Errorf("genesis: invalid admin %q", a)
		}
	}
	for _, a := range g.Guardians {
		if !crypto.IsAddress(a) {
			return fmt.Errorf("genesis: invalid guardian %q", a)
		}
	}
	if g.Treasury != "" && !crypto.IsAddress(g.Treasury) {
		return fmt.Errorf("genesis: invalid treasury %q", g.Treasury)
	}
	for a := range g.Alloc {
		if !crypto.IsAddress(a) {
			return fmt.Errorf("genesis: invalid alloc address %q", a)
		}
	}
	p := g.Params
	if p.MinPlayInterval < 0 || p.BreakerWindow < 0 || p.ResetDelay < 0 || p.ResetExpiry < 0 {
		return fmt.Errorf("genesis: durations must not be negative")
	}
	return nil
}

// ApplyGenesis writes roles, engine params and initial balances into
// state. It does not commit.
func ApplyGenesis(g *GenesisConfig, state core.State) error {
	if err := g.Validate(); err != nil {
		return err
	}
	for _, a := range g.Admins {
		if err := state.SetRole(arcade.RoleAdmin, a, true); err != nil {
			return err
		}
	}
	for _, a := range g.Guardians {
		if err := state.SetRole(arcade.RoleGuardian, a, true); err != nil {
			return err
		}
	}
	if err := state.SetParams(&core.ArcadeParams{
		Version:          storage.SchemaVersion,
		Treasury:         g.Treasury,
		MinPlayInterval:  int64(g.Params.MinPlayInterval),
		BreakerThreshold: g.Params.BreakerThreshold,
		BreakerWindow:    int64(g.Params.BreakerWindow),
		ResetDelay:       int64(g.Params.ResetDelay),
		ResetExpiry:      int64(g.Params.ResetExpiry),
	}); err != nil {
		return err
	}
	for addr, balance := range g.Alloc {
		if err := state.SetAccount(&core.Account{Address: addr, Balance: balance}); err != nil {
			return err
		}
	}
	return nil
}

// CreateGenesisBlock applies the genesis state, commits it and returns the
// signed block #0.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey, at time.Time) (*core.Block, error) {
	if err := ApplyGenesis(&cfg.Genesis, state); err != nil {
		return nil, err
	}
	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPriv.Public().Hex(), nil, at)
	block.Header.StateRoot = stateRoot
	// The chain id is bound into block #0 through the tx root.
	block.Header.TxRoot = crypto.HashParts("genesis", cfg.Genesis.ChainID)
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
