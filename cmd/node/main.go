// Command node runs a tolarcade ledger node: a single sequencer executing
// arcade engine transactions and serving JSON-RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tolelom/tolarcade/config"
	"github.com/tolelom/tolarcade/consensus"
	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/indexer"
	"github.com/tolelom/tolarcade/internal/logging"
	"github.com/tolelom/tolarcade/rpc"
	"github.com/tolelom/tolarcade/storage"
	"github.com/tolelom/tolarcade/vm"
	"github.com/tolelom/tolarcade/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolarcade/vm/modules/arcade"
	_ "github.com/tolelom/tolarcade/vm/modules/economy"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "sequencer.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new sequencer key and exit")
	flag.Parse()

	logCfg, err := config.LoadLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "log config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logCfg)
	logger := log.With().Str("component", "node").Logger()

	// Read keystore password from environment (not CLI flags, they leak via ps).
	password := os.Getenv("TOL_PASSWORD")
	if password == "" {
		logger.Warn().Msg("TOL_PASSWORD not set, keystore uses an empty password")
	}

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			logger.Fatal().Err(err).Msg("generate key")
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			logger.Fatal().Err(err).Msg("save key")
		}
		fmt.Printf("Generated key. Public key (sequencer address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		logger.Fatal().Err(err).Msg("load key")
	}
	if len(cfg.Genesis.Admins) == 0 {
		logger.Warn().Msg("genesis has no admins, granting admin to the sequencer key")
		cfg.Genesis.Admins = []string{privKey.Public().Hex()}
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal().Err(err).Msg("mkdir data dir")
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	// State, blocks and indexes share one DB under disjoint key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewLevelBlockStore(db))
	if err := bc.Init(); err != nil {
		logger.Fatal().Err(err).Msg("blockchain init")
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool()
	exec := vm.NewExecutor(state, emitter)
	seq := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey, consensus.WithReceiptIndexer(idx))

	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey, seq.Now())
		if err != nil {
			logger.Fatal().Err(err).Msg("genesis")
		}
		if err := bc.AddBlock(genesis); err != nil {
			logger.Fatal().Err(err).Msg("add genesis")
		}
		logger.Info().Str("hash", genesis.Hash).Str("chain_id", cfg.Genesis.ChainID).Msg("genesis block committed")
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(bc, mempool, seq, idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, rpc.NewStream(emitter), cfg.RPCAuthToken, logging.Writer())
	if err := rpcServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("rpc start")
	}
	defer func() {
		if err := rpcServer.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("rpc stop")
		}
	}()
	logger.Info().Str("addr", rpcServer.Addr()).Bool("auth", cfg.RPCAuthToken != "").Msg("rpc listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seq.Run(ctx, cfg.BlockInterval.Std())
	}()
	logger.Info().Str("sequencer", privKey.Public().Hex()).Dur("interval", cfg.BlockInterval.Std()).
		Msg("sequencer running")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// Stop block production first so nothing is written after the DB closes.
	wg.Wait()
	logger.Info().Msg("shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("component", "node").Str("path", path).Msg("config file not found, using defaults")
			cfg = config.DefaultConfig()
			return cfg, config.ApplyEnv(cfg)
		}
		return nil, err
	}
	return cfg, nil
}
