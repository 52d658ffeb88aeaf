// Package consensus produces blocks on a single authority node. The
// sequencer drains the mempool in arrival order, executes every
// transaction, and signs the resulting block. A failing transaction is
// receipted and rolled back; it never halts the block.
package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"github.com/tolelom/tolarcade/config"
	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

const (
	defaultMaxBlockTxs = 500
	maxRetryFactor     = 30
)

// ReceiptIndexer stores receipts of committed blocks for later lookup.
type ReceiptIndexer interface {
	IndexReceipts(block *core.Block) error
}

// Sequencer is the block producer. It owns the ledger state: readers go
// through View so they never observe a half-executed block.
type Sequencer struct {
	mu       sync.RWMutex
	cfg      *config.Config
	bc       *core.Blockchain
	state    core.State
	mempool  *core.Mempool
	exec     *vm.Executor
	emitter  *events.Emitter
	receipts ReceiptIndexer
	privKey  crypto.PrivateKey
	pubKey   crypto.PublicKey
	now      func() time.Time
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithClock overrides the wall clock used for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithReceiptIndexer registers where committed receipts are stored.
func WithReceiptIndexer(r ReceiptIndexer) Option {
	return func(s *Sequencer) { s.receipts = r }
}

// New creates a Sequencer signing blocks with privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	opts ...Option,
) *Sequencer {
	s := &Sequencer{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View runs fn against committed state. Block production waits for it.
func (s *Sequencer) View(fn func(core.State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Now is the timestamp the next block would carry.
func (s *Sequencer) Now() time.Time {
	return s.now()
}

// ProduceBlock executes up to MaxBlockTxs pending transactions and commits
// them as the next block. It returns (nil, nil) when the mempool is empty.
func (s *Sequencer) ProduceBlock() (*core.Block, error) {
	limit := s.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = defaultMaxBlockTxs
	}
	txs := s.mempool.Pending(limit)
	if len(txs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash, height := config.GenesisHash, int64(1)
	if tip := s.bc.Tip(); tip != nil {
		prevHash, height = tip.Hash, tip.Header.Height+1
	}

	at := s.now()
	if tip := s.bc.Tip(); tip != nil && at.UnixNano() <= tip.Header.Timestamp {
		at = time.Unix(0, tip.Header.Timestamp+1)
	}
	block := core.NewBlock(height, prevHash, s.pubKey.Hex(), txs, at)

	snap, err := s.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	receipts := s.exec.ExecuteBlock(block)

	// Root from the write buffer before flushing, so a failed AddBlock
	// leaves nothing persisted.
	block.Header.StateRoot = s.state.ComputeRoot()
	block.Sign(s.privKey)

	if err := s.bc.AddBlock(block); err != nil {
		if revertErr := s.state.RevertToSnapshot(snap); revertErr != nil {
			return nil, fmt.Errorf("add block: %w (revert: %v)", err, revertErr)
		}
		return nil, fmt.Errorf("add block: %w", err)
	}
	s.state.DiscardSnapshot(snap)
	if err := s.state.Commit(); err != nil {
		log.Fatal().Str("component", "consensus").Int64("height", block.Header.Height).Err(err).
			Msg("block stored but state commit failed")
	}
	if s.receipts != nil {
		if err := s.receipts.IndexReceipts(block); err != nil {
			log.Error().Str("component", "consensus").Int64("height", block.Header.Height).Err(err).
				Msg("index receipts")
		}
	}

	failed := 0
	txIDs := make([]string, len(txs))
	for i, tx := range txs {
		txIDs[i] = tx.ID
		if !receipts[i].OK {
			failed++
		}
	}
	s.mempool.Remove(txIDs)

	s.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(txs), "failed": failed},
	})
	log.Debug().Str("component", "consensus").Int64("height", block.Header.Height).
		Int("txs", len(txs)).Int("failed", failed).Msg("block committed")
	return block, nil
}

// Run produces blocks every interval until ctx is cancelled. After a
// failed attempt the next one is delayed with jittered exponential backoff,
// capped at maxRetryFactor intervals.
func (s *Sequencer) Run(ctx context.Context, interval time.Duration) {
	retry := &backoff.Backoff{
		Min:    interval,
		Max:    maxRetryFactor * interval,
		Factor: 2,
		Jitter: true,
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			next := interval
			if _, err := s.ProduceBlock(); err != nil {
				next = retry.Duration()
				log.Error().Str("component", "consensus").Err(err).Dur("retry_in", next).Msg("produce block")
			} else {
				retry.Reset()
			}
			timer.Reset(next)
		}
	}
}
