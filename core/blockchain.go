package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when a requested object does not exist in storage.
	ErrNotFound = errors.New("not found")

	ErrHeightGap        = errors.New("block height does not follow tip")
	ErrPrevHashMismatch = errors.New("prev_hash mismatch")
	ErrBadSeal          = errors.New("block seal does not match contents")
)

// BlockStore persists blocks. Implementations live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns "" with a nil error on an empty store.
	GetTip() (string, error)
	// CommitBlock writes the block, its height entry and the new tip together.
	CommitBlock(block *Block) error
}

// Blockchain is the append-only audit trail of executed blocks. Every
// block carries one receipt per transaction, so the outcome of any engine
// operation can be recovered from the chain alone.
type Blockchain struct {
	mu     sync.RWMutex
	store  BlockStore
	tip    *Block
	height int64
}

func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init restores the tip from the store. An empty store leaves the chain
// without a tip.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if hash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(hash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip, bc.height = tip, tip.Header.Height
	return nil
}

// checkSeal verifies that the header commits to the block's transactions
// and receipts, and that Hash covers the header.
func checkSeal(b *Block) error {
	if len(b.Receipts) != len(b.Transactions) {
		return fmt.Errorf("%w: %d receipts for %d txs", ErrBadSeal, len(b.Receipts), len(b.Transactions))
	}
	for i, r := range b.Receipts {
		if r == nil || r.TxID != b.Transactions[i].ID {
			return fmt.Errorf("%w: receipt %d out of order", ErrBadSeal, i)
		}
	}
	switch {
	case b.Header.TxRoot != ComputeTxRoot(b.Transactions):
		return fmt.Errorf("%w: tx_root", ErrBadSeal)
	case b.Header.ReceiptRoot != ComputeReceiptRoot(b.Receipts):
		return fmt.Errorf("%w: receipt_root", ErrBadSeal)
	case b.Hash != b.ComputeHash():
		return fmt.Errorf("%w: hash", ErrBadSeal)
	}
	return nil
}

// AddBlock appends block after checking its seal and its linkage to the tip.
func (bc *Blockchain) AddBlock(block *Block) error {
	if err := checkSeal(block); err != nil {
		return err
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.tip != nil {
		if block.Header.Height != bc.height+1 {
			return fmt.Errorf("%w: got %d tip %d", ErrHeightGap, block.Header.Height, bc.height)
		}
		if block.Header.PrevHash != bc.tip.Hash {
			return fmt.Errorf("%w: got %s want %s", ErrPrevHashMismatch, block.Header.PrevHash, bc.tip.Hash)
		}
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	bc.tip, bc.height = block, block.Header.Height
	return nil
}

func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	return bc.store.GetBlock(hash)
}

func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	return bc.store.GetBlockByHeight(height)
}

// ReceiptAt returns the receipt for txID in the block at height.
func (bc *Blockchain) ReceiptAt(height int64, txID string) (*Receipt, error) {
	b, err := bc.store.GetBlockByHeight(height)
	if err != nil {
		return nil, err
	}
	for _, r := range b.Receipts {
		if r.TxID == txID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("receipt %s at height %d: %w", txID, height, ErrNotFound)
}

// Tip returns nil before genesis.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}
