package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	maxMempoolSize = 10_000
	maxPerSender   = 256                    // pending txs per caller
	maxTxAge       = int64(time.Hour)       // reject txs older than 1 hour
	maxTxFuture    = int64(5 * time.Minute) // reject txs more than 5 min in the future
)

var (
	ErrMempoolFull     = errors.New("mempool full")
	ErrSenderQueueFull = errors.New("too many pending txs from sender")
	ErrDuplicateTx     = errors.New("tx already in pool")
	ErrTxExpired       = errors.New("transaction expired")
	ErrTxFromFuture    = errors.New("transaction timestamp too far in the future")
)

// Mempool is a thread-safe pending-transaction pool. Transactions are
// drained in arrival order so a game's entry, payout and settle calls for
// one session execute in the order they were submitted.
type Mempool struct {
	mu       sync.RWMutex
	txs      map[string]*Transaction
	ord      []string
	bySender map[string]int
	now      func() time.Time
}

// NewMempool creates an empty mempool using the wall clock.
func NewMempool() *Mempool {
	return &Mempool{
		txs:      make(map[string]*Transaction),
		bySender: make(map[string]int),
		now:      time.Now,
	}
}

// Add validates and inserts a transaction.
func (m *Mempool) Add(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	now := m.now().UnixNano()
	if now-tx.Timestamp > maxTxAge {
		return ErrTxExpired
	}
	if tx.Timestamp-now > maxTxFuture {
		return ErrTxFromFuture
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= maxMempoolSize {
		return ErrMempoolFull
	}
	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	if m.bySender[tx.From] >= maxPerSender {
		return ErrSenderQueueFull
	}
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	m.bySender[tx.From]++
	return nil
}

// Get returns a transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n pending transactions in insertion order.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Transaction, 0, n)
	for _, id := range m.ord {
		if tx, ok := m.txs[id]; ok {
			result = append(result, tx)
			if len(result) >= n {
				break
			}
		}
	}
	return result
}

// Remove deletes transactions by ID (called after block commit).
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if tx, ok := m.txs[id]; ok {
			m.bySender[tx.From]--
			if m.bySender[tx.From] <= 0 {
				delete(m.bySender, tx.From)
			}
			delete(m.txs, id)
		}
		removed[id] = true
	}
	filtered := m.ord[:0]
	for _, id := range m.ord {
		if !removed[id] {
			filtered = append(filtered, id)
		}
	}
	m.ord = filtered
}

// Size returns the current number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
