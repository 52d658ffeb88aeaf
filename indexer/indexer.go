// Package indexer maintains secondary indexes over committed activity so
// game servers and wallets can look up sessions by player or game, and
// receipts by transaction id, without scanning ledger state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/storage"
)

const (
	prefixPlayerSession = "idx:player:session:"
	prefixGameSession   = "idx:game:session:"
	prefixReceipt       = "idx:receipt:"
)

// Indexer subscribes to engine events and updates lookup tables. Its keys
// live outside the ledger state prefixes and never feed the state root.
type Indexer struct {
	mu sync.Mutex
	db storage.DB
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventSessionOpened, idx.onSessionOpened)
	emitter.Subscribe(events.EventEntryProcessed, idx.onEntryProcessed)
	return idx
}

// GetSessionsByPlayer returns every session the player has deposited into,
// in first-entry order.
func (idx *Indexer) GetSessionsByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerSession + player)
}

// GetSessionsByGame returns every session opened by the game.
func (idx *Indexer) GetSessionsByGame(game string) ([]string, error) {
	return idx.getList(prefixGameSession + game)
}

// IndexReceipts records each receipt of a committed block under its tx id.
func (idx *Indexer) IndexReceipts(block *core.Block) error {
	batch := idx.db.NewBatch()
	for _, r := range block.Receipts {
		data, err := json.Marshal(ReceiptLocation{Receipt: r, BlockHeight: block.Header.Height, BlockHash: block.Hash})
		if err != nil {
			return fmt.Errorf("marshal receipt %s: %w", r.TxID, err)
		}
		batch.Set([]byte(prefixReceipt+r.TxID), data)
	}
	return batch.Write()
}

// ReceiptLocation is a receipt plus the block that carried it.
type ReceiptLocation struct {
	*core.Receipt
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

// GetReceipt returns the receipt for txID, or core.ErrNotFound while the
// transaction is still pending or unknown.
func (idx *Indexer) GetReceipt(txID string) (*ReceiptLocation, error) {
	data, err := idx.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var loc ReceiptLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("indexer unmarshal receipt: %w", err)
	}
	return &loc, nil
}

// ---- event handlers ----

func (idx *Indexer) onSessionOpened(ev events.Event) {
	game, _ := ev.Data["game"].(string)
	sessionID, _ := ev.Data["session"].(string)
	if game == "" || sessionID == "" {
		return
	}
	idx.add(prefixGameSession+game, sessionID)
}

func (idx *Indexer) onEntryProcessed(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	sessionID, _ := ev.Data["session"].(string)
	if player == "" || sessionID == "" {
		return
	}
	idx.add(prefixPlayerSession+player, sessionID)
}

func (idx *Indexer) add(key, value string) {
	if err := idx.addToList(key, value); err != nil {
		log.Error().Str("component", "indexer").Str("key", key).Err(err).Msg("index update failed")
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

// addToList appends value unless it is already present.
func (idx *Indexer) addToList(key, value string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	if slices.Contains(ids, value) {
		return nil
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
