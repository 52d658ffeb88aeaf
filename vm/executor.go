package vm

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
)

var (
	// ErrReentrantCall is returned when ExecuteTx is entered while another
	// transaction is still executing, e.g. from an event subscriber.
	ErrReentrantCall = errors.New("vm: reentrant call rejected")
	ErrUnknownTxType = errors.New("vm: no handler registered")
	ErrBadNonce      = errors.New("invalid nonce")
	ErrFeeBalance    = errors.New("insufficient balance for fee")
)

// Coded is implemented by module errors that carry a machine-readable
// classification. Receipts copy it so callers can branch on the cause.
type Coded interface {
	error
	ErrorKind() string
	ErrorCode() string
}

// Executor applies transactions to the state using the global Handler
// registry. It is driven by a single sequencer; overlapping calls are
// rejected rather than queued.
type Executor struct {
	guard   sync.Mutex
	state   core.State
	emitter *events.Emitter
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// ExecuteBlock applies all transactions in block sequentially and records
// one receipt per transaction. A failing transaction is rolled back and
// receipted; it does not reject the block.
func (e *Executor) ExecuteBlock(block *core.Block) []*core.Receipt {
	receipts := make([]*core.Receipt, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		receipts = append(receipts, NewReceipt(tx, e.ExecuteTx(block, tx)))
	}
	block.Receipts = receipts
	return receipts
}

// NewReceipt classifies the outcome of tx.
func NewReceipt(tx *core.Transaction, err error) *core.Receipt {
	r := &core.Receipt{TxID: tx.ID, Type: tx.Type, OK: err == nil}
	if err == nil {
		return r
	}
	r.Error = err.Error()
	var coded Coded
	if errors.As(err, &coded) {
		r.Kind = coded.ErrorKind()
		r.Code = coded.ErrorCode()
	}
	return r
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// The nonce and fee are charged first; if the handler then fails, every
// state change it made is reverted and none of its events are published.
// A failed transaction still consumes its nonce so later transactions from
// the same caller are not stranded behind it.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if !e.guard.TryLock() {
		return ErrReentrantCall
	}
	defer e.guard.Unlock()

	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	outer, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := e.charge(tx); err != nil {
		if revertErr := e.state.RevertToSnapshot(outer); revertErr != nil {
			return fmt.Errorf("revert snapshot after charge failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	inner, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	ctx := &Context{State: e.state, Block: block, Tx: tx}
	if err := globalRegistry.Execute(tx.Type, ctx, tx.Payload); err != nil {
		if revertErr := e.state.RevertToSnapshot(inner); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		e.state.DiscardSnapshot(outer)
		e.emit(events.Event{
			Type:        events.EventTxFailed,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From, "error": err.Error()},
		})
		return err
	}
	e.state.DiscardSnapshot(outer)

	for _, ev := range ctx.Events() {
		e.emit(ev)
	}
	e.emit(events.Event{
		Type:        events.EventTxExecuted,
		TxID:        tx.ID,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
	})
	return nil
}

func (e *Executor) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// charge checks the nonce, deducts the fee and increments the nonce.
func (e *Executor) charge(tx *core.Transaction) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("%w: expected %d got %d", ErrBadNonce, acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("%w: have %d need %d", ErrFeeBalance, acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	return e.state.SetAccount(acc)
}
