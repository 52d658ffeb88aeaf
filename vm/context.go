package vm

import (
	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
)

// Context is passed to every Handler and provides access to the ledger
// state, the current block and the triggering transaction. Events a handler
// emits are buffered and only published once the transaction succeeds.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction

	pending []events.Event
}

// Caller is the authenticated identity that signed the transaction.
func (c *Context) Caller() string {
	return c.Tx.From
}

// Now is the block timestamp in unix nanoseconds. Every time-gated rule
// reads the clock from here so replaying a block is deterministic.
func (c *Context) Now() int64 {
	return c.Block.Header.Timestamp
}

// Emit queues a notification for delivery after commit.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Events returns the notifications queued so far.
func (c *Context) Events() []events.Event {
	return c.pending
}
