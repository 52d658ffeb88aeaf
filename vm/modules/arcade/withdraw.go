package arcade

import (
	"encoding/json"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

// handleWithdrawPayout pays the caller's whole pending balance. The balance
// is cleared before custody is asked to transfer.
func handleWithdrawPayout(ctx *vm.Context, payload json.RawMessage) error {
	who := ctx.Caller()
	bal, err := ctx.State.GetPending(who)
	if err != nil {
		return err
	}
	if bal == 0 {
		return ErrNothingToWithdraw.With("address", who)
	}
	if err := ctx.State.SetPending(who, 0); err != nil {
		return err
	}
	if err := updateTotals(ctx.State, func(t *core.ArcadeTotals) error {
		t.Pending -= bal
		return nil
	}); err != nil {
		return err
	}
	if err := custody.Push(ctx.State, who, bal); err != nil {
		return err
	}
	ctx.Emit(events.EventPayoutWithdrawn, map[string]any{"player": who, "amount": bal})
	return nil
}
