package arcade

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

// refundableSession checks the session-level refund rules shared by every
// refund path: not settled and no payout ever issued.
func refundableSession(sess *core.Session) error {
	if sess.State == core.SessionSettled {
		return ErrSessionSettled.With("session", sess.ID)
	}
	if sess.TotalPaid > 0 {
		return ErrRefundsBlockedAfterPayout.With("session", sess.ID, "total_paid", sess.TotalPaid)
	}
	return nil
}

// applyRefund moves amount of dep's net deposit out of the pool and into the
// player's pending balance, and marks dep refunded. Persists sess and dep.
func applyRefund(ctx *vm.Context, sess *core.Session, dep *core.Deposit, amount uint64) error {
	dep.Refunded = true
	dep.Net -= amount
	sess.PrizePool -= amount
	if err := ctx.State.SetDeposit(dep); err != nil {
		return err
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}
	if _, err := creditPending(ctx.State, dep.Player, amount); err != nil {
		return err
	}
	return updateTotals(ctx.State, func(t *core.ArcadeTotals) error {
		t.Outstanding -= amount
		t.Pending += amount
		return nil
	})
}

func handleEmergencyRefund(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RefundPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	game, _, err := callerGame(ctx)
	if err != nil {
		return err
	}
	sess, err := ownedSession(ctx.State, p.SessionID, game.Address)
	if err != nil {
		return err
	}
	if err := refundableSession(sess); err != nil {
		return err
	}
	dep, err := loadDeposit(ctx.State, sess.ID, p.Player)
	if err != nil {
		return err
	}
	if dep.Refunded {
		return ErrAlreadyRefunded.With("session", sess.ID, "player", p.Player)
	}
	if p.Amount == 0 {
		return ErrZeroAmount
	}
	if p.Amount > dep.Net {
		return ErrRefundExceedsDeposit.With("requested", p.Amount, "net", dep.Net)
	}
	if err := applyRefund(ctx, sess, dep, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventRefundIssued, map[string]any{
		"session": sess.ID,
		"game":    sess.Game,
		"player":  p.Player,
		"amount":  p.Amount,
		"path":    "emergency",
	})
	return nil
}

func handleBatchEmergencyRefund(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BatchRefundPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	game, _, err := callerGame(ctx)
	if err != nil {
		return err
	}
	switch {
	case len(p.Players) == 0:
		return ErrBatchEmpty
	case len(p.Players) > MaxBatchSize:
		return ErrBatchTooLarge.With("size", len(p.Players), "max", MaxBatchSize)
	}
	sess, err := ownedSession(ctx.State, p.SessionID, game.Address)
	if err != nil {
		return err
	}
	if err := refundableSession(sess); err != nil {
		return err
	}

	var refunded []string
	var total uint64
	for _, player := range p.Players {
		dep, err := ctx.State.GetDeposit(sess.ID, player)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if dep.Refunded || dep.Net == 0 {
			continue
		}
		amount := dep.Net
		if err := applyRefund(ctx, sess, dep, amount); err != nil {
			return err
		}
		refunded = append(refunded, player)
		total += amount
	}
	ctx.Emit(events.EventBatchRefund, map[string]any{
		"session":   sess.ID,
		"game":      sess.Game,
		"requested": len(p.Players),
		"refunded":  refunded,
		"amount":    total,
	})
	return nil
}

// handleClaimExpiredRefund lets anyone return a player's full net deposit
// from a cancelled session, so refunds survive an unresponsive game.
func handleClaimExpiredRefund(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimRefundPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	sess, err := loadSession(ctx.State, p.SessionID)
	if err != nil {
		return err
	}
	if sess.State != core.SessionCancelled {
		return ErrSessionNotCancelled.With("session", sess.ID, "state", sess.State)
	}
	if err := refundableSession(sess); err != nil {
		return err
	}
	dep, err := loadDeposit(ctx.State, sess.ID, p.Player)
	if err != nil {
		return err
	}
	if dep.Refunded {
		return ErrAlreadyRefunded.With("session", sess.ID, "player", p.Player)
	}
	if dep.Net == 0 {
		return ErrNoDeposit.With("session", sess.ID, "player", p.Player)
	}
	amount := dep.Net
	if err := applyRefund(ctx, sess, dep, amount); err != nil {
		return err
	}
	ctx.Emit(events.EventRefundIssued, map[string]any{
		"session": sess.ID,
		"game":    sess.Game,
		"player":  p.Player,
		"amount":  amount,
		"path":    "expired",
		"by":      ctx.Caller(),
	})
	return nil
}
