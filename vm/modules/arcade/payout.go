package arcade

import (
	"encoding/json"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

func handleCreditPayout(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PayoutPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	game, _, err := callerGame(ctx)
	if err != nil {
		return err
	}
	sess, err := activeSession(ctx.State, p.SessionID, game.Address)
	if err != nil {
		return err
	}
	breaker, err := loadOpenBreaker(ctx.State)
	if err != nil {
		return err
	}
	total, err := creditOne(ctx, sess, p.Player, p.Amount, p.BurnAmount, p.Won)
	if err != nil {
		return err
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}
	if err := recordPayout(ctx, breaker, total); err != nil {
		return err
	}
	ctx.Emit(events.EventPayoutCredited, map[string]any{
		"session":    sess.ID,
		"game":       sess.Game,
		"player":     p.Player,
		"amount":     p.Amount,
		"burn":       p.BurnAmount,
		"won":        p.Won,
		"total_paid": sess.TotalPaid,
	})
	return nil
}

func handleBatchCreditPayouts(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BatchPayoutPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	game, _, err := callerGame(ctx)
	if err != nil {
		return err
	}
	n := len(p.Players)
	if len(p.Amounts) != n || len(p.BurnAmounts) != n || len(p.Won) != n {
		return ErrBatchLengthMismatch.With(
			"players", n, "amounts", len(p.Amounts),
			"burn_amounts", len(p.BurnAmounts), "won", len(p.Won))
	}
	if n == 0 {
		return ErrBatchEmpty
	}
	if n > MaxBatchSize {
		return ErrBatchTooLarge.With("size", n, "max", MaxBatchSize)
	}
	sess, err := activeSession(ctx.State, p.SessionID, game.Address)
	if err != nil {
		return err
	}
	breaker, err := loadOpenBreaker(ctx.State)
	if err != nil {
		return err
	}

	var sum, burned uint64
	for i := range p.Players {
		total, err := creditOne(ctx, sess, p.Players[i], p.Amounts[i], p.BurnAmounts[i], p.Won[i])
		if err != nil {
			if e, ok := err.(*Error); ok {
				return e.With("index", i)
			}
			return err
		}
		sum += total
		burned += p.BurnAmounts[i]
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}
	if err := recordPayout(ctx, breaker, sum); err != nil {
		return err
	}
	ctx.Emit(events.EventBatchPayout, map[string]any{
		"session":    sess.ID,
		"game":       sess.Game,
		"count":      n,
		"amount":     sum - burned,
		"burn":       burned,
		"total_paid": sess.TotalPaid,
	})
	return nil
}

// creditOne applies a single payout to sess in memory and to every other
// record in state. The caller persists sess. It returns amount+burn.
func creditOne(ctx *vm.Context, sess *core.Session, player string, amount, burn uint64, won bool) (uint64, error) {
	if !crypto.IsAddress(player) {
		return 0, ErrInvalidAddress.With("player", player)
	}
	total, ok := addChecked(amount, burn)
	if !ok {
		return 0, ErrAmountOverflow.With("player", player)
	}
	if won && total == 0 {
		return 0, ErrZeroAmount.With("player", player)
	}
	if total > sess.Remaining() {
		return 0, ErrPayoutExceedsPool.With(
			"session", sess.ID, "requested", total, "remaining", sess.Remaining())
	}
	sess.TotalPaid += total

	if burn > 0 {
		if err := custody.Burn(ctx.State, burn); err != nil {
			return 0, err
		}
	}
	if amount > 0 {
		if _, err := creditPending(ctx.State, player, amount); err != nil {
			return 0, err
		}
	}

	stats, err := ctx.State.GetPlayerStats(player)
	if err != nil {
		return 0, err
	}
	stats.Player = player
	if won {
		stats.Wins = incSat32(stats.Wins)
		stats.Won = addSat(stats.Won, scaleStat(amount, core.StatsUnit))
	} else {
		stats.Losses = incSat32(stats.Losses)
	}
	if err := ctx.State.SetPlayerStats(stats); err != nil {
		return 0, err
	}

	return total, updateTotals(ctx.State, func(t *core.ArcadeTotals) error {
		t.Outstanding -= total
		t.Pending += amount
		t.Burned += burn
		t.PaidOut += amount
		return nil
	})
}
