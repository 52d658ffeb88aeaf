package arcade

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

// settleable loads an owned session that can still be finalized.
func settleable(st core.State, id, caller string) (*core.Session, error) {
	sess, err := ownedSession(st, id, caller)
	if err != nil {
		return nil, err
	}
	switch sess.State {
	case core.SessionActive:
		return sess, nil
	case core.SessionSettled:
		return nil, ErrSessionSettled.With("session", id)
	default:
		return nil, ErrSessionNotActive.With("session", id, "state", sess.State)
	}
}

func handleSettleSession(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SessionPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	game, params, err := callerGame(ctx)
	if err != nil {
		return err
	}
	sess, err := settleable(ctx.State, p.SessionID, game.Address)
	if err != nil {
		return err
	}
	swept := sess.Remaining()
	if swept > 0 {
		if params.Treasury == "" {
			return ErrTreasuryUnset
		}
		if err := custody.Push(ctx.State, params.Treasury, swept); err != nil {
			return err
		}
	}
	if err := finalize(ctx, sess, core.SessionSettled); err != nil {
		return err
	}
	if err := updateTotals(ctx.State, func(t *core.ArcadeTotals) error {
		t.Outstanding -= swept
		t.ToTreasury += swept
		return nil
	}); err != nil {
		return err
	}
	ctx.Emit(events.EventSessionSettled, map[string]any{
		"session":    sess.ID,
		"game":       sess.Game,
		"prize_pool": sess.PrizePool,
		"total_paid": sess.TotalPaid,
		"swept":      swept,
	})
	return nil
}

func handleCancelSession(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SessionPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	game, _, err := callerGame(ctx)
	if err != nil {
		return err
	}
	sess, err := settleable(ctx.State, p.SessionID, game.Address)
	if err != nil {
		return err
	}
	if err := finalize(ctx, sess, core.SessionCancelled); err != nil {
		return err
	}
	emitCancelled(ctx, sess, "game")
	return nil
}

// cancelAllSessions cancels every active session of game, returning the ids.
func cancelAllSessions(ctx *vm.Context, game string) ([]string, error) {
	ids, err := ctx.State.GetActiveSessions(game)
	if err != nil {
		return nil, err
	}
	ids = append([]string(nil), ids...)
	for _, id := range ids {
		sess, err := ctx.State.GetSession(id)
		if err != nil {
			return nil, fmt.Errorf("active session %s: %w", id, err)
		}
		if err := finalize(ctx, sess, core.SessionCancelled); err != nil {
			return nil, err
		}
		emitCancelled(ctx, sess, "admin")
	}
	return ids, nil
}

// finalize moves sess into a terminal state and drops it from its game's
// active index with swap-and-pop.
func finalize(ctx *vm.Context, sess *core.Session, to core.SessionState) error {
	active, err := ctx.State.GetActiveSessions(sess.Game)
	if err != nil {
		return err
	}
	i := sess.ActiveIndex
	if i < 0 || i >= len(active) || active[i] != sess.ID {
		return fmt.Errorf("active index corrupt for session %s", sess.ID)
	}
	last := len(active) - 1
	if i != last {
		moved, err := ctx.State.GetSession(active[last])
		if err != nil {
			return err
		}
		moved.ActiveIndex = i
		if err := ctx.State.SetSession(moved); err != nil {
			return err
		}
		active[i] = moved.ID
	}
	if err := ctx.State.SetActiveSessions(sess.Game, active[:last]); err != nil {
		return err
	}
	sess.State = to
	sess.SettledAt = ctx.Now()
	sess.ActiveIndex = -1
	return ctx.State.SetSession(sess)
}

func emitCancelled(ctx *vm.Context, sess *core.Session, by string) {
	ctx.Emit(events.EventSessionCancelled, map[string]any{
		"session":    sess.ID,
		"game":       sess.Game,
		"prize_pool": sess.PrizePool,
		"by":         by,
	})
}
