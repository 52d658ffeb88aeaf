package arcade

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

// handleProcessEntry pulls a player's entry into custody, skims the rake and
// credits the remainder to the session's prize pool. The first entry for an
// unseen session id opens it under the calling game.
func handleProcessEntry(ctx *vm.Context, payload json.RawMessage) error {
	var p core.EntryPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	game, params, err := callerGame(ctx)
	if err != nil {
		return err
	}
	if !crypto.IsAddress(p.Player) {
		return ErrInvalidAddress.With("player", p.Player)
	}
	sess, opened, err := openOrLoadSession(ctx, p.SessionID, game.Address)
	if err != nil {
		return err
	}

	cfg := game.Config
	switch {
	case p.Amount == 0:
		return ErrZeroAmount
	case p.Amount < cfg.MinEntry:
		return ErrEntryBelowMin.With("amount", p.Amount, "min", cfg.MinEntry)
	case p.Amount > cfg.MaxEntry:
		return ErrEntryAboveMax.With("amount", p.Amount, "max", cfg.MaxEntry)
	}

	if cfg.RequiresPosition {
		alive, err := oracle.IsAlive(ctx.State, p.Player)
		if err != nil {
			return err
		}
		if !alive {
			return ErrPositionRequired.With("player", p.Player)
		}
	}

	stats, err := ctx.State.GetPlayerStats(p.Player)
	if err != nil {
		return err
	}
	now := ctx.Now()
	if params.MinPlayInterval > 0 && stats.LastPlayAt != 0 {
		if elapsed := now - stats.LastPlayAt; elapsed < params.MinPlayInterval {
			wait := time.Duration(params.MinPlayInterval - elapsed)
			return ErrRateLimited.With("player", p.Player, "retry_after", wait.String())
		}
	}

	if err := custody.Pull(ctx.State, p.Player, p.Amount); err != nil {
		return err
	}
	rake := mulBps(p.Amount, cfg.RakeBps)
	burn := mulBps(rake, cfg.BurnBps)
	toTreasury := rake - burn
	net := p.Amount - rake
	if burn > 0 {
		if err := custody.Burn(ctx.State, burn); err != nil {
			return err
		}
	}
	if toTreasury > 0 {
		if params.Treasury == "" {
			return ErrTreasuryUnset
		}
		if err := custody.Push(ctx.State, params.Treasury, toTreasury); err != nil {
			return err
		}
	}

	dep, err := ctx.State.GetDeposit(sess.ID, p.Player)
	switch {
	case errors.Is(err, core.ErrNotFound):
		dep = &core.Deposit{SessionID: sess.ID, Player: p.Player}
		sess.Players++
	case err != nil:
		return err
	}
	pool, ok := addChecked(sess.PrizePool, net)
	if !ok {
		return ErrAmountOverflow.With("session", sess.ID)
	}
	depNet, ok1 := addChecked(dep.Net, net)
	depGross, ok2 := addChecked(dep.Gross, p.Amount)
	if !ok1 || !ok2 {
		return ErrAmountOverflow.With("session", sess.ID, "player", p.Player)
	}
	sess.PrizePool = pool
	dep.Net, dep.Gross = depNet, depGross
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}
	if err := ctx.State.SetDeposit(dep); err != nil {
		return err
	}

	stats.Player = p.Player
	stats.GamesPlayed = incSat32(stats.GamesPlayed)
	stats.Wagered = addSat(stats.Wagered, scaleStat(p.Amount, core.StatsUnit))
	stats.LastPlayAt = now
	if err := ctx.State.SetPlayerStats(stats); err != nil {
		return err
	}

	if err := updateTotals(ctx.State, func(t *core.ArcadeTotals) error {
		t.Volume = addSat(t.Volume, p.Amount)
		t.Raked += rake
		t.Burned += burn
		t.ToTreasury += toTreasury
		t.Outstanding += net
		if opened {
			t.Sessions++
		}
		return nil
	}); err != nil {
		return err
	}

	if opened {
		ctx.Emit(events.EventSessionOpened, map[string]any{"session": sess.ID, "game": sess.Game})
	}
	ctx.Emit(events.EventEntryProcessed, map[string]any{
		"session":     sess.ID,
		"game":        sess.Game,
		"player":      p.Player,
		"amount":      p.Amount,
		"net":         net,
		"rake":        rake,
		"burn":        burn,
		"to_treasury": toTreasury,
		"prize_pool":  sess.PrizePool,
	})
	return nil
}

// openOrLoadSession returns the ACTIVE session id owned by game, creating it
// when the id has never been used. opened reports whether it was created.
func openOrLoadSession(ctx *vm.Context, id, game string) (sess *core.Session, opened bool, err error) {
	if id == "" {
		return nil, false, ErrInvalidSessionID
	}
	sess, err = ctx.State.GetSession(id)
	if err == nil {
		if sess.Game != game {
			return nil, false, ErrNotSessionOwner.With("session", id)
		}
		if sess.State != core.SessionActive {
			return nil, false, ErrSessionNotActive.With("session", id, "state", sess.State)
		}
		return sess, false, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, false, err
	}
	active, err := ctx.State.GetActiveSessions(game)
	if err != nil {
		return nil, false, err
	}
	sess = &core.Session{
		ID:          id,
		Game:        game,
		State:       core.SessionActive,
		ActiveIndex: len(active),
		CreatedAt:   ctx.Now(),
	}
	if err := ctx.State.SetActiveSessions(game, append(active, id)); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}
