package arcade

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

func validateConfig(c core.GameConfig) error {
	switch {
	case c.MaxEntry == 0:
		return ErrInvalidGameConfig.With("reason", "max_entry must be > 0")
	case c.MinEntry > c.MaxEntry:
		return ErrInvalidGameConfig.With("reason", "min_entry exceeds max_entry")
	case c.RakeBps > BpsDenominator:
		return ErrInvalidGameConfig.With("reason", "rake_bps exceeds 10000")
	case c.BurnBps > BpsDenominator:
		return ErrInvalidGameConfig.With("reason", "burn_bps exceeds 10000")
	}
	return nil
}

func handleRegisterGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.GameConfigPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	if !crypto.IsAddress(p.Game) {
		return ErrInvalidAddress.With("game", p.Game)
	}
	if _, err := ctx.State.GetGame(p.Game); err == nil {
		return ErrGameAlreadyRegistered.With("game", p.Game)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if err := validateConfig(p.Config); err != nil {
		return err
	}
	g := &core.Game{Address: p.Game, Config: p.Config, RegisteredAt: ctx.Now()}
	if err := ctx.State.SetGame(g); err != nil {
		return err
	}
	ctx.Emit(events.EventGameRegistered, gameEventData(g))
	return nil
}

// handleUnregisterGame removes the game and cancels its active sessions so
// depositors can still reach claimExpiredRefund.
func handleUnregisterGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.GamePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	if _, err := loadGame(ctx.State, p.Game); err != nil {
		return err
	}
	cancelled, err := cancelAllSessions(ctx, p.Game)
	if err != nil {
		return err
	}
	if err := ctx.State.DeleteGame(p.Game); err != nil {
		return err
	}
	ctx.Emit(events.EventGameUnregistered, map[string]any{"game": p.Game, "cancelled_sessions": cancelled})
	return nil
}

func handleUpdateGameConfig(ctx *vm.Context, payload json.RawMessage) error {
	var p core.GameConfigPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	if err := validateConfig(p.Config); err != nil {
		return err
	}
	// Paused is owned by pause, unpause and quarantine.
	p.Config.Paused = g.Config.Paused
	g.Config = p.Config
	if err := ctx.State.SetGame(g); err != nil {
		return err
	}
	ctx.Emit(events.EventGameConfigUpdate, gameEventData(g))
	return nil
}

func handlePauseGame(ctx *vm.Context, payload json.RawMessage) error {
	return setGamePaused(ctx, payload, true)
}

func handleUnpauseGame(ctx *vm.Context, payload json.RawMessage) error {
	return setGamePaused(ctx, payload, false)
}

func setGamePaused(ctx *vm.Context, payload json.RawMessage, paused bool) error {
	var p core.GamePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	g.Config.Paused = paused
	if err := ctx.State.SetGame(g); err != nil {
		return err
	}
	typ := events.EventGameUnpaused
	if paused {
		typ = events.EventGamePaused
	}
	ctx.Emit(typ, map[string]any{"game": g.Address})
	return nil
}

func gameEventData(g *core.Game) map[string]any {
	return map[string]any{
		"game":              g.Address,
		"min_entry":         g.Config.MinEntry,
		"max_entry":         g.Config.MaxEntry,
		"rake_bps":          g.Config.RakeBps,
		"burn_bps":          g.Config.BurnBps,
		"requires_position": g.Config.RequiresPosition,
		"paused":            g.Config.Paused,
	}
}
