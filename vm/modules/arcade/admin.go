package arcade

import (
	"encoding/json"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

func handleGrantRole(ctx *vm.Context, payload json.RawMessage) error {
	return setRole(ctx, payload, true)
}

func handleRevokeRole(ctx *vm.Context, payload json.RawMessage) error {
	return setRole(ctx, payload, false)
}

func setRole(ctx *vm.Context, payload json.RawMessage, granted bool) error {
	var p core.RolePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	if !knownRole(p.Role) {
		return ErrUnknownRole.With("role", p.Role)
	}
	if !crypto.IsAddress(p.Address) {
		return ErrInvalidAddress.With("address", p.Address)
	}
	if !granted && p.Role == RoleAdmin && p.Address == ctx.Caller() {
		return ErrCannotRevokeSelf
	}
	if err := ctx.State.SetRole(p.Role, p.Address, granted); err != nil {
		return err
	}
	ctx.Emit(events.EventRoleChanged, map[string]any{
		"role":    p.Role,
		"address": p.Address,
		"granted": granted,
		"by":      ctx.Caller(),
	})
	return nil
}

func handlePauseEngine(ctx *vm.Context, payload json.RawMessage) error {
	if err := requireRole(ctx, RoleAdmin, RoleGuardian); err != nil {
		return err
	}
	return setEnginePaused(ctx, true)
}

// handleUnpauseEngine is admin-only: a guardian can stop the engine but not
// restart it.
func handleUnpauseEngine(ctx *vm.Context, payload json.RawMessage) error {
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	return setEnginePaused(ctx, false)
}

func setEnginePaused(ctx *vm.Context, paused bool) error {
	params, err := ctx.State.GetParams()
	if err != nil {
		return err
	}
	params.Paused = paused
	if err := ctx.State.SetParams(params); err != nil {
		return err
	}
	typ := events.EventEngineUnpaused
	if paused {
		typ = events.EventEnginePaused
	}
	ctx.Emit(typ, map[string]any{"by": ctx.Caller()})
	return nil
}

func handleUpdateParams(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ParamsPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	params, err := ctx.State.GetParams()
	if err != nil {
		return err
	}
	if p.Treasury != "" {
		if !crypto.IsAddress(p.Treasury) {
			return ErrInvalidAddress.With("treasury", p.Treasury)
		}
		params.Treasury = p.Treasury
	}
	if p.MinPlayInterval != nil {
		if *p.MinPlayInterval < 0 {
			return ErrBadPayload.With("min_play_interval", *p.MinPlayInterval)
		}
		params.MinPlayInterval = *p.MinPlayInterval
	}
	if p.BreakerThreshold != nil {
		params.BreakerThreshold = *p.BreakerThreshold
	}
	if p.BreakerWindow != nil {
		if *p.BreakerWindow < 0 {
			return ErrBadPayload.With("breaker_window", *p.BreakerWindow)
		}
		params.BreakerWindow = *p.BreakerWindow
	}
	if err := ctx.State.SetParams(params); err != nil {
		return err
	}
	ctx.Emit(events.EventParamsUpdated, map[string]any{
		"treasury":          params.Treasury,
		"min_play_interval": params.MinPlayInterval,
		"breaker_threshold": params.BreakerThreshold,
		"breaker_window":    params.BreakerWindow,
	})
	return nil
}

// handleQuarantineGame pauses a game and force-cancels all of its active
// sessions. Deposits stay claimable through claimExpiredRefund.
func handleQuarantineGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.GamePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin, RoleGuardian); err != nil {
		return err
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	g.Config.Paused = true
	if err := ctx.State.SetGame(g); err != nil {
		return err
	}
	cancelled, err := cancelAllSessions(ctx, g.Address)
	if err != nil {
		return err
	}
	ctx.Emit(events.EventGameQuarantined, map[string]any{
		"game":               g.Address,
		"cancelled_sessions": cancelled,
		"by":                 ctx.Caller(),
	})
	return nil
}

func handleSetPosition(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PositionPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	if !crypto.IsAddress(p.Player) {
		return ErrInvalidAddress.With("player", p.Player)
	}
	if err := ctx.State.SetPosition(&core.Position{Player: p.Player, Alive: p.Alive}); err != nil {
		return err
	}
	ctx.Emit(events.EventPositionUpdated, map[string]any{"player": p.Player, "alive": p.Alive})
	return nil
}
