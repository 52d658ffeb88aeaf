package arcade_test

import (
	"errors"
	"testing"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm/modules/arcade"
)

func TestQuarantineCancelsActiveSessions(t *testing.T) {
	h := newHarness(t)
	h.register(h.game, noRake)
	p := h.player(1000)
	h.enter(h.game, p, "s1", 100)
	h.enter(h.game, p, "s2", 200)

	h.ok(h.admin, core.TxQuarantineGame, core.GamePayload{Game: h.game.PubKey()})

	for _, id := range []string{"s1", "s2"} {
		if st := h.session(id).State; st != core.SessionCancelled {
			t.Errorf("%s: got %s want cancelled", id, st)
		}
	}
	g, _ := arcade.GetGame(h.st, h.game.PubKey())
	if !g.Config.Paused {
		t.Error("game should be paused")
	}
	if ids, _ := arcade.ActiveSessions(h.st, h.game.PubKey()); len(ids) != 0 {
		t.Errorf("active sessions: %v", ids)
	}
	h.fails(h.game, core.TxProcessEntry,
		core.EntryPayload{Player: p.PubKey(), Amount: 100, SessionID: "s3"}, arcade.ErrGamePaused)

	// Depositors can still recover their funds.
	h.ok(p, core.TxClaimExpiredRefund, core.ClaimRefundPayload{SessionID: "s1", Player: p.PubKey()})
	h.ok(p, core.TxClaimExpiredRefund, core.ClaimRefundPayload{SessionID: "s2", Player: p.PubKey()})
	if h.pending(p) != 300 {
		t.Errorf("pending: got %d want 300", h.pending(p))
	}
	if h.countEvents(events.EventGameQuarantined) != 1 || h.countEvents(events.EventSessionCancelled) != 2 {
		t.Error("expected quarantine and two cancellation events")
	}
	h.solvent()
}

func TestConfigUpdateKeepsQuarantine(t *testing.T) {
	h := newHarness(t)
	h.register(h.game, noRake)
	p := h.player(1000)
	h.ok(h.admin, core.TxQuarantineGame, core.GamePayload{Game: h.game.PubKey()})

	cfg := noRake
	cfg.MaxEntry = 2000
	h.ok(h.admin, core.TxUpdateGameConfig, core.GameConfigPayload{Game: h.game.PubKey(), Config: cfg})

	g, _ := arcade.GetGame(h.st, h.game.PubKey())
	if !g.Config.Paused || g.Config.MaxEntry != 2000 {
		t.Errorf("config after update: %+v", g.Config)
	}
	h.fails(h.game, core.TxProcessEntry,
		core.EntryPayload{Player: p.PubKey(), Amount: 100, SessionID: "s1"}, arcade.ErrGamePaused)
	if n := h.countEvents(events.EventGameUnpaused); n != 0 {
		t.Errorf("unpause events: %d", n)
	}

	// An update cannot pause a live game either.
	h.ok(h.admin, core.TxUnpauseGame, core.GamePayload{Game: h.game.PubKey()})
	cfg.Paused = true
	h.ok(h.admin, core.TxUpdateGameConfig, core.GameConfigPayload{Game: h.game.PubKey(), Config: cfg})
	h.enter(h.game, p, "s1", 100)
}

func TestQuarantineByGuardian(t *testing.T) {
	h := newHarness(t)
	h.register(h.game, noRake)
	h.ok(h.guardian, core.TxQuarantineGame, core.GamePayload{Game: h.game.PubKey()})
	h.fails(h.newWallet(0), core.TxQuarantineGame, core.GamePayload{Game: h.game.PubKey()}, arcade.ErrUnauthorized)
}

func TestRegistryLifecycle(t *testing.T) {
	h := newHarness(t)
	h.register(h.game, stdConfig)
	h.fails(h.admin, core.TxRegisterGame,
		core.GameConfigPayload{Game: h.game.PubKey(), Config: stdConfig}, arcade.ErrGameAlreadyRegistered)
	h.fails(h.guardian, core.TxRegisterGame,
		core.GameConfigPayload{Game: h.newWallet(0).PubKey(), Config: stdConfig}, arcade.ErrUnauthorized)
	h.fails(h.admin, core.TxRegisterGame,
		core.GameConfigPayload{Game: "not-a-key", Config: stdConfig}, arcade.ErrInvalidAddress)

	bad := []core.GameConfig{
		{MinEntry: 10, MaxEntry: 5},
		{MinEntry: 0, MaxEntry: 0},
		{MaxEntry: 10, RakeBps: 10_001},
		{MaxEntry: 10, BurnBps: 10_001},
	}
	for _, cfg := range bad {
		h.fails(h.admin, core.TxUpdateGameConfig,
			core.GameConfigPayload{Game: h.game.PubKey(), Config: cfg}, arcade.ErrInvalidGameConfig)
	}

	updated := stdConfig
	updated.MaxEntry = 5000
	h.ok(h.admin, core.TxUpdateGameConfig, core.GameConfigPayload{Game: h.game.PubKey(), Config: updated})
	g, _ := arcade.GetGame(h.st, h.game.PubKey())
	if g.Config.MaxEntry != 5000 {
		t.Errorf("max entry: got %d", g.Config.MaxEntry)
	}

	p := h.player(1000)
	h.ok(h.admin, core.TxPauseGame, core.GamePayload{Game: h.game.PubKey()})
	h.fails(h.game, core.TxProcessEntry,
		core.EntryPayload{Player: p.PubKey(), Amount: 100, SessionID: "s1"}, arcade.ErrGamePaused)
	h.ok(h.admin, core.TxUnpauseGame, core.GamePayload{Game: h.game.PubKey()})
	h.enter(h.game, p, "s1", 100)

	h.ok(h.admin, core.TxUnregisterGame, core.GamePayload{Game: h.game.PubKey()})
	if _, err := arcade.GetGame(h.st, h.game.PubKey()); !errors.Is(err, arcade.ErrGameNotRegistered) {
		t.Errorf("GetGame after unregister: %v", err)
	}
	if st := h.session("s1").State; st != core.SessionCancelled {
		t.Errorf("unregister should cancel sessions, got %s", st)
	}
	h.fails(h.admin, core.TxUnregisterGame, core.GamePayload{Game: h.game.PubKey()}, arcade.ErrGameNotRegistered)
	h.fails(h.admin, core.TxPauseGame, core.GamePayload{Game: h.game.PubKey()}, arcade.ErrGameNotRegistered)
	h.ok(p, core.TxClaimExpiredRefund, core.ClaimRefundPayload{SessionID: "s1", Player: p.PubKey()})
	h.solvent()
}

func TestEnginePause(t *testing.T) {
	h := newHarness(t)
	h.register(h.game, noRake)
	p := h.player(1000)
	h.enter(h.game, p, "s1", 100)
	h.payout(h.game, p, "s1", 40, 0)

	h.ok(h.guardian, core.TxPauseEngine, core.EmptyPayload{})
	h.fails(h.game, core.TxProcessEntry,
		core.EntryPayload{Player: p.PubKey(), Amount: 10, SessionID: "s1"}, arcade.ErrEnginePaused)
	h.fails(h.game, core.TxSettleSession, core.SessionPayload{SessionID: "s1"}, arcade.ErrEnginePaused)
	h.ok(p, core.TxWithdrawPayout, core.EmptyPayload{})

	h.fails(h.guardian, core.TxUnpauseEngine, core.EmptyPayload{}, arcade.ErrUnauthorized)
	h.ok(h.admin, core.TxUnpauseEngine, core.EmptyPayload{})
	h.ok(h.game, core.TxSettleSession, core.SessionPayload{SessionID: "s1"})
}

func TestRoles(t *testing.T) {
	h := newHarness(t)
	newAdmin := h.newWallet(0)

	h.ok(h.admin, core.TxGrantRole, core.RolePayload{Role: arcade.RoleAdmin, Address: newAdmin.PubKey()})
	if ok, _ := h.st.HasRole(arcade.RoleAdmin, newAdmin.PubKey()); !ok {
		t.Fatal("grant failed")
	}
	h.fails(h.admin, core.TxRevokeRole,
		core.RolePayload{Role: arcade.RoleAdmin, Address: h.admin.PubKey()}, arcade.ErrCannotRevokeSelf)
	h.fails(h.admin, core.TxGrantRole,
		core.RolePayload{Role: "owner", Address: newAdmin.PubKey()}, arcade.ErrUnknownRole)
	h.fails(h.guardian, core.TxGrantRole,
		core.RolePayload{Role: arcade.RoleGuardian, Address: newAdmin.PubKey()}, arcade.ErrUnauthorized)

	h.ok(newAdmin, core.TxRevokeRole, core.RolePayload{Role: arcade.RoleAdmin, Address: h.admin.PubKey()})
	if ok, _ := h.st.HasRole(arcade.RoleAdmin, h.admin.PubKey()); ok {
		t.Error("revoke failed")
	}
	h.fails(h.admin, core.TxRegisterGame,
		core.GameConfigPayload{Game: h.game.PubKey(), Config: noRake}, arcade.ErrUnauthorized)
}

func TestUpdateParams(t *testing.T) {
	h := newHarness(t)
	newTreasury := h.newWallet(0)
	threshold := uint64(500)
	h.ok(h.admin, core.TxUpdateParams, core.ParamsPayload{Treasury: newTreasury.PubKey(), BreakerThreshold: &threshold})

	params, _ := arcade.Params(h.st)
	if params.Treasury != newTreasury.PubKey() || params.BreakerThreshold != 500 {
		t.Errorf("params: %+v", params)
	}
	if params.ResetDelay != int64(arcade.DefaultResetDelay) {
		t.Error("untouched fields must be kept")
	}
	neg := int64(-1)
	h.fails(h.admin, core.TxUpdateParams, core.ParamsPayload{MinPlayInterval: &neg}, arcade.ErrBadPayload)
	h.fails(h.guardian, core.TxUpdateParams, core.ParamsPayload{BreakerThreshold: &threshold}, arcade.ErrUnauthorized)
}

func TestMalformedPayload(t *testing.T) {
	h := newHarness(t)
	h.register(h.game, noRake)
	h.fails(h.game, core.TxProcessEntry, []int{1, 2}, arcade.ErrBadPayload)
}
