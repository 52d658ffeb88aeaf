// Package arcade is the session accounting engine. Registered games run
// bounded-stakes sessions against the shared escrow; the engine is the only
// authority on prize pools, deposits, payouts and refunds.
//
// Every handler runs inside one executor transaction: any returned error
// rolls back all of its writes, so handlers validate and mutate freely
// without undo logic.
package arcade

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/vm"
)

const (
	// MaxBatchSize caps the items processed by one batch operation.
	MaxBatchSize = 100

	// BpsDenominator is the basis-point scale for rake and burn fractions.
	BpsDenominator = 10_000

	DefaultResetDelay  = 12 * time.Hour
	DefaultResetExpiry = 48 * time.Hour
)

func init() {
	vm.Register(core.TxRegisterGame, handleRegisterGame)
	vm.Register(core.TxUnregisterGame, handleUnregisterGame)
	vm.Register(core.TxUpdateGameConfig, handleUpdateGameConfig)
	vm.Register(core.TxPauseGame, handlePauseGame)
	vm.Register(core.TxUnpauseGame, handleUnpauseGame)

	vm.Register(core.TxProcessEntry, handleProcessEntry)
	vm.Register(core.TxCreditPayout, handleCreditPayout)
	vm.Register(core.TxBatchCreditPayouts, handleBatchCreditPayouts)
	vm.Register(core.TxEmergencyRefund, handleEmergencyRefund)
	vm.Register(core.TxBatchEmergencyRefund, handleBatchEmergencyRefund)
	vm.Register(core.TxClaimExpiredRefund, handleClaimExpiredRefund)
	vm.Register(core.TxSettleSession, handleSettleSession)
	vm.Register(core.TxCancelSession, handleCancelSession)
	vm.Register(core.TxWithdrawPayout, handleWithdrawPayout)

	vm.Register(core.TxGrantRole, handleGrantRole)
	vm.Register(core.TxRevokeRole, handleRevokeRole)
	vm.Register(core.TxPauseEngine, handlePauseEngine)
	vm.Register(core.TxUnpauseEngine, handleUnpauseEngine)
	vm.Register(core.TxUpdateParams, handleUpdateParams)
	vm.Register(core.TxQuarantineGame, handleQuarantineGame)
	vm.Register(core.TxSetPosition, handleSetPosition)

	vm.Register(core.TxTripCircuitBreaker, handleTripBreaker)
	vm.Register(core.TxProposeBreakerReset, handleProposeReset)
	vm.Register(core.TxVetoBreakerReset, handleVetoReset)
	vm.Register(core.TxExecuteBreakerReset, handleExecuteReset)
	vm.Register(core.TxResetPayoutCounters, handleResetCounters)
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return ErrBadPayload.Wrap(err)
	}
	return nil
}

// callerGame loads the calling game and checks that both the engine and the
// game accept game-facing operations.
func callerGame(ctx *vm.Context) (*core.Game, *core.ArcadeParams, error) {
	params, err := ctx.State.GetParams()
	if err != nil {
		return nil, nil, err
	}
	if params.Paused {
		return nil, nil, ErrEnginePaused
	}
	game, err := loadGame(ctx.State, ctx.Caller())
	if err != nil {
		return nil, nil, err
	}
	if game.Config.Paused {
		return nil, nil, ErrGamePaused.With("game", game.Address)
	}
	return game, params, nil
}

func loadGame(st core.State, address string) (*core.Game, error) {
	g, err := st.GetGame(address)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrGameNotRegistered.With("game", address)
	}
	return g, err
}

func loadSession(st core.State, id string) (*core.Session, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	s, err := st.GetSession(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrSessionNotFound.With("session", id)
	}
	return s, err
}

// ownedSession loads id and checks that caller owns it.
func ownedSession(st core.State, id, caller string) (*core.Session, error) {
	s, err := loadSession(st, id)
	if err != nil {
		return nil, err
	}
	if s.Game != caller {
		return nil, ErrNotSessionOwner.With("session", id)
	}
	return s, nil
}

// activeSession loads an owned session and requires it to be ACTIVE.
func activeSession(st core.State, id, caller string) (*core.Session, error) {
	s, err := ownedSession(st, id, caller)
	if err != nil {
		return nil, err
	}
	if s.State != core.SessionActive {
		return nil, ErrSessionNotActive.With("session", id, "state", s.State)
	}
	return s, nil
}

func loadDeposit(st core.State, sessionID, player string) (*core.Deposit, error) {
	d, err := st.GetDeposit(sessionID, player)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrNoDeposit.With("session", sessionID, "player", player)
	}
	return d, err
}

// updateTotals applies fn to the global counters and stores the result.
func updateTotals(st core.State, fn func(t *core.ArcadeTotals) error) error {
	t, err := st.GetTotals()
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return st.SetTotals(t)
}

func creditPending(st core.State, player string, amount uint64) (uint64, error) {
	bal, err := st.GetPending(player)
	if err != nil {
		return 0, err
	}
	next, ok := addChecked(bal, amount)
	if !ok {
		return 0, ErrAmountOverflow.With("player", player)
	}
	if err := st.SetPending(player, next); err != nil {
		return 0, err
	}
	return next, nil
}
