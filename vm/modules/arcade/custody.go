package arcade

import (
	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/vm/modules/economy"
)

// Custody moves tokens in and out of engine custody. Implementations must
// either fully apply a call or fail without effect.
type Custody interface {
	// Pull moves amount from payer into custody (transferFrom).
	Pull(st core.State, payer string, amount uint64) error
	// Push moves amount from custody to recipient (transfer).
	Push(st core.State, recipient string, amount uint64) error
	// Burn destroys amount held in custody.
	Burn(st core.State, amount uint64) error
	// Balance is the amount currently held in custody.
	Balance(st core.State) (uint64, error)
}

// EscrowCustody keeps custody in the core.EscrowAddress account of the
// native token ledger. Pulls consume the payer's allowance to the escrow.
type EscrowCustody struct{}

func (EscrowCustody) Pull(st core.State, payer string, amount uint64) error {
	if err := economy.MoveFrom(st, payer, core.EscrowAddress, amount); err != nil {
		return ErrCustody.With("op", "pull", "from", payer).Wrap(err)
	}
	return nil
}

func (EscrowCustody) Push(st core.State, recipient string, amount uint64) error {
	if recipient == "" {
		return ErrInvalidAddress.With("op", "push")
	}
	if err := economy.Move(st, core.EscrowAddress, recipient, amount); err != nil {
		return ErrCustody.With("op", "push", "to", recipient).Wrap(err)
	}
	return nil
}

func (EscrowCustody) Burn(st core.State, amount uint64) error {
	if err := economy.Burn(st, core.EscrowAddress, amount); err != nil {
		return ErrCustody.With("op", "burn").Wrap(err)
	}
	return nil
}

func (EscrowCustody) Balance(st core.State) (uint64, error) {
	acc, err := st.GetAccount(core.EscrowAddress)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// PositionOracle answers whether a player holds an active position in the
// external staking system.
type PositionOracle interface {
	IsAlive(st core.State, player string) (bool, error)
}

// MirroredPositions reads the position records admins mirror into state
// with TxSetPosition.
type MirroredPositions struct{}

func (MirroredPositions) IsAlive(st core.State, player string) (bool, error) {
	p, err := st.GetPosition(player)
	if err != nil {
		return false, err
	}
	return p.Alive, nil
}

var (
	custody Custody        = EscrowCustody{}
	oracle  PositionOracle = MirroredPositions{}
)

// UseCustody replaces the custody backend and returns a func restoring the
// previous one. Call it before the executor starts.
func UseCustody(c Custody) (restore func()) {
	prev := custody
	custody = c
	return func() { custody = prev }
}

// UsePositionOracle replaces the position oracle and returns a restore func.
func UsePositionOracle(o PositionOracle) (restore func()) {
	prev := oracle
	oracle = o
	return func() { oracle = prev }
}
