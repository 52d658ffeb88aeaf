// Package economy implements the native token: transfers between accounts
// and allowances that let the arcade escrow pull entry fees.
package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

var (
	ErrZeroAmount          = errors.New("amount must be > 0")
	ErrMissingRecipient    = errors.New("recipient address required")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientAllow   = errors.New("insufficient allowance")
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
	vm.Register(core.TxApprove, handleApprove)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return ErrZeroAmount
	}
	if p.To == "" {
		return ErrMissingRecipient
	}
	if err := Move(ctx.State, ctx.Caller(), p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Caller(),
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}

func handleApprove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ApprovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve payload: %w", err)
	}
	if p.Spender == "" {
		return ErrMissingRecipient
	}
	if err := ctx.State.SetAllowance(&core.Allowance{Owner: ctx.Caller(), Spender: p.Spender, Amount: p.Amount}); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenApproval, map[string]any{
		"owner":   ctx.Caller(),
		"spender": p.Spender,
		"amount":  p.Amount,
	})
	return nil
}

// Move transfers amount from one account to another.
func Move(st core.State, from, to string, amount uint64) error {
	if from == to {
		return nil
	}
	sender, err := st.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientBalance, from, sender.Balance, amount)
	}
	recipient, err := st.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance+amount < recipient.Balance {
		return fmt.Errorf("balance overflow for %s", to)
	}
	sender.Balance -= amount
	recipient.Balance += amount
	if err := st.SetAccount(sender); err != nil {
		return err
	}
	return st.SetAccount(recipient)
}

// MoveFrom transfers amount from owner to spender, consuming allowance.
func MoveFrom(st core.State, owner, spender string, amount uint64) error {
	allow, err := st.GetAllowance(owner, spender)
	if err != nil {
		return err
	}
	if allow.Amount < amount {
		return fmt.Errorf("%w: %s approved %d, need %d", ErrInsufficientAllow, owner, allow.Amount, amount)
	}
	allow.Amount -= amount
	if err := st.SetAllowance(allow); err != nil {
		return err
	}
	return Move(st, owner, spender, amount)
}

// Burn destroys amount held by address.
func Burn(st core.State, address string, amount uint64) error {
	acc, err := st.GetAccount(address)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: %s has %d, burn %d", ErrInsufficientBalance, address, acc.Balance, amount)
	}
	acc.Balance -= amount
	return st.SetAccount(acc)
}
