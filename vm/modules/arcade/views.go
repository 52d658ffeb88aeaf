package arcade

import (
	"errors"

	"github.com/tolelom/tolarcade/core"
)

// Read-only views. They never write to st and may be called by anyone.

func GetSession(st core.State, id string) (*core.Session, error) {
	return loadSession(st, id)
}

func GetGame(st core.State, address string) (*core.Game, error) {
	return loadGame(st, address)
}

func GetDeposit(st core.State, sessionID, player string) (*core.Deposit, error) {
	return loadDeposit(st, sessionID, player)
}

// PendingPayout is the amount address can currently withdraw.
func PendingPayout(st core.State, address string) (uint64, error) {
	return st.GetPending(address)
}

func PlayerStats(st core.State, player string) (*core.PlayerStats, error) {
	ps, err := st.GetPlayerStats(player)
	if err != nil {
		return nil, err
	}
	ps.Player = player
	return ps, nil
}

// RemainingCapacity is how much more the session can pay out. Terminal
// sessions have no capacity.
func RemainingCapacity(st core.State, id string) (uint64, error) {
	s, err := loadSession(st, id)
	if err != nil {
		return 0, err
	}
	if s.State != core.SessionActive {
		return 0, nil
	}
	return s.Remaining(), nil
}

func ActiveSessions(st core.State, game string) ([]string, error) {
	return st.GetActiveSessions(game)
}

// BreakerView is the circuit breaker with its derived timelock status.
type BreakerView struct {
	core.CircuitBreaker
	Status BreakerStatus              `json:"status"`
	Reset  *core.BreakerResetProposal `json:"reset,omitempty"`
}

func Breaker(st core.State, now int64) (*BreakerView, error) {
	b, err := st.GetBreaker()
	if err != nil {
		return nil, err
	}
	var prop *core.BreakerResetProposal
	if b.Proposal != "" {
		prop, err = st.GetProposal(b.Proposal)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}
	return &BreakerView{
		CircuitBreaker: *b,
		Status:         Status(b, prop, now),
		Reset:          prop,
	}, nil
}

func GetProposal(st core.State, id string) (*core.BreakerResetProposal, error) {
	return loadProposal(st, id)
}

func Params(st core.State) (*core.ArcadeParams, error) {
	return st.GetParams()
}

func Totals(st core.State) (*core.ArcadeTotals, error) {
	return st.GetTotals()
}

// Solvency compares custody holdings with the engine's liabilities.
type Solvency struct {
	Escrow      uint64 `json:"escrow"`
	Pending     uint64 `json:"pending"`
	Outstanding uint64 `json:"outstanding"`
	OK          bool   `json:"ok"`
}

// CheckSolvency reports whether custody covers every pending withdrawal plus
// the unpaid remainder of every unsettled session.
func CheckSolvency(st core.State) (*Solvency, error) {
	bal, err := custody.Balance(st)
	if err != nil {
		return nil, err
	}
	t, err := st.GetTotals()
	if err != nil {
		return nil, err
	}
	need, ok := addChecked(t.Pending, t.Outstanding)
	return &Solvency{
		Escrow:      bal,
		Pending:     t.Pending,
		Outstanding: t.Outstanding,
		OK:          ok && bal >= need,
	}, nil
}
