package arcade

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/vm"
)

// BreakerStatus is the derived state of the circuit-breaker timelock.
type BreakerStatus string

const (
	BreakerNormal       BreakerStatus = "NORMAL"
	BreakerTripped      BreakerStatus = "TRIPPED"
	BreakerResetPending BreakerStatus = "RESET_PENDING"
	BreakerReady        BreakerStatus = "READY"
)

// loadOpenBreaker returns the breaker, failing if payouts are halted.
func loadOpenBreaker(st core.State) (*core.CircuitBreaker, error) {
	b, err := st.GetBreaker()
	if err != nil {
		return nil, err
	}
	if b.Tripped {
		return nil, ErrBreakerTripped.With("since", b.LastTripAt)
	}
	return b, nil
}

// recordPayout adds paid to the rolling window and trips the breaker once
// the window total exceeds the configured threshold. The payout that
// crosses the threshold still succeeds; the next one is refused.
func recordPayout(ctx *vm.Context, b *core.CircuitBreaker, paid uint64) error {
	params, err := ctx.State.GetParams()
	if err != nil {
		return err
	}
	if params.BreakerThreshold == 0 || paid == 0 {
		return nil
	}
	now := ctx.Now()
	if b.WindowStart == 0 || (params.BreakerWindow > 0 && now-b.WindowStart >= params.BreakerWindow) {
		b.WindowStart = now
		b.WindowPaid = 0
	}
	b.WindowPaid = addSat(b.WindowPaid, paid)
	if b.WindowPaid > params.BreakerThreshold {
		trip(b, now)
		ctx.Emit(events.EventBreakerTripped, map[string]any{
			"reason":      "threshold",
			"window_paid": b.WindowPaid,
			"threshold":   params.BreakerThreshold,
			"trip_count":  b.TripCount,
		})
	}
	return ctx.State.SetBreaker(b)
}

func trip(b *core.CircuitBreaker, now int64) {
	b.Tripped = true
	b.LastTripAt = now
	b.TripCount++
}

func handleTripBreaker(ctx *vm.Context, payload json.RawMessage) error {
	if err := requireRole(ctx, RoleAdmin, RoleGuardian); err != nil {
		return err
	}
	b, err := ctx.State.GetBreaker()
	if err != nil {
		return err
	}
	trip(b, ctx.Now())
	if err := ctx.State.SetBreaker(b); err != nil {
		return err
	}
	ctx.Emit(events.EventBreakerTripped, map[string]any{
		"reason":     "manual",
		"by":         ctx.Caller(),
		"trip_count": b.TripCount,
	})
	return nil
}

// ProposalID derives the id of a reset proposal. Mixing in the trip time
// keeps ids unique across trips even for the same proposer and timestamp.
func ProposalID(proposer string, proposedAt, tripAt int64) string {
	return crypto.HashParts(
		proposer,
		strconv.FormatInt(proposedAt, 10),
		strconv.FormatInt(tripAt, 10),
	)
}

func handleProposeReset(ctx *vm.Context, payload json.RawMessage) error {
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	b, err := ctx.State.GetBreaker()
	if err != nil {
		return err
	}
	if !b.Tripped {
		return ErrBreakerNotTripped
	}
	params, err := ctx.State.GetParams()
	if err != nil {
		return err
	}
	delay, expiry := params.ResetDelay, params.ResetExpiry
	if delay <= 0 {
		delay = int64(DefaultResetDelay)
	}
	if expiry <= 0 {
		expiry = int64(DefaultResetExpiry)
	}

	now := ctx.Now()
	id := ProposalID(ctx.Caller(), now, b.LastTripAt)
	if _, err := ctx.State.GetProposal(id); err == nil {
		return ErrProposalExists.With("proposal", id)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	prop := &core.BreakerResetProposal{
		ID:           id,
		Proposer:     ctx.Caller(),
		ProposedAt:   now,
		ExecuteAfter: now + delay,
		ExpiresAt:    now + expiry,
		TripAt:       b.LastTripAt,
	}
	if err := ctx.State.SetProposal(prop); err != nil {
		return err
	}
	b.Proposal = id
	if err := ctx.State.SetBreaker(b); err != nil {
		return err
	}
	ctx.Emit(events.EventResetProposed, map[string]any{
		"proposal":      id,
		"proposer":      prop.Proposer,
		"execute_after": prop.ExecuteAfter,
		"expires_at":    prop.ExpiresAt,
	})
	return nil
}

func loadProposal(st core.State, id string) (*core.BreakerResetProposal, error) {
	p, err := st.GetProposal(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrProposalNotFound.With("proposal", id)
	}
	return p, err
}

func handleVetoReset(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ProposalPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleGuardian); err != nil {
		return err
	}
	prop, err := loadProposal(ctx.State, p.ProposalID)
	if err != nil {
		return err
	}
	if prop.Executed || prop.Vetoed {
		return ErrProposalFinalized.With("proposal", prop.ID)
	}
	prop.Vetoed = true
	if err := ctx.State.SetProposal(prop); err != nil {
		return err
	}
	ctx.Emit(events.EventResetVetoed, map[string]any{"proposal": prop.ID, "guardian": ctx.Caller()})
	return nil
}

func handleExecuteReset(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ProposalPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	prop, err := loadProposal(ctx.State, p.ProposalID)
	if err != nil {
		return err
	}
	now := ctx.Now()
	switch {
	case prop.Executed:
		return ErrProposalExecuted.With("proposal", prop.ID)
	case prop.Vetoed:
		return ErrProposalVetoed.With("proposal", prop.ID)
	case now < prop.ExecuteAfter:
		return ErrTimelockActive.With("proposal", prop.ID, "execute_after", prop.ExecuteAfter)
	case now > prop.ExpiresAt:
		return ErrProposalExpired.With("proposal", prop.ID, "expired_at", prop.ExpiresAt)
	}
	b, err := ctx.State.GetBreaker()
	if err != nil {
		return err
	}
	if b.LastTripAt != prop.TripAt {
		return ErrBreakerRetripped.With("proposal", prop.ID, "last_trip_at", b.LastTripAt)
	}
	b.Tripped = false
	b.WindowStart = 0
	b.WindowPaid = 0
	prop.Executed = true
	if err := ctx.State.SetBreaker(b); err != nil {
		return err
	}
	if err := ctx.State.SetProposal(prop); err != nil {
		return err
	}
	ctx.Emit(events.EventResetExecuted, map[string]any{"proposal": prop.ID, "by": ctx.Caller()})
	return nil
}

// handleResetCounters clears the rolling window without touching the
// tripped flag.
func handleResetCounters(ctx *vm.Context, payload json.RawMessage) error {
	if err := requireRole(ctx, RoleAdmin); err != nil {
		return err
	}
	b, err := ctx.State.GetBreaker()
	if err != nil {
		return err
	}
	b.WindowStart = 0
	b.WindowPaid = 0
	if err := ctx.State.SetBreaker(b); err != nil {
		return err
	}
	ctx.Emit(events.EventCountersReset, map[string]any{"by": ctx.Caller(), "tripped": b.Tripped})
	return nil
}

// Status derives the timelock state of b given an optional proposal.
func Status(b *core.CircuitBreaker, prop *core.BreakerResetProposal, now int64) BreakerStatus {
	if !b.Tripped {
		return BreakerNormal
	}
	if prop == nil || prop.Vetoed || prop.Executed || prop.TripAt != b.LastTripAt || now > prop.ExpiresAt {
		return BreakerTripped
	}
	if now < prop.ExecuteAfter {
		return BreakerResetPending
	}
	return BreakerReady
}
