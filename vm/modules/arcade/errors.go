package arcade

import (
	"fmt"
	"sort"
	"strings"
)

// Kind groups failure codes so callers can branch on the class of problem,
// e.g. retry later on KindRate but never on KindBounds.
type Kind string

const (
	KindRegistry      Kind = "registry"
	KindSession       Kind = "session"
	KindBounds        Kind = "bounds"
	KindRate          Kind = "rate"
	KindPosition      Kind = "position"
	KindBatch         Kind = "batch"
	KindAuthorization Kind = "authorization"
	KindTimelock      Kind = "timelock"
	KindBreaker       Kind = "breaker"
	KindPaused        Kind = "paused"
	KindCustody       Kind = "custody"
	KindPayload       Kind = "payload"
)

// Code is a machine-readable failure code, unique across kinds.
type Code string

// Error is the failure type returned by every arcade operation. Two errors
// match under errors.Is when their codes are equal, so sentinels can be
// compared against instances that carry metadata.
type Error struct {
	Kind     Kind
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func newError(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(e.Metadata[k])
		}
		b.WriteByte(')')
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) ErrorKind() string { return string(e.Kind) }
func (e *Error) ErrorCode() string { return string(e.Code) }

// With returns a copy of e annotated with key/value pairs.
func (e *Error) With(kv ...any) *Error {
	cp := *e
	cp.Metadata = make(map[string]string, len(e.Metadata)+len(kv)/2)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		cp.Metadata[fmt.Sprint(kv[i])] = fmt.Sprint(kv[i+1])
	}
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

var (
	ErrGameNotRegistered     = newError(KindRegistry, "GAME_NOT_REGISTERED", "game not registered")
	ErrGameAlreadyRegistered = newError(KindRegistry, "GAME_ALREADY_REGISTERED", "game already registered")
	ErrGamePaused            = newError(KindRegistry, "GAME_PAUSED", "game is paused")
	ErrInvalidGameConfig     = newError(KindRegistry, "INVALID_GAME_CONFIG", "invalid game config")
	ErrInvalidAddress        = newError(KindRegistry, "INVALID_ADDRESS", "invalid address")

	ErrInvalidSessionID    = newError(KindSession, "INVALID_SESSION_ID", "session id required")
	ErrSessionNotFound     = newError(KindSession, "SESSION_NOT_FOUND", "session not found")
	ErrNotSessionOwner     = newError(KindSession, "NOT_SESSION_OWNER", "caller does not own session")
	ErrSessionNotActive    = newError(KindSession, "SESSION_NOT_ACTIVE", "session is not active")
	ErrSessionSettled      = newError(KindSession, "SESSION_SETTLED", "session already settled")
	ErrSessionNotCancelled = newError(KindSession, "SESSION_NOT_CANCELLED", "session is not cancelled")

	ErrZeroAmount                = newError(KindBounds, "ZERO_AMOUNT", "amount must be > 0")
	ErrEntryBelowMin             = newError(KindBounds, "ENTRY_BELOW_MIN", "entry below game minimum")
	ErrEntryAboveMax             = newError(KindBounds, "ENTRY_ABOVE_MAX", "entry above game maximum")
	ErrPayoutExceedsPool         = newError(KindBounds, "PAYOUT_EXCEEDS_POOL", "payout would exceed prize pool")
	ErrRefundExceedsDeposit      = newError(KindBounds, "REFUND_EXCEEDS_DEPOSIT", "refund would exceed net deposit")
	ErrRefundsBlockedAfterPayout = newError(KindBounds, "REFUNDS_BLOCKED_AFTER_PAYOUTS", "refunds blocked after payouts")
	ErrNoDeposit                 = newError(KindBounds, "NO_DEPOSIT", "player has no refundable deposit")
	ErrAlreadyRefunded           = newError(KindBounds, "ALREADY_REFUNDED", "player already refunded for session")
	ErrNothingToWithdraw         = newError(KindBounds, "NOTHING_TO_WITHDRAW", "no pending payout")
	ErrAmountOverflow            = newError(KindBounds, "AMOUNT_OVERFLOW", "amount overflows ledger counters")

	ErrRateLimited      = newError(KindRate, "RATE_LIMITED", "player acted too recently")
	ErrPositionRequired = newError(KindPosition, "POSITION_REQUIRED", "player has no active position")

	ErrBatchLengthMismatch = newError(KindBatch, "BATCH_LENGTH_MISMATCH", "batch arrays differ in length")
	ErrBatchEmpty          = newError(KindBatch, "BATCH_EMPTY", "batch is empty")
	ErrBatchTooLarge       = newError(KindBatch, "BATCH_TOO_LARGE", "batch exceeds maximum size")

	ErrUnauthorized     = newError(KindAuthorization, "UNAUTHORIZED", "caller lacks required role")
	ErrUnknownRole      = newError(KindAuthorization, "UNKNOWN_ROLE", "unknown role")
	ErrCannotRevokeSelf = newError(KindAuthorization, "CANNOT_REVOKE_SELF", "admins cannot revoke their own admin role")

	ErrProposalNotFound  = newError(KindTimelock, "PROPOSAL_NOT_FOUND", "reset proposal not found")
	ErrProposalExecuted  = newError(KindTimelock, "PROPOSAL_ALREADY_EXECUTED", "reset proposal already executed")
	ErrProposalVetoed    = newError(KindTimelock, "PROPOSAL_VETOED", "reset proposal vetoed")
	ErrTimelockActive    = newError(KindTimelock, "TIMELOCK_ACTIVE", "reset proposal timelock active")
	ErrProposalExpired   = newError(KindTimelock, "PROPOSAL_EXPIRED", "reset proposal expired")
	ErrBreakerRetripped  = newError(KindTimelock, "BREAKER_RETRIPPED", "breaker tripped again since proposal")
	ErrProposalFinalized = newError(KindTimelock, "PROPOSAL_FINALIZED", "reset proposal already vetoed or executed")
	ErrProposalExists    = newError(KindTimelock, "PROPOSAL_EXISTS", "reset proposal already exists")

	ErrBreakerTripped    = newError(KindBreaker, "CIRCUIT_BREAKER_TRIPPED", "payouts halted by circuit breaker")
	ErrBreakerNotTripped = newError(KindBreaker, "CIRCUIT_BREAKER_NOT_TRIPPED", "circuit breaker is not tripped")

	ErrEnginePaused = newError(KindPaused, "ENGINE_PAUSED", "engine is paused")

	ErrCustody       = newError(KindCustody, "CUSTODY_FAILED", "token custody transfer failed")
	ErrTreasuryUnset = newError(KindCustody, "TREASURY_UNSET", "treasury address not configured")

	ErrBadPayload = newError(KindPayload, "BAD_PAYLOAD", "malformed payload")
)
