// Package events delivers structured notifications about ledger state
// changes to off-engine observers. Notifications are outputs only; nothing
// in the engine reads them back.
package events

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventTxExecuted    EventType = "tx_executed"
	EventTxFailed      EventType = "tx_failed"
	EventTokenTransfer EventType = "token_transfer"
	EventTokenApproval EventType = "token_approval"

	EventGameRegistered   EventType = "game_registered"
	EventGameUnregistered EventType = "game_unregistered"
	EventGameConfigUpdate EventType = "game_config_updated"
	EventGamePaused       EventType = "game_paused"
	EventGameUnpaused     EventType = "game_unpaused"
	EventGameQuarantined  EventType = "game_quarantined"

	EventSessionOpened    EventType = "session_opened"
	EventEntryProcessed   EventType = "entry_processed"
	EventPayoutCredited   EventType = "payout_credited"
	EventBatchPayout      EventType = "batch_payout"
	EventRefundIssued     EventType = "refund_issued"
	EventBatchRefund      EventType = "batch_refund"
	EventSessionSettled   EventType = "session_settled"
	EventSessionCancelled EventType = "session_cancelled"
	EventPayoutWithdrawn  EventType = "payout_withdrawn"

	EventRoleChanged     EventType = "role_changed"
	EventEnginePaused    EventType = "engine_paused"
	EventEngineUnpaused  EventType = "engine_unpaused"
	EventParamsUpdated   EventType = "params_updated"
	EventPositionUpdated EventType = "position_updated"

	EventBreakerTripped EventType = "breaker_tripped"
	EventResetProposed  EventType = "breaker_reset_proposed"
	EventResetVetoed    EventType = "breaker_reset_vetoed"
	EventResetExecuted  EventType = "breaker_reset_executed"
	EventCountersReset  EventType = "payout_counters_reset"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a lexically sortable event id.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot halt block production.
func (e *Emitter) Emit(ev Event) {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("component", "events").Str("event", string(ev.Type)).
						Interface("panic", r).Msg("handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
