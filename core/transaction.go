package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolarcade/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer TxType = "transfer"
	TxApprove  TxType = "approve"

	// Game registry (admin)
	TxRegisterGame     TxType = "register_game"
	TxUnregisterGame   TxType = "unregister_game"
	TxUpdateGameConfig TxType = "update_game_config"
	TxPauseGame        TxType = "pause_game"
	TxUnpauseGame      TxType = "unpause_game"

	// Game-facing
	TxProcessEntry         TxType = "process_entry"
	TxCreditPayout         TxType = "credit_payout"
	TxBatchCreditPayouts   TxType = "batch_credit_payouts"
	TxEmergencyRefund      TxType = "emergency_refund"
	TxBatchEmergencyRefund TxType = "batch_emergency_refund"
	TxSettleSession        TxType = "settle_session"
	TxCancelSession        TxType = "cancel_session"

	// Permissionless
	TxClaimExpiredRefund TxType = "claim_expired_refund"
	TxWithdrawPayout     TxType = "withdraw_payout"

	// Admin / guardian
	TxGrantRole           TxType = "grant_role"
	TxRevokeRole          TxType = "revoke_role"
	TxPauseEngine         TxType = "pause_engine"
	TxUnpauseEngine       TxType = "unpause_engine"
	TxUpdateParams        TxType = "update_params"
	TxQuarantineGame      TxType = "quarantine_game"
	TxSetPosition         TxType = "set_position"
	TxTripCircuitBreaker  TxType = "trip_circuit_breaker"
	TxProposeBreakerReset TxType = "propose_breaker_reset"
	TxVetoBreakerReset    TxType = "veto_breaker_reset"
	TxExecuteBreakerReset TxType = "execute_breaker_reset"
	TxResetPayoutCounters TxType = "reset_payout_counters"
)

// Transaction is the atomic unit of work on the ledger.
// From holds the sender's full hex-encoded ed25519 public key (64 chars) and
// is the caller identity every handler authorizes against.
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ApprovePayload sets the amount Spender may pull from the sender.
type ApprovePayload struct {
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

// GamePayload targets a game by address.
type GamePayload struct {
	Game string `json:"game"`
}

// GameConfigPayload registers a game or replaces its config.
type GameConfigPayload struct {
	Game   string     `json:"game"`
	Config GameConfig `json:"config"`
}

// EntryPayload deposits Amount from Player into SessionID.
type EntryPayload struct {
	Player    string `json:"player"`
	Amount    uint64 `json:"amount"`
	SessionID string `json:"session_id"`
}

// PayoutPayload credits Amount to Player and burns BurnAmount from the pool.
type PayoutPayload struct {
	SessionID  string `json:"session_id"`
	Player     string `json:"player"`
	Amount     uint64 `json:"amount"`
	BurnAmount uint64 `json:"burn_amount"`
	Won        bool   `json:"won"`
}

// BatchPayoutPayload carries parallel arrays; all must have equal length.
type BatchPayoutPayload struct {
	SessionID   string   `json:"session_id"`
	Players     []string `json:"players"`
	Amounts     []uint64 `json:"amounts"`
	BurnAmounts []uint64 `json:"burn_amounts"`
	Won         []bool   `json:"won"`
}

// RefundPayload refunds Amount of Player's net deposit.
type RefundPayload struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
	Amount    uint64 `json:"amount"`
}

// BatchRefundPayload refunds each listed player's whole net deposit.
type BatchRefundPayload struct {
	SessionID string   `json:"session_id"`
	Players   []string `json:"players"`
}

// SessionPayload targets a session by id.
type SessionPayload struct {
	SessionID string `json:"session_id"`
}

// ClaimRefundPayload claims a cancelled-session refund for Player.
type ClaimRefundPayload struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
}

// RolePayload grants or revokes Role for Address.
type RolePayload struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

// ParamsPayload updates the mutable engine params. Empty or nil fields are
// left unchanged.
type ParamsPayload struct {
	Treasury         string  `json:"treasury,omitempty"`
	MinPlayInterval  *int64  `json:"min_play_interval,omitempty"`
	BreakerThreshold *uint64 `json:"breaker_threshold,omitempty"`
	BreakerWindow    *int64  `json:"breaker_window,omitempty"`
}

// PositionPayload mirrors a player's staking position.
type PositionPayload struct {
	Player string `json:"player"`
	Alive  bool   `json:"alive"`
}

// ProposalPayload targets a breaker reset proposal.
type ProposalPayload struct {
	ProposalID string `json:"proposal_id"`
}

// EmptyPayload is used by operations that take no arguments.
type EmptyPayload struct{}
