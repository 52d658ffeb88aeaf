package wallet

import "github.com/tolelom/tolarcade/core"

// Arcade builds signed arcade transactions for one chain. Each call takes
// the account nonce to sign with.
type Arcade struct {
	w       *Wallet
	chainID string
	fee     uint64
}

// Arcade returns a builder that signs for chainID with the given fee.
func (w *Wallet) Arcade(chainID string, fee uint64) *Arcade {
	return &Arcade{w: w, chainID: chainID, fee: fee}
}

func (a *Arcade) tx(typ core.TxType, nonce uint64, payload any) (*core.Transaction, error) {
	return a.w.NewTx(a.chainID, typ, nonce, a.fee, payload)
}

// ---- Game-facing ----

func (a *Arcade) ProcessEntry(nonce uint64, sessionID, player string, amount uint64) (*core.Transaction, error) {
	return a.tx(core.TxProcessEntry, nonce, core.EntryPayload{Player: player, Amount: amount, SessionID: sessionID})
}

func (a *Arcade) CreditPayout(nonce uint64, p core.PayoutPayload) (*core.Transaction, error) {
	return a.tx(core.TxCreditPayout, nonce, p)
}

func (a *Arcade) BatchCreditPayouts(nonce uint64, p core.BatchPayoutPayload) (*core.Transaction, error) {
	return a.tx(core.TxBatchCreditPayouts, nonce, p)
}

func (a *Arcade) EmergencyRefund(nonce uint64, sessionID, player string, amount uint64) (*core.Transaction, error) {
	return a.tx(core.TxEmergencyRefund, nonce, core.RefundPayload{SessionID: sessionID, Player: player, Amount: amount})
}

func (a *Arcade) BatchEmergencyRefund(nonce uint64, sessionID string, players []string) (*core.Transaction, error) {
	return a.tx(core.TxBatchEmergencyRefund, nonce, core.BatchRefundPayload{SessionID: sessionID, Players: players})
}

func (a *Arcade) SettleSession(nonce uint64, sessionID string) (*core.Transaction, error) {
	return a.tx(core.TxSettleSession, nonce, core.SessionPayload{SessionID: sessionID})
}

func (a *Arcade) CancelSession(nonce uint64, sessionID string) (*core.Transaction, error) {
	return a.tx(core.TxCancelSession, nonce, core.SessionPayload{SessionID: sessionID})
}

// ---- Permissionless ----

func (a *Arcade) ClaimExpiredRefund(nonce uint64, sessionID, player string) (*core.Transaction, error) {
	return a.tx(core.TxClaimExpiredRefund, nonce, core.ClaimRefundPayload{SessionID: sessionID, Player: player})
}

func (a *Arcade) WithdrawPayout(nonce uint64) (*core.Transaction, error) {
	return a.tx(core.TxWithdrawPayout, nonce, core.EmptyPayload{})
}

// ---- Admin and guardian ----

func (a *Arcade) RegisterGame(nonce uint64, game string, cfg core.GameConfig) (*core.Transaction, error) {
	return a.tx(core.TxRegisterGame, nonce, core.GameConfigPayload{Game: game, Config: cfg})
}

func (a *Arcade) UpdateGameConfig(nonce uint64, game string, cfg core.GameConfig) (*core.Transaction, error) {
	return a.tx(core.TxUpdateGameConfig, nonce, core.GameConfigPayload{Game: game, Config: cfg})
}

// GameOp builds any transaction that only names a game: unregister, pause,
// unpause or quarantine.
func (a *Arcade) GameOp(typ core.TxType, nonce uint64, game string) (*core.Transaction, error) {
	return a.tx(typ, nonce, core.GamePayload{Game: game})
}

func (a *Arcade) GrantRole(nonce uint64, role, address string) (*core.Transaction, error) {
	return a.tx(core.TxGrantRole, nonce, core.RolePayload{Role: role, Address: address})
}

func (a *Arcade) RevokeRole(nonce uint64, role, address string) (*core.Transaction, error) {
	return a.tx(core.TxRevokeRole, nonce, core.RolePayload{Role: role, Address: address})
}

func (a *Arcade) UpdateParams(nonce uint64, p core.ParamsPayload) (*core.Transaction, error) {
	return a.tx(core.TxUpdateParams, nonce, p)
}

func (a *Arcade) SetPosition(nonce uint64, player string, alive bool) (*core.Transaction, error) {
	return a.tx(core.TxSetPosition, nonce, core.PositionPayload{Player: player, Alive: alive})
}

// Simple builds a payload-less transaction such as pause_engine,
// trip_circuit_breaker or reset_payout_counters.
func (a *Arcade) Simple(typ core.TxType, nonce uint64) (*core.Transaction, error) {
	return a.tx(typ, nonce, core.EmptyPayload{})
}

// Proposal builds veto_breaker_reset or execute_breaker_reset.
func (a *Arcade) Proposal(typ core.TxType, nonce uint64, id string) (*core.Transaction, error) {
	return a.tx(typ, nonce, core.ProposalPayload{ProposalID: id})
}
