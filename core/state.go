package core

// Account holds a participant's token balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key, or a reserved system
// address such as EscrowAddress.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// EscrowAddress is the custody account that holds every token the arcade
// engine is responsible for. Nobody can sign for it.
const EscrowAddress = "arcade:escrow"

// Allowance is the amount Spender may pull from Owner's account.
type Allowance struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

// GameConfig holds the economic parameters of a registered game.
// RakeBps is the fraction of every entry diverted from the prize pool;
// BurnBps is the fraction of that rake that is destroyed (the rest goes to
// the treasury). Both are basis points out of 10_000.
type GameConfig struct {
	MinEntry         uint64 `json:"min_entry"`
	MaxEntry         uint64 `json:"max_entry"`
	RakeBps          uint64 `json:"rake_bps"`
	BurnBps          uint64 `json:"burn_bps"`
	RequiresPosition bool   `json:"requires_position"`
	Paused           bool   `json:"paused"`
}

// Game is a registered caller together with its config.
type Game struct {
	Address      string     `json:"address"`
	Config       GameConfig `json:"config"`
	RegisteredAt int64      `json:"registered_at"`
}

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	SessionNone      SessionState = ""
	SessionActive    SessionState = "active"
	SessionSettled   SessionState = "settled"
	SessionCancelled SessionState = "cancelled"
)

// Terminal reports whether no further payouts or entries are accepted.
func (s SessionState) Terminal() bool {
	return s == SessionSettled || s == SessionCancelled
}

// Session is the ledger record for one game-owned session.
// Invariant: TotalPaid <= PrizePool.
type Session struct {
	ID          string       `json:"id"`
	Game        string       `json:"game"`
	PrizePool   uint64       `json:"prize_pool"`
	TotalPaid   uint64       `json:"total_paid"`
	State       SessionState `json:"state"`
	Players     uint64       `json:"players"` // distinct depositors
	ActiveIndex int          `json:"active_index"`
	CreatedAt   int64        `json:"created_at"`
	SettledAt   int64        `json:"settled_at"` // settlement or cancellation time
}

// Remaining returns the pool still backing future payouts.
func (s *Session) Remaining() uint64 {
	return s.PrizePool - s.TotalPaid
}

// Deposit is the per (session, depositor) record. Net is refundable and
// shrinks with refunds; Gross is written once per entry and never refunded.
type Deposit struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player"`
	Net       uint64 `json:"net"`
	Gross     uint64 `json:"gross"`
	Refunded  bool   `json:"refunded"`
}

// PlayerStats are approximate counters for analytics. Wagered and Won are
// stored in units of StatsUnit and truncated; they must never be used to
// decide solvency.
type PlayerStats struct {
	Player      string `json:"player"`
	GamesPlayed uint32 `json:"games_played"`
	Wagered     uint64 `json:"wagered"`
	Wins        uint32 `json:"wins"`
	Losses      uint32 `json:"losses"`
	Won         uint64 `json:"won"`
	LastPlayAt  int64  `json:"last_play_at"`
}

// StatsUnit is the divisor applied to amounts recorded in PlayerStats.
const StatsUnit = 1000

// CircuitBreaker is the global payout-rate throttle.
type CircuitBreaker struct {
	Tripped     bool   `json:"tripped"`
	LastTripAt  int64  `json:"last_trip_at"`
	TripCount   uint64 `json:"trip_count"`
	WindowStart int64  `json:"window_start"`
	WindowPaid  uint64 `json:"window_paid"`
	Proposal    string `json:"proposal,omitempty"` // latest reset proposal id
}

// BreakerResetProposal is a timelocked request to clear a tripped breaker.
// TripAt pins the trip it was raised against; a later trip invalidates it.
type BreakerResetProposal struct {
	ID           string `json:"id"`
	Proposer     string `json:"proposer"`
	ProposedAt   int64  `json:"proposed_at"`
	ExecuteAfter int64  `json:"execute_after"`
	ExpiresAt    int64  `json:"expires_at"`
	TripAt       int64  `json:"trip_at"`
	Vetoed       bool   `json:"vetoed"`
	Executed     bool   `json:"executed"`
}

// ArcadeParams are engine-wide settings. Durations are nanoseconds to
// match block timestamps.
type ArcadeParams struct {
	Version          int    `json:"version"`
	Treasury         string `json:"treasury"`
	Paused           bool   `json:"paused"`
	MinPlayInterval  int64  `json:"min_play_interval"`
	BreakerThreshold uint64 `json:"breaker_threshold"` // 0 disables automatic trips
	BreakerWindow    int64  `json:"breaker_window"`
	ResetDelay       int64  `json:"reset_delay"`
	ResetExpiry      int64  `json:"reset_expiry"`
}

// ArcadeTotals are exact global counters maintained alongside the ledger.
// Pending + Outstanding is the engine's total liability.
type ArcadeTotals struct {
	Volume      uint64 `json:"volume"`
	Raked       uint64 `json:"raked"`
	Burned      uint64 `json:"burned"`
	ToTreasury  uint64 `json:"to_treasury"`
	Pending     uint64 `json:"pending"`
	Outstanding uint64 `json:"outstanding"`
	PaidOut     uint64 `json:"paid_out"`
	Sessions    uint64 `json:"sessions"`
}

// Position mirrors a player's standing in the external staking system.
type Position struct {
	Player string `json:"player"`
	Alive  bool   `json:"alive"`
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
// Getters return ErrNotFound for absent keyed records unless documented
// otherwise.
type State interface {
	// Accounts (absent accounts read as zero-value)
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error
	GetAllowance(owner, spender string) (*Allowance, error)
	SetAllowance(a *Allowance) error

	// Roles
	HasRole(role, address string) (bool, error)
	SetRole(role, address string, granted bool) error

	// Games
	GetGame(address string) (*Game, error)
	SetGame(g *Game) error
	DeleteGame(address string) error
	GetActiveSessions(game string) ([]string, error)
	SetActiveSessions(game string, ids []string) error

	// Sessions and deposits
	GetSession(id string) (*Session, error)
	SetSession(s *Session) error
	GetDeposit(sessionID, player string) (*Deposit, error)
	SetDeposit(d *Deposit) error

	// Withdrawal queue (absent balance reads as 0)
	GetPending(address string) (uint64, error)
	SetPending(address string, amount uint64) error

	// Stats, positions (absent records read as zero-value)
	GetPlayerStats(player string) (*PlayerStats, error)
	SetPlayerStats(st *PlayerStats) error
	GetPosition(player string) (*Position, error)
	SetPosition(p *Position) error

	// Engine-wide records (absent records read as zero-value)
	GetParams() (*ArcadeParams, error)
	SetParams(p *ArcadeParams) error
	GetTotals() (*ArcadeTotals, error)
	SetTotals(t *ArcadeTotals) error
	GetBreaker() (*CircuitBreaker, error)
	SetBreaker(b *CircuitBreaker) error
	GetProposal(id string) (*BreakerResetProposal, error)
	SetProposal(p *BreakerResetProposal) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// DiscardSnapshot drops a snapshot after the guarded work succeeded.
	DiscardSnapshot(id int)
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
