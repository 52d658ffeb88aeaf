package arcade_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/events"
	"github.com/tolelom/tolarcade/internal/testutil"
	"github.com/tolelom/tolarcade/storage"
	"github.com/tolelom/tolarcade/vm"
	"github.com/tolelom/tolarcade/vm/modules/arcade"
	"github.com/tolelom/tolarcade/wallet"

	_ "github.com/tolelom/tolarcade/vm/modules/economy"
)

const testChain = "arcade-test"

// stdConfig is 5% rake, half of it burned, entries between 10 and 1000.
var stdConfig = core.GameConfig{MinEntry: 10, MaxEntry: 1000, RakeBps: 500, BurnBps: 5000}

type harness struct {
	t        *testing.T
	st       *storage.StateDB
	exec     *vm.Executor
	emitter  *events.Emitter
	now      time.Time
	height   int64
	nonces   map[string]uint64
	admin    *wallet.Wallet
	guardian *wallet.Wallet
	treasury *wallet.Wallet
	game     *wallet.Wallet
	events   []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		st:      testutil.NewStateDB(),
		emitter: events.NewEmitter(),
		now:     time.Unix(1_700_000_000, 0),
		nonces:  make(map[string]uint64),
	}
	h.exec = vm.NewExecutor(h.st, h.emitter)
	h.emitter.SubscribeAll(func(ev events.Event) { h.events = append(h.events, ev) })
	h.admin = h.newWallet(0)
	h.guardian = h.newWallet(0)
	h.treasury = h.newWallet(0)
	h.game = h.newWallet(0)

	must(t, h.st.SetRole(arcade.RoleAdmin, h.admin.PubKey(), true))
	must(t, h.st.SetRole(arcade.RoleGuardian, h.guardian.PubKey(), true))
	must(t, h.st.SetParams(&core.ArcadeParams{
		Version:     storage.SchemaVersion,
		Treasury:    h.treasury.PubKey(),
		ResetDelay:  int64(arcade.DefaultResetDelay),
		ResetExpiry: int64(arcade.DefaultResetExpiry),
	}))
	return h
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func (h *harness) newWallet(balance uint64) *wallet.Wallet {
	h.t.Helper()
	w, err := wallet.Generate()
	if err != nil {
		h.t.Fatal(err)
	}
	if balance > 0 {
		must(h.t, h.st.SetAccount(&core.Account{Address: w.PubKey(), Balance: balance}))
	}
	return w
}

// player returns a funded wallet that has approved the escrow for its
// whole balance.
func (h *harness) player(balance uint64) *wallet.Wallet {
	h.t.Helper()
	w := h.newWallet(balance)
	h.ok(w, core.TxApprove, core.ApprovePayload{Spender: core.EscrowAddress, Amount: balance})
	return w
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// run signs payload as w and executes it in a fresh single-tx block.
func (h *harness) run(w *wallet.Wallet, typ core.TxType, payload any) error {
	h.t.Helper()
	tx, err := w.NewTx(testChain, typ, h.nonces[w.PubKey()], 0, payload)
	if err != nil {
		h.t.Fatalf("build %s: %v", typ, err)
	}
	h.nonces[w.PubKey()]++
	h.height++
	block := core.NewBlock(h.height, "", h.admin.PubKey(), []*core.Transaction{tx}, h.now)
	return h.exec.ExecuteTx(block, tx)
}

func (h *harness) ok(w *wallet.Wallet, typ core.TxType, payload any) {
	h.t.Helper()
	if err := h.run(w, typ, payload); err != nil {
		h.t.Fatalf("%s: %v", typ, err)
	}
}

func (h *harness) fails(w *wallet.Wallet, typ core.TxType, payload any, want error) {
	h.t.Helper()
	err := h.run(w, typ, payload)
	if err == nil {
		h.t.Fatalf("%s: expected %v, got success", typ, want)
	}
	if !errors.Is(err, want) {
		h.t.Fatalf("%s: got %v, want %v", typ, err, want)
	}
}

func (h *harness) register(game *wallet.Wallet, cfg core.GameConfig) {
	h.t.Helper()
	h.ok(h.admin, core.TxRegisterGame, core.GameConfigPayload{Game: game.PubKey(), Config: cfg})
}

func (h *harness) enter(game, player *wallet.Wallet, session string, amount uint64) {
	h.t.Helper()
	h.ok(game, core.TxProcessEntry, core.EntryPayload{Player: player.PubKey(), Amount: amount, SessionID: session})
}

func (h *harness) payout(game, player *wallet.Wallet, session string, amount, burn uint64) {
	h.t.Helper()
	h.ok(game, core.TxCreditPayout, core.PayoutPayload{
		SessionID: session, Player: player.PubKey(), Amount: amount, BurnAmount: burn, Won: true,
	})
}

func (h *harness) session(id string) *core.Session {
	h.t.Helper()
	s, err := arcade.GetSession(h.st, id)
	if err != nil {
		h.t.Fatalf("GetSession(%s): %v", id, err)
	}
	return s
}

func (h *harness) deposit(session string, player *wallet.Wallet) *core.Deposit {
	h.t.Helper()
	d, err := arcade.GetDeposit(h.st, session, player.PubKey())
	if err != nil {
		h.t.Fatalf("GetDeposit(%s): %v", session, err)
	}
	return d
}

func (h *harness) balance(addr string) uint64 {
	h.t.Helper()
	acc, err := h.st.GetAccount(addr)
	if err != nil {
		h.t.Fatal(err)
	}
	return acc.Balance
}

func (h *harness) pending(w *wallet.Wallet) uint64 {
	h.t.Helper()
	v, err := arcade.PendingPayout(h.st, w.PubKey())
	if err != nil {
		h.t.Fatal(err)
	}
	return v
}

// solvent asserts that custody covers every liability.
func (h *harness) solvent() {
	h.t.Helper()
	s, err := arcade.CheckSolvency(h.st)
	if err != nil {
		h.t.Fatal(err)
	}
	if !s.OK {
		h.t.Fatalf("insolvent: escrow %d < pending %d + outstanding %d", s.Escrow, s.Pending, s.Outstanding)
	}
}

func (h *harness) countEvents(typ events.EventType) int {
	n := 0
	for _, ev := range h.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
