package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
	"github.com/tolelom/tolarcade/internal/testutil"
	"github.com/tolelom/tolarcade/wallet"
)

const chainID = "test-chain"

// TestTransactionSignVerify ensures transaction signing and verification work.
func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}

	tx, err := w.Transfer(chainID, "deadbeef", 100, 0, 0)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tx.ID == "" {
		t.Error("tx ID should be set after signing")
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	// Tamper with the fee to check that verification catches it.
	tx.Fee = 999
	if err := tx.Verify(); err == nil {
		t.Error("tampered tx should fail verification")
	}
}

func TestTransactionHashCoversChainID(t *testing.T) {
	w, _ := wallet.Generate()
	tx, _ := w.Transfer(chainID, "aa", 1, 0, 0)
	other := *tx
	other.ChainID = "other-chain"
	if other.Hash() == tx.Hash() {
		t.Error("chain id must be part of the signed body")
	}
	if err := other.Verify(); err == nil {
		t.Error("retargeted tx should fail verification")
	}
}

func TestTransactionRejectsBadFrom(t *testing.T) {
	tx, err := core.NewTransaction(chainID, core.TxWithdrawPayout, "not-a-key", 0, 0, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Verify(); err == nil {
		t.Error("malformed from should fail verification")
	}
	tx.From = ""
	if err := tx.Verify(); err == nil {
		t.Error("missing from should fail verification")
	}
}

// TestBlockHash ensures that hashing a block is deterministic.
func TestBlockHash(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	block := core.NewBlock(1, "0000", pub.Hex(), nil, time.Unix(100, 0))
	block.Sign(priv)

	if block.Hash == "" {
		t.Error("hash should be set after signing")
	}
	if block.ComputeHash() != block.Hash {
		t.Error("ComputeHash() does not match stored hash")
	}
	if err := block.Verify(pub); err != nil {
		t.Errorf("Verify: %v", err)
	}
	_, other, _ := crypto.GenerateKeyPair()
	if err := block.Verify(other); err == nil {
		t.Error("signature must not verify under another key")
	}
}

func TestBlockSignSealsReceipts(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	block := core.NewBlock(1, "0000", pub.Hex(), nil, time.Unix(100, 0))
	block.Receipts = []*core.Receipt{{TxID: "a", OK: true}, {TxID: "b", Code: "SESSION_NOT_FOUND"}}
	block.Sign(priv)
	sealed := block.Hash

	block.Receipts[1].OK = true
	block.Receipts[1].Code = ""
	if core.ComputeReceiptRoot(block.Receipts) == block.Header.ReceiptRoot {
		t.Error("receipt root must change with receipt outcome")
	}
	block.Sign(priv)
	if block.Hash == sealed {
		t.Error("block hash must cover the receipt root")
	}
}

func TestTxRootOrderSensitive(t *testing.T) {
	a := &core.Transaction{ID: "a"}
	b := &core.Transaction{ID: "b"}
	if core.ComputeTxRoot([]*core.Transaction{a, b}) == core.ComputeTxRoot([]*core.Transaction{b, a}) {
		t.Error("tx root must depend on order")
	}
}

// TestMempool verifies add/remove/pending operations.
func TestMempool(t *testing.T) {
	mp := core.NewMempool()
	w, _ := wallet.Generate()

	tx, _ := w.Transfer(chainID, "aa", 1, 0, 0)
	if err := mp.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mp.Size() != 1 {
		t.Errorf("size: got %d want 1", mp.Size())
	}
	if err := mp.Add(tx); !errors.Is(err, core.ErrDuplicateTx) {
		t.Errorf("duplicate: got %v want %v", err, core.ErrDuplicateTx)
	}
	if got, ok := mp.Get(tx.ID); !ok || got != tx {
		t.Error("Get should return the queued tx")
	}

	pending := mp.Pending(10)
	if len(pending) != 1 {
		t.Errorf("pending: got %d want 1", len(pending))
	}

	mp.Remove([]string{tx.ID})
	if mp.Size() != 0 {
		t.Error("pool should be empty after remove")
	}
}

func TestMempoolArrivalOrder(t *testing.T) {
	mp := core.NewMempool()
	a, _ := wallet.Generate()
	b, _ := wallet.Generate()

	var ids []string
	for i := uint64(0); i < 3; i++ {
		for _, w := range []*wallet.Wallet{a, b} {
			tx, _ := w.Arcade(chainID, 0).WithdrawPayout(i)
			if err := mp.Add(tx); err != nil {
				t.Fatal(err)
			}
			ids = append(ids, tx.ID)
		}
	}
	mp.Remove([]string{ids[1]})
	ids = append(ids[:1], ids[2:]...)

	got := mp.Pending(10)
	if len(got) != len(ids) {
		t.Fatalf("pending: got %d want %d", len(got), len(ids))
	}
	for i, tx := range got {
		if tx.ID != ids[i] {
			t.Errorf("pending[%d]: got %s want %s", i, tx.ID, ids[i])
		}
	}
	if n := len(mp.Pending(2)); n != 2 {
		t.Errorf("Pending(2) returned %d", n)
	}
}

func TestMempoolRejections(t *testing.T) {
	mp := core.NewMempool()
	priv, pub, _ := crypto.GenerateKeyPair()

	sign := func(ts time.Time) *core.Transaction {
		tx, _ := core.NewTransaction(chainID, core.TxWithdrawPayout, pub.Hex(), 0, 0, struct{}{})
		tx.Timestamp = ts.UnixNano()
		tx.Sign(priv)
		return tx
	}
	if err := mp.Add(sign(time.Now().Add(-2 * time.Hour))); !errors.Is(err, core.ErrTxExpired) {
		t.Errorf("stale tx: got %v", err)
	}
	if err := mp.Add(sign(time.Now().Add(time.Hour))); !errors.Is(err, core.ErrTxFromFuture) {
		t.Errorf("future tx: got %v", err)
	}

	unsigned := sign(time.Now())
	unsigned.Signature = ""
	if err := mp.Add(unsigned); err == nil {
		t.Error("unsigned tx should be rejected")
	}
}

func TestMempoolSenderQueueLimit(t *testing.T) {
	mp := core.NewMempool()
	w, _ := wallet.Generate()
	var err error
	for nonce := uint64(0); err == nil && nonce < 1000; nonce++ {
		var tx *core.Transaction
		tx, _ = w.Arcade(chainID, 0).WithdrawPayout(nonce)
		err = mp.Add(tx)
	}
	if !errors.Is(err, core.ErrSenderQueueFull) {
		t.Fatalf("got %v want %v", err, core.ErrSenderQueueFull)
	}

	other, _ := wallet.Generate()
	tx, _ := other.Arcade(chainID, 0).WithdrawPayout(0)
	if err := mp.Add(tx); err != nil {
		t.Errorf("other senders must not be affected: %v", err)
	}
}

func newChainBlock(t *testing.T, priv crypto.PrivateKey, height int64, prev string) *core.Block {
	t.Helper()
	b := core.NewBlock(height, prev, priv.Public().Hex(), nil, time.Unix(height, 0))
	b.Sign(priv)
	return b
}

func TestBlockchainLinkage(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	store := testutil.NewMemBlockStore()
	bc := core.NewBlockchain(store)
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}
	if bc.Tip() != nil || bc.Height() != 0 {
		t.Fatal("fresh chain should have no tip")
	}

	genesis := newChainBlock(t, priv, 0, "genesis")
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	b1 := newChainBlock(t, priv, 1, genesis.Hash)
	if err := bc.AddBlock(b1); err != nil {
		t.Fatalf("block 1: %v", err)
	}

	if err := bc.AddBlock(newChainBlock(t, priv, 3, b1.Hash)); !errors.Is(err, core.ErrHeightGap) {
		t.Errorf("gap: got %v", err)
	}
	if err := bc.AddBlock(newChainBlock(t, priv, 2, genesis.Hash)); !errors.Is(err, core.ErrPrevHashMismatch) {
		t.Errorf("fork: got %v", err)
	}
	if bc.Height() != 1 || bc.Tip().Hash != b1.Hash {
		t.Errorf("tip: height %d", bc.Height())
	}

	reopened := core.NewBlockchain(store)
	if err := reopened.Init(); err != nil {
		t.Fatal(err)
	}
	if reopened.Height() != 1 || reopened.Tip().Hash != b1.Hash {
		t.Error("Init should restore the persisted tip")
	}
	got, err := reopened.GetBlockByHeight(0)
	if err != nil || got.Hash != genesis.Hash {
		t.Errorf("GetBlockByHeight(0): %v", err)
	}
	if _, err := reopened.GetBlock("missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing block: got %v", err)
	}
}

// sealedBlock builds a signed block carrying one transfer and its receipt.
func sealedBlock(t *testing.T, w *wallet.Wallet, height int64, prev string) (*core.Block, *core.Transaction) {
	t.Helper()
	tx, err := w.Transfer(chainID, "aa", 1, uint64(height), 0)
	if err != nil {
		t.Fatal(err)
	}
	b := core.NewBlock(height, prev, w.PubKey(), []*core.Transaction{tx}, time.Unix(height, 0))
	b.Receipts = []*core.Receipt{{TxID: tx.ID, Type: tx.Type, OK: true}}
	b.Sign(w.PrivKey())
	return b, tx
}

func TestBlockchainRejectsBadSeal(t *testing.T) {
	w, _ := wallet.Generate()
	cases := map[string]func(*core.Block){
		"missing receipt": func(b *core.Block) { b.Receipts = nil },
		"receipt for other tx": func(b *core.Block) {
			b.Receipts[0].TxID = "other"
			b.Header.ReceiptRoot = core.ComputeReceiptRoot(b.Receipts)
			b.Hash = b.ComputeHash()
		},
		"flipped outcome": func(b *core.Block) { b.Receipts[0].OK = false },
		"dropped tx": func(b *core.Block) {
			b.Transactions, b.Receipts = nil, nil
		},
		"stale hash": func(b *core.Block) { b.Header.StateRoot = "forged" },
	}
	for name, tamper := range cases {
		bc := core.NewBlockchain(testutil.NewMemBlockStore())
		b, _ := sealedBlock(t, w, 0, "genesis")
		tamper(b)
		if err := bc.AddBlock(b); !errors.Is(err, core.ErrBadSeal) {
			t.Errorf("%s: got %v want %v", name, err, core.ErrBadSeal)
		}
		if bc.Tip() != nil {
			t.Errorf("%s: tampered block became the tip", name)
		}
	}
}

func TestBlockchainReceiptAt(t *testing.T) {
	w, _ := wallet.Generate()
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	b0, tx0 := sealedBlock(t, w, 0, "genesis")
	if err := bc.AddBlock(b0); err != nil {
		t.Fatal(err)
	}
	b1, tx1 := sealedBlock(t, w, 1, b0.Hash)
	if err := bc.AddBlock(b1); err != nil {
		t.Fatal(err)
	}

	r, err := bc.ReceiptAt(1, tx1.ID)
	if err != nil || r.TxID != tx1.ID || !r.OK {
		t.Fatalf("ReceiptAt(1): %+v %v", r, err)
	}
	if _, err := bc.ReceiptAt(1, tx0.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("tx from another block: got %v", err)
	}
	if _, err := bc.ReceiptAt(9, tx1.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing height: got %v", err)
	}
}

func TestSessionStateTerminal(t *testing.T) {
	cases := map[core.SessionState]bool{
		core.SessionNone:      false,
		core.SessionActive:    false,
		core.SessionSettled:   true,
		core.SessionCancelled: true,
	}
	for state, want := range cases {
		if got := state.Terminal(); got != want {
			t.Errorf("%q.Terminal() = %v, want %v", state, got, want)
		}
	}
	s := core.Session{PrizePool: 100, TotalPaid: 40}
	if s.Remaining() != 60 {
		t.Errorf("Remaining: got %d", s.Remaining())
	}
}
