package wallet_test

import (
	"encoding/json"
	"testing"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/wallet"
)

func TestArcadeBuilders(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	a := w.Arcade("arcade-test", 2)

	tx, err := a.ProcessEntry(4, "s1", "player", 100)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Type != core.TxProcessEntry || tx.Nonce != 4 || tx.Fee != 2 || tx.ChainID != "arcade-test" {
		t.Errorf("envelope: %+v", tx)
	}
	if tx.From != w.PubKey() {
		t.Errorf("from: %s", tx.From)
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	var p core.EntryPayload
	if err := json.Unmarshal(tx.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.SessionID != "s1" || p.Player != "player" || p.Amount != 100 {
		t.Errorf("payload: %+v", p)
	}
}

func TestArcadeBuilderTypes(t *testing.T) {
	w, _ := wallet.Generate()
	a := w.Arcade("arcade-test", 0)

	build := map[core.TxType]func() (*core.Transaction, error){
		core.TxSettleSession:        func() (*core.Transaction, error) { return a.SettleSession(0, "s") },
		core.TxCancelSession:        func() (*core.Transaction, error) { return a.CancelSession(0, "s") },
		core.TxClaimExpiredRefund:   func() (*core.Transaction, error) { return a.ClaimExpiredRefund(0, "s", "p") },
		core.TxBatchEmergencyRefund: func() (*core.Transaction, error) { return a.BatchEmergencyRefund(0, "s", []string{"p"}) },
		core.TxQuarantineGame:       func() (*core.Transaction, error) { return a.GameOp(core.TxQuarantineGame, 0, "g") },
		core.TxTripCircuitBreaker:   func() (*core.Transaction, error) { return a.Simple(core.TxTripCircuitBreaker, 0) },
		core.TxVetoBreakerReset:     func() (*core.Transaction, error) { return a.Proposal(core.TxVetoBreakerReset, 0, "id") },
		core.TxGrantRole:            func() (*core.Transaction, error) { return a.GrantRole(0, "guardian", "x") },
	}
	for typ, fn := range build {
		tx, err := fn()
		if err != nil {
			t.Errorf("%s: %v", typ, err)
			continue
		}
		if tx.Type != typ {
			t.Errorf("built %s, want %s", tx.Type, typ)
		}
	}
}
