package crypto_test

import (
	"errors"
	"testing"

	"github.com/tolelom/tolarcade/crypto"
)

// TestKeyGen verifies that key generation and hex encoding work.
func TestKeyGen(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(pub.Hex()) != 64 {
		t.Errorf("pubkey hex length: got %d want 64", len(pub.Hex()))
	}
	if priv.Public().Hex() != pub.Hex() {
		t.Error("derived public key does not match")
	}

	decoded, err := crypto.PubKeyFromHex(pub.Hex())
	if err != nil {
		t.Fatalf("PubKeyFromHex: %v", err)
	}
	if decoded.Hex() != pub.Hex() {
		t.Error("hex round trip changed the key")
	}
}

// TestSignVerify ensures Sign/Verify round-trips correctly.
func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello tolarcade")
	sig := crypto.Sign(priv, data)
	if err := crypto.Verify(pub, data, sig); err != nil {
		t.Errorf("valid signature failed: %v", err)
	}
	if err := crypto.Verify(pub, []byte("tampered"), sig); !errors.Is(err, crypto.ErrBadSignature) {
		t.Errorf("tampered data: got %v want %v", err, crypto.ErrBadSignature)
	}
	if err := crypto.Verify(pub, data, "zz"); err == nil {
		t.Error("non-hex signature should fail")
	}
}

func TestIsAddress(t *testing.T) {
	_, pub, _ := crypto.GenerateKeyPair()
	cases := []struct {
		in   string
		want bool
	}{
		{pub.Hex(), true},
		{"", false},
		{"deadbeef", false},
		{pub.Hex()[:62] + "zz", false},
		{"arcade:escrow", false},
	}
	for _, c := range cases {
		if got := crypto.IsAddress(c.in); got != c.want {
			t.Errorf("IsAddress(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestHashParts(t *testing.T) {
	if crypto.HashParts("ab", "c") == crypto.HashParts("a", "bc") {
		t.Error("parts must be length-prefixed")
	}
	if crypto.HashParts("a", "b") == crypto.HashParts("b", "a") {
		t.Error("order must matter")
	}
	if crypto.HashParts("x", "") == crypto.HashParts("x") {
		t.Error("an empty part must still contribute")
	}
	if got := crypto.HashParts("s1", "p"); got != crypto.HashParts("s1", "p") || len(got) != 64 {
		t.Errorf("HashParts not deterministic or wrong length: %s", got)
	}
}

func TestHash(t *testing.T) {
	// SHA-256 of the empty string.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := crypto.Hash(nil); got != empty {
		t.Errorf("Hash(nil) = %s", got)
	}
	if len(crypto.HashBytes([]byte("x"))) != 32 {
		t.Error("HashBytes should return 32 bytes")
	}
}
