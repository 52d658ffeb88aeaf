package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "node.key")
	if err := SaveKey(path, "hunter2", w.PrivKey()); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("keystore permissions: %o", perm)
	}

	var ks keystoreFile
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &ks); err != nil {
		t.Fatal(err)
	}
	if ks.KDF != KDFScrypt || ks.PubKey != w.PubKey() {
		t.Errorf("keystore header: kdf=%q pub=%q", ks.KDF, ks.PubKey)
	}

	priv, err := LoadKey(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if priv.Public().Hex() != w.PubKey() {
		t.Error("loaded key does not match saved key")
	}
}

func TestKeystoreWrongPassword(t *testing.T) {
	w, _ := Generate()
	path := filepath.Join(t.TempDir(), "node.key")
	if err := SaveKey(path, "right", w.PrivKey()); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKey(path, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("got %v want %v", err, ErrWrongPassword)
	}
}

// writeLegacy writes a keystore in the pbkdf2 format that predates the kdf
// field.
func writeLegacy(t *testing.T, path, password string, w *Wallet) {
	t.Helper()
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	key, err := deriveKey(KDFPBKDF2, password, salt)
	if err != nil {
		t.Fatal(err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		t.Fatal(err)
	}
	nonce := make([]byte, gcm.NonceSize())
	_, _ = rand.Read(nonce)
	data, _ := json.Marshal(keystoreFile{
		PubKey:     w.PubKey(),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(gcm.Seal(nil, nonce, w.PrivKey(), nil)),
	})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestKeystoreLegacyPBKDF2(t *testing.T) {
	w, _ := Generate()
	path := filepath.Join(t.TempDir(), "legacy.key")
	writeLegacy(t, path, "old", w)

	priv, err := LoadKey(path, "old")
	if err != nil {
		t.Fatalf("LoadKey legacy: %v", err)
	}
	if priv.Public().Hex() != w.PubKey() {
		t.Error("legacy key mismatch")
	}
	if _, err := LoadKey(path, "new"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("legacy wrong password: got %v", err)
	}
}

func TestKeystoreRejectsUnknownKDF(t *testing.T) {
	w, _ := Generate()
	path := filepath.Join(t.TempDir(), "odd.key")
	writeLegacy(t, path, "pw", w)

	var ks keystoreFile
	data, _ := os.ReadFile(path)
	_ = json.Unmarshal(data, &ks)
	ks.KDF = "argon2"
	data, _ = json.Marshal(ks)
	_ = os.WriteFile(path, data, 0600)

	if _, err := LoadKey(path, "pw"); err == nil || errors.Is(err, ErrWrongPassword) {
		t.Errorf("unknown kdf: got %v", err)
	}
}

func TestKeystoreMissingFile(t *testing.T) {
	if _, err := LoadKey(filepath.Join(t.TempDir(), "none.key"), ""); !os.IsNotExist(err) {
		t.Errorf("got %v, want not-exist", err)
	}
}
