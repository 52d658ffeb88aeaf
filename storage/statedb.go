package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tolelom/tolarcade/core"
	"github.com/tolelom/tolarcade/crypto"
)

// SchemaVersion is the layout version of the state region. It is written to
// ArcadeParams at genesis; a node refuses to start on a mismatch.
const SchemaVersion = 1

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount   = registerPrefix("acct:")
	prefixAllowance = registerPrefix("allow:")
	prefixRole      = registerPrefix("role:")
	prefixGame      = registerPrefix("game:")
	prefixGameIndex = registerPrefix("gsess:")
	prefixSession   = registerPrefix("sess:")
	prefixDeposit   = registerPrefix("dep:")
	prefixPending   = registerPrefix("pend:")
	prefixStats     = registerPrefix("stats:")
	prefixPosition  = registerPrefix("pos:")
	prefixProposal  = registerPrefix("prop:")
	prefixEngine    = registerPrefix("engine:")
)

var (
	keyParams  = prefixEngine + "params"
	keyTotals  = prefixEngine + "totals"
	keyBreaker = prefixEngine + "breaker"
)

// DepositKey derives the storage key of a (session, depositor) record.
// Parts are length-prefixed before hashing, so distinct pairs never map to
// the same key regardless of the characters they contain.
func DepositKey(sessionID, player string) string {
	return prefixDeposit + crypto.HashParts(sessionID, player)
}

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation. Records are
// stored as JSON; callers always receive fresh copies, never references
// into the buffer.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func getJSON[T any](s *StateDB, key string) (*T, error) {
	data, err := s.get(key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// getOrZero returns the zero value when key is absent.
func getOrZero[T any](s *StateDB, key string) (*T, error) {
	v, err := getJSON[T](s, key)
	if errors.Is(err, core.ErrNotFound) {
		return new(T), nil
	}
	return v, err
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Accounts ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	acc, err := getOrZero[core.Account](s, prefixAccount+address)
	if err != nil {
		return nil, err
	}
	acc.Address = address
	return acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

func (s *StateDB) GetAllowance(owner, spender string) (*core.Allowance, error) {
	a, err := getOrZero[core.Allowance](s, prefixAllowance+crypto.HashParts(owner, spender))
	if err != nil {
		return nil, err
	}
	a.Owner, a.Spender = owner, spender
	return a, nil
}

func (s *StateDB) SetAllowance(a *core.Allowance) error {
	key := prefixAllowance + crypto.HashParts(a.Owner, a.Spender)
	if a.Amount == 0 {
		s.del(key)
		return nil
	}
	return s.setJSON(key, a)
}

// ---- Roles ----

func (s *StateDB) HasRole(role, address string) (bool, error) {
	_, err := s.get(prefixRole + crypto.HashParts(role, address))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *StateDB) SetRole(role, address string, granted bool) error {
	key := prefixRole + crypto.HashParts(role, address)
	if !granted {
		s.del(key)
		return nil
	}
	return s.setJSON(key, map[string]string{"role": role, "address": address})
}

// ---- Games ----

func (s *StateDB) GetGame(address string) (*core.Game, error) {
	return getJSON[core.Game](s, prefixGame+address)
}

func (s *StateDB) SetGame(g *core.Game) error {
	return s.setJSON(prefixGame+g.Address, g)
}

func (s *StateDB) DeleteGame(address string) error {
	s.del(prefixGame + address)
	return nil
}

func (s *StateDB) GetActiveSessions(game string) ([]string, error) {
	ids, err := getOrZero[[]string](s, prefixGameIndex+game)
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (s *StateDB) SetActiveSessions(game string, ids []string) error {
	if len(ids) == 0 {
		s.del(prefixGameIndex + game)
		return nil
	}
	return s.setJSON(prefixGameIndex+game, ids)
}

// ---- Sessions and deposits ----

func (s *StateDB) GetSession(id string) (*core.Session, error) {
	return getJSON[core.Session](s, prefixSession+id)
}

func (s *StateDB) SetSession(sess *core.Session) error {
	return s.setJSON(prefixSession+sess.ID, sess)
}

func (s *StateDB) GetDeposit(sessionID, player string) (*core.Deposit, error) {
	return getJSON[core.Deposit](s, DepositKey(sessionID, player))
}

func (s *StateDB) SetDeposit(d *core.Deposit) error {
	return s.setJSON(DepositKey(d.SessionID, d.Player), d)
}

// ---- Withdrawal queue ----

func (s *StateDB) GetPending(address string) (uint64, error) {
	data, err := s.get(prefixPending + address)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) SetPending(address string, amount uint64) error {
	if amount == 0 {
		s.del(prefixPending + address)
		return nil
	}
	s.set(prefixPending+address, []byte(strconv.FormatUint(amount, 10)))
	return nil
}

// ---- Stats and positions ----

func (s *StateDB) GetPlayerStats(player string) (*core.PlayerStats, error) {
	st, err := getOrZero[core.PlayerStats](s, prefixStats+player)
	if err != nil {
		return nil, err
	}
	st.Player = player
	return st, nil
}

func (s *StateDB) SetPlayerStats(st *core.PlayerStats) error {
	return s.setJSON(prefixStats+st.Player, st)
}

func (s *StateDB) GetPosition(player string) (*core.Position, error) {
	p, err := getOrZero[core.Position](s, prefixPosition+player)
	if err != nil {
		return nil, err
	}
	p.Player = player
	return p, nil
}

func (s *StateDB) SetPosition(p *core.Position) error {
	return s.setJSON(prefixPosition+p.Player, p)
}

// ---- Engine-wide records ----

func (s *StateDB) GetParams() (*core.ArcadeParams, error) {
	return getOrZero[core.ArcadeParams](s, keyParams)
}

func (s *StateDB) SetParams(p *core.ArcadeParams) error {
	return s.setJSON(keyParams, p)
}

func (s *StateDB) GetTotals() (*core.ArcadeTotals, error) {
	return getOrZero[core.ArcadeTotals](s, keyTotals)
}

func (s *StateDB) SetTotals(t *core.ArcadeTotals) error {
	return s.setJSON(keyTotals, t)
}

func (s *StateDB) GetBreaker() (*core.CircuitBreaker, error) {
	return getOrZero[core.CircuitBreaker](s, keyBreaker)
}

func (s *StateDB) SetBreaker(b *core.CircuitBreaker) error {
	return s.setJSON(keyBreaker, b)
}

func (s *StateDB) GetProposal(id string) (*core.BreakerResetProposal, error) {
	return getJSON[core.BreakerResetProposal](s, prefixProposal+id)
}

func (s *StateDB) SetProposal(p *core.BreakerResetProposal) error {
	return s.setJSON(prefixProposal+p.ID, p)
}

// ---- Snapshot / Rollback / Commit ----

func copyBuffer(dirty map[string][]byte, deleted map[string]bool) stateSnapshot {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(dirty)),
		deleted: make(map[string]bool, len(deleted)),
	}
	for k, v := range dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range deleted {
		snap.deleted[k] = v
	}
	return snap
}

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.snapshots = append(s.snapshots, copyBuffer(s.dirty, s.deleted))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and drops it together with every later one.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	restored := copyBuffer(s.snapshots[id].dirty, s.snapshots[id].deleted)
	s.dirty = restored.dirty
	s.deleted = restored.deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshot drops snapshot id and every later one, keeping the
// current buffer.
func (s *StateDB) DiscardSnapshot(id int) {
	if id >= 0 && id < len(s.snapshots) {
		s.snapshots = s.snapshots[:id]
	}
}

// ComputeRoot returns the deterministic hash of the complete ledger state.
// It merges all persisted entries under the registered prefixes with the
// current write buffer, then hashes the sorted key-value pairs using
// length-prefix encoding. It does not flush or modify state.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[string(it.Key())] = v
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// Batch and then clears it.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
