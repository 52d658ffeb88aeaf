package core

import (
	"encoding/json"
	"time"

	"github.com/tolelom/tolarcade/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height      int64  `json:"height"`
	PrevHash    string `json:"prev_hash"`
	StateRoot   string `json:"state_root"`   // hash of state after executing this block
	TxRoot      string `json:"tx_root"`      // hash of all transaction IDs
	ReceiptRoot string `json:"receipt_root"` // hash of all receipts
	Timestamp   int64  `json:"timestamp"`
	Proposer    string `json:"proposer"` // proposer's pubkey hex
}

// Receipt records the outcome of one transaction in a block. A failed
// transaction leaves no state change; Kind and Code let callers branch on
// the cause without parsing Error.
type Receipt struct {
	TxID  string `json:"tx_id"`
	Type  TxType `json:"type"`
	OK    bool   `json:"ok"`
	Kind  string `json:"kind,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Block is a collection of transactions with a signed header.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Receipts     []*Receipt     `json:"receipts"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign seals the receipts into the header, sets Hash and signs the block
// with the proposer's private key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Header.ReceiptRoot = ComputeReceiptRoot(b.Receipts)
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the block signature against the given public key.
func (b *Block) Verify(pub crypto.PublicKey) error {
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	ids := make([]string, 0, len(txs)+1)
	ids = append(ids, "txs")
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return crypto.HashParts(ids...)
}

// ComputeReceiptRoot hashes every receipt outcome in block order.
func ComputeReceiptRoot(receipts []*Receipt) string {
	parts := make([]string, 0, 3*len(receipts)+1)
	parts = append(parts, "receipts")
	for _, r := range receipts {
		ok := "0"
		if r.OK {
			ok = "1"
		}
		parts = append(parts, r.TxID, ok, r.Code)
	}
	return crypto.HashParts(parts...)
}

// NewBlock creates an unsigned block at the given time.
func NewBlock(height int64, prevHash, proposer string, txs []*Transaction, at time.Time) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: at.UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
