package database

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
)

// Block represents a group of transactions batched together and linked to
// the block before it by hash.
type Block struct {
	PrevHash     string `json:"prev_hash"`    // Hash of the previous block in the chain, empty for genesis.
	Hash         string `json:"hash"`         // Hash of every other field, empty until sealed.
	Transactions []Tx   `json:"transactions"` // Transactions recorded by this block.
	Time         uint64 `json:"time"`         // Unix nanoseconds for the mining round that produced the block.
	Index        Index  `json:"index"`        // Position of the block in the chain.
	Nonce        uint64 `json:"nonce"`        // Value identified to solve the hash puzzle.
}

// NewBlock constructs an unsealed block.
func NewBlock(prevHash string, trans []Tx, nonce uint64, time uint64, index Index) Block {
	return Block{
		PrevHash:     prevHash,
		Transactions: trans,
		Time:         time,
		Index:        index,
		Nonce:        nonce,
	}
}

// Seal calculates the hash for the block, stores it and returns it. Sealing
// an unchanged block always produces the same hash.
func (b *Block) Seal() string {
	b.Hash = b.digest()
	return b.Hash
}

// IsSealed reports whether the block has a hash.
func (b Block) IsSealed() bool {
	return b.Hash != ""
}

// VerifyHash recalculates the hash of the block and checks it matches the
// hash the block carries.
func (b Block) VerifyHash() bool {
	return b.IsSealed() && b.Hash == b.digest()
}

// IsValid reports whether this block links to the specified block.
func (b Block) IsValid(prev Block) bool {
	return b.PrevHash == prev.Hash
}

// Equal reports whether both blocks hold the same values for every field.
func (b Block) Equal(other Block) bool {
	switch {
	case b.PrevHash != other.PrevHash,
		b.Hash != other.Hash,
		b.Time != other.Time,
		b.Nonce != other.Nonce,
		!b.Index.Equal(other.Index):
		return false
	}

	return slices.Equal(b.Transactions, other.Transactions)
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk[%s]: prevBlk[%s]: hash[%s]: nonce[%d]: numTrans[%d]", b.Index, b.PrevHash, b.Hash, b.Nonce, len(b.Transactions))
}

// =============================================================================

// blockData is the canonical form of a block used for hashing. The field
// order is fixed and the hash itself is excluded.
type blockData struct {
	PrevHash     string `json:"prev_hash"`
	Transactions []Tx   `json:"transactions"`
	Time         uint64 `json:"time"`
	Index        Index  `json:"index"`
	Nonce        uint64 `json:"nonce"`
}

// digest returns the lowercase hex SHA-256 of the canonical form of the block.
func (b Block) digest() string {
	trans := b.Transactions
	if trans == nil {
		trans = []Tx{}
	}

	data, err := json.Marshal(blockData{
		PrevHash:     b.PrevHash,
		Transactions: trans,
		Time:         b.Time,
		Index:        b.Index,
		Nonce:        b.Nonce,
	})
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
