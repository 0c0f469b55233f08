package types

import (
	"fmt"

	"github.com/decentraland/stoneage-node/pkg/util"
)

// maxBlockLen caps how much a block deserializer will accept.
const maxBlockLen = 1 << 20

// Block is a header plus its ordered transaction list. The first transaction
// is always the coinbase.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// NewBlock builds a block over the given transactions and fixes up the
// header's merkle root.
func NewBlock(header BlockHeader, txs []*Transaction) *Block {
	b := &Block{Header: header, Transactions: txs}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

// FromCoinbase builds a single-transaction block: the merkle root of a tree
// of one is the coinbase hash itself.
func FromCoinbase(coinbase *Transaction, header BlockHeader) *Block {
	return NewBlock(header, []*Transaction{coinbase})
}

// Coinbase returns the block's first transaction.
func (b *Block) Coinbase() *Transaction {
	return b.Transactions[0]
}

// Hash returns the block hash (the header hash).
func (b *Block) Hash() [32]byte {
	return b.Header.Hash()
}

// ID returns the block id in display order.
func (b *Block) ID() string {
	return b.Header.ID()
}

// AddTransaction appends a transaction and recomputes the merkle root,
// invalidating any accumulated proof-of-work.
func (b *Block) AddTransaction(tx *Transaction) {
	b.Transactions = append(b.Transactions, tx)
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
}

// ComputeMerkleRoot builds the merkle root over the block's transaction hashes.
func (b *Block) ComputeMerkleRoot() [32]byte {
	hashes := make([][32]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return MerkleRoot(hashes)
}

// ValidMerkleRoot reports whether the header commits to the transaction list.
func (b *Block) ValidMerkleRoot() bool {
	return b.Header.MerkleRoot == b.ComputeMerkleRoot()
}

// MerkleRoot computes a Bitcoin-style merkle root: odd levels duplicate the
// last hash, pairs are double-SHA256'd, recursing to a single root. An empty
// list yields NullHash.
func MerkleRoot(hashes [][32]byte) [32]byte {
	if len(hashes) == 0 {
		return NullHash
	}

	level := make([][32]byte, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := make([]byte, 0, 64)
			combined = append(combined, level[i][:]...)
			combined = append(combined, level[i+1][:]...)
			next = append(next, util.DoubleSHA256(combined))
		}
		level = next
	}

	return level[0]
}

// Serialize returns the block wire form: header, varint transaction count,
// then each transaction as a varint-length-prefixed record. Transactions need
// the length prefix because the trailing signature is optional.
func (b *Block) Serialize() []byte {
	out := b.Header.Serialize()
	out = append(out, util.WriteVarInt(uint64(len(b.Transactions)))...)
	for _, tx := range b.Transactions {
		txBytes := tx.Serialize()
		out = append(out, util.WriteVarInt(uint64(len(txBytes)))...)
		out = append(out, txBytes...)
	}
	return out
}

// DeserializeBlock parses a serialized block.
func DeserializeBlock(data []byte) (*Block, error) {
	if len(data) > maxBlockLen {
		return nil, fmt.Errorf("block too large: %d bytes", len(data))
	}
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("block shorter than header: %d bytes", len(data))
	}

	header, err := DeserializeHeader(data[:HeaderLen])
	if err != nil {
		return nil, err
	}

	rest := data[HeaderLen:]
	count, n, err := util.ReadVarInt(rest)
	if err != nil {
		return nil, fmt.Errorf("transaction count: %w", err)
	}
	rest = rest[n:]

	if count == 0 {
		return nil, fmt.Errorf("block has no transactions")
	}
	if count > uint64(maxBlockLen/txBaseLen) {
		return nil, fmt.Errorf("implausible transaction count %d", count)
	}

	txs := make([]*Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		txLen, n, err := util.ReadVarInt(rest)
		if err != nil {
			return nil, fmt.Errorf("transaction %d length: %w", i, err)
		}
		rest = rest[n:]
		if uint64(len(rest)) < txLen {
			return nil, fmt.Errorf("transaction %d truncated", i)
		}
		tx, err := DeserializeTransaction(rest[:txLen])
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
		rest = rest[txLen:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after block", len(rest))
	}

	return &Block{Header: *header, Transactions: txs}, nil
}
