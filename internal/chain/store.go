package chain

import (
	"github.com/decentraland/stoneage-node/internal/types"
)

// BlockStore is an in-memory content-addressed block map. Entries are never
// overwritten or evicted; its lifetime is the chain manager's.
type BlockStore struct {
	blocks map[[32]byte]*types.Block
}

// NewBlockStore creates an empty block store.
func NewBlockStore() *BlockStore {
	return &BlockStore{blocks: make(map[[32]byte]*types.Block)}
}

// Set stores a block under its hash. Re-adding an existing hash is a no-op.
func (s *BlockStore) Set(b *types.Block) {
	hash := b.Hash()
	if _, ok := s.blocks[hash]; ok {
		return
	}
	s.blocks[hash] = b
}

// Get returns the block for a hash.
func (s *BlockStore) Get(hash [32]byte) (*types.Block, bool) {
	b, ok := s.blocks[hash]
	return b, ok
}

// Count returns the number of stored blocks.
func (s *BlockStore) Count() int {
	return len(s.blocks)
}

// TxStore is an in-memory content-addressed transaction map. Every
// transaction of every proposed block lands here — side branches included —
// so reorg rollbacks can always restore prior pixel owners.
type TxStore struct {
	txs map[[32]byte]*types.Transaction
}

// NewTxStore creates an empty transaction store.
func NewTxStore() *TxStore {
	return &TxStore{txs: make(map[[32]byte]*types.Transaction)}
}

// Set stores a transaction under its hash. Re-adding an existing hash is a no-op.
func (s *TxStore) Set(tx *types.Transaction) {
	hash := tx.Hash()
	if _, ok := s.txs[hash]; ok {
		return
	}
	s.txs[hash] = tx
}

// Get returns the transaction for a hash.
func (s *TxStore) Get(hash [32]byte) (*types.Transaction, bool) {
	tx, ok := s.txs[hash]
	return tx, ok
}

// Count returns the number of stored transactions.
func (s *TxStore) Count() int {
	return len(s.txs)
}
