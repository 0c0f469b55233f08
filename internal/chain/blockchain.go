package chain

import (
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/decentraland/stoneage-node/internal/metrics"
	"github.com/decentraland/stoneage-node/internal/types"
	"github.com/decentraland/stoneage-node/pkg/util"
)

// WorkFunc returns the proof-of-work weight a block adds to its chain.
// The default weighs every block at 1; a real difficulty-derived weight can
// be swapped in without touching the chain logic.
type WorkFunc func(hash [32]byte) *big.Int

func defaultWork([32]byte) *big.Int {
	return big.NewInt(1)
}

// Reorg reports an active-chain switch: blocks rolled back off the old chain
// and blocks applied on the new one, ancestor-first.
type Reorg struct {
	Unconfirmed [][32]byte
	Confirmed   [][32]byte
}

// Blockchain owns the tree of known blocks, their cumulative work, the
// active-chain indices, and the live pixel grid derived from the best chain.
//
// The tip starts at the NullHash sentinel (work 0, height -1). Blocks and
// transactions are immutable once stored; only the chain indices and the
// pixel grid mutate: through the confirm/unconfirm protocol inside
// ProposeBlock, wholesale through RestoreSnapshot, and (parent and work
// entries only) through Prune.
type Blockchain struct {
	mu sync.RWMutex

	tip          [32]byte
	work         map[[32]byte]*big.Int
	height       map[[32]byte]int64
	hashByHeight map[int64][32]byte
	prev         map[[32]byte][32]byte
	next         map[[32]byte][32]byte
	pixels       map[types.Position]*types.Transaction

	blocks *BlockStore
	txs    *TxStore

	workFn WorkFunc
	logger *zap.Logger
}

// Option configures a Blockchain.
type Option func(*Blockchain)

// WithWorkFunc overrides the per-block work weight.
func WithWorkFunc(fn WorkFunc) Option {
	return func(bc *Blockchain) { bc.workFn = fn }
}

// New creates an empty chain whose tip is the NullHash sentinel.
func New(logger *zap.Logger, opts ...Option) *Blockchain {
	bc := &Blockchain{
		work:         make(map[[32]byte]*big.Int),
		height:       make(map[[32]byte]int64),
		hashByHeight: make(map[int64][32]byte),
		prev:         make(map[[32]byte][32]byte),
		next:         make(map[[32]byte][32]byte),
		pixels:       make(map[types.Position]*types.Transaction),
		blocks:       NewBlockStore(),
		txs:          NewTxStore(),
		workFn:       defaultWork,
		logger:       logger,
	}
	bc.work[types.NullHash] = big.NewInt(0)
	bc.height[types.NullHash] = -1
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Tip returns the hash of the current best chain head.
func (bc *Blockchain) Tip() [32]byte {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// TipBlock returns the block at the tip, if any block has been confirmed.
func (bc *Blockchain) TipBlock() (*types.Block, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.blocks.Get(bc.tip)
}

// Height returns the height of the tip, -1 for an empty chain.
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height[bc.tip]
}

// Block returns a known block by hash, active chain or side branch.
func (bc *Blockchain) Block(hash [32]byte) (*types.Block, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.blocks.Get(hash)
}

// Transaction returns a known transaction by hash.
func (bc *Blockchain) Transaction(hash [32]byte) (*types.Transaction, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.txs.Get(hash)
}

// PixelAt returns the transaction currently owning the pixel at pos.
func (bc *Blockchain) PixelAt(pos types.Position) (*types.Transaction, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	tx, ok := bc.pixels[pos]
	return tx, ok
}

// Pixels returns a copy of the world state: the owning transaction per
// coordinate.
func (bc *Blockchain) Pixels() map[types.Position]*types.Transaction {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make(map[types.Position]*types.Transaction, len(bc.pixels))
	for pos, tx := range bc.pixels {
		out[pos] = tx
	}
	return out
}

// ProposeBlock offers a block to the chain. The block's parent must already
// be known (the NullHash sentinel counts as known, for the genesis).
//
// The block and all its transactions are persisted whether or not it wins:
// side-branch transactions are needed later to roll pixels back across a
// reorg. If the block's cumulative work does not exceed the tip's, it is
// recorded as a side branch and the returned Reorg is empty. Otherwise the
// active chain switches to it atomically: on any validation failure the
// previous chain state is restored before the error is returned.
func (bc *Blockchain) ProposeBlock(b *types.Block) (*Reorg, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash := b.Hash()
	prevHash := b.Header.PrevHash

	if err := bc.checkBlockShape(b, hash); err != nil {
		return nil, err
	}
	if _, known := bc.work[prevHash]; !known {
		return nil, &MissingParentError{Hash: hash, Prev: prevHash}
	}

	bc.blocks.Set(b)
	for _, tx := range b.Transactions {
		bc.txs.Set(tx)
	}
	bc.prev[hash] = prevHash
	bc.work[hash] = new(big.Int).Add(bc.work[prevHash], bc.workFn(hash))

	if bc.work[hash].Cmp(bc.work[bc.tip]) <= 0 {
		bc.logger.Debug("block accepted as side branch",
			zap.String("block", util.HashToHex(hash)),
			zap.String("work", bc.work[hash].String()),
		)
		metrics.SideBranchBlocks.Inc()
		return &Reorg{}, nil
	}

	reorg, err := bc.appendNewBlock(hash)
	if err != nil {
		return nil, err
	}

	if len(reorg.Unconfirmed) > 0 {
		metrics.Reorgs.Inc()
		bc.logger.Info("chain reorganized",
			zap.Int("unconfirmed", len(reorg.Unconfirmed)),
			zap.Int("confirmed", len(reorg.Confirmed)),
			zap.String("tip", util.HashToHex(bc.tip)),
		)
	}
	return reorg, nil
}

// checkBlockShape rejects structurally broken blocks before any state change.
func (bc *Blockchain) checkBlockShape(b *types.Block, hash [32]byte) error {
	if len(b.Transactions) == 0 {
		return &InvalidBlockError{Hash: hash, Reason: "no transactions"}
	}
	if !b.Coinbase().IsCoinbase() {
		return &InvalidBlockError{Hash: hash, Reason: "first transaction is not a coinbase"}
	}
	if !b.ValidMerkleRoot() {
		return &InvalidBlockError{Hash: hash, Reason: "merkle root does not commit to transactions"}
	}
	if !b.Header.ValidProofOfWork() {
		return &InvalidBlockError{Hash: hash, Reason: "hash does not meet target"}
	}
	return nil
}

// appendNewBlock switches the active chain to end at hash. The walk back from
// hash collects the side branch until it meets a block whose height is known
// (that block is the common ancestor); the walk back from the current tip
// collects everything to roll off. Both walks include the NullHash sentinel
// case: height[NullHash] is always known.
func (bc *Blockchain) appendNewBlock(hash [32]byte) (*Reorg, error) {
	var toConfirm [][32]byte
	cursor := hash
	for {
		if _, onChain := bc.height[cursor]; onChain {
			break
		}
		toConfirm = append(toConfirm, cursor)
		cursor = bc.prev[cursor]
	}
	ancestor := cursor

	var toUnconfirm [][32]byte
	for cur := bc.tip; cur != ancestor; cur = bc.prev[cur] {
		toUnconfirm = append(toUnconfirm, cur)
	}

	// Ancestor-first order for the new branch.
	for i, j := 0, len(toConfirm)-1; i < j; i, j = i+1, j-1 {
		toConfirm[i], toConfirm[j] = toConfirm[j], toConfirm[i]
	}

	for _, h := range toUnconfirm {
		bc.unconfirm(bc.mustBlock(h))
	}

	var confirmed [][32]byte
	for _, h := range toConfirm {
		blk := bc.mustBlock(h)
		if err := bc.checkValidBlock(blk); err != nil {
			bc.rollback(confirmed, toUnconfirm)
			return nil, err
		}
		bc.confirm(blk)
		confirmed = append(confirmed, h)
	}

	return &Reorg{Unconfirmed: toUnconfirm, Confirmed: toConfirm}, nil
}

// rollback restores the pre-reorg chain: the partially confirmed new branch
// is rolled off tip-first, then the old branch is re-applied ancestor-first.
// Re-confirmed blocks were valid on this exact state before, so they are not
// re-validated.
func (bc *Blockchain) rollback(confirmed, unconfirmed [][32]byte) {
	for i := len(confirmed) - 1; i >= 0; i-- {
		bc.unconfirm(bc.mustBlock(confirmed[i]))
	}
	for i := len(unconfirmed) - 1; i >= 0; i-- {
		bc.confirm(bc.mustBlock(unconfirmed[i]))
	}
}

// confirm appends a block to the active chain and applies its transactions
// to the pixel grid. The block's parent must be the tip.
func (bc *Blockchain) confirm(blk *types.Block) {
	hash := blk.Hash()
	prevHash := blk.Header.PrevHash

	bc.next[prevHash] = hash
	bc.tip = hash
	h := bc.height[prevHash] + 1
	bc.height[hash] = h
	bc.hashByHeight[h] = hash

	for _, tx := range blk.Transactions {
		bc.pixels[tx.Position] = tx
	}

	metrics.ChainHeight.Set(float64(h))
	metrics.PixelsOwned.Set(float64(len(bc.pixels)))
	metrics.BlocksConfirmed.Inc()
}

// unconfirm rolls the tip block off the active chain. Transfers are undone
// newest-first by restoring the spent transaction as the pixel owner; the
// coinbase's pixel is removed entirely — the already-mined check in
// checkValidBlock guarantees no older owner existed there.
func (bc *Blockchain) unconfirm(blk *types.Block) {
	hash := blk.Hash()
	prevHash := blk.Header.PrevHash

	bc.tip = prevHash
	delete(bc.next, prevHash)
	delete(bc.hashByHeight, bc.height[hash])
	delete(bc.height, hash)

	for i := len(blk.Transactions) - 1; i >= 1; i-- {
		tx := blk.Transactions[i]
		if prevTx, ok := bc.txs.Get(tx.Previous); ok {
			bc.pixels[prevTx.Position] = prevTx
		}
	}
	delete(bc.pixels, blk.Coinbase().Position)

	metrics.ChainHeight.Set(float64(bc.height[bc.tip]))
	metrics.PixelsOwned.Set(float64(len(bc.pixels)))
	metrics.BlocksUnconfirmed.Inc()
}

// mustBlock fetches a block that the chain indices already reference.
func (bc *Blockchain) mustBlock(hash [32]byte) *types.Block {
	blk, ok := bc.blocks.Get(hash)
	if !ok {
		panic("chain index references unknown block " + util.HashToHex(hash))
	}
	return blk
}

// BlockLocator returns hashes walking back from the tip: the first 10 one
// per height, then with a doubling stride. Peers use it to find the fork
// point during sync.
func (bc *Blockchain) BlockLocator() [][32]byte {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	var locator [][32]byte
	step := int64(1)
	for h := bc.height[bc.tip]; h >= 0; h -= step {
		locator = append(locator, bc.hashByHeight[h])
		if len(locator) >= 10 {
			step *= 2
		}
	}
	return locator
}

// Prune discards parent and work entries for side-branch blocks that are not
// on the active chain and have no known descendant referencing them. The
// block and transaction stores are left untouched.
func (bc *Blockchain) Prune() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	var total int
	for {
		referenced := make(map[[32]byte]bool)
		for child := range bc.prev {
			referenced[bc.prev[child]] = true
		}

		var pruned int
		for hash := range bc.prev {
			if _, active := bc.height[hash]; active {
				continue
			}
			if referenced[hash] {
				continue
			}
			delete(bc.prev, hash)
			delete(bc.work, hash)
			pruned++
		}
		total += pruned
		if pruned == 0 {
			return total
		}
	}
}
