package chain

import (
	"github.com/decentraland/stoneage-node/internal/types"
)

// checkValidBlock validates a candidate block against the chain state its
// parent left behind. It runs immediately before confirm, so bc.pixels
// already reflects every previously confirmed block of the reorg.
//
// Transfers are validated against a scratch view seeded lazily from the
// pixel grid: a chain of transfers on the same pixel inside one block links
// off the last validated in-block owner, not off the grid.
func (bc *Blockchain) checkValidBlock(blk *types.Block) error {
	hash := blk.Hash()
	prevHash := blk.Header.PrevHash

	if _, known := bc.work[prevHash]; !known {
		return &MissingParentError{Hash: hash, Prev: prevHash}
	}

	coinbase := blk.Coinbase()
	pos := coinbase.Position
	if _, taken := bc.pixels[pos]; taken {
		return &PixelMinedError{Position: pos}
	}

	// The first block of the chain mines anywhere; every later coinbase must
	// extend the painted area through a 4-neighbor.
	if bc.height[prevHash]+1 > 0 {
		adjacent := false
		for _, n := range pos.Neighbors() {
			if _, ok := bc.pixels[n]; ok {
				adjacent = true
				break
			}
		}
		if !adjacent {
			return &NotAdjacentError{Position: pos}
		}
	}

	scratch := map[types.Position]*types.Transaction{pos: coinbase}

	for i := 1; i < len(blk.Transactions); i++ {
		tx := blk.Transactions[i]
		mismatch := &SignatureMismatchError{TxID: tx.ID(), BlockHash: hash, Index: i}

		if tx.IsCoinbase() {
			return &InvalidBlockError{Hash: hash, Reason: "coinbase outside index 0"}
		}

		owner, ok := scratch[tx.Position]
		if !ok {
			owner, ok = bc.pixels[tx.Position]
		}
		if !ok || owner.Owner == nil {
			return mismatch
		}
		if tx.Previous != owner.Hash() {
			return mismatch
		}
		if !types.VerifySignature(tx, tx.Signature, owner.Owner) {
			return mismatch
		}

		scratch[tx.Position] = tx
	}

	return nil
}
