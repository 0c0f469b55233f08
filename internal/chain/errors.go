package chain

import (
	"fmt"

	"github.com/decentraland/stoneage-node/internal/types"
	"github.com/decentraland/stoneage-node/pkg/util"
)

// MissingParentError is returned when a proposed block's parent is unknown.
// The caller must fetch and propose the parent first.
type MissingParentError struct {
	Hash [32]byte
	Prev [32]byte
}

func (e *MissingParentError) Error() string {
	return fmt.Sprintf("block %s has unknown parent %s", util.HashToHex(e.Hash), util.HashToHex(e.Prev))
}

// PixelMinedError is returned when a coinbase targets an already-owned pixel.
type PixelMinedError struct {
	Position types.Position
}

func (e *PixelMinedError) Error() string {
	return fmt.Sprintf("pixel %s is already mined", e.Position)
}

// NotAdjacentError is returned when a coinbase position has no 4-neighbor
// pixel and the block is not at height 0.
type NotAdjacentError struct {
	Position types.Position
}

func (e *NotAdjacentError) Error() string {
	return fmt.Sprintf("pixel %s has no adjacent pixel", e.Position)
}

// SignatureMismatchError is returned when a transfer does not verify against
// the current owner of its pixel.
type SignatureMismatchError struct {
	TxID      string
	BlockHash [32]byte
	Index     int
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("transaction %s at index %d of block %s does not verify against the current owner",
		e.TxID, e.Index, util.HashToHex(e.BlockHash))
}

// InvalidBlockError is returned when a block fails a structural check:
// empty transaction list, missing coinbase, stale merkle root, bad
// proof-of-work.
type InvalidBlockError struct {
	Hash   [32]byte
	Reason string
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("invalid block %s: %s", util.HashToHex(e.Hash), e.Reason)
}
