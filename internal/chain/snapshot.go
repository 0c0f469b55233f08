package chain

import (
	"fmt"
	"math/big"

	"github.com/decentraland/stoneage-node/internal/types"
	"github.com/decentraland/stoneage-node/pkg/util"
)

// Snapshot is a portable dump of the chain indices. Hashes are display-order
// hex, work values are decimal strings. The pixel grid is not included: it is
// re-derivable from the active chain when the blocks are available.
type Snapshot struct {
	Tip          string            `json:"tip" cbor:"1,keyasint"`
	Work         map[string]string `json:"work" cbor:"2,keyasint"`
	Next         map[string]string `json:"next" cbor:"3,keyasint"`
	HashByHeight map[int64]string  `json:"hashByHeight" cbor:"4,keyasint"`
	Height       map[string]int64  `json:"height" cbor:"5,keyasint"`
	Prev         map[string]string `json:"prev" cbor:"6,keyasint"`
}

// Snapshot captures the current chain indices.
func (bc *Blockchain) Snapshot() *Snapshot {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	s := &Snapshot{
		Tip:          util.HashToHex(bc.tip),
		Work:         make(map[string]string, len(bc.work)),
		Next:         make(map[string]string, len(bc.next)),
		HashByHeight: make(map[int64]string, len(bc.hashByHeight)),
		Height:       make(map[string]int64, len(bc.height)),
		Prev:         make(map[string]string, len(bc.prev)),
	}
	for hash, work := range bc.work {
		s.Work[util.HashToHex(hash)] = work.String()
	}
	for hash, nextHash := range bc.next {
		s.Next[util.HashToHex(hash)] = util.HashToHex(nextHash)
	}
	for height, hash := range bc.hashByHeight {
		s.HashByHeight[height] = util.HashToHex(hash)
	}
	for hash, height := range bc.height {
		s.Height[util.HashToHex(hash)] = height
	}
	for hash, prevHash := range bc.prev {
		s.Prev[util.HashToHex(hash)] = util.HashToHex(prevHash)
	}
	return s
}

// RestoreSnapshot replaces the chain indices with the snapshot's and rebuilds
// the pixel grid by replaying the active chain from the block store. Blocks
// absent from the store leave gaps in the grid; callers restoring a full
// chain should load blocks first (see BoltStore.Replay).
func (bc *Blockchain) RestoreSnapshot(s *Snapshot) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tip, err := util.HexToHash(s.Tip)
	if err != nil {
		return fmt.Errorf("snapshot tip: %w", err)
	}

	work := make(map[[32]byte]*big.Int, len(s.Work))
	for hashHex, workStr := range s.Work {
		hash, err := util.HexToHash(hashHex)
		if err != nil {
			return fmt.Errorf("snapshot work key: %w", err)
		}
		value, ok := new(big.Int).SetString(workStr, 10)
		if !ok {
			return fmt.Errorf("snapshot work value %q is not a decimal integer", workStr)
		}
		work[hash] = value
	}

	next, err := hashMapFromHex(s.Next)
	if err != nil {
		return fmt.Errorf("snapshot next: %w", err)
	}
	prev, err := hashMapFromHex(s.Prev)
	if err != nil {
		return fmt.Errorf("snapshot prev: %w", err)
	}

	hashByHeight := make(map[int64][32]byte, len(s.HashByHeight))
	for height, hashHex := range s.HashByHeight {
		hash, err := util.HexToHash(hashHex)
		if err != nil {
			return fmt.Errorf("snapshot hashByHeight: %w", err)
		}
		hashByHeight[height] = hash
	}

	height := make(map[[32]byte]int64, len(s.Height))
	for hashHex, h := range s.Height {
		hash, err := util.HexToHash(hashHex)
		if err != nil {
			return fmt.Errorf("snapshot height: %w", err)
		}
		height[hash] = h
	}

	bc.tip = tip
	bc.work = work
	bc.next = next
	bc.prev = prev
	bc.hashByHeight = hashByHeight
	bc.height = height

	bc.pixels = make(map[types.Position]*types.Transaction)
	for h := int64(0); h <= bc.height[bc.tip]; h++ {
		blk, ok := bc.blocks.Get(bc.hashByHeight[h])
		if !ok {
			continue
		}
		for _, tx := range blk.Transactions {
			bc.pixels[tx.Position] = tx
		}
	}
	return nil
}

func hashMapFromHex(in map[string]string) (map[[32]byte][32]byte, error) {
	out := make(map[[32]byte][32]byte, len(in))
	for keyHex, valHex := range in {
		key, err := util.HexToHash(keyHex)
		if err != nil {
			return nil, err
		}
		val, err := util.HexToHash(valHex)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}
