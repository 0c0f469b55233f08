package testutil

import (
	"fmt"

	"github.com/decentraland/stoneage-node/internal/types"
	"github.com/decentraland/stoneage-node/pkg/crypto"
)

// EasyBits is a regtest-style compact target: roughly every second nonce wins.
const EasyBits = 0x207fffff

// StricterBits is a harder (but still CPU-friendly) compact target.
const StricterBits = 0x1e0fffff

// GenesisTime is the fixed timestamp used by test chains.
const GenesisTime = 1432594281

// TestKey returns a deterministic private key for a non-zero seed.
func TestKey(seed byte) *crypto.PrivateKey {
	if seed == 0 {
		panic("test key seed must be non-zero")
	}
	var raw [32]byte
	raw[31] = seed
	key, err := crypto.PrivKeyFromBytes(raw[:])
	if err != nil {
		panic(fmt.Sprintf("test key from seed %d: %v", seed, err))
	}
	return key
}

// NewCoinbase builds a coinbase mining the pixel at (x, y) for owner.
func NewCoinbase(owner *crypto.PublicKey, x, y int32, color uint32) *types.Transaction {
	return types.NewTransaction().At(x, y).Colored(color).To(owner)
}

// MineHeader advances the nonce until the header meets its own target.
func MineHeader(h *types.BlockHeader) {
	for !h.ValidProofOfWork() {
		h.IncrementNonce()
	}
}

// BuildBlock assembles and mines a block extending prev (nil for the first
// block of a chain) with the given coinbase and transfers.
func BuildBlock(prev *types.Block, coinbase *types.Transaction, transfers []*types.Transaction, timestamp, bits uint32) *types.Block {
	header := types.BlockHeader{
		Version:   types.CurrentBlockVersion,
		Timestamp: timestamp,
		Bits:      bits,
	}
	if prev != nil {
		header.Height = prev.Header.Height + 1
		header.PrevHash = prev.Hash()
	}
	blk := types.FromCoinbase(coinbase, header)
	for _, tx := range transfers {
		blk.AddTransaction(tx)
	}
	MineHeader(&blk.Header)
	return blk
}

// GenesisBlock returns the deterministic test genesis: key seed 1 mines the
// pixel at the origin.
func GenesisBlock() *types.Block {
	coinbase := NewCoinbase(TestKey(1).PublicKey(), 0, 0, 0xffffffff)
	return BuildBlock(nil, coinbase, nil, GenesisTime, EasyBits)
}
