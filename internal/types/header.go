package types

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/decentraland/stoneage-node/pkg/util"
)

// HeaderLen is the serialized block header size.
const HeaderLen = 84

// CurrentBlockVersion is the block header version this node produces.
const CurrentBlockVersion = 1

// MaxTimeOffset is how far a header timestamp may drift from the local clock.
const MaxTimeOffset = 2 * time.Hour

// BlockHeader is the proof-of-work commitment for a block.
type BlockHeader struct {
	Version    uint32
	Height     uint32
	PrevHash   [32]byte
	MerkleRoot [32]byte
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Serialize returns the fixed little-endian header layout: version, height,
// prevHash, merkleRoot, time, bits, nonce.
func (h *BlockHeader) Serialize() []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	binary.LittleEndian.PutUint32(buf[4:8], h.Height)
	copy(buf[8:40], h.PrevHash[:])
	copy(buf[40:72], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[72:76], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[76:80], h.Bits)
	binary.LittleEndian.PutUint32(buf[80:84], h.Nonce)
	return buf
}

// DeserializeHeader parses a serialized block header.
func DeserializeHeader(data []byte) (*BlockHeader, error) {
	if len(data) != HeaderLen {
		return nil, fmt.Errorf("header must be %d bytes, got %d", HeaderLen, len(data))
	}
	h := &BlockHeader{
		Version:   binary.LittleEndian.Uint32(data[0:4]),
		Height:    binary.LittleEndian.Uint32(data[4:8]),
		Timestamp: binary.LittleEndian.Uint32(data[72:76]),
		Bits:      binary.LittleEndian.Uint32(data[76:80]),
		Nonce:     binary.LittleEndian.Uint32(data[80:84]),
	}
	copy(h.PrevHash[:], data[8:40])
	copy(h.MerkleRoot[:], data[40:72])
	return h, nil
}

// Hash computes the double-SHA256 of the serialized header (the block hash).
func (h *BlockHeader) Hash() [32]byte {
	return util.DoubleSHA256(h.Serialize())
}

// ID returns the block id: the hash in display (reversed hex) order.
func (h *BlockHeader) ID() string {
	return util.HashToHex(h.Hash())
}

// Target decodes the header's compact difficulty into a full target.
func (h *BlockHeader) Target() *big.Int {
	return util.CompactToTarget(h.Bits)
}

// ValidProofOfWork reports whether the block hash meets the header's target.
func (h *BlockHeader) ValidProofOfWork() bool {
	return util.HashMeetsTarget(h.Hash(), h.Target())
}

// ValidTimestamp reports whether the header time is within MaxTimeOffset of now.
func (h *BlockHeader) ValidTimestamp(now time.Time) bool {
	headerTime := time.Unix(int64(h.Timestamp), 0)
	drift := now.Sub(headerTime)
	if drift < 0 {
		drift = -drift
	}
	return drift <= MaxTimeOffset
}

// IncrementNonce advances the proof-of-work search. When the nonce wraps to
// zero the timestamp is bumped so the search space stays live.
func (h *BlockHeader) IncrementNonce() {
	h.Nonce++
	if h.Nonce == 0 {
		h.Timestamp++
	}
}

// Time returns the header timestamp as a time.Time.
func (h *BlockHeader) Time() time.Time {
	return time.Unix(int64(h.Timestamp), 0)
}
