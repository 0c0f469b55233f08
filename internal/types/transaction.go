package types

import (
	"fmt"

	"github.com/decentraland/stoneage-node/pkg/crypto"
	"github.com/decentraland/stoneage-node/pkg/util"
)

// CurrentTxVersion is the only transaction version this node produces or accepts.
const CurrentTxVersion = 1

// Transaction wire layout sizes. The signature, when present, is appended
// after the owner key and is excluded from the id and sighash pre-image.
const (
	txBaseLen   = 1 + 32 + 4 + 4 + 4 + crypto.PubKeyLen
	txSignedLen = txBaseLen + crypto.SignatureLen
)

// NullHash is the all-zero hash sentinel. A transaction whose Previous is
// NullHash is a coinbase; the chain tip starts at NullHash.
var NullHash [32]byte

// Transaction either mines a new pixel (coinbase) or transfers an existing
// one to a new owner. Previous holds the spent transaction's hash in internal
// byte order.
type Transaction struct {
	Version   uint8
	Previous  [32]byte
	Position  Position
	Color     uint32
	Owner     *crypto.PublicKey
	Signature *crypto.Signature
}

// NewTransaction returns an empty transaction at the current version.
func NewTransaction() *Transaction {
	return &Transaction{Version: CurrentTxVersion}
}

// From sets the spent transaction hash and returns the transaction.
func (t *Transaction) From(prev [32]byte) *Transaction {
	t.Previous = prev
	return t
}

// To sets the new owner and returns the transaction.
func (t *Transaction) To(owner *crypto.PublicKey) *Transaction {
	t.Owner = owner
	return t
}

// Colored sets the pixel color (packed RGBA) and returns the transaction.
func (t *Transaction) Colored(color uint32) *Transaction {
	t.Color = color
	return t
}

// At sets the pixel position and returns the transaction.
func (t *Transaction) At(x, y int32) *Transaction {
	t.Position = Position{X: x, Y: y}
	return t
}

// IsCoinbase reports whether the transaction mines a new pixel.
func (t *Transaction) IsCoinbase() bool {
	return t.Previous == NullHash
}

// serializeBase writes the canonical bytes excluding the signature:
// version, previous, x, y, color, owner. A missing owner serializes as
// zero bytes so unsigned drafts still round-trip.
func (t *Transaction) serializeBase() []byte {
	buf := make([]byte, txBaseLen)
	buf[0] = t.Version
	copy(buf[1:33], t.Previous[:])
	util.PutInt32(buf[33:37], t.Position.X)
	util.PutInt32(buf[37:41], t.Position.Y)
	copy(buf[41:45], util.Uint32ToBytes(t.Color))
	if t.Owner != nil {
		copy(buf[45:], t.Owner.SerializeCompressed())
	}
	return buf
}

// Serialize returns the wire form: the canonical bytes, with the 64-byte
// little-endian signature appended when present.
func (t *Transaction) Serialize() []byte {
	base := t.serializeBase()
	if t.Signature == nil {
		return base
	}
	return append(base, t.Signature.Serialize()...)
}

// DeserializeTransaction parses a transaction from its wire form.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	if len(data) != txBaseLen && len(data) != txSignedLen {
		return nil, fmt.Errorf("transaction must be %d or %d bytes, got %d", txBaseLen, txSignedLen, len(data))
	}

	t := &Transaction{Version: data[0]}
	copy(t.Previous[:], data[1:33])
	t.Position.X = util.Int32(data[33:37])
	t.Position.Y = util.Int32(data[37:41])
	t.Color = uint32(util.Int32(data[41:45]))

	ownerBytes := data[45:txBaseLen]
	if !allZero(ownerBytes) {
		owner, err := crypto.ParsePubKey(ownerBytes)
		if err != nil {
			return nil, fmt.Errorf("transaction owner: %w", err)
		}
		t.Owner = owner
	}

	if len(data) == txSignedLen {
		sig, err := crypto.ParseSignature(data[txBaseLen:])
		if err != nil {
			return nil, fmt.Errorf("transaction signature: %w", err)
		}
		t.Signature = sig
	}

	return t, nil
}

// Hash returns the double-SHA256 of the canonical bytes, signature excluded.
// The signature certifies this hash, so it cannot be part of it.
func (t *Transaction) Hash() [32]byte {
	return util.DoubleSHA256(t.serializeBase())
}

// ID returns the transaction id: the hash in display (reversed hex) order.
func (t *Transaction) ID() string {
	return util.HashToHex(t.Hash())
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
