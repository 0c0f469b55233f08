package crypto

import (
	"encoding/hex"
	"fmt"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/decentraland/stoneage-node/pkg/util"
)

const (
	// PubKeyLen is the length of a compressed secp256k1 public key.
	PubKeyLen = 33

	// PrivKeyLen is the length of a raw private key.
	PrivKeyLen = 32
)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivKeyFromBytes builds a private key from its 32-byte serialization.
func PrivKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivKeyLen {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivKeyLen, len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Serialize returns the raw 32-byte private key.
func (k *PrivateKey) Serialize() []byte {
	return k.key.Serialize()
}

// PublicKey returns the public key for this private key.
func (k *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: k.key.PubKey()}
}

// Sign produces a deterministic (RFC6979) ECDSA signature over digest.
func (k *PrivateKey) Sign(digest []byte) *Signature {
	sig := ecdsa.Sign(k.key, digest)
	r := sig.R()
	s := sig.S()
	return &Signature{r: r.Bytes(), s: s.Bytes()}
}

// PublicKey wraps a secp256k1 public key. Only the compressed 33-byte
// serialization is accepted and produced.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// ParsePubKey parses a compressed 33-byte public key. Uncompressed and hybrid
// encodings are rejected.
func ParsePubKey(b []byte) (*PublicKey, error) {
	if len(b) != PubKeyLen {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", PubKeyLen, len(b))
	}
	if b[0] != 0x02 && b[0] != 0x03 {
		return nil, fmt.Errorf("public key must be compressed, got prefix 0x%02x", b[0])
	}
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// SerializeCompressed returns the 33-byte compressed serialization.
func (p *PublicKey) SerializeCompressed() []byte {
	return p.key.SerializeCompressed()
}

// Address returns the owner address: hex of RIPEMD160(SHA256(compressed key)).
func (p *PublicKey) Address() string {
	h := util.Hash160(p.key.SerializeCompressed())
	return hex.EncodeToString(h[:])
}

// IsEqual reports whether two public keys are the same point.
func (p *PublicKey) IsEqual(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.key.IsEqual(other.key)
}
