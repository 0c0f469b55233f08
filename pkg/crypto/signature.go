package crypto

import (
	"fmt"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/decentraland/stoneage-node/pkg/util"
)

// SignatureLen is the length of a serialized (r, s) signature.
const SignatureLen = 64

// Signature is an ECDSA signature over secp256k1. The scalars are held in
// big-endian form; the wire serialization is little-endian r followed by
// little-endian s.
type Signature struct {
	r [32]byte
	s [32]byte
}

// NewSignature builds a signature from big-endian r and s scalar bytes.
func NewSignature(r, s [32]byte) *Signature {
	return &Signature{r: r, s: s}
}

// ParseSignature parses a 64-byte little-endian (r, s) signature.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != SignatureLen {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureLen, len(b))
	}
	var sig Signature
	copy(sig.r[:], util.ReverseBytes(b[:32]))
	copy(sig.s[:], util.ReverseBytes(b[32:]))
	return &sig, nil
}

// Serialize returns the 64-byte little-endian (r, s) wire form.
func (sig *Signature) Serialize() []byte {
	out := make([]byte, SignatureLen)
	copy(out[:32], util.ReverseBytes(sig.r[:]))
	copy(out[32:], util.ReverseBytes(sig.s[:]))
	return out
}

// R returns the big-endian r scalar bytes.
func (sig *Signature) R() [32]byte { return sig.r }

// S returns the big-endian s scalar bytes.
func (sig *Signature) S() [32]byte { return sig.s }

// WithR returns a copy of the signature with the r scalar replaced.
func (sig *Signature) WithR(r [32]byte) *Signature {
	return &Signature{r: r, s: sig.s}
}

// Verify checks the signature over digest against the given public key.
// Non-canonical scalars (zero or >= group order) never verify.
func (sig *Signature) Verify(digest []byte, pub *PublicKey) bool {
	var r, s secp256k1.ModNScalar
	if overflow := r.SetBytes(&sig.r); overflow != 0 {
		return false
	}
	if overflow := s.SetBytes(&sig.s); overflow != 0 {
		return false
	}
	if r.IsZero() || s.IsZero() {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(digest, pub.key)
}

// IsEqual reports whether two signatures have identical scalars.
func (sig *Signature) IsEqual(other *Signature) bool {
	if sig == nil || other == nil {
		return sig == other
	}
	return sig.r == other.r && sig.s == other.s
}
