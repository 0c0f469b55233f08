package types

import (
	"errors"

	"github.com/decentraland/stoneage-node/pkg/crypto"
	"github.com/decentraland/stoneage-node/pkg/util"
)

// ErrNoPreviousTx is returned when signing a transaction that does not spend
// anything. Coinbase transactions are never signed.
var ErrNoPreviousTx = errors.New("transaction has no previous transaction to spend")

// SigHash returns the 32-byte digest a signer commits to: the canonical
// transaction bytes with the signature cleared, double-SHA256'd and reversed
// into display byte order.
func (t *Transaction) SigHash() []byte {
	h := t.Hash()
	return util.ReverseBytes(h[:])
}

// Sign signs the transaction's sighash with the given key and stores the
// signature. The transaction must reference the transaction being spent.
func (t *Transaction) Sign(priv *crypto.PrivateKey) error {
	if t.Previous == NullHash {
		return ErrNoPreviousTx
	}
	t.Signature = priv.Sign(t.SigHash())
	return nil
}

// VerifySignature checks sig over the transaction's sighash against the
// public key of the prior owner (the owner of the transaction being spent).
func VerifySignature(t *Transaction, sig *crypto.Signature, pub *crypto.PublicKey) bool {
	if sig == nil || pub == nil {
		return false
	}
	return sig.Verify(t.SigHash(), pub)
}
