package types

import (
	"bytes"
	"errors"
	"testing"

	"github.com/decentraland/stoneage-node/pkg/crypto"
)

func testKey(t *testing.T, seed byte) *crypto.PrivateKey {
	t.Helper()
	var raw [32]byte
	raw[31] = seed
	key, err := crypto.PrivKeyFromBytes(raw[:])
	if err != nil {
		t.Fatalf("test key: %v", err)
	}
	return key
}

func TestTransactionBuilders(t *testing.T) {
	owner := testKey(t, 1).PublicKey()
	var prev [32]byte
	prev[0] = 0xab

	tx := NewTransaction().From(prev).To(owner).Colored(0xff0000ff).At(3, -4)

	if tx.Version != CurrentTxVersion {
		t.Errorf("version = %d, want %d", tx.Version, CurrentTxVersion)
	}
	if tx.Previous != prev {
		t.Error("From did not set previous")
	}
	if !tx.Owner.IsEqual(owner) {
		t.Error("To did not set owner")
	}
	if tx.Color != 0xff0000ff {
		t.Error("Colored did not set color")
	}
	if tx.Position != (Position{X: 3, Y: -4}) {
		t.Error("At did not set position")
	}
}

func TestIsCoinbase(t *testing.T) {
	coinbase := NewTransaction().At(0, 1)
	if !coinbase.IsCoinbase() {
		t.Error("transaction with null previous should be coinbase")
	}

	var prev [32]byte
	prev[5] = 1
	transfer := NewTransaction().From(prev)
	if transfer.IsCoinbase() {
		t.Error("transaction with non-null previous should not be coinbase")
	}
}

func TestTransactionSerializeRoundTrip(t *testing.T) {
	key := testKey(t, 2)
	owner := key.PublicKey()

	t.Run("unsigned coinbase", func(t *testing.T) {
		tx := NewTransaction().To(owner).Colored(0x00fff0ff).At(-7, 12)
		data := tx.Serialize()

		back, err := DeserializeTransaction(data)
		if err != nil {
			t.Fatalf("DeserializeTransaction: %v", err)
		}
		if !bytes.Equal(back.Serialize(), data) {
			t.Error("round-trip bytes differ")
		}
		if back.ID() != tx.ID() {
			t.Error("round-trip id differs")
		}
	})

	t.Run("signed transfer", func(t *testing.T) {
		coinbase := NewTransaction().To(owner).At(0, 1)
		tx := NewTransaction().From(coinbase.Hash()).To(owner).Colored(0xff0000ff).At(0, 1)
		if err := tx.Sign(key); err != nil {
			t.Fatalf("Sign: %v", err)
		}

		data := tx.Serialize()
		back, err := DeserializeTransaction(data)
		if err != nil {
			t.Fatalf("DeserializeTransaction: %v", err)
		}
		if back.Signature == nil {
			t.Fatal("signature lost in round-trip")
		}
		if !bytes.Equal(back.Serialize(), data) {
			t.Error("round-trip bytes differ")
		}
	})

	t.Run("bad length", func(t *testing.T) {
		if _, err := DeserializeTransaction(make([]byte, 10)); err == nil {
			t.Error("short data should be rejected")
		}
	})
}

func TestColorWireOrder(t *testing.T) {
	tx := NewTransaction().Colored(0xaabbccff)
	data := tx.Serialize()
	// Color is little-endian on the wire: 0xaabbccff -> ff cc bb aa.
	want := []byte{0xff, 0xcc, 0xbb, 0xaa}
	if !bytes.Equal(data[41:45], want) {
		t.Errorf("color bytes = %x, want %x", data[41:45], want)
	}
}

func TestIDExcludesSignature(t *testing.T) {
	key := testKey(t, 3)
	coinbase := NewTransaction().To(key.PublicKey()).At(0, 1)

	tx := NewTransaction().From(coinbase.Hash()).To(key.PublicKey()).At(0, 1)
	idBefore := tx.ID()
	sighashBefore := tx.SigHash()

	if err := tx.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if tx.ID() != idBefore {
		t.Error("signing changed the transaction id")
	}
	if !bytes.Equal(tx.SigHash(), sighashBefore) {
		t.Error("signing changed the sighash")
	}
}

func TestSignRequiresPrevious(t *testing.T) {
	key := testKey(t, 4)
	tx := NewTransaction().To(key.PublicKey()).At(0, 1)

	err := tx.Sign(key)
	if !errors.Is(err, ErrNoPreviousTx) {
		t.Errorf("Sign on coinbase = %v, want ErrNoPreviousTx", err)
	}
}

func TestVerifySignature(t *testing.T) {
	key := testKey(t, 5)
	other := testKey(t, 6)
	coinbase := NewTransaction().To(key.PublicKey()).At(0, 1)

	tx := NewTransaction().From(coinbase.Hash()).To(other.PublicKey()).Colored(0x11223344).At(0, 1)
	if err := tx.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !VerifySignature(tx, tx.Signature, key.PublicKey()) {
		t.Error("signature should verify against the signing key")
	}
	if VerifySignature(tx, tx.Signature, other.PublicKey()) {
		t.Error("signature should not verify against another key")
	}
	if VerifySignature(tx, nil, key.PublicKey()) {
		t.Error("missing signature should not verify")
	}
}
