package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/decentraland/stoneage-node/internal/types"
	"github.com/decentraland/stoneage-node/pkg/util"
)

var (
	bucketBlocks = []byte("blocks")
	bucketOrder  = []byte("order")
	bucketMeta   = []byte("meta")

	keyTip = []byte("tip")
)

// blockRecord is the CBOR on-disk form of a block. Transactions are stored
// as their wire bytes so the optional signature survives round-trips.
type blockRecord struct {
	Header []byte   `cbor:"1,keyasint"`
	Txs    [][]byte `cbor:"2,keyasint"`
}

// BoltStore is a durable append-only block archive. Blocks are written in
// proposal order so a fresh chain can be rebuilt by replaying them: parents
// always precede children.
type BoltStore struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBoltStore opens (or creates) the archive at path.
func NewBoltStore(path string, logger *zap.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open block archive: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketOrder, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive buckets: %w", err)
	}

	return &BoltStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Add archives a block. Adding the same block twice is an error.
func (s *BoltStore) Add(b *types.Block) error {
	hash := b.Hash()

	record := blockRecord{
		Header: b.Header.Serialize(),
		Txs:    make([][]byte, len(b.Transactions)),
	}
	for i, tx := range b.Transactions {
		record.Txs[i] = tx.Serialize()
	}
	data, err := cbor.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode block record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		if blocks.Get(hash[:]) != nil {
			return fmt.Errorf("block %s already archived", util.HashToHex(hash))
		}
		if err := blocks.Put(hash[:], data); err != nil {
			return err
		}

		order := tx.Bucket(bucketOrder)
		seq, err := order.NextSequence()
		if err != nil {
			return err
		}
		var seqKey [8]byte
		binary.BigEndian.PutUint64(seqKey[:], seq)
		return order.Put(seqKey[:], hash[:])
	})
}

// Get returns an archived block by hash.
func (s *BoltStore) Get(hash [32]byte) (*types.Block, bool) {
	var blk *types.Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBlocks).Get(hash[:])
		if data == nil {
			return nil
		}
		decoded, err := decodeBlockRecord(data)
		if err != nil {
			return err
		}
		blk = decoded
		return nil
	})
	if err != nil {
		s.logger.Error("corrupt block record", zap.String("block", util.HashToHex(hash)), zap.Error(err))
		return nil, false
	}
	return blk, blk != nil
}

// SetTip persists the current best-chain tip.
func (s *BoltStore) SetTip(hash [32]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyTip, hash[:])
	})
}

// Tip returns the persisted tip hash.
func (s *BoltStore) Tip() ([32]byte, bool) {
	var tip [32]byte
	var found bool
	s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyTip)
		if len(data) == 32 {
			copy(tip[:], data)
			found = true
		}
		return nil
	})
	return tip, found
}

// Count returns the number of archived blocks.
func (s *BoltStore) Count() int {
	var count int
	s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketBlocks).Stats().KeyN
		return nil
	})
	return count
}

// Replay proposes every archived block into bc in archive order. Blocks the
// chain rejects are logged and skipped; the replay itself keeps going so one
// bad record cannot strand the rest of the chain.
func (s *BoltStore) Replay(bc *Blockchain) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		return tx.Bucket(bucketOrder).ForEach(func(_, hash []byte) error {
			data := blocks.Get(hash)
			if data == nil {
				return fmt.Errorf("archive order references missing block %x", hash)
			}
			blk, err := decodeBlockRecord(data)
			if err != nil {
				return fmt.Errorf("decode archived block %x: %w", hash, err)
			}
			if _, err := bc.ProposeBlock(blk); err != nil {
				s.logger.Warn("archived block rejected during replay",
					zap.String("block", blk.ID()),
					zap.Error(err),
				)
			}
			return nil
		})
	})
}

func decodeBlockRecord(data []byte) (*types.Block, error) {
	var record blockRecord
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	header, err := types.DeserializeHeader(record.Header)
	if err != nil {
		return nil, err
	}
	txs := make([]*types.Transaction, len(record.Txs))
	for i, raw := range record.Txs {
		tx, err := types.DeserializeTransaction(raw)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return &types.Block{Header: *header, Transactions: txs}, nil
}
