// Package miner searches block header nonces until the proof-of-work holds.
package miner

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/decentraland/stoneage-node/internal/metrics"
	"github.com/decentraland/stoneage-node/internal/types"
)

// Miner owns a candidate block template and advances its nonce one step at a
// time. Work is the single-step iterator: the host decides how to batch it —
// a tight Run loop, a cooperative scheduler, or manual stepping in tests.
//
// Each successful search sends its block once on Blocks, after which the
// miner is stopped and must be re-seeded with NewTip before mining again.
// The send does not block: while an earlier block is still unreceived on
// Blocks, a newly found block is logged and not sent; Work and Run still
// return it.
type Miner struct {
	mu       sync.Mutex
	template *types.Block
	running  bool
	done     bool

	found   chan *types.Block
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Miner.
type Option func(*Miner)

// WithHashRateLimit throttles the Run loop to roughly limit hashes per
// second, so a background miner does not peg a core.
func WithHashRateLimit(limit rate.Limit) Option {
	return func(m *Miner) {
		burst := int(limit)
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(limit, burst)
	}
}

// New builds a miner over a template extending prev. A nil prev seeds the
// first block of a chain: height 0 on the NullHash sentinel.
func New(prev *types.Block, coinbase *types.Transaction, timestamp, bits uint32, logger *zap.Logger, opts ...Option) *Miner {
	m := &Miner{
		found:  make(chan *types.Block, 1),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.template = buildTemplate(prev, coinbase, timestamp, bits)
	return m
}

func buildTemplate(prev *types.Block, coinbase *types.Transaction, timestamp, bits uint32) *types.Block {
	header := types.BlockHeader{
		Version:   types.CurrentBlockVersion,
		Timestamp: timestamp,
		Bits:      bits,
	}
	if prev != nil {
		header.Height = prev.Header.Height + 1
		header.PrevHash = prev.Hash()
	}
	return types.FromCoinbase(coinbase, header)
}

// Blocks returns the channel successful searches are delivered on.
func (m *Miner) Blocks() <-chan *types.Block {
	return m.found
}

// Work advances the nonce by one and checks the proof-of-work. On success it
// snapshots the template, emits it on Blocks (unless Blocks still holds an
// unreceived block), stops the miner, and returns the block.
func (m *Miner) Work() (*types.Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return nil, false
	}

	m.template.Header.IncrementNonce()
	metrics.MinerHashes.Inc()

	if !m.template.Header.ValidProofOfWork() {
		return nil, false
	}

	m.running = false
	m.done = true
	blk := snapshotBlock(m.template)
	metrics.BlocksMined.Inc()
	m.logger.Info("block mined",
		zap.String("block", blk.ID()),
		zap.Uint32("height", blk.Header.Height),
		zap.Uint32("nonce", blk.Header.Nonce),
	)

	select {
	case m.found <- blk:
	default:
		m.logger.Warn("block channel full, dropping event", zap.String("block", blk.ID()))
	}
	return blk, true
}

// Run iterates Work until a block is found, Stop is called, or the context
// is cancelled.
func (m *Miner) Run(ctx context.Context) (*types.Block, error) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil, nil
	}
	m.running = true
	m.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			m.Stop()
			return nil, err
		}
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				m.Stop()
				return nil, err
			}
		}

		if blk, found := m.Work(); found {
			return blk, nil
		}

		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if !running {
			return nil, nil
		}
	}
}

// Stop clears the run flag; the next Run iteration exits.
func (m *Miner) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// AddTransaction appends a transfer to the template. The merkle root changes,
// so any accumulated nonce work is implicitly discarded.
func (m *Miner) AddTransaction(tx *types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.template.AddTransaction(tx)
}

// NewTip re-seeds the template on a new chain tip, optionally swapping in a
// fresh coinbase. Pending transfers carry over; the nonce search restarts.
func (m *Miner) NewTip(prev *types.Block, coinbase *types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if coinbase == nil {
		coinbase = m.template.Coinbase()
	}
	transfers := m.template.Transactions[1:]

	template := buildTemplate(prev, coinbase, m.template.Header.Timestamp, m.template.Header.Bits)
	for _, tx := range transfers {
		template.AddTransaction(tx)
	}
	m.template = template
	m.done = false
}

// snapshotBlock copies the header and transaction list so later template
// mutations cannot alter an emitted block.
func snapshotBlock(b *types.Block) *types.Block {
	txs := make([]*types.Transaction, len(b.Transactions))
	copy(txs, b.Transactions)
	return &types.Block{Header: b.Header, Transactions: txs}
}
