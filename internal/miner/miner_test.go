package miner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/decentraland/stoneage-node/internal/types"
	"github.com/decentraland/stoneage-node/testutil"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestMiner(t *testing.T, bits uint32) (*Miner, *types.Block) {
	t.Helper()
	genesis := testutil.GenesisBlock()
	owner := testutil.TestKey(2)
	coinbase := testutil.NewCoinbase(owner.PublicKey(), 0, 1, 0xff0000ff)
	return New(genesis, coinbase, testutil.GenesisTime, bits, testLogger()), genesis
}

func TestMinerFindsBlock(t *testing.T) {
	m, genesis := newTestMiner(t, testutil.EasyBits)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	blk, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if blk == nil {
		t.Fatal("Run returned no block")
	}

	if !blk.Header.ValidProofOfWork() {
		t.Error("mined block should meet its target")
	}
	if blk.Header.PrevHash != genesis.Hash() {
		t.Error("mined block should extend the seeded tip")
	}
	if blk.Header.Height != 1 {
		t.Errorf("mined height = %d, want 1", blk.Header.Height)
	}
	if !blk.ValidMerkleRoot() {
		t.Error("mined block should carry a valid merkle root")
	}

	// Exactly one event per search.
	select {
	case event := <-m.Blocks():
		if event.Hash() != blk.Hash() {
			t.Error("event block differs from returned block")
		}
	default:
		t.Fatal("no block event delivered")
	}
	select {
	case <-m.Blocks():
		t.Fatal("second block event delivered")
	default:
	}

	// A completed search stays inert until re-seeded.
	if _, ok := m.Work(); ok {
		t.Error("Work should not mine again before NewTip")
	}
	if again, err := m.Run(ctx); err != nil || again != nil {
		t.Error("Run should be a no-op before NewTip")
	}
}

func TestMinerStricterTarget(t *testing.T) {
	m, _ := newTestMiner(t, testutil.StricterBits)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	blk, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !blk.Header.ValidProofOfWork() {
		t.Error("block should meet the stricter target")
	}
	if blk.Header.Bits != testutil.StricterBits {
		t.Errorf("bits = 0x%08x, want 0x%08x", blk.Header.Bits, testutil.StricterBits)
	}
}

func TestMinerWorkSingleStep(t *testing.T) {
	m, _ := newTestMiner(t, testutil.EasyBits)

	// Drive the iterator by hand, as a cooperative host would.
	var blk *types.Block
	for i := 0; i < 1_000_000; i++ {
		if found, ok := m.Work(); ok {
			blk = found
			break
		}
	}
	if blk == nil {
		t.Fatal("manual stepping never found a block")
	}
	if !blk.Header.ValidProofOfWork() {
		t.Error("stepped block should meet its target")
	}
}

func TestMinerStop(t *testing.T) {
	// An unreachable target keeps the search running until Stop.
	m, _ := newTestMiner(t, 0)

	done := make(chan struct{})
	var blk *types.Block
	var err error
	go func() {
		blk, err = m.Run(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	m.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after Stop")
	}
	if err != nil {
		t.Fatalf("Run after Stop: %v", err)
	}
	if blk != nil {
		t.Error("stopped search should not return a block")
	}
}

func TestMinerContextCancel(t *testing.T) {
	m, _ := newTestMiner(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if _, err := m.Run(ctx); err == nil {
		t.Error("cancelled Run should return the context error")
	}
}

func TestMinerAddTransaction(t *testing.T) {
	m, _ := newTestMiner(t, testutil.EasyBits)
	owner := testutil.TestKey(2)

	rootBefore := m.template.Header.MerkleRoot

	transfer := types.NewTransaction().From(m.template.Coinbase().Hash()).To(owner.PublicKey()).At(0, 1)
	if err := transfer.Sign(owner); err != nil {
		t.Fatalf("sign transfer: %v", err)
	}
	m.AddTransaction(transfer)

	if m.template.Header.MerkleRoot == rootBefore {
		t.Error("adding a transaction should change the merkle root")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	blk, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(blk.Transactions) != 2 {
		t.Fatalf("mined block has %d transactions, want 2", len(blk.Transactions))
	}
	if blk.Transactions[1] != transfer {
		t.Error("mined block should include the added transfer")
	}
}

func TestMinerNewTip(t *testing.T) {
	m, _ := newTestMiner(t, testutil.EasyBits)
	owner := testutil.TestKey(2)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	<-m.Blocks()

	// Re-seed on the block just found, with a fresh coinbase.
	coinbase := testutil.NewCoinbase(owner.PublicKey(), 0, 2, 0x00ff00ff)
	m.NewTip(first, coinbase)

	second, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Header.PrevHash != first.Hash() {
		t.Error("re-seeded search should extend the new tip")
	}
	if second.Header.Height != first.Header.Height+1 {
		t.Error("re-seeded height should advance")
	}
	if second.Coinbase() != coinbase {
		t.Error("re-seeded search should use the fresh coinbase")
	}
	if second.Hash() == first.Hash() {
		t.Error("the two searches should find different blocks")
	}

	// A mined block's snapshot must not alias the live template.
	if first.Header.PrevHash == second.Header.PrevHash {
		t.Error("NewTip mutated the previously emitted block")
	}
}

func TestMinerHashRateLimit(t *testing.T) {
	genesis := testutil.GenesisBlock()
	owner := testutil.TestKey(2)
	coinbase := testutil.NewCoinbase(owner.PublicKey(), 0, 1, 1)

	// 100 hashes/sec against an unreachable target: Run must stay throttled
	// until the context deadline.
	m := New(genesis, coinbase, testutil.GenesisTime, 0, testLogger(), WithHashRateLimit(rate.Limit(100)))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Run(ctx)
	if err == nil {
		t.Fatal("Run against an unreachable target should end with the deadline")
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("Run returned after %v, expected to be held by the limiter", elapsed)
	}
}
