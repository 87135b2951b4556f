package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip/memnet"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

// testGenesis returns settings that mine quickly.
func testGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.Difficulty = 1
	gen.SearchWidth = 256

	return gen
}

// startNode joins the network and runs a worker for a new node.
func startNode(t *testing.T, net *memnet.Network, id string, initDelay time.Duration) *worker.Worker {
	return startNodeWith(t, net, id, initDelay, testGenesis(), nil)
}

// startNodeWith runs a worker for a node with the specified genesis that
// starts from the specified blocks.
func startNodeWith(t *testing.T, net *memnet.Network, id string, initDelay time.Duration, gen genesis.Genesis, blocks []database.Block) *worker.Worker {
	s, err := state.New(state.Config{
		Wallet:    database.WalletID(id),
		Genesis:   gen,
		Blocks:    blocks,
		EvHandler: func(v string, args ...any) { t.Logf(id+": "+v, args...) },
	})
	ifErrFailNow(t, err)

	tr := net.Join(id)

	w := worker.Run(worker.Config{
		State:     s,
		Transport: tr,
		InitDelay: initDelay,
		EvHandler: func(v string, args ...any) { t.Logf(id+": "+v, args...) },
	})

	t.Cleanup(func() {
		w.Shutdown()
		tr.Close()
	})

	return w
}

// mine submits a transaction and mines it into a block.
func mine(t *testing.T, w *worker.Worker, amount int64) database.Block {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ifErrFailNow(t, w.SubmitTransaction(ctx, database.NewTx("alice", "bob", amount)))

	block, err := w.MineBlock(ctx)
	ifErrFailNow(t, err)

	return block
}

// waitForChain polls the node until its chain matches the expected blocks.
func waitForChain(t *testing.T, w *worker.Worker, exp []database.Block) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		blocks, err := w.Blocks(context.Background())
		ifErrFailNow(t, err)

		if database.NewChain(database.ChainConfig{}, blocks...).Equal(database.NewChain(database.ChainConfig{}, exp...)) {
			return true
		}

		time.Sleep(10 * time.Millisecond)
	}

	return false
}

// peerChain mines n blocks outside of any node, the way another node on
// the network would have built its chain.
func peerChain(t *testing.T, n int, from string) []database.Block {
	chain := database.NewChain(database.ChainConfig{SearchWidth: 1, Workers: 1})
	for i := range n {
		if !chain.AddBlock(context.Background(), []database.Tx{database.NewTx(from, "bob", int64(i+1))}) {
			t.Fatalf("Should be able to mine peer block %d.", i)
		}
	}

	return chain.Blocks()
}

// publishAs sends the message to the network from the transport.
func publishAs(t *testing.T, tr *memnet.Transport, msg any) {
	data, err := gossip.Encode(tr.ID(), msg)
	ifErrFailNow(t, err)

	ifErrFailNow(t, tr.Publish(context.Background(), gossip.DefaultTopic, data))
}

// waitForChainRequest reads the transport until a chain request addressed
// to it arrives.
func waitForChainRequest(t *testing.T, tr *memnet.Transport) bool {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case d := <-tr.Messages():
			_, msg, err := gossip.Decode(d.Data)
			ifErrFailNow(t, err)

			if req, ok := msg.(gossip.ChainRequest); ok && req.FromPeerID == tr.ID() {
				return true
			}

		case <-timeout:
			return false
		}
	}
}

func Test_BlockBroadcast(t *testing.T) {
	t.Log("Given the need to share mined blocks with peers.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a node mines a block.", testID)
		{
			net := memnet.NewNetwork(0)
			a := startNode(t, net, "node-a", time.Hour)
			b := startNode(t, net, "node-b", time.Hour)

			block := mine(t, a, 10)

			if !block.IsSealed() || !block.VerifyHash() {
				t.Fatalf("\t%s\tTest %d:\tShould mine a sealed block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine a sealed block.", success, testID)

			if !waitForChain(t, b, []database.Block{block}) {
				t.Fatalf("\t%s\tTest %d:\tShould append the block on the peer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould append the block on the peer.", success, testID)

			pending, err := a.Mempool(context.Background())
			ifErrFailNow(t, err)
			if len(pending) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould clear the mined transactions: %d left", failed, testID, len(pending))
			}
			t.Logf("\t%s\tTest %d:\tShould clear the mined transactions.", success, testID)
		}
	}
}

func Test_InitSync(t *testing.T) {
	t.Log("Given the need for a new node to catch up with the network.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a node joins after blocks were mined.", testID)
		{
			net := memnet.NewNetwork(0)
			a := startNode(t, net, "node-a", time.Hour)

			blocks := []database.Block{mine(t, a, 1), mine(t, a, 2)}

			b := startNode(t, net, "node-b", 10*time.Millisecond)

			if !waitForChain(t, b, blocks) {
				t.Fatalf("\t%s\tTest %d:\tShould adopt the chain of the most recent peer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould adopt the chain of the most recent peer.", success, testID)

			status, err := b.Status(context.Background())
			ifErrFailNow(t, err)
			if status.ChainLength != 2 || status.LatestBlockHash != blocks[1].Hash || len(status.KnownPeers) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould report the new status: %+v", failed, testID, status)
			}
			t.Logf("\t%s\tTest %d:\tShould report the new status.", success, testID)
		}
	}
}

func Test_BlockAhead(t *testing.T) {
	t.Log("Given the need to catch up when a peer is ahead.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block arrives past the tail of the chain.", testID)
		{
			net := memnet.NewNetwork(0)
			a := startNode(t, net, "node-a", time.Hour)

			blocks := []database.Block{mine(t, a, 1), mine(t, a, 2)}

			b := startNode(t, net, "node-b", time.Hour)

			blocks = append(blocks, mine(t, a, 3))

			if !waitForChain(t, b, blocks) {
				t.Fatalf("\t%s\tTest %d:\tShould request and adopt the peer's chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould request and adopt the peer's chain.", success, testID)
		}
	}
}

func Test_MineEmpty(t *testing.T) {
	t.Log("Given the need to only mine pending transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the mempool is empty.", testID)
		{
			net := memnet.NewNetwork(0)
			a := startNode(t, net, "node-a", time.Hour)

			if _, err := a.MineBlock(context.Background()); !errors.Is(err, state.ErrNotEnoughTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to mine: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to mine.", success, testID)
		}
	}
}

func Test_Fork(t *testing.T) {
	t.Log("Given the need to converge when peers mine on different forks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block arrives for the next index on a different fork.", testID)
		{
			net := memnet.NewNetwork(0)
			b := startNode(t, net, "node-b", time.Hour)

			x := net.Join("node-x")
			t.Cleanup(func() { x.Close() })

			mine(t, b, 1)

			fork := peerChain(t, 2, "carol")
			publishAs(t, x, fork[1])

			if !waitForChainRequest(t, x) {
				t.Fatalf("\t%s\tTest %d:\tShould request the chain of the peer on the other fork.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould request the chain of the peer on the other fork.", success, testID)

			publishAs(t, x, gossip.ChainResponse{ReceiverPeerID: "node-b", Chain: fork})

			if !waitForChain(t, b, fork) {
				t.Fatalf("\t%s\tTest %d:\tShould adopt the longer fork.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould adopt the longer fork.", success, testID)
		}
	}
}

func Test_NoValidChain(t *testing.T) {
	t.Log("Given the need to handle a node left without a valid chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the conflict policy is fatal.", testID)
		{
			own := peerChain(t, 3, "alice")
			own[2].PrevHash = "bad"

			gen := testGenesis()
			gen.ConflictPolicy = genesis.PolicyFatal

			net := memnet.NewNetwork(0)
			a := startNodeWith(t, net, "node-a", time.Hour, gen, own)

			x := net.Join("node-x")
			t.Cleanup(func() { x.Close() })

			other := peerChain(t, 4, "carol")
			other[2].PrevHash = "bad"
			publishAs(t, x, gossip.ChainResponse{ReceiverPeerID: "node-a", Chain: other})

			select {
			case err := <-a.Fatal():
				if !errors.Is(err, state.ErrNoValidChain) {
					t.Fatalf("\t%s\tTest %d:\tShould report no valid chain: %v", failed, testID, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould signal a fatal error.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould signal a fatal error reporting no valid chain.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the conflict policy is reject.", testID)
		{
			own := peerChain(t, 3, "alice")
			own[2].PrevHash = "bad"

			gen := testGenesis()
			gen.ConflictPolicy = genesis.PolicyReject

			net := memnet.NewNetwork(0)
			a := startNodeWith(t, net, "node-a", time.Hour, gen, own)

			x := net.Join("node-x")
			t.Cleanup(func() { x.Close() })

			other := peerChain(t, 4, "carol")
			other[2].PrevHash = "bad"
			publishAs(t, x, gossip.ChainResponse{ReceiverPeerID: "node-a", Chain: other})

			select {
			case err := <-a.Fatal():
				t.Fatalf("\t%s\tTest %d:\tShould not signal a fatal error: %v", failed, testID, err)
			case <-time.After(250 * time.Millisecond):
			}
			t.Logf("\t%s\tTest %d:\tShould not signal a fatal error.", success, testID)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if !waitForChain(t, a, own) {
				t.Fatalf("\t%s\tTest %d:\tShould keep the local chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the local chain.", success, testID)

			if err := a.SubmitTransaction(ctx, database.NewTx("alice", "bob", 1)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould keep serving requests: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould keep serving requests.", success, testID)
		}
	}
}
