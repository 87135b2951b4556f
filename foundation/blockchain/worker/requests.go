package worker

import (
	"context"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/peer"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
)

// mineResult is the answer for a mine request.
type mineResult struct {
	block database.Block
	err   error
}

// MineBlock mines the pending transactions into a new block and waits for
// the block to be committed and broadcast. Requests made while mining is in
// progress wait for the same result.
func (w *Worker) MineBlock(ctx context.Context) (database.Block, error) {
	ch := make(chan mineResult, 1)

	var startErr error
	fn := func(*state.State) {
		if !w.mining {
			if startErr = w.startMining(); startErr != nil {
				return
			}
		}
		w.waiters = append(w.waiters, ch)
	}

	if err := w.do(ctx, fn); err != nil {
		return database.Block{}, err
	}

	if startErr != nil {
		return database.Block{}, startErr
	}

	select {
	case res := <-ch:
		return res.block, res.err
	case <-ctx.Done():
		return database.Block{}, ctx.Err()
	}
}

// Blocks returns a copy of the node's chain.
func (w *Worker) Blocks(ctx context.Context) ([]database.Block, error) {
	var blocks []database.Block
	fn := func(s *state.State) {
		blocks = s.Blocks()
	}

	if err := w.do(ctx, fn); err != nil {
		return nil, err
	}

	return blocks, nil
}

// SubmitTransaction adds a transaction to the node's mempool.
func (w *Worker) SubmitTransaction(ctx context.Context, tx database.Tx) error {
	fn := func(s *state.State) {
		s.SubmitTransaction(tx)
	}

	return w.do(ctx, fn)
}

// Mempool returns the pending transactions.
func (w *Worker) Mempool(ctx context.Context) ([]database.Tx, error) {
	var trans []database.Tx
	fn := func(s *state.State) {
		trans = s.Mempool()
	}

	if err := w.do(ctx, fn); err != nil {
		return nil, err
	}

	return trans, nil
}

// Status returns the status of this node.
func (w *Worker) Status(ctx context.Context) (peer.PeerStatus, error) {
	var status peer.PeerStatus
	fn := func(s *state.State) {
		status = peer.PeerStatus{
			ID:          w.transport.ID(),
			ChainLength: s.ChainLength(),
			KnownPeers:  w.transport.Peers(),
		}
		if latest, exists := s.LatestBlock(); exists {
			status.LatestBlockHash = latest.Hash
		}
	}

	if err := w.do(ctx, fn); err != nil {
		return peer.PeerStatus{}, err
	}

	return status, nil
}

// Peers returns the peers currently connected to the node.
func (w *Worker) Peers() []peer.Peer {
	return w.transport.Peers()
}

// ID returns the peer id of the node.
func (w *Worker) ID() string {
	return w.transport.ID()
}

// Genesis returns the genesis settings of the node.
func (w *Worker) Genesis() genesis.Genesis {
	return w.state.Genesis()
}

// Wallet returns the wallet id of the node.
func (w *Worker) Wallet() database.WalletID {
	return w.state.Wallet()
}
