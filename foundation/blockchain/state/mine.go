package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
)

// Set of errors returned when mining.
var (
	ErrNotEnoughTransactions = errors.New("not enough transactions in mempool")
	ErrNoSolution            = errors.New("no solution found")
	ErrStaleBlock            = errors.New("chain changed while mining")
)

// MiningJob is a snapshot of the chain and the pending transactions. It can
// be mined on any goroutine since it shares nothing with the node.
type MiningJob struct {
	chain *database.Chain
	trans []database.Tx
}

// Transactions returns the transactions the job will mine.
func (j MiningJob) Transactions() []database.Tx {
	return j.trans
}

// Mine searches for a block holding the job's transactions that extends
// the snapshot of the chain.
func (j MiningJob) Mine(ctx context.Context) (database.Solution, bool) {
	return j.chain.Mine(ctx, j.trans)
}

// =============================================================================

// MiningJob takes a snapshot of the chain and the pending transactions so a
// new block can be mined without holding the node.
func (s *State) MiningJob() (MiningJob, error) {
	if n := s.mempool.Count(); n == 0 || n < s.genesis.MinTxPerBlock {
		return MiningJob{}, fmt.Errorf("pending[%d] required[%d]: %w", n, s.genesis.MinTxPerBlock, ErrNotEnoughTransactions)
	}

	job := MiningJob{
		chain: s.chain.Copy(),
		trans: s.mempool.PickAll(),
	}

	s.evHandler("state: MiningJob: MINING: blk[%d]: numTrans[%d]", job.chain.Len(), len(job.trans))

	return job, nil
}

// CommitMinedBlock appends a block mined from a job. The block is rejected
// when the chain changed since the job was taken.
func (s *State) CommitMinedBlock(block database.Block) error {
	if err := s.chain.Append(block); err != nil {
		s.evHandler("state: CommitMinedBlock: MINING: blk[%s]: DISCARDED: %s", block.Index, err)
		return fmt.Errorf("%w: %w", ErrStaleBlock, err)
	}

	n := s.mempool.DeleteBlock(block)
	s.evHandler("state: CommitMinedBlock: MINING: blk[%s]: hash[%s]: cleared[%d]", block.Index, block.Hash, n)

	return nil
}

// AddBlock mines the pending transactions into a new block and appends it
// to the chain.
func (s *State) AddBlock(ctx context.Context) (database.Block, error) {
	job, err := s.MiningJob()
	if err != nil {
		return database.Block{}, err
	}

	solution, found := job.Mine(ctx)
	if !found {
		if err := ctx.Err(); err != nil {
			return database.Block{}, err
		}
		return database.Block{}, ErrNoSolution
	}

	if err := s.CommitMinedBlock(solution.Block); err != nil {
		return database.Block{}, err
	}

	return solution.Block, nil
}

// AcceptPeerBlock appends a block mined by a peer when it extends the chain.
func (s *State) AcceptPeerBlock(block database.Block) error {
	s.evHandler("state: AcceptPeerBlock: started: blk[%s]: hash[%s]", block.Index, block.Hash)
	defer s.evHandler("state: AcceptPeerBlock: completed")

	if err := s.chain.Append(block); err != nil {
		return err
	}

	n := s.mempool.DeleteBlock(block)
	s.evHandler("state: AcceptPeerBlock: blk[%s]: cleared[%d]", block.Index, n)

	return nil
}

// IsAhead reports whether the block's index is past the next index of the
// local chain, which means the peer holds blocks this node is missing.
func (s *State) IsAhead(block database.Block) bool {
	next, err := s.chain.NextIndex()
	if err != nil {
		return false
	}

	return block.Index.Cmp(next) > 0
}
