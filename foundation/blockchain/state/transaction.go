package state

import (
	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
)

// SubmitTransaction adds a new transaction to the mempool.
func (s *State) SubmitTransaction(tx database.Tx) {
	n := s.mempool.Upsert(tx)
	s.evHandler("state: SubmitTransaction: tx[%s]: pending[%d]", tx, n)
}

// Mempool returns a copy of the pending transactions in the order they
// will be mined.
func (s *State) Mempool() []database.Tx {
	return s.mempool.PickAll()
}

// MempoolLength returns the number of pending transactions.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}
