// Package mempool maintains the set of pending transactions waiting to be
// mined into a block.
package mempool

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
)

// Mempool represents a cache of pending transactions keyed by sender and
// creation time.
type Mempool struct {
	pool map[string]database.Tx
	mu   sync.RWMutex
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]database.Tx),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool and returns the
// number of pending transactions.
func (mp *Mempool) Upsert(tx database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[mapKey(tx)] = tx

	return len(mp.pool)
}

// DeleteBlock removes every transaction recorded by the block.
func (mp *Mempool) DeleteBlock(block database.Block) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var n int
	for _, tx := range block.Transactions {
		key := mapKey(tx)
		if _, exists := mp.pool[key]; exists {
			delete(mp.pool, key)
			n++
		}
	}

	return n
}

// PickAll returns every pending transaction in the order they were created.
func (mp *Mempool) PickAll() []database.Tx {
	mp.mu.RLock()
	trans := make([]database.Tx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		trans = append(trans, tx)
	}
	mp.mu.RUnlock()

	slices.SortFunc(trans, func(a, b database.Tx) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return cmp.Compare(mapKey(a), mapKey(b))
	})

	return trans
}

// =============================================================================

// mapKey is used to generate the map key.
func mapKey(tx database.Tx) string {
	return fmt.Sprintf("%s:%d:%s:%d", tx.From, tx.Time, tx.To, tx.Amount)
}
