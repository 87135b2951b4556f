package database

import (
	"context"
	"math/rand/v2"
	"runtime"
	"strings"
	"sync"
)

// targetCharset is the alphabet a mining target is drawn from. It matches
// the alphabet of a lowercase hex hash.
const targetCharset = "abcdef0123456789"

// NewTarget draws a random target of the specified length. A block is solved
// when its hash starts with the target, so every extra character multiplies
// the expected work by 16. When rng is nil the global source is used.
func NewTarget(rng *rand.Rand, difficulty int) string {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}

	var b strings.Builder
	b.Grow(difficulty)
	for range difficulty {
		b.WriteByte(targetCharset[intN(len(targetCharset))])
	}

	return strings.ToLower(b.String())
}

// =============================================================================

// MineRequest describes a single round of the proof of work search.
type MineRequest struct {
	PrevHash     string
	Transactions []Tx
	NonceOffset  uint64 // First nonce to try in this round.
	Time         uint64 // Block time, fixed for the round.
	Index        Index
	Target       string // Prefix the sealed hash must start with.
	SearchWidth  uint64 // Number of nonces tried in this round.
	Workers      int    // Number of goroutines sealing candidates, 0 means one per CPU.
}

// Search performs one round of the proof of work search. Candidate blocks for
// the nonces [NonceOffset, NonceOffset+SearchWidth) are sealed in parallel and
// the first block whose hash starts with the target is returned. The bool is
// false when no nonce in the range solves the target, which means the caller
// should try again with a new offset and target.
func Search(ctx context.Context, req MineRequest) (Block, bool) {
	if req.SearchWidth == 0 || ctx.Err() != nil {
		return Block{}, false
	}

	workers := req.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if uint64(workers) > req.SearchWidth {
		workers = int(req.SearchWidth)
	}

	// The first worker to find a solution cancels the others.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan Block, 1)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := range workers {
		go func(start uint64) {
			defer wg.Done()

			// Each worker strides through the range so the work is evenly spread.
			for i := start; i < req.SearchWidth; i += uint64(workers) {
				if ctx.Err() != nil {
					return
				}

				block := NewBlock(req.PrevHash, req.Transactions, req.NonceOffset+i, req.Time, req.Index)
				if !strings.HasPrefix(block.Seal(), req.Target) {
					continue
				}

				select {
				case found <- block:
					cancel()
				default:
				}
				return
			}
		}(uint64(w))
	}

	wg.Wait()

	select {
	case block := <-found:
		return block, true
	default:
		return Block{}, false
	}
}
