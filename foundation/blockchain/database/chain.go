package database

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// ChainConfig represents the settings used to mine blocks for a chain.
type ChainConfig struct {
	Difficulty  int        // Length of the random target a hash must start with.
	SearchWidth uint64     // Number of nonces tried per mining round.
	Workers     int        // Goroutines used per mining round, 0 means one per CPU.
	MaxRounds   int        // Mining rounds attempted before giving up, 0 means no limit.
	Rand        *rand.Rand // Source for mining targets, nil uses the global source.
	EvHandler   func(v string, args ...any)
}

// Solution is the result of a successful mining operation.
type Solution struct {
	Block  Block
	Target string // Target solved by the block's hash.
	Rounds int    // Number of rounds it took to find the nonce.
}

// Chain represents an ordered sequence of blocks where every block links to
// the one before it.
type Chain struct {
	cfg    ChainConfig
	blocks []Block
}

// NewChain constructs a chain holding a copy of the specified blocks.
func NewChain(cfg ChainConfig, blocks ...Block) *Chain {
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	return &Chain{
		cfg:    cfg,
		blocks: copyBlocks(blocks),
	}
}

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int {
	return len(c.blocks)
}

// Blocks returns a copy of the blocks in the chain.
func (c *Chain) Blocks() []Block {
	return copyBlocks(c.blocks)
}

// LatestBlock returns the tail of the chain. The bool is false when the
// chain is empty.
func (c *Chain) LatestBlock() (Block, bool) {
	if len(c.blocks) == 0 {
		return Block{}, false
	}

	return c.blocks[len(c.blocks)-1], true
}

// NextIndex returns the index the next block of the chain must carry.
func (c *Chain) NextIndex() (Index, error) {
	latest, exists := c.LatestBlock()
	if !exists {
		return NewIndex(0), nil
	}

	return latest.Index.Next()
}

// Copy returns a new chain with the same configuration and blocks.
func (c *Chain) Copy() *Chain {
	return NewChain(c.cfg, c.blocks...)
}

// Replace swaps the blocks in the chain with a copy of the specified blocks.
func (c *Chain) Replace(blocks []Block) {
	c.blocks = copyBlocks(blocks)
}

// IsValid walks the chain and checks every block links to the block
// before it. A chain with one block or less is always valid.
func (c *Chain) IsValid() bool {
	for i := 1; i < len(c.blocks); i++ {
		if !c.blocks[i].IsValid(c.blocks[i-1]) {
			return false
		}
	}

	return true
}

// Equal reports whether both chains hold the same blocks in the same order.
func (c *Chain) Equal(other *Chain) bool {
	if len(c.blocks) != len(other.blocks) {
		return false
	}

	for i := range c.blocks {
		if !c.blocks[i].Equal(other.blocks[i]) {
			return false
		}
	}

	return true
}

// Append validates the block is the next block for the chain and adds it.
func (c *Chain) Append(block Block) error {
	if !block.IsSealed() {
		return ErrNotSealed
	}

	if !block.VerifyHash() {
		return fmt.Errorf("%s: %w", block.Hash, ErrInvalidHash)
	}

	next, err := c.NextIndex()
	if err != nil {
		return err
	}
	if !block.Index.Equal(next) {
		return fmt.Errorf("got %s, exp %s: %w", block.Index, next, ErrIndexMismatch)
	}

	latest, exists := c.LatestBlock()
	switch {
	case !exists && block.PrevHash != "":
		return ErrGenesisPrevHash

	case exists && !block.IsValid(latest):
		return fmt.Errorf("got %s, exp %s: %w", block.PrevHash, latest.Hash, ErrPrevHashMismatch)
	}

	c.blocks = append(c.blocks, block)
	return nil
}

// Mine runs mining rounds for a block holding the specified transactions
// until a solution is found, the round limit is reached or the context is
// cancelled. Each round draws a new target and moves the nonce offset past
// the nonces already tried. The chain is not changed.
func (c *Chain) Mine(ctx context.Context, trans []Tx) (Solution, bool) {
	var prevHash string
	if latest, exists := c.LatestBlock(); exists {
		prevHash = latest.Hash
	}

	index, err := c.NextIndex()
	if err != nil {
		c.cfg.EvHandler("database: Mine: ERROR: %s", err)
		return Solution{}, false
	}

	req := MineRequest{
		PrevHash:     prevHash,
		Transactions: trans,
		Time:         uint64(time.Now().UTC().UnixNano()),
		Index:        index,
		SearchWidth:  c.cfg.SearchWidth,
		Workers:      c.cfg.Workers,
	}

	c.cfg.EvHandler("database: Mine: MINING: started: blk[%s]: numTrans[%d]", req.Index, len(trans))
	defer c.cfg.EvHandler("database: Mine: MINING: completed: blk[%s]", req.Index)

	for round := 1; c.cfg.MaxRounds == 0 || round <= c.cfg.MaxRounds; round++ {
		if ctx.Err() != nil {
			c.cfg.EvHandler("database: Mine: MINING: CANCELLED: rounds[%d]", round-1)
			return Solution{}, false
		}

		req.Target = NewTarget(c.cfg.Rand, c.cfg.Difficulty)

		block, found := Search(ctx, req)
		if !found {
			req.NonceOffset += req.SearchWidth
			if round%10_000 == 0 {
				c.cfg.EvHandler("database: Mine: MINING: rounds[%d]", round)
			}
			continue
		}

		c.cfg.EvHandler("database: Mine: MINING: SOLVED: target[%s]: hash[%s]: rounds[%d]", req.Target, block.Hash, round)

		return Solution{Block: block, Target: req.Target, Rounds: round}, true
	}

	c.cfg.EvHandler("database: Mine: MINING: round limit reached: rounds[%d]", c.cfg.MaxRounds)
	return Solution{}, false
}

// AddBlock mines a new block with the specified transactions and appends it
// to the chain. The chain is left untouched when no solution is found.
func (c *Chain) AddBlock(ctx context.Context, trans []Tx) bool {
	solution, found := c.Mine(ctx, trans)
	if !found {
		return false
	}

	if err := c.Append(solution.Block); err != nil {
		c.cfg.EvHandler("database: AddBlock: ERROR: %s", err)
		return false
	}

	return true
}

// String implements the fmt.Stringer interface to print the chain.
func (c *Chain) String() string {
	var b strings.Builder
	for _, block := range c.blocks {
		fmt.Fprintf(&b, "%s\n", block)
		for _, tx := range block.Transactions {
			fmt.Fprintf(&b, "\t%s\n", tx)
		}
	}

	return b.String()
}

// =============================================================================

// copyBlocks returns a copy of the slice of blocks. Blocks are never
// modified once sealed so the transactions are shared.
func copyBlocks(blocks []Block) []Block {
	if len(blocks) == 0 {
		return nil
	}

	return append(make([]Block, 0, len(blocks)), blocks...)
}
