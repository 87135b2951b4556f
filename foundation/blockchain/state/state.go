// Package state is the core API for the blockchain node. It owns the node's
// chain and pending transactions and implements the rules for mining,
// accepting peer blocks and resolving conflicting chains.
//
// A State is not safe for concurrent use. The worker package owns it and
// serializes every call through a single goroutine.
package state

import (
	"math/rand/v2"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/mempool"
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Wallet    database.WalletID
	Genesis   genesis.Genesis
	Workers   int              // Mining goroutines, 0 means one per CPU.
	Rand      *rand.Rand       // Source for mining targets, nil uses the global source.
	Blocks    []database.Block // Chain to start from, such as one served by another node.
	EvHandler EventHandler
}

// State manages the blockchain node.
type State struct {
	wallet    database.WalletID
	genesis   genesis.Genesis
	evHandler EventHandler

	chain   *database.Chain
	mempool *mempool.Mempool
}

// New constructs a node. The chain starts empty unless blocks are provided.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	chainCfg := database.ChainConfig{
		Difficulty:  cfg.Genesis.Difficulty,
		SearchWidth: cfg.Genesis.SearchWidth,
		Workers:     cfg.Workers,
		MaxRounds:   cfg.Genesis.MaxRounds,
		Rand:        cfg.Rand,
		EvHandler:   ev,
	}

	state := State{
		wallet:    cfg.Wallet,
		genesis:   cfg.Genesis,
		evHandler: ev,
		chain:     database.NewChain(chainCfg, cfg.Blocks...),
		mempool:   mempool.New(),
	}

	if len(cfg.Blocks) > 0 {
		ev("state: New: starting chain: blocks[%d]: valid[%t]", state.chain.Len(), state.chain.IsValid())
	}

	return &state, nil
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Wallet returns the wallet id of this node.
func (s *State) Wallet() database.WalletID {
	return s.wallet
}

// ChainLength returns the number of blocks in the chain.
func (s *State) ChainLength() int {
	return s.chain.Len()
}

// Blocks returns a copy of the blocks in the chain.
func (s *State) Blocks() []database.Block {
	return s.chain.Blocks()
}

// Chain returns a copy of the chain.
func (s *State) Chain() *database.Chain {
	return s.chain.Copy()
}

// LatestBlock returns the tail of the chain.
func (s *State) LatestBlock() (database.Block, bool) {
	return s.chain.LatestBlock()
}

// IsChainValid reports whether the local chain links up.
func (s *State) IsChainValid() bool {
	return s.chain.IsValid()
}
