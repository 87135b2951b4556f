package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/genesis"
)

// Set of errors returned when resolving conflicting chains.
var (
	ErrNoValidChain  = errors.New("neither the local nor the competing chain is valid")
	ErrChainRejected = errors.New("competing chain rejected")
)

// IsFatal reports whether the error leaves the node without a trustworthy
// chain and the node must stop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoValidChain) && !errors.Is(err, ErrChainRejected)
}

// ResolveConflict applies the longest valid chain rule against a chain
// received from a peer. When both chains are valid the longer one is kept
// and ties keep the local chain. When only one is valid it is kept. When
// neither is valid an error wrapping ErrNoValidChain is returned, which is
// fatal unless the genesis conflict policy is reject. The bool reports
// whether the local chain was replaced.
func (s *State) ResolveConflict(other *database.Chain) (bool, error) {
	ownValid := s.chain.IsValid()
	otherValid := other.IsValid()

	s.evHandler("state: ResolveConflict: started: own[%d:%t]: other[%d:%t]", s.chain.Len(), ownValid, other.Len(), otherValid)

	switch {
	case ownValid && otherValid:
		if s.chain.Len() >= other.Len() {
			s.evHandler("state: ResolveConflict: keeping local chain")
			return false, nil
		}

	case ownValid:
		s.evHandler("state: ResolveConflict: competing chain invalid: keeping local chain")
		return false, nil

	case otherValid:
		s.evHandler("state: ResolveConflict: local chain invalid")

	default:
		if s.genesis.ConflictPolicy == genesis.PolicyReject {
			s.evHandler("state: ResolveConflict: WARNING: no valid chain: keeping local chain")
			return false, fmt.Errorf("%w: %w", ErrChainRejected, ErrNoValidChain)
		}

		s.evHandler("state: ResolveConflict: ERROR: no valid chain")
		return false, ErrNoValidChain
	}

	s.replaceChain(other.Blocks())

	return true, nil
}

// replaceChain swaps the local chain for the specified blocks and drops
// every pending transaction the new chain already holds.
func (s *State) replaceChain(blocks []database.Block) {
	s.chain.Replace(blocks)

	var n int
	for _, block := range blocks {
		n += s.mempool.DeleteBlock(block)
	}

	s.evHandler("state: ResolveConflict: chain replaced: blocks[%d]: cleared[%d]", len(blocks), n)
}
