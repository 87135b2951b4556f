package state

import "github.com/ardanlabs/gossipchain/foundation/blockchain/database"

// ReplaceChain lets tests put the node in states mining never produces.
func (s *State) ReplaceChain(blocks []database.Block) {
	s.chain.Replace(blocks)
}
