// Package database handles the data model of the blockchain: transactions,
// blocks and the chain that links them, along with the proof of work search
// used to seal new blocks. Nothing in this package is persisted.
package database

import "errors"

// Set of errors returned when a block can't extend a chain.
var (
	ErrNotSealed        = errors.New("block is not sealed")
	ErrInvalidHash      = errors.New("block hash does not match block contents")
	ErrIndexMismatch    = errors.New("block index is not the next index")
	ErrPrevHashMismatch = errors.New("block prev hash does not match latest block")
	ErrGenesisPrevHash  = errors.New("genesis block must not have a prev hash")
	ErrIndexOverflow    = errors.New("block index overflow")
)
