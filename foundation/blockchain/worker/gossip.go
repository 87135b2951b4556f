package worker

import (
	"errors"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
)

// handleMessage decodes a message from the network and applies it.
func (w *Worker) handleMessage(d gossip.Delivery) {
	from, msg, err := gossip.Decode(d.Data)
	if err != nil {
		w.evHandler("worker: handleMessage: peer[%s]: ERROR: %s", d.From, err)
		return
	}

	if from == "" {
		from = d.From
	}

	switch msg := msg.(type) {
	case gossip.ChainRequest:
		w.handleChainRequest(from, msg)

	case gossip.ChainResponse:
		w.handleChainResponse(from, msg)

	case database.Block:
		w.handleBlock(from, msg)
	}
}

// requestChain asks the peer for its full chain.
func (w *Worker) requestChain(peerID string) {
	w.evHandler("worker: requestChain: peer[%s]", peerID)
	w.publish(gossip.ChainRequest{FromPeerID: peerID})
}

// handleChainRequest answers a chain request addressed to this node.
func (w *Worker) handleChainRequest(from string, req gossip.ChainRequest) {
	if req.FromPeerID != w.transport.ID() {
		return
	}

	w.evHandler("worker: handleChainRequest: peer[%s]: blocks[%d]", from, w.state.ChainLength())

	w.publish(gossip.ChainResponse{
		ReceiverPeerID: from,
		Chain:          w.state.Blocks(),
	})
}

// handleChainResponse resolves the chain in a response addressed to this
// node against the local chain.
func (w *Worker) handleChainResponse(from string, resp gossip.ChainResponse) {
	if resp.ReceiverPeerID != w.transport.ID() {
		return
	}

	w.evHandler("worker: handleChainResponse: peer[%s]: blocks[%d]", from, len(resp.Chain))

	replaced, err := w.state.ResolveConflict(newChain(resp.Chain))
	switch {
	case state.IsFatal(err):
		w.signalFatal(err)

	case err != nil:
		w.evHandler("worker: handleChainResponse: peer[%s]: WARNING: %s", from, err)

	case replaced:
		w.evHandler("worker: handleChainResponse: peer[%s]: chain replaced: blocks[%d]", from, w.state.ChainLength())
	}
}

// handleBlock extends the local chain with a block mined by a peer. When
// the peer holds a longer chain, either because the block is past the tail
// or because it is the next index on a different fork, its full chain is
// requested.
func (w *Worker) handleBlock(from string, block database.Block) {
	err := w.state.AcceptPeerBlock(block)
	if err == nil {
		w.evHandler("worker: handleBlock: peer[%s]: blk[%s]: accepted", from, block.Index)
		return
	}

	w.evHandler("worker: handleBlock: peer[%s]: blk[%s]: WARNING: %s", from, block.Index, err)

	switch {
	case errors.Is(err, database.ErrIndexMismatch) && w.state.IsAhead(block):
		w.requestChain(from)

	case errors.Is(err, database.ErrPrevHashMismatch):
		w.evHandler("worker: handleBlock: peer[%s]: blk[%s]: fork detected", from, block.Index)
		w.requestChain(from)
	}
}
