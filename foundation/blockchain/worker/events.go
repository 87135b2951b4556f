package worker

import (
	"context"
	"time"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
)

// event is the set of things the event loop reacts to.
type event interface {
	isEvent()
}

// initEvent fires once after startup so the node can sync with the network.
type initEvent struct{}

// messageEvent carries a message received from the network.
type messageEvent struct {
	delivery gossip.Delivery
}

// minedEvent carries the result of a mining run.
type minedEvent struct {
	solution database.Solution
	found    bool
	duration time.Duration
}

// requestEvent runs a local request against the node.
type requestEvent struct {
	fn   func(*state.State)
	done chan struct{}
}

func (initEvent) isEvent()    {}
func (messageEvent) isEvent() {}
func (minedEvent) isEvent()   {}
func (requestEvent) isEvent() {}

// =============================================================================

// handle dispatches the event to its handler.
func (w *Worker) handle(ev event) {
	switch ev := ev.(type) {
	case initEvent:
		w.handleInit()

	case messageEvent:
		w.handleMessage(ev.delivery)

	case minedEvent:
		w.handleMined(ev)

	case requestEvent:
		ev.fn(w.state)
		close(ev.done)

	default:
		w.evHandler("worker: handle: unknown event %T", ev)
	}
}

// handleInit asks the most recently discovered peer for its chain.
func (w *Worker) handleInit() {
	peers := w.transport.Peers()
	if len(peers) == 0 {
		w.evHandler("worker: handleInit: no known peers")
		return
	}

	w.requestChain(peers[len(peers)-1].ID)
}

// startMining mines the pending transactions on a new goroutine. The result
// comes back to the event loop as a minedEvent.
func (w *Worker) startMining() error {
	job, err := w.state.MiningJob()
	if err != nil {
		return err
	}

	w.mining = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.evHandler("worker: startMining: MINING: started: numTrans[%d]", len(job.Transactions()))

		t := time.Now()
		solution, found := job.Mine(w.ctx)

		w.mined <- minedEvent{solution: solution, found: found, duration: time.Since(t)}
	}()

	return nil
}

// handleMined commits a mined block and broadcasts it to the network.
func (w *Worker) handleMined(ev minedEvent) {
	w.mining = false

	w.evHandler("worker: handleMined: MINING: completed: found[%t]: duration[%v]", ev.found, ev.duration)

	if !ev.found {
		err := state.ErrNoSolution
		if w.ctx.Err() != nil {
			err = ErrShutdown
		}
		w.releaseWaiters(mineResult{err: err})
		return
	}

	block := ev.solution.Block
	if err := w.state.CommitMinedBlock(block); err != nil {
		w.releaseWaiters(mineResult{err: err})
		return
	}

	w.evHandler("worker: handleMined: MINING: broadcasting blk[%s]: hash[%s]", block.Index, block.Hash)
	w.publish(block)

	w.releaseWaiters(mineResult{block: block})
}

// =============================================================================

// do runs the function on the event loop and waits for it to complete.
func (w *Worker) do(ctx context.Context, fn func(*state.State)) error {
	req := requestEvent{
		fn:   fn,
		done: make(chan struct{}),
	}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.shut:
		return ErrShutdown
	}

	<-req.done

	return nil
}
