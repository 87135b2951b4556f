// Package worker runs the event loop for a blockchain node. Gossip messages,
// mining results, the startup sync and local requests are all handled one
// at a time on a single goroutine, which is the only goroutine that touches
// the node's state.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
)

// ErrShutdown is returned for requests made after the worker stopped.
var ErrShutdown = errors.New("worker is shutting down")

// defaultInitDelay gives peer discovery time to populate before the node
// asks the network for its chain.
const defaultInitDelay = time.Second

// =============================================================================

// Config represents the configuration required to run a worker.
type Config struct {
	State     *state.State
	Transport gossip.Transport
	Topic     string
	InitDelay time.Duration
	EvHandler state.EventHandler
}

// Worker manages the event loop for the node.
type Worker struct {
	state     *state.State
	transport gossip.Transport
	topic     string
	initDelay time.Duration
	evHandler state.EventHandler

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	shut     chan struct{}
	requests chan requestEvent
	mined    chan minedEvent
	fatal    chan error

	mining  bool
	waiters []chan mineResult
}

// Run creates a worker and starts the event loop.
func Run(cfg Config) *Worker {
	if cfg.Topic == "" {
		cfg.Topic = gossip.DefaultTopic
	}
	if cfg.InitDelay <= 0 {
		cfg.InitDelay = defaultInitDelay
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:     cfg.State,
		transport: cfg.Transport,
		topic:     cfg.Topic,
		initDelay: cfg.InitDelay,
		evHandler: cfg.EvHandler,
		ctx:       ctx,
		cancel:    cancel,
		shut:      make(chan struct{}),
		requests:  make(chan requestEvent),
		mined:     make(chan minedEvent, 1),
		fatal:     make(chan error, 1),
	}

	w.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.eventOperations()
	}()

	<-hasStarted

	return &w
}

// Shutdown terminates the event loop and any mining in progress.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.cancel()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// Fatal returns a channel that receives an error when the node is left
// without a valid chain and must stop.
func (w *Worker) Fatal() <-chan error {
	return w.fatal
}

// =============================================================================

// eventOperations is the event loop. Exactly one event is handled at a time.
func (w *Worker) eventOperations() {
	w.evHandler("worker: eventOperations: G started")
	defer w.evHandler("worker: eventOperations: G completed")

	initTimer := time.NewTimer(w.initDelay)
	defer initTimer.Stop()

	msgs := w.transport.Messages()

	for {
		var ev event

		select {
		case <-initTimer.C:
			ev = initEvent{}

		case d, ok := <-msgs:
			if !ok {
				w.evHandler("worker: eventOperations: transport closed")
				msgs = nil
				continue
			}
			ev = messageEvent{delivery: d}

		case m := <-w.mined:
			ev = m

		case r := <-w.requests:
			ev = r

		case <-w.shut:
			w.evHandler("worker: eventOperations: received shut signal")
			w.releaseWaiters(mineResult{err: ErrShutdown})
			return
		}

		w.handle(ev)
	}
}

// publish encodes the message and sends it to the network. Failures are
// logged since gossip is best effort.
func (w *Worker) publish(msg any) {
	data, err := gossip.Encode(w.transport.ID(), msg)
	if err != nil {
		w.evHandler("worker: publish: %T: ERROR: %s", msg, err)
		return
	}

	if err := w.transport.Publish(w.ctx, w.topic, data); err != nil {
		w.evHandler("worker: publish: %T: ERROR: %s", msg, err)
	}
}

// signalFatal reports an unrecoverable error to the application.
func (w *Worker) signalFatal(err error) {
	select {
	case w.fatal <- err:
	default:
	}
	w.evHandler("worker: signalFatal: FATAL: %s", err)
}

// releaseWaiters hands the mining result to everyone waiting on it.
func (w *Worker) releaseWaiters(res mineResult) {
	for _, ch := range w.waiters {
		ch <- res
	}
	w.waiters = nil
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// newChain wraps blocks received from a peer so they can be validated.
func newChain(blocks []database.Block) *database.Chain {
	return database.NewChain(database.ChainConfig{}, blocks...)
}
