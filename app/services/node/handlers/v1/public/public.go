// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ardanlabs/gossipchain/business/sys/validate"
	"github.com/ardanlabs/gossipchain/business/web/errs"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/worker"
	"github.com/ardanlabs/gossipchain/foundation/events"
	"github.com/ardanlabs/gossipchain/foundation/nameservice"
	"github.com/ardanlabs/gossipchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Worker *worker.Worker
	NS     *nameservice.NameService
	WS     websocket.Upgrader
	Evts   *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// The server's request deadlines still apply to the hijacked connection.
	c.SetReadDeadline(time.Time{})
	c.SetWriteDeadline(time.Time{})

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Worker.Genesis(), http.StatusOK)
}

// Wallets returns the wallets known to the name service.
func (h Handlers) Wallets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	node := h.Worker.Wallet()

	wallets := []Wallet{{ID: node, Name: h.NS.Lookup(node), Node: true}}
	for id, name := range h.NS.Copy() {
		if id != node {
			wallets = append(wallets, Wallet{ID: id, Name: name})
		}
	}

	slices.SortFunc(wallets[1:], func(a, b Wallet) int {
		return strings.Compare(a.Name, b.Name)
	})

	return web.Respond(ctx, w, wallets, http.StatusOK)
}

// Chain returns the node's chain.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks, err := h.Worker.Blocks(ctx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	chain := Chain{
		Length: len(blocks),
		Valid:  database.NewChain(database.ChainConfig{}, blocks...).IsValid(),
		Blocks: blocks,
	}

	return web.Respond(ctx, w, chain, http.StatusOK)
}

// Block returns the block at the index specified in the path.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	idx, err := database.ParseIndex(web.Param(r, "index"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blocks, err := h.Worker.Blocks(ctx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	n, ok := idx.Uint64()
	if !ok || n >= uint64(len(blocks)) {
		return errs.NewTrusted(fmt.Errorf("block %s not found", idx), http.StatusNotFound)
	}

	return web.Respond(ctx, w, blocks[n], http.StatusOK)
}

// Peers returns the peers connected to the node.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Worker.Peers(), http.StatusOK)
}

// Mine mines the pending transactions into a new block and broadcasts it.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.Log.Infow("mine block", "traceid", v.TraceID)

	block, err := h.Worker.MineBlock(ctx)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNotEnoughTransactions):
			return errs.NewTrusted(err, http.StatusBadRequest)
		case errors.Is(err, state.ErrStaleBlock):
			return errs.NewTrusted(err, http.StatusConflict)
		case errors.Is(err, state.ErrNoSolution), errors.Is(err, worker.ErrShutdown):
			return errs.NewTrusted(err, http.StatusServiceUnavailable)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return errs.NewTrusted(errors.New("mining did not complete in time"), http.StatusServiceUnavailable)
		}
		return err
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// SubmitTransaction adds a new transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var nt NewTx
	if err := web.Decode(r, &nt); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(nt); err != nil {
		return err
	}

	from := h.Worker.Wallet()
	if nt.From != "" {
		wallet, err := database.ToWalletID(nt.From)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		from = wallet
	}

	to := nt.To
	if to == "" {
		peers := h.Worker.Peers()
		if len(peers) == 0 {
			return errs.NewTrusted(errors.New("no connected peers to send to"), http.StatusBadRequest)
		}
		to = peers[rand.IntN(len(peers))].ID
	}

	amount := int64(defaultAmount)
	if nt.Amount != nil {
		amount = *nt.Amount
	}

	tx := database.NewTx(string(from), to, amount)

	h.Log.Infow("add tran", "traceid", v.TraceID, "from", tx.From, "to", tx.To, "amount", tx.Amount)
	if err := h.Worker.SubmitTransaction(ctx, tx); err != nil {
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	return web.Respond(ctx, w, toTx(h.NS, tx), http.StatusCreated)
}

// Mempool returns the set of pending transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trans, err := h.Worker.Mempool(ctx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	return web.Respond(ctx, w, toTxs(h.NS, trans), http.StatusOK)
}
