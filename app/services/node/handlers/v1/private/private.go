// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"

	"github.com/ardanlabs/gossipchain/business/web/errs"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/worker"
	"github.com/ardanlabs/gossipchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log          *zap.SugaredLogger
	Worker       *worker.Worker
	GossipServer http.Handler
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.Worker.Status(ctx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Gossip upgrades the connection to a websocket so a peer can exchange
// gossip messages with this node.
func (h Handlers) Gossip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.GossipServer == nil {
		return errs.NewTrusted(errors.New("gossip is not served over http by this node"), http.StatusNotFound)
	}

	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.Log.Infow("gossip", "traceid", v.TraceID, "remoteaddr", r.RemoteAddr)
	h.GossipServer.ServeHTTP(w, r)

	// The connection was hijacked, record the upgrade for the request logger.
	v.StatusCode = http.StatusSwitchingProtocols

	return nil
}
