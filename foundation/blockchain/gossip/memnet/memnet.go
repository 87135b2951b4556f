// Package memnet provides an in-process gossip transport. Every member of a
// network receives what the other members publish.
package memnet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/peer"
)

// Set of errors returned by a transport.
var (
	ErrClosed    = errors.New("transport closed")
	ErrQueueFull = errors.New("peer queue full")
)

// defaultBuffer is the number of undelivered messages a member can hold.
const defaultBuffer = 256

// Network connects a set of in-process members.
type Network struct {
	mu      sync.RWMutex
	members []*Transport
	buffer  int
}

// NewNetwork constructs an empty network. Each member can hold buffer
// undelivered messages before new messages to it are dropped.
func NewNetwork(buffer int) *Network {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Network{
		buffer: buffer,
	}
}

// Join adds a new member with the specified peer id to the network.
func (n *Network) Join(id string) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := Transport{
		id:   id,
		net:  n,
		msgs: make(chan gossip.Delivery, n.buffer),
	}
	n.members = append(n.members, &t)

	return &t
}

func (n *Network) leave(t *Transport) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	idx := slices.Index(n.members, t)
	if idx == -1 {
		return false
	}

	n.members = slices.Delete(n.members, idx, idx+1)
	close(t.msgs)

	return true
}

// =============================================================================

// Transport is a member of an in-process network and implements the
// gossip.Transport interface.
type Transport struct {
	id   string
	net  *Network
	msgs chan gossip.Delivery
}

// ID returns the peer id of this member.
func (t *Transport) ID() string {
	return t.id
}

// Publish delivers the data to every other member of the network. A member
// whose queue is full misses the message.
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.net.mu.RLock()
	defer t.net.mu.RUnlock()

	if !slices.Contains(t.net.members, t) {
		return ErrClosed
	}

	d := gossip.Delivery{
		Topic: topic,
		From:  t.id,
		Data:  slices.Clone(data),
	}

	var errs []error
	for _, m := range t.net.members {
		if m == t {
			continue
		}

		select {
		case m.msgs <- d:
		default:
			errs = append(errs, fmt.Errorf("peer %s: %w", m.id, ErrQueueFull))
		}
	}

	return errors.Join(errs...)
}

// Messages returns the channel messages from the other members arrive on.
// The channel is closed when the transport is closed.
func (t *Transport) Messages() <-chan gossip.Delivery {
	return t.msgs
}

// Peers returns the other members of the network in the order they joined.
func (t *Transport) Peers() []peer.Peer {
	t.net.mu.RLock()
	defer t.net.mu.RUnlock()

	peers := make([]peer.Peer, 0, len(t.net.members))
	for _, m := range t.net.members {
		if m != t {
			peers = append(peers, peer.New(m.id, ""))
		}
	}

	return peers
}

// Close removes the member from the network.
func (t *Transport) Close() error {
	if !t.net.leave(t) {
		return ErrClosed
	}

	return nil
}
