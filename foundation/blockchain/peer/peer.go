// Package peer maintains the peer related information such as the set
// of known peers and their status.
package peer

import (
	"fmt"
	"slices"
	"sync"
)

// Peer represents information about a Node in the network.
type Peer struct {
	ID   string `json:"id"`
	Host string `json:"host,omitempty"`
}

// New contructs a new info value.
func New(id string, host string) Peer {
	return Peer{
		ID:   id,
		Host: host,
	}
}

// Match validates if the specified id matches this node.
func (p Peer) Match(id string) bool {
	return p.ID == id
}

// String implements the fmt.Stringer interface for logging.
func (p Peer) String() string {
	if p.Host == "" {
		return p.ID
	}
	return fmt.Sprintf("%s@%s", p.ID, p.Host)
}

// =============================================================================

// PeerStatus represents information about the status
// of any given peer.
type PeerStatus struct {
	ID              string `json:"id"`
	ChainLength     int    `json:"chain_length"`
	LatestBlockHash string `json:"latest_block_hash"`
	KnownPeers      []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known
// peers in the order they were discovered.
type PeerSet struct {
	mu    sync.RWMutex
	set   map[string]Peer
	order []string
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[string]Peer),
	}
}

// Add adds a new node to the set. A peer that is already known keeps its
// place in the discovery order and takes the new host.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer.ID]; exists {
		ps.set[peer.ID] = peer
		return false
	}

	ps.set[peer.ID] = peer
	ps.order = append(ps.order, peer.ID)
	return true
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(id string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[id]; !exists {
		return
	}

	delete(ps.set, id)
	ps.order = slices.DeleteFunc(ps.order, func(o string) bool { return o == id })
}

// Contains reports whether the peer is in the set.
func (ps *PeerSet) Contains(id string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, exists := ps.set[id]
	return exists
}

// Len returns the number of peers in the set.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns the known peers, excluding the specified id, in the order
// they were discovered.
func (ps *PeerSet) Copy(id string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.order))
	for _, o := range ps.order {
		peer := ps.set[o]
		if !peer.Match(id) {
			peers = append(peers, peer)
		}
	}

	return peers
}

// Latest returns the most recently discovered peer.
func (ps *PeerSet) Latest() (Peer, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if len(ps.order) == 0 {
		return Peer{}, false
	}

	return ps.set[ps.order[len(ps.order)-1]], true
}
