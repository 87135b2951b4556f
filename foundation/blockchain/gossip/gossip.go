// Package gossip defines the messages nodes exchange to share blocks and
// reconcile chains, and the transport contract those messages travel over.
package gossip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/peer"
)

// DefaultTopic is the topic blocks and chain messages are published on.
const DefaultTopic = "blocks"

// Set of message types carried in an envelope.
const (
	TypeChainRequest  = "chain_request"
	TypeChainResponse = "chain_response"
	TypeBlock         = "block"
)

// ErrUnknownType is returned when an envelope carries a type this node
// does not understand.
var ErrUnknownType = errors.New("unknown message type")

// =============================================================================

// Delivery is a message received from the network.
type Delivery struct {
	Topic string
	From  string // Peer id of the node that published the message.
	Data  []byte
}

// Transport represents the behavior required to move gossip messages
// between nodes. Messages published by a peer are delivered in the order
// they were published.
type Transport interface {
	ID() string
	Publish(ctx context.Context, topic string, data []byte) error
	Messages() <-chan Delivery
	Peers() []peer.Peer
	Close() error
}

// =============================================================================

// ChainRequest asks the peer named by FromPeerID for its full chain.
type ChainRequest struct {
	FromPeerID string `json:"from_peer_id"`
}

// ChainResponse carries a full chain back to the peer that asked for it.
type ChainResponse struct {
	ReceiverPeerID string           `json:"receiver_peer_id"`
	Chain          []database.Block `json:"chain"`
}

// envelope wraps every message so the receiver knows how to decode the
// payload.
type envelope struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// Encode marshals the message inside an envelope stamped with the sender's
// peer id. The message must be a ChainRequest, ChainResponse or a
// database.Block.
func Encode(from string, msg any) ([]byte, error) {
	var typ string
	switch msg.(type) {
	case ChainRequest, *ChainRequest:
		typ = TypeChainRequest
	case ChainResponse, *ChainResponse:
		typ = TypeChainResponse
	case database.Block, *database.Block:
		typ = TypeBlock
	default:
		return nil, fmt.Errorf("encode %T: %w", msg, ErrUnknownType)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}

	return json.Marshal(envelope{Type: typ, From: from, Payload: payload})
}

// Decode unmarshals an envelope and returns the sender's peer id and the
// message it carries as a ChainRequest, ChainResponse or database.Block.
func Decode(data []byte) (string, any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeChainRequest:
		var req ChainRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return "", nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		msg = req

	case TypeChainResponse:
		var resp ChainResponse
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			return "", nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		msg = resp

	case TypeBlock:
		var block database.Block
		if err := json.Unmarshal(env.Payload, &block); err != nil {
			return "", nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		msg = block

	default:
		return "", nil, fmt.Errorf("decode %q: %w", env.Type, ErrUnknownType)
	}

	return env.From, msg, nil
}
