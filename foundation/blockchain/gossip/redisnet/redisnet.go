// Package redisnet provides a gossip transport over redis pub/sub. Messages
// are published on a channel per topic and nodes announce themselves in a
// shared hash that is refreshed on a heartbeat.
package redisnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/peer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned when the transport has been closed.
var ErrClosed = errors.New("transport closed")

const (
	defaultPrefix    = "gossipchain"
	defaultBuffer    = 256
	defaultHeartbeat = 5 * time.Second
)

// frame is the payload published on a redis channel.
type frame struct {
	Origin string `json:"origin"`
	Data   []byte `json:"data"`
}

// presence is the value a node stores in the peers hash.
type presence struct {
	Host string `json:"host"`
	Seen int64  `json:"seen"`
}

// =============================================================================

// Config represents the settings for a redis transport.
type Config struct {
	ID        string // Peer id, a new uuid is used when empty.
	Host      string // Address advertised to other nodes.
	Client    redis.UniversalClient
	Prefix    string        // Prefix for every redis key and channel.
	Heartbeat time.Duration // How often presence is refreshed.
	Buffer    int
	EvHandler func(v string, args ...any)
}

// Transport implements the gossip.Transport interface over redis.
type Transport struct {
	self      peer.Peer
	client    redis.UniversalClient
	prefix    string
	heartbeat time.Duration
	evHandler func(v string, args ...any)

	pubsub *redis.PubSub
	peers  *peer.PeerSet
	msgs   chan gossip.Delivery

	shut      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New subscribes to every topic under the prefix, announces this node and
// starts receiving messages.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	t := Transport{
		self:      peer.New(cfg.ID, cfg.Host),
		client:    cfg.Client,
		prefix:    cfg.Prefix,
		heartbeat: cfg.Heartbeat,
		evHandler: cfg.EvHandler,
		peers:     peer.NewPeerSet(),
		msgs:      make(chan gossip.Delivery, cfg.Buffer),
		shut:      make(chan struct{}),
	}

	t.pubsub = t.client.PSubscribe(ctx, t.channel("*"))
	if _, err := t.pubsub.Receive(ctx); err != nil {
		t.pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	if err := t.announce(ctx); err != nil {
		t.pubsub.Close()
		return nil, err
	}

	t.wg.Add(2)

	go func() {
		defer t.wg.Done()
		t.receiveOperations()
	}()

	go func() {
		defer t.wg.Done()
		t.presenceOperations()
	}()

	return &t, nil
}

// ID returns the peer id of this node.
func (t *Transport) ID() string {
	return t.self.ID
}

// Messages returns the channel messages from the network arrive on. The
// channel is closed when the transport is closed.
func (t *Transport) Messages() <-chan gossip.Delivery {
	return t.msgs
}

// Peers returns the live peers in the order this node discovered them.
func (t *Transport) Peers() []peer.Peer {
	return t.peers.Copy(t.self.ID)
}

// Publish sends the data to every node subscribed to the topic.
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if t.isShutdown() {
		return ErrClosed
	}

	payload, err := json.Marshal(frame{Origin: t.self.ID, Data: data})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := t.client.Publish(ctx, t.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

// Close removes this node from the peers hash and stops receiving.
func (t *Transport) Close() error {
	err := ErrClosed
	t.closeOnce.Do(func() {
		close(t.shut)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err = errors.Join(
			t.client.HDel(ctx, t.peersKey(), t.self.ID).Err(),
			t.pubsub.Close(),
		)

		t.wg.Wait()
		close(t.msgs)
	})

	return err
}

// =============================================================================

// receiveOperations hands messages from other nodes to the application.
func (t *Transport) receiveOperations() {
	t.evHandler("redisnet: receiveOperations: G started")
	defer t.evHandler("redisnet: receiveOperations: G completed")

	ch := t.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var f frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				t.evHandler("redisnet: receiveOperations: %s: ERROR: %s", msg.Channel, err)
				continue
			}

			if f.Origin == t.self.ID {
				continue
			}

			d := gossip.Delivery{
				Topic: strings.TrimPrefix(msg.Channel, t.channel("")),
				From:  f.Origin,
				Data:  f.Data,
			}

			select {
			case t.msgs <- d:
			case <-t.shut:
				return
			}

		case <-t.shut:
			return
		}
	}
}

// presenceOperations refreshes this node's presence and the peer set on
// every heartbeat.
func (t *Transport) presenceOperations() {
	t.evHandler("redisnet: presenceOperations: G started")
	defer t.evHandler("redisnet: presenceOperations: G completed")

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.heartbeat)
			if err := t.announce(ctx); err != nil {
				t.evHandler("redisnet: presenceOperations: ERROR: %s", err)
			}
			cancel()

		case <-t.shut:
			return
		}
	}
}

// announce writes this node's presence and syncs the peer set with the
// nodes whose presence hasn't expired.
func (t *Transport) announce(ctx context.Context) error {
	now := time.Now()

	data, err := json.Marshal(presence{Host: t.self.Host, Seen: now.UnixNano()})
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	if err := t.client.HSet(ctx, t.peersKey(), t.self.ID, data).Err(); err != nil {
		return fmt.Errorf("write presence: %w", err)
	}

	all, err := t.client.HGetAll(ctx, t.peersKey()).Result()
	if err != nil {
		return fmt.Errorf("read presence: %w", err)
	}

	expired := now.Add(-3 * t.heartbeat).UnixNano()

	for id, value := range all {
		if id == t.self.ID {
			continue
		}

		var p presence
		if err := json.Unmarshal([]byte(value), &p); err != nil || p.Seen < expired {
			if t.peers.Contains(id) {
				t.evHandler("redisnet: announce: peer[%s]: expired", id)
			}
			t.peers.Remove(id)
			continue
		}

		if t.peers.Add(peer.New(id, p.Host)) {
			t.evHandler("redisnet: announce: peer[%s]: discovered", id)
		}
	}

	for _, p := range t.peers.Copy(t.self.ID) {
		if _, exists := all[p.ID]; !exists {
			t.peers.Remove(p.ID)
		}
	}

	return nil
}

func (t *Transport) channel(topic string) string {
	return t.prefix + ":topic:" + topic
}

func (t *Transport) peersKey() string {
	return t.prefix + ":peers"
}

// isShutdown is used to test if a shutdown has been signaled.
func (t *Transport) isShutdown() bool {
	select {
	case <-t.shut:
		return true
	default:
		return false
	}
}
