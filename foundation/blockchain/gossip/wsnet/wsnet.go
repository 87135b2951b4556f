// Package wsnet provides a gossip transport over websockets. Nodes form a
// full mesh: each connection handshake shares the peers a node knows about
// so new nodes dial the rest of the network, and every message is flooded
// to all connections with duplicates dropped by message id.
package wsnet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/peer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultPath is the route the gossip endpoint is served on.
const DefaultPath = "/v1/node/gossip"

// Set of errors returned by a transport.
var (
	ErrClosed     = errors.New("transport closed")
	ErrQueueFull  = errors.New("peer queue full")
	ErrHandshake  = errors.New("invalid handshake")
	ErrSelfDialed = errors.New("connected to self")
)

const (
	defaultBuffer       = 256
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxFrameSize        = 64 << 20
)

const (
	frameHello   = "hello"
	frameMessage = "message"
)

// frame is the unit of data written on a connection.
type frame struct {
	Kind   string      `json:"kind"`
	ID     string      `json:"id,omitempty"`
	Topic  string      `json:"topic,omitempty"`
	Origin string      `json:"origin,omitempty"`
	Data   []byte      `json:"data,omitempty"`
	Peer   peer.Peer   `json:"peer"`
	Known  []peer.Peer `json:"known,omitempty"`
}

// =============================================================================

// Config represents the settings for a websocket transport.
type Config struct {
	ID           string // Peer id, a new uuid is used when empty.
	Host         string // Address other nodes dial to reach the gossip endpoint.
	Path         string
	Buffer       int
	PingInterval time.Duration
	EvHandler    func(v string, args ...any)
}

// Transport implements the gossip.Transport interface over websockets.
type Transport struct {
	self         peer.Peer
	path         string
	buffer       int
	pingInterval time.Duration
	evHandler    func(v string, args ...any)
	upgrader     websocket.Upgrader
	dialer       *websocket.Dialer

	mu    sync.RWMutex
	conns map[string]*conn
	peers *peer.PeerSet
	seen  *seenCache

	deliverMu sync.Mutex
	msgs      chan gossip.Delivery

	ctx    context.Context
	cancel context.CancelFunc
	shut   chan struct{}
	wg     sync.WaitGroup
}

// New constructs a websocket transport. Nothing is accepted until the
// transport is served over http and nothing is dialed until Connect is
// called.
func New(cfg Config) *Transport {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Transport{
		self:         peer.New(cfg.ID, cfg.Host),
		path:         cfg.Path,
		buffer:       cfg.Buffer,
		pingInterval: cfg.PingInterval,
		evHandler:    cfg.EvHandler,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: writeWait,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: writeWait,
		},
		conns:  make(map[string]*conn),
		peers:  peer.NewPeerSet(),
		seen:   newSeenCache(2 * time.Minute),
		msgs:   make(chan gossip.Delivery, cfg.Buffer),
		ctx:    ctx,
		cancel: cancel,
		shut:   make(chan struct{}),
	}
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

// Peers returns the connected peers in the order they were discovered.
func (t *Transport) Peers() []peer.Peer {
	return t.peers.Copy(t.self.ID)
}

// Publish floods the data to every connected peer. A peer whose queue is
// full misses the message.
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.isShutdown() {
		return ErrClosed
	}

	f := frame{
		Kind:   frameMessage,
		ID:     uuid.NewString(),
		Topic:  topic,
		Origin: t.self.ID,
		Data:   data,
	}
	t.seen.add(f.ID)

	return t.forward(f, "")
}

// ServeHTTP upgrades the request to a websocket and adds the remote node
// as a peer.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.evHandler("wsnet: ServeHTTP: upgrade: ERROR: %s", err)
		return
	}

	remote, err := t.handshake(ws)
	if err != nil {
		t.evHandler("wsnet: ServeHTTP: %s: ERROR: %s", r.RemoteAddr, err)
		ws.Close()
		return
	}

	if err := t.register(remote, ws, remote.Peer.ID); err != nil {
		t.evHandler("wsnet: ServeHTTP: register: %s: ERROR: %s", remote.Peer, err)
	}
}

// Connect dials the gossip endpoint of the node at the specified host and
// adds it as a peer.
func (t *Transport) Connect(ctx context.Context, host string) error {
	if host == t.self.Host || t.connectedTo(host) {
		return nil
	}

	u := url.URL{Scheme: "ws", Host: host, Path: t.path}

	ws, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}

	remote, err := t.handshake(ws)
	if err != nil {
		ws.Close()
		return fmt.Errorf("handshake %s: %w", host, err)
	}

	return t.register(remote, ws, t.self.ID)
}

// Close disconnects from every peer and stops the transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.isShutdown() {
		t.mu.Unlock()
		return ErrClosed
	}
	close(t.shut)
	t.cancel()

	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	t.evHandler("wsnet: Close: closing connections[%d]", len(conns))

	for _, c := range conns {
		c.close()
	}

	t.wg.Wait()
	close(t.msgs)

	return nil
}

// =============================================================================

// handshake swaps hello frames with the remote node.
func (t *Transport) handshake(ws *websocket.Conn) (frame, error) {
	hello := frame{
		Kind:  frameHello,
		Peer:  t.self,
		Known: t.peers.Copy(t.self.ID),
	}

	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(hello); err != nil {
		return frame{}, fmt.Errorf("write hello: %w", err)
	}

	var remote frame
	ws.SetReadDeadline(time.Now().Add(writeWait))
	if err := ws.ReadJSON(&remote); err != nil {
		return frame{}, fmt.Errorf("read hello: %w", err)
	}

	if remote.Kind != frameHello || remote.Peer.ID == "" {
		return frame{}, ErrHandshake
	}

	return remote, nil
}

// register starts the read and write loops for a new connection and dials
// the peers the remote node knows about.
func (t *Transport) register(remote frame, ws *websocket.Conn, dialedBy string) error {
	if remote.Peer.ID == t.self.ID {
		ws.Close()
		return ErrSelfDialed
	}

	c := conn{
		peer:     remote.Peer,
		ws:       ws,
		dialedBy: dialedBy,
		out:      make(chan frame, t.buffer),
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	if t.isShutdown() {
		t.mu.Unlock()
		ws.Close()
		return ErrClosed
	}

	// Two nodes can dial each other at the same time. Both ends keep the
	// connection dialed by the lower peer id. A new connection dialed by
	// the same side replaces the old one, which is how a restarted peer
	// gets back in before its stale connection times out.
	if old, exists := t.conns[c.peer.ID]; exists {
		if c.dialedBy > old.dialedBy {
			t.mu.Unlock()
			ws.Close()
			return nil
		}
		old.close()
	}

	t.conns[c.peer.ID] = &c
	t.peers.Add(c.peer)

	t.wg.Add(2)
	go t.readLoop(&c)
	go t.writeLoop(&c)
	t.mu.Unlock()

	t.evHandler("wsnet: register: peer[%s]: connected", c.peer)

	for _, known := range remote.Known {
		t.discover(known)
	}

	return nil
}

// discover dials a peer learned about from another node.
func (t *Transport) discover(p peer.Peer) {
	if p.ID == t.self.ID || p.Host == "" || t.peers.Contains(p.ID) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isShutdown() {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(t.ctx, writeWait)
		defer cancel()

		if err := t.Connect(ctx, p.Host); err != nil {
			t.evHandler("wsnet: discover: peer[%s]: ERROR: %s", p, err)
		}
	}()
}

// unregister removes the connection if it's still the active connection
// for the peer.
func (t *Transport) unregister(c *conn) {
	t.mu.Lock()
	current := t.conns[c.peer.ID] == c
	if current {
		delete(t.conns, c.peer.ID)
		t.peers.Remove(c.peer.ID)
	}
	t.mu.Unlock()

	c.close()

	if current {
		t.evHandler("wsnet: unregister: peer[%s]: disconnected", c.peer)
	}
}

// readLoop receives frames from the connection until it fails or closes.
func (t *Transport) readLoop(c *conn) {
	defer t.wg.Done()
	defer t.unregister(c)

	pongWait := 2 * t.pingInterval

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if !c.isClosed() && !t.isShutdown() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.evHandler("wsnet: readLoop: peer[%s]: ERROR: %s", c.peer, err)
			}
			return
		}

		if f.Kind != frameMessage {
			continue
		}

		if !t.deliver(c, f) {
			return
		}
	}
}

// deliver hands a message to the application and floods it to the other
// peers the first time it's seen. Delivery is serialized across connections
// so messages from one origin keep their order.
func (t *Transport) deliver(c *conn, f frame) bool {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	if f.Origin == t.self.ID || !t.seen.add(f.ID) {
		return true
	}

	if err := t.forward(f, c.peer.ID); err != nil {
		t.evHandler("wsnet: deliver: forward: ERROR: %s", err)
	}

	d := gossip.Delivery{
		Topic: f.Topic,
		From:  f.Origin,
		Data:  f.Data,
	}

	select {
	case t.msgs <- d:
		return true
	case <-c.done:
		return false
	case <-t.shut:
		return false
	}
}

// forward queues the frame on every connection except the connection it
// arrived on and the connection to the node that published it.
func (t *Transport) forward(f frame, from string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var errs []error
	for id, c := range t.conns {
		if id == from || id == f.Origin {
			continue
		}

		if err := c.send(f); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", c.peer, err))
		}
	}

	return errors.Join(errs...)
}

// writeLoop writes queued frames and keeps the connection alive with pings.
func (t *Transport) writeLoop(c *conn) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				t.evHandler("wsnet: writeLoop: peer[%s]: ERROR: %s", c.peer, err)
				c.close()
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}

		case <-c.done:
			return

		case <-t.shut:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown")
			c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			c.close()
			return
		}
	}
}

// connectedTo reports whether there is a connection to a peer at the host.
func (t *Transport) connectedTo(host string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, c := range t.conns {
		if c.peer.Host == host {
			return true
		}
	}

	return false
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

// =============================================================================

// conn is a websocket connection to a single peer.
type conn struct {
	peer     peer.Peer
	ws       *websocket.Conn
	dialedBy string
	out      chan frame
	done     chan struct{}
	once     sync.Once
}

func (c *conn) send(f frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
