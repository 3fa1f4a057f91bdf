package p2p

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/klingon-exchange/xud/pkg/logging"
)

// GossipProtocol is the stream protocol identifier for the persistent
// per-peer gossip connection, following the convention of a single
// versioned protocol string per concern rather than per message type.
const GossipProtocol protocol.ID = "/xud/gossip/1.0.0"

const ProtocolVersion = "1.0.0"

// Reputation deltas applied for observable peer misbehavior. Values are
// small relative to banThreshold so a single bad packet never bans a
// peer outright; repeated misbehavior does.
const (
	reputationPenaltyHandshake      = -10
	reputationPenaltyMalformed      = -15
	reputationPenaltyStalling       = -5
)

// Identity is this node's own gossip identity, sent in every Hello.
type Identity struct {
	NodePubKey string
	NetworkID  string
	Addresses  []string
}

// Pool owns every peer connection and the libp2p host backing it. It
// never rebroadcasts a gossiped order: each node only ever broadcasts
// its own.
type Pool struct {
	host     host.Host
	identity Identity
	nodes    *NodeStore
	log      *logging.Logger

	mu          sync.RWMutex
	peers       map[peer.ID]*Peer
	pairs       []string
	reconnects  map[peer.ID]context.CancelFunc
	allowTor    bool
	backoff     BackoffConfig

	onPacket func(*Peer, *Packet)
	onOpen   func(*Peer)
	onClose  func(*Peer, DisconnectReason)

	ctx    context.Context
	cancel context.CancelFunc
}

type PoolConfig struct {
	Identity Identity
	Pairs    []string
	AllowTor bool
	// Backoff overrides the outbound reconnect schedule. Zero value
	// uses DefaultBackoffConfig.
	Backoff BackoffConfig
}

func NewPool(h host.Host, nodes *NodeStore, cfg PoolConfig) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	backoff := cfg.Backoff
	if backoff == (BackoffConfig{}) {
		backoff = DefaultBackoffConfig()
	}
	p := &Pool{
		host:       h,
		identity:   cfg.Identity,
		nodes:      nodes,
		pairs:      cfg.Pairs,
		allowTor:   cfg.AllowTor,
		backoff:    backoff,
		peers:      make(map[peer.ID]*Peer),
		reconnects: make(map[peer.ID]context.CancelFunc),
		log:        logging.GetDefault().Component("pool"),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.SetStreamHandler(GossipProtocol, p.handleInboundStream)
	return p
}

// OnPacket registers the callback invoked for every gossip packet
// other than Ping/Pong/Disconnecting, which the pool handles itself.
func (p *Pool) OnPacket(f func(*Peer, *Packet))                { p.onPacket = f }
func (p *Pool) OnPeerOpen(f func(*Peer))                       { p.onOpen = f }
func (p *Pool) OnPeerClose(f func(*Peer, DisconnectReason))    { p.onClose = f }

// Shutdown closes every peer connection and stops accepting new ones.
func (p *Pool) Shutdown() {
	p.cancel()
	p.host.RemoveStreamHandler(GossipProtocol)

	p.mu.Lock()
	peers := make([]*Peer, 0, len(p.peers))
	for _, pr := range p.peers {
		peers = append(peers, pr)
	}
	p.mu.Unlock()

	for _, pr := range peers {
		pr.Close(ReasonShutdown, "")
	}
}

// Peers returns a snapshot of currently connected peers.
func (p *Pool) Peers() []*Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Peer, 0, len(p.peers))
	for _, pr := range p.peers {
		out = append(out, pr)
	}
	return out
}

func (p *Pool) Get(id peer.ID) (*Peer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pr, ok := p.peers[id]
	return pr, ok
}

// Broadcast sends a packet to every connected peer that supports
// pairID. Best-effort: failures are logged, not returned, since the
// caller has no single peer to retry against.
func (p *Pool) Broadcast(pairID string, t PacketType, payload interface{}) {
	pkt, err := NewPacket(t, payload)
	if err != nil {
		p.log.Warn("Failed to build broadcast packet", "error", err)
		return
	}
	for _, pr := range p.Peers() {
		if pairID != "" && !pr.SupportsPair(pairID) {
			continue
		}
		if err := pr.send(pkt); err != nil {
			p.log.Debug("Broadcast send failed", "peer", shortPeerID(pr.ID), "error", err)
		}
	}
}

// Revoke cancels any in-flight reconnection attempt for pubkey,
// called when a fresh successful connection supersedes it.
func (p *Pool) Revoke(id peer.ID) {
	p.mu.Lock()
	cancel, ok := p.reconnects[id]
	if ok {
		delete(p.reconnects, id)
	}
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// ParseNodeURI parses "<nodePubKey>@<host>:<port>" into a pubkey and
// a dialable libp2p address. Host:port is assumed to be a TCP
// multiaddr target; callers that already hold a multiaddr should
// build the AddrInfo directly instead.
func ParseNodeURI(uri string) (pubKey string, addr multiaddr.Multiaddr, err error) {
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidNodeURI, uri)
	}
	pubKey = uri[:at]
	hostPort := uri[at+1:]

	colon := strings.LastIndex(hostPort, ":")
	if colon < 0 {
		return "", nil, fmt.Errorf("%w: missing port in %s", ErrInvalidNodeURI, uri)
	}
	hostPart, portPart := hostPort[:colon], hostPort[colon+1:]
	if _, err := strconv.Atoi(portPart); err != nil {
		return "", nil, fmt.Errorf("%w: bad port in %s", ErrInvalidNodeURI, uri)
	}

	maStr := fmt.Sprintf("/dns4/%s/tcp/%s", hostPart, portPart)
	if strings.Count(hostPart, ".") == 3 {
		isNumeric := true
		for _, r := range hostPart {
			if (r < '0' || r > '9') && r != '.' {
				isNumeric = false
				break
			}
		}
		if isNumeric {
			maStr = fmt.Sprintf("/ip4/%s/tcp/%s", hostPart, portPart)
		}
	}
	if strings.HasSuffix(hostPart, ".onion") && !strings.Contains(hostPart, "/") {
		maStr = fmt.Sprintf("/dns4/%s/tcp/%s", hostPart, portPart)
	}

	addr, err = multiaddr.NewMultiaddr(maStr)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidNodeURI, err)
	}
	return pubKey, addr, nil
}

// AddOutbound dials a node by URI and performs the handshake. If retry
// is set and the dial fails, a reconnection worker keeps retrying it
// with backoff. Once connected, reconnect-worthy disconnects of any
// outbound peer are retried by handlePeerClosed.
func (p *Pool) AddOutbound(ctx context.Context, nodeURI string, retry bool) (*Peer, error) {
	expectedPubKey, addr, err := ParseNodeURI(nodeURI)
	if err != nil {
		return nil, err
	}

	if !p.allowTor && strings.Contains(addr.String(), ".onion") {
		return nil, ErrTorDisabled
	}

	if expectedPubKey == p.identity.NodePubKey {
		return nil, ErrSelfConnect
	}

	pi, err := peer.AddrInfoFromP2pAddr(addr)
	var targetID peer.ID
	if err == nil {
		targetID = pi.ID
	} else if expectedPubKey != "" {
		targetID, err = peer.Decode(expectedPubKey)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot resolve target peer id", ErrInvalidNodeURI)
		}
		p.host.Peerstore().AddAddr(targetID, addr, time.Hour)
	}

	banned, err := p.nodes.IsBanned(targetID)
	if err == nil && banned {
		return nil, fmt.Errorf("%w: %s", ErrBanned, shortPeerID(targetID))
	}

	if _, connected := p.Get(targetID); connected {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, shortPeerID(targetID))
	}

	pr, err := p.dial(ctx, targetID, expectedPubKey)
	if err != nil {
		if retry {
			p.startReconnectWorker(targetID, nodeURI)
		}
		return nil, err
	}
	return pr, nil
}

func (p *Pool) dial(ctx context.Context, target peer.ID, expectedPubKey string) (*Peer, error) {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	s, err := p.host.NewStream(dialCtx, target, GossipProtocol)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	pr := newPeer(target, s, false)
	remoteHello, err := pr.handshake(p.hello(), expectedPubKey)
	if err != nil {
		if adjErr := p.nodes.AdjustReputation(target, reputationPenaltyHandshake, "handshake failed: "+err.Error()); adjErr != nil {
			p.log.Debug("Failed to adjust reputation", "peer", shortPeerID(target), "error", adjErr)
		}
		s.Close()
		return nil, err
	}

	return p.admit(pr, remoteHello)
}

func (p *Pool) handleInboundStream(s network.Stream) {
	remote := s.Conn().RemotePeer()

	if banned, err := p.nodes.IsBanned(remote); err == nil && banned {
		pr := newPeer(remote, s, true)
		pr.Close(ReasonBanned, "")
		return
	}

	if _, connected := p.Get(remote); connected {
		pr := newPeer(remote, s, true)
		pr.Close(ReasonAlreadyConnected, "")
		return
	}

	pr := newPeer(remote, s, true)
	remoteHello, err := pr.handshake(p.hello(), "")
	if err != nil {
		p.log.Debug("Inbound handshake failed", "peer", shortPeerID(remote), "error", err)
		if err := p.nodes.AdjustReputation(remote, reputationPenaltyHandshake, "handshake failed: "+err.Error()); err != nil {
			p.log.Debug("Failed to adjust reputation", "peer", shortPeerID(remote), "error", err)
		}
		s.Close()
		return
	}

	if _, err := p.admit(pr, remoteHello); err != nil {
		p.log.Debug("Inbound peer rejected", "peer", shortPeerID(remote), "error", err)
	}
}

// admit registers a peer that completed handshake and starts its run
// loop, or rejects it if a race let a duplicate in.
func (p *Pool) admit(pr *Peer, hello *HelloPayload) (*Peer, error) {
	p.mu.Lock()
	if _, exists := p.peers[pr.ID]; exists {
		p.mu.Unlock()
		pr.Close(ReasonAlreadyConnected, "")
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, shortPeerID(pr.ID))
	}
	p.peers[pr.ID] = pr
	p.mu.Unlock()

	addrs := p.host.Peerstore().Addrs(pr.ID)
	if err := p.nodes.Record(pr.ID, addrs, false); err != nil {
		p.log.Debug("Failed to record node", "peer", shortPeerID(pr.ID), "error", err)
	}
	p.nodes.MarkConnected(pr.ID)
	p.Revoke(pr.ID)

	if p.onOpen != nil {
		p.onOpen(pr)
	}

	go pr.run(p.ctx, p.dispatch, p.handlePeerClosed)

	p.log.Info("Peer connected", "peer", shortPeerID(pr.ID), "inbound", pr.Inbound, "pairs", hello.Pairs)
	return pr, nil
}

func (p *Pool) dispatch(pr *Peer, pkt *Packet) {
	if p.onPacket != nil {
		p.onPacket(pr, pkt)
	}
}

func (p *Pool) handlePeerClosed(pr *Peer, reason DisconnectReason) {
	p.mu.Lock()
	delete(p.peers, pr.ID)
	p.mu.Unlock()

	p.log.Info("Peer disconnected", "peer", shortPeerID(pr.ID), "reason", reason)

	switch reason {
	case ReasonMalformedPacket:
		if err := p.nodes.AdjustReputation(pr.ID, reputationPenaltyMalformed, "malformed packet"); err != nil {
			p.log.Debug("Failed to adjust reputation", "peer", shortPeerID(pr.ID), "error", err)
		}
	case ReasonResponseStalling:
		if err := p.nodes.AdjustReputation(pr.ID, reputationPenaltyStalling, "response stalling"); err != nil {
			p.log.Debug("Failed to adjust reputation", "peer", shortPeerID(pr.ID), "error", err)
		}
	}

	if p.onClose != nil {
		p.onClose(pr, reason)
	}

	if !pr.Inbound && reason.reconnectWorthy() {
		p.startReconnectWorker(pr.ID, "")
	}
}

// startReconnectWorker retries an outbound connection with
// exponential backoff until it succeeds or is revoked. nodeURI may be
// empty if the peer's last-known addresses should be looked up from
// the libp2p host's peerstore instead of re-parsed from a URI.
func (p *Pool) startReconnectWorker(id peer.ID, nodeURI string) {
	p.mu.Lock()
	if _, exists := p.reconnects[id]; exists {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.reconnects[id] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.reconnects, id)
			p.mu.Unlock()
		}()

		cfg := p.backoff
		for attempt := 0; ; attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.next(attempt)):
			}

			var err error
			if nodeURI != "" {
				_, err = p.AddOutbound(ctx, nodeURI, false)
			} else {
				err = p.reconnectByAddrInfo(ctx, id)
			}
			if err == nil {
				return
			}
			p.log.Debug("Reconnect attempt failed", "peer", shortPeerID(id), "attempt", attempt, "error", err)
		}
	}()
}

func (p *Pool) reconnectByAddrInfo(ctx context.Context, id peer.ID) error {
	addrs := p.host.Peerstore().Addrs(id)
	if len(addrs) == 0 {
		return fmt.Errorf("no known address for %s", shortPeerID(id))
	}
	pr, err := p.dial(ctx, id, "")
	if err != nil {
		return err
	}
	_ = pr
	return nil
}

func (p *Pool) hello() HelloPayload {
	p.mu.RLock()
	pairs := make([]string, len(p.pairs))
	copy(pairs, p.pairs)
	p.mu.RUnlock()

	return HelloPayload{
		NodePubKey: p.identity.NodePubKey,
		Version:    ProtocolVersion,
		NetworkID:  p.identity.NetworkID,
		Addresses:  p.identity.Addresses,
		Pairs:      pairs,
	}
}

// Identity returns this node's own gossip identity, for the RPC
// layer's getInfo.
func (p *Pool) Identity() Identity { return p.identity }

// SetPairs updates the pairs advertised in future Hello and
// NodeStateUpdate packets, and gossips the change to open peers.
func (p *Pool) SetPairs(pairs []string) {
	p.mu.Lock()
	p.pairs = pairs
	p.mu.Unlock()

	pkt, err := NewPacket(PacketNodeStateUpdate, NodeStateUpdatePayload{Pairs: pairs, Addresses: p.identity.Addresses})
	if err != nil {
		return
	}
	for _, pr := range p.Peers() {
		pr.send(pkt)
	}
}
