package p2p

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/klingon-exchange/xud/pkg/logging"
)

// State is a peer connection's position in its lifecycle.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateHandshaking
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

const (
	handshakeTimeout = 15 * time.Second
	pingInterval     = 30 * time.Second
	maxMissedPings   = 2
)

// Peer is one connection, inbound or outbound, driven through the
// New → Handshaking → Open → Closing → Closed lifecycle over a single
// persistent libp2p stream.
type Peer struct {
	ID       peer.ID
	Inbound  bool
	stream   network.Stream
	reader   *bufio.Reader
	writeMu  sync.Mutex

	mu         sync.RWMutex
	state      State
	version    string
	addresses  []string
	pairs      []string
	missedPing int
	closeErr   DisconnectReason

	log *logging.Logger
}

func newPeer(id peer.ID, s network.Stream, inbound bool) *Peer {
	return &Peer{
		ID:      id,
		Inbound: inbound,
		stream:  s,
		reader:  bufio.NewReader(s),
		state:   StateNew,
		log:     logging.GetDefault().Component("peer").With("peer", shortPeerID(id)),
	}
}

func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Peer) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

func (p *Peer) Addresses() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.addresses))
	copy(out, p.addresses)
	return out
}

func (p *Peer) Pairs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.pairs))
	copy(out, p.pairs)
	return out
}

func (p *Peer) SupportsPair(pairID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range p.pairs {
		if id == pairID {
			return true
		}
	}
	return false
}

// send writes one packet to the peer's stream, serialized against
// concurrent writers.
func (p *Peer) send(pkt *Packet) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stream.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return writePacket(p.stream, pkt)
}

// Send is the exported form of send, for callers outside this
// package driving their own application-level protocol (gossip of
// orders, swap negotiation) over an already-open peer connection.
func (p *Peer) Send(pkt *Packet) error { return p.send(pkt) }

// handshake exchanges Hello packets. The dialing side sends first so
// the accepting side can validate the advertised pubkey against
// whatever it expected before replying.
func (p *Peer) handshake(self HelloPayload, expectedPubKey string) (*HelloPayload, error) {
	p.setState(StateHandshaking)
	p.stream.SetDeadline(time.Now().Add(handshakeTimeout))
	defer p.stream.SetDeadline(time.Time{})

	hello, err := NewPacket(PacketHello, self)
	if err != nil {
		return nil, err
	}

	if !p.Inbound {
		if err := p.send(hello); err != nil {
			return nil, fmt.Errorf("failed to send hello: %w", err)
		}
	}

	remoteHello, err := p.readHello()
	if err != nil {
		return nil, err
	}

	if expectedPubKey != "" && remoteHello.NodePubKey != expectedPubKey {
		return nil, fmt.Errorf("%w: observed %s, expected %s", ErrUnexpectedNodePubKey, remoteHello.NodePubKey, expectedPubKey)
	}

	if p.Inbound {
		if err := p.send(hello); err != nil {
			return nil, fmt.Errorf("failed to send hello: %w", err)
		}
	}

	p.mu.Lock()
	p.version = remoteHello.Version
	p.addresses = remoteHello.Addresses
	p.pairs = remoteHello.Pairs
	p.mu.Unlock()

	return remoteHello, nil
}

func (p *Peer) readHello() (*HelloPayload, error) {
	pkt, err := readPacket(p.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}
	if pkt.Type != PacketHello {
		return nil, fmt.Errorf("%w: expected Hello, got %s", ErrMalformedPacket, pkt.Type)
	}
	var hello HelloPayload
	if err := pkt.Unmarshal(&hello); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	return &hello, nil
}

// run drives the peer's read loop and ping ticker until the stream
// closes or the context is cancelled. onPacket is invoked for every
// non-protocol packet (everything but Ping/Pong/Disconnecting, which
// are handled here); onClose fires exactly once on exit.
func (p *Peer) run(ctx context.Context, onPacket func(*Peer, *Packet), onClose func(*Peer, DisconnectReason)) {
	p.setState(StateOpen)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			p.stream.SetReadDeadline(time.Now().Add(pingInterval*time.Duration(maxMissedPings) + 10*time.Second))
			pkt, err := readPacket(p.reader)
			if err != nil {
				if errors.Is(err, ErrMalformedPacket) {
					p.recordClose(ReasonMalformedPacket)
				} else {
					p.recordClose(ReasonUnknownError)
				}
				return
			}

			switch pkt.Type {
			case PacketPing:
				var ping PingPayload
				pkt.Unmarshal(&ping)
				pong, _ := pkt.Reply(PacketPong, PongPayload{SentAt: ping.SentAt})
				p.send(pong)
			case PacketPong:
				p.mu.Lock()
				p.missedPing = 0
				p.mu.Unlock()
			case PacketDisconnecting:
				var d DisconnectingPayload
				pkt.Unmarshal(&d)
				p.recordClose(d.Reason)
				return
			default:
				onPacket(p, pkt)
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Close(ReasonShutdown, "")
			<-readDone
			onClose(p, ReasonShutdown)
			return
		case <-readDone:
			p.setState(StateClosed)
			onClose(p, p.closedReason())
			return
		case <-ticker.C:
			p.mu.Lock()
			p.missedPing++
			missed := p.missedPing
			p.mu.Unlock()
			if missed > maxMissedPings {
				p.Close(ReasonResponseStalling, "")
				continue
			}
			ping, _ := NewPacket(PacketPing, PingPayload{SentAt: time.Now().Unix()})
			if err := p.send(ping); err != nil {
				p.Close(ReasonUnknownError, err.Error())
			}
		}
	}
}

func (p *Peer) recordClose(reason DisconnectReason) {
	p.mu.Lock()
	if p.closeErr == "" {
		p.closeErr = reason
	}
	p.mu.Unlock()
}

func (p *Peer) closedReason() DisconnectReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closeErr == "" {
		return ReasonUnknownError
	}
	return p.closeErr
}

// Close sends a Disconnecting packet with reason and closes the
// underlying stream. Safe to call more than once.
func (p *Peer) Close(reason DisconnectReason, detail string) error {
	p.mu.Lock()
	if p.state == StateClosing || p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	p.state = StateClosing
	p.closeErr = reason
	p.mu.Unlock()

	pkt, err := NewPacket(PacketDisconnecting, DisconnectingPayload{Reason: reason, Detail: detail})
	if err == nil {
		p.stream.SetWriteDeadline(time.Now().Add(2 * time.Second))
		p.send(pkt)
	}

	err = p.stream.Close()
	p.setState(StateClosed)
	return err
}

func shortPeerID(id peer.ID) string {
	s := id.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
