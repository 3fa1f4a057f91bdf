package p2p

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/klingon-exchange/xud/internal/storage"
)

// NodeStore adapts the persistent node address book to libp2p peer
// identifiers, and is the single point where ban/reputation decisions
// are made for the pool and its peers.
type NodeStore struct {
	store *storage.Storage
}

func NewNodeStore(store *storage.Storage) *NodeStore {
	return &NodeStore{store: store}
}

// Record upserts a node's address-book entry on first contact or
// address change.
func (s *NodeStore) Record(id peer.ID, addrs []multiaddr.Multiaddr, bootstrap bool) error {
	addrStrs := make([]string, len(addrs))
	for i, a := range addrs {
		addrStrs[i] = a.String()
	}
	now := time.Now()
	return s.store.SaveNode(&storage.NodeRecord{
		NodePubKey:  id.String(),
		Addresses:   addrStrs,
		FirstSeen:   now,
		LastSeen:    now,
		IsBootstrap: bootstrap,
	})
}

func (s *NodeStore) MarkConnected(id peer.ID) error {
	return s.store.UpdateNodeConnected(id.String())
}

func (s *NodeStore) IsBanned(id peer.ID) (bool, error) {
	return s.store.IsBanned(id.String())
}

// Ban records a ban, with its reason, for a node in the store.
func (s *NodeStore) Ban(id peer.ID, reason string) error {
	return s.store.Ban(id.String(), reason)
}

func (s *NodeStore) Unban(id peer.ID) error {
	return s.store.Unban(id.String())
}

// AdjustReputation nudges a node's score; callers pass negative deltas
// for misbehavior (malformed packets, invalid signatures, stale
// orders) and positive deltas for useful contributions. A node whose
// reputation drops to or below banThreshold is auto-banned.
const banThreshold = -100

func (s *NodeStore) AdjustReputation(id peer.ID, delta int, reason string) error {
	if err := s.store.AdjustReputation(id.String(), delta); err != nil {
		return err
	}
	if delta >= 0 {
		return nil
	}
	rec, err := s.store.GetNode(id.String())
	if err != nil {
		return err
	}
	if rec.Reputation <= banThreshold && !rec.Banned {
		return s.Ban(id, "reputation threshold exceeded: "+reason)
	}
	return nil
}

// RecentNodes returns nodes seen within the window, ordered by
// connection frequency, for reconnection on startup.
func (s *NodeStore) RecentNodes(since time.Duration, limit int) ([]*storage.NodeRecord, error) {
	return s.store.ListRecentNodes(since, limit)
}
