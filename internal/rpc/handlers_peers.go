package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	p2pPeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/klingon-exchange/xud/internal/p2p"
)

type connectParams struct {
	NodeURI string `json:"nodeUri"`
}

func (s *Server) connect(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p connectParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.NodeURI == "" {
		return nil, fmt.Errorf("nodeUri is required")
	}
	pr, err := s.pool.AddOutbound(ctx, p.NodeURI, true)
	if err != nil {
		return nil, err
	}
	return peerToInfo(pr), nil
}

type banParams struct {
	NodePubKey string `json:"nodePubKey"`
	Reason     string `json:"reason"`
}

func (s *Server) ban(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p banParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	id, err := p2pPeer.Decode(p.NodePubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid nodePubKey: %w", err)
	}
	if err := s.nodes.Ban(id, p.Reason); err != nil {
		return nil, err
	}
	if pr, ok := s.pool.Get(id); ok {
		_ = pr.Close(p2p.ReasonBanned, "banned")
	}
	return map[string]bool{"banned": true}, nil
}

type unbanParams struct {
	NodePubKey string `json:"nodePubKey"`
}

func (s *Server) unban(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p unbanParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	id, err := p2pPeer.Decode(p.NodePubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid nodePubKey: %w", err)
	}
	if err := s.nodes.Unban(id); err != nil {
		return nil, err
	}
	return map[string]bool{"unbanned": true}, nil
}

func (s *Server) listPeers(ctx context.Context, params json.RawMessage) (interface{}, error) {
	peers := s.pool.Peers()
	out := make([]*PeerInfo, 0, len(peers))
	for _, pr := range peers {
		out = append(out, peerToInfo(pr))
	}
	return out, nil
}
