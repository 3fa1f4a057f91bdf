package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/klingon-exchange/xud/internal/p2p"
)

type getInfoResult struct {
	NodePubKey    string   `json:"nodePubKey"`
	NetworkID     string   `json:"networkId"`
	Addresses     []string `json:"addresses"`
	Version       string   `json:"version"`
	NumPeers      int      `json:"numPeers"`
	NumCurrencies int      `json:"numCurrencies"`
	NumPairs      int      `json:"numPairs"`
	Uptime        int64    `json:"uptimeSeconds"`
	NetworkType   string   `json:"networkType"`
}

func (s *Server) getInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id := s.pool.Identity()
	return &getInfoResult{
		NodePubKey:    id.NodePubKey,
		NetworkID:     id.NetworkID,
		Addresses:     id.Addresses,
		Version:       p2p.ProtocolVersion,
		NumPeers:      len(s.pool.Peers()),
		NumCurrencies: len(s.reg.Currencies()),
		NumPairs:      len(s.reg.Pairs()),
		Uptime:        int64(time.Since(s.startedAt).Seconds()),
		NetworkType:   string(s.cfg.NetworkType),
	}, nil
}

// doShutdown responds first, then asks the daemon to stop in the
// background so the RPC caller always gets a response before the
// server it called through goes away.
func (s *Server) doShutdown(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.shutdown != nil {
		go s.shutdown()
	}
	return map[string]bool{"shuttingDown": true}, nil
}
