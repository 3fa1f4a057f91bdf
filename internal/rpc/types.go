package rpc

import (
	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/p2p"
	"github.com/klingon-exchange/xud/internal/storage"
	"github.com/klingon-exchange/xud/internal/swaps"
)

// OrderInfo is the wire representation of an order, for both
// listOrders results and the subscribeOrders feed.
type OrderInfo struct {
	LocalID   string `json:"localId"`
	GlobalID  string `json:"globalId"`
	PeerID    string `json:"peerId,omitempty"`
	PairID    string `json:"pairId"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	Available int64  `json:"available"`
	CreatedAt int64  `json:"createdAt"`
}

func orderToInfo(o *orderbook.Order) *OrderInfo {
	return &OrderInfo{
		LocalID:   o.LocalID,
		GlobalID:  o.GlobalID,
		PeerID:    o.PeerID,
		PairID:    o.PairID,
		Side:      string(o.Side),
		Price:     o.Price.String(),
		Quantity:  o.Quantity,
		Available: o.Available(),
		CreatedAt: o.CreatedAt.Unix(),
	}
}

// DealInfo is the wire representation of a swap deal, for the
// subscribeSwaps and subscribeSwapFailures feeds.
type DealInfo struct {
	RHash     string `json:"rHash"`
	Role      string `json:"role"`
	Phase     string `json:"phase"`
	State     string `json:"state"`
	PairID    string `json:"pairId"`
	PeerID    string `json:"peerId"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
	ErrorReason string `json:"errorReason,omitempty"`
}

func dealToInfo(d *swaps.Deal) *DealInfo {
	return &DealInfo{
		RHash:       d.RHash,
		Role:        string(d.Role),
		Phase:       string(d.Phase),
		State:       string(d.State),
		PairID:      d.PairID,
		PeerID:      d.PeerID,
		Quantity:    d.Quantity,
		Price:       d.Price.String(),
		ErrorReason: string(d.ErrorReason),
	}
}

// PeerInfo is the wire representation of a connected peer, for
// listPeers.
type PeerInfo struct {
	NodePubKey string   `json:"nodePubKey"`
	Inbound    bool     `json:"inbound"`
	State      string   `json:"state"`
	Version    string   `json:"version,omitempty"`
	Addresses  []string `json:"addresses,omitempty"`
	Pairs      []string `json:"pairs,omitempty"`
}

func peerToInfo(p *p2p.Peer) *PeerInfo {
	return &PeerInfo{
		NodePubKey: p.ID.String(),
		Inbound:    p.Inbound,
		State:      p.State().String(),
		Version:    p.Version(),
		Addresses:  p.Addresses(),
		Pairs:      p.Pairs(),
	}
}

// CurrencyInfo is the wire representation of a registered currency.
type CurrencyInfo struct {
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
	SwapClient   string `json:"swapClient"`
	TokenAddress string `json:"tokenAddress,omitempty"`
}

// PairInfo is the wire representation of a registered trading pair.
type PairInfo struct {
	PairID        string `json:"pairId"`
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	SwapEnabled   bool   `json:"swapEnabled"`
}

// nodeToInfo renders a known (but not necessarily connected) node's
// address-book entry as a JSON object.
func nodeToInfo(n *storage.NodeRecord) map[string]interface{} {
	return map[string]interface{}{
		"nodePubKey": n.NodePubKey,
		"addresses":  n.Addresses,
		"reputation": n.Reputation,
		"banned":     n.Banned,
	}
}
