// Package gossip wires the order book and swap engine to the P2P
// pool's packet stream: own orders and cancellations are broadcast out,
// remote orders and swap packets arriving on the wire are dispatched
// in, and a newly opened peer is asked for its resting book.
package gossip

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/p2p"
	"github.com/klingon-exchange/xud/internal/swaps"
	"github.com/klingon-exchange/xud/pkg/logging"
)

// Dispatcher bridges internal/p2p's packet stream to internal/orderbook
// and internal/swaps.
type Dispatcher struct {
	pool   *p2p.Pool
	book   *orderbook.OrderBook
	engine *swaps.Engine
	log    *logging.Logger
}

// New creates a Dispatcher and registers it against pool's packet,
// peer-open, and peer-close hooks, and against book's broadcast and
// invalidation hooks. Call this once, after engine and book both exist.
func New(pool *p2p.Pool, book *orderbook.OrderBook, engine *swaps.Engine) *Dispatcher {
	d := &Dispatcher{
		pool:   pool,
		book:   book,
		engine: engine,
		log:    logging.GetDefault().Component("gossip"),
	}

	pool.OnPacket(d.handlePacket)
	pool.OnPeerOpen(d.handlePeerOpen)
	pool.OnPeerClose(func(pr *p2p.Peer, _ p2p.DisconnectReason) {
		book.RemoveOrdersForPeer(pr.ID.String())
	})
	book.OnBroadcast(d.broadcastOwnOrder)
	book.OnInvalidation(d.broadcastInvalidation)

	return d
}

func (d *Dispatcher) broadcastOwnOrder(o *orderbook.Order) {
	d.pool.Broadcast(o.PairID, p2p.PacketOrder, orderToWire(o))
}

func (d *Dispatcher) broadcastInvalidation(pairID, globalID string) {
	d.pool.Broadcast(pairID, p2p.PacketOrderInvalidation, p2p.OrderInvalidationPayload{
		OrderID: globalID,
		PairID:  pairID,
	})
}

// handlePeerOpen requests the new peer's resting book for every pair
// the peer advertised, so a fresh connection starts with a complete
// view rather than waiting for the next order placed on either side.
func (d *Dispatcher) handlePeerOpen(pr *p2p.Peer) {
	pkt, err := p2p.NewPacket(p2p.PacketGetOrders, p2p.GetOrdersPayload{PairIDs: pr.Pairs()})
	if err != nil {
		d.log.Warn("Failed to build getOrders packet", "error", err)
		return
	}
	if err := pr.Send(pkt); err != nil {
		d.log.Debug("Failed to request orders from new peer", "peer", pr.ID.String(), "error", err)
	}
}

func (d *Dispatcher) handlePacket(pr *p2p.Peer, pkt *p2p.Packet) {
	switch pkt.Type {
	case p2p.PacketOrder:
		var w p2p.OrderWire
		if err := pkt.Unmarshal(&w); err != nil {
			d.log.Debug("Malformed order packet", "peer", pr.ID.String(), "error", err)
			return
		}
		d.addRemoteOrder(pr, w)

	case p2p.PacketOrders:
		var payload p2p.OrdersPayload
		if err := pkt.Unmarshal(&payload); err != nil {
			d.log.Debug("Malformed orders packet", "peer", pr.ID.String(), "error", err)
			return
		}
		for _, w := range payload.Orders {
			d.addRemoteOrder(pr, w)
		}

	case p2p.PacketOrderInvalidation:
		var payload p2p.OrderInvalidationPayload
		if err := pkt.Unmarshal(&payload); err != nil {
			d.log.Debug("Malformed invalidation packet", "peer", pr.ID.String(), "error", err)
			return
		}
		if err := d.book.RemoveRemoteOrder(payload.PairID, pr.ID.String(), payload.OrderID); err != nil {
			d.log.Debug("Failed to remove invalidated order", "peer", pr.ID.String(), "error", err)
		}

	case p2p.PacketGetOrders:
		var payload p2p.GetOrdersPayload
		if err := pkt.Unmarshal(&payload); err != nil {
			d.log.Debug("Malformed getOrders packet", "peer", pr.ID.String(), "error", err)
			return
		}
		d.replyWithOwnOrders(pr, payload.PairIDs)

	case p2p.PacketSwapRequest, p2p.PacketSwapAccepted, p2p.PacketSwapFailed, p2p.PacketSwapComplete:
		d.engine.HandlePacket(pr, pkt)

	default:
	}
}

func (d *Dispatcher) addRemoteOrder(pr *p2p.Peer, w p2p.OrderWire) {
	if w.Price == nil {
		d.log.Debug("Ignoring market order, unsupported", "peer", pr.ID.String())
		return
	}
	price, err := decimal.NewFromString(*w.Price)
	if err != nil {
		d.log.Debug("Malformed order price", "peer", pr.ID.String(), "error", err)
		return
	}

	_, matches, err := d.book.AddRemoteOrder(pr.ID.String(), w.ID, w.PairID, orderbook.Side(w.Side), price, w.Quantity, time.Unix(w.CreatedAt, 0))
	if err != nil {
		d.log.Debug("Rejected remote order", "peer", pr.ID.String(), "error", err)
		return
	}
	d.engine.ProcessMatches(w.PairID, matches)
}

// replyWithOwnOrders sends every resting own order across the
// requested pairs back to the requester, seeding its book in one
// packet rather than one per order.
func (d *Dispatcher) replyWithOwnOrders(pr *p2p.Peer, pairIDs []string) {
	var wires []p2p.OrderWire
	for _, pairID := range pairIDs {
		for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
			depth, err := d.book.Depth(pairID, side)
			if err != nil {
				continue
			}
			for _, o := range depth {
				if o.IsOwn() {
					wires = append(wires, orderToWire(o))
				}
			}
		}
	}
	if len(wires) == 0 {
		return
	}
	pkt, err := p2p.NewPacket(p2p.PacketOrders, p2p.OrdersPayload{Orders: wires})
	if err != nil {
		d.log.Warn("Failed to build orders packet", "error", err)
		return
	}
	if err := pr.Send(pkt); err != nil {
		d.log.Debug("Failed to send orders to peer", "peer", pr.ID.String(), "error", err)
	}
}

func orderToWire(o *orderbook.Order) p2p.OrderWire {
	price := o.Price.String()
	return p2p.OrderWire{
		ID:        o.LocalID,
		PairID:    o.PairID,
		Side:      string(o.Side),
		Quantity:  o.Available(),
		Price:     &price,
		CreatedAt: o.CreatedAt.Unix(),
	}
}
