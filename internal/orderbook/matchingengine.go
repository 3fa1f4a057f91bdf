package orderbook

import (
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/xud/pkg/logging"
)

// Match pairs one maker order (already resting in the book) against one
// taker order, partially or fully filling the smaller side.
type Match struct {
	Maker    *Order
	Taker    *Order
	Quantity int64
}

// MatchingEngine owns the bid and ask priority queues for exactly one
// pair. Every match-and-place call holds mu end-to-end, so a single
// pair's matching is strictly serialized; independent pairs never
// contend with each other.
type MatchingEngine struct {
	PairID string

	mu   sync.Mutex
	bids *redblacktree.Tree[*Order, struct{}]
	asks *redblacktree.Tree[*Order, struct{}]

	byID map[string]*Order

	seq atomic.Uint64
	log *logging.Logger
}

// NewMatchingEngine creates an empty engine for a single pair. Bids sort
// highest-price-first, then oldest-first; asks sort lowest-price-first,
// then oldest-first -- both expressed as redblacktree key comparators.
func NewMatchingEngine(pairID string) *MatchingEngine {
	return &MatchingEngine{
		PairID: pairID,
		bids:   redblacktree.NewWith[*Order, struct{}](bidLess),
		asks:   redblacktree.NewWith[*Order, struct{}](askLess),
		byID:   make(map[string]*Order),
		log:    logging.GetDefault().Component("matching-engine"),
	}
}

func bidLess(a, b *Order) int {
	if c := b.Price.Cmp(a.Price); c != 0 {
		return c
	}
	return timeOrder(a, b)
}

func askLess(a, b *Order) int {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	return timeOrder(a, b)
}

func timeOrder(a, b *Order) int {
	if a.CreatedAt.Before(b.CreatedAt) {
		return -1
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return 1
	}
	if a.sequence < b.sequence {
		return -1
	}
	if a.sequence > b.sequence {
		return 1
	}
	if a.LocalID < b.LocalID {
		return -1
	}
	if a.LocalID > b.LocalID {
		return 1
	}
	return 0
}

func (e *MatchingEngine) treeFor(side Side) *redblacktree.Tree[*Order, struct{}] {
	if side == Buy {
		return e.bids
	}
	return e.asks
}

func (e *MatchingEngine) opposite(side Side) *redblacktree.Tree[*Order, struct{}] {
	if side == Buy {
		return e.asks
	}
	return e.bids
}

// crosses reports whether a resting order on the opposite side at
// restingPrice would trade against an incoming order on side at price.
func crosses(side Side, price, restingPrice decimal.Decimal) bool {
	if side == Buy {
		return restingPrice.LessThanOrEqual(price)
	}
	return restingPrice.GreaterThanOrEqual(price)
}

// MatchAndPlace matches an incoming order against the resting book for
// the opposite side in price/time priority, then places whatever
// quantity remains (if any) on the incoming order's own side.
func (e *MatchingEngine) MatchAndPlace(order *Order) []Match {
	e.mu.Lock()
	defer e.mu.Unlock()

	order.sequence = e.seq.Add(1)

	var matches []Match
	opp := e.opposite(order.Side)

	for order.Available() > 0 {
		it := opp.Iterator()
		if !it.Next() {
			break
		}
		best := it.Key()
		if !crosses(order.Side, order.Price, best.Price) {
			break
		}

		fillQty := order.Available()
		if best.Available() < fillQty {
			fillQty = best.Available()
		}

		order.Quantity -= fillQty
		best.Quantity -= fillQty

		matches = append(matches, Match{Maker: best, Taker: order, Quantity: fillQty})

		if best.Quantity <= 0 {
			opp.Remove(best)
			delete(e.byID, best.LocalID)
		}
	}

	if order.Quantity > 0 {
		e.treeFor(order.Side).Put(order, struct{}{})
		e.byID[order.LocalID] = order
	}

	return matches
}

// Remove cancels a resting order by id, returning false if it was not
// found (already filled or cancelled).
func (e *MatchingEngine) Remove(localID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.byID[localID]
	if !ok {
		return false
	}
	e.treeFor(o.Side).Remove(o)
	delete(e.byID, localID)
	return true
}

// restore adds qty back onto an order's resting quantity, re-inserting
// it into the book if it is not currently tracked -- either because a
// prior match consumed it entirely and removed it, or because it is
// being reloaded from storage at startup into an empty book, in which
// case qty is the whole persisted quantity rather than a remainder.
func (e *MatchingEngine) restore(o *Order, qty int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byID[o.LocalID]; exists {
		o.Quantity += qty
		return
	}
	o.Quantity = qty
	o.sequence = e.seq.Add(1)
	e.treeFor(o.Side).Put(o, struct{}{})
	e.byID[o.LocalID] = o
}

// adjustHold mutates an order's Hold field under this engine's lock,
// serializing it against concurrent matching the same way every other
// mutation of a tracked order is serialized. Works whether or not the
// order is still resting in the book, since a fully consumed order's
// Hold still needs releasing once its swap settles or fails.
func (e *MatchingEngine) adjustHold(o *Order, delta int64) {
	e.mu.Lock()
	o.Hold += delta
	e.mu.Unlock()
}

// Order looks up a resting order by its local id.
func (e *MatchingEngine) Order(localID string) (*Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.byID[localID]
	return o, ok
}

// BestBid and BestAsk return the top of each book, if any.
func (e *MatchingEngine) BestBid() (*Order, bool) { return firstOf(e.bids, &e.mu) }
func (e *MatchingEngine) BestAsk() (*Order, bool) { return firstOf(e.asks, &e.mu) }

func firstOf(t *redblacktree.Tree[*Order, struct{}], mu *sync.Mutex) (*Order, bool) {
	mu.Lock()
	defer mu.Unlock()
	it := t.Iterator()
	if !it.Next() {
		return nil, false
	}
	return it.Key(), true
}

// Depth returns all resting orders on one side, best-first.
func (e *MatchingEngine) Depth(side Side) []*Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.treeFor(side)
	out := make([]*Order, 0, t.Size())
	it := t.Iterator()
	for it.Next() {
		out = append(out, it.Key())
	}
	return out
}
