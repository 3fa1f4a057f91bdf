package orderbook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/xud/internal/currency"
	"github.com/klingon-exchange/xud/pkg/logging"
)

var (
	ErrDuplicateLocalID = errors.New("order with this local id already exists")
	ErrOrderNotFound    = errors.New("order not found")
	ErrUnknownPair      = errors.New("unknown trading pair")
	ErrInvalidQuantity  = errors.New("order quantity must be positive")
	ErrInvalidPrice     = errors.New("order price must be positive")
)

// BroadcastFunc is called with every newly placed local order that
// still has quantity resting after matching, so the P2P layer can gossip
// it to connected peers.
type BroadcastFunc func(o *Order)

// InvalidationFunc is called when one of this node's own orders is
// cancelled via RemoveOwnOrder, so the P2P layer can tell peers to drop
// it. Removing a remote order never calls it.
type InvalidationFunc func(pairID, globalID string)

// OrderBook owns one MatchingEngine per tradable pair plus the local
// bookkeeping needed to reconcile a peer's own order ids with the ids
// this node uses to track that peer's orders.
type OrderBook struct {
	registry *currency.Registry
	log      *logging.Logger

	mu       sync.RWMutex
	engines  map[string]*MatchingEngine
	ordersByGlobalID map[string]*Order

	onBroadcast   BroadcastFunc
	onInvalidate  InvalidationFunc
}

func New(registry *currency.Registry) *OrderBook {
	return &OrderBook{
		registry:         registry,
		log:              logging.GetDefault().Component("orderbook"),
		engines:          make(map[string]*MatchingEngine),
		ordersByGlobalID: make(map[string]*Order),
	}
}

// OnBroadcast adds fn to the callbacks run for each broadcast order; a
// later registration runs after, and does not replace, an earlier one.
func (ob *OrderBook) OnBroadcast(fn BroadcastFunc) {
	prev := ob.onBroadcast
	if prev == nil {
		ob.onBroadcast = fn
		return
	}
	ob.onBroadcast = func(o *Order) { prev(o); fn(o) }
}

func (ob *OrderBook) OnInvalidation(fn InvalidationFunc)   { ob.onInvalidate = fn }

func (ob *OrderBook) engineFor(pairID string) (*MatchingEngine, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	e, ok := ob.engines[pairID]
	if !ok {
		if _, known := ob.registry.Pair(pairID); !known {
			return nil, ErrUnknownPair
		}
		e = NewMatchingEngine(pairID)
		ob.engines[pairID] = e
	}
	return e, nil
}

// PlaceOwnOrder validates and matches a locally originated order,
// returning the fills that resulted and the order as placed (possibly
// partially filled, possibly fully consumed).
func (ob *OrderBook) PlaceOwnOrder(pairID string, side Side, price decimal.Decimal, quantity int64) (*Order, []Match, error) {
	if quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}
	if price.Sign() <= 0 {
		return nil, nil, ErrInvalidPrice
	}

	engine, err := ob.engineFor(pairID)
	if err != nil {
		return nil, nil, err
	}

	order := &Order{
		LocalID:   uuid.New().String(),
		PairID:    pairID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}

	matches := engine.MatchAndPlace(order)

	if order.Quantity > 0 && ob.onBroadcast != nil {
		ob.onBroadcast(order)
	}

	return order, matches, nil
}

// AddRemoteOrder records and matches against an order received from a
// peer. globalID scopes the peer's local id to that peer so two peers
// using the same local id string never collide in this node's book.
func (ob *OrderBook) AddRemoteOrder(peerID, peerLocalID, pairID string, side Side, price decimal.Decimal, quantity int64, createdAt time.Time) (*Order, []Match, error) {
	if quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}
	if price.Sign() <= 0 {
		return nil, nil, ErrInvalidPrice
	}

	engine, err := ob.engineFor(pairID)
	if err != nil {
		return nil, nil, err
	}

	globalID := fmt.Sprintf("%s:%s", peerID, peerLocalID)

	ob.mu.Lock()
	if _, exists := ob.ordersByGlobalID[globalID]; exists {
		ob.mu.Unlock()
		return nil, nil, ErrDuplicateLocalID
	}
	ob.mu.Unlock()

	order := &Order{
		LocalID:   globalID,
		GlobalID:  globalID,
		PeerID:    peerID,
		PairID:    pairID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: createdAt,
	}

	matches := engine.MatchAndPlace(order)

	ob.mu.Lock()
	ob.ordersByGlobalID[globalID] = order
	ob.mu.Unlock()

	return order, matches, nil
}

// RemoveOwnOrder cancels a resting local order and calls the
// invalidation callback so the gossip network drops it too.
func (ob *OrderBook) RemoveOwnOrder(pairID, localID string) error {
	engine, err := ob.engineFor(pairID)
	if err != nil {
		return err
	}
	if !engine.Remove(localID) {
		return ErrOrderNotFound
	}
	if ob.onInvalidate != nil {
		ob.onInvalidate(pairID, localID)
	}
	return nil
}

// Restore adds qty back onto an order's resting quantity, re-inserting
// it into the book if it is not currently tracked. Used both to reload
// a resting own order persisted from a prior run into an empty book at
// startup (qty is then the whole persisted quantity) and to put a
// matched order's reserved quantity back on the book once a swap
// against it fails (qty is then just that match's quantity).
func (ob *OrderBook) Restore(pairID string, o *Order, qty int64) error {
	engine, err := ob.engineFor(pairID)
	if err != nil {
		return err
	}
	engine.restore(o, qty)
	return nil
}

// AdjustHold nudges a tracked order's Hold by delta (positive to
// reserve a matched quantity pending settlement, negative to release
// it on swap completion or failure).
func (ob *OrderBook) AdjustHold(pairID string, o *Order, delta int64) error {
	engine, err := ob.engineFor(pairID)
	if err != nil {
		return err
	}
	engine.adjustHold(o, delta)
	return nil
}

// RemoveRemoteOrder drops a remote order on receipt of an
// OrderInvalidation packet from its owner. Other peers are not told.
func (ob *OrderBook) RemoveRemoteOrder(pairID, peerID, peerLocalID string) error {
	engine, err := ob.engineFor(pairID)
	if err != nil {
		return err
	}
	globalID := fmt.Sprintf("%s:%s", peerID, peerLocalID)
	engine.Remove(globalID)

	ob.mu.Lock()
	delete(ob.ordersByGlobalID, globalID)
	ob.mu.Unlock()

	return nil
}

// RemoveOrdersForPeer purges every remaining order from a disconnected
// peer across all pairs. Pairs are visited in sorted id order to match
// the lock-ordering discipline used elsewhere when multiple pair locks
// must be taken in one operation.
func (ob *OrderBook) RemoveOrdersForPeer(peerID string) {
	ob.mu.RLock()
	pairIDs := make([]string, 0, len(ob.engines))
	for id := range ob.engines {
		pairIDs = append(pairIDs, id)
	}
	ob.mu.RUnlock()

	sortStrings(pairIDs)

	for _, pairID := range pairIDs {
		engine, _ := ob.engineFor(pairID)
		for _, side := range []Side{Buy, Sell} {
			for _, o := range engine.Depth(side) {
				if o.PeerID == peerID {
					engine.Remove(o.LocalID)
					ob.mu.Lock()
					delete(ob.ordersByGlobalID, o.LocalID)
					ob.mu.Unlock()
				}
			}
		}
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Depth returns the resting book for one side of a pair, best-first.
func (ob *OrderBook) Depth(pairID string, side Side) ([]*Order, error) {
	engine, err := ob.engineFor(pairID)
	if err != nil {
		return nil, err
	}
	return engine.Depth(side), nil
}
