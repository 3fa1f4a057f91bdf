package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/storage"
)

const placeOrderSyncTimeout = 30 * time.Second

type listOrdersParams struct {
	PairID string `json:"pairId"`
}

func (s *Server) listOrders(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p listOrdersParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	pairIDs := []string{p.PairID}
	if p.PairID == "" {
		pairIDs = pairIDs[:0]
		for _, pair := range s.reg.Pairs() {
			pairIDs = append(pairIDs, pair.ID())
		}
	}

	result := make(map[string]map[string][]*OrderInfo, len(pairIDs))
	for _, pairID := range pairIDs {
		sides := make(map[string][]*OrderInfo, 2)
		for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
			depth, err := s.book.Depth(pairID, side)
			if err != nil {
				return nil, err
			}
			infos := make([]*OrderInfo, 0, len(depth))
			for _, o := range depth {
				infos = append(infos, orderToInfo(o))
			}
			sides[string(side)] = infos
		}
		result[pairID] = sides
	}
	return result, nil
}

type placeOrderParams struct {
	PairID   string `json:"pairId"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

func (s *Server) parsePlaceOrder(params json.RawMessage) (*placeOrderParams, decimal.Decimal, error) {
	var p placeOrderParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, decimal.Decimal{}, fmt.Errorf("invalid params: %w", err)
	}
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return nil, decimal.Decimal{}, fmt.Errorf("invalid price: %w", err)
	}
	return &p, price, nil
}

// persistRestingOrder saves an own order to storage if any quantity of
// it is still resting after matching, so it survives a restart; a
// fully filled order never rests and so never needs to.
func (s *Server) persistRestingOrder(o *orderbook.Order) {
	if o.Quantity <= 0 {
		return
	}
	rec := &storage.LocalOrder{
		LocalID:   o.LocalID,
		PairID:    o.PairID,
		Side:      string(o.Side),
		Price:     o.Price.String(),
		Quantity:  o.Quantity,
		CreatedAt: o.CreatedAt,
	}
	if err := s.store.SaveLocalOrder(rec); err != nil {
		s.log.Warn("Failed to persist own order", "localId", o.LocalID, "error", err)
	}
}

func (s *Server) placeOrder(ctx context.Context, params json.RawMessage) (interface{}, error) {
	p, price, err := s.parsePlaceOrder(params)
	if err != nil {
		return nil, err
	}

	order, matches, err := s.book.PlaceOwnOrder(p.PairID, orderbook.Side(p.Side), price, p.Quantity)
	if err != nil {
		return nil, err
	}
	s.persistRestingOrder(order)
	s.engine.ProcessMatches(p.PairID, matches)

	return orderToInfo(order), nil
}

// placeOrderSync places an order like placeOrder, but additionally waits
// for every swap it triggers to reach a terminal state before returning,
// so a caller never has to poll or race the subscribeSwaps feed for an
// order it just placed.
func (s *Server) placeOrderSync(ctx context.Context, params json.RawMessage) (interface{}, error) {
	p, price, err := s.parsePlaceOrder(params)
	if err != nil {
		return nil, err
	}

	order, matches, err := s.book.PlaceOwnOrder(p.PairID, orderbook.Side(p.Side), price, p.Quantity)
	if err != nil {
		return nil, err
	}
	s.persistRestingOrder(order)

	// Only matches against a peer's order start a swap; a match between
	// two of this node's own orders produces no deal to wait for.
	expected := 0
	for _, m := range matches {
		if !m.Maker.IsOwn() {
			expected++
		}
	}
	if expected == 0 {
		s.engine.ProcessMatches(p.PairID, matches)
		return map[string]interface{}{"order": orderToInfo(order), "deals": []*DealInfo{}}, nil
	}

	ch := s.registerWaiter(order.LocalID)
	defer s.unregisterWaiter(order.LocalID, ch)

	s.engine.ProcessMatches(p.PairID, matches)

	deals := make([]*DealInfo, 0, expected)
	timeout := time.NewTimer(placeOrderSyncTimeout)
	defer timeout.Stop()
	for i := 0; i < expected; i++ {
		select {
		case d := <-ch:
			deals = append(deals, dealToInfo(d))
		case <-ctx.Done():
			return map[string]interface{}{"order": orderToInfo(order), "deals": deals}, ctx.Err()
		case <-timeout.C:
			return map[string]interface{}{"order": orderToInfo(order), "deals": deals}, fmt.Errorf("timed out waiting for %d of %d swaps to settle", expected-len(deals), expected)
		}
	}

	return map[string]interface{}{"order": orderToInfo(order), "deals": deals}, nil
}

type removeOrderParams struct {
	PairID  string `json:"pairId"`
	LocalID string `json:"localId"`
}

// removeOrder cancels a resting own order. RemoveOwnOrder itself fires
// the invalidation broadcast to connected peers; this only needs to
// drop the persisted copy so it is not reloaded on the next restart.
func (s *Server) removeOrder(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p removeOrderParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.book.RemoveOwnOrder(p.PairID, p.LocalID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteLocalOrder(p.LocalID); err != nil && err != storage.ErrOrderNotFound {
		s.log.Warn("Failed to delete persisted order", "localId", p.LocalID, "error", err)
	}
	return map[string]bool{"removed": true}, nil
}
