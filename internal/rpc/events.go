package rpc

import (
	"github.com/klingon-exchange/xud/internal/alerts"
	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/swaps"
)

// onOrderBroadcast fans out a newly placed own order over the
// subscribeOrders feed. It is registered as the order book's
// BroadcastFunc, so it fires for every own order placed locally that
// still has quantity resting after matching, regardless of which RPC
// method (or future caller) placed it.
func (s *Server) onOrderBroadcast(o *orderbook.Order) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(EventOrder, orderToInfo(o))
}

// onSwapUpdate fans a deal transition out over the subscribeSwaps and
// subscribeSwapFailures feeds, and wakes any placeOrderSync call
// waiting on this deal's order.
func (s *Server) onSwapUpdate(d *swaps.Deal) {
	if s.wsHub != nil {
		info := dealToInfo(d)
		s.wsHub.Broadcast(EventSwap, info)
		if d.State == swaps.StateError {
			s.wsHub.Broadcast(EventSwapFailure, info)
		}
	}

	if d.State == swaps.StateActive {
		return
	}
	s.wakeWaiters(d.OrderLocalID, d)
}

// relayAlerts forwards the alerts stream over the subscribeAlerts
// feed until it closes, which happens when the stream's context is
// cancelled or its backend event source closes. Run in its own
// goroutine from Start.
func (s *Server) relayAlerts() {
	if s.alerts == nil {
		return
	}
	for a := range s.alerts.Alerts() {
		if s.wsHub != nil {
			s.wsHub.Broadcast(EventAlert, a)
		}
	}
}

func (s *Server) registerWaiter(localID string) chan *swaps.Deal {
	ch := make(chan *swaps.Deal, 1)
	s.waitMu.Lock()
	s.waiters[localID] = append(s.waiters[localID], ch)
	s.waitMu.Unlock()
	return ch
}

func (s *Server) unregisterWaiter(localID string, ch chan *swaps.Deal) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	chans := s.waiters[localID]
	for i, c := range chans {
		if c == ch {
			s.waiters[localID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(s.waiters[localID]) == 0 {
		delete(s.waiters, localID)
	}
}

func (s *Server) wakeWaiters(localID string, d *swaps.Deal) {
	s.waitMu.Lock()
	chans := s.waiters[localID]
	s.waitMu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- d:
		default:
		}
	}
}
