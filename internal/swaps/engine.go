package swaps

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	p2pPeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/xud/internal/currency"
	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/p2p"
	"github.com/klingon-exchange/xud/internal/storage"
	"github.com/klingon-exchange/xud/internal/swapclient"
	"github.com/klingon-exchange/xud/internal/swapmgr"
	"github.com/klingon-exchange/xud/pkg/logging"
)

const (
	makerCLTVDelta = int32(144)
	takerCLTVDelta = int32(80)
	pollInterval   = 2 * time.Second
	maxSwapAge     = 2 * time.Minute
)

// Engine drives every matched cross-node trade through settlement. It
// owns no transport of its own: packets go out over the pool passed to
// New, and incoming ones arrive through HandlePacket, wired by the
// caller alongside the orderbook's own packet handling.
type Engine struct {
	pool    *p2p.Pool
	clients *swapmgr.Manager
	store   *storage.Storage
	reg     *currency.Registry
	book    *orderbook.OrderBook
	log     *logging.Logger

	mu    sync.Mutex
	deals map[string]*Deal // keyed by rHash, or by pendingKey before rHash is known

	onUpdate func(*Deal)

	ctx    context.Context
	cancel context.CancelFunc
}

// OnUpdate registers a callback invoked after every persisted deal
// transition (including terminal ones), for the RPC layer's
// subscribeSwaps/subscribeSwapFailures feeds.
func (e *Engine) OnUpdate(f func(*Deal)) { e.onUpdate = f }

func New(pool *p2p.Pool, clients *swapmgr.Manager, store *storage.Storage, reg *currency.Registry, book *orderbook.OrderBook) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		pool:    pool,
		clients: clients,
		store:   store,
		reg:     reg,
		book:    book,
		log:     logging.GetDefault().Component("swaps"),
		deals:   make(map[string]*Deal),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Recover scans storage for deals left non-terminal by a crash and
// marks them Recovered rather than silently resuming payment flows
// against state this process no longer holds in memory -- a resumed
// deal has no in-flight goroutine, so it is stopped here. Order book
// holds live only in memory and do not survive a restart, so there is
// no hold to release. The failure
// reason recorded is not a blanket guess: both legs' swap clients are
// asked what they actually know about the payment before falling back
// to FailureUnknownPaymentError.
func (e *Engine) Recover() ([]*Deal, error) {
	records, err := e.store.ListNonTerminalDeals(terminalStates)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal deals: %w", err)
	}

	recovered := make([]*Deal, 0, len(records))
	for _, r := range records {
		d := dealFromRecord(r)
		d.State = StateRecovered
		d.ErrorReason = e.recoverFailureReason(d)
		e.persist(d)
		recovered = append(recovered, d)
		e.log.Warn("Recovered non-terminal deal from a previous run", "rHash", d.RHash, "phase", d.Phase, "reason", d.ErrorReason)
	}
	return recovered, nil
}

// recoverFailureReason queries each leg's swap client for whatever it
// still knows about rHash. A definitive final error or a Failed lookup
// from either leg is conclusive: that leg never landed, so the deal as
// a whole cannot have completed. Absent a definitive answer from
// either leg, the outcome stays unknown and the deal must wait for
// manual resolution rather than be guessed at.
func (e *Engine) recoverFailureReason(d *Deal) FailureReason {
	for _, cur := range []string{d.MakerCurrency, d.TakerCurrency} {
		if cur == "" {
			continue
		}
		client, ok := e.clients.Get(cur)
		if !ok {
			continue
		}
		res, err := client.LookupPayment(e.ctx, d.RHash)
		if err != nil {
			if reason := classifyPaymentErr(err); reason != FailureUnknownPaymentError {
				return reason
			}
			continue
		}
		if res.State == swapclient.PaymentFailed {
			return FailureFinalPaymentError
		}
	}
	return FailureUnknownPaymentError
}

func (e *Engine) Close() {
	e.cancel()
}

// ProcessMatches inspects the fills from one orderbook placement and
// starts a swap for every match that crosses a network boundary (one
// side ours, one side a peer's). Matches where both sides are ours
// need no settlement and are skipped.
func (e *Engine) ProcessMatches(pairID string, matches []orderbook.Match) {
	for _, m := range matches {
		switch {
		case m.Maker.IsOwn() && !m.Taker.IsOwn():
			e.startAsMaker(pairID, m)
		case !m.Maker.IsOwn() && m.Taker.IsOwn():
			e.startAsTaker(pairID, m)
		}
	}
}

// legAmounts derives what each side sends from the resting order's
// side: a Sell-side maker sends base and receives quote, a Buy-side
// maker sends quote and receives base. Both nodes compute this
// identically since pairID and the maker order's side are common
// knowledge once gossiped.
func legAmounts(pairID string, reg *currency.Registry, makerSide orderbook.Side, price decimal.Decimal, quantity int64) (makerCurrency string, makerAmount int64, takerCurrency string, takerAmount int64, err error) {
	pair, ok := reg.Pair(pairID)
	if !ok {
		return "", 0, "", 0, fmt.Errorf("unknown pair %s", pairID)
	}
	quoteAmount := price.Mul(decimal.NewFromInt(quantity)).Truncate(0).IntPart()

	if makerSide == orderbook.Sell {
		return pair.BaseCurrency, quantity, pair.QuoteCurrency, quoteAmount, nil
	}
	return pair.QuoteCurrency, quoteAmount, pair.BaseCurrency, quantity, nil
}

// startAsMaker begins the deal from the maker side: our resting order
// was just taken by a remote order. We privately generate the hash
// and preimage and reserve our own incoming invoice before telling
// the taker anything, since nothing about this deal can be unwound
// once the taker has a destination to pay.
func (e *Engine) startAsMaker(pairID string, m orderbook.Match) {
	makerCurrency, makerAmount, takerCurrency, takerAmount, err := legAmounts(pairID, e.reg, m.Maker.Side, m.Maker.Price, m.Quantity)
	if err != nil {
		e.log.Warn("Cannot start swap, bad pair", "pairID", pairID, "error", err)
		return
	}

	rHash, preimage, err := newHashPair()
	if err != nil {
		e.log.Error("Failed to generate swap secret", "error", err)
		return
	}

	d := &Deal{
		RHash:         rHash,
		Preimage:      preimage,
		Role:          RoleMaker,
		Phase:         PhaseCreated,
		State:         StateActive,
		PairID:        pairID,
		OrderLocalID:  m.Maker.LocalID,
		OrderGlobalID: m.Taker.GlobalID,
		PeerID:        m.Taker.PeerID,
		Quantity:      m.Quantity,
		Price:         m.Maker.Price,
		MakerSide:     string(m.Maker.Side),
		MakerCurrency: makerCurrency,
		MakerAmount:   makerAmount,
		MakerCLTV:     makerCLTVDelta,
		TakerCurrency: takerCurrency,
		TakerAmount:   takerAmount,
		TakerCLTV:     takerCLTVDelta,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
		matchedOrder:  m.Maker,
	}
	// reserve the matched quantity against our own resting order for the
	// life of this swap, so a failure can put it back on the book
	// instead of it simply being gone.
	e.book.AdjustHold(pairID, m.Maker, m.Quantity)

	// the maker receives TakerCurrency, so it reserves its invoice on
	// that currency's client.
	client, ok := e.clients.Get(takerCurrency)
	if !ok {
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("no swap client configured for %s", takerCurrency))
		return
	}

	dest, err := client.AddInvoice(e.ctx, rHash, takerAmount, makerCLTVDelta)
	if err != nil {
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("failed to reserve incoming invoice: %w", err))
		return
	}
	d.MakerDest = dest

	e.track(d)

	pr := e.peerFor(d)
	if pr == nil {
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("peer %s no longer connected", d.PeerID))
		return
	}

	pkt, err := p2p.NewPacket(p2p.PacketSwapRequest, p2p.SwapRequestPayload{
		RHash:            rHash,
		Quantity:         m.Quantity,
		PairID:           pairID,
		OrderID:          m.Taker.GlobalID,
		TakerCLTVDelta:   takerCLTVDelta,
		TakerPubKey:      d.PeerID,
		MakerDestination: dest,
	})
	if err != nil {
		e.failDeal(d, FailurePaymentRejected, err)
		return
	}

	d.Phase = PhaseSwapRequested
	e.persist(d)

	if err := pr.Send(pkt); err != nil {
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("failed to send swap request: %w", err))
		return
	}

	// the taker's SwapAccepted (or SwapFailed) arrives through
	// HandlePacket and drives the rest of this deal forward.
}

// startAsTaker begins the deal from the taker side: our incoming
// order just crossed a remote resting order. We wait for the maker's
// SwapRequest (sent as soon as the match happened on its side) rather
// than originating anything ourselves.
func (e *Engine) startAsTaker(pairID string, m orderbook.Match) {
	d := &Deal{
		Role:          RoleTaker,
		Phase:         PhaseCreated,
		State:         StateActive,
		PairID:        pairID,
		OrderLocalID:  m.Taker.LocalID,
		OrderGlobalID: m.Maker.GlobalID,
		PeerID:        m.Maker.PeerID,
		Quantity:      m.Quantity,
		Price:         m.Maker.Price,
		MakerSide:     string(m.Maker.Side),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
		matchedOrder:  m.Taker,
	}
	e.book.AdjustHold(pairID, m.Taker, m.Quantity)
	e.trackPendingByOrder(d)
}

// HandlePacket processes the swap packet types; callers route every
// other packet type (Orders, GetOrders, ...) elsewhere.
func (e *Engine) HandlePacket(pr *p2p.Peer, pkt *p2p.Packet) {
	switch pkt.Type {
	case p2p.PacketSwapRequest:
		var req p2p.SwapRequestPayload
		if err := pkt.Unmarshal(&req); err != nil {
			e.log.Debug("Malformed SwapRequest", "error", err)
			return
		}
		e.onSwapRequest(pr, &req)
	case p2p.PacketSwapAccepted:
		var acc p2p.SwapAcceptedPayload
		if err := pkt.Unmarshal(&acc); err != nil {
			e.log.Debug("Malformed SwapAccepted", "error", err)
			return
		}
		e.onSwapAccepted(&acc)
	case p2p.PacketSwapFailed:
		var f p2p.SwapFailedPayload
		if err := pkt.Unmarshal(&f); err != nil {
			e.log.Debug("Malformed SwapFailed", "error", err)
			return
		}
		e.onSwapFailed(&f)
	case p2p.PacketSwapComplete:
		var c p2p.SwapCompletePayload
		if err := pkt.Unmarshal(&c); err != nil {
			e.log.Debug("Malformed SwapComplete", "error", err)
			return
		}
		e.onSwapComplete(&c)
	}
}

// onSwapRequest matches the request against the pending taker-side
// deal created when the match occurred, reserves our own invoice, and
// replies. If no matching pending deal is found the request is for an
// order we no longer recognize (raced cancellation) and is rejected.
func (e *Engine) onSwapRequest(pr *p2p.Peer, req *p2p.SwapRequestPayload) {
	d := e.takePendingByOrder(req.PairID, req.OrderID)
	if d == nil {
		e.sendFailed(pr, req.RHash, FailurePaymentRejected)
		return
	}

	makerCurrency, makerAmount, takerCurrency, takerAmount, err := legAmounts(req.PairID, e.reg, orderbook.Side(d.MakerSide), d.Price, d.Quantity)
	if err != nil {
		e.sendFailed(pr, req.RHash, FailurePaymentRejected)
		return
	}

	d.RHash = req.RHash
	d.MakerDest = req.MakerDestination
	d.MakerCLTV = makerCLTVDelta
	d.TakerCLTV = req.TakerCLTVDelta
	d.MakerCurrency = makerCurrency
	d.MakerAmount = makerAmount
	d.TakerCurrency = takerCurrency
	d.TakerAmount = takerAmount
	d.Phase = PhaseSwapRequested

	// the taker receives MakerCurrency, so it reserves its invoice on
	// that currency's client.
	client, ok := e.clients.Get(makerCurrency)
	if !ok {
		e.sendFailed(pr, req.RHash, FailurePaymentRejected)
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("no swap client for %s", makerCurrency))
		return
	}

	dest, err := client.AddInvoice(e.ctx, req.RHash, makerAmount, req.TakerCLTVDelta)
	if err != nil {
		e.sendFailed(pr, req.RHash, FailurePaymentRejected)
		e.failDeal(d, FailurePaymentRejected, err)
		return
	}
	d.TakerDest = dest
	e.track(d)

	e.sendAccepted(pr, req.RHash, d.Quantity, makerCLTVDelta, dest)

	go e.watchIncomingPayment(d)
}

func (e *Engine) sendAccepted(pr *p2p.Peer, rHash string, qty int64, makerCLTV int32, dest string) {
	pkt, err := p2p.NewPacket(p2p.PacketSwapAccepted, p2p.SwapAcceptedPayload{
		RHash:          rHash,
		AcceptedQty:    qty,
		MakerCLTVDelta: makerCLTV,
		Destination:    dest,
	})
	if err != nil {
		e.log.Warn("Failed to build SwapAccepted", "error", err)
		return
	}
	if err := pr.Send(pkt); err != nil {
		e.log.Debug("Failed to send SwapAccepted", "error", err)
	}
}

func (e *Engine) sendFailed(pr *p2p.Peer, rHash string, reason FailureReason) {
	pkt, err := p2p.NewPacket(p2p.PacketSwapFailed, p2p.SwapFailedPayload{RHash: rHash, Reason: string(reason)})
	if err != nil {
		return
	}
	pr.Send(pkt)
}

// onSwapAccepted runs on the maker: the taker has reserved its own
// invoice, so it is now safe to pay it -- safe specifically because
// the maker already holds the preimage and can always release its own
// matching invoice regardless of what the taker does next.
func (e *Engine) onSwapAccepted(acc *p2p.SwapAcceptedPayload) {
	d := e.get(acc.RHash)
	if d == nil || d.Role != RoleMaker {
		return
	}
	d.TakerDest = acc.Destination
	d.Phase = PhaseSwapAccepted
	e.persist(d)

	client, ok := e.clients.Get(d.MakerCurrency)
	if !ok {
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("no swap client for %s", d.MakerCurrency))
		return
	}

	d.Phase = PhaseSendingPayment
	e.persist(d)

	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, maxSwapAge)
		defer cancel()
		_, err := client.SendPayment(ctx, swapclient.SendPaymentRequest{
			RHash:       d.RHash,
			Destination: d.TakerDest,
			Units:       d.MakerAmount,
			CLTVDelta:   d.MakerCLTV,
		})
		if err != nil && !errors.Is(err, swapclient.ErrUnknownPayment) {
			e.failDeal(d, classifyPaymentErr(err), err)
			return
		}
		// the hashlock-transfer backend returns ErrUnknownPayment
		// immediately since it settles asynchronously once the
		// counterparty's invoice is settled; the lnd backend blocks
		// until settlement and returns nil either way. The maker now
		// waits to see its own incoming leg before it can settle it.
		e.watchIncomingPayment(d)
	}()
}

// watchIncomingPayment polls the invoice this node reserved for
// itself until a payment against it appears, then settles it with the
// preimage it already has (maker) or, lacking that, pays its own
// outgoing leg to learn the preimage from the result (taker).
func (e *Engine) watchIncomingPayment(d *Deal) {
	var myCurrency string
	if d.Role == RoleMaker {
		myCurrency = d.TakerCurrency
	} else {
		myCurrency = d.MakerCurrency
	}
	client, ok := e.clients.Get(myCurrency)
	if !ok {
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("no swap client for %s", myCurrency))
		return
	}

	deadline := time.Now().Add(maxSwapAge)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			e.failDeal(d, FailureTimeout, fmt.Errorf("timed out waiting for incoming payment"))
			return
		}

		res, err := client.LookupPayment(e.ctx, d.RHash)
		if err != nil {
			continue
		}
		if res.State == swapclient.PaymentFailed {
			e.failDeal(d, FailurePaymentRejected, fmt.Errorf("incoming payment failed"))
			return
		}
		if res.State != swapclient.PaymentPending && res.State != swapclient.PaymentSucceeded {
			continue
		}

		if d.Role == RoleMaker {
			// the preimage was ours from the start, so we settle the
			// instant we see the htlc land.
			preimage, err := hex.DecodeString(d.Preimage)
			if err != nil {
				e.failDeal(d, FailurePaymentRejected, err)
				return
			}
			if err := client.SettleInvoice(e.ctx, d.RHash, preimage); err != nil {
				e.failDeal(d, classifyPaymentErr(err), err)
				return
			}
			d.Phase = PhasePaymentReceived
			e.persist(d)
			e.completeDeal(d)
			return
		}

		// taker: the preimage only reaches us as the return value of
		// our own outgoing SendPayment, once the maker settles that
		// leg with the preimage it already knows, so pay now.
		e.takerPayMaker(d, client)
		return
	}
}

// takerPayMaker sends the taker's leg to the maker's advertised
// destination and, once the maker settles its own matching invoice
// with the preimage it already knows, recovers that preimage from the
// SendPayment call's return value to settle the taker's own
// outstanding invoice.
func (e *Engine) takerPayMaker(d *Deal, incomingClient swapclient.SwapClient) {
	outgoingClient, ok := e.clients.Get(d.TakerCurrency)
	if !ok {
		e.failDeal(d, FailurePaymentRejected, fmt.Errorf("no swap client for %s", d.TakerCurrency))
		return
	}

	d.Phase = PhaseSendingPayment
	e.persist(d)

	ctx, cancel := context.WithTimeout(e.ctx, maxSwapAge)
	defer cancel()

	preimage, err := outgoingClient.SendPayment(ctx, swapclient.SendPaymentRequest{
		RHash:       d.RHash,
		Destination: d.MakerDest,
		Units:       d.TakerAmount,
		CLTVDelta:   d.TakerCLTV,
	})
	if err != nil {
		e.failDeal(d, classifyPaymentErr(err), err)
		return
	}

	d.Preimage = hex.EncodeToString(preimage)
	d.Phase = PhasePaymentReceived
	e.persist(d)

	if err := incomingClient.SettleInvoice(ctx, d.RHash, preimage); err != nil {
		e.failDeal(d, classifyPaymentErr(err), err)
		return
	}

	d.Phase = PhaseSwapCompleted
	e.completeDeal(d)

	if pr := e.peerFor(d); pr != nil {
		pkt, err := p2p.NewPacket(p2p.PacketSwapComplete, p2p.SwapCompletePayload{RHash: d.RHash, RPreimage: d.Preimage})
		if err == nil {
			pr.Send(pkt)
		}
	}
}

func (e *Engine) onSwapFailed(f *p2p.SwapFailedPayload) {
	d := e.get(f.RHash)
	if d == nil {
		return
	}
	e.failDeal(d, FailureReason(f.Reason), fmt.Errorf("counterparty reported: %s", f.Reason))
}

func (e *Engine) onSwapComplete(c *p2p.SwapCompletePayload) {
	d := e.get(c.RHash)
	if d == nil || d.Role != RoleMaker {
		return
	}
	d.Preimage = c.RPreimage
	d.Phase = PhaseSwapCompleted
	e.completeDeal(d)
}

func (e *Engine) completeDeal(d *Deal) {
	e.mu.Lock()
	d.State = StateCompleted
	d.CompletedAt = time.Now()
	delete(e.deals, d.RHash)
	e.mu.Unlock()

	// the matched quantity already left Quantity when the book matched
	// it, so completion only releases the hold that was reserving it,
	// never touches Quantity itself.
	if d.matchedOrder != nil && e.book != nil {
		e.book.AdjustHold(d.PairID, d.matchedOrder, -d.Quantity)
	}

	e.persist(d)
	e.log.Info("Swap completed", "rHash", d.RHash, "role", d.Role, "pair", d.PairID)
}

func (e *Engine) failDeal(d *Deal, reason FailureReason, cause error) {
	e.mu.Lock()
	d.State = StateError
	d.ErrorReason = reason
	d.FailureCount++
	if d.RHash != "" {
		delete(e.deals, d.RHash)
	}
	e.mu.Unlock()

	if d.matchedOrder != nil && e.book != nil {
		e.book.AdjustHold(d.PairID, d.matchedOrder, -d.Quantity)
		// a reason other than FailureUnknownPaymentError means we know
		// for certain the matched quantity never settled, so it is safe
		// to put back on the book; an unknown outcome must wait for
		// recovery to resolve it instead of risking a double-spend of
		// liquidity that may yet complete.
		if reason != FailureUnknownPaymentError {
			e.book.Restore(d.PairID, d.matchedOrder, d.Quantity)
		}
	}

	e.persist(d)
	e.log.Warn("Swap failed", "rHash", d.RHash, "role", d.Role, "reason", reason, "error", cause)

	if reason != FailureUnknownPaymentError {
		if pr := e.peerFor(d); pr != nil {
			e.sendFailed(pr, d.RHash, reason)
		}
	}
}

func (e *Engine) peerFor(d *Deal) *p2p.Peer {
	id, err := p2pPeer.Decode(d.PeerID)
	if err != nil {
		return nil
	}
	pr, _ := e.pool.Get(id)
	return pr
}

func (e *Engine) track(d *Deal) {
	e.mu.Lock()
	e.deals[d.RHash] = d
	e.mu.Unlock()
	e.persist(d)
}

func (e *Engine) get(rHash string) *Deal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deals[rHash]
}

// pendingKey identifies a taker-side deal before its rHash is known,
// by the pair and the remote order it matched against.
func pendingKey(pairID, orderID string) string { return pairID + "|" + orderID }

func (e *Engine) trackPendingByOrder(d *Deal) {
	e.mu.Lock()
	e.deals[pendingKey(d.PairID, d.OrderGlobalID)] = d
	e.mu.Unlock()
}

func (e *Engine) takePendingByOrder(pairID, orderID string) *Deal {
	key := pendingKey(pairID, orderID)
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.deals[key]
	if !ok {
		return nil
	}
	delete(e.deals, key)
	return d
}

func (e *Engine) persist(d *Deal) {
	d.UpdatedAt = time.Now()
	rec := &storage.DealRecord{
		RHash:         d.RHash,
		OrderLocalID:  d.OrderLocalID,
		PairID:        d.PairID,
		PeerID:        d.PeerID,
		Role:          string(d.Role),
		State:         string(d.State),
		Phase:         string(d.Phase),
		MakerCurrency: d.MakerCurrency,
		MakerAmount:   d.MakerAmount,
		TakerCurrency: d.TakerCurrency,
		TakerAmount:   d.TakerAmount,
		RPreimage:     d.Preimage,
		CLTVDelta:     d.MakerCLTV,
		ErrorReason:   string(d.ErrorReason),
		FailureCount:  d.FailureCount,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		CompletedAt:   d.CompletedAt,
	}
	if err := e.store.SaveDeal(rec); err != nil {
		e.log.Warn("Failed to persist swap deal", "rHash", d.RHash, "error", err)
	}
	if e.onUpdate != nil {
		e.onUpdate(d)
	}
}

func dealFromRecord(r *storage.DealRecord) *Deal {
	return &Deal{
		RHash:         r.RHash,
		Preimage:      r.RPreimage,
		Role:          Role(r.Role),
		Phase:         Phase(r.Phase),
		State:         DealState(r.State),
		PairID:        r.PairID,
		OrderLocalID:  r.OrderLocalID,
		PeerID:        r.PeerID,
		MakerCurrency: r.MakerCurrency,
		MakerAmount:   r.MakerAmount,
		TakerCurrency: r.TakerCurrency,
		TakerAmount:   r.TakerAmount,
		MakerCLTV:     r.CLTVDelta,
		ErrorReason:   FailureReason(r.ErrorReason),
		FailureCount:  r.FailureCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		CompletedAt:   r.CompletedAt,
	}
}

func classifyPaymentErr(err error) FailureReason {
	if errors.Is(err, swapclient.ErrUnknownPayment) {
		return FailureUnknownPaymentError
	}
	return FailureFinalPaymentError
}

func newHashPair() (rHash string, preimage string, err error) {
	p := make([]byte, 32)
	if _, err := rand.Read(p); err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(p)
	return hex.EncodeToString(sum[:]), hex.EncodeToString(p), nil
}
