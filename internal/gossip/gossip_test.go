package gossip

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/xud/internal/currency"
	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/p2p"
	"github.com/klingon-exchange/xud/internal/storage"
	"github.com/klingon-exchange/xud/internal/swapmgr"
	"github.com/klingon-exchange/xud/internal/swaps"
)

// node bundles one side of a gossip test: a real loopback libp2p pool,
// its own order book/registry, a swap engine (never actually settling
// in these tests, since no opposing order ever crosses a node
// boundary), and the Dispatcher wiring them together.
type node struct {
	pool   *p2p.Pool
	book   *orderbook.OrderBook
	reg    *currency.Registry
	engine *swaps.Engine
	dsp    *Dispatcher
	uri    string
}

func newTestNode(t *testing.T, pairID string) *node {
	t.Helper()

	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	tmpDir, err := os.MkdirTemp("", "xud-gossip-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })
	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	nodes := p2p.NewNodeStore(store)
	pool := p2p.NewPool(h, nodes, p2p.PoolConfig{
		Identity: p2p.Identity{NodePubKey: h.ID().String(), NetworkID: "testnet", Addresses: []string{h.Addrs()[0].String()}},
		Pairs:    []string{pairID},
	})
	t.Cleanup(pool.Shutdown)

	reg := currency.NewRegistry()
	parts := strings.SplitN(pairID, "/", 2)
	require.NoError(t, reg.AddCurrency(&currency.Currency{Symbol: parts[0], Decimals: 8, SwapKind: currency.SwapClientHashlockTransfer}))
	require.NoError(t, reg.AddCurrency(&currency.Currency{Symbol: parts[1], Decimals: 8, SwapKind: currency.SwapClientHashlockTransfer}))
	require.NoError(t, reg.AddPair(&currency.Pair{BaseCurrency: parts[0], QuoteCurrency: parts[1], SwapEnabled: true}))

	book := orderbook.New(reg)

	clients := swapmgr.New()
	require.NoError(t, clients.Init(reg))

	engine := swaps.New(pool, clients, store, reg, book)
	t.Cleanup(engine.Close)

	dsp := New(pool, book, engine)

	return &node{
		pool:   pool,
		book:   book,
		reg:    reg,
		engine: engine,
		dsp:    dsp,
		uri:    fmt.Sprintf("%s@127.0.0.1:%s", h.ID().String(), tcpPort(h.Addrs()[0].String())),
	}
}

func tcpPort(addr string) string {
	parts := strings.Split(addr, "/")
	for i, p := range parts {
		if p == "tcp" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func TestDispatcherBroadcastsOwnOrderToConnectedPeer(t *testing.T) {
	const pairID = "BTC/USDT"
	a := newTestNode(t, pairID)
	b := newTestNode(t, pairID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.pool.AddOutbound(ctx, b.uri, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(b.pool.Peers()) == 1 }, 2*time.Second, 20*time.Millisecond)

	_, matches, err := a.book.PlaceOwnOrder(pairID, orderbook.Buy, decimal.NewFromInt(100), 5)
	require.NoError(t, err)
	require.Empty(t, matches)

	require.Eventually(t, func() bool {
		depth, err := b.book.Depth(pairID, orderbook.Buy)
		return err == nil && len(depth) == 1
	}, 2*time.Second, 20*time.Millisecond)

	depth, err := b.book.Depth(pairID, orderbook.Buy)
	require.NoError(t, err)
	require.Equal(t, int64(5), depth[0].Quantity)
	require.False(t, depth[0].IsOwn())
}

func TestDispatcherSeedsNewPeerWithRestingBook(t *testing.T) {
	const pairID = "BTC/USDT"
	a := newTestNode(t, pairID)
	b := newTestNode(t, pairID)

	_, matches, err := a.book.PlaceOwnOrder(pairID, orderbook.Sell, decimal.NewFromInt(200), 3)
	require.NoError(t, err)
	require.Empty(t, matches)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = b.pool.AddOutbound(ctx, a.uri, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		depth, err := b.book.Depth(pairID, orderbook.Sell)
		return err == nil && len(depth) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDispatcherRemovesOrdersOnPeerClose(t *testing.T) {
	const pairID = "BTC/USDT"
	a := newTestNode(t, pairID)
	b := newTestNode(t, pairID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peerFromA, err := a.pool.AddOutbound(ctx, b.uri, false)
	require.NoError(t, err)

	_, matches, err := a.book.PlaceOwnOrder(pairID, orderbook.Buy, decimal.NewFromInt(50), 1)
	require.NoError(t, err)
	require.Empty(t, matches)

	require.Eventually(t, func() bool {
		depth, err := b.book.Depth(pairID, orderbook.Buy)
		return err == nil && len(depth) == 1
	}, 2*time.Second, 20*time.Millisecond)

	peerFromA.Close(p2p.ReasonShutdown, "")

	require.Eventually(t, func() bool {
		depth, err := b.book.Depth(pairID, orderbook.Buy)
		return err == nil && len(depth) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
