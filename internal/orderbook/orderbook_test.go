package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/xud/internal/currency"
)

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	reg := currency.NewRegistry()
	require.NoError(t, reg.AddCurrency(&currency.Currency{Symbol: "BTC", Decimals: 8}))
	require.NoError(t, reg.AddCurrency(&currency.Currency{Symbol: "USDT", Decimals: 6}))
	require.NoError(t, reg.AddPair(&currency.Pair{BaseCurrency: "BTC", QuoteCurrency: "USDT", SwapEnabled: true}))
	return New(reg)
}

func price(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// S1: a resting ask is fully crossed by an equal-size incoming bid.
func TestFullCross(t *testing.T) {
	ob := newTestBook(t)

	maker, _, err := ob.PlaceOwnOrder("BTC/USDT", Sell, price("100"), 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), maker.Quantity)

	taker, matches, err := ob.PlaceOwnOrder("BTC/USDT", Buy, price("100"), 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, int64(10), matches[0].Quantity)
	require.Equal(t, int64(0), taker.Quantity)
	require.Equal(t, int64(0), maker.Quantity)
}

// S2: a larger incoming order splits across multiple resting makers.
func TestTakerSplitsAcrossMakers(t *testing.T) {
	ob := newTestBook(t)

	_, _, err := ob.PlaceOwnOrder("BTC/USDT", Sell, price("100"), 5)
	require.NoError(t, err)
	_, _, err = ob.PlaceOwnOrder("BTC/USDT", Sell, price("100"), 5)
	require.NoError(t, err)

	_, matches, err := ob.PlaceOwnOrder("BTC/USDT", Buy, price("100"), 8)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, int64(5), matches[0].Quantity)
	require.Equal(t, int64(3), matches[1].Quantity)
}

// S3: a larger resting maker partially fills a smaller incoming taker and
// remains on the book for the remainder.
func TestMakerSplitsAgainstTaker(t *testing.T) {
	ob := newTestBook(t)

	maker, _, err := ob.PlaceOwnOrder("BTC/USDT", Sell, price("100"), 10)
	require.NoError(t, err)

	_, matches, err := ob.PlaceOwnOrder("BTC/USDT", Buy, price("100"), 4)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, int64(4), matches[0].Quantity)
	require.Equal(t, int64(6), maker.Quantity)

	asks, err := ob.Depth("BTC/USDT", Sell)
	require.NoError(t, err)
	require.Len(t, asks, 1)
	require.Equal(t, int64(6), asks[0].Quantity)
}

// S4: at equal price, earlier orders fill before later ones (FIFO).
func TestFIFOAtEqualPrice(t *testing.T) {
	ob := newTestBook(t)

	first, _, err := ob.PlaceOwnOrder("BTC/USDT", Sell, price("100"), 5)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, _, err := ob.PlaceOwnOrder("BTC/USDT", Sell, price("100"), 5)
	require.NoError(t, err)

	_, matches, err := ob.PlaceOwnOrder("BTC/USDT", Buy, price("100"), 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, first.LocalID, matches[0].Maker.LocalID)
	require.Equal(t, int64(5), second.Quantity)
}

func TestRemoteOrderDuplicateRejected(t *testing.T) {
	ob := newTestBook(t)

	_, _, err := ob.AddRemoteOrder("peerA", "order-1", "BTC/USDT", Sell, price("100"), 5, time.Now())
	require.NoError(t, err)

	_, _, err = ob.AddRemoteOrder("peerA", "order-1", "BTC/USDT", Sell, price("100"), 5, time.Now())
	require.ErrorIs(t, err, ErrDuplicateLocalID)
}

func TestRemoveOrdersForPeerPurgesPeerOrders(t *testing.T) {
	ob := newTestBook(t)

	_, _, err := ob.AddRemoteOrder("peerA", "order-1", "BTC/USDT", Sell, price("100"), 5, time.Now())
	require.NoError(t, err)

	ob.RemoveOrdersForPeer("peerA")

	asks, err := ob.Depth("BTC/USDT", Sell)
	require.NoError(t, err)
	require.Empty(t, asks)
}

func TestUnknownPairRejected(t *testing.T) {
	ob := newTestBook(t)
	_, _, err := ob.PlaceOwnOrder("ETH/USDT", Buy, price("100"), 1)
	require.ErrorIs(t, err, ErrUnknownPair)
}
