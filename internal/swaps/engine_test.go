package swaps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/xud/internal/currency"
	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/storage"
	"github.com/klingon-exchange/xud/internal/swapclient"
	"github.com/klingon-exchange/xud/internal/swapmgr"
)

func testRegistry(t *testing.T) *currency.Registry {
	t.Helper()
	reg := currency.NewRegistry()
	require.NoError(t, reg.AddCurrency(&currency.Currency{Symbol: "BTC", Decimals: 8}))
	require.NoError(t, reg.AddCurrency(&currency.Currency{Symbol: "USDT", Decimals: 6}))
	require.NoError(t, reg.AddPair(&currency.Pair{BaseCurrency: "BTC", QuoteCurrency: "USDT"}))
	return reg
}

func TestLegAmountsSellMakerSendsBase(t *testing.T) {
	reg := testRegistry(t)
	makerCurrency, makerAmount, takerCurrency, takerAmount, err := legAmounts("BTC/USDT", reg, orderbook.Sell, decimal.NewFromInt(20000), 100000000)
	require.NoError(t, err)
	require.Equal(t, "BTC", makerCurrency)
	require.Equal(t, int64(100000000), makerAmount)
	require.Equal(t, "USDT", takerCurrency)
	require.Equal(t, int64(20000*100000000), takerAmount)
}

func TestLegAmountsBuyMakerSendsQuote(t *testing.T) {
	reg := testRegistry(t)
	makerCurrency, makerAmount, takerCurrency, takerAmount, err := legAmounts("BTC/USDT", reg, orderbook.Buy, decimal.NewFromInt(20000), 100000000)
	require.NoError(t, err)
	require.Equal(t, "USDT", makerCurrency)
	require.Equal(t, int64(20000*100000000), makerAmount)
	require.Equal(t, "BTC", takerCurrency)
	require.Equal(t, int64(100000000), takerAmount)
}

func TestLegAmountsUnknownPair(t *testing.T) {
	reg := testRegistry(t)
	_, _, _, _, err := legAmounts("ETH/USDT", reg, orderbook.Sell, decimal.NewFromInt(1), 1)
	require.Error(t, err)
}

func TestNewHashPairMatchesSHA256(t *testing.T) {
	rHash, preimage, err := newHashPair()
	require.NoError(t, err)

	raw, err := hex.DecodeString(preimage)
	require.NoError(t, err)
	require.Len(t, raw, 32)

	sum := sha256.Sum256(raw)
	require.Equal(t, rHash, hex.EncodeToString(sum[:]))
}

// lookupOnlyClient is a minimal swapclient.SwapClient stub whose only
// behavior a test ever drives is LookupPayment; every other method is
// unreachable from Recover and just satisfies the interface.
type lookupOnlyClient struct {
	currency string
	result   swapclient.PaymentResult
	err      error
}

func (c *lookupOnlyClient) Currency() string           { return c.currency }
func (c *lookupOnlyClient) Status() swapclient.Status  { return swapclient.StatusConnectionVerified }
func (c *lookupOnlyClient) SendPayment(context.Context, swapclient.SendPaymentRequest) ([]byte, error) {
	return nil, nil
}
func (c *lookupOnlyClient) AddInvoice(context.Context, string, int64, int32) (string, error) {
	return "", nil
}
func (c *lookupOnlyClient) LookupPayment(context.Context, string) (swapclient.PaymentResult, error) {
	return c.result, c.err
}
func (c *lookupOnlyClient) SettleInvoice(context.Context, string, []byte) error { return nil }
func (c *lookupOnlyClient) RemoveInvoice(context.Context, string) error         { return nil }
func (c *lookupOnlyClient) ChannelBalance(context.Context, string) (swapclient.ChannelBalance, error) {
	return swapclient.ChannelBalance{}, nil
}
func (c *lookupOnlyClient) OpenChannel(context.Context, string, int64) error       { return nil }
func (c *lookupOnlyClient) CloseChannel(context.Context, string, bool) error       { return nil }
func (c *lookupOnlyClient) DepositToChannel(context.Context, string, int64) error  { return nil }
func (c *lookupOnlyClient) Events() <-chan swapclient.Event {
	ch := make(chan swapclient.Event)
	close(ch)
	return ch
}
func (c *lookupOnlyClient) Close() error { return nil }

func testEngine(t *testing.T, makerClient, takerClient *lookupOnlyClient) *Engine {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "xud-swaps-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })
	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clients := swapmgr.New()
	if makerClient != nil {
		clients.Register(makerClient.currency, makerClient)
	}
	if takerClient != nil {
		clients.Register(takerClient.currency, takerClient)
	}

	reg := testRegistry(t)
	e := New(nil, clients, store, reg, nil)
	t.Cleanup(e.Close)

	rec := &storage.DealRecord{
		RHash:         "deadbeef",
		PairID:        "BTC/USDT",
		Role:          string(RoleMaker),
		Phase:         string(PhaseSwapRequested),
		State:         string(StateActive),
		MakerCurrency: "BTC",
		TakerCurrency: "USDT",
	}
	require.NoError(t, store.SaveDeal(rec))

	return e
}

func TestRecoverUsesFinalLookupPaymentError(t *testing.T) {
	e := testEngine(t, &lookupOnlyClient{currency: "BTC", err: swapclient.ErrFinalPayment}, &lookupOnlyClient{currency: "USDT"})

	recovered, err := e.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, StateRecovered, recovered[0].State)
	require.Equal(t, FailureFinalPaymentError, recovered[0].ErrorReason)
}

func TestRecoverUsesFailedPaymentState(t *testing.T) {
	e := testEngine(t, &lookupOnlyClient{currency: "BTC", result: swapclient.PaymentResult{State: swapclient.PaymentFailed}}, &lookupOnlyClient{currency: "USDT"})

	recovered, err := e.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, FailureFinalPaymentError, recovered[0].ErrorReason)
}

func TestRecoverFallsBackToUnknownWhenNeitherLegIsConclusive(t *testing.T) {
	e := testEngine(t,
		&lookupOnlyClient{currency: "BTC", err: swapclient.ErrUnknownPayment},
		&lookupOnlyClient{currency: "USDT", result: swapclient.PaymentResult{State: swapclient.PaymentPending}},
	)

	recovered, err := e.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, FailureUnknownPaymentError, recovered[0].ErrorReason)
}

func TestPendingKeyRoundTrip(t *testing.T) {
	e := &Engine{deals: make(map[string]*Deal)}
	d := &Deal{PairID: "BTC/USDT", OrderGlobalID: "peer1:order1"}
	e.trackPendingByOrder(d)

	got := e.takePendingByOrder("BTC/USDT", "peer1:order1")
	require.Same(t, d, got)

	require.Nil(t, e.takePendingByOrder("BTC/USDT", "peer1:order1"))
}
