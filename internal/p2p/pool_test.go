package p2p

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/xud/internal/storage"
)

func newTestNodeStore(t *testing.T) *NodeStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "xud-p2p-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewNodeStore(store)
}

// newTestPool spins up a pool bound to a loopback TCP host and
// returns it alongside its own node URI for other pools to dial.
func newTestPool(t *testing.T, pairs []string) (*Pool, string) {
	t.Helper()

	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	pool := NewPool(h, newTestNodeStore(t), PoolConfig{
		Identity: Identity{NodePubKey: h.ID().String(), NetworkID: "testnet", Addresses: []string{h.Addrs()[0].String()}},
		Pairs:    pairs,
	})
	t.Cleanup(pool.Shutdown)

	return pool, fmt.Sprintf("%s@127.0.0.1:%s", h.ID().String(), tcpPort(h.Addrs()[0].String()))
}

// tcpPort extracts the port from a "/ip4/.../tcp/<port>" multiaddr string.
func tcpPort(addr string) string {
	parts := strings.Split(addr, "/")
	for i, p := range parts {
		if p == "tcp" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func TestAddOutboundHandshakeEstablishesPeer(t *testing.T) {
	poolA, _ := newTestPool(t, []string{"BTC/USDT"})
	poolB, uriB := newTestPool(t, []string{"BTC/USDT"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer, err := poolA.AddOutbound(ctx, uriB, false)
	require.NoError(t, err)
	require.NotNil(t, peer)
	require.True(t, peer.SupportsPair("BTC/USDT"))

	require.Eventually(t, func() bool { return len(poolB.Peers()) == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestAddOutboundRejectsSelfConnect(t *testing.T) {
	pool, uri := newTestPool(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := pool.AddOutbound(ctx, uri, false)
	require.ErrorIs(t, err, ErrSelfConnect)
	require.Empty(t, pool.Peers())
}

func TestAddOutboundRejectsWrongPubKey(t *testing.T) {
	poolA, _ := newTestPool(t, nil)
	_, uriB := newTestPool(t, nil)

	at := strings.LastIndex(uriB, "@")
	badURI := "12D3KooWBogusPubKeyDoesNotExist1111111111" + uriB[at:]

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := poolA.AddOutbound(ctx, badURI, false)
	require.Error(t, err)
	require.Empty(t, poolA.Peers())
}

func TestAddOutboundRejectsDuplicateConnect(t *testing.T) {
	poolA, _ := newTestPool(t, nil)
	_, uriB := newTestPool(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := poolA.AddOutbound(ctx, uriB, false)
	require.NoError(t, err)

	_, err = poolA.AddOutbound(ctx, uriB, false)
	require.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestParseNodeURI(t *testing.T) {
	pubKey, addr, err := ParseNodeURI("03abc@192.168.1.1:8080")
	require.NoError(t, err)
	require.Equal(t, "03abc", pubKey)
	require.Equal(t, "/ip4/192.168.1.1/tcp/8080", addr.String())

	_, _, err = ParseNodeURI("no-at-sign:8080")
	require.ErrorIs(t, err, ErrInvalidNodeURI)

	_, _, err = ParseNodeURI("pubkey@missingport")
	require.ErrorIs(t, err, ErrInvalidNodeURI)
}
