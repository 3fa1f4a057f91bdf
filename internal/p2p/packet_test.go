package p2p

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	price := "5.00"
	pkt, err := NewPacket(PacketOrder, OrderWire{
		ID:        "order-1",
		PairID:    "BTC/USDT",
		Quantity:  100,
		Price:     &price,
		CreatedAt: 123456,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writePacket(&buf, pkt))

	got, err := readPacket(bufio.NewReader(&buf))
	require.NoError(t, err)

	require.Equal(t, pkt.Type, got.Type)
	require.Equal(t, pkt.ID, got.ID)
	require.Equal(t, pkt.HasReqID, got.HasReqID)
	require.JSONEq(t, string(pkt.Body), string(got.Body))

	var order OrderWire
	require.NoError(t, got.Unmarshal(&order))
	require.Equal(t, "order-1", order.ID)
	require.Equal(t, "5.00", *order.Price)
}

func TestPacketReplyCarriesRequestID(t *testing.T) {
	req, err := NewPacket(PacketGetOrders, GetOrdersPayload{PairIDs: []string{"BTC/USDT"}})
	require.NoError(t, err)

	resp, err := req.Reply(PacketOrders, OrdersPayload{})
	require.NoError(t, err)

	require.True(t, resp.HasReqID)
	require.Equal(t, req.ID, resp.RequestID)
}

func TestReadPacketRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := readPacket(bufio.NewReader(&buf))
	require.Error(t, err)
}

func TestDisconnectReasonReconnectWorthy(t *testing.T) {
	require.True(t, ReasonShutdown.reconnectWorthy())
	require.True(t, ReasonAlreadyConnected.reconnectWorthy())
	require.True(t, ReasonConnectionTimeout.reconnectWorthy())
	require.False(t, ReasonBanned.reconnectWorthy())
	require.False(t, ReasonMalformedPacket.reconnectWorthy())
}
