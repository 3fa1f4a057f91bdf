package p2p

// DisconnectReason identifies why a peer connection closed, sent in a
// Disconnecting packet and recorded against the peer's terminal state.
type DisconnectReason string

const (
	ReasonShutdown                   DisconnectReason = "Shutdown"
	ReasonNotAcceptingConnections    DisconnectReason = "NotAcceptingConnections"
	ReasonIncompatibleProtocolVersion DisconnectReason = "IncompatibleProtocolVersion"
	ReasonUnexpectedIdentity         DisconnectReason = "UnexpectedIdentity"
	ReasonAlreadyConnected           DisconnectReason = "AlreadyConnected"
	ReasonBanned                     DisconnectReason = "Banned"
	ReasonConnectionTimeout          DisconnectReason = "ConnectionTimeout"
	ReasonResponseStalling           DisconnectReason = "ResponseStalling"
	ReasonMalformedPacket            DisconnectReason = "MalformedPacket"
	ReasonUnknownError               DisconnectReason = "UnknownError"
)

// reconnectWorthy reports whether the pool should retry an outbound
// peer that closed for this reason.
func (r DisconnectReason) reconnectWorthy() bool {
	switch r {
	case ReasonShutdown, ReasonAlreadyConnected, ReasonConnectionTimeout:
		return true
	default:
		return false
	}
}

// HelloPayload is the body of the Hello packet exchanged on every new
// connection before any gossip begins.
type HelloPayload struct {
	NodePubKey string   `json:"nodePubKey"`
	Version    string   `json:"version"`
	NetworkID  string   `json:"networkId"`
	Addresses  []string `json:"addresses"`
	Pairs      []string `json:"pairs"`
}

type DisconnectingPayload struct {
	Reason DisconnectReason `json:"reason"`
	Detail string            `json:"detail,omitempty"`
}

type PingPayload struct {
	SentAt int64 `json:"sentAt"`
}

type PongPayload struct {
	SentAt int64 `json:"sentAt"`
}

type GetOrdersPayload struct {
	PairIDs []string `json:"pairIds"`
}

// OrderWire is an order as it crosses the wire: price is carried as a
// decimal string to avoid float round-tripping, and nil means market.
type OrderWire struct {
	ID              string  `json:"id"`
	PairID          string  `json:"pairId"`
	Side            string  `json:"side"`
	Quantity        int64   `json:"quantity"`
	Price           *string `json:"price"`
	CreatedAt       int64   `json:"createdAt"`
	DestinationHint string  `json:"destinationHint,omitempty"`
}

type OrdersPayload struct {
	Orders []OrderWire `json:"orders"`
}

type OrderInvalidationPayload struct {
	OrderID  string `json:"orderId"`
	PairID   string `json:"pairId"`
	Quantity *int64 `json:"quantity,omitempty"`
}

type SwapRequestPayload struct {
	RHash          string `json:"rHash"`
	Quantity       int64  `json:"quantity"`
	PairID         string `json:"pairId"`
	OrderID        string `json:"orderId"`
	TakerCLTVDelta int32  `json:"takerCltvDelta"`
	TakerPubKey    string `json:"takerPubKey"`
	// MakerDestination is the maker's own invoice/address for the
	// currency it expects to receive, so the taker's outgoing leg in
	// the SendingPayment phase has somewhere to pay without a
	// separate round trip.
	MakerDestination string `json:"makerDestination"`
}

type SwapAcceptedPayload struct {
	RHash          string `json:"rHash"`
	AcceptedQty    int64  `json:"acceptedQty"`
	MakerCLTVDelta int32  `json:"makerCltvDelta"`
	Destination    string `json:"destination"`
}

type SwapFailedPayload struct {
	RHash  string `json:"rHash"`
	Reason string `json:"reason"`
}

type SwapCompletePayload struct {
	RHash     string `json:"rHash"`
	RPreimage string `json:"rPreimage"`
}

type NodeStateUpdatePayload struct {
	Pairs     []string `json:"pairs"`
	Addresses []string `json:"addresses"`
}
