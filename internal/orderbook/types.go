// Package orderbook implements per-pair order matching and the local/
// global order ledger that sits above it.
package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is which side of a pair an order rests on.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Order is a single resting or incoming order for one trading pair.
// Quantity is denominated in the pair's base currency, in its smallest
// unit; Price is quote-per-base.
type Order struct {
	// LocalID is the id this node tracks the order under: the id it
	// assigned for its own orders, and the peer-scoped "peerID:peerLocalID"
	// form (the same value as GlobalID) for remote orders. GlobalID is
	// empty for own orders.
	LocalID  string
	GlobalID string

	PeerID   string // empty for our own orders
	PairID   string
	Side     Side
	Price    decimal.Decimal
	Quantity int64

	CreatedAt time.Time
	// sequence breaks ties when CreatedAt collides at millisecond
	// resolution under load.
	sequence uint64

	// Hold is the quantity currently reserved against an in-flight swap
	// and unavailable for further matching.
	Hold int64
}

// Available returns the quantity still eligible for matching.
func (o *Order) Available() int64 {
	return o.Quantity - o.Hold
}

// IsOwn reports whether this order was placed by the local node.
func (o *Order) IsOwn() bool {
	return o.PeerID == ""
}
