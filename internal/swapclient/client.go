// Package swapclient defines the uniform contract the swap engine
// drives every off-chain payment-channel backend through, and the
// concrete backends implementing it.
package swapclient

import (
	"context"
	"errors"
)

// Status is a backend's connection/initialization state.
type Status int

const (
	StatusDisabled Status = iota
	StatusNotInitialized
	StatusInitialized
	StatusConnectionVerified
	StatusDisconnected
	StatusOutOfSync
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "Disabled"
	case StatusNotInitialized:
		return "NotInitialized"
	case StatusInitialized:
		return "Initialized"
	case StatusConnectionVerified:
		return "ConnectionVerified"
	case StatusDisconnected:
		return "Disconnected"
	case StatusOutOfSync:
		return "OutOfSync"
	default:
		return "Unknown"
	}
}

// PaymentState is the outcome of a lookupPayment call.
type PaymentState int

const (
	PaymentPending PaymentState = iota
	PaymentSucceeded
	PaymentFailed
)

// PaymentResult is the result of a lookupPayment call; Preimage is
// only set when State is PaymentSucceeded.
type PaymentResult struct {
	State    PaymentState
	Preimage []byte
}

// ErrFinalPayment means the payment definitely was not, and never
// will be, sent — holds can be released immediately.
var ErrFinalPayment = errors.New("final payment error")

// ErrUnknownPayment means the outcome is indeterminate (e.g. the
// backend crashed mid-send) — the caller must enter recovery instead
// of releasing holds.
var ErrUnknownPayment = errors.New("unknown payment error")

// ChannelBalance summarizes a currency's channel capacity.
type ChannelBalance struct {
	Local       int64
	Remote      int64
	Inactive    int64
	PendingOpen int64
}

// EventType identifies an asynchronous backend event.
type EventType string

const (
	EventLowTradingBalance  EventType = "lowTradingBalance"
	EventConnectionVerified EventType = "connectionVerified"
	EventHTLCAccepted       EventType = "htlcAccepted"
)

// Event is a backend-originated notification, aggregated by
// SwapClientManager into a single stream consumed by alerting.
type Event struct {
	Type     EventType
	Currency string
	Data     interface{}
}

// SendPaymentRequest carries everything a backend needs to attempt an
// outgoing payment locked to a hash.
type SendPaymentRequest struct {
	RHash       string
	Destination string
	Units       int64
	CLTVDelta   int32
}

// SwapClient is the contract Swaps drives every payment-channel
// backend through. Backends differ only in how sendPayment and
// invoice handling work internally; everything above this interface
// is backend-agnostic.
type SwapClient interface {
	Currency() string
	Status() Status

	// SendPayment attempts to pay req.Destination, locked to
	// req.RHash. Returns the preimage on success. A non-nil error is
	// always either ErrFinalPayment or ErrUnknownPayment (wrapped with
	// backend detail); callers branch on errors.Is.
	SendPayment(ctx context.Context, req SendPaymentRequest) (preimage []byte, err error)

	// AddInvoice reserves an incoming payment locked to rHash for
	// units, returning a destination/invoice string a counterparty
	// can pay to. Hashlock-transfer backends that settle purely on
	// rHash without a routable invoice return "" and nil.
	AddInvoice(ctx context.Context, rHash string, units int64, cltvDelta int32) (destination string, err error)

	// LookupPayment reports the current state of a payment or
	// invoice identified by rHash.
	LookupPayment(ctx context.Context, rHash string) (PaymentResult, error)

	// SettleInvoice releases a held incoming payment once the
	// preimage is known.
	SettleInvoice(ctx context.Context, rHash string, preimage []byte) error

	// RemoveInvoice cancels a reserved incoming payment that was
	// never settled.
	RemoveInvoice(ctx context.Context, rHash string) error

	ChannelBalance(ctx context.Context, currency string) (ChannelBalance, error)
	OpenChannel(ctx context.Context, peerURI string, localAmt int64) error
	CloseChannel(ctx context.Context, channelID string, force bool) error
	DepositToChannel(ctx context.Context, channelID string, amt int64) error

	// Events returns the backend's event channel; SwapClientManager
	// fans all backends' channels into one stream.
	Events() <-chan Event

	Close() error
}
