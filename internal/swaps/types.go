// Package swaps drives a matched order pair through cross-chain
// settlement over the swap-client abstraction, maker and taker roles
// each running their half of the same state machine.
package swaps

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/xud/internal/orderbook"
)

type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

type Phase string

const (
	PhaseCreated        Phase = "created"
	PhaseSwapRequested  Phase = "swap_requested"
	PhaseSwapAccepted   Phase = "swap_accepted"
	PhaseSendingPayment Phase = "sending_payment"
	PhasePaymentReceived Phase = "payment_received"
	PhaseSwapCompleted  Phase = "swap_completed"
)

type DealState string

const (
	StateActive    DealState = "active"
	StateError     DealState = "error"
	StateRecovered DealState = "recovered"
	StateCompleted DealState = "completed"
)

// FailureReason is the taxonomy of ways a deal can fail, distinguishing
// payments that definitely never left (safe to release holds
// immediately) from payments whose outcome is unknown (must enter
// recovery).
type FailureReason string

const (
	FailurePaymentRejected   FailureReason = "PaymentRejected"
	FailureFinalPaymentError FailureReason = "FinalPaymentError"
	FailureUnknownPaymentError FailureReason = "UnknownPaymentError"
	FailureTimeout           FailureReason = "Timeout"
)

// terminalStates is passed to storage.ListNonTerminalDeals on
// startup recovery.
var terminalStates = []string{string(StateCompleted), string(StateError)}

// Deal is the in-memory, runtime form of a swap. RHash identifies it
// uniquely; Preimage is populated once learned.
type Deal struct {
	RHash     string
	Preimage  string
	Role      Role
	Phase     Phase
	State     DealState

	PairID        string
	OrderLocalID  string
	OrderGlobalID string
	PeerID        string

	// matchedOrder is the live order book pointer for this node's own
	// side of the match, carried across the deal's lifetime so its hold
	// can be released (or its remainder re-rested) without an id lookup
	// that would fail once the order is fully consumed and removed from
	// the book. Never persisted -- rebuilt relationships don't survive a
	// restart, which is why Recover deals with holds differently.
	matchedOrder *orderbook.Order

	Quantity int64
	Price    decimal.Decimal
	// MakerSide is the side of the resting (maker) order in this trade,
	// needed to derive which currency each leg sends regardless of
	// which role (maker or taker) this node is playing.
	MakerSide string

	MakerCurrency string
	MakerAmount   int64
	MakerDest     string
	MakerCLTV     int32

	TakerCurrency string
	TakerAmount   int64
	TakerDest     string
	TakerCLTV     int32

	ErrorReason  FailureReason
	FailureCount int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}
