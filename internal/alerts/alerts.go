// Package alerts turns the swap-client backends' raw events -- low
// trading balance, reconnections, htlc activity -- into a rate-limited
// stream of operator-facing notifications. A flapping backend can emit
// the same event hundreds of times a minute; without limiting, that
// noise would drown both the log and every subscribeAlerts client
// behind it.
package alerts

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/klingon-exchange/xud/internal/swapclient"
	"github.com/klingon-exchange/xud/pkg/logging"
)

// Severity classifies an Alert for a client deciding how loudly to
// surface it.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one rate-limited operator notification derived from a
// swapclient.Event.
type Alert struct {
	Severity  Severity  `json:"severity"`
	Currency  string    `json:"currency,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// perKeyRate and perKeyBurst bound how often the same (event type,
// currency) pair can surface an alert. One a minute is enough to
// notice a backend is stuck without paging on every retry.
const (
	perKeyRate  = time.Minute
	perKeyBurst = 1
)

// Stream consumes a swapmgr.Manager's aggregated backend event channel
// and republishes it as a rate-limited Alert feed over Alerts().
type Stream struct {
	out chan Alert
	log *logging.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New() *Stream {
	return &Stream{
		out:      make(chan Alert, 128),
		log:      logging.GetDefault().Component("alerts"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Alerts returns the rate-limited notification feed. Closed once Run
// returns.
func (s *Stream) Alerts() <-chan Alert {
	return s.out
}

// Run drains events until the channel closes or ctx is cancelled, then
// closes Alerts(). Intended to run in its own goroutine for the life
// of the daemon.
func (s *Stream) Run(ctx context.Context, events <-chan swapclient.Event) {
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Stream) handle(ev swapclient.Event) {
	a, ok := translate(ev)
	if !ok {
		return
	}
	if !s.allow(string(ev.Type) + "|" + ev.Currency) {
		return
	}
	select {
	case s.out <- a:
	default:
		s.log.Warn("Alert dropped, subscriber too slow", "type", ev.Type, "currency", ev.Currency)
	}
}

func (s *Stream) allow(key string) bool {
	s.mu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(perKeyRate), perKeyBurst)
		s.limiters[key] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

func translate(ev swapclient.Event) (Alert, bool) {
	switch ev.Type {
	case swapclient.EventLowTradingBalance:
		return Alert{Severity: SeverityWarning, Currency: ev.Currency, Message: "trading balance is low", Timestamp: time.Now()}, true
	case swapclient.EventConnectionVerified:
		return Alert{Severity: SeverityInfo, Currency: ev.Currency, Message: "swap client connection verified", Timestamp: time.Now()}, true
	case swapclient.EventHTLCAccepted:
		return Alert{Severity: SeverityInfo, Currency: ev.Currency, Message: "htlc accepted", Timestamp: time.Now()}, true
	default:
		return Alert{}, false
	}
}
