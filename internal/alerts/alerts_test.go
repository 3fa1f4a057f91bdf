package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/xud/internal/swapclient"
)

func TestStreamTranslatesKnownEventTypes(t *testing.T) {
	s := New()
	events := make(chan swapclient.Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, events)

	events <- swapclient.Event{Type: swapclient.EventLowTradingBalance, Currency: "BTC"}

	select {
	case a := <-s.Alerts():
		require.Equal(t, SeverityWarning, a.Severity)
		require.Equal(t, "BTC", a.Currency)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
	}
}

func TestStreamDropsUnknownEventTypes(t *testing.T) {
	s := New()
	events := make(chan swapclient.Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, events)

	events <- swapclient.Event{Type: swapclient.EventType("somethingElse"), Currency: "BTC"}

	select {
	case a := <-s.Alerts():
		t.Fatalf("expected no alert, got %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamRateLimitsRepeatedEvents(t *testing.T) {
	s := New()
	events := make(chan swapclient.Event, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, events)

	for i := 0; i < 5; i++ {
		events <- swapclient.Event{Type: swapclient.EventLowTradingBalance, Currency: "BTC"}
	}

	received := 0
	timeout := time.After(300 * time.Millisecond)
loop:
	for {
		select {
		case <-s.Alerts():
			received++
		case <-timeout:
			break loop
		}
	}
	require.Equal(t, 1, received, "only the first of a burst of identical events should pass the limiter")
}

func TestStreamClosesAlertsWhenSourceCloses(t *testing.T) {
	s := New()
	events := make(chan swapclient.Event)
	close(events)

	s.Run(context.Background(), events)

	_, ok := <-s.Alerts()
	require.False(t, ok)
}
