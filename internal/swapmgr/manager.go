// Package swapmgr owns one swap-client backend per currency and
// dispatches by currency symbol.
package swapmgr

import (
	"fmt"
	"sync"

	"github.com/klingon-exchange/xud/internal/currency"
	"github.com/klingon-exchange/xud/internal/swapclient"
	"github.com/klingon-exchange/xud/pkg/logging"
)

// Manager owns every currency's SwapClient and aggregates their
// low-balance events into one stream for alerting.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]swapclient.SwapClient
	events  chan swapclient.Event
	log     *logging.Logger
}

func New() *Manager {
	return &Manager{
		clients: make(map[string]swapclient.SwapClient),
		events:  make(chan swapclient.Event, 128),
		log:     logging.GetDefault().Component("swapmgr"),
	}
}

// Init instantiates a backend for every currency the registry knows
// about, per its configured swap client kind. A currency whose backend
// cannot be built here is skipped, and the first such error is returned
// once the other currencies have been initialized.
func (m *Manager) Init(reg *currency.Registry) error {
	var firstErr error
	for _, c := range reg.Currencies() {
		client, err := m.buildClient(c)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to init swap client for %s: %w", c.Symbol, err)
			}
			continue
		}
		if client == nil {
			continue
		}
		m.Register(c.Symbol, client)
	}
	return firstErr
}

func (m *Manager) buildClient(c *currency.Currency) (swapclient.SwapClient, error) {
	switch c.SwapKind {
	case currency.SwapClientHashlockTransfer:
		return swapclient.NewHashlockTransferClient(c.Symbol), nil
	case currency.SwapClientLND:
		return nil, fmt.Errorf("lnd backend for %s requires an injected rpc client, wire via Register instead of Init", c.Symbol)
	default:
		m.log.Warn("Currency has no swap client configured", "currency", c.Symbol)
		return nil, nil
	}
}

// Register installs a pre-built client (used for backends, like
// lnd, that need an injected RPC client Init cannot construct on its
// own) and starts forwarding its events.
func (m *Manager) Register(symbol string, client swapclient.SwapClient) {
	m.mu.Lock()
	m.clients[symbol] = client
	m.mu.Unlock()

	go func() {
		for ev := range client.Events() {
			m.events <- ev
		}
	}()
}

// Get returns the currency's swap client, or false if none is
// configured -- callers treat currencies without a swap client as
// orderbook-only (quoting but not settling via this node).
func (m *Manager) Get(symbol string) (swapclient.SwapClient, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[symbol]
	return c, ok
}

// Events returns the aggregated event stream across every backend.
func (m *Manager) Events() <-chan swapclient.Event {
	return m.events
}

// Close shuts down every backend.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, c := range m.clients {
		if err := c.Close(); err != nil {
			m.log.Warn("Failed to close swap client", "currency", symbol, "error", err)
		}
	}
}
