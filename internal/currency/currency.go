// Package currency holds the registry of tradable currencies and pairs.
package currency

import (
	"errors"
	"fmt"
	"sync"
)

// SwapClientKind identifies which family of payment-channel backend
// settles a currency's leg of a swap.
type SwapClientKind string

const (
	// SwapClientLND is an HTLC-capable Lightning-style backend.
	SwapClientLND SwapClientKind = "lnd"
	// SwapClientHashlockTransfer is a state-channel backend that settles
	// directly on rHash without a separate invoice step.
	SwapClientHashlockTransfer SwapClientKind = "hashlock-transfer"
)

// Currency describes one tradable asset.
type Currency struct {
	Symbol    string         `json:"symbol"`
	Decimals  int            `json:"decimals"`
	SwapKind  SwapClientKind `json:"swapClient"`
	// TokenAddress is set for assets routed through a shared-chain
	// hashlock-transfer backend (e.g. an ERC-20).
	TokenAddress string `json:"tokenAddress,omitempty"`
}

// Pair is a base/quote trading pair, e.g. BTC/USDT.
type Pair struct {
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	SwapEnabled   bool   `json:"swapEnabled"`
}

// ID returns the canonical pair identifier used as a map key and on the
// wire, e.g. "BTC/USDT".
func (p Pair) ID() string {
	return fmt.Sprintf("%s/%s", p.BaseCurrency, p.QuoteCurrency)
}

var (
	ErrCurrencyExists   = errors.New("currency already exists")
	ErrCurrencyNotFound = errors.New("currency not found")
	ErrCurrencyInUse    = errors.New("currency is used by an existing pair")
	ErrPairExists       = errors.New("pair already exists")
	ErrPairNotFound     = errors.New("pair not found")
)

// Registry is the in-memory set of known currencies and pairs. It is
// guarded by a single mutex since add/remove are rare relative to lookups
// on the hot order-placement path, which only need Pair/Currency.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]*Currency
	pairs      map[string]*Pair
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		currencies: make(map[string]*Currency),
		pairs:      make(map[string]*Pair),
	}
}

func (r *Registry) AddCurrency(c *Currency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.currencies[c.Symbol]; ok {
		return ErrCurrencyExists
	}
	r.currencies[c.Symbol] = c
	return nil
}

func (r *Registry) RemoveCurrency(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.currencies[symbol]; !ok {
		return ErrCurrencyNotFound
	}
	for _, p := range r.pairs {
		if p.BaseCurrency == symbol || p.QuoteCurrency == symbol {
			return ErrCurrencyInUse
		}
	}
	delete(r.currencies, symbol)
	return nil
}

func (r *Registry) Currency(symbol string) (*Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.currencies[symbol]
	return c, ok
}

func (r *Registry) Currencies() []*Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Currency, 0, len(r.currencies))
	for _, c := range r.currencies {
		out = append(out, c)
	}
	return out
}

func (r *Registry) AddPair(p *Pair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, ok := r.pairs[id]; ok {
		return ErrPairExists
	}
	if _, ok := r.currencies[p.BaseCurrency]; !ok {
		return ErrCurrencyNotFound
	}
	if _, ok := r.currencies[p.QuoteCurrency]; !ok {
		return ErrCurrencyNotFound
	}
	r.pairs[id] = p
	return nil
}

func (r *Registry) RemovePair(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[id]; !ok {
		return ErrPairNotFound
	}
	delete(r.pairs, id)
	return nil
}

func (r *Registry) Pair(id string) (*Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[id]
	return p, ok
}

func (r *Registry) Pairs() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	return out
}
