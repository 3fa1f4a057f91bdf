package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klingon-exchange/xud/internal/currency"
)

func (s *Server) listCurrencies(ctx context.Context, params json.RawMessage) (interface{}, error) {
	cs := s.reg.Currencies()
	out := make([]*CurrencyInfo, 0, len(cs))
	for _, c := range cs {
		out = append(out, &CurrencyInfo{
			Symbol:       c.Symbol,
			Decimals:     c.Decimals,
			SwapClient:   string(c.SwapKind),
			TokenAddress: c.TokenAddress,
		})
	}
	return out, nil
}

type addCurrencyParams struct {
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
	SwapClient   string `json:"swapClient"`
	TokenAddress string `json:"tokenAddress,omitempty"`
}

func (s *Server) addCurrency(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p addCurrencyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	c := &currency.Currency{
		Symbol:       p.Symbol,
		Decimals:     p.Decimals,
		SwapKind:     currency.SwapClientKind(p.SwapClient),
		TokenAddress: p.TokenAddress,
	}
	if err := s.reg.AddCurrency(c); err != nil {
		return nil, err
	}
	if err := s.store.SaveCurrency(c.Symbol, c.Decimals, string(c.SwapKind), c.TokenAddress); err != nil {
		return nil, fmt.Errorf("failed to persist currency: %w", err)
	}
	return map[string]bool{"added": true}, nil
}

type removeCurrencyParams struct {
	Symbol string `json:"symbol"`
}

func (s *Server) removeCurrency(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p removeCurrencyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.reg.RemoveCurrency(p.Symbol); err != nil {
		return nil, err
	}
	if err := s.store.DeleteCurrency(p.Symbol); err != nil {
		return nil, fmt.Errorf("failed to delete currency: %w", err)
	}
	return map[string]bool{"removed": true}, nil
}

func (s *Server) listPairs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	ps := s.reg.Pairs()
	out := make([]*PairInfo, 0, len(ps))
	for _, p := range ps {
		out = append(out, &PairInfo{
			PairID:        p.ID(),
			BaseCurrency:  p.BaseCurrency,
			QuoteCurrency: p.QuoteCurrency,
			SwapEnabled:   p.SwapEnabled,
		})
	}
	return out, nil
}

type addPairParams struct {
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	SwapEnabled   bool   `json:"swapEnabled"`
}

func (s *Server) addPair(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p addPairParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	pair := &currency.Pair{BaseCurrency: p.BaseCurrency, QuoteCurrency: p.QuoteCurrency, SwapEnabled: p.SwapEnabled}
	if err := s.reg.AddPair(pair); err != nil {
		return nil, err
	}
	if err := s.store.SavePair(pair.ID(), pair.BaseCurrency, pair.QuoteCurrency, pair.SwapEnabled); err != nil {
		return nil, fmt.Errorf("failed to persist pair: %w", err)
	}
	return &PairInfo{PairID: pair.ID(), BaseCurrency: pair.BaseCurrency, QuoteCurrency: pair.QuoteCurrency, SwapEnabled: pair.SwapEnabled}, nil
}

type removePairParams struct {
	PairID string `json:"pairId"`
}

func (s *Server) removePair(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p removePairParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.reg.RemovePair(p.PairID); err != nil {
		return nil, err
	}
	if err := s.store.DeletePair(p.PairID); err != nil {
		return nil, fmt.Errorf("failed to delete pair: %w", err)
	}
	return map[string]bool{"removed": true}, nil
}
