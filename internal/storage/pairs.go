package storage

// SaveCurrency persists a currency definition.
func (s *Storage) SaveCurrency(symbol string, decimals int, swapClient, tokenAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO currencies (symbol, decimals, swap_client, token_address)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET decimals = excluded.decimals, swap_client = excluded.swap_client
	`, symbol, decimals, swapClient, nullableString(tokenAddress))
	return err
}

func (s *Storage) DeleteCurrency(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM currencies WHERE symbol = ?", symbol)
	return err
}

type CurrencyRow struct {
	Symbol       string
	Decimals     int
	SwapClient   string
	TokenAddress string
}

func (s *Storage) ListCurrencies() ([]*CurrencyRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT symbol, decimals, swap_client, token_address FROM currencies")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CurrencyRow
	for rows.Next() {
		var c CurrencyRow
		var token *string
		if err := rows.Scan(&c.Symbol, &c.Decimals, &c.SwapClient, &token); err != nil {
			return nil, err
		}
		if token != nil {
			c.TokenAddress = *token
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SavePair persists a trading pair definition.
func (s *Storage) SavePair(id, base, quote string, swapEnabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO pairs (id, base_currency, quote_currency, swap_enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET swap_enabled = excluded.swap_enabled
	`, id, base, quote, boolToInt(swapEnabled))
	return err
}

func (s *Storage) DeletePair(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM pairs WHERE id = ?", id)
	return err
}

type PairRow struct {
	ID            string
	BaseCurrency  string
	QuoteCurrency string
	SwapEnabled   bool
}

func (s *Storage) ListPairs() ([]*PairRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT id, base_currency, quote_currency, swap_enabled FROM pairs")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PairRow
	for rows.Next() {
		var p PairRow
		var enabled int
		if err := rows.Scan(&p.ID, &p.BaseCurrency, &p.QuoteCurrency, &enabled); err != nil {
			return nil, err
		}
		p.SwapEnabled = enabled == 1
		out = append(out, &p)
	}
	return out, rows.Err()
}
