package storage

import (
	"database/sql"
	"errors"
	"time"
)

var ErrDealNotFound = errors.New("swap deal not found")

// DealRecord is the persisted form of a swap deal, written on every
// phase transition so a crash can be recovered from by scanning
// non-terminal rows at startup.
type DealRecord struct {
	RHash        string
	OrderLocalID string
	PairID       string
	PeerID       string
	Role         string
	State        string
	Phase        string

	MakerCurrency string
	MakerAmount   int64
	TakerCurrency string
	TakerAmount   int64

	RPreimage string
	CLTVDelta int32

	ErrorReason  string
	FailureCount int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

func (s *Storage) SaveDeal(d *DealRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO swap_deals (
			r_hash, order_local_id, pair_id, peer_id, role, state, phase,
			maker_currency, maker_amount, taker_currency, taker_amount,
			r_preimage, cltv_delta, error_reason, failure_count,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(r_hash) DO UPDATE SET
			state = excluded.state,
			phase = excluded.phase,
			r_preimage = excluded.r_preimage,
			error_reason = excluded.error_reason,
			failure_count = excluded.failure_count,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`,
		d.RHash, d.OrderLocalID, d.PairID, d.PeerID, d.Role, d.State, d.Phase,
		d.MakerCurrency, d.MakerAmount, d.TakerCurrency, d.TakerAmount,
		nullableString(d.RPreimage), d.CLTVDelta, nullableString(d.ErrorReason), d.FailureCount,
		d.CreatedAt.Unix(), d.UpdatedAt.Unix(), timeToUnixOrZero(d.CompletedAt),
	)
	return err
}

func (s *Storage) GetDeal(rHash string) (*DealRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(dealSelect+" WHERE r_hash = ?", rHash)
	d, err := scanDeal(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDealNotFound
	}
	return d, err
}

// ListNonTerminalDeals returns every deal not in a terminal state, used
// by the recovery scan on startup.
func (s *Storage) ListNonTerminalDeals(terminalStates []string) ([]*DealRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := ""
	args := make([]interface{}, 0, len(terminalStates))
	for i, st := range terminalStates {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, st)
	}

	rows, err := s.db.Query(dealSelect+" WHERE state NOT IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DealRecord
	for rows.Next() {
		d, err := scanDeal(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const dealSelect = `
	SELECT r_hash, order_local_id, pair_id, peer_id, role, state, phase,
		maker_currency, maker_amount, taker_currency, taker_amount,
		r_preimage, cltv_delta, error_reason, failure_count,
		created_at, updated_at, completed_at
	FROM swap_deals`

func scanDeal(scan func(dest ...interface{}) error) (*DealRecord, error) {
	var d DealRecord
	var rPreimage, errorReason sql.NullString
	var createdAt, updatedAt, completedAt int64

	err := scan(
		&d.RHash, &d.OrderLocalID, &d.PairID, &d.PeerID, &d.Role, &d.State, &d.Phase,
		&d.MakerCurrency, &d.MakerAmount, &d.TakerCurrency, &d.TakerAmount,
		&rPreimage, &d.CLTVDelta, &errorReason, &d.FailureCount,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	d.RPreimage = rPreimage.String
	d.ErrorReason = errorReason.String
	d.CreatedAt = time.Unix(createdAt, 0)
	d.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt > 0 {
		d.CompletedAt = time.Unix(completedAt, 0)
	}
	return &d, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
