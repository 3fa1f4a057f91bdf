package storage

import (
	"errors"
	"time"
)

var ErrOrderNotFound = errors.New("order not found")

// LocalOrder is a snapshot of one of this node's own resting orders,
// persisted purely so placeOrder calls survive a restart; the
// in-memory matching engine is the source of truth while running.
type LocalOrder struct {
	LocalID   string
	PairID    string
	Side      string
	Price     string
	Quantity  int64
	CreatedAt time.Time
}

func (s *Storage) SaveLocalOrder(o *LocalOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO orders (local_id, pair_id, side, price, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET quantity = excluded.quantity
	`, o.LocalID, o.PairID, o.Side, o.Price, o.Quantity, o.CreatedAt.Unix())
	return err
}

func (s *Storage) DeleteLocalOrder(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.Exec("DELETE FROM orders WHERE local_id = ?", localID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *Storage) ListLocalOrders() ([]*LocalOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT local_id, pair_id, side, price, quantity, created_at FROM orders")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LocalOrder
	for rows.Next() {
		var o LocalOrder
		var createdAt int64
		if err := rows.Scan(&o.LocalID, &o.PairID, &o.Side, &o.Price, &o.Quantity, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &o)
	}
	return out, rows.Err()
}
