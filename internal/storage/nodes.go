package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

var ErrNodeNotFound = errors.New("node not found")

// NodeRecord is a known peer's address book entry plus its reputation
// and ban state, persisted so both survive a restart.
type NodeRecord struct {
	NodePubKey      string
	Addresses       []string
	FirstSeen       time.Time
	LastSeen        time.Time
	LastConnected   time.Time
	ConnectionCount int
	IsBootstrap     bool
	Reputation      int
	Banned          bool
	BanReason       string
	BannedAt        time.Time
}

// SaveNode inserts or refreshes a node's address-book entry.
func (s *Storage) SaveNode(n *NodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrsJSON, err := json.Marshal(n.Addresses)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO nodes (node_pub_key, addresses, first_seen, last_seen, last_connected, connection_count, is_bootstrap, reputation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_pub_key) DO UPDATE SET
			addresses = excluded.addresses,
			last_seen = excluded.last_seen,
			last_connected = CASE WHEN excluded.last_connected > 0 THEN excluded.last_connected ELSE nodes.last_connected END,
			connection_count = nodes.connection_count + 1,
			is_bootstrap = CASE WHEN excluded.is_bootstrap THEN 1 ELSE nodes.is_bootstrap END
	`,
		n.NodePubKey, string(addrsJSON), n.FirstSeen.Unix(), n.LastSeen.Unix(),
		timeToUnixOrZero(n.LastConnected), n.ConnectionCount, boolToInt(n.IsBootstrap), n.Reputation,
	)
	return err
}

// GetNode returns a node's record, or ErrNodeNotFound.
func (s *Storage) GetNode(pubKey string) (*NodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT node_pub_key, addresses, first_seen, last_seen, last_connected,
			connection_count, is_bootstrap, reputation, banned, ban_reason, banned_at
		FROM nodes WHERE node_pub_key = ?
	`, pubKey)
	return scanNode(row)
}

// ListRecentNodes returns nodes seen within the given window, most
// frequently connected first -- used to seed reconnection on startup.
func (s *Storage) ListRecentNodes(since time.Duration, limit int) ([]*NodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-since).Unix()
	query := `
		SELECT node_pub_key, addresses, first_seen, last_seen, last_connected,
			connection_count, is_bootstrap, reputation, banned, ban_reason, banned_at
		FROM nodes
		WHERE last_seen > ? AND banned = 0
		ORDER BY connection_count DESC, last_seen DESC
	`
	args := []interface{}{cutoff}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*NodeRecord
	for rows.Next() {
		n, err := scanNodeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateNodeConnected records a successful connection.
func (s *Storage) UpdateNodeConnected(pubKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().Unix()
	_, err := s.db.Exec(
		"UPDATE nodes SET last_connected = ?, last_seen = ?, connection_count = connection_count + 1 WHERE node_pub_key = ?",
		now, now, pubKey,
	)
	return err
}

// AdjustReputation adds delta to a node's reputation score.
func (s *Storage) AdjustReputation(pubKey string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("UPDATE nodes SET reputation = reputation + ? WHERE node_pub_key = ?", delta, pubKey)
	return err
}

// Ban marks a node as banned with a reason.
func (s *Storage) Ban(pubKey, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"UPDATE nodes SET banned = 1, ban_reason = ?, banned_at = ? WHERE node_pub_key = ?",
		reason, time.Now().Unix(), pubKey,
	)
	return err
}

// Unban clears a node's ban state.
func (s *Storage) Unban(pubKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("UPDATE nodes SET banned = 0, ban_reason = NULL, banned_at = NULL WHERE node_pub_key = ?", pubKey)
	return err
}

// IsBanned reports whether a node is currently banned.
func (s *Storage) IsBanned(pubKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var banned int
	err := s.db.QueryRow("SELECT banned FROM nodes WHERE node_pub_key = ?", pubKey).Scan(&banned)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return banned == 1, nil
}

func scanNode(row *sql.Row) (*NodeRecord, error) {
	n, err := scanNodeCommon(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNodeNotFound
	}
	return n, err
}

func scanNodeRows(rows *sql.Rows) (*NodeRecord, error) {
	return scanNodeCommon(rows.Scan)
}

func scanNodeCommon(scan func(dest ...interface{}) error) (*NodeRecord, error) {
	var n NodeRecord
	var addrsJSON string
	var firstSeen, lastSeen, lastConnected int64
	var isBootstrap, banned int
	var banReason sql.NullString
	var bannedAt sql.NullInt64

	err := scan(
		&n.NodePubKey, &addrsJSON, &firstSeen, &lastSeen, &lastConnected,
		&n.ConnectionCount, &isBootstrap, &n.Reputation, &banned, &banReason, &bannedAt,
	)
	if err != nil {
		return nil, err
	}

	if addrsJSON != "" {
		json.Unmarshal([]byte(addrsJSON), &n.Addresses)
	}
	n.FirstSeen = time.Unix(firstSeen, 0)
	n.LastSeen = time.Unix(lastSeen, 0)
	if lastConnected > 0 {
		n.LastConnected = time.Unix(lastConnected, 0)
	}
	n.IsBootstrap = isBootstrap == 1
	n.Banned = banned == 1
	n.BanReason = banReason.String
	if bannedAt.Valid {
		n.BannedAt = time.Unix(bannedAt.Int64, 0)
	}
	return &n, nil
}
