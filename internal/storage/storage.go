// Package storage provides SQLite-backed persistence for the daemon's
// node reputation table, the currency/pair registry, local order
// snapshots, and in-flight swap deals.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage wraps the single SQLite connection used by the daemon. SQLite
// only supports one writer at a time, so the connection pool is capped
// to one and every write goes through mu like the rest of this package's
// callers expect.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

type Config struct {
	DataDir string
}

func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "xud.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		node_pub_key TEXT PRIMARY KEY,
		addresses TEXT,
		first_seen INTEGER,
		last_seen INTEGER,
		last_connected INTEGER,
		connection_count INTEGER DEFAULT 0,
		is_bootstrap INTEGER DEFAULT 0,
		reputation INTEGER NOT NULL DEFAULT 0,
		banned INTEGER NOT NULL DEFAULT 0,
		ban_reason TEXT,
		banned_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_last_seen ON nodes(last_seen);
	CREATE INDEX IF NOT EXISTS idx_nodes_banned ON nodes(banned);

	CREATE TABLE IF NOT EXISTS currencies (
		symbol TEXT PRIMARY KEY,
		decimals INTEGER NOT NULL,
		swap_client TEXT NOT NULL,
		token_address TEXT
	);

	CREATE TABLE IF NOT EXISTS pairs (
		id TEXT PRIMARY KEY,
		base_currency TEXT NOT NULL,
		quote_currency TEXT NOT NULL,
		swap_enabled INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (base_currency) REFERENCES currencies(symbol),
		FOREIGN KEY (quote_currency) REFERENCES currencies(symbol)
	);

	-- Local orders only; remote orders are not persisted and are
	-- re-learned from peers after restart via GetOrders.
	CREATE TABLE IF NOT EXISTS orders (
		local_id TEXT PRIMARY KEY,
		pair_id TEXT NOT NULL,
		side TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_pair ON orders(pair_id);

	-- Swap deals: one row per settlement attempt, keyed by the hashlock.
	CREATE TABLE IF NOT EXISTS swap_deals (
		r_hash TEXT PRIMARY KEY,
		order_local_id TEXT NOT NULL,
		pair_id TEXT NOT NULL,
		peer_id TEXT NOT NULL,
		role TEXT NOT NULL,
		state TEXT NOT NULL,
		phase TEXT NOT NULL,

		maker_currency TEXT NOT NULL,
		maker_amount INTEGER NOT NULL,
		taker_currency TEXT NOT NULL,
		taker_amount INTEGER NOT NULL,

		r_preimage TEXT,
		cltv_delta INTEGER NOT NULL,

		error_reason TEXT,
		failure_count INTEGER NOT NULL DEFAULT 0,

		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_deals_state ON swap_deals(state);
	CREATE INDEX IF NOT EXISTS idx_deals_peer ON swap_deals(peer_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func timeToUnixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
