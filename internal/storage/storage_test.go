package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "xud-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "xud-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tmpDir, "xud.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.DB() == nil {
		t.Error("DB() returned nil")
	}
}

func TestNewWithTildeExpansion(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := expandPath("~/.test")
	expected := filepath.Join(home, ".test")
	if expanded != expected {
		t.Errorf("expandPath(~/.test) = %s, want %s", expanded, expected)
	}
}

func TestStorageSchema(t *testing.T) {
	store := newTestStorage(t)
	for _, table := range []string{"nodes", "currencies", "pairs", "orders", "swap_deals", "settings"} {
		var name string
		err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}
}

func TestNodeCRUD(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now()
	node := &NodeRecord{
		NodePubKey:      "03abc",
		Addresses:       []string{"/ip4/127.0.0.1/tcp/4001"},
		FirstSeen:       now,
		LastSeen:        now,
		ConnectionCount: 1,
	}
	if err := store.SaveNode(node); err != nil {
		t.Fatalf("SaveNode() error = %v", err)
	}

	got, err := store.GetNode(node.NodePubKey)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if got.NodePubKey != node.NodePubKey {
		t.Errorf("NodePubKey = %s, want %s", got.NodePubKey, node.NodePubKey)
	}

	if err := store.Ban(node.NodePubKey, "misbehavior"); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	banned, err := store.IsBanned(node.NodePubKey)
	if err != nil || !banned {
		t.Fatalf("IsBanned() = %v, %v, want true, nil", banned, err)
	}

	if err := store.Unban(node.NodePubKey); err != nil {
		t.Fatalf("Unban() error = %v", err)
	}
	banned, _ = store.IsBanned(node.NodePubKey)
	if banned {
		t.Error("node should be unbanned")
	}
}

func TestDealRecovery(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now()

	pending := &DealRecord{
		RHash: "hash1", OrderLocalID: "o1", PairID: "BTC/USDT", PeerID: "peer1",
		Role: "maker", State: "sending_payment", Phase: "sending_payment",
		MakerCurrency: "BTC", MakerAmount: 1, TakerCurrency: "USDT", TakerAmount: 100,
		CreatedAt: now, UpdatedAt: now,
	}
	done := &DealRecord{
		RHash: "hash2", OrderLocalID: "o2", PairID: "BTC/USDT", PeerID: "peer2",
		Role: "taker", State: "completed", Phase: "completed",
		MakerCurrency: "BTC", MakerAmount: 1, TakerCurrency: "USDT", TakerAmount: 100,
		CreatedAt: now, UpdatedAt: now, CompletedAt: now,
	}

	if err := store.SaveDeal(pending); err != nil {
		t.Fatalf("SaveDeal() error = %v", err)
	}
	if err := store.SaveDeal(done); err != nil {
		t.Fatalf("SaveDeal() error = %v", err)
	}

	nonTerminal, err := store.ListNonTerminalDeals([]string{"completed", "failed"})
	if err != nil {
		t.Fatalf("ListNonTerminalDeals() error = %v", err)
	}
	if len(nonTerminal) != 1 || nonTerminal[0].RHash != "hash1" {
		t.Errorf("ListNonTerminalDeals() = %+v, want only hash1", nonTerminal)
	}
}

func TestPairAndCurrencyCRUD(t *testing.T) {
	store := newTestStorage(t)

	if err := store.SaveCurrency("BTC", 8, "lnd", ""); err != nil {
		t.Fatalf("SaveCurrency() error = %v", err)
	}
	if err := store.SaveCurrency("USDT", 6, "hashlock-transfer", "0xToken"); err != nil {
		t.Fatalf("SaveCurrency() error = %v", err)
	}
	if err := store.SavePair("BTC/USDT", "BTC", "USDT", true); err != nil {
		t.Fatalf("SavePair() error = %v", err)
	}

	currencies, err := store.ListCurrencies()
	if err != nil || len(currencies) != 2 {
		t.Fatalf("ListCurrencies() = %v, %v", currencies, err)
	}

	pairs, err := store.ListPairs()
	if err != nil || len(pairs) != 1 {
		t.Fatalf("ListPairs() = %v, %v", pairs, err)
	}
}

func TestBoolToInt(t *testing.T) {
	if boolToInt(true) != 1 {
		t.Error("boolToInt(true) should return 1")
	}
	if boolToInt(false) != 0 {
		t.Error("boolToInt(false) should return 0")
	}
}

func TestTimeToUnixOrZero(t *testing.T) {
	if timeToUnixOrZero(time.Time{}) != 0 {
		t.Error("timeToUnixOrZero(zero time) should return 0")
	}
	now := time.Now()
	if timeToUnixOrZero(now) != now.Unix() {
		t.Error("timeToUnixOrZero should return Unix timestamp")
	}
}
