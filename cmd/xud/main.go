// Package main is the xud daemon entrypoint: it loads configuration,
// opens storage, builds the libp2p host and gossip pool, wires the
// order book and swap engine together, and serves the JSON-RPC API.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/xud/internal/alerts"
	"github.com/klingon-exchange/xud/internal/config"
	"github.com/klingon-exchange/xud/internal/currency"
	"github.com/klingon-exchange/xud/internal/gossip"
	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/p2p"
	"github.com/klingon-exchange/xud/internal/rpc"
	"github.com/klingon-exchange/xud/internal/storage"
	"github.com/klingon-exchange/xud/internal/swapmgr"
	"github.com/klingon-exchange/xud/internal/swaps"
	"github.com/klingon-exchange/xud/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir        = flag.String("data-dir", "~/.xud", "Data directory")
		configFile     = flag.String("config", "", "Config file path; only its directory is used, and xud.conf is read from there (default: <data-dir>/xud.conf)")
		listenAddr     = flag.String("listen", "", "Listen address (multiaddr), overrides config")
		apiAddr        = flag.String("api", "", "JSON-RPC/WebSocket bind address, overrides config")
		enableMDNS     = flag.Bool("mdns", false, "Enable mDNS peer discovery")
		enableDHT      = flag.Bool("dht", true, "Enable DHT peer discovery")
		testnet        = flag.Bool("testnet", false, "Run on testnet (separate network and data)")
		bootstrapPeers = flag.String("bootstrap", "", "Bootstrap peer node URIs (comma-separated)")
		logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion    = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("xud %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	configDir := effectiveDataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	if *listenAddr != "" {
		cfg.Network.ListenAddrs = []string{*listenAddr}
	}
	if *apiAddr != "" {
		cfg.RPC.ListenAddr = *apiAddr
	}
	cfg.Network.EnableMDNS = *enableMDNS
	cfg.Network.EnableDHT = *enableDHT
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = effectiveDataDir
	if *testnet {
		cfg.NetworkType = config.NetworkTestnet
	}
	if *bootstrapPeers != "" {
		cfg.Network.BootstrapPeers = splitNonEmpty(*bootstrapPeers)
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("Config loaded", "path", config.ConfigPath(configDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataPath := expandPath(cfg.Storage.DataDir)
	store, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", dataPath)

	reg, err := bootstrapRegistry(store, cfg)
	if err != nil {
		log.Fatal("Failed to bootstrap currency registry", "error", err)
	}
	log.Info("Currency registry bootstrapped", "currencies", len(reg.Currencies()), "pairs", len(reg.Pairs()))

	clients := swapmgr.New()
	if err := clients.Init(reg); err != nil {
		log.Warn("Some swap clients were not initialized", "error", err)
	}

	h, privKey, err := buildHost(ctx, cfg, dataPath, log)
	if err != nil {
		log.Fatal("Failed to create libp2p host", "error", err)
	}
	defer h.Close()

	nodeID, err := peer.IDFromPrivateKey(privKey)
	if err != nil {
		log.Fatal("Failed to derive node id", "error", err)
	}

	nodes := p2p.NewNodeStore(store)

	pairIDs := make([]string, 0, len(reg.Pairs()))
	for _, pr := range reg.Pairs() {
		pairIDs = append(pairIDs, pr.ID())
	}

	identity := p2p.Identity{
		NodePubKey: nodeID.String(),
		NetworkID:  cfg.NetworkID(),
		Addresses:  advertisedAddrs(h, cfg),
	}

	pool := p2p.NewPool(h, nodes, p2p.PoolConfig{
		Identity: identity,
		Pairs:    pairIDs,
		AllowTor: cfg.Network.AllowTor,
		Backoff: p2p.BackoffConfig{
			Base:       cfg.Network.Backoff.Base,
			Max:        cfg.Network.Backoff.Max,
			Multiplier: cfg.Network.Backoff.Multiplier,
		},
	})
	defer pool.Shutdown()

	book := orderbook.New(reg)
	engine := swaps.New(pool, clients, store, reg, book)
	defer engine.Close()

	if orders, err := store.ListLocalOrders(); err != nil {
		log.Warn("Failed to list persisted orders", "error", err)
	} else {
		for _, o := range orders {
			price, err := decimal.NewFromString(o.Price)
			if err != nil {
				log.Warn("Skipping persisted order with invalid price", "localId", o.LocalID, "error", err)
				continue
			}
			restored := &orderbook.Order{
				LocalID:   o.LocalID,
				PairID:    o.PairID,
				Side:      orderbook.Side(o.Side),
				Price:     price,
				CreatedAt: o.CreatedAt,
			}
			if err := book.Restore(o.PairID, restored, o.Quantity); err != nil {
				log.Warn("Failed to restore persisted order", "localId", o.LocalID, "error", err)
			}
		}
		if len(orders) > 0 {
			log.Info("Restored resting own orders from storage", "count", len(orders))
		}
	}

	gossip.New(pool, book, engine)

	if recovered, err := engine.Recover(); err != nil {
		log.Warn("Deal recovery scan failed", "error", err)
	} else if len(recovered) > 0 {
		log.Info("Recovered non-terminal deals from prior run", "count", len(recovered))
	}

	alertStream := alerts.New()
	go alertStream.Run(ctx, clients.Events())

	server := rpc.NewServer(pool, nodes, book, reg, store, engine, alertStream, cfg)
	if err := server.Start(); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	shuttingDown := make(chan struct{})
	server.SetShutdownFunc(func() {
		close(shuttingDown)
	})

	for _, uri := range cfg.Network.BootstrapPeers {
		uri := uri
		go func() {
			if _, err := pool.AddOutbound(ctx, uri, true); err != nil {
				log.Warn("Failed to connect to bootstrap peer", "peer", uri, "error", err)
			}
		}()
	}

	printBanner(log, h, cfg, nodeID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Shutting down...")
	case <-shuttingDown:
		log.Info("Shutdown requested over RPC...")
	}

	cancel()
	if err := server.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}

// bootstrapRegistry loads currencies and pairs persisted from a prior
// run, or seeds storage from the config file's bootstrap list on first
// run. Once persisted, the config file's Currencies/Pairs are no
// longer consulted -- addCurrency/addPair own the registry from then on.
func bootstrapRegistry(store *storage.Storage, cfg *config.Config) (*currency.Registry, error) {
	reg := currency.NewRegistry()

	rows, err := store.ListCurrencies()
	if err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}

	if len(rows) == 0 {
		for _, c := range cfg.Currencies {
			if err := store.SaveCurrency(c.Symbol, c.Decimals, c.SwapClient, c.TokenAddress); err != nil {
				return nil, fmt.Errorf("failed to seed currency %s: %w", c.Symbol, err)
			}
		}
		rows, err = store.ListCurrencies()
		if err != nil {
			return nil, err
		}
	}
	for _, row := range rows {
		if err := reg.AddCurrency(&currency.Currency{
			Symbol:       row.Symbol,
			Decimals:     row.Decimals,
			SwapKind:     currency.SwapClientKind(row.SwapClient),
			TokenAddress: row.TokenAddress,
		}); err != nil {
			return nil, err
		}
	}

	pairRows, err := store.ListPairs()
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	if len(pairRows) == 0 {
		for _, p := range cfg.Pairs {
			id := fmt.Sprintf("%s/%s", p.BaseCurrency, p.QuoteCurrency)
			if err := store.SavePair(id, p.BaseCurrency, p.QuoteCurrency, p.SwapEnabled); err != nil {
				return nil, fmt.Errorf("failed to seed pair %s: %w", id, err)
			}
		}
		pairRows, err = store.ListPairs()
		if err != nil {
			return nil, err
		}
	}
	for _, row := range pairRows {
		if err := reg.AddPair(&currency.Pair{
			BaseCurrency:  row.BaseCurrency,
			QuoteCurrency: row.QuoteCurrency,
			SwapEnabled:   row.SwapEnabled,
		}); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// buildHost constructs the libp2p host backing the gossip pool: a
// persisted (or freshly generated) secp256k1 identity key, so the node
// public key libp2p authenticates the secure channel with is the same
// 33-byte compressed key spec participants exchange, plus optional DHT
// and mDNS auto-discovery layered alongside the pool's explicit
// addOutbound/bootstrap path.
func buildHost(ctx context.Context, cfg *config.Config, dataDir string, log *logging.Logger) (host.Host, crypto.PrivKey, error) {
	privKey, err := loadOrCreateKey(dataDir, cfg.Identity.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load/create identity key: %w", err)
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.Network.ListenAddrs))
	for _, addr := range cfg.Network.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid listen address %s: %w", addr, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	cm, err := connmgr.NewConnManager(
		cfg.Network.ConnMgr.LowWater,
		cfg.Network.ConnMgr.HighWater,
		connmgr.WithGracePeriod(cfg.Network.ConnMgr.GracePeriod),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.ConnectionManager(cm),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
		libp2p.NATPortMap(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	if cfg.Network.EnableDHT {
		kad, err := dht.New(ctx, h, dht.Mode(dht.ModeAutoServer), dht.ProtocolPrefix(protocol.ID(dhtPrefix(cfg))))
		if err != nil {
			log.Warn("DHT initialization failed, continuing without it", "error", err)
		} else if err := kad.Bootstrap(ctx); err != nil {
			log.Warn("DHT bootstrap failed, continuing without it", "error", err)
		} else {
			// Routing discovery built on kad is available for a future
			// FindPeers-based bootstrap source; connections it surfaces
			// would still go through Pool.AddOutbound like any other peer.
			_ = drouting.NewRoutingDiscovery(kad)
		}
	}

	if cfg.Network.EnableMDNS {
		svc := mdns.NewMdnsService(h, discoveryNamespace(cfg), mdnsNotifee{})
		if err := svc.Start(); err != nil {
			log.Warn("mDNS initialization failed, continuing without it", "error", err)
		}
	}

	return h, privKey, nil
}

// mdnsNotifee logs discovered peers; actual connection happens through
// the normal addOutbound/admission path once the operator or a future
// bridge decides to dial a discovered peer, never automatically.
type mdnsNotifee struct{}

func (mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	logging.GetDefault().Component("discovery").Debug("Discovered peer via mDNS", "peer", pi.ID.String())
}

func dhtPrefix(cfg *config.Config) string {
	if cfg.IsTestnet() {
		return "/xud-testnet"
	}
	return "/xud"
}

func discoveryNamespace(cfg *config.Config) string {
	return cfg.NetworkID()
}

func loadOrCreateKey(dataDir, keyFile string) (crypto.PrivKey, error) {
	keyPath := keyFile
	if !filepath.IsAbs(keyPath) {
		keyPath = filepath.Join(dataDir, keyPath)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		return crypto.UnmarshalPrivateKey(data)
	}

	privKey, _, err := crypto.GenerateSecp256k1Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	data, err := crypto.MarshalPrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		return nil, err
	}
	return privKey, nil
}

func advertisedAddrs(h host.Host, cfg *config.Config) []string {
	if len(cfg.Network.AdvertisedAddrs) > 0 {
		return cfg.Network.AdvertisedAddrs
	}
	out := make([]string, 0, len(h.Addrs()))
	for _, a := range h.Addrs() {
		out = append(out, a.String())
	}
	return out
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func printBanner(log *logging.Logger, h host.Host, cfg *config.Config, nodeID peer.ID) {
	networkLabel := "mainnet"
	if cfg.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  xud (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Node ID: %s", nodeID.String())
	log.Info("")
	log.Info("  Listening on:")
	for _, addr := range h.Addrs() {
		log.Infof("    %s/p2p/%s", addr.String(), nodeID.String())
	}
	log.Info("")
	log.Infof("  RPC: http://%s", cfg.RPC.ListenAddr)
	log.Infof("  WS:  ws://%s/ws", cfg.RPC.ListenAddr)
	log.Info("")
	log.Infof("  mDNS: %v | DHT: %v", cfg.Network.EnableMDNS, cfg.Network.EnableDHT)
	log.Infof("  Data dir: %s", expandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
