// Package rpc provides a JSON-RPC 2.0 server, with WebSocket
// subscription feeds, over the daemon's order book, P2P pool, and
// swap engine.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klingon-exchange/xud/internal/alerts"
	"github.com/klingon-exchange/xud/internal/config"
	"github.com/klingon-exchange/xud/internal/currency"
	"github.com/klingon-exchange/xud/internal/orderbook"
	"github.com/klingon-exchange/xud/internal/p2p"
	"github.com/klingon-exchange/xud/internal/storage"
	"github.com/klingon-exchange/xud/internal/swaps"
	"github.com/klingon-exchange/xud/pkg/logging"
)

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Server is the daemon's JSON-RPC 2.0 + WebSocket surface.
type Server struct {
	pool   *p2p.Pool
	nodes  *p2p.NodeStore
	book   *orderbook.OrderBook
	reg    *currency.Registry
	store  *storage.Storage
	engine *swaps.Engine
	alerts *alerts.Stream
	cfg    *config.Config
	log    *logging.Logger
	wsHub  *WSHub

	startedAt time.Time
	shutdown  func()

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex

	waitMu  sync.Mutex
	waiters map[string][]chan *swaps.Deal // keyed by OrderLocalID
}

// NewServer wires a Server to the daemon's already-constructed
// components. alertStream may be nil, in which case subscribeAlerts
// clients simply never receive anything. Without a SetShutdownFunc
// call, the shutdown method only replies and stops nothing.
func NewServer(pool *p2p.Pool, nodes *p2p.NodeStore, book *orderbook.OrderBook, reg *currency.Registry, store *storage.Storage, engine *swaps.Engine, alertStream *alerts.Stream, cfg *config.Config) *Server {
	s := &Server{
		pool:      pool,
		nodes:     nodes,
		book:      book,
		reg:       reg,
		store:     store,
		engine:    engine,
		alerts:    alertStream,
		cfg:       cfg,
		log:       logging.GetDefault().Component("rpc"),
		startedAt: time.Now(),
		handlers:  make(map[string]Handler),
		waiters:   make(map[string][]chan *swaps.Deal),
	}
	s.registerHandlers()

	book.OnBroadcast(s.onOrderBroadcast)
	engine.OnUpdate(s.onSwapUpdate)

	return s
}

// SetShutdownFunc registers the callback invoked by the "shutdown"
// RPC method, after the response has been written.
func (s *Server) SetShutdownFunc(f func()) { s.shutdown = f }

func (s *Server) registerHandlers() {
	s.handlers["getInfo"] = s.getInfo
	s.handlers["shutdown"] = s.doShutdown

	s.handlers["connect"] = s.connect
	s.handlers["ban"] = s.ban
	s.handlers["unban"] = s.unban
	s.handlers["listPeers"] = s.listPeers

	s.handlers["listCurrencies"] = s.listCurrencies
	s.handlers["addCurrency"] = s.addCurrency
	s.handlers["removeCurrency"] = s.removeCurrency
	s.handlers["listPairs"] = s.listPairs
	s.handlers["addPair"] = s.addPair
	s.handlers["removePair"] = s.removePair

	s.handlers["listOrders"] = s.listOrders
	s.handlers["placeOrder"] = s.placeOrder
	s.handlers["placeOrderSync"] = s.placeOrderSync
	s.handlers["removeOrder"] = s.removeOrder
}

// Start begins serving JSON-RPC over HTTP POST and subscriptions over
// WebSocket at /ws, on the configured RPC bind address.
func (s *Server) Start() error {
	addr := s.cfg.RPC.ListenAddr
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.wsHub = NewWSHub()
	go s.wsHub.Run()
	go s.relayAlerts()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop shuts the RPC server down without invoking the daemon
// shutdown callback.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, InternalError, err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message, Data: data}, ID: id})
}

func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
