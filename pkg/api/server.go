// Package api serves the exchange over HTTP: market data, accounts and the
// order entry endpoints used by clients in development setups.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core/account"
	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperspot/pkg/app/core/settlement"
)

const (
	defaultTradeLimit = 100
	maxTradeLimit     = 1000
)

// TradeHistory serves the stored trades of a pair, newest first.
type TradeHistory interface {
	LoadRecentTrades(pair string, limit int) ([]matching.Trade, error)
}

// Options configures optional parts of the server.
type Options struct {
	Trades         TradeHistory        // nil disables /trades
	Gatherer       prometheus.Gatherer // nil disables /metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

// Server handles the REST API
type Server struct {
	exchange *matching.Exchange
	accounts *account.Manager
	trades   TradeHistory
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	origins  []string
	router   *mux.Router
}

// NewServer creates a new API server
func NewServer(ex *matching.Exchange, accounts *account.Manager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}

	s := &Server{
		exchange: ex,
		accounts: accounts,
		trades:   opts.Trades,
		gatherer: opts.Gatherer,
		logger:   logger,
		origins:  origins,
		router:   mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/pairs", s.handleGetPairs).Methods("GET")
	api.HandleFunc("/pairs/{pair}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/pairs/{pair}/best", s.handleGetBest).Methods("GET")
	api.HandleFunc("/pairs/{pair}/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/pairs/{pair}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/pairs/{pair}/status", s.handleSetPairStatus).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")

	// Order entry
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api_listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

// ==============================
// Market Handlers
// ==============================

func (s *Server) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	pairs := s.exchange.Pairs()

	response := make([]PairInfo, len(pairs))
	for i, p := range pairs {
		response[i] = PairInfo{
			Symbol:     p.Symbol,
			BaseAsset:  p.BaseAsset,
			QuoteAsset: p.QuoteAsset,
			Status:     p.Status.String(),
		}
	}

	respondJSON(w, response)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]

	depth, err := queryInt(r, "depth", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid depth", err.Error())
		return
	}

	bids, asks, err := s.exchange.SnapshotTopLevels(pair, depth)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Symbol:    pair,
		Epoch:     s.exchange.Epoch(),
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetBest(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]
	if !s.exchange.Registry().Exists(pair) {
		respondError(w, http.StatusNotFound, "pair not found", pair)
		return
	}

	response := BestPrices{Symbol: pair}
	if bid, ok := s.exchange.BestBid(pair); ok {
		response.BestBid = &bid
	}
	if ask, ok := s.exchange.BestAsk(pair); ok {
		response.BestAsk = &ask
	}
	respondJSON(w, response)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]

	n, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	stats, err := s.exchange.Statistics(pair, n)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, StatsResponse{Symbol: pair, Epoch: s.exchange.Epoch(), Stats: stats})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]
	if !s.exchange.Registry().Exists(pair) {
		respondError(w, http.StatusNotFound, "pair not found", pair)
		return
	}

	limit, err := queryInt(r, "limit", defaultTradeLimit)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "invalid limit", r.URL.Query().Get("limit"))
		return
	}
	limit = min(limit, maxTradeLimit)

	if s.trades == nil {
		respondJSON(w, []matching.Trade{})
		return
	}
	trades, err := s.trades.LoadRecentTrades(pair, limit)
	if err != nil {
		s.logger.Error("load_trades_failed", zap.String("pair", pair), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleSetPairStatus(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]

	var req PairStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	var status market.Status
	if err := status.UnmarshalText([]byte(req.Status)); err != nil {
		respondError(w, http.StatusBadRequest, "invalid status", err.Error())
		return
	}

	if err := s.exchange.Registry().SetStatus(pair, status); err != nil {
		respondError(w, http.StatusNotFound, "pair not found", err.Error())
		return
	}
	s.logger.Info("pair_status_changed", zap.String("pair", pair), zap.Stringer("status", status))

	p, _ := s.exchange.Registry().Get(pair)
	respondJSON(w, PairInfo{Symbol: p.Symbol, BaseAsset: p.BaseAsset, QuoteAsset: p.QuoteAsset, Status: p.Status.String()})
}

// ==============================
// Account Handlers
// ==============================

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}

	response := AccountInfo{Address: addr.Hex(), Balances: map[string]account.Balance{}}
	if acc := s.accounts.GetAccount(addr); acc != nil {
		for asset, bal := range acc.Balances {
			response.Balances[asset] = *bal
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}

	pairs := s.exchange.Pairs()
	if p := r.URL.Query().Get("pair"); p != "" {
		pair, err := s.exchange.Registry().Get(p)
		if err != nil {
			respondError(w, http.StatusNotFound, "pair not found", p)
			return
		}
		pairs = []market.Pair{pair}
	}

	orders := []orderbook.Order{}
	for _, p := range pairs {
		open, err := s.exchange.OpenOrders(p.Symbol, addr)
		if err != nil {
			respondEngineError(w, err)
			return
		}
		orders = append(orders, open...)
	}
	respondJSON(w, orders)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, "deposit", s.accounts.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, "withdraw", s.accounts.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, op string, apply func(string, common.Address, fixed.Amount) error) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}
	if req.Asset == "" {
		respondError(w, http.StatusBadRequest, "missing asset", "")
		return
	}

	if err := apply(req.Asset, addr, req.Amount); err != nil {
		respondEngineError(w, err)
		return
	}
	s.logger.Info(op,
		zap.String("address", addr.Hex()),
		zap.String("asset", req.Asset),
		zap.Stringer("amount", req.Amount))

	respondJSON(w, map[string]string{
		"status":  "ok",
		"address": addr.Hex(),
		"asset":   req.Asset,
		"free":    s.accounts.FreeBalance(req.Asset, addr).String(),
	})
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}

	out, err := s.exchange.SubmitOrder(matching.OrderRequest{
		ID:          req.ID,
		Pair:        req.Pair,
		Kind:        req.Kind,
		Owner:       owner,
		Price:       req.Price,
		Quantity:    req.Quantity,
		SpendBudget: req.SpendBudget,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, SubmitOrderResponse{Status: "accepted", SubmitOutcome: out})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.OrderID == "" || req.Pair == "" {
		respondError(w, http.StatusBadRequest, "missing orderId or pair", "")
		return
	}
	owner, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	released, err := s.exchange.CancelOrder(req.OrderID, owner, req.Pair)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, released)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok", "epoch": s.exchange.Epoch()})
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps engine and ledger errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, matching.ErrUnknownPair), errors.Is(err, matching.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, matching.ErrNotOwner):
		return http.StatusForbidden, "not the order owner"
	case errors.Is(err, matching.ErrPairHalted), errors.Is(err, matching.ErrDuplicateOrder):
		return http.StatusConflict, "order rejected"
	case errors.Is(err, matching.ErrValidation), errors.Is(err, matching.ErrArithmeticOverflow),
		errors.Is(err, account.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, settlement.ErrInsufficientBalance), errors.Is(err, account.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient balance"
	case errors.Is(err, matching.ErrSettlement):
		return http.StatusConflict, "settlement failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondEngineError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	respondError(w, status, msg, err.Error())
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
