package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/uhyunpark/hyperspot/pkg/app/core/account"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/storage"
)

const (
	seller = "0x1000000000000000000000000000000000000001"
	buyer  = "0x2000000000000000000000000000000000000002"
)

type testEnv struct {
	srv      *Server
	handler  http.Handler
	exchange *matching.Exchange
	accounts *account.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	accounts := account.NewMemoryManager(nil)
	reg := prometheus.NewRegistry()
	ex := matching.NewExchange(accounts, matching.Config{Metrics: matching.NewMetrics(reg)})
	if err := ex.AddPair(market.Pair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"}); err != nil {
		t.Fatal(err)
	}

	trades, err := storage.NewMemPebbleStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { trades.Close() })
	ex.OnTrade = func(tr matching.Trade) {
		if err := trades.SaveTrade(tr); err != nil {
			t.Errorf("SaveTrade: %v", err)
		}
	}

	srv := NewServer(ex, accounts, Options{Trades: trades, Gatherer: reg})
	return &testEnv{srv: srv, handler: srv.Handler(), exchange: ex, accounts: accounts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) deposit(t *testing.T, addr, asset, amount string) {
	t.Helper()
	rec := e.do(t, "POST", "/api/v1/deposits", map[string]string{"address": addr, "asset": asset, "amount": amount})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: %d %s", rec.Code, rec.Body)
	}
}

func (e *testEnv) order(t *testing.T, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, "POST", "/api/v1/orders", body)
}

func TestHealthAndPairs(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(t, "GET", "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	pairs := decode[[]PairInfo](t, e.do(t, "GET", "/api/v1/pairs", nil))
	if len(pairs) != 1 || pairs[0].Symbol != "BTC-USDT" || pairs[0].Status != "Active" {
		t.Errorf("pairs = %+v", pairs)
	}
}

func TestOrderFlow(t *testing.T) {
	e := newTestEnv(t)
	e.deposit(t, seller, "BTC", "2")
	e.deposit(t, buyer, "USDT", "1000")

	rec := e.order(t, map[string]string{
		"id": "a1", "pair": "BTC-USDT", "kind": "ask_limit", "owner": seller, "price": "100", "quantity": "2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ask: %d %s", rec.Code, rec.Body)
	}
	if out := decode[map[string]any](t, rec); out["state"] != "resting" || out["status"] != "accepted" {
		t.Errorf("ask outcome = %v", out)
	}

	rec = e.order(t, map[string]string{
		"id": "b1", "pair": "BTC-USDT", "kind": "bid_limit", "owner": buyer, "price": "101", "quantity": "0.5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bid: %d %s", rec.Code, rec.Body)
	}
	out := decode[map[string]any](t, rec)
	if out["state"] != "filled" || out["filled"] != "0.5" {
		t.Errorf("bid outcome = %v", out)
	}

	book := decode[OrderbookSnapshot](t, e.do(t, "GET", "/api/v1/pairs/BTC-USDT/book?depth=5", nil))
	if len(book.Bids) != 0 || len(book.Asks) != 1 || book.Asks[0].Quantity.String() != "1.5" {
		t.Errorf("book = %+v", book)
	}

	best := decode[BestPrices](t, e.do(t, "GET", "/api/v1/pairs/BTC-USDT/best", nil))
	if best.BestBid != nil || best.BestAsk == nil || best.BestAsk.String() != "100" {
		t.Errorf("best = %+v", best)
	}

	trades := decode[[]matching.Trade](t, e.do(t, "GET", "/api/v1/pairs/BTC-USDT/trades", nil))
	if len(trades) != 1 || trades[0].MakerOrderID != "a1" || trades[0].Price.String() != "100" {
		t.Errorf("trades = %+v", trades)
	}

	stats := decode[StatsResponse](t, e.do(t, "GET", "/api/v1/pairs/BTC-USDT/stats", nil))
	if len(stats.Stats) != 1 || stats.Stats[0].Volume.String() != "0.5" {
		t.Errorf("stats = %+v", stats)
	}

	acct := decode[AccountInfo](t, e.do(t, "GET", "/api/v1/accounts/"+buyer, nil))
	if bal := acct.Balances["BTC"]; bal.Free.String() != "0.5" {
		t.Errorf("buyer BTC = %+v", bal)
	}
	if bal := acct.Balances["USDT"]; bal.Free.String() != "950" || !bal.Reserved.IsZero() {
		t.Errorf("buyer USDT = %+v", bal)
	}

	orders := decode[[]map[string]any](t, e.do(t, "GET", "/api/v1/accounts/"+seller+"/orders", nil))
	if len(orders) != 1 || orders[0]["id"] != "a1" {
		t.Errorf("open orders = %v", orders)
	}

	rec = e.do(t, "POST", "/api/v1/orders/cancel", CancelOrderRequest{Pair: "BTC-USDT", Address: buyer, OrderID: "a1"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("cancel by non-owner: %d", rec.Code)
	}
	rec = e.do(t, "POST", "/api/v1/orders/cancel", CancelOrderRequest{Pair: "BTC-USDT", Address: seller, OrderID: "a1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body)
	}
	if rel := decode[matching.ReleasedReservation](t, rec); rel.Asset != "BTC" || rel.Amount.String() != "1.5" {
		t.Errorf("released = %+v", rel)
	}

	metrics := e.do(t, "GET", "/metrics", nil)
	if !strings.Contains(metrics.Body.String(), "orders_received_total") {
		t.Errorf("metrics missing order counter")
	}
}

func TestErrorStatuses(t *testing.T) {
	e := newTestEnv(t)
	e.deposit(t, buyer, "USDT", "10")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown pair book", "GET", "/api/v1/pairs/DOGE-USDT/book", nil, http.StatusNotFound},
		{"bad depth", "GET", "/api/v1/pairs/BTC-USDT/book?depth=x", nil, http.StatusBadRequest},
		{"bad address", "GET", "/api/v1/accounts/nope", nil, http.StatusBadRequest},
		{"malformed body", "POST", "/api/v1/orders", "{", http.StatusBadRequest},
		{"unknown kind", "POST", "/api/v1/orders", map[string]string{
			"id": "x", "pair": "BTC-USDT", "kind": "stop", "owner": buyer,
		}, http.StatusBadRequest},
		{"zero price", "POST", "/api/v1/orders", map[string]string{
			"id": "x", "pair": "BTC-USDT", "kind": "bid_limit", "owner": buyer, "price": "0", "quantity": "1",
		}, http.StatusBadRequest},
		{"unknown pair order", "POST", "/api/v1/orders", map[string]string{
			"id": "x", "pair": "DOGE-USDT", "kind": "bid_limit", "owner": buyer, "price": "1", "quantity": "1",
		}, http.StatusNotFound},
		{"insufficient balance", "POST", "/api/v1/orders", map[string]string{
			"id": "x", "pair": "BTC-USDT", "kind": "bid_limit", "owner": buyer, "price": "100", "quantity": "1",
		}, http.StatusUnprocessableEntity},
		{"cancel unknown", "POST", "/api/v1/orders/cancel", CancelOrderRequest{Pair: "BTC-USDT", Address: buyer, OrderID: "x"}, http.StatusNotFound},
		{"withdraw too much", "POST", "/api/v1/withdrawals", map[string]string{"address": buyer, "asset": "USDT", "amount": "11"}, http.StatusUnprocessableEntity},
		{"zero deposit", "POST", "/api/v1/deposits", map[string]string{"address": buyer, "asset": "USDT", "amount": "0"}, http.StatusBadRequest},
		{"bad trade limit", "GET", "/api/v1/pairs/BTC-USDT/trades?limit=0", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHaltPair(t *testing.T) {
	e := newTestEnv(t)
	e.deposit(t, buyer, "USDT", "100")

	rec := e.do(t, "POST", "/api/v1/pairs/BTC-USDT/status", PairStatusRequest{Status: "halted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("halt: %d %s", rec.Code, rec.Body)
	}
	rec = e.order(t, map[string]string{
		"id": "b1", "pair": "BTC-USDT", "kind": "bid_limit", "owner": buyer, "price": "10", "quantity": "1",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("order on halted pair: %d", rec.Code)
	}
	if got := e.accounts.ReservedBalance("USDT", common.HexToAddress(buyer)); !got.IsZero() {
		t.Errorf("reserved after halted reject = %s", got)
	}

	if rec := e.do(t, "POST", "/api/v1/pairs/BTC-USDT/status", PairStatusRequest{Status: "active"}); rec.Code != http.StatusOK {
		t.Fatalf("resume: %d", rec.Code)
	}
	rec = e.order(t, map[string]string{
		"id": "b1", "pair": "BTC-USDT", "kind": "bid_limit", "owner": buyer, "price": "10", "quantity": "1",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("order after resume: %d %s", rec.Code, rec.Body)
	}
}
