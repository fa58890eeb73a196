package api

import (
	"github.com/uhyunpark/hyperspot/pkg/app/core/account"
	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
	"github.com/uhyunpark/hyperspot/pkg/app/core/marketstats"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

// API request and response types for the REST endpoints.
// Amounts are decimal strings, e.g. "0.015".

// ==============================
// REST Response Types
// ==============================

// PairInfo represents a trading pair
type PairInfo struct {
	Symbol     string `json:"symbol"`     // e.g., "BTC-USDT"
	BaseAsset  string `json:"baseAsset"`  // e.g., "BTC"
	QuoteAsset string `json:"quoteAsset"` // e.g., "USDT"
	Status     string `json:"status"`     // "Active", "Halted"
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Symbol    string                   `json:"symbol"`
	Epoch     uint64                   `json:"epoch"`
	Bids      []orderbook.LevelSummary `json:"bids"`      // Sorted high to low
	Asks      []orderbook.LevelSummary `json:"asks"`      // Sorted low to high
	Timestamp int64                    `json:"timestamp"` // Unix milliseconds
}

// BestPrices holds the top of book; a missing side is omitted.
type BestPrices struct {
	Symbol  string        `json:"symbol"`
	BestBid *fixed.Amount `json:"bestBid,omitempty"`
	BestAsk *fixed.Amount `json:"bestAsk,omitempty"`
}

// StatsResponse lists epoch statistics, newest first
type StatsResponse struct {
	Symbol string                 `json:"symbol"`
	Epoch  uint64                 `json:"epoch"` // current epoch
	Stats  []marketstats.Snapshot `json:"stats"`
}

// AccountInfo represents account balances per asset
type AccountInfo struct {
	Address  string                     `json:"address"`
	Balances map[string]account.Balance `json:"balances"`
}

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders
type SubmitOrderRequest struct {
	ID          string         `json:"id"`
	Pair        string         `json:"pair"`
	Kind        orderbook.Kind `json:"kind"`  // "bid_limit", "bid_market", "ask_limit", "ask_market"
	Owner       string         `json:"owner"` // Ethereum address
	Price       fixed.Amount   `json:"price"`
	Quantity    fixed.Amount   `json:"quantity"`
	SpendBudget fixed.Amount   `json:"spendBudget"` // bid_market only
}

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	Status string `json:"status"` // "accepted"
	*matching.SubmitOutcome
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel
type CancelOrderRequest struct {
	Pair    string `json:"pair"`
	Address string `json:"address"` // Order owner
	OrderID string `json:"orderId"`
}

// TransferRequest is the payload for POST /api/v1/deposits and /withdrawals
type TransferRequest struct {
	Address string       `json:"address"`
	Asset   string       `json:"asset"`
	Amount  fixed.Amount `json:"amount"`
}

// PairStatusRequest is the payload for POST /api/v1/pairs/{pair}/status
type PairStatusRequest struct {
	Status string `json:"status"` // "active" or "halted"
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
