package matching

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

// OrderRequest is an order as submitted by a client.
type OrderRequest struct {
	ID    string         `json:"id"`
	Pair  string         `json:"pair"`
	Kind  orderbook.Kind `json:"kind"`
	Owner common.Address `json:"owner"`

	// Price is the limit price; ignored for market orders.
	Price fixed.Amount `json:"price"`
	// Quantity is the base amount. Optional for BidMarket, where it caps
	// the base bought.
	Quantity fixed.Amount `json:"quantity"`
	// SpendBudget is the quote a BidMarket order may spend.
	SpendBudget fixed.Amount `json:"spendBudget"`
}

// State is the terminal state of a submitted order.
type State int8

const (
	Resting     State = iota + 1 // limit remainder rests in the book
	Exhausted                    // stopped with a remainder that was discarded
	FullyFilled                  // nothing left to execute
)

func (s State) String() string {
	switch s {
	case Resting:
		return "resting"
	case Exhausted:
		return "exhausted"
	case FullyFilled:
		return "filled"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Trade is one executed fill, always at the maker's price.
type Trade struct {
	Seq          uint64         `json:"seq"`
	Pair         string         `json:"pair"`
	Epoch        uint64         `json:"epoch"`
	MakerOrderID string         `json:"makerOrderId"`
	TakerOrderID string         `json:"takerOrderId"`
	Maker        common.Address `json:"maker"`
	Taker        common.Address `json:"taker"`
	TakerSide    orderbook.Side `json:"takerSide"`
	Price        fixed.Amount   `json:"price"`
	Quantity     fixed.Amount   `json:"quantity"`
	QuoteAmount  fixed.Amount   `json:"quoteAmount"`
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade{%s #%d taker=%s maker=%s qty=%s @ %s}", t.Pair, t.Seq, t.TakerOrderID, t.MakerOrderID, t.Quantity, t.Price)
}

// SubmitOutcome is the result of a successful submission.
type SubmitOutcome struct {
	OrderID string  `json:"orderId"`
	State   State   `json:"state"`
	Trades  []Trade `json:"trades"`

	// RestingID is set when State is Resting.
	RestingID string `json:"restingId,omitempty"`
	// Filled is the base quantity executed.
	Filled fixed.Amount `json:"filled"`
	// Remaining is the base quantity left unexecuted: resting for limit
	// orders, discarded for market orders.
	Remaining fixed.Amount `json:"remaining"`
	// Released is the part of the taker's reservation returned to the
	// owner when the order stopped executing.
	Released fixed.Amount `json:"released"`
}

// ReleasedReservation describes the funds returned by a cancellation.
type ReleasedReservation struct {
	OrderID   string       `json:"orderId"`
	Asset     string       `json:"asset"`
	Amount    fixed.Amount `json:"amount"`
	Remaining fixed.Amount `json:"remaining"` // base quantity that was still resting
}
