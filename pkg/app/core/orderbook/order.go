package orderbook

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

type Side int8

const (
	Bid Side = 1
	Ask Side = -1
)

func (s Side) Opposite() Side { return -s }

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "bid", "buy":
		*s = Bid
	case "ask", "sell":
		*s = Ask
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// Kind is the side×type tag of an order.
type Kind int8

const (
	BidLimit Kind = iota + 1
	BidMarket
	AskLimit
	AskMarket
)

func (k Kind) Valid() bool { return k >= BidLimit && k <= AskMarket }

func (k Kind) Side() Side {
	if k == BidLimit || k == BidMarket {
		return Bid
	}
	return Ask
}

func (k Kind) IsMarket() bool { return k == BidMarket || k == AskMarket }

func (k Kind) String() string {
	switch k {
	case BidLimit:
		return "bid_limit"
	case BidMarket:
		return "bid_market"
	case AskLimit:
		return "ask_limit"
	case AskMarket:
		return "ask_market"
	default:
		return "unknown"
	}
}

// ParseKind accepts the String() form of a kind, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for k := BidLimit; k <= AskMarket; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown order kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Order is a single order of one trading pair. While it rests in a book it
// is owned by the FIFO queue of its price level.
type Order struct {
	ID    string         `json:"id"`
	Pair  string         `json:"pair"`
	Kind  Kind           `json:"kind"`
	Owner common.Address `json:"owner"`

	// Price is the limit price.
	Price fixed.Amount `json:"price"`

	// Quantity is the remaining base quantity.
	Quantity fixed.Amount `json:"quantity"`

	// Reserved is the part of the owner's reservation still held by this
	// order: quote for bids, base for asks.
	Reserved fixed.Amount `json:"reserved"`

	Seq uint64 `json:"seq"` // arrival sequence within the book

	level      *PriceLevel
	next, prev *Order
}

func (o *Order) Side() Side { return o.Kind.Side() }

func (o *Order) String() string {
	return fmt.Sprintf("Order{ID=%s, Kind=%s, Price=%s, Qty=%s, Seq=%d}", o.ID, o.Kind, o.Price, o.Quantity, o.Seq)
}
