// Package orderbook holds the resting orders of one trading pair: a price
// index per side, an order-location index for cancellation and the pair's
// statistics history.
//
// A Book is not thread-safe. Callers apply operations on one book strictly
// sequentially (the matching engine holds a per-pair lock).
package orderbook

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
	"github.com/uhyunpark/hyperspot/pkg/app/core/marketstats"
)

var (
	ErrDuplicateOrder = errors.New("duplicate order id")
	ErrEmptyOrder     = errors.New("order has no remaining quantity")
	ErrMarketOrder    = errors.New("market orders cannot rest")
)

// location is a non-owning pointer from an order id to its queue.
type location struct {
	side  Side
	price fixed.Amount
}

// LevelSummary is the aggregated view of one price level.
type LevelSummary struct {
	Price    fixed.Amount `json:"price"`
	Quantity fixed.Amount `json:"quantity"`
	Orders   int          `json:"orders"`
}

type Book struct {
	pair      string
	bids      *PriceIndex
	asks      *PriceIndex
	locations map[string]location
	stats     *marketstats.History
	nextSeq   uint64
}

// NewBook creates an empty book keeping statsRetention epochs of statistics.
func NewBook(pair string, statsRetention int) *Book {
	return &Book{
		pair:      pair,
		bids:      NewPriceIndex(Bid),
		asks:      NewPriceIndex(Ask),
		locations: make(map[string]location),
		stats:     marketstats.NewHistory(statsRetention),
		nextSeq:   1,
	}
}

func (b *Book) Pair() string { return b.pair }

// Index returns the price index of side.
func (b *Book) Index(side Side) *PriceIndex {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// Opposite returns the index an incoming order of side matches against.
func (b *Book) Opposite(side Side) *PriceIndex { return b.Index(side.Opposite()) }

func (b *Book) Stats() *marketstats.History { return b.stats }

// NextSeq hands out the next arrival sequence number.
func (b *Book) NextSeq() uint64 {
	seq := b.nextSeq
	b.nextSeq++
	return seq
}

// Has reports whether an order with id is resting.
func (b *Book) Has(id string) bool {
	_, ok := b.locations[id]
	return ok
}

// OrderCount returns the number of resting orders on both sides.
func (b *Book) OrderCount() int { return len(b.locations) }

// Insert rests o at the tail of its price level.
func (b *Book) Insert(o *Order) error {
	if o.Kind.IsMarket() {
		return fmt.Errorf("insert %s: %w", o.ID, ErrMarketOrder)
	}
	if o.Quantity.IsZero() {
		return fmt.Errorf("insert %s: %w", o.ID, ErrEmptyOrder)
	}
	if b.Has(o.ID) {
		return fmt.Errorf("insert %s: %w", o.ID, ErrDuplicateOrder)
	}
	b.Index(o.Side()).insert(o)
	b.locations[o.ID] = location{side: o.Side(), price: o.Price}
	return nil
}

// Lookup returns the resting order id.
func (b *Book) Lookup(id string) (*Order, bool) {
	loc, ok := b.locations[id]
	if !ok {
		return nil, false
	}
	lvl := b.Index(loc.side).Level(loc.price)
	if lvl == nil {
		return nil, false
	}
	o := lvl.find(id)
	return o, o != nil
}

// Remove takes the resting order id out of the book.
func (b *Book) Remove(id string) (*Order, bool) {
	loc, ok := b.locations[id]
	if !ok {
		return nil, false
	}
	o, ok := b.Index(loc.side).remove(id, loc.price)
	if !ok {
		return nil, false
	}
	delete(b.locations, id)
	return o, true
}

// PopBest removes the oldest order at the best price of side.
func (b *Book) PopBest(side Side) *Order {
	o := b.Index(side).popBestOrder()
	if o != nil {
		delete(b.locations, o.ID)
	}
	return o
}

// PopBestLevel removes the whole best price level of side. Its orders are
// no longer addressable by id.
func (b *Book) PopBestLevel(side Side) *PriceLevel {
	lvl := b.Index(side).popBest()
	if lvl == nil {
		return nil
	}
	lvl.Each(func(o *Order) bool {
		delete(b.locations, o.ID)
		return true
	})
	return lvl
}

func (b *Book) BestBid() (fixed.Amount, bool) { return best(b.bids) }
func (b *Book) BestAsk() (fixed.Amount, bool) { return best(b.asks) }

func best(idx *PriceIndex) (fixed.Amount, bool) {
	lvl := idx.Best()
	if lvl == nil {
		return fixed.Zero, false
	}
	return lvl.Price, true
}

// Crossed reports whether best bid >= best ask. Never true between
// operations.
func (b *Book) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && bid.GreaterOrEqual(ask)
}

// Depth aggregates up to depth levels per side, best first. depth <= 0
// returns every level.
func (b *Book) Depth(depth int) (bids, asks []LevelSummary, err error) {
	if bids, err = summarize(b.bids, depth); err != nil {
		return nil, nil, err
	}
	if asks, err = summarize(b.asks, depth); err != nil {
		return nil, nil, err
	}
	return bids, asks, nil
}

func summarize(idx *PriceIndex, depth int) ([]LevelSummary, error) {
	out := []LevelSummary{}
	var err error
	idx.Ascend(func(lvl *PriceLevel) bool {
		if depth > 0 && len(out) == depth {
			return false
		}
		var qty fixed.Amount
		if qty, err = lvl.TotalQty(); err != nil {
			err = fmt.Errorf("level %s: %w", lvl.Price, err)
			return false
		}
		out = append(out, LevelSummary{Price: lvl.Price, Quantity: qty, Orders: lvl.Len()})
		return true
	})
	return out, err
}
