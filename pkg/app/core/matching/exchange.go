// Package matching is the exchange core: one order book per trading pair,
// price-time priority matching at the maker's price and fail-closed
// settlement of every fill through the settlement adapter.
//
// Operations on one pair are applied strictly sequentially under that
// pair's lock. Different pairs match concurrently; they only meet in the
// settlement adapter, which serializes ledger access.
package matching

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/marketstats"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperspot/pkg/app/core/settlement"
)

// Config tunes an Exchange. The zero value is usable.
type Config struct {
	// StatsRetention is the number of epochs of statistics kept per pair.
	StatsRetention int
	Logger         *zap.Logger
	Metrics        *Metrics
}

// pairBook is one book and the lock that serializes its operations.
type pairBook struct {
	mu   sync.Mutex
	book *orderbook.Book
}

// Exchange owns the pair registry and one order book per registered pair.
type Exchange struct {
	registry *market.Registry
	adapter  *settlement.Adapter
	logger   *zap.Logger
	metrics  *Metrics

	statsRetention int
	epoch          atomic.Uint64

	mu    sync.RWMutex
	books map[string]*pairBook

	// OnTrade, if set, receives every committed trade of a pair in Seq
	// order. It is called with the pair lock held and must not call back
	// into the exchange. Set it before trading starts.
	OnTrade func(Trade)
}

// NewExchange creates an exchange settling against ledger.
func NewExchange(ledger settlement.Ledger, cfg Config) *Exchange {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retention := cfg.StatsRetention
	if retention <= 0 {
		retention = marketstats.DefaultRetention
	}
	return &Exchange{
		registry:       market.NewRegistry(),
		adapter:        settlement.NewAdapter(ledger, logger.Named("settlement")),
		logger:         logger,
		metrics:        cfg.Metrics,
		statsRetention: retention,
		books:          make(map[string]*pairBook),
	}
}

// Registry exposes the pair registry, e.g. to halt a pair.
func (ex *Exchange) Registry() *market.Registry { return ex.registry }

// AddPair registers p and creates its empty book.
func (ex *Exchange) AddPair(p market.Pair) error {
	if err := ex.registry.Register(&p); err != nil {
		return err
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.books[p.Symbol] = &pairBook{book: orderbook.NewBook(p.Symbol, ex.statsRetention)}

	ex.logger.Info("pair_added",
		zap.String("pair", p.Symbol),
		zap.String("base", p.BaseAsset),
		zap.String("quote", p.QuoteAsset))
	return nil
}

// Pairs lists the registered pairs sorted by symbol.
func (ex *Exchange) Pairs() []market.Pair { return ex.registry.List() }

func (ex *Exchange) pairBook(symbol string) (*pairBook, bool) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	pb, ok := ex.books[symbol]
	return pb, ok
}

// withBook runs fn holding the lock of symbol's book.
func (ex *Exchange) withBook(symbol string, fn func(b *orderbook.Book) error) error {
	pb, ok := ex.pairBook(symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, symbol)
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return fn(pb.book)
}

// Epoch returns the current statistics epoch.
func (ex *Exchange) Epoch() uint64 { return ex.epoch.Load() }

// AdvanceEpoch closes the current epoch and returns the new one.
func (ex *Exchange) AdvanceEpoch() uint64 { return ex.epoch.Add(1) }

// SetEpoch moves the epoch forward to e (e.g. a block height). Epochs never
// move backwards.
func (ex *Exchange) SetEpoch(e uint64) error {
	for {
		cur := ex.epoch.Load()
		if e < cur {
			return fmt.Errorf("%w: epoch %d < current %d", marketstats.ErrStaleEpoch, e, cur)
		}
		if ex.epoch.CompareAndSwap(cur, e) {
			return nil
		}
	}
}

// CancelOrder withdraws the resting order id of owner and releases its
// remaining reservation in full.
func (ex *Exchange) CancelOrder(id string, owner common.Address, pair string) (ReleasedReservation, error) {
	p, err := ex.registry.Get(pair)
	if err != nil {
		return ReleasedReservation{}, fmt.Errorf("%w: %s/%s: unknown pair", ErrNotFound, pair, id)
	}

	var released ReleasedReservation
	err = ex.withBook(pair, func(b *orderbook.Book) error {
		o, ok := b.Lookup(id)
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, pair, id)
		}
		if o.Owner != owner {
			return fmt.Errorf("%w: %s/%s", ErrNotOwner, pair, id)
		}
		b.Remove(id)

		asset := p.BaseAsset
		if o.Side() == orderbook.Bid {
			asset = p.QuoteAsset
		}
		ex.adapter.Release(asset, o.Owner, o.Reserved)

		released = ReleasedReservation{OrderID: id, Asset: asset, Amount: o.Reserved, Remaining: o.Quantity}
		ex.metrics.bookState(b)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownPair) {
			err = fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		ex.logger.Debug("cancel_rejected", zap.String("pair", pair), zap.String("order", id), zap.Error(err))
		return ReleasedReservation{}, err
	}

	ex.metrics.orderCancelled(pair)
	ex.logger.Debug("order_cancelled",
		zap.String("pair", pair),
		zap.String("order", id),
		zap.String("asset", released.Asset),
		zap.Stringer("released", released.Amount))
	return released, nil
}

// BestBid returns the highest resting bid price of pair.
func (ex *Exchange) BestBid(pair string) (price fixed.Amount, ok bool) {
	ex.withBook(pair, func(b *orderbook.Book) error {
		price, ok = b.BestBid()
		return nil
	})
	return price, ok
}

// BestAsk returns the lowest resting ask price of pair.
func (ex *Exchange) BestAsk(pair string) (price fixed.Amount, ok bool) {
	ex.withBook(pair, func(b *orderbook.Book) error {
		price, ok = b.BestAsk()
		return nil
	})
	return price, ok
}

// SnapshotTopLevels aggregates up to depth price levels per side, best
// first. depth <= 0 returns every level.
func (ex *Exchange) SnapshotTopLevels(pair string, depth int) (bids, asks []orderbook.LevelSummary, err error) {
	err = ex.withBook(pair, func(b *orderbook.Book) error {
		var derr error
		bids, asks, derr = b.Depth(depth)
		if derr != nil {
			return fmt.Errorf("%w: %v", ErrArithmeticOverflow, derr)
		}
		return nil
	})
	return bids, asks, err
}

// Statistics returns the newest n epoch snapshots of pair, newest first.
// n <= 0 returns the whole retained history.
func (ex *Exchange) Statistics(pair string, n int) ([]marketstats.Snapshot, error) {
	var out []marketstats.Snapshot
	err := ex.withBook(pair, func(b *orderbook.Book) error {
		if n <= 0 {
			n = b.Stats().Len()
		}
		out = b.Stats().Latest(n)
		return nil
	})
	return out, err
}

// Order returns a copy of the resting order id of pair.
func (ex *Exchange) Order(pair, id string) (orderbook.Order, bool) {
	var (
		cp    orderbook.Order
		found bool
	)
	ex.withBook(pair, func(b *orderbook.Book) error {
		if o, ok := b.Lookup(id); ok {
			cp = copyOrder(o)
			found = true
		}
		return nil
	})
	return cp, found
}

// OpenOrders returns copies of owner's resting orders on pair, oldest first.
func (ex *Exchange) OpenOrders(pair string, owner common.Address) ([]orderbook.Order, error) {
	var out []orderbook.Order
	err := ex.withBook(pair, func(b *orderbook.Book) error {
		for _, side := range []orderbook.Side{orderbook.Bid, orderbook.Ask} {
			b.Index(side).Ascend(func(lvl *orderbook.PriceLevel) bool {
				lvl.Each(func(o *orderbook.Order) bool {
					if o.Owner == owner {
						out = append(out, copyOrder(o))
					}
					return true
				})
				return true
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, err
}

// copyOrder returns o without its queue links.
func copyOrder(o *orderbook.Order) orderbook.Order {
	return orderbook.Order{
		ID:       o.ID,
		Pair:     o.Pair,
		Kind:     o.Kind,
		Owner:    o.Owner,
		Price:    o.Price,
		Quantity: o.Quantity,
		Reserved: o.Reserved,
		Seq:      o.Seq,
	}
}
