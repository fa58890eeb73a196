package orderbook

import (
	"github.com/google/btree"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

// btreeDegree is the node degree of the per-side price tree.
const btreeDegree = 32

// PriceIndex is one side of a book: price levels ordered so that the tree
// minimum is always the best price (highest bid, lowest ask).
//
// Outside this package an index is read-only. Mutations go through the
// Book so its order locations stay in step.
type PriceIndex struct {
	side   Side
	tree   *btree.BTreeG[*PriceLevel]
	orders int
}

// NewPriceIndex creates an empty index for side.
func NewPriceIndex(side Side) *PriceIndex {
	less := func(a, b *PriceLevel) bool { return a.Price.LessThan(b.Price) }
	if side == Bid {
		less = func(a, b *PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	}
	return &PriceIndex{
		side: side,
		tree: btree.NewG[*PriceLevel](btreeDegree, less),
	}
}

func (idx *PriceIndex) Side() Side { return idx.side }

// Len returns the number of distinct price levels.
func (idx *PriceIndex) Len() int { return idx.tree.Len() }

// Orders returns the number of resting orders across all levels.
func (idx *PriceIndex) Orders() int { return idx.orders }

// Best returns the best price level, or nil if the side is empty.
func (idx *PriceIndex) Best() *PriceLevel {
	lvl, ok := idx.tree.Min()
	if !ok {
		return nil
	}
	return lvl
}

// popBest removes and returns the whole best price level. The book drops
// the locations of its orders.
func (idx *PriceIndex) popBest() *PriceLevel {
	lvl, ok := idx.tree.DeleteMin()
	if !ok {
		return nil
	}
	idx.orders -= lvl.Len()
	return lvl
}

// Level returns the level at price, or nil.
func (idx *PriceIndex) Level(price fixed.Amount) *PriceLevel {
	lvl, ok := idx.tree.Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return lvl
}

// insert appends o to the FIFO tail of its price level, creating the level
// when absent.
func (idx *PriceIndex) insert(o *Order) {
	lvl := idx.Level(o.Price)
	if lvl == nil {
		lvl = newPriceLevel(o.Price)
		idx.tree.ReplaceOrInsert(lvl)
	}
	lvl.PushBack(o)
	idx.orders++
}

// remove unlinks the order id resting at price. An emptied level is
// deleted from the tree in the same step.
func (idx *PriceIndex) remove(id string, price fixed.Amount) (*Order, bool) {
	lvl := idx.Level(price)
	if lvl == nil {
		return nil, false
	}
	o := lvl.find(id)
	if o == nil {
		return nil, false
	}
	lvl.unlink(o)
	idx.orders--
	if lvl.Len() == 0 {
		idx.tree.Delete(lvl)
	}
	return o, true
}

// popBestOrder removes the oldest order of the best level.
func (idx *PriceIndex) popBestOrder() *Order {
	lvl := idx.Best()
	if lvl == nil {
		return nil
	}
	o := lvl.PopFront()
	idx.orders--
	if lvl.Len() == 0 {
		idx.tree.Delete(lvl)
	}
	return o
}

// Ascend visits levels in priority order (best first) until fn returns false.
func (idx *PriceIndex) Ascend(fn func(lvl *PriceLevel) bool) {
	idx.tree.Ascend(func(lvl *PriceLevel) bool { return fn(lvl) })
}
