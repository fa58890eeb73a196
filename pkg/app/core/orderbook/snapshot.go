package orderbook

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
	"github.com/uhyunpark/hyperspot/pkg/app/core/marketstats"
)

var ErrCorruptSnapshot = errors.New("corrupt book snapshot")

// LevelSnapshot is one price level with its orders oldest first.
type LevelSnapshot struct {
	Price  fixed.Amount `json:"price"`
	Orders []*Order     `json:"orders"`
}

// BookSnapshot is the serializable whole-book state used for checkpoints.
type BookSnapshot struct {
	Pair           string                 `json:"pair"`
	NextSeq        uint64                 `json:"nextSeq"`
	Bids           []LevelSnapshot        `json:"bids"` // best first
	Asks           []LevelSnapshot        `json:"asks"` // best first
	StatsRetention int                    `json:"statsRetention"`
	Stats          []marketstats.Snapshot `json:"stats"` // oldest first
}

// Snapshot copies the book. The returned orders do not alias the book.
func (b *Book) Snapshot() BookSnapshot {
	return BookSnapshot{
		Pair:           b.pair,
		NextSeq:        b.nextSeq,
		Bids:           snapshotSide(b.bids),
		Asks:           snapshotSide(b.asks),
		StatsRetention: b.stats.Capacity(),
		Stats:          b.stats.All(),
	}
}

func snapshotSide(idx *PriceIndex) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, idx.Len())
	idx.Ascend(func(lvl *PriceLevel) bool {
		ls := LevelSnapshot{Price: lvl.Price, Orders: make([]*Order, 0, lvl.Len())}
		lvl.Each(func(o *Order) bool {
			cp := *o
			cp.level, cp.next, cp.prev = nil, nil, nil
			ls.Orders = append(ls.Orders, &cp)
			return true
		})
		out = append(out, ls)
		return true
	})
	return out
}

// Restore rebuilds a book from snap, checking the invariants a live book
// keeps: no empty level, orders on the right side and price, unique ids,
// sequence numbers below NextSeq and no crossed state.
func Restore(snap BookSnapshot) (*Book, error) {
	b := NewBook(snap.Pair, snap.StatsRetention)
	if snap.NextSeq > 0 {
		b.nextSeq = snap.NextSeq
	}

	for _, side := range []struct {
		side   Side
		levels []LevelSnapshot
	}{{Bid, snap.Bids}, {Ask, snap.Asks}} {
		for _, ls := range side.levels {
			if len(ls.Orders) == 0 {
				return nil, fmt.Errorf("%w: empty %s level %s", ErrCorruptSnapshot, side.side, ls.Price)
			}
			for _, o := range ls.Orders {
				if o == nil || o.Side() != side.side || !o.Price.Equal(ls.Price) {
					return nil, fmt.Errorf("%w: misplaced order at %s level %s", ErrCorruptSnapshot, side.side, ls.Price)
				}
				if o.Seq >= b.nextSeq {
					return nil, fmt.Errorf("%w: order %s seq %d >= next %d", ErrCorruptSnapshot, o.ID, o.Seq, b.nextSeq)
				}
				cp := *o
				cp.Pair = snap.Pair
				if err := b.Insert(&cp); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
				}
			}
		}
	}

	if b.Crossed() {
		return nil, fmt.Errorf("%w: crossed book", ErrCorruptSnapshot)
	}
	b.stats.Restore(snap.Stats)
	return b, nil
}
