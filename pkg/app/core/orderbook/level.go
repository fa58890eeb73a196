package orderbook

import (
	"fmt"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

// PriceLevel holds the resting orders at one price in arrival order.
type PriceLevel struct {
	Price fixed.Amount

	head, tail *Order
	byID       map[string]*Order
}

func newPriceLevel(price fixed.Amount) *PriceLevel {
	return &PriceLevel{Price: price, byID: make(map[string]*Order)}
}

// Len returns the number of orders queued at this price.
func (lvl *PriceLevel) Len() int { return len(lvl.byID) }

// Front returns the oldest order, or nil.
func (lvl *PriceLevel) Front() *Order { return lvl.head }

// PushBack appends o at the tail of the queue.
func (lvl *PriceLevel) PushBack(o *Order) {
	o.level = lvl
	o.prev, o.next = lvl.tail, nil
	if lvl.tail != nil {
		lvl.tail.next = o
	} else {
		lvl.head = o
	}
	lvl.tail = o
	lvl.byID[o.ID] = o
}

// PopFront removes and returns the oldest order, or nil.
func (lvl *PriceLevel) PopFront() *Order {
	o := lvl.head
	if o == nil {
		return nil
	}
	lvl.unlink(o)
	return o
}

func (lvl *PriceLevel) find(id string) *Order { return lvl.byID[id] }

func (lvl *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		lvl.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		lvl.tail = o.prev
	}
	delete(lvl.byID, o.ID)
	o.next, o.prev, o.level = nil, nil, nil
}

// Each visits the orders oldest first until fn returns false.
func (lvl *PriceLevel) Each(fn func(o *Order) bool) {
	for o := lvl.head; o != nil; o = o.next {
		if !fn(o) {
			return
		}
	}
}

// Orders returns the queued orders, oldest first.
func (lvl *PriceLevel) Orders() []*Order {
	out := make([]*Order, 0, lvl.Len())
	lvl.Each(func(o *Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

// TotalQty sums the remaining quantity of every order at this price.
func (lvl *PriceLevel) TotalQty() (fixed.Amount, error) {
	total := fixed.Zero
	var err error
	lvl.Each(func(o *Order) bool {
		total, err = total.Add(o.Quantity)
		return err == nil
	})
	return total, err
}

func (lvl *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%s, Orders=%d}", lvl.Price, lvl.Len())
}
