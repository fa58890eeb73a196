// Package marketstats keeps per-epoch low/high/volume summaries of a
// trading pair in a fixed-capacity ring.
package marketstats

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

// DefaultRetention is the number of epochs kept when no retention is configured.
const DefaultRetention = 96

// ErrStaleEpoch is returned for trades recorded against an epoch that has
// already been closed by a newer one.
var ErrStaleEpoch = errors.New("epoch already closed")

// Snapshot summarizes the trades of one epoch.
type Snapshot struct {
	Epoch  uint64       `json:"epoch"`
	Low    fixed.Amount `json:"low"`
	High   fixed.Amount `json:"high"`
	Volume fixed.Amount `json:"volume"` // base asset
	Trades uint64       `json:"trades"`
}

// History is a ring of epoch snapshots. The newest snapshot is the only
// mutable one; older ones are never touched again.
//
// Not thread-safe: the owning book serializes access.
type History struct {
	ring  []Snapshot
	start int // index of the oldest snapshot
	size  int
}

// NewHistory creates an empty history keeping at most retention epochs.
func NewHistory(retention int) *History {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &History{ring: make([]Snapshot, retention)}
}

// Capacity returns the retention window.
func (h *History) Capacity() int { return len(h.ring) }

// Len returns the number of stored snapshots.
func (h *History) Len() int { return h.size }

func (h *History) at(i int) *Snapshot {
	return &h.ring[(h.start+i)%len(h.ring)]
}

// Current returns the newest snapshot.
func (h *History) Current() (Snapshot, bool) {
	if h.size == 0 {
		return Snapshot{}, false
	}
	return *h.at(h.size - 1), true
}

// RecordTrade folds one trade into the snapshot of epoch, opening a new
// snapshot (and evicting the oldest when full) on epoch rollover.
func (h *History) RecordTrade(epoch uint64, price, qty fixed.Amount) error {
	if h.size > 0 {
		cur := h.at(h.size - 1)
		switch {
		case epoch == cur.Epoch:
			vol, err := cur.Volume.Add(qty)
			if err != nil {
				return fmt.Errorf("epoch %d volume: %w", epoch, err)
			}
			cur.Volume = vol
			if price.LessThan(cur.Low) {
				cur.Low = price
			}
			if price.GreaterThan(cur.High) {
				cur.High = price
			}
			cur.Trades++
			return nil
		case epoch < cur.Epoch:
			return fmt.Errorf("trade for epoch %d, current %d: %w", epoch, cur.Epoch, ErrStaleEpoch)
		}
	}

	h.push(Snapshot{Epoch: epoch, Low: price, High: price, Volume: qty, Trades: 1})
	return nil
}

// CheckVolume reports the error RecordTrade would return when qty more
// base volume lands in epoch. It changes nothing.
func (h *History) CheckVolume(epoch uint64, qty fixed.Amount) error {
	if h.size == 0 {
		return nil
	}
	cur := h.at(h.size - 1)
	if epoch != cur.Epoch {
		return nil
	}
	if _, err := cur.Volume.Add(qty); err != nil {
		return fmt.Errorf("epoch %d volume: %w", epoch, err)
	}
	return nil
}

func (h *History) push(s Snapshot) {
	if h.size == len(h.ring) {
		h.ring[h.start] = s
		h.start = (h.start + 1) % len(h.ring)
		return
	}
	*h.at(h.size) = s
	h.size++
}

// All returns every snapshot, oldest first.
func (h *History) All() []Snapshot {
	out := make([]Snapshot, h.size)
	for i := range out {
		out[i] = *h.at(i)
	}
	return out
}

// Latest returns up to n snapshots, newest first.
func (h *History) Latest(n int) []Snapshot {
	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]Snapshot, 0, n)
	for i := h.size - 1; i >= h.size-n; i-- {
		out = append(out, *h.at(i))
	}
	return out
}

// Restore replaces the history with snaps (oldest first), keeping only the
// newest Capacity() entries.
func (h *History) Restore(snaps []Snapshot) {
	h.start, h.size = 0, 0
	if len(snaps) > len(h.ring) {
		snaps = snaps[len(snaps)-len(h.ring):]
	}
	for _, s := range snaps {
		h.push(s)
	}
}
