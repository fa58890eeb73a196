package matching

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

// Snapshot is the whole matching state: the statistics epoch and every
// book with its statistics history.
type Snapshot struct {
	Epoch uint64                   `json:"epoch"`
	Books []orderbook.BookSnapshot `json:"books"`
}

// SnapshotStore persists exchange snapshots.
type SnapshotStore interface {
	SaveSnapshot(snap Snapshot) error
	// LoadSnapshot returns nil, nil when nothing was saved yet.
	LoadSnapshot() (*Snapshot, error)
}

// Snapshot copies every book, one pair lock at a time, in symbol order.
func (ex *Exchange) Snapshot() Snapshot {
	snap := Snapshot{Epoch: ex.Epoch()}
	for _, p := range ex.registry.List() {
		ex.withBook(p.Symbol, func(b *orderbook.Book) error {
			snap.Books = append(snap.Books, b.Snapshot())
			return nil
		})
	}
	return snap
}

// Checkpoint writes the current snapshot to store.
func (ex *Exchange) Checkpoint(store SnapshotStore) error {
	snap := ex.Snapshot()
	if err := store.SaveSnapshot(snap); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	orders := 0
	for _, b := range snap.Books {
		for _, lvl := range b.Bids {
			orders += len(lvl.Orders)
		}
		for _, lvl := range b.Asks {
			orders += len(lvl.Orders)
		}
	}
	ex.logger.Info("checkpoint_saved",
		zap.Uint64("epoch", snap.Epoch),
		zap.Int("books", len(snap.Books)),
		zap.Int("orders", orders))
	return nil
}

// Restore replaces the books of registered pairs with the last checkpoint
// in store. Every book is validated before any is replaced, so a corrupt
// checkpoint leaves the exchange untouched. It returns false when the store
// holds no checkpoint.
func (ex *Exchange) Restore(store SnapshotStore) (bool, error) {
	snap, err := store.LoadSnapshot()
	if err != nil {
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
	if snap == nil {
		return false, nil
	}

	restored := make(map[string]*orderbook.Book, len(snap.Books))
	for _, bs := range snap.Books {
		if !ex.registry.Exists(bs.Pair) {
			return false, fmt.Errorf("restore %s: %w", bs.Pair, ErrUnknownPair)
		}
		b, err := orderbook.Restore(bs)
		if err != nil {
			return false, fmt.Errorf("restore %s: %w", bs.Pair, err)
		}
		restored[bs.Pair] = b
	}

	if err := ex.SetEpoch(snap.Epoch); err != nil {
		return false, fmt.Errorf("restore epoch: %w", err)
	}
	for pair, b := range restored {
		pb, _ := ex.pairBook(pair)
		pb.mu.Lock()
		pb.book = b
		pb.mu.Unlock()
		ex.metrics.bookState(b)
	}

	ex.logger.Info("checkpoint_restored", zap.Uint64("epoch", snap.Epoch), zap.Int("books", len(restored)))
	return true, nil
}
