// Package storage persists matching state in Pebble: whole-book checkpoints
// and the per-pair trade history.
package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// NewMemPebbleStore opens a store on an in-memory filesystem.
func NewMemPebbleStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

var _ matching.SnapshotStore = (*PebbleStore)(nil)

// ============================================================================
// Checkpoints
// ============================================================================

// SaveSnapshot replaces the stored checkpoint with snap in one atomic batch.
// Books absent from snap are deleted.
func (s *PebbleStore) SaveSnapshot(snap matching.Snapshot) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	prefix := []byte(prefixBook)
	if err := batch.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return fmt.Errorf("failed to clear books: %w", err)
	}
	for _, b := range snap.Books {
		val, err := encodeJSON(b)
		if err != nil {
			return err
		}
		if err := batch.Set(bookKey(b.Pair), val, nil); err != nil {
			return fmt.Errorf("failed to stage book %s: %w", b.Pair, err)
		}
	}
	if err := batch.Set([]byte(keyCheckpointEpo), encodeUint64(snap.Epoch), nil); err != nil {
		return fmt.Errorf("failed to stage epoch: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored checkpoint, or nil if none was saved.
func (s *PebbleStore) LoadSnapshot() (*matching.Snapshot, error) {
	val, closer, err := s.db.Get([]byte(keyCheckpointEpo))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint epoch: %w", err)
	}
	epoch, err := decodeUint64(val)
	closer.Close()
	if err != nil {
		return nil, fmt.Errorf("checkpoint epoch: %w", err)
	}

	snap := &matching.Snapshot{Epoch: epoch}
	prefix := []byte(prefixBook)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var b orderbook.BookSnapshot
		if err := decodeJSON(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("book %s: %w", iter.Key()[len(prefix):], err)
		}
		snap.Books = append(snap.Books, b)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return snap, nil
}

// ============================================================================
// Trade History
// ============================================================================

// SaveTrade persists a trade to Pebble
func (s *PebbleStore) SaveTrade(trade matching.Trade) error {
	data, err := encodeJSON(trade)
	if err != nil {
		return err
	}

	key := tradeKey(trade.Pair, trade.Seq)
	if err := s.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}

	return nil
}

// LoadRecentTrades loads the most recent limit trades of a pair, newest first
func (s *PebbleStore) LoadRecentTrades(pair string, limit int) ([]matching.Trade, error) {
	prefix := tradePrefix(pair)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	trades := []matching.Trade{}
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var trade matching.Trade
		if err := decodeJSON(iter.Value(), &trade); err != nil {
			continue // Skip invalid entries
		}
		trades = append(trades, trade)
	}

	return trades, iter.Error()
}

// PruneTrades deletes all but the newest keep trades of a pair.
func (s *PebbleStore) PruneTrades(pair string, keep int) (int, error) {
	prefix := tradePrefix(pair)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open iterator: %w", err)
	}

	var cut []byte
	n := 0
	for iter.Last(); iter.Valid(); iter.Prev() {
		n++
		if n == keep+1 {
			cut = append([]byte(nil), iter.Key()...)
			break
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if cut == nil {
		return 0, nil
	}

	// Count what goes before deleting it.
	iter, err = s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: append(cut, 0)})
	if err != nil {
		return 0, fmt.Errorf("failed to open iterator: %w", err)
	}
	pruned := 0
	for iter.First(); iter.Valid(); iter.Next() {
		pruned++
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	if err := s.db.DeleteRange(prefix, append(cut, 0), pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to prune trades: %w", err)
	}
	return pruned, nil
}
