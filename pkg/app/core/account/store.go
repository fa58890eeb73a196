package account

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
)

// Store provides Pebble-based persistence for accounts.
// Thread-safe: all operations go through Manager's mutex
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10, // 512KB
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// NewMemStore opens a Pebble database on an in-memory filesystem.
func NewMemStore() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAccount persists an account to Pebble
func (s *Store) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := s.db.Set(accountKey(acc.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// SaveAccounts persists several accounts in one atomic batch
func (s *Store) SaveAccounts(accs ...*Account) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, acc := range accs {
		data, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}
		if err := batch.Set(accountKey(acc.Address), data, nil); err != nil {
			return fmt.Errorf("failed to stage account: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit accounts: %w", err)
	}
	return nil
}

// LoadAccount loads an account from Pebble
// Returns nil if account doesn't exist
func (s *Store) LoadAccount(addr common.Address) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	return decodeAccount(data)
}

// LoadAll loads every persisted account
func (s *Store) LoadAll() ([]*Account, error) {
	prefix := []byte(prefixAccount)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var accs []*Account
	for iter.First(); iter.Valid(); iter.Next() {
		addr, err := accountKeyFromBytes(iter.Key())
		if err != nil {
			return nil, err
		}
		acc, err := decodeAccount(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", addr.Hex(), err)
		}
		accs = append(accs, acc)
	}

	return accs, iter.Error()
}

func decodeAccount(data []byte) (*Account, error) {
	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	// Initialize maps if nil (JSON unmarshal may leave them nil)
	if acc.Balances == nil {
		acc.Balances = make(map[string]*Balance)
	}

	return &acc, nil
}
