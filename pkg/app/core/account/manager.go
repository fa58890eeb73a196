package account

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Manager is the asset ledger: free and reserved balances per account and
// asset. It satisfies the ledger capability the settlement adapter consumes.
// Thread-safe; uses an in-memory cache with optional Pebble persistence.
type Manager struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account // address -> account (in-memory cache)
	store    *Store                      // nil = memory only
	logger   *zap.Logger
}

// NewManager creates a manager backed by a Pebble database at dbPath and
// warms the cache with every persisted account.
func NewManager(dbPath string, logger *zap.Logger) (*Manager, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	am, err := NewManagerWithStore(store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return am, nil
}

// NewManagerWithStore creates a manager on an already opened store.
func NewManagerWithStore(store *Store, logger *zap.Logger) (*Manager, error) {
	am := NewMemoryManager(logger)
	am.store = store

	accs, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, acc := range accs {
		am.accounts[acc.Address] = acc
	}
	return am, nil
}

// NewMemoryManager creates a manager without persistence
func NewMemoryManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		accounts: make(map[common.Address]*Account),
		logger:   logger,
	}
}

// Close closes the underlying Pebble database
func (am *Manager) Close() error {
	if am.store == nil {
		return nil
	}
	return am.store.Close()
}

// stageLocked returns a working copy of the account at addr, or a new
// account. The cache is untouched until commitLocked (assumes lock is held)
func (am *Manager) stageLocked(addr common.Address) *Account {
	if acc, exists := am.accounts[addr]; exists {
		return acc.Clone()
	}
	return NewAccount(addr)
}

// commitLocked persists staged accounts and only then installs them in the
// cache, so a failed write changes nothing (assumes lock is held)
func (am *Manager) commitLocked(accs ...*Account) error {
	if err := am.persist(accs...); err != nil {
		return err
	}
	for _, acc := range accs {
		am.accounts[acc.Address] = acc
	}
	return nil
}

func (am *Manager) persist(accs ...*Account) error {
	if am.store == nil {
		return nil
	}
	if len(accs) == 1 {
		return am.store.SaveAccount(accs[0])
	}
	return am.store.SaveAccounts(accs...)
}

// GetAccount returns a copy of the account, or nil if it never held funds
func (am *Manager) GetAccount(addr common.Address) *Account {
	am.mu.RLock()
	defer am.mu.RUnlock()

	acc, exists := am.accounts[addr]
	if !exists {
		return nil
	}
	return acc.Clone()
}

// Deposit credits free balance (bridge / faucet)
func (am *Manager) Deposit(asset string, addr common.Address, amount fixed.Amount) error {
	if amount.IsZero() {
		return fmt.Errorf("deposit %s: %w: must be positive", asset, ErrInvalidAmount)
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	acc := am.stageLocked(addr)
	bal := acc.balance(asset)
	free, err := bal.Free.Add(amount)
	if err != nil {
		return fmt.Errorf("deposit %s: %w", asset, err)
	}
	bal.Free = free

	return am.commitLocked(acc)
}

// Withdraw debits free balance
// Returns error if insufficient free balance
func (am *Manager) Withdraw(asset string, addr common.Address, amount fixed.Amount) error {
	if amount.IsZero() {
		return fmt.Errorf("withdraw %s: %w: must be positive", asset, ErrInvalidAmount)
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	acc := am.stageLocked(addr)
	bal := acc.balance(asset)
	if bal.Free.LessThan(amount) {
		return fmt.Errorf("withdraw %s: %w: have %s, need %s (reserved: %s)", asset, ErrInsufficientBalance, bal.Free, amount, bal.Reserved)
	}
	bal.Free, _ = bal.Free.Sub(amount)

	return am.commitLocked(acc)
}

// FreeBalance returns the spendable balance of asset
func (am *Manager) FreeBalance(asset string, addr common.Address) fixed.Amount {
	am.mu.RLock()
	defer am.mu.RUnlock()

	acc, exists := am.accounts[addr]
	if !exists {
		return fixed.Zero
	}
	return acc.Balance(asset).Free
}

// ReservedBalance returns the reserved balance of asset
func (am *Manager) ReservedBalance(asset string, addr common.Address) fixed.Amount {
	am.mu.RLock()
	defer am.mu.RUnlock()

	acc, exists := am.accounts[addr]
	if !exists {
		return fixed.Zero
	}
	return acc.Balance(asset).Reserved
}

// Reserve moves amount from free to reserved
// Returns error if insufficient free balance
func (am *Manager) Reserve(asset string, addr common.Address, amount fixed.Amount) error {
	if amount.IsZero() {
		return nil // No-op for zero amount
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.accounts[addr]; !exists {
		return fmt.Errorf("reserve %s for %s: %w: account not found", asset, addr.Hex(), ErrInsufficientBalance)
	}

	acc := am.stageLocked(addr)
	bal := acc.balance(asset)
	if bal.Free.LessThan(amount) {
		return fmt.Errorf("reserve %s: %w: have %s, need %s", asset, ErrInsufficientBalance, bal.Free, amount)
	}
	reserved, err := bal.Reserved.Add(amount)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", asset, err)
	}
	bal.Free, _ = bal.Free.Sub(amount)
	bal.Reserved = reserved

	return am.commitLocked(acc)
}

// Unreserve moves up to amount from reserved back to free. Releasing more
// than is reserved only releases what is there, so it never fails. The
// cache keeps the release even if the write fails; the next successful
// write of the account stores it.
func (am *Manager) Unreserve(asset string, addr common.Address, amount fixed.Amount) {
	if amount.IsZero() {
		return
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	acc, exists := am.accounts[addr]
	if !exists {
		return
	}

	bal := acc.balance(asset)
	release := fixed.Min(amount, bal.Reserved)
	free, err := bal.Free.Add(release)
	if err != nil {
		// Free + Reserved was representable before, so this cannot happen
		// unless the balance was corrupted.
		am.logger.Error("unreserve_overflow", zap.String("asset", asset), zap.String("account", addr.Hex()), zap.Error(err))
		return
	}
	bal.Reserved, _ = bal.Reserved.Sub(release)
	bal.Free = free

	if err := am.persist(acc); err != nil {
		am.logger.Error("unreserve_persist_failed", zap.String("account", addr.Hex()), zap.Error(err))
	}
}

// Transfer moves amount of free balance between accounts
// Returns error if insufficient free balance
func (am *Manager) Transfer(asset string, from, to common.Address, amount fixed.Amount) error {
	if amount.IsZero() || from == to {
		return nil
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.accounts[from]; !exists {
		return fmt.Errorf("transfer %s from %s: %w: account not found", asset, from.Hex(), ErrInsufficientBalance)
	}
	src := am.stageLocked(from)
	srcBal := src.balance(asset)
	if srcBal.Free.LessThan(amount) {
		return fmt.Errorf("transfer %s: %w: have %s, need %s", asset, ErrInsufficientBalance, srcBal.Free, amount)
	}

	dst := am.stageLocked(to)
	dstBal := dst.balance(asset)
	credited, err := dstBal.Free.Add(amount)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", asset, err)
	}
	srcBal.Free, _ = srcBal.Free.Sub(amount)
	dstBal.Free = credited

	return am.commitLocked(src, dst)
}

// TotalIssuance sums free and reserved balances of asset over all accounts
func (am *Manager) TotalIssuance(asset string) (fixed.Amount, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	total := fixed.Zero
	for _, acc := range am.accounts {
		t, err := acc.Balance(asset).Total()
		if err != nil {
			return fixed.Zero, err
		}
		if total, err = total.Add(t); err != nil {
			return fixed.Zero, err
		}
	}
	return total, nil
}

// ListAccounts returns copies of all accounts sorted by address
func (am *Manager) ListAccounts() []*Account {
	am.mu.RLock()
	defer am.mu.RUnlock()

	accounts := make([]*Account, 0, len(am.accounts))
	for _, acc := range am.accounts {
		accounts = append(accounts, acc.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Address.Hex() < accounts[j].Address.Hex()
	})
	return accounts
}

// Count returns the total number of accounts
func (am *Manager) Count() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.accounts)
}

// ValidateAccount checks account invariants
func (am *Manager) ValidateAccount(addr common.Address) error {
	am.mu.RLock()
	defer am.mu.RUnlock()

	acc, exists := am.accounts[addr]
	if !exists {
		return fmt.Errorf("account not found: %s", addr.Hex())
	}

	return acc.Validate()
}
