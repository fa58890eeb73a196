package account

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

// Balance of one asset held by an account.
// Free is spendable; Reserved is earmarked for open orders.
type Balance struct {
	Free     fixed.Amount `json:"free"`
	Reserved fixed.Amount `json:"reserved"`
}

// Total returns Free + Reserved.
func (b Balance) Total() (fixed.Amount, error) {
	return b.Free.Add(b.Reserved)
}

// Account is a ledger account keyed by an EVM-style address.
type Account struct {
	Address  common.Address      `json:"address"`
	Balances map[string]*Balance `json:"balances"` // asset -> balance
}

// NewAccount creates an account with no balances
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:  addr,
		Balances: make(map[string]*Balance),
	}
}

// Balance returns the balance of asset (zero if the account never held it).
func (a *Account) Balance(asset string) Balance {
	if b, ok := a.Balances[asset]; ok {
		return *b
	}
	return Balance{}
}

// balance returns a mutable balance, creating it on first use.
func (a *Account) balance(asset string) *Balance {
	b, ok := a.Balances[asset]
	if !ok {
		b = &Balance{}
		a.Balances[asset] = b
	}
	return b
}

// Assets returns the held assets in lexical order.
func (a *Account) Assets() []string {
	assets := make([]string, 0, len(a.Balances))
	for asset := range a.Balances {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// Clone returns a deep copy, safe to hand out of the manager lock.
func (a *Account) Clone() *Account {
	cp := NewAccount(a.Address)
	for asset, b := range a.Balances {
		v := *b
		cp.Balances[asset] = &v
	}
	return cp
}

// Validate checks account invariants
func (a *Account) Validate() error {
	for asset, b := range a.Balances {
		if b == nil {
			return fmt.Errorf("nil balance for %s", asset)
		}
		if _, err := b.Total(); err != nil {
			return fmt.Errorf("balance %s: %w", asset, err)
		}
	}
	return nil
}
