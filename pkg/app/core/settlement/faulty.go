package settlement

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

// ErrInjected is the failure produced by a FaultyLedger.
var ErrInjected = errors.New("injected transfer failure")

// FaultyLedger wraps a Ledger and fails exactly one transfer: the FailAt-th
// call to Transfer (1-based). FailAt <= 0 never fails. Used to exercise
// settlement unwinding.
type FaultyLedger struct {
	Ledger
	FailAt int

	mu        sync.Mutex
	transfers int
}

func NewFaultyLedger(inner Ledger, failAt int) *FaultyLedger {
	return &FaultyLedger{Ledger: inner, FailAt: failAt}
}

func (f *FaultyLedger) Transfer(asset string, from, to common.Address, amount fixed.Amount) error {
	f.mu.Lock()
	f.transfers++
	fail := f.transfers == f.FailAt
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}
	return f.Ledger.Transfer(asset, from, to, amount)
}

// Transfers returns how many transfers were attempted.
func (f *FaultyLedger) Transfers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers
}
