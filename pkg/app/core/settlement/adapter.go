// Package settlement moves funds between the counterparties of a fill.
//
// The matching engine never touches balances directly. It reserves the
// taker's funds through an Adapter before matching, settles each fill as a
// Leg and releases whatever reservation is left when the order stops
// executing. Settlement of a batch is all-or-nothing: a failing leg undoes
// every leg of the batch before the error is returned.
package settlement

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSettlement          = errors.New("settlement failed")
)

// Ledger is the balance store the adapter settles against.
type Ledger interface {
	// Reserve moves amount from free to reserved or fails leaving both untouched.
	Reserve(asset string, account common.Address, amount fixed.Amount) error
	// Unreserve moves up to amount from reserved back to free.
	Unreserve(asset string, account common.Address, amount fixed.Amount)
	// Transfer moves free balance between accounts or fails leaving both untouched.
	Transfer(asset string, from, to common.Address, amount fixed.Amount) error
}

// Leg is the balance movement of one fill. Quote moves buyer -> seller and
// base moves seller -> buyer.
type Leg struct {
	Pair         string
	BaseAsset    string
	QuoteAsset   string
	MakerOrderID string
	TakerOrderID string

	Buyer  common.Address
	Seller common.Address

	Price       fixed.Amount // execution (maker) price
	Quantity    fixed.Amount // base
	QuoteAmount fixed.Amount // quote paid by the buyer

	// BuyerRelease is the part of the buyer's quote reservation this fill
	// consumes. It may exceed QuoteAmount when a bid executes below its
	// limit; the difference returns to the buyer's free balance.
	BuyerRelease fixed.Amount
	// SellerRelease is the part of the seller's base reservation this fill
	// consumes.
	SellerRelease fixed.Amount
}

func (l Leg) String() string {
	return fmt.Sprintf("Leg{%s maker=%s taker=%s qty=%s @ %s}", l.Pair, l.MakerOrderID, l.TakerOrderID, l.Quantity, l.Price)
}

// Adapter serializes every ledger mutation of an exchange. One adapter is
// shared by all books so a batch settles atomically with respect to fills
// on other pairs.
type Adapter struct {
	mu     sync.Mutex
	ledger Ledger
	logger *zap.Logger
}

// NewAdapter wraps ledger. A nil logger is replaced by a no-op logger.
func NewAdapter(ledger Ledger, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{ledger: ledger, logger: logger}
}

// Reserve earmarks amount of asset for an order of account.
func (a *Adapter) Reserve(asset string, account common.Address, amount fixed.Amount) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ledger.Reserve(asset, account, amount); err != nil {
		return fmt.Errorf("%w: reserve %s %s for %s: %v", ErrInsufficientBalance, amount, asset, account.Hex(), err)
	}
	return nil
}

// Release returns up to amount of a reservation to the free balance.
func (a *Adapter) Release(asset string, account common.Address, amount fixed.Amount) {
	if amount.IsZero() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ledger.Unreserve(asset, account, amount)
}

// Settle executes one leg.
func (a *Adapter) Settle(leg Leg) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settleLocked(leg)
}

// Reverse undoes a leg previously applied by Settle, restoring both
// reservations.
func (a *Adapter) Reverse(leg Leg) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reverseLocked(leg)
}

// SettleBatch settles legs in order. If any leg fails, the legs already
// settled are reversed newest first and the error wraps ErrSettlement.
func (a *Adapter) SettleBatch(legs []Leg) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, leg := range legs {
		if err := a.settleLocked(leg); err != nil {
			for j := i - 1; j >= 0; j-- {
				if rerr := a.reverseLocked(legs[j]); rerr != nil {
					a.logger.Error("settlement_reverse_failed",
						zap.Stringer("leg", legs[j]),
						zap.Error(rerr))
				}
			}
			return fmt.Errorf("leg %d of %d: %w", i+1, len(legs), err)
		}
	}
	return nil
}

func (a *Adapter) settleLocked(leg Leg) error {
	a.ledger.Unreserve(leg.QuoteAsset, leg.Buyer, leg.BuyerRelease)
	a.ledger.Unreserve(leg.BaseAsset, leg.Seller, leg.SellerRelease)

	if err := a.ledger.Transfer(leg.QuoteAsset, leg.Buyer, leg.Seller, leg.QuoteAmount); err != nil {
		a.rereserve(leg)
		return fmt.Errorf("%w: quote transfer %s: %v", ErrSettlement, leg, err)
	}
	if err := a.ledger.Transfer(leg.BaseAsset, leg.Seller, leg.Buyer, leg.Quantity); err != nil {
		if uerr := a.ledger.Transfer(leg.QuoteAsset, leg.Seller, leg.Buyer, leg.QuoteAmount); uerr != nil {
			a.logger.Error("settlement_undo_quote_failed", zap.Stringer("leg", leg), zap.Error(uerr))
		}
		a.rereserve(leg)
		return fmt.Errorf("%w: base transfer %s: %v", ErrSettlement, leg, err)
	}
	return nil
}

func (a *Adapter) reverseLocked(leg Leg) error {
	if err := a.ledger.Transfer(leg.BaseAsset, leg.Buyer, leg.Seller, leg.Quantity); err != nil {
		return fmt.Errorf("reverse base %s: %w", leg, err)
	}
	if err := a.ledger.Transfer(leg.QuoteAsset, leg.Seller, leg.Buyer, leg.QuoteAmount); err != nil {
		return fmt.Errorf("reverse quote %s: %w", leg, err)
	}
	a.rereserve(leg)
	return nil
}

// rereserve restores the reservations a leg released.
func (a *Adapter) rereserve(leg Leg) {
	if err := a.ledger.Reserve(leg.QuoteAsset, leg.Buyer, leg.BuyerRelease); err != nil {
		a.logger.Error("settlement_rereserve_failed", zap.String("asset", leg.QuoteAsset), zap.String("account", leg.Buyer.Hex()), zap.Error(err))
	}
	if err := a.ledger.Reserve(leg.BaseAsset, leg.Seller, leg.SellerRelease); err != nil {
		a.logger.Error("settlement_rereserve_failed", zap.String("asset", leg.BaseAsset), zap.String("account", leg.Seller.Hex()), zap.Error(err))
	}
}
