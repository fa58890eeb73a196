package settlement

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperspot/pkg/app/core/account"
	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

var (
	buyer  = common.HexToAddress("0xB000000000000000000000000000000000000001")
	seller = common.HexToAddress("0x5000000000000000000000000000000000000002")
)

// fundedLedger gives the buyer 100 USDT with reserved quote and the seller 10
// BTC with reserved base, as two resting orders would.
func fundedLedger(t *testing.T, reservedQuote, reservedBase uint64) *account.Manager {
	t.Helper()
	am := account.NewMemoryManager(nil)
	if err := am.Deposit("USDT", buyer, fixed.New(100)); err != nil {
		t.Fatal(err)
	}
	if err := am.Deposit("BTC", seller, fixed.New(10)); err != nil {
		t.Fatal(err)
	}
	if err := am.Reserve("USDT", buyer, fixed.New(reservedQuote)); err != nil {
		t.Fatal(err)
	}
	if err := am.Reserve("BTC", seller, fixed.New(reservedBase)); err != nil {
		t.Fatal(err)
	}
	return am
}

func leg(price, qty, limit uint64) Leg {
	return Leg{
		Pair:          "BTC-USDT",
		BaseAsset:     "BTC",
		QuoteAsset:    "USDT",
		MakerOrderID:  "maker",
		TakerOrderID:  "taker",
		Buyer:         buyer,
		Seller:        seller,
		Price:         fixed.New(price),
		Quantity:      fixed.New(qty),
		QuoteAmount:   fixed.New(price * qty),
		BuyerRelease:  fixed.New(limit * qty),
		SellerRelease: fixed.New(qty),
	}
}

type balances struct {
	buyerFree, buyerReserved, buyerBase    string
	sellerQuote, sellerFree, sellerReserve string
}

func snapshot(am *account.Manager) balances {
	return balances{
		buyerFree:     am.FreeBalance("USDT", buyer).String(),
		buyerReserved: am.ReservedBalance("USDT", buyer).String(),
		buyerBase:     am.FreeBalance("BTC", buyer).String(),
		sellerQuote:   am.FreeBalance("USDT", seller).String(),
		sellerFree:    am.FreeBalance("BTC", seller).String(),
		sellerReserve: am.ReservedBalance("BTC", seller).String(),
	}
}

func TestSettleWithPriceImprovement(t *testing.T) {
	am := fundedLedger(t, 50, 5)
	a := NewAdapter(am, nil)

	// Bid limit 10 executes 5 @ 9: 50 reserved, 45 paid, 5 released.
	if err := a.Settle(leg(9, 5, 10)); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	want := balances{
		buyerFree: "55", buyerReserved: "0", buyerBase: "5",
		sellerQuote: "45", sellerFree: "5", sellerReserve: "0",
	}
	if got := snapshot(am); got != want {
		t.Errorf("balances = %+v\nwant %+v", got, want)
	}
}

func TestReverseRestoresReservations(t *testing.T) {
	am := fundedLedger(t, 50, 5)
	before := snapshot(am)
	a := NewAdapter(am, nil)

	l := leg(9, 5, 10)
	if err := a.Settle(l); err != nil {
		t.Fatal(err)
	}
	if err := a.Reverse(l); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if got := snapshot(am); got != before {
		t.Errorf("balances after reverse = %+v\nwant %+v", got, before)
	}
}

func TestSettleBatchUnwinds(t *testing.T) {
	tests := []struct {
		name   string
		failAt int
	}{
		{"first leg quote", 1},
		{"first leg base", 2},
		{"second leg quote", 3},
		{"second leg base", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := fundedLedger(t, 50, 5)
			before := snapshot(am)
			a := NewAdapter(NewFaultyLedger(am, tt.failAt), nil)

			err := a.SettleBatch([]Leg{leg(9, 2, 10), leg(10, 3, 10)})
			if !errors.Is(err, ErrSettlement) {
				t.Fatalf("got %v, want ErrSettlement", err)
			}
			if got := snapshot(am); got != before {
				t.Errorf("balances = %+v\nwant %+v", got, before)
			}
		})
	}
}

func TestSettleBatch(t *testing.T) {
	am := fundedLedger(t, 50, 5)
	a := NewAdapter(am, nil)

	if err := a.SettleBatch([]Leg{leg(9, 2, 10), leg(10, 3, 10)}); err != nil {
		t.Fatalf("SettleBatch: %v", err)
	}
	// 18 + 30 paid out of 50 reserved.
	want := balances{
		buyerFree: "52", buyerReserved: "0", buyerBase: "5",
		sellerQuote: "48", sellerFree: "5", sellerReserve: "0",
	}
	if got := snapshot(am); got != want {
		t.Errorf("balances = %+v\nwant %+v", got, want)
	}
}

func TestReserveAndRelease(t *testing.T) {
	am := account.NewMemoryManager(nil)
	if err := am.Deposit("USDT", buyer, fixed.New(10)); err != nil {
		t.Fatal(err)
	}
	a := NewAdapter(am, nil)

	if err := a.Reserve("USDT", buyer, fixed.New(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-reserve: got %v", err)
	}
	if err := a.Reserve("USDT", buyer, fixed.New(4)); err != nil {
		t.Fatal(err)
	}
	if got := am.FreeBalance("USDT", buyer); got.String() != "6" {
		t.Errorf("free = %s, want 6", got)
	}
	a.Release("USDT", buyer, fixed.New(4))
	if got := am.FreeBalance("USDT", buyer); got.String() != "10" {
		t.Errorf("free after release = %s, want 10", got)
	}
}
