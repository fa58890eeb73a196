package matching

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/uhyunpark/hyperspot/pkg/app/core/account"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

// jsonStore keeps the last snapshot as JSON, the way the pebble store does.
type jsonStore struct {
	data []byte
}

func (s *jsonStore) SaveSnapshot(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}

func (s *jsonStore) LoadSnapshot() (*Snapshot, error) {
	if s.data == nil {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func TestCheckpointRestore(t *testing.T) {
	am := account.NewMemoryManager(nil)
	fund(t, am, alice, "", "1000")
	fund(t, am, bob, "10", "")
	ex := newTestExchange(t, am, Config{})

	mustSubmit(t, ex, limit("a1", orderbook.AskLimit, bob, "12", "2"))
	mustSubmit(t, ex, limit("a2", orderbook.AskLimit, bob, "12", "3"))
	mustSubmit(t, ex, limit("b1", orderbook.BidLimit, alice, "10", "4"))
	mustSubmit(t, ex, limit("b2", orderbook.BidLimit, alice, "12", "1")) // fills 1 of a1
	ex.AdvanceEpoch()

	store := &jsonStore{}
	if err := ex.Checkpoint(store); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	restored := newTestExchange(t, am, Config{})
	ok, err := restored.Restore(store)
	if err != nil || !ok {
		t.Fatalf("Restore = %v, %v", ok, err)
	}

	if restored.Epoch() != 1 {
		t.Errorf("epoch = %d, want 1", restored.Epoch())
	}
	if bid, _ := restored.BestBid(btcUSDT); bid.String() != "10" {
		t.Errorf("best bid = %s", bid)
	}
	if ask, _ := restored.BestAsk(btcUSDT); ask.String() != "12" {
		t.Errorf("best ask = %s", ask)
	}
	a1, ok := restored.Order(btcUSDT, "a1")
	if !ok || a1.Quantity.String() != "1" || a1.Reserved.String() != "1" {
		t.Errorf("a1 = %+v", a1)
	}
	if stats, _ := restored.Statistics(btcUSDT, 0); len(stats) != 1 || stats[0].Volume.String() != "1" {
		t.Errorf("stats = %+v", stats)
	}

	// FIFO survives: the next bid at 12 hits a1 before a2.
	out := mustSubmit(t, restored, limit("b3", orderbook.BidLimit, alice, "12", "2"))
	if got := tradeIDs(out.Trades); !equalStrings(got, []string{"a1", "a2"}) {
		t.Errorf("matched %v, want [a1 a2]", got)
	}

	if _, err := restored.CancelOrder("b1", alice, btcUSDT); err != nil {
		t.Errorf("cancel restored order: %v", err)
	}
}

func TestRestoreEmptyStore(t *testing.T) {
	ex := newTestExchange(t, account.NewMemoryManager(nil), Config{})
	ok, err := ex.Restore(&jsonStore{})
	if err != nil || ok {
		t.Errorf("Restore = %v, %v; want false, nil", ok, err)
	}
}

func TestRestoreRejectsUnknownPair(t *testing.T) {
	src := NewExchange(account.NewMemoryManager(nil), Config{})
	store := &jsonStore{}
	if err := store.SaveSnapshot(Snapshot{Books: []orderbook.BookSnapshot{{Pair: "DOGE-USDT"}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Restore(store); !errors.Is(err, ErrUnknownPair) {
		t.Errorf("got %v, want ErrUnknownPair", err)
	}
}
