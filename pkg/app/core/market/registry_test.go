package market

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&Pair{Symbol: "ETH-USDT", BaseAsset: "ETH", QuoteAsset: "USDT"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&Pair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.Register(&Pair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"}); !errors.Is(err, ErrPairExists) {
		t.Errorf("duplicate: got %v, want ErrPairExists", err)
	}
	if err := r.Register(nil); !errors.Is(err, ErrInvalidPair) {
		t.Errorf("nil: got %v", err)
	}

	p, err := r.Get("BTC-USDT")
	if err != nil {
		t.Fatal(err)
	}
	if p.BaseAsset != "BTC" || p.Status != Active {
		t.Errorf("Get = %+v", p)
	}
	if _, err := r.Get("DOGE-USDT"); !errors.Is(err, ErrUnknownPair) {
		t.Errorf("unknown: got %v", err)
	}

	list := r.List()
	if len(list) != 2 || list[0].Symbol != "BTC-USDT" || list[1].Symbol != "ETH-USDT" {
		t.Errorf("List = %v", list)
	}
	if !r.Exists("ETH-USDT") || r.Exists("DOGE-USDT") || r.Count() != 2 {
		t.Error("Exists/Count mismatch")
	}
}

func TestSetStatus(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Pair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"}); err != nil {
		t.Fatal(err)
	}

	if err := r.SetStatus("BTC-USDT", Halted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if p, _ := r.Get("BTC-USDT"); p.Status != Halted {
		t.Errorf("status = %s, want Halted", p.Status)
	}
	if err := r.SetStatus("BTC-USDT", Status(9)); err == nil {
		t.Error("invalid status accepted")
	}
	if err := r.SetStatus("DOGE-USDT", Active); !errors.Is(err, ErrUnknownPair) {
		t.Errorf("unknown: got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	in := &Pair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"}
	if err := r.Register(in); err != nil {
		t.Fatal(err)
	}
	in.Status = Halted

	p, _ := r.Get("BTC-USDT")
	if p.Status != Active {
		t.Error("registry aliased the registered pair")
	}
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		in      string
		want    []Pair
		wantErr bool
	}{
		{"BTC-USDT:BTC:USDT", []Pair{{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"}}, false},
		{"BTC-USDT, ETH-USDT", []Pair{
			{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"},
			{Symbol: "ETH-USDT", BaseAsset: "ETH", QuoteAsset: "USDT"},
		}, false},
		{"", nil, false},
		{"BTCUSDT", nil, true},
		{"X:A", nil, true},
		{"X:A:A", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePairs(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPair) {
					t.Fatalf("got %v, want ErrInvalidPair", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d pairs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if *got[i] != tt.want[i] {
					t.Errorf("pair %d = %+v, want %+v", i, *got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(Pair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT", Status: Halted})
	if err != nil {
		t.Fatal(err)
	}
	var p Pair
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != Halted {
		t.Errorf("status round trip = %s", p.Status)
	}
}
