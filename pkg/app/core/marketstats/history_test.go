package marketstats

import (
	"errors"
	"testing"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
)

func TestRecordTradeSameEpoch(t *testing.T) {
	h := NewHistory(4)

	mustRecord(t, h, 1, "10", "2")
	mustRecord(t, h, 1, "8", "1")
	mustRecord(t, h, 1, "12", "0.5")

	cur, ok := h.Current()
	if !ok {
		t.Fatal("expected a current snapshot")
	}
	if cur.Epoch != 1 || cur.Low.String() != "8" || cur.High.String() != "12" {
		t.Errorf("unexpected snapshot: %+v", cur)
	}
	if cur.Volume.String() != "3.5" || cur.Trades != 3 {
		t.Errorf("volume = %s trades = %d, want 3.5 / 3", cur.Volume, cur.Trades)
	}
	if h.Len() != 1 {
		t.Errorf("expected 1 snapshot, got %d", h.Len())
	}
}

func TestRolloverEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for epoch := uint64(1); epoch <= 5; epoch++ {
		mustRecord(t, h, epoch, "10", "1")
	}

	all := h.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}
	for i, want := range []uint64{3, 4, 5} {
		if all[i].Epoch != want {
			t.Errorf("snapshot %d epoch = %d, want %d", i, all[i].Epoch, want)
		}
	}

	latest := h.Latest(2)
	if len(latest) != 2 || latest[0].Epoch != 5 || latest[1].Epoch != 4 {
		t.Errorf("Latest(2) = %+v", latest)
	}
}

func TestClosedEpochIsImmutable(t *testing.T) {
	h := NewHistory(3)
	mustRecord(t, h, 1, "10", "1")
	mustRecord(t, h, 2, "11", "1")

	err := h.RecordTrade(1, fixed.New(1), fixed.New(1))
	if !errors.Is(err, ErrStaleEpoch) {
		t.Fatalf("expected ErrStaleEpoch, got %v", err)
	}
	if first := h.All()[0]; first.Low.String() != "10" || first.Volume.String() != "1" {
		t.Errorf("closed snapshot mutated: %+v", first)
	}
}

func TestVolumeOverflow(t *testing.T) {
	h := NewHistory(1)
	if err := h.RecordTrade(1, fixed.New(1), fixed.Max); err != nil {
		t.Fatal(err)
	}
	if err := h.RecordTrade(1, fixed.New(1), fixed.New(1)); !errors.Is(err, fixed.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestCheckVolume(t *testing.T) {
	h := NewHistory(2)
	if err := h.CheckVolume(1, fixed.Max); err != nil {
		t.Fatalf("empty history: %v", err)
	}
	if err := h.RecordTrade(1, fixed.New(1), fixed.Max); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		epoch   uint64
		qty     fixed.Amount
		wantErr bool
	}{
		{"same epoch overflows", 1, fixed.FromUnits(1), true},
		{"same epoch zero", 1, fixed.Zero, false},
		{"next epoch starts fresh", 2, fixed.Max, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.CheckVolume(tt.epoch, tt.qty)
			if tt.wantErr && !errors.Is(err, fixed.ErrOverflow) {
				t.Fatalf("got %v, want overflow", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
	if cur, _ := h.Current(); !cur.Volume.Equal(fixed.Max) || cur.Trades != 1 {
		t.Errorf("CheckVolume mutated the snapshot: %+v", cur)
	}
}

func TestRestore(t *testing.T) {
	src := NewHistory(5)
	for epoch := uint64(1); epoch <= 4; epoch++ {
		mustRecord(t, src, epoch, "10", "1")
	}

	dst := NewHistory(2)
	dst.Restore(src.All())
	all := dst.All()
	if len(all) != 2 || all[0].Epoch != 3 || all[1].Epoch != 4 {
		t.Errorf("restored = %+v", all)
	}
}

func mustRecord(t *testing.T, h *History, epoch uint64, price, qty string) {
	t.Helper()
	if err := h.RecordTrade(epoch, fixed.MustParse(price), fixed.MustParse(qty)); err != nil {
		t.Fatalf("RecordTrade(%d, %s, %s): %v", epoch, price, qty, err)
	}
}
