package footprint

import (
	"testing"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

func TestPriceLevels_Quantization(t *testing.T) {
	levels := NewPriceLevels(2)

	levels.Apply(dec("100.001"), dec("1"), marketdata.SideBuy)
	levels.Apply(dec("99.999"), dec("2"), marketdata.SideSell)
	levels.Apply(dec("100"), dec("3"), marketdata.SideBuy)

	if levels.Len() != 1 {
		t.Fatalf("expected all prices to land on one level, got %d", levels.Len())
	}
	level, ok := levels.Get("100.00")
	if !ok {
		t.Fatal("level 100.00 missing")
	}
	if !level.Buy.Equal(dec("4")) || !level.Sell.Equal(dec("2")) {
		t.Errorf("unexpected level volumes: buy=%s sell=%s", level.Buy, level.Sell)
	}
}

func TestPriceLevels_DefaultPrecision(t *testing.T) {
	levels := NewPriceLevels(-1)
	if levels.Precision() != DefaultPricePrecision {
		t.Fatalf("expected default precision %d, got %d", DefaultPricePrecision, levels.Precision())
	}
	if key := levels.Key(dec("1.5")); key != "1.50000" {
		t.Errorf("expected key 1.50000, got %s", key)
	}
}

func TestPriceLevels_POC(t *testing.T) {
	tests := []struct {
		name   string
		trades [][3]string // price, qty, side
		want   string
	}{
		{
			name:   "single_max",
			trades: [][3]string{{"10", "1", "buy"}, {"11", "5", "sell"}, {"12", "2", "buy"}},
			want:   "11.00",
		},
		{
			name:   "tie_prefers_highest_price",
			trades: [][3]string{{"10", "3", "buy"}, {"12", "1", "buy"}, {"12", "2", "sell"}, {"11", "3", "sell"}},
			want:   "12.00",
		},
		{
			name:   "zero_volume_levels",
			trades: [][3]string{{"5", "0", "buy"}, {"6", "0", "sell"}},
			want:   "6.00",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			levels := NewPriceLevels(2)
			for _, tr := range tc.trades {
				levels.Apply(dec(tr[0]), dec(tr[1]), marketdata.Side(tr[2]))
			}
			poc, ok := levels.POC()
			if !ok {
				t.Fatal("expected a POC")
			}
			if got := levels.Key(poc.Price); got != tc.want {
				t.Errorf("expected POC %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPriceLevels_EmptyPOC(t *testing.T) {
	if _, ok := NewPriceLevels(2).POC(); ok {
		t.Error("empty ledger should have no POC")
	}
}

func TestPriceLevels_LevelsSortedDescending(t *testing.T) {
	levels := NewPriceLevels(2)
	for _, p := range []string{"3", "1", "2"} {
		levels.Apply(dec(p), dec("1"), marketdata.SideBuy)
	}
	got := levels.Levels()
	if len(got) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Price.GreaterThan(got[i].Price) {
			t.Errorf("levels not descending at %d: %s <= %s", i, got[i-1].Price, got[i].Price)
		}
	}
}
