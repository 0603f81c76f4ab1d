package marketdata

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRawTrade_Parse(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawTrade
		wantSide Side
		wantErr  error
	}{
		{
			name:     "taker_buy",
			raw:      RawTrade{Instrument: "btcusdt", TradeID: 1, Price: "100.50", Quantity: "0.25", TradeTimeMs: 1000},
			wantSide: SideBuy,
		},
		{
			name:     "maker_buyer_is_taker_sell",
			raw:      RawTrade{Instrument: "BTCUSDT", TradeID: 2, Price: "100", Quantity: "1", BuyerIsMaker: true},
			wantSide: SideSell,
		},
		{
			name:    "bad_price",
			raw:     RawTrade{Instrument: "BTCUSDT", Price: "abc", Quantity: "1"},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "bad_quantity",
			raw:     RawTrade{Instrument: "BTCUSDT", Price: "1", Quantity: ""},
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "negative_quantity",
			raw:     RawTrade{Instrument: "BTCUSDT", Price: "1", Quantity: "-2"},
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "missing_instrument",
			raw:     RawTrade{Instrument: "  ", Price: "1", Quantity: "1"},
			wantErr: ErrNoInstrument,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trade, err := tc.raw.Parse()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if trade.Side != tc.wantSide {
				t.Errorf("expected side %s, got %s", tc.wantSide, trade.Side)
			}
			if trade.Instrument != "BTCUSDT" {
				t.Errorf("expected upper-cased instrument, got %s", trade.Instrument)
			}
			if !trade.Price.Equal(decimal.RequireFromString(tc.raw.Price)) {
				t.Errorf("expected price %s, got %s", tc.raw.Price, trade.Price)
			}
		})
	}
}
