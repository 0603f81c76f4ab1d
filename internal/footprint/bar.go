package footprint

import (
	"errors"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
	"github.com/shopspring/decimal"
)

var ErrBarFinalized = errors.New("bar already finalized")

// Bar is a footprint bar: OHLC plus per-price taker volume for one bucket.
// Only the aggregator mutates a Bar; once finalized it is never touched again.
type Bar struct {
	Instrument  string
	IntervalMs  int64
	BucketStart int64

	Open  decimal.NullDecimal
	High  decimal.NullDecimal
	Low   decimal.NullDecimal
	Close decimal.NullDecimal

	TotalVolume decimal.Decimal
	Delta       decimal.Decimal
	BidVolume   decimal.Decimal // taker-sell
	AskVolume   decimal.Decimal // taker-buy

	Levels *PriceLevels
	Trades []marketdata.Trade

	finalized bool
}

func NewBar(instrument string, bucketStart, intervalMs int64, precision int32) *Bar {
	return &Bar{
		Instrument:  instrument,
		IntervalMs:  intervalMs,
		BucketStart: bucketStart,
		Levels:      NewPriceLevels(precision),
	}
}

// BucketStart aligns execTimeMs down to a multiple of intervalMs.
func BucketStart(execTimeMs, intervalMs int64) int64 {
	if intervalMs <= 0 {
		return execTimeMs
	}
	rem := execTimeMs % intervalMs
	if rem < 0 {
		rem += intervalMs
	}
	return execTimeMs - rem
}

// Apply folds one trade into the bar.
func (b *Bar) Apply(t marketdata.Trade) error {
	if b.finalized {
		return ErrBarFinalized
	}
	if b.Levels == nil {
		b.Levels = NewPriceLevels(DefaultPricePrecision)
	}

	if !b.Open.Valid {
		b.Open = decimal.NewNullDecimal(t.Price)
	}
	if !b.High.Valid || t.Price.GreaterThan(b.High.Decimal) {
		b.High = decimal.NewNullDecimal(t.Price)
	}
	if !b.Low.Valid || t.Price.LessThan(b.Low.Decimal) {
		b.Low = decimal.NewNullDecimal(t.Price)
	}
	b.Close = decimal.NewNullDecimal(t.Price)

	b.TotalVolume = b.TotalVolume.Add(t.Quantity)
	b.Trades = append(b.Trades, t)

	b.Levels.Apply(t.Price, t.Quantity, t.Side)

	switch t.Side {
	case marketdata.SideBuy:
		b.AskVolume = b.AskVolume.Add(t.Quantity)
	case marketdata.SideSell:
		b.BidVolume = b.BidVolume.Add(t.Quantity)
	}
	b.Delta = b.AskVolume.Sub(b.BidVolume)

	return nil
}

func (b *Bar) Finalize() {
	b.finalized = true
}

func (b *Bar) Finalized() bool {
	return b.finalized
}

// Empty reports whether the bar carries no volume and must not be emitted.
func (b *Bar) Empty() bool {
	return !b.TotalVolume.IsPositive()
}

// POC is a shortcut for the ledger's point of control.
func (b *Bar) POC() (Level, bool) {
	if b.Levels == nil {
		return Level{}, false
	}
	return b.Levels.POC()
}

// Consistent reports whether totalVolume == Σ levels == bid + ask.
func (b *Bar) Consistent() bool {
	levels := decimal.Zero
	if b.Levels != nil {
		levels = b.Levels.Total()
	}
	return b.TotalVolume.Equal(levels) && b.TotalVolume.Equal(b.BidVolume.Add(b.AskVolume))
}

// Clone returns a deep copy that shares nothing mutable with b.
func (b *Bar) Clone() *Bar {
	cp := *b
	if b.Levels != nil {
		cp.Levels = b.Levels.Clone()
	}
	cp.Trades = make([]marketdata.Trade, len(b.Trades))
	copy(cp.Trades, b.Trades)
	return &cp
}
