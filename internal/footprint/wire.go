package footprint

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// WireLevel is the JSON form of a price level.
type WireLevel struct {
	Buy  json.Number `json:"buy"`
	Sell json.Number `json:"sell"`
}

type WireTrade struct {
	ID       int64       `json:"id"`
	Time     int64       `json:"time"`
	Price    json.Number `json:"price"`
	Quantity json.Number `json:"quantity"`
	Side     string      `json:"side"`
}

// WireBar is the JSON payload pushed to consumers and returned by queries.
// PriceLevels is always a plain object keyed by the quantized price string.
type WireBar struct {
	Instrument  string               `json:"instrument"`
	IntervalMs  int64                `json:"intervalMs"`
	BucketStart int64                `json:"bucketStart"`
	Open        *json.Number         `json:"open"`
	High        *json.Number         `json:"high"`
	Low         *json.Number         `json:"low"`
	Close       *json.Number         `json:"close"`
	TotalVolume json.Number          `json:"totalVolume"`
	Delta       json.Number          `json:"delta"`
	BidVolume   json.Number          `json:"bidVolume"`
	AskVolume   json.Number          `json:"askVolume"`
	POC         *string              `json:"poc"`
	PriceLevels map[string]WireLevel `json:"priceLevels"`
	Trades      []WireTrade          `json:"trades"`
	Final       bool                 `json:"final"`
}

// Wire converts b to its wire representation.
func (b *Bar) Wire() WireBar {
	w := WireBar{
		Instrument:  b.Instrument,
		IntervalMs:  b.IntervalMs,
		BucketStart: b.BucketStart,
		Open:        nullNumber(b.Open),
		High:        nullNumber(b.High),
		Low:         nullNumber(b.Low),
		Close:       nullNumber(b.Close),
		TotalVolume: number(b.TotalVolume),
		Delta:       number(b.Delta),
		BidVolume:   number(b.BidVolume),
		AskVolume:   number(b.AskVolume),
		PriceLevels: make(map[string]WireLevel),
		Trades:      make([]WireTrade, 0, len(b.Trades)),
		Final:       b.finalized,
	}

	if b.Levels != nil {
		for key, level := range b.Levels.levels {
			w.PriceLevels[key] = WireLevel{Buy: number(level.Buy), Sell: number(level.Sell)}
		}
		if poc, ok := b.Levels.POC(); ok {
			key := b.Levels.Key(poc.Price)
			w.POC = &key
		}
	}

	for _, t := range b.Trades {
		w.Trades = append(w.Trades, WireTrade{
			ID:       t.TradeID,
			Time:     t.ExecTimeMs,
			Price:    number(t.Price),
			Quantity: number(t.Quantity),
			Side:     string(t.Side),
		})
	}
	return w
}

// EncodeBar is the single serialization point between bars and the wire.
func EncodeBar(b *Bar) ([]byte, error) {
	return sonic.Marshal(b.Wire())
}

// EncodeBars serializes a sequence of bars as a JSON array.
func EncodeBars(bars []*Bar) ([]byte, error) {
	out := make([]WireBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Wire())
	}
	return sonic.Marshal(out)
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func nullNumber(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := number(d.Decimal)
	return &n
}
