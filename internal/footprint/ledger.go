package footprint

import (
	"sort"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
	"github.com/shopspring/decimal"
)

// DefaultPricePrecision is the number of fractional digits prices are quantized to.
const DefaultPricePrecision int32 = 5

// Level holds the accumulated taker volume traded at one quantized price.
type Level struct {
	Price decimal.Decimal
	Buy   decimal.Decimal
	Sell  decimal.Decimal
}

func (l Level) Volume() decimal.Decimal {
	return l.Buy.Add(l.Sell)
}

// PriceLevels maps quantized price keys to levels. Entries are never removed.
type PriceLevels struct {
	precision int32
	levels    map[string]*Level
}

func NewPriceLevels(precision int32) *PriceLevels {
	if precision < 0 {
		precision = DefaultPricePrecision
	}
	return &PriceLevels{
		precision: precision,
		levels:    make(map[string]*Level),
	}
}

func (p *PriceLevels) Precision() int32 {
	return p.precision
}

// Key returns the canonical string key for price after quantization.
func (p *PriceLevels) Key(price decimal.Decimal) string {
	return price.Round(p.precision).StringFixed(p.precision)
}

// Apply adds qty to the buy or sell side of the level at price.
func (p *PriceLevels) Apply(price, qty decimal.Decimal, side marketdata.Side) {
	if p.levels == nil {
		p.levels = make(map[string]*Level)
	}

	key := p.Key(price)
	level, ok := p.levels[key]
	if !ok {
		level = &Level{Price: price.Round(p.precision)}
		p.levels[key] = level
	}

	switch side {
	case marketdata.SideBuy:
		level.Buy = level.Buy.Add(qty)
	case marketdata.SideSell:
		level.Sell = level.Sell.Add(qty)
	}
}

func (p *PriceLevels) Get(key string) (Level, bool) {
	level, ok := p.levels[key]
	if !ok {
		return Level{}, false
	}
	return *level, true
}

func (p *PriceLevels) Len() int {
	return len(p.levels)
}

// Total is the sum of buy and sell volume across all levels.
func (p *PriceLevels) Total() decimal.Decimal {
	total := decimal.Zero
	for _, level := range p.levels {
		total = total.Add(level.Volume())
	}
	return total
}

// Levels returns a copy of all levels ordered by descending price.
func (p *PriceLevels) Levels() []Level {
	out := make([]Level, 0, len(p.levels))
	for _, level := range p.levels {
		out = append(out, *level)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Price.GreaterThan(out[j].Price)
	})
	return out
}

// POC returns the point of control: the level with the largest traded volume.
// Among levels with equal volume the highest price wins. This matches what
// charting clients already display and may not be a deliberate rule.
func (p *PriceLevels) POC() (Level, bool) {
	var (
		best  *Level
		found bool
	)
	for _, level := range p.levels {
		if !found {
			best, found = level, true
			continue
		}
		switch level.Volume().Cmp(best.Volume()) {
		case 1:
			best = level
		case 0:
			if level.Price.GreaterThan(best.Price) {
				best = level
			}
		}
	}
	if !found {
		return Level{}, false
	}
	return *best, true
}

func (p *PriceLevels) Clone() *PriceLevels {
	cp := &PriceLevels{
		precision: p.precision,
		levels:    make(map[string]*Level, len(p.levels)),
	}
	for key, level := range p.levels {
		l := *level
		cp.levels[key] = &l
	}
	return cp
}
