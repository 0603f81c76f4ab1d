package marketdata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrNoInstrument    = errors.New("missing instrument")
)

// Side is the taker side of an execution.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// RawTrade is a trade as delivered by an upstream feed, numbers still unparsed.
type RawTrade struct {
	Instrument   string
	TradeID      int64
	Price        string
	Quantity     string
	BuyerIsMaker bool
	TradeTimeMs  int64
}

type Trade struct {
	Instrument string          `json:"instrument"`
	TradeID    int64           `json:"tradeId"`
	ExecTimeMs int64           `json:"time"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Side       Side            `json:"side"`
}

// Parse converts a raw upstream trade. A maker buy order means the taker sold.
func (r RawTrade) Parse() (Trade, error) {
	instrument := strings.ToUpper(strings.TrimSpace(r.Instrument))
	if instrument == "" {
		return Trade{}, ErrNoInstrument
	}
	price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil {
		return Trade{}, fmt.Errorf("%w %q: %v", ErrInvalidPrice, r.Price, err)
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(r.Quantity))
	if err != nil {
		return Trade{}, fmt.Errorf("%w %q: %v", ErrInvalidQuantity, r.Quantity, err)
	}
	if qty.IsNegative() {
		return Trade{}, fmt.Errorf("%w %q: negative", ErrInvalidQuantity, r.Quantity)
	}

	side := SideBuy
	if r.BuyerIsMaker {
		side = SideSell
	}

	return Trade{
		Instrument: instrument,
		TradeID:    r.TradeID,
		ExecTimeMs: r.TradeTimeMs,
		Price:      price,
		Quantity:   qty,
		Side:       side,
	}, nil
}
