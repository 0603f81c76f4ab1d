package mockdata

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

const tickInterval = 10 * time.Millisecond

var ErrNoSymbols = errors.New("mockdata: no symbols to stream")

type Config struct {
	BaseTradesPerSecond int
	MaxTradesPerSecond  int
	SpikeInterval       time.Duration
	SpikeDuration       time.Duration
	PriceVolatility     float64
	SizeVariability     float64
	EnableJitter        bool
}

func DefaultConfig() Config {
	return Config{
		BaseTradesPerSecond: 50,
		MaxTradesPerSecond:  500,
		SpikeInterval:       60 * time.Second,
		SpikeDuration:       10 * time.Second,
		PriceVolatility:     0.0005,
		SizeVariability:     0.7,
		EnableJitter:        true,
	}
}

var basePrices = map[string]float64{
	"BTCUSDT": 64250.5, "ETHUSDT": 3120.25, "SOLUSDT": 148.3, "BNBUSDT": 575.1,
	"XRPUSDT": 0.52, "ADAUSDT": 0.45, "DOGEUSDT": 0.16, "AVAXUSDT": 35.7,
	"BTC/USD": 64250.5, "ETH/USD": 3120.25, "SOL/USD": 148.3,
}

// Transport simulates an upstream trade feed. Every open connection
// generates trades for its own symbols at the configured rate, with periodic
// traffic spikes.
type Transport struct {
	config Config
	logger *logger.Logger

	nextID atomic.Int64
	mu     sync.Mutex
	prices map[string]float64
	anchor map[string]float64
	lastTs map[string]int64
}

func NewTransport(cfg Config, log *logger.Logger) *Transport {
	return &Transport{
		config: cfg,
		logger: log.Component("mockdata"),
		prices: make(map[string]float64),
		anchor: make(map[string]float64),
		lastTs: make(map[string]int64),
	}
}

func (t *Transport) Name() string {
	return config.ProviderMock
}

func (t *Transport) Open(ctx context.Context, symbols []string, handler interfaces.TradeHandler) (interfaces.FeedConn, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	connCtx, cancel := context.WithCancel(ctx)
	c := &conn{
		symbols: append([]string(nil), symbols...),
		cancel:  cancel,
		done:    make(chan error, 1),
	}

	t.logger.Info("starting mock trade stream",
		logger.Int("base_trades_per_sec", t.config.BaseTradesPerSecond),
		logger.Int("max_trades_per_sec", t.config.MaxTradesPerSecond),
		logger.Strings("symbols", symbols),
		logger.Duration("spike_interval", t.config.SpikeInterval),
		logger.Duration("spike_duration", t.config.SpikeDuration))

	go func() {
		err := t.run(connCtx, c, handler)
		c.done <- err
		close(c.done)
	}()
	return c, nil
}

// targetRate returns the trade rate for the given time since start.
func (t *Transport) targetRate(elapsed time.Duration) (int, bool) {
	if t.config.SpikeInterval <= 0 || t.config.SpikeDuration <= 0 || elapsed < t.config.SpikeInterval {
		return t.config.BaseTradesPerSecond, false
	}
	if elapsed%t.config.SpikeInterval < t.config.SpikeDuration {
		return t.config.MaxTradesPerSecond, true
	}
	return t.config.BaseTradesPerSecond, false
}

func (t *Transport) run(ctx context.Context, c *conn, handler interfaces.TradeHandler) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var (
		started       = time.Now()
		lastStatsTime = started
		generated     int
		debt          float64
		inSpike       bool
	)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("mock trade stream shutting down", logger.Int("trades_since_last_stats", generated))
			if c.closing.Load() {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			rate, spike := t.targetRate(time.Since(started))
			if spike != inSpike {
				inSpike = spike
				if spike {
					metrics.MockTrafficSpikeActive.Set(1)
					t.logger.Info("traffic spike started", logger.Int("target_rate", rate))
				} else {
					metrics.MockTrafficSpikeActive.Set(0)
					t.logger.Info("traffic spike ended", logger.Int("target_rate", rate))
				}
			}

			// carry fractional trades over to the next tick
			debt += float64(rate) * tickInterval.Seconds()
			n := int(debt)
			debt -= float64(n)

			if t.config.EnableJitter && n > 0 {
				n = int(math.Max(1, float64(n)*(0.8+rand.Float64()*0.4)))
			}

			symbols := c.snapshot()
			for i := 0; i < n; i++ {
				handler(t.generateTrade(symbols[rand.Intn(len(symbols))]))
				generated++
				metrics.MockTradesGeneratedTotal.Inc()
			}

			if since := time.Since(lastStatsTime); since >= 10*time.Second {
				perSecond := float64(generated) / since.Seconds()
				metrics.MockTradeRateGauge.Set(perSecond)
				t.logger.Info("mock trade stream statistics",
					logger.Int("trades_generated", generated),
					logger.Float64("trades_per_second", perSecond),
					logger.Duration("period", since))
				lastStatsTime = time.Now()
				generated = 0
			}
		}
	}
}

// generateTrade walks the symbol's price with mean reversion towards its
// starting level.
func (t *Transport) generateTrade(symbol string) marketdata.RawTrade {
	t.mu.Lock()
	anchor, ok := t.anchor[symbol]
	if !ok {
		anchor, ok = basePrices[symbol]
		if !ok {
			anchor = 50.0 + rand.Float64()*450.0
		}
		t.anchor[symbol] = anchor
		t.prices[symbol] = anchor
	}
	current := t.prices[symbol]
	change := (rand.Float64()*2-1)*t.config.PriceVolatility*current + (anchor-current)*0.05
	price := math.Max(0.0001, current+change)
	t.prices[symbol] = price
	t.mu.Unlock()

	size := 0.01
	if t.config.SizeVariability > 0 {
		// more small trades than large ones
		size = (math.Pow(rand.Float64(), 2)*9 + 1) * t.config.SizeVariability * 0.1
	}

	return marketdata.RawTrade{
		Instrument:   symbol,
		TradeID:      t.nextID.Add(1),
		Price:        strconv.FormatFloat(price, 'f', decimalsFor(price), 64),
		Quantity:     strconv.FormatFloat(size, 'f', 4, 64),
		BuyerIsMaker: rand.Intn(2) == 0,
		TradeTimeMs:  t.tradeTime(symbol),
	}
}

// tradeTime backdates trades by up to 100ms when jitter is on but never
// goes below the symbol's previous trade time.
func (t *Transport) tradeTime(symbol string) int64 {
	var jitter time.Duration
	if t.config.EnableJitter {
		jitter = time.Duration(rand.Intn(100)) * time.Millisecond
	}
	ts := time.Now().Add(-jitter).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()
	if last := t.lastTs[symbol]; ts < last {
		ts = last
	}
	t.lastTs[symbol] = ts
	return ts
}

// decimalsFor keeps roughly five significant digits for cheap instruments.
func decimalsFor(price float64) int {
	switch {
	case price >= 100:
		return 2
	case price >= 1:
		return 4
	default:
		return 6
	}
}

type conn struct {
	mu      sync.Mutex
	symbols []string
	cancel  context.CancelFunc
	done    chan error
	closing atomic.Bool
}

func (c *conn) Done() <-chan error {
	return c.done
}

func (c *conn) Close() error {
	c.closing.Store(true)
	c.cancel()
	return nil
}

// Subscribe adds symbols to the running stream.
func (c *conn) Subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{}, len(c.symbols))
	for _, s := range c.symbols {
		seen[s] = struct{}{}
	}
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		c.symbols = append(c.symbols, s)
	}
	sort.Strings(c.symbols)
	return nil
}

func (c *conn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.symbols...)
}
