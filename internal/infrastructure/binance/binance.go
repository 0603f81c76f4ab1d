package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

const (
	dialTimeout = 10 * time.Second
	readLimit   = 1 << 20
)

var (
	ErrNoSymbols = errors.New("binance: no symbols to stream")
	ErrNotTrade  = errors.New("binance: not a trade event")
)

// Transport opens combined trade streams on the Binance websocket API.
type Transport struct {
	baseURL string
	logger  *logger.Logger
}

func NewTransport(baseURL string, log *logger.Logger) *Transport {
	if baseURL == "" {
		baseURL = config.DefaultBinanceWSBase
	}
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.Component("binance"),
	}
}

func (t *Transport) Name() string {
	return config.ProviderBinance
}

// StreamURL builds the combined stream URL for the trade channels of symbols.
func StreamURL(base string, symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

func (t *Transport) Open(ctx context.Context, symbols []string, handler interfaces.TradeHandler) (interfaces.FeedConn, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	url := StreamURL(t.baseURL, symbols)

	connCtx, cancel := context.WithCancel(ctx)
	dialCtx, dialCancel := context.WithTimeout(connCtx, dialTimeout)
	defer dialCancel()

	ws, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(readLimit)

	c := &conn{
		ws:     ws,
		cancel: cancel,
		done:   make(chan error, 1),
		logger: t.logger.With(logger.Int("symbols", len(symbols))),
	}
	t.logger.Info("trade stream connected", logger.String("url", url))

	go c.readLoop(connCtx, handler)
	return c, nil
}

type conn struct {
	ws        *websocket.Conn
	cancel    context.CancelFunc
	done      chan error
	closing   atomic.Bool
	closeOnce sync.Once
	logger    *logger.Logger
}

func (c *conn) Done() <-chan error {
	return c.done
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err = c.ws.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
	return err
}

func (c *conn) readLoop(ctx context.Context, handler interfaces.TradeHandler) {
	defer c.cancel()

	var skipped int
	for {
		_, msg, err := c.ws.Read(ctx)
		if err != nil {
			if c.closing.Load() {
				c.done <- nil
			} else {
				c.done <- err
			}
			close(c.done)
			return
		}

		trade, err := DecodeTrade(msg)
		if err != nil {
			skipped++
			c.logger.Debug("skipping stream message", logger.Error(err), logger.Int("skipped", skipped))
			continue
		}
		handler(trade)
	}
}

// DecodeTrade reads a trade event, either wrapped in a combined stream
// envelope or bare.
func DecodeTrade(msg []byte) (marketdata.RawTrade, error) {
	root, err := sonic.Get(msg)
	if err != nil {
		return marketdata.RawTrade{}, fmt.Errorf("decode: %w", err)
	}
	data := root.Get("data")
	if !data.Exists() {
		data = &root
	}

	if event, err := data.Get("e").String(); err != nil || event != "trade" {
		return marketdata.RawTrade{}, ErrNotTrade
	}

	var trade marketdata.RawTrade
	if trade.Instrument, err = data.Get("s").String(); err != nil {
		return marketdata.RawTrade{}, fmt.Errorf("field s: %w", err)
	}
	if trade.TradeID, err = data.Get("t").Int64(); err != nil {
		return marketdata.RawTrade{}, fmt.Errorf("field t: %w", err)
	}
	if trade.Price, err = data.Get("p").String(); err != nil {
		return marketdata.RawTrade{}, fmt.Errorf("field p: %w", err)
	}
	if trade.Quantity, err = data.Get("q").String(); err != nil {
		return marketdata.RawTrade{}, fmt.Errorf("field q: %w", err)
	}
	if trade.TradeTimeMs, err = data.Get("T").Int64(); err != nil {
		return marketdata.RawTrade{}, fmt.Errorf("field T: %w", err)
	}
	if trade.BuyerIsMaker, err = data.Get("m").Bool(); err != nil {
		return marketdata.RawTrade{}, fmt.Errorf("field m: %w", err)
	}
	return trade, nil
}
