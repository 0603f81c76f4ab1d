package alpaca

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

var ErrNoSymbols = errors.New("alpaca: no symbols to stream")

// Transport streams crypto trades from Alpaca. Reconnects are left to the
// caller, so the client is allowed a single connection attempt.
type Transport struct {
	key    string
	secret string
	logger *logger.Logger
}

func NewTransport(cfg *config.Config, log *logger.Logger) *Transport {
	return &Transport{
		key:    cfg.AlpacaAPIKey,
		secret: cfg.AlpacaAPISecret,
		logger: log.Component("alpaca"),
	}
}

func (t *Transport) Name() string {
	return config.ProviderAlpaca
}

func (t *Transport) Open(ctx context.Context, symbols []string, handler interfaces.TradeHandler) (interfaces.FeedConn, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	onTrade := func(tr stream.CryptoTrade) {
		handler(ToRawTrade(tr))
	}

	client := stream.NewCryptoClient(alpacamd.US,
		stream.WithCredentials(t.key, t.secret),
		stream.WithReconnectSettings(1, 0),
		stream.WithLogger(t.logger.Sugar()),
		stream.WithCryptoTrades(onTrade, symbols...),
	)

	connCtx, cancel := context.WithCancel(ctx)
	if err := client.Connect(connCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("connect crypto stream: %w", err)
	}
	t.logger.Info("crypto trade stream connected", logger.Strings("symbols", symbols))

	c := &conn{
		client:  client,
		onTrade: onTrade,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go c.wait()
	return c, nil
}

// ToRawTrade maps an Alpaca crypto trade. A sell taker means the buyer was
// the resting order.
func ToRawTrade(tr stream.CryptoTrade) marketdata.RawTrade {
	return marketdata.RawTrade{
		Instrument:   tr.Symbol,
		TradeID:      tr.ID,
		Price:        strconv.FormatFloat(tr.Price, 'f', -1, 64),
		Quantity:     strconv.FormatFloat(tr.Size, 'f', -1, 64),
		BuyerIsMaker: tr.TakerSide == "S",
		TradeTimeMs:  tr.Timestamp.UnixMilli(),
	}
}

type conn struct {
	client    *stream.CryptoClient
	onTrade   func(stream.CryptoTrade)
	cancel    context.CancelFunc
	done      chan error
	closing   atomic.Bool
	closeOnce sync.Once
}

func (c *conn) Done() <-chan error {
	return c.done
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.cancel()
	})
	return nil
}

// Subscribe adds trade subscriptions on the open connection.
func (c *conn) Subscribe(symbols []string) error {
	return c.client.SubscribeToTrades(c.onTrade, symbols...)
}

func (c *conn) wait() {
	err := <-c.client.Terminated()
	if c.closing.Load() {
		err = nil
	} else if err == nil {
		err = errors.New("alpaca: stream terminated")
	}
	c.done <- err
	close(c.done)
	c.cancel()
}
