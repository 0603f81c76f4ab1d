package interfaces

import (
	"context"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

// TradeHandler receives every raw trade read from an upstream feed. It is
// called from the transport's read goroutine and must not block for long.
type TradeHandler func(marketdata.RawTrade)

// FeedConn is one open upstream connection.
type FeedConn interface {
	// Done yields exactly one value when the connection ends: nil after Close,
	// the cause otherwise.
	Done() <-chan error
	Close() error
}

// IncrementalFeedConn can add instruments without reopening.
type IncrementalFeedConn interface {
	FeedConn
	Subscribe(symbols []string) error
}

// FeedTransport opens upstream trade connections for a set of instruments.
type FeedTransport interface {
	Name() string
	Open(ctx context.Context, symbols []string, handler TradeHandler) (FeedConn, error)
}

type CacheClient interface {
	Set(context.Context, string, any, time.Duration) error
	Close() error
}

type PubsubClient interface {
	Publish(ctx context.Context, channel string, message any) error
	Close() error
}

type KafkaProducer interface {
	Produce(ctx context.Context, key string, value []byte, ts time.Time) (partition int32, offset int64, err error)
	Close() error
}
