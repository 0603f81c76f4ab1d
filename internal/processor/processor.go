package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/utils"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
	"golang.org/x/sync/errgroup"
)

const barTimeout = 250 * time.Millisecond

// CacheKey holds the last finalized bar of an instrument.
func CacheKey(instrument string) string {
	return "footprint:last:" + instrument
}

// Channel carries every finalized bar of an instrument.
func Channel(instrument string) string {
	return "footprint:" + instrument
}

// Forward returns a hub listener that queues finalized bars on out. Partial
// updates are ignored and a full queue drops the bar.
func Forward(out chan<- *footprint.Bar, log *logger.Logger) hub.Listener {
	dropped := metrics.SinkBarsDroppedTotal.WithLabelValues("queue")
	return func(bar *footprint.Bar, kind hub.Kind) {
		if kind != hub.KindFull {
			return
		}
		select {
		case out <- bar:
		default:
			dropped.Inc()
			log.Warn("sink queue full, dropping finalized bar",
				logger.String("instrument", bar.Instrument),
				logger.Int64("bucket_start", bar.BucketStart))
		}
	}
}

// BarProcessor writes finalized bars to Redis and hands them on to the
// Kafka worker. Either Redis client may be nil.
type BarProcessor struct {
	cacheClient  interfaces.CacheClient
	pubsubClient interfaces.PubsubClient
	logger       *logger.Logger
	wg           sync.WaitGroup
	pending      atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
}

func NewBarProcessor(
	cacheClient interfaces.CacheClient,
	pubsubClient interfaces.PubsubClient,
	log *logger.Logger,
) *BarProcessor {
	return &BarProcessor{
		cacheClient:  cacheClient,
		pubsubClient: pubsubClient,
		logger:       log.Component("processor"),
	}
}

// Start consumes bars until barChan closes or ctx ends, then waits for
// in-flight writes and closes bgBarsChan.
func (bp *BarProcessor) Start(
	ctx context.Context,
	barChan <-chan *footprint.Bar,
	bgBarsChan chan<- *footprint.Bar,
) error {
	bp.logger.Info("bar processor starting",
		logger.Int("kafka_channel_buffer", cap(bgBarsChan)),
		logger.Int("input_channel_buffer", cap(barChan)),
		logger.Bool("cache", bp.cacheClient != nil),
		logger.Bool("pubsub", bp.pubsubClient != nil))

	defer func() {
		if bgBarsChan != nil {
			bp.logger.Info("closing background bars channel")
			close(bgBarsChan)
		}
		bp.logger.Info("processor final statistics",
			logger.Int64("successful", bp.succeeded.Load()),
			logger.Int64("errors", bp.failed.Load()),
			logger.Int("success_rate_pct", calculateSuccessRate(bp.succeeded.Load(), bp.failed.Load())))
	}()

	for {
		select {
		case bar, ok := <-barChan:
			if !ok {
				bp.logger.Info("bar channel closed, waiting for pending operations",
					logger.Int64("pending_operations", bp.pending.Load()))
				bp.wg.Wait()
				return nil
			}
			bp.handle(ctx, bar, bgBarsChan)

		case <-ctx.Done():
			bp.logger.Info("processor received shutdown signal",
				logger.Int64("pending_operations", bp.pending.Load()))
			bp.wg.Wait()
			bp.logger.Info("processor shutdown complete")
			return nil
		}
	}
}

func (bp *BarProcessor) handle(ctx context.Context, bar *footprint.Bar, bgBarsChan chan<- *footprint.Bar) {
	payload, err := footprint.EncodeBar(bar)
	if err != nil {
		bp.failed.Add(1)
		bp.logger.Error("could not encode bar", logger.Error(err), logger.String("instrument", bar.Instrument))
		return
	}

	// the Kafka hand-off keeps bar order, only the Redis writes run concurrently
	if bgBarsChan != nil {
		select {
		case bgBarsChan <- bar:
		default:
			metrics.SinkBarsDroppedTotal.WithLabelValues("kafka").Inc()
			bp.logger.Warn("kafka channel full, dropping bar",
				logger.String("instrument", bar.Instrument),
				logger.Int64("bucket_start", bar.BucketStart))
		}
	}

	if bp.cacheClient == nil && bp.pubsubClient == nil {
		return
	}

	bp.wg.Add(1)
	bp.pending.Add(1)
	go func() {
		defer bp.wg.Done()
		defer bp.pending.Add(-1)

		start := time.Now()
		if err := bp.processBar(ctx, bar.Instrument, payload); err != nil {
			bp.failed.Add(1)
			bp.logger.Error("bar processing failed",
				logger.Error(err),
				logger.String("instrument", bar.Instrument),
				logger.Int64("bucket_start", bar.BucketStart),
				logger.Duration("duration", time.Since(start)))
			return
		}
		bp.succeeded.Add(1)
		metrics.SinkBarsProcessedTotal.Inc()
		bp.logger.Debug("bar processed",
			logger.String("instrument", bar.Instrument),
			logger.Int64("bucket_start", bar.BucketStart),
			logger.Duration("duration", time.Since(start)))
	}()
}

func (bp *BarProcessor) processBar(ctx context.Context, instrument string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, barTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if bp.cacheClient != nil {
		key := CacheKey(instrument)
		g.Go(func() error {
			return utils.RetryWithDefault(ctx, func(ctx context.Context) error {
				metrics.RedisSetTotal.Inc()
				timer := metrics.NewTimer(metrics.RedisOperationDuration)
				err := bp.cacheClient.Set(ctx, key, payload, 0)
				timer.ObserveDuration()
				if err != nil {
					metrics.RedisSetErrorsTotal.Inc()
					bp.logger.Warn("redis SET operation failed", logger.Error(err), logger.String("key", key))
				}
				return err
			}, bp.logger)
		})
	}

	if bp.pubsubClient != nil {
		channel := Channel(instrument)
		g.Go(func() error {
			return utils.RetryWithDefault(ctx, func(ctx context.Context) error {
				metrics.RedisPublishTotal.Inc()
				timer := metrics.NewTimer(metrics.RedisOperationDuration)
				err := bp.pubsubClient.Publish(ctx, channel, payload)
				timer.ObserveDuration()
				if err != nil {
					metrics.RedisPublishErrorsTotal.Inc()
					bp.logger.Warn("redis PUBLISH operation failed", logger.Error(err), logger.String("channel", channel))
				}
				return err
			}, bp.logger)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("bar processing encountered an error: %w", err)
	}
	return nil
}

// calculateSuccessRate returns the success rate as percentage
func calculateSuccessRate(success, failure int64) int {
	total := success + failure
	if total == 0 {
		return 100
	}
	return int(success * 100 / total)
}
