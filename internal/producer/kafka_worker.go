package producer

import (
	"context"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/utils"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
)

// KafkaWorker produces finalized bars keyed by instrument, in the order
// they arrive.
type KafkaWorker struct {
	producer interfaces.KafkaProducer
	logger   *logger.Logger
	retry    utils.RetryConfig
}

func NewKafkaWorker(producer interfaces.KafkaProducer, log *logger.Logger) *KafkaWorker {
	return &KafkaWorker{
		producer: producer,
		logger:   log.Component("kafka_worker"),
		retry:    utils.DefaultKafkaRetryConfig(),
	}
}

// Start produces bars until barChan closes or ctx ends, then closes the
// producer.
func (kw *KafkaWorker) Start(ctx context.Context, barChan <-chan *footprint.Bar) error {
	kw.logger.Info("starting kafka worker", logger.Int("input_channel_buffer", cap(barChan)))
	defer func() {
		if err := kw.producer.Close(); err != nil {
			kw.logger.Error("error closing kafka producer", logger.Error(err))
		}
	}()

	for {
		select {
		case bar, ok := <-barChan:
			if !ok {
				kw.logger.Info("bar channel closed, kafka worker finished")
				return nil
			}
			kw.produce(ctx, bar)

		case <-ctx.Done():
			kw.logger.Info("context cancelled, stopping kafka worker")
			return nil
		}
	}
}

func (kw *KafkaWorker) produce(ctx context.Context, bar *footprint.Bar) {
	payload, err := footprint.EncodeBar(bar)
	if err != nil {
		kw.logger.Error("could not encode bar", logger.Error(err), logger.String("instrument", bar.Instrument))
		return
	}
	ts := time.UnixMilli(bar.BucketStart)

	var (
		attempts  int
		partition int32
		offset    int64
	)
	err = utils.RetryWithConfig(ctx, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.KafkaRetriesTotal.Inc()
		}
		metrics.KafkaPublishTotal.Inc()
		timer := metrics.NewTimer(metrics.KafkaOperationDuration)
		var err error
		partition, offset, err = kw.producer.Produce(ctx, bar.Instrument, payload, ts)
		timer.ObserveDuration()
		if err != nil {
			metrics.KafkaPublishErrorsTotal.Inc()
		}
		return err
	}, kw.retry, kw.logger)

	if err != nil {
		kw.logger.Error("failed to produce bar",
			logger.Error(err),
			logger.String("instrument", bar.Instrument),
			logger.Int64("bucket_start", bar.BucketStart),
			logger.Int("attempts", attempts))
		return
	}

	kw.logger.Debug("produced bar to kafka",
		logger.String("instrument", bar.Instrument),
		logger.Int64("bucket_start", bar.BucketStart),
		logger.Int32("partition", partition),
		logger.Int64("offset", offset))
}
