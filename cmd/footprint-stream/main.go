package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/aggregator"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/infrastructure/alpaca"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/infrastructure/binance"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/infrastructure/kafka"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/infrastructure/redis"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/ingestor"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/metrics"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/mockdata"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/processor"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/producer"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/server"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/service"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/interfaces"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
	"golang.org/x/sync/errgroup"
)

func main() {
	// a missing .env is fine, the environment wins anyway
	_ = godotenv.Load()

	log := logger.New()
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, log); err != nil {
		log.Fatal("footprint stream exited with error", logger.Error(err))
	}
	log.Info("footprint stream stopped")
}

func run(ctx context.Context, getenv func(string) string, log *logger.Logger) error {
	cfg, err := config.LoadConfig(getenv, log)
	if err != nil {
		return err
	}

	h := hub.New(cfg.HubBuffer, log)
	defer h.Close()

	agg := aggregator.NewAggregator(cfg, h, log)

	g, ctx := errgroup.WithContext(ctx)

	manager := ingestor.NewConnectionManager(ctx, newTransport(cfg, log), func(t marketdata.RawTrade) {
		agg.Submit(t)
	}, cfg, log)
	svc := service.NewFootprintService(agg, manager, h, log)
	srv := server.New(cfg, svc, log)

	g.Go(func() error {
		return agg.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start(ctx)
	})

	samplers := []metrics.Sampler{func() {
		metrics.UpdateChannelMetrics(agg.InboxLen(), cfg.InboxBuffer, metrics.InboxSize, metrics.InboxCapacity)
	}}
	closeSinks, sampler := startSinks(ctx, g, cfg, svc, log)
	defer closeSinks()
	if sampler != nil {
		samplers = append(samplers, sampler)
	}

	stopCollector := metrics.StartCollector(ctx, cfg.MetricsInterval, samplers...)
	defer stopCollector()

	if len(cfg.Symbols) > 0 {
		if err := svc.StartStream(cfg.Symbols); err != nil {
			log.Error("could not start initial stream", logger.Error(err), logger.Strings("symbols", cfg.Symbols))
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		svc.StopStream()
		return nil
	})

	log.Info("footprint stream running",
		logger.String("provider", cfg.FeedProvider),
		logger.String("http_addr", cfg.HTTPAddr))
	return g.Wait()
}

func newTransport(cfg *config.Config, log *logger.Logger) interfaces.FeedTransport {
	switch cfg.FeedProvider {
	case config.ProviderAlpaca:
		return alpaca.NewTransport(cfg, log)
	case config.ProviderMock:
		return mockdata.NewTransport(mockdata.DefaultConfig(), log)
	default:
		return binance.NewTransport(cfg.BinanceWSBase, log)
	}
}

// startSinks wires whichever of Redis and Kafka are configured to receive
// finalized bars. A sink that cannot connect is skipped.
func startSinks(ctx context.Context, g *errgroup.Group, cfg *config.Config, svc *service.FootprintService, log *logger.Logger) (func(), metrics.Sampler) {
	var (
		cache   interfaces.CacheClient
		pubsub  interfaces.PubsubClient
		kafkaP  interfaces.KafkaProducer
		closers []func() error
	)

	if cfg.RedisCacheAddr != "" {
		if c, err := redis.NewRedisCacheClient(ctx, cfg); err != nil {
			log.Warn("redis cache unavailable, skipping", logger.Error(err))
		} else {
			cache = c
			closers = append(closers, c.Close)
		}
	}
	if cfg.RedisPubsubAddr != "" {
		if c, err := redis.NewRedisPubsubClient(ctx, cfg); err != nil {
			log.Warn("redis pubsub unavailable, skipping", logger.Error(err))
		} else {
			pubsub = c
			closers = append(closers, c.Close)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		if p, err := kafka.NewKafkaSyncProducer(cfg); err != nil {
			log.Warn("kafka unavailable, skipping", logger.Error(err))
		} else {
			kafkaP = p
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("error closing sink client", logger.Error(err))
			}
		}
	}
	if cache == nil && pubsub == nil && kafkaP == nil {
		log.Info("no sinks configured, finalized bars stay in memory")
		return closeAll, nil
	}

	barChan := make(chan *footprint.Bar, cfg.KafkaChanBuff)
	var kafkaChan chan *footprint.Bar
	if kafkaP != nil {
		kafkaChan = make(chan *footprint.Bar, cfg.KafkaChanBuff)
		worker := producer.NewKafkaWorker(kafkaP, log)
		g.Go(func() error {
			return worker.Start(ctx, kafkaChan)
		})
	}

	bp := processor.NewBarProcessor(cache, pubsub, log)
	g.Go(func() error {
		return bp.Start(ctx, barChan, kafkaChan)
	})
	svc.Subscribe(processor.Forward(barChan, log))

	sampler := func() {
		if kafkaChan != nil {
			metrics.UpdateChannelMetrics(len(kafkaChan), cap(kafkaChan), metrics.KafkaChanSize, metrics.KafkaChanCapacity)
		}
	}
	return closeAll, sampler
}
