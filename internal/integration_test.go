package internal

import (
	"context"
	"testing"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/aggregator"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/ingestor"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/mocks"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/processor"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/producer"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/service"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
	"golang.org/x/sync/errgroup"
)

func TestIntegrationPipeline(t *testing.T) {
	cfg := &config.Config{
		BarInterval:     time.Minute,
		HistoryCapacity: 100,
		PricePrecision:  2,
		ReconnectBase:   time.Millisecond,
		HubBuffer:       64,
		InboxBuffer:     64,
		KafkaChanBuff:   10,
	}

	transport := mocks.NewMockFeedTransport()
	mockCache := mocks.NewMockCacheClient()
	mockPubsub := mocks.NewMockPubsubClient()
	mockKafka := mocks.NewMockKafkaProducer()
	log := logger.NewNoOpLogger()

	h := hub.New(cfg.HubBuffer, log)
	defer h.Close()
	agg := aggregator.NewAggregator(cfg, h, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	manager := ingestor.NewConnectionManager(ctx, transport, func(tr marketdata.RawTrade) { agg.Submit(tr) }, cfg, log)
	svc := service.NewFootprintService(agg, manager, h, log)

	barChan := make(chan *footprint.Bar, cfg.KafkaChanBuff)
	kafkaChan := make(chan *footprint.Bar, cfg.KafkaChanBuff)
	svc.Subscribe(processor.Forward(barChan, log))

	processorSvc := processor.NewBarProcessor(mockCache, mockPubsub, log)
	kafkaWorkerSvc := producer.NewKafkaWorker(mockKafka, log)

	g.Go(func() error {
		return agg.Run(ctx)
	})
	g.Go(func() error {
		return processorSvc.Start(ctx, barChan, kafkaChan)
	})
	g.Go(func() error {
		return kafkaWorkerSvc.Start(ctx, kafkaChan)
	})

	if err := svc.StartStream([]string{"BTCUSDT", "ETHUSDT"}); err != nil {
		t.Fatalf("start stream: %v", err)
	}
	select {
	case <-transport.Opened:
	case <-time.After(time.Second):
		t.Fatal("upstream was not opened")
	}
	waitFor(t, func() bool { return transport.GetConn(0) != nil })
	conn := transport.GetConn(0)

	trades := []marketdata.RawTrade{
		{Instrument: "BTCUSDT", TradeID: 1, Price: "100.00", Quantity: "1", TradeTimeMs: 1_000},
		{Instrument: "ETHUSDT", TradeID: 2, Price: "20.00", Quantity: "3", TradeTimeMs: 2_000, BuyerIsMaker: true},
		{Instrument: "BTCUSDT", TradeID: 3, Price: "101.00", Quantity: "2", TradeTimeMs: 30_000},
		{Instrument: "BTCUSDT", TradeID: 4, Price: "bad", Quantity: "2", TradeTimeMs: 31_000},
		// crosses the boundary for both instruments
		{Instrument: "BTCUSDT", TradeID: 5, Price: "102.00", Quantity: "1", TradeTimeMs: 61_000},
		{Instrument: "ETHUSDT", TradeID: 6, Price: "21.00", Quantity: "1", TradeTimeMs: 62_000},
	}
	for _, tr := range trades {
		conn.Emit(tr)
	}

	waitFor(t, func() bool { return len(mockKafka.GetProducedMessages()) == 2 })

	btc := svc.LatestBars("BTCUSDT", 10)
	if len(btc) != 1 || btc[0].TotalVolume.String() != "3" || btc[0].Delta.String() != "3" {
		t.Fatalf("unexpected finalized BTC bars: %+v", btc)
	}
	eth := svc.LatestBars("ETHUSDT", 10)
	if len(eth) != 1 || eth[0].Delta.String() != "-3" {
		t.Fatalf("unexpected finalized ETH bars: %+v", eth)
	}
	if current, ok := svc.CurrentBar("BTCUSDT"); !ok || current.BucketStart != 60_000 {
		t.Errorf("expected BTC bar in progress at 60000, got %+v", current)
	}

	keys := map[string]bool{}
	for _, msg := range mockKafka.GetProducedMessages() {
		keys[msg.Key] = true
		if !msg.Timestamp.Equal(time.UnixMilli(0)) {
			t.Errorf("expected bucket start timestamp, got %v", msg.Timestamp)
		}
	}
	if !keys["BTCUSDT"] || !keys["ETHUSDT"] {
		t.Errorf("expected one bar per instrument in kafka, got %v", keys)
	}

	// one cached and one published bar per instrument
	waitFor(t, func() bool {
		for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
			if _, ok := mockCache.GetValue(processor.CacheKey(sym)); !ok {
				return false
			}
			if len(mockPubsub.GetPublished(processor.Channel(sym))) != 1 {
				return false
			}
		}
		return true
	})

	svc.StopStream()
	if !conn.IsClosed() {
		t.Error("stop should close the upstream connection")
	}

	cancel()
	if err := g.Wait(); err != nil && err != context.Canceled {
		t.Errorf("unexpected error: %v", err)
	}
	if !mockKafka.IsClosed() {
		t.Error("kafka producer should be closed on shutdown")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
