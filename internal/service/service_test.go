package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/aggregator"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/hub"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/ingestor"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/mocks"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
)

type fakeStreamer struct {
	mu      sync.Mutex
	ensured [][]string
	stops   int
	err     error
}

func (f *fakeStreamer) EnsureSubscribed(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, symbols)
	return f.err
}

func (f *fakeStreamer) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeStreamer) Status() ingestor.Status {
	return ingestor.Status{Provider: "fake"}
}

func newTestService(t *testing.T, streamer Streamer) (*FootprintService, *aggregator.Aggregator, *hub.Hub) {
	t.Helper()
	log := logger.NewNoOpLogger()
	h := hub.New(64, log)
	t.Cleanup(h.Close)

	cfg := &config.Config{
		BarInterval:     time.Minute,
		HistoryCapacity: 100,
		PricePrecision:  2,
		InboxBuffer:     64,
	}
	agg := aggregator.NewAggregator(cfg, h, log)
	return NewFootprintService(agg, streamer, h, log), agg, h
}

func TestFootprintService_StartStream(t *testing.T) {
	streamer := &fakeStreamer{}
	svc, agg, _ := newTestService(t, streamer)

	if err := svc.StartStream([]string{" ", ""}); !errors.Is(err, ErrNoSymbols) {
		t.Fatalf("expected ErrNoSymbols, got %v", err)
	}

	if err := svc.StartStream([]string{"btcusdt", "ethusdt "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streamer.ensured) != 1 || streamer.ensured[0][0] != "BTCUSDT" || streamer.ensured[0][1] != "ETHUSDT" {
		t.Errorf("unexpected subscription request: %v", streamer.ensured)
	}
	if got := agg.Instruments(); len(got) != 2 {
		t.Errorf("expected both instruments registered, got %v", got)
	}

	streamer.err = errors.New("down")
	if err := svc.StartStream([]string{"SOLUSDT"}); err == nil {
		t.Error("expected streamer error to propagate")
	}
}

func TestFootprintService_StopStreamKeepsHistory(t *testing.T) {
	streamer := &fakeStreamer{}
	svc, agg, _ := newTestService(t, streamer)

	svc.StartStream([]string{"BTCUSDT"})
	runTrades(t, agg,
		marketdata.RawTrade{Instrument: "BTCUSDT", Price: "1", Quantity: "1", TradeTimeMs: 0},
		marketdata.RawTrade{Instrument: "BTCUSDT", Price: "2", Quantity: "1", TradeTimeMs: 60_000},
	)

	if _, ok := svc.CurrentBar("btcusdt"); !ok {
		t.Fatal("expected a current bar before stop")
	}

	svc.StopStream()

	if streamer.stops != 1 {
		t.Errorf("expected StopAll to be called once, got %d", streamer.stops)
	}
	if _, ok := svc.CurrentBar("BTCUSDT"); ok {
		t.Error("in-progress bar should be discarded on stop")
	}
	if bars := svc.LatestBars("btcusdt", 5); len(bars) != 1 {
		t.Errorf("expected 1 historical bar after stop, got %d", len(bars))
	}
}

func TestFootprintService_SubscribeReceivesEvents(t *testing.T) {
	svc, agg, _ := newTestService(t, &fakeStreamer{})
	svc.StartStream([]string{"BTCUSDT"})

	var mu sync.Mutex
	var kinds []hub.Kind
	id := svc.Subscribe(func(bar *footprint.Bar, kind hub.Kind) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	})

	runTrades(t, agg,
		marketdata.RawTrade{Instrument: "BTCUSDT", Price: "1", Quantity: "1", TradeTimeMs: 0},
		marketdata.RawTrade{Instrument: "BTCUSDT", Price: "1", Quantity: "1", TradeTimeMs: 60_000},
	)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(kinds)
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 events, got %d", n)
		}
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	want := []hub.Kind{hub.KindPartial, hub.KindFull, hub.KindPartial}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
	mu.Unlock()

	if svc.Status().Listeners != 1 {
		t.Errorf("expected 1 listener, got %d", svc.Status().Listeners)
	}
	svc.Unsubscribe(id)
	if svc.Status().Listeners != 0 {
		t.Errorf("expected 0 listeners, got %d", svc.Status().Listeners)
	}
}

func TestFootprintService_WithConnectionManager(t *testing.T) {
	log := logger.NewNoOpLogger()
	transport := mocks.NewMockFeedTransport()

	h := hub.New(64, log)
	defer h.Close()
	cfg := &config.Config{BarInterval: time.Minute, PricePrecision: 2, ReconnectBase: time.Millisecond}
	agg := aggregator.NewAggregator(cfg, h, log)

	ctx := testContext(t)
	go agg.Run(ctx)

	manager := ingestor.NewConnectionManager(ctx, transport, func(tr marketdata.RawTrade) { agg.Submit(tr) }, cfg, log)
	svc := NewFootprintService(agg, manager, h, log)

	if err := svc.StartStream([]string{"BTCUSDT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-transport.Opened:
	case <-time.After(time.Second):
		t.Fatal("expected the transport to be opened")
	}

	deadline := time.Now().Add(time.Second)
	for !svc.Status().Feed.Connected {
		if time.Now().After(deadline) {
			t.Fatal("connection was not established")
		}
		time.Sleep(2 * time.Millisecond)
	}

	transport.GetConn(0).Emit(marketdata.RawTrade{Instrument: "BTCUSDT", Price: "100", Quantity: "2", TradeTimeMs: 1})

	for {
		if bar, ok := svc.CurrentBar("BTCUSDT"); ok && bar.TotalVolume.IntPart() == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("trade was not aggregated")
		}
		time.Sleep(2 * time.Millisecond)
	}

	svc.StopStream()
	if !transport.GetConn(0).IsClosed() {
		t.Error("stop should close the upstream connection")
	}
	if svc.Status().Feed.Connected {
		t.Error("feed should report disconnected after stop")
	}
}

// runTrades feeds trades through a running aggregator and waits until the
// last one has opened its bar.
func runTrades(t *testing.T, agg *aggregator.Aggregator, trades ...marketdata.RawTrade) {
	t.Helper()
	ctx := testContext(t)
	go agg.Run(ctx)

	for _, tr := range trades {
		agg.Submit(tr)
	}

	last := trades[len(trades)-1]
	want := footprint.BucketStart(last.TradeTimeMs, time.Minute.Milliseconds())
	deadline := time.Now().Add(time.Second)
	for {
		if bar, ok := agg.CurrentBar(last.Instrument); ok && bar.BucketStart == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("aggregator did not apply the trades")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
