package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/footprint"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/mocks"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/utils"
	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/pkg/marketdata"
	"github.com/shopspring/decimal"
)

var fastRetry = utils.RetryConfig{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	Multiplier:      2,
	MaxElapsedTime:  10 * time.Millisecond,
}

func finalizedBar(instrument string, bucketStart int64) *footprint.Bar {
	bar := footprint.NewBar(instrument, bucketStart, 60_000, 2)
	bar.Apply(marketdata.Trade{
		Instrument: instrument,
		ExecTimeMs: bucketStart,
		Price:      decimal.RequireFromString("42"),
		Quantity:   decimal.RequireFromString("1.5"),
		Side:       marketdata.SideSell,
	})
	bar.Finalize()
	return bar
}

func newTestWorker(producer *mocks.MockKafkaProducer) *KafkaWorker {
	worker := NewKafkaWorker(producer, logger.NewNoOpLogger())
	worker.retry = fastRetry
	return worker
}

func TestKafkaWorker_Start(t *testing.T) {
	tests := []struct {
		name       string
		bars       []*footprint.Bar
		kafkaError error
		wantKeys   []string
	}{
		{
			name:     "successful_production",
			bars:     []*footprint.Bar{finalizedBar("BTCUSDT", 0), finalizedBar("ETHUSDT", 60_000)},
			wantKeys: []string{"BTCUSDT", "ETHUSDT"},
		},
		{
			name:       "kafka_error",
			bars:       []*footprint.Bar{finalizedBar("BTCUSDT", 0)},
			kafkaError: errors.New("kafka production error"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mockProducer := mocks.NewMockKafkaProducer()
			if tc.kafkaError != nil {
				mockProducer.SetError(tc.kafkaError)
			}
			worker := newTestWorker(mockProducer)

			inputChan := make(chan *footprint.Bar, len(tc.bars))
			for _, bar := range tc.bars {
				inputChan <- bar
			}
			close(inputChan)

			// produce errors are logged, they never stop the worker
			if err := worker.Start(context.Background(), inputChan); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !mockProducer.IsClosed() {
				t.Error("producer should be closed when the worker stops")
			}

			produced := mockProducer.GetProducedMessages()
			if len(produced) != len(tc.wantKeys) {
				t.Fatalf("expected %d messages produced, got %d", len(tc.wantKeys), len(produced))
			}
			for i, msg := range produced {
				bar := tc.bars[i]
				if msg.Key != tc.wantKeys[i] {
					t.Errorf("message %d: expected key %s, got %s", i, tc.wantKeys[i], msg.Key)
				}
				if !msg.Timestamp.Equal(time.UnixMilli(bar.BucketStart)) {
					t.Errorf("message %d: expected bucket start timestamp, got %v", i, msg.Timestamp)
				}
				want, _ := footprint.EncodeBar(bar)
				if string(msg.Value) != string(want) {
					t.Errorf("message %d: payload mismatch\nwant %s\n got %s", i, want, msg.Value)
				}
			}
		})
	}
}

func TestKafkaWorker_GracefulShutdown(t *testing.T) {
	mockProducer := mocks.NewMockKafkaProducer()
	worker := newTestWorker(mockProducer)

	inputChan := make(chan *footprint.Bar, 5)
	inputChan <- finalizedBar("BTCUSDT", 0)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- worker.Start(ctx, inputChan)
	}()

	deadline := time.Now().Add(time.Second)
	for len(mockProducer.GetProducedMessages()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bar was not produced")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("expected nil on shutdown, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not shut down within timeout period")
	}
	if !mockProducer.IsClosed() {
		t.Error("producer should be closed on shutdown")
	}
}
