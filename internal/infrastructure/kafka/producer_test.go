package kafka

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestSaramaSyncProducer_Produce(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewSaramaConfig())
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if !bytes.Equal(val, []byte(`{"instrument":"BTCUSDT"}`)) {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewSaramaSyncProducer(mock, "footprint-bars")
	defer p.Close()

	ts := time.UnixMilli(1_700_000_040_000)
	if _, _, err := p.Produce(context.Background(), "BTCUSDT", []byte(`{"instrument":"BTCUSDT"}`), ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := p.Produce(context.Background(), "BTCUSDT", []byte(`{}`), ts); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected broker error, got %v", err)
	}
}

func TestSaramaSyncProducer_CancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewSaramaConfig())
	p := NewSaramaSyncProducer(mock, "footprint-bars")
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := p.Produce(ctx, "BTCUSDT", []byte(`{}`), time.Now()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := NewSaramaConfig()
	if !cfg.Producer.Return.Successes {
		t.Error("sync producer requires Return.Successes")
	}
	if cfg.Producer.RequiredAcks != sarama.WaitForLocal {
		t.Errorf("unexpected acks %v", cfg.Producer.RequiredAcks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should validate: %v", err)
	}
}
