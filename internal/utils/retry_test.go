package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/logger"
)

var testRetry = RetryConfig{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	Multiplier:      2,
	MaxElapsedTime:  50 * time.Millisecond,
}

func TestRetryWithConfig(t *testing.T) {
	errFlaky := errors.New("flaky")

	tests := []struct {
		name      string
		failTimes int
		wantErr   bool
		minCalls  int
	}{
		{name: "first_try", failTimes: 0, minCalls: 1},
		{name: "recovers", failTimes: 2, minCalls: 3},
		{name: "gives_up", failTimes: 1_000_000, wantErr: true, minCalls: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := RetryWithConfig(context.Background(), func(context.Context) error {
				calls++
				if calls <= tc.failTimes {
					return errFlaky
				}
				return nil
			}, testRetry, logger.NewNoOpLogger())

			if tc.wantErr != (err != nil) {
				t.Fatalf("unexpected error result: %v", err)
			}
			if tc.wantErr && !errors.Is(err, errFlaky) {
				t.Errorf("expected the last operation error, got %v", err)
			}
			if calls < tc.minCalls {
				t.Errorf("expected at least %d calls, got %d", tc.minCalls, calls)
			}
		})
	}
}

func TestRetryWithConfig_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithConfig(ctx, func(context.Context) error {
		calls++
		return nil
	}, testRetry, logger.NewNoOpLogger())

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("operation must not run on a cancelled context, ran %d times", calls)
	}
}
